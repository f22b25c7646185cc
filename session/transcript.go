package session

import "strings"

// Buffer accumulates the transcript of one recording session as two
// regions: finalized text the engine will not revise, and a volatile
// tail it still may. Not safe for concurrent use; the orchestrator
// serializes access.
type Buffer struct {
	finalized strings.Builder
	volatile  string
}

// AppendFinalized locks in a segment and clears the volatile tail,
// which the segment supersedes.
func (b *Buffer) AppendFinalized(text string) {
	if text == "" {
		return
	}
	if b.finalized.Len() > 0 && !strings.HasSuffix(b.finalized.String(), " ") {
		b.finalized.WriteByte(' ')
	}
	b.finalized.WriteString(text)
	b.volatile = ""
}

// SetVolatile replaces the volatile tail.
func (b *Buffer) SetVolatile(text string) {
	b.volatile = text
}

// DisplayText is what the indicator shows live: finalized text plus
// the current volatile tail.
func (b *Buffer) DisplayText() string {
	if b.volatile == "" {
		return b.finalized.String()
	}
	if b.finalized.Len() == 0 {
		return b.volatile
	}
	return b.finalized.String() + " " + b.volatile
}

// Text is the transcript handed to post-processing after the engine
// flushed: any leftover volatile tail counts as final.
func (b *Buffer) Text() string {
	return strings.TrimSpace(b.DisplayText())
}
