// Package pipeline applies an ordered chain of text transforms to a raw
// dictation transcript. Each filter is independently fallible and
// independently time-boxed; a bad filter degrades quality, it never
// loses the dictation.
package pipeline

import (
	"context"
	"log/slog"
)

// Context carries ambient information read from the target application
// at the moment the user stopped speaking.
type Context struct {
	SurroundingText string   // text around the insertion point, best effort
	Vocabulary      []string // on-screen terms worth preserving verbatim
	Language        string   // ISO 639-1 code of the transcript, "" if unknown
}

// Filter is a single text transform. Apply must be a fixed point on its
// own output so that re-processing after a user edit is safe.
type Filter interface {
	Name() string
	Apply(ctx context.Context, text string, pctx Context) (string, error)
}

// Chain runs filters in a fixed, significant order.
type Chain struct {
	filters []Filter
}

// NewChain creates a chain. Order is preserved.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// Len returns the number of configured filters.
func (c *Chain) Len() int {
	return len(c.filters)
}

// Process reduces raw transcript text to delivery text. Empty input or
// an empty filter list returns the input unchanged. A filter that fails
// is skipped: its output is discarded and the unmodified input to that
// stage feeds the next filter.
func (c *Chain) Process(ctx context.Context, text string, pctx Context) string {
	if text == "" || len(c.filters) == 0 {
		return text
	}

	for _, f := range c.filters {
		out, err := f.Apply(ctx, text, pctx)
		if err != nil {
			slog.Warn("filter skipped", "filter", f.Name(), "error", err)
			continue
		}
		text = out
	}
	return text
}
