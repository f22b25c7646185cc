package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"go.aimuz.me/murmur/clipboard"
	"go.aimuz.me/murmur/desktop"
	"go.aimuz.me/murmur/internal/types"
	"go.aimuz.me/murmur/session"
)

// pasteSettle is how long the target app gets to regain key focus
// between activation and the synthetic paste keystroke.
const pasteSettle = 50 * time.Millisecond

// clipboardRestoreDelay is how long the pasted text stays on the
// clipboard before the user's previous content is restored.
const clipboardRestoreDelay = 500 * time.Millisecond

// deskPermissions satisfies session.Permissions with the OS probes.
type deskPermissions struct{}

func (deskPermissions) MicrophoneGranted() bool        { return desktop.MicrophoneGranted() }
func (deskPermissions) SpeechRecognitionGranted() bool { return desktop.SpeechRecognitionGranted() }

// deskProbe satisfies session.ContextProbe with accessibility reads.
type deskProbe struct{}

func (deskProbe) Frontmost() types.AppRef { return desktop.Frontmost() }

func (deskProbe) HasFocusedEditableField(app types.AppRef) bool {
	return desktop.HasFocusedEditableField(app)
}

func (deskProbe) SurroundingText(app types.AppRef) (string, bool) {
	return desktop.SurroundingText(app)
}

func (deskProbe) ScreenVocabulary(app types.AppRef) []string {
	return titleVocabulary(desktop.WindowTitle(app))
}

// titleVocabulary derives terms worth preserving verbatim from a window
// title. Short words carry no signal and are dropped.
func titleVocabulary(title string) []string {
	if title == "" {
		return nil
	}

	words := strings.FieldsFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool, len(words))
	var vocab []string
	for _, w := range words {
		if len(w) < 3 || seen[strings.ToLower(w)] {
			continue
		}
		seen[strings.ToLower(w)] = true
		vocab = append(vocab, w)
		if len(vocab) == 32 {
			break
		}
	}
	return vocab
}

// deskDeliverer satisfies session.Deliverer. Paste goes through the
// clipboard: write, re-activate the target, then inject Cmd+V.
type deskDeliverer struct{}

// compile-time conformance checks
var (
	_ session.Permissions  = deskPermissions{}
	_ session.ContextProbe = deskProbe{}
	_ session.Deliverer    = deskDeliverer{}
)

func (deskDeliverer) Paste(ctx context.Context, text string, app types.AppRef) error {
	prior, priorErr := clipboard.GetText()

	if err := clipboard.SetText(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	if err := desktop.Activate(app); err != nil {
		return fmt.Errorf("activate %s: %w", app.Name, err)
	}
	select {
	case <-time.After(pasteSettle):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := desktop.SynthesizePaste(); err != nil {
		return fmt.Errorf("synthesize paste: %w", err)
	}

	// Put the user's clipboard back once the target app has consumed
	// the paste keystroke.
	if priorErr == nil && prior != "" {
		go func() {
			time.Sleep(clipboardRestoreDelay)
			if err := clipboard.SetText(prior); err != nil {
				slog.Warn("restore clipboard", "error", err)
			}
		}()
	}
	return nil
}

func (deskDeliverer) WriteClipboard(text string) error {
	return clipboard.SetText(text)
}

func (deskDeliverer) Activate(app types.AppRef) error {
	return desktop.Activate(app)
}

func (deskDeliverer) FailureCue() {
	desktop.PlayFailureCue()
}
