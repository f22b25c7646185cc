// Package session owns the dictation session lifecycle: recording,
// preview, delivery, and the paste-failure fallback. It is the single
// authority over session state; collaborators are injected interfaces
// and are told what to do, never asked what the state is.
package session

import (
	"context"

	"go.aimuz.me/murmur/internal/types"
)

// Result is one transcript update from the speech engine. Final text is
// locked in and appended; non-final text is volatile and replaced
// wholesale by the next update.
type Result struct {
	Text  string
	Final bool
}

// Transcriber streams speech-to-text for one recording session.
// Callbacks must be registered before Start and may arrive from any
// goroutine; the orchestrator serializes them itself.
type Transcriber interface {
	// Start begins audio capture and recognition.
	Start(ctx context.Context, locale string) error
	// Stop ends the session, flushing remaining results through the
	// result callback before it returns.
	Stop(ctx context.Context) error
	// Cancel ends the session discarding pending results.
	Cancel()
	// OnResult registers the transcript update callback.
	OnResult(func(Result))
	// OnError registers the engine failure callback.
	OnError(func(error))
}

// Permissions exposes synchronous, side-effect-free permission probes
// consulted at session start.
type Permissions interface {
	MicrophoneGranted() bool
	SpeechRecognitionGranted() bool
}

// ContextProbe reads ambient state from the desktop. Every method is
// best effort: zero values on any uncertainty.
type ContextProbe interface {
	// Frontmost returns the application that currently has focus.
	Frontmost() types.AppRef
	// HasFocusedEditableField reports whether app exposes an editable,
	// focused text field right now.
	HasFocusedEditableField(app types.AppRef) bool
	// SurroundingText returns text around the insertion point.
	SurroundingText(app types.AppRef) (string, bool)
	// ScreenVocabulary returns terms visible in app's window.
	ScreenVocabulary(app types.AppRef) []string
}

// Deliverer places processed text into the target application.
type Deliverer interface {
	// Paste injects text into app's focused field.
	Paste(ctx context.Context, text string, app types.AppRef) error
	// WriteClipboard puts text on the system clipboard.
	WriteClipboard(text string) error
	// Activate brings app back to the foreground.
	Activate(app types.AppRef) error
	// FailureCue plays the audible delivery-failure cue.
	FailureCue()
}

// Presenter is the floating status indicator.
type Presenter interface {
	Show(types.Snapshot)
	Hide()
}

// Recorder persists dictation history. Record must not block.
type Recorder interface {
	Record(types.HistoryEntry)
}
