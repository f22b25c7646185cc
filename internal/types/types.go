// Package types provides shared type definitions for the application.
package types

import "time"

// APICredential is a stored API access record usable by the rewrite
// filter and the transcription backend.
type APICredential struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"` // "openai", "openai-compatible", "gemini", "claude"
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key"`
}

// DefaultMaxTokens is the default max tokens if not specified.
const DefaultMaxTokens = 1000

// DefaultTemperature is the default temperature if not specified.
const DefaultTemperature = 0.3

// Usage represents token usage statistics from LLM API calls.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// AppRef identifies an application that held keyboard focus. The zero
// value means "no application".
type AppRef struct {
	BundleID string `json:"bundleId"`
	Name     string `json:"name"`
	PID      int    `json:"pid"`
}

// IsZero reports whether the reference points at no application.
func (a AppRef) IsZero() bool {
	return a == AppRef{}
}

// SessionPhase is the user-visible phase of the dictation session.
type SessionPhase string

const (
	PhaseIdle        SessionPhase = "idle"
	PhaseRecording   SessionPhase = "recording"
	PhasePreviewing  SessionPhase = "previewing"
	PhasePasteFailed SessionPhase = "paste-failed"
)

// Snapshot is what the presentation layer is told about the session.
// The indicator is told about state, never asked for it.
type Snapshot struct {
	Phase       SessionPhase `json:"phase"`
	DisplayText string       `json:"displayText"` // finalized + volatile transcript while recording
	PreviewText string       `json:"previewText"` // processed text while previewing
	Error       string       `json:"error,omitempty"`
	Timestamp   int64        `json:"timestamp"` // Unix milliseconds
}

// HistoryEntry is one completed dictation, written once per non-empty
// session regardless of delivery outcome.
type HistoryEntry struct {
	ID            string    `json:"id"`
	RawText       string    `json:"rawText"`
	DeliveredText string    `json:"deliveredText"`
	AppBundleID   string    `json:"appBundleId"`
	AppName       string    `json:"appName"`
	Language      string    `json:"language,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
