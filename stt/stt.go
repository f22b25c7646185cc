// Package stt provides batch speech-to-text providers and the
// service that segments a live microphone stream into utterances for
// them.
package stt

import (
	"context"
	"time"
)

// SampleRate is the PCM sample rate providers expect.
const SampleRate = 16000

// Result is the outcome of transcribing one audio segment.
type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Segment is a time-stamped slice of the transcription.
type Segment struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Provider converts recorded audio to text.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Ready reports whether the provider can transcribe right now.
	Ready() bool

	// Transcribe converts mono float32 PCM at SampleRate to text.
	// language is a source language hint, empty for auto-detect.
	Transcribe(ctx context.Context, audio []float32, language string) (*Result, error)

	// Close releases resources held by the provider.
	Close() error
}

// Registry holds registered providers keyed by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns a provider by name, nil if absent.
func (r *Registry) Get(name string) Provider {
	return r.providers[name]
}

// List returns all registered providers.
func (r *Registry) List() []Provider {
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	return result
}

// Close releases all providers.
func (r *Registry) Close() error {
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			return err
		}
	}
	return nil
}
