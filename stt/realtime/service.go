package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/murmur/capture"
)

// flushGrace is how long Stop waits for the API to finish
// transcribing committed audio before giving up.
const flushGrace = 2 * time.Second

// Service streams the microphone to the Realtime API and emits
// transcript updates: growing non-final text while a phrase is being
// spoken, then the final text when the server closes the turn.
type Service struct {
	apiKey string

	mu      sync.Mutex
	running bool
	client  *Client
	cap     capture.Capturer
	done    chan struct{}
	drained chan struct{}

	partial string

	onTranscript func(text string, final bool)
	onError      func(error)
}

// NewService creates a realtime transcription service.
func NewService(apiKey string) *Service {
	return &Service{apiKey: apiKey}
}

// OnTranscript registers the transcript callback. Register before Start.
func (s *Service) OnTranscript(fn func(text string, final bool)) {
	s.onTranscript = fn
}

// OnError registers the failure callback.
func (s *Service) OnError(fn func(error)) {
	s.onError = fn
}

// Start dials the API and begins streaming microphone audio.
func (s *Service) Start(ctx context.Context, locale string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("realtime: service already running")
	}
	if s.apiKey == "" {
		return fmt.Errorf("realtime: API key required")
	}

	cap, err := capture.New(TrackSampleRate)
	if err != nil {
		return fmt.Errorf("create capture: %w", err)
	}

	client := NewClient(s.apiKey, locale)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := cap.Start(func(samples []float32) {
		if err := client.SendAudio(samples); err != nil {
			slog.Debug("send audio", "error", err)
		}
	}); err != nil {
		client.Close()
		return fmt.Errorf("start capture: %w", err)
	}

	s.client = client
	s.cap = cap
	s.done = make(chan struct{})
	s.drained = make(chan struct{}, 1)
	s.partial = ""
	s.running = true

	go s.processEvents(client, s.done)

	slog.Info("realtime transcription started", "locale", locale)
	return nil
}

// Stop ends the session, committing pending audio and waiting for the
// final transcript before tearing the call down, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	client := s.client
	cap := s.cap
	drained := s.drained
	s.mu.Unlock()

	if err := cap.Stop(); err != nil {
		slog.Warn("stop capture", "error", err)
	}
	// Force transcription of whatever the server VAD has not closed.
	if err := client.Send(eventInputAudioBufferCommit()); err != nil {
		slog.Debug("commit audio buffer", "error", err)
	}

	select {
	case <-drained:
	case <-time.After(flushGrace):
	case <-ctx.Done():
	}

	s.teardown()
	return nil
}

// Cancel ends the session discarding pending audio.
func (s *Service) Cancel() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cap := s.cap
	s.mu.Unlock()

	if err := cap.Stop(); err != nil {
		slog.Warn("stop capture", "error", err)
	}
	s.teardown()
}

func (s *Service) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.done)
	if err := s.client.Close(); err != nil {
		slog.Warn("close realtime client", "error", err)
	}
	s.client = nil
	s.cap = nil
	slog.Info("realtime transcription stopped")
}

// processEvents consumes data channel events until the session ends.
func (s *Service) processEvents(client *Client, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case err := <-client.Errors():
			if s.onError != nil {
				s.onError(err)
			}
		case event := <-client.Messages():
			s.handleEvent(event)
		}
	}
}

func (s *Service) handleEvent(event ServerEvent) {
	switch event.Type {
	case eventTranscriptionDelta:
		s.mu.Lock()
		s.partial += event.Delta()
		text := s.partial
		s.mu.Unlock()
		if s.onTranscript != nil {
			s.onTranscript(text, false)
		}

	case eventTranscriptionCompleted:
		text := event.Transcript()
		s.mu.Lock()
		s.partial = ""
		drained := s.drained
		s.mu.Unlock()
		if text != "" && s.onTranscript != nil {
			s.onTranscript(text, true)
		}
		if drained != nil {
			select {
			case drained <- struct{}{}:
			default:
			}
		}

	case eventError:
		if event.Error == nil {
			slog.Error("realtime api error with no details")
			return
		}
		slog.Error("realtime api error",
			"code", event.Error.Code,
			"message", event.Error.Message)
		if s.onError != nil {
			s.onError(fmt.Errorf("realtime api [%s]: %s", event.Error.Code, event.Error.Message))
		}
	}
}
