package stt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.aimuz.me/murmur/capture"
)

// Service turns the microphone stream into transcript updates using a
// batch Provider. Utterance boundaries come from the energy detector;
// each cut segment is transcribed in arrival order, so every emitted
// update is final.
type Service struct {
	provider Provider
	cap      capture.Capturer

	mu       sync.Mutex
	running  bool
	cancel   bool
	frames   chan []float32
	done     chan struct{}
	failures int

	onTranscript func(text string, final bool)
	onError      func(error)
}

// NewService creates a batch transcription service.
func NewService(provider Provider, cap capture.Capturer) *Service {
	return &Service{provider: provider, cap: cap}
}

// OnTranscript registers the transcript callback. Register before Start.
func (s *Service) OnTranscript(fn func(text string, final bool)) {
	s.onTranscript = fn
}

// OnError registers the failure callback for capture loss.
func (s *Service) OnError(fn func(error)) {
	s.onError = fn
}

// Start begins capturing and transcribing.
func (s *Service) Start(ctx context.Context, locale string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("stt: service already running")
	}
	if !s.provider.Ready() {
		return fmt.Errorf("stt: provider %q not ready", s.provider.Name())
	}

	frames := make(chan []float32, 64)
	done := make(chan struct{})
	s.frames = frames
	s.done = done
	s.cancel = false

	err := s.cap.Start(func(samples []float32) {
		// The capture slice is reused; copy before handing off.
		frame := make([]float32, len(samples))
		copy(frame, samples)
		select {
		case frames <- frame:
		default:
			slog.Warn("audio frame dropped", "samples", len(samples))
		}
	})
	if err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	s.running = true
	go s.run(frames, done, locale)
	return nil
}

// Stop ends capture and flushes the remaining audio through the
// provider before returning, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	done, err := s.shutdown(false)
	if done == nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stt: flush: %w", ctx.Err())
	}
}

// Cancel ends capture and discards buffered audio.
func (s *Service) Cancel() {
	done, _ := s.shutdown(true)
	if done != nil {
		<-done
	}
}

func (s *Service) shutdown(cancel bool) (chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, nil
	}
	s.running = false
	s.cancel = cancel

	err := s.cap.Stop()
	close(s.frames)
	return s.done, err
}

// run is the segmentation loop. It owns the detector and buffer and
// exits when the frame channel closes, flushing unless cancelled.
func (s *Service) run(frames <-chan []float32, done chan struct{}, locale string) {
	defer close(done)

	det := NewDetector(DefaultDetectorConfig())
	buf := NewPCMBuffer(0)

	for frame := range frames {
		buf.Append(frame)
		if det.Cut(frame) {
			s.transcribe(buf.Extract(), locale)
		}
	}

	s.mu.Lock()
	cancelled := s.cancel
	s.mu.Unlock()
	if cancelled {
		return
	}
	// Whatever remains when the user releases the key is the last
	// utterance.
	if buf.DurationMS() >= 200 {
		s.transcribe(buf.Extract(), locale)
	}
}

func (s *Service) transcribe(audio []float32, locale string) {
	if len(audio) == 0 {
		return
	}
	res, err := s.provider.Transcribe(context.Background(), audio, locale)
	if err != nil {
		// One bad segment does not end the session; a run of them
		// means the provider is down.
		slog.Warn("transcribe segment", "error", err, "provider", s.provider.Name())
		s.failures++
		if s.failures >= 3 && s.onError != nil {
			s.onError(fmt.Errorf("stt: provider %s failing: %w", s.provider.Name(), err))
		}
		return
	}
	s.failures = 0
	if res.Text == "" {
		return
	}
	if s.onTranscript != nil {
		s.onTranscript(res.Text, true)
	}
}
