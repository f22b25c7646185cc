package stt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.aimuz.me/murmur/capture"
)

type fakeCapturer struct {
	mu      sync.Mutex
	handler capture.Handler
	started int
	stopped int
}

func (f *fakeCapturer) Start(h capture.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	f.started++
	return nil
}

func (f *fakeCapturer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeCapturer) SampleRate() int { return SampleRate }

func (f *fakeCapturer) feed(samples []float32) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(samples)
}

type fakeProvider struct {
	mu    sync.Mutex
	calls [][]float32
	text  string
	err   error
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Ready() bool  { return true }
func (f *fakeProvider) Close() error { return nil }

func (f *fakeProvider) Transcribe(_ context.Context, audio []float32, _ string) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, audio)
	return &Result{Text: f.text}, nil
}

func TestServiceFlushTranscribesTail(t *testing.T) {
	cap := &fakeCapturer{}
	prov := &fakeProvider{text: "flushed tail"}
	svc := NewService(prov, cap)

	var got []string
	svc.OnTranscript(func(text string, final bool) {
		if !final {
			t.Errorf("batch service emitted non-final update %q", text)
		}
		got = append(got, text)
	})

	if err := svc.Start(context.Background(), "en"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	cap.feed(makeSpeech(SampleRate/2, 0.05)) // half a second

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if len(got) != 1 || got[0] != "flushed tail" {
		t.Fatalf("transcripts = %v, want [flushed tail]", got)
	}
	if len(prov.calls) != 1 || len(prov.calls[0]) != SampleRate/2 {
		t.Fatalf("provider saw %d calls", len(prov.calls))
	}
	if cap.stopped != 1 {
		t.Fatalf("capturer stopped %d times, want 1", cap.stopped)
	}
}

func TestServiceCancelDiscards(t *testing.T) {
	cap := &fakeCapturer{}
	prov := &fakeProvider{text: "should not appear"}
	svc := NewService(prov, cap)

	var got []string
	svc.OnTranscript(func(text string, final bool) { got = append(got, text) })

	if err := svc.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	cap.feed(makeSpeech(SampleRate, 0.05))
	svc.Cancel()

	if len(got) != 0 {
		t.Fatalf("transcripts after cancel = %v, want none", got)
	}
	if len(prov.calls) != 0 {
		t.Fatalf("provider called %d times after cancel, want 0", len(prov.calls))
	}
}

func TestServiceIgnoresShortTail(t *testing.T) {
	cap := &fakeCapturer{}
	prov := &fakeProvider{text: "noise"}
	svc := NewService(prov, cap)
	svc.OnTranscript(func(string, bool) {})

	if err := svc.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	cap.feed(makeSpeech(SampleRate/100, 0.05)) // 10ms blip

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if len(prov.calls) != 0 {
		t.Fatalf("provider transcribed a %d-sample blip", len(prov.calls[0]))
	}
}

func TestServiceDoubleStart(t *testing.T) {
	svc := NewService(&fakeProvider{}, &fakeCapturer{})
	svc.OnTranscript(func(string, bool) {})
	if err := svc.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := svc.Start(context.Background(), ""); err == nil {
		t.Fatal("second Start() succeeded, want error")
	}
	svc.Cancel()
}

func TestServiceProviderFailuresEscalate(t *testing.T) {
	cap := &fakeCapturer{}
	prov := &fakeProvider{err: errors.New("401 unauthorized")}
	svc := NewService(prov, cap)
	svc.OnTranscript(func(string, bool) {})

	var engineErr error
	svc.OnError(func(err error) { engineErr = err })

	if err := svc.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	// Three failing flushes in a row.
	for range 3 {
		cap.feed(makeSpeech(SampleRate/2, 0.05))
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		svc.Stop(ctx)
		cancel()
		svc.Start(context.Background(), "")
	}
	svc.Cancel()

	if engineErr == nil {
		t.Fatal("no engine error after repeated provider failures")
	}
}
