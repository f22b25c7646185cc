package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.aimuz.me/murmur/internal/types"
	"go.aimuz.me/murmur/pipeline"
)

const (
	testPreview = 60 * time.Millisecond
	testHint    = 60 * time.Millisecond
	afterTimer  = 150 * time.Millisecond
)

type fakeTranscriber struct {
	mu        sync.Mutex
	onResult  func(Result)
	onError   func(error)
	started   int
	stopped   int
	cancelled int
	startErr  error
	onStop    func() // runs inside Stop, before it returns
}

func (f *fakeTranscriber) Start(ctx context.Context, locale string) error {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
	return f.startErr
}

func (f *fakeTranscriber) Stop(ctx context.Context) error {
	f.mu.Lock()
	f.stopped++
	hook := f.onStop
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeTranscriber) Cancel() {
	f.mu.Lock()
	f.cancelled++
	f.mu.Unlock()
}

func (f *fakeTranscriber) OnResult(fn func(Result)) { f.onResult = fn }
func (f *fakeTranscriber) OnError(fn func(error))   { f.onError = fn }

func (f *fakeTranscriber) emit(text string, final bool) {
	f.onResult(Result{Text: text, Final: final})
}

type fakePerms struct {
	mic, speech bool
}

func (f *fakePerms) MicrophoneGranted() bool        { return f.mic }
func (f *fakePerms) SpeechRecognitionGranted() bool { return f.speech }

type fakeProbe struct {
	mu        sync.Mutex
	frontmost types.AppRef
	editable  bool
	text      string
	vocab     []string
}

func (f *fakeProbe) Frontmost() types.AppRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frontmost
}

func (f *fakeProbe) setFrontmost(app types.AppRef) {
	f.mu.Lock()
	f.frontmost = app
	f.mu.Unlock()
}

func (f *fakeProbe) HasFocusedEditableField(types.AppRef) bool { return f.editable }

func (f *fakeProbe) SurroundingText(types.AppRef) (string, bool) {
	return f.text, f.text != ""
}

func (f *fakeProbe) ScreenVocabulary(types.AppRef) []string { return f.vocab }

type fakeDeliverer struct {
	mu          sync.Mutex
	pasted      []string
	pasteTarget types.AppRef
	pasteErr    error
	clipboard   string
	activated   []types.AppRef
	cues        int
	onCue       func() // runs inside FailureCue, after counting
}

func (f *fakeDeliverer) Paste(_ context.Context, text string, app types.AppRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pasteErr != nil {
		return f.pasteErr
	}
	f.pasted = append(f.pasted, text)
	f.pasteTarget = app
	return nil
}

func (f *fakeDeliverer) WriteClipboard(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clipboard = text
	return nil
}

func (f *fakeDeliverer) Activate(app types.AppRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, app)
	return nil
}

func (f *fakeDeliverer) FailureCue() {
	f.mu.Lock()
	f.cues++
	hook := f.onCue
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
}

type fakePresenter struct {
	mu    sync.Mutex
	shown []types.Snapshot
	hides int
}

func (f *fakePresenter) Show(s types.Snapshot) {
	f.mu.Lock()
	f.shown = append(f.shown, s)
	f.mu.Unlock()
}

func (f *fakePresenter) Hide() {
	f.mu.Lock()
	f.hides++
	f.mu.Unlock()
}

func (f *fakePresenter) lastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.shown) - 1; i >= 0; i-- {
		if f.shown[i].Error != "" {
			return f.shown[i].Error
		}
	}
	return ""
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []types.HistoryEntry
}

func (f *fakeRecorder) Record(e types.HistoryEntry) {
	f.mu.Lock()
	f.entries = append(f.entries, e)
	f.mu.Unlock()
}

// upperFilter makes processed text distinguishable from raw text.
type upperFilter struct{}

func (upperFilter) Name() string { return "upper" }

func (upperFilter) Apply(_ context.Context, text string, _ pipeline.Context) (string, error) {
	return strings.ToUpper(text), nil
}

// hookFilter runs fn mid-pipeline, passing the filter's context.
type hookFilter struct {
	fn func(context.Context)
}

func (hookFilter) Name() string { return "hook" }

func (h hookFilter) Apply(ctx context.Context, text string, _ pipeline.Context) (string, error) {
	if h.fn != nil {
		h.fn(ctx)
	}
	return text, nil
}

type fixture struct {
	orch    *Orchestrator
	engine  *fakeTranscriber
	perms   *fakePerms
	probe   *fakeProbe
	deliver *fakeDeliverer
	present *fakePresenter
	history *fakeRecorder
}

func newFixture(cfg Config) *fixture {
	return newFixtureChain(cfg, pipeline.NewChain(upperFilter{}))
}

func newFixtureChain(cfg Config, chain *pipeline.Chain) *fixture {
	f := &fixture{
		engine:  &fakeTranscriber{},
		perms:   &fakePerms{mic: true, speech: true},
		probe:   &fakeProbe{frontmost: types.AppRef{BundleID: "com.example.notes", Name: "Notes"}, editable: true},
		deliver: &fakeDeliverer{},
		present: &fakePresenter{},
		history: &fakeRecorder{},
	}
	if cfg.PreviewTimeout == 0 {
		cfg.PreviewTimeout = testPreview
	}
	if cfg.HintTimeout == 0 {
		cfg.HintTimeout = testHint
	}
	f.orch = New(cfg, Deps{
		Transcriber: f.engine,
		Permissions: f.perms,
		Probe:       f.probe,
		Deliverer:   f.deliver,
		Presenter:   f.present,
		History:     f.history,
		Chain:       chain,
	})
	return f
}

func TestHoldDictateDelivers(t *testing.T) {
	f := newFixture(Config{AutoPaste: true})

	f.orch.Start()
	if got := f.orch.Phase(); got != types.PhaseRecording {
		t.Fatalf("phase after start = %v, want recording", got)
	}
	f.engine.emit("hello", false)
	f.engine.emit("hello world", true)

	f.orch.ConfirmAndDeliver()

	if got := f.orch.Phase(); got != types.PhaseIdle {
		t.Fatalf("phase after deliver = %v, want idle", got)
	}
	if f.engine.stopped != 1 {
		t.Fatalf("stopped = %d, want 1", f.engine.stopped)
	}
	if len(f.deliver.pasted) != 1 || f.deliver.pasted[0] != "HELLO WORLD" {
		t.Fatalf("pasted = %v, want [HELLO WORLD]", f.deliver.pasted)
	}
	if len(f.history.entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(f.history.entries))
	}
	e := f.history.entries[0]
	if e.RawText != "hello world" || e.DeliveredText != "HELLO WORLD" {
		t.Fatalf("history entry = %+v", e)
	}
	if e.AppBundleID != "com.example.notes" {
		t.Fatalf("history app = %q, want com.example.notes", e.AppBundleID)
	}
	if f.present.hides == 0 {
		t.Fatal("indicator never hidden after delivery")
	}
}

func TestMicrophoneDeniedBlocksStart(t *testing.T) {
	f := newFixture(Config{})
	f.perms.mic = false

	f.orch.Start()

	if got := f.orch.Phase(); got != types.PhaseIdle {
		t.Fatalf("phase = %v, want idle", got)
	}
	if f.engine.started != 0 {
		t.Fatalf("transcriber started %d times, want 0", f.engine.started)
	}
	if f.present.lastError() == "" {
		t.Fatal("no error surfaced for missing microphone permission")
	}
}

func TestSpeechPermissionDeniedBlocksStart(t *testing.T) {
	f := newFixture(Config{})
	f.perms.speech = false

	f.orch.Start()

	if f.engine.started != 0 {
		t.Fatalf("transcriber started %d times, want 0", f.engine.started)
	}
	if f.present.lastError() == "" {
		t.Fatal("no error surfaced for missing speech permission")
	}
}

func TestNoEditableFieldFallsBackToClipboard(t *testing.T) {
	f := newFixture(Config{AutoPaste: true})
	f.probe.editable = false

	f.orch.Start()
	f.engine.emit("take a note", true)
	f.orch.ConfirmAndDeliver()

	if len(f.deliver.pasted) != 0 {
		t.Fatalf("paste attempted into non-editable context: %v", f.deliver.pasted)
	}
	if f.deliver.clipboard != "TAKE A NOTE" {
		t.Fatalf("clipboard = %q, want TAKE A NOTE", f.deliver.clipboard)
	}
	if f.deliver.cues != 1 {
		t.Fatalf("failure cues = %d, want 1", f.deliver.cues)
	}
	if got := f.orch.Phase(); got != types.PhasePasteFailed {
		t.Fatalf("phase = %v, want paste-failed", got)
	}

	time.Sleep(afterTimer)
	if got := f.orch.Phase(); got != types.PhaseIdle {
		t.Fatalf("phase after hint timeout = %v, want idle", got)
	}
}

func TestPasteErrorFallsBackToClipboard(t *testing.T) {
	f := newFixture(Config{AutoPaste: true})
	f.deliver.pasteErr = errors.New("injection blocked")

	f.orch.Start()
	f.engine.emit("hold on", true)
	f.orch.ConfirmAndDeliver()

	if f.deliver.clipboard != "HOLD ON" {
		t.Fatalf("clipboard = %q, want HOLD ON", f.deliver.clipboard)
	}
	if got := f.orch.Phase(); got != types.PhasePasteFailed {
		t.Fatalf("phase = %v, want paste-failed", got)
	}
}

func TestTargetAppLatchedAtStop(t *testing.T) {
	f := newFixture(Config{AutoPaste: true})
	other := types.AppRef{BundleID: "com.example.browser", Name: "Browser"}
	// Focus moves while the engine flushes; delivery must still go to
	// the app that was frontmost when the user confirmed.
	f.engine.onStop = func() { f.probe.setFrontmost(other) }

	f.orch.Start()
	f.engine.emit("latched", true)
	f.orch.ConfirmAndDeliver()

	if f.deliver.pasteTarget.BundleID != "com.example.notes" {
		t.Fatalf("paste target = %q, want com.example.notes", f.deliver.pasteTarget.BundleID)
	}
	if f.history.entries[0].AppBundleID != "com.example.notes" {
		t.Fatalf("history app = %q, want com.example.notes", f.history.entries[0].AppBundleID)
	}
}

func TestPreviewConfirm(t *testing.T) {
	f := newFixture(Config{AutoPaste: true})

	f.orch.Start()
	f.engine.emit("check this first", true)
	f.orch.StopToPreview()

	if got := f.orch.Phase(); got != types.PhasePreviewing {
		t.Fatalf("phase = %v, want previewing", got)
	}
	if len(f.deliver.pasted) != 0 {
		t.Fatal("text delivered before confirmation")
	}
	if len(f.history.entries) != 1 {
		t.Fatalf("history entries = %d, want 1 (written at stop, not at confirm)", len(f.history.entries))
	}
	if len(f.deliver.activated) == 0 {
		t.Fatal("target app not re-activated for preview")
	}

	f.orch.ConfirmFromPreview()

	if len(f.deliver.pasted) != 1 || f.deliver.pasted[0] != "CHECK THIS FIRST" {
		t.Fatalf("pasted = %v, want [CHECK THIS FIRST]", f.deliver.pasted)
	}
	if len(f.history.entries) != 1 {
		t.Fatalf("history entries = %d after confirm, want 1", len(f.history.entries))
	}
}

func TestPreviewDismissKeepsHistory(t *testing.T) {
	f := newFixture(Config{})

	f.orch.Start()
	f.engine.emit("never mind", true)
	f.orch.StopToPreview()
	f.orch.DismissPreview()

	if got := f.orch.Phase(); got != types.PhaseIdle {
		t.Fatalf("phase = %v, want idle", got)
	}
	if len(f.deliver.pasted) != 0 {
		t.Fatal("dismissed preview was delivered")
	}
	if len(f.history.entries) != 1 {
		t.Fatalf("history entries = %d, want 1 regardless of dismissal", len(f.history.entries))
	}
}

func TestPreviewExpires(t *testing.T) {
	f := newFixture(Config{})

	f.orch.Start()
	f.engine.emit("too slow", true)
	f.orch.StopToPreview()

	time.Sleep(afterTimer)
	if got := f.orch.Phase(); got != types.PhaseIdle {
		t.Fatalf("phase after preview timeout = %v, want idle", got)
	}
	if len(f.deliver.pasted) != 0 {
		t.Fatal("expired preview was delivered")
	}
}

func TestCancelDiscards(t *testing.T) {
	f := newFixture(Config{})

	f.orch.Start()
	f.engine.emit("discard me", true)
	f.orch.Cancel()

	if got := f.orch.Phase(); got != types.PhaseIdle {
		t.Fatalf("phase = %v, want idle", got)
	}
	if f.engine.cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", f.engine.cancelled)
	}
	if len(f.history.entries) != 0 {
		t.Fatal("cancelled session wrote history")
	}
	if f.deliver.clipboard != "" || len(f.deliver.pasted) != 0 {
		t.Fatal("cancelled session delivered text")
	}
}

func TestEmptyTranscriptDeliversNothing(t *testing.T) {
	f := newFixture(Config{})

	f.orch.Start()
	f.orch.ConfirmAndDeliver()

	if got := f.orch.Phase(); got != types.PhaseIdle {
		t.Fatalf("phase = %v, want idle", got)
	}
	if len(f.history.entries) != 0 {
		t.Fatal("empty session wrote history")
	}
	if len(f.deliver.pasted) != 0 || f.deliver.clipboard != "" {
		t.Fatal("empty session delivered text")
	}
}

func TestEngineErrorAbortsSession(t *testing.T) {
	f := newFixture(Config{})

	f.orch.Start()
	f.engine.onError(errors.New("stream dropped"))

	if got := f.orch.Phase(); got != types.PhaseIdle {
		t.Fatalf("phase = %v, want idle", got)
	}
	if f.engine.cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", f.engine.cancelled)
	}
	if f.present.lastError() == "" {
		t.Fatal("engine failure not surfaced")
	}

	// Next gesture starts cleanly.
	f.orch.Start()
	if got := f.orch.Phase(); got != types.PhaseRecording {
		t.Fatalf("phase after restart = %v, want recording", got)
	}
}

func TestStartDismissesLingeringPreview(t *testing.T) {
	f := newFixture(Config{})

	f.orch.Start()
	f.engine.emit("old preview", true)
	f.orch.StopToPreview()
	f.orch.Start()

	if got := f.orch.Phase(); got != types.PhaseRecording {
		t.Fatalf("phase = %v, want recording", got)
	}
	if f.engine.started != 2 {
		t.Fatalf("started = %d, want 2", f.engine.started)
	}

	// The superseded preview must never fire its timer into the new
	// session.
	time.Sleep(afterTimer)
	if got := f.orch.Phase(); got != types.PhaseRecording {
		t.Fatalf("phase after stale timer window = %v, want recording", got)
	}
}

func TestResultsIgnoredOutsideRecording(t *testing.T) {
	f := newFixture(Config{})

	f.orch.Start()
	f.orch.Cancel()
	f.engine.emit("late straggler", true)

	f.orch.Start()
	f.orch.ConfirmAndDeliver()
	if len(f.history.entries) != 0 {
		t.Fatalf("stale result leaked into new session: %+v", f.history.entries)
	}
}

func TestManualPasteMode(t *testing.T) {
	f := newFixture(Config{AutoPaste: false})

	f.orch.Start()
	f.engine.emit("copy instead", true)
	f.orch.ConfirmAndDeliver()

	if len(f.deliver.pasted) != 0 {
		t.Fatalf("paste used in manual mode: %v", f.deliver.pasted)
	}
	if f.deliver.clipboard != "COPY INSTEAD" {
		t.Fatalf("clipboard = %q, want COPY INSTEAD", f.deliver.clipboard)
	}
	if len(f.deliver.activated) == 0 {
		t.Fatal("target app not re-activated in manual mode")
	}
	if got := f.orch.Phase(); got != types.PhaseIdle {
		t.Fatalf("phase = %v, want idle", got)
	}
}

func TestPasteFailureRaceLeavesNewSessionRecording(t *testing.T) {
	f := newFixture(Config{AutoPaste: true})
	f.probe.editable = false
	// A new hold lands exactly while the previous delivery is failing.
	f.deliver.onCue = func() { f.orch.Start() }

	f.orch.Start()
	f.engine.emit("first take", true)
	f.orch.ConfirmAndDeliver()

	if got := f.orch.Phase(); got != types.PhaseRecording {
		t.Fatalf("phase = %v, want recording (stale delivery clobbered new session)", got)
	}
	if f.engine.started != 2 {
		t.Fatalf("started = %d, want 2", f.engine.started)
	}
	// The fallback text still reached the clipboard.
	if f.deliver.clipboard != "FIRST TAKE" {
		t.Fatalf("clipboard = %q, want FIRST TAKE", f.deliver.clipboard)
	}
}

func TestCancelDuringFilterSkipsHistory(t *testing.T) {
	var f *fixture
	f = newFixtureChain(Config{}, pipeline.NewChain(hookFilter{
		fn: func(context.Context) { f.orch.Cancel() },
	}))

	f.orch.Start()
	f.engine.emit("changed my mind", true)
	f.orch.ConfirmAndDeliver()

	if got := f.orch.Phase(); got != types.PhaseIdle {
		t.Fatalf("phase = %v, want idle", got)
	}
	if len(f.history.entries) != 0 {
		t.Fatalf("cancelled session wrote history: %+v", f.history.entries)
	}
	if len(f.deliver.pasted) != 0 || f.deliver.clipboard != "" {
		t.Fatal("cancelled session delivered text")
	}
}

func TestFilterDeadlineIndependentOfFlush(t *testing.T) {
	var ctxErr error
	var f *fixture
	f = newFixtureChain(Config{StopTimeout: 50 * time.Millisecond}, pipeline.NewChain(hookFilter{
		fn: func(ctx context.Context) { ctxErr = ctx.Err() },
	}))
	// The engine flush overruns the stop deadline entirely.
	f.engine.onStop = func() { time.Sleep(80 * time.Millisecond) }

	f.orch.Start()
	f.engine.emit("slow flush", true)
	f.orch.ConfirmAndDeliver()

	if ctxErr != nil {
		t.Fatalf("filter context already expired after slow flush: %v", ctxErr)
	}
}

func TestSnapshotTimestampsAreUnixMillis(t *testing.T) {
	f := newFixture(Config{})
	before := time.Now().UnixMilli()

	f.orch.Start()
	f.engine.emit("tick", false)

	if len(f.present.shown) == 0 {
		t.Fatal("no snapshots shown")
	}
	for _, s := range f.present.shown {
		if s.Timestamp < before {
			t.Fatalf("snapshot timestamp = %d, want >= %d (unix milliseconds)", s.Timestamp, before)
		}
	}
}

func TestBufferRegions(t *testing.T) {
	var b Buffer
	b.SetVolatile("hel")
	if got := b.DisplayText(); got != "hel" {
		t.Fatalf("display = %q, want hel", got)
	}
	b.AppendFinalized("hello")
	if got := b.DisplayText(); got != "hello" {
		t.Fatalf("display = %q, want hello (volatile cleared)", got)
	}
	b.SetVolatile("wor")
	if got := b.DisplayText(); got != "hello wor" {
		t.Fatalf("display = %q, want %q", got, "hello wor")
	}
	b.AppendFinalized("world")
	if got := b.Text(); got != "hello world" {
		t.Fatalf("text = %q, want %q", got, "hello world")
	}
}
