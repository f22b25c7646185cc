package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/murmur/internal/types"
	"go.aimuz.me/murmur/pipeline"
)

// Config controls session behavior.
type Config struct {
	// Locale is the recognition locale passed to the transcriber,
	// empty for auto-detect.
	Locale string
	// AutoPaste injects text directly into the focused field. When
	// false, delivery writes the clipboard and re-activates the target.
	AutoPaste bool
	// PreviewTimeout discards an unconfirmed preview.
	PreviewTimeout time.Duration
	// HintTimeout dismisses the paste-failure hint.
	HintTimeout time.Duration
	// StopTimeout bounds the engine flush when a session ends.
	StopTimeout time.Duration
}

// DefaultConfig returns the standard session configuration.
func DefaultConfig() Config {
	return Config{
		AutoPaste:      true,
		PreviewTimeout: 8 * time.Second,
		HintTimeout:    4 * time.Second,
		StopTimeout:    10 * time.Second,
	}
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Transcriber Transcriber
	Permissions Permissions
	Probe       ContextProbe
	Deliverer   Deliverer
	Presenter   Presenter
	History     Recorder
	Chain       *pipeline.Chain
	// DetectLanguage tags a transcript with a BCP-47 language code,
	// empty when unknown. Optional.
	DetectLanguage func(string) string
}

// Orchestrator drives one dictation session at a time through
// recording, post-processing, and delivery. All entry points and
// callbacks are serialized on one mutex; timers re-enter through the
// same door and carry a generation so stale firings are no-ops.
type Orchestrator struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps

	phase     types.SessionPhase
	buf       *Buffer
	targetApp types.AppRef
	preview   string
	lastErr   string

	// gen invalidates in-flight work and armed timers whenever the
	// session reaches a new resting state.
	gen   uint64
	timer *time.Timer
}

// New wires an orchestrator and registers its transcriber callbacks.
func New(cfg Config, deps Deps) *Orchestrator {
	def := DefaultConfig()
	if cfg.PreviewTimeout <= 0 {
		cfg.PreviewTimeout = def.PreviewTimeout
	}
	if cfg.HintTimeout <= 0 {
		cfg.HintTimeout = def.HintTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	o := &Orchestrator{cfg: cfg, deps: deps, phase: types.PhaseIdle}
	deps.Transcriber.OnResult(o.onResult)
	deps.Transcriber.OnError(o.onEngineError)
	return o
}

// Phase returns the current session phase.
func (o *Orchestrator) Phase() types.SessionPhase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Start begins a recording session. A lingering preview or hint is
// dismissed first; a session already recording is left alone. When a
// required permission is missing, no session starts and the indicator
// shows the reason.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	switch o.phase {
	case types.PhasePreviewing:
		o.toIdleLocked()
	case types.PhasePasteFailed:
		o.toIdleLocked()
	case types.PhaseRecording:
		o.mu.Unlock()
		return
	}
	if !o.deps.Permissions.MicrophoneGranted() {
		o.failStartLocked("microphone access is not granted")
		return
	}
	if !o.deps.Permissions.SpeechRecognitionGranted() {
		o.failStartLocked("speech recognition access is not granted")
		return
	}
	o.buf = &Buffer{}
	o.targetApp = types.AppRef{}
	o.preview = ""
	o.lastErr = ""
	o.phase = types.PhaseRecording
	gen := o.nextGenLocked()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.deps.Presenter.Show(snap)
	if err := o.deps.Transcriber.Start(context.Background(), o.cfg.Locale); err != nil {
		slog.Error("start transcriber", "error", err)
		o.mu.Lock()
		if o.gen == gen {
			o.lastErr = "speech engine failed to start"
			snap := o.snapshotLocked()
			snap.Error = o.lastErr
			o.toIdleLocked()
			o.mu.Unlock()
			o.deps.Presenter.Show(snap)
			o.deps.Presenter.Hide()
			return
		}
		o.mu.Unlock()
	}
}

// Cancel discards the current recording without producing text.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.phase != types.PhaseRecording {
		o.mu.Unlock()
		return
	}
	o.toIdleLocked()
	o.mu.Unlock()

	o.deps.Transcriber.Cancel()
	o.deps.Presenter.Hide()
}

// ConfirmAndDeliver ends the recording and delivers the processed
// transcript into the app that was frontmost at the moment of the call.
func (o *Orchestrator) ConfirmAndDeliver() {
	o.finish(false)
}

// StopToPreview ends the recording and holds the processed transcript
// in a preview for explicit confirmation.
func (o *Orchestrator) StopToPreview() {
	o.finish(true)
}

// ConfirmFromPreview delivers the previewed text to the app latched at
// stop time. History was already written when the preview was built.
func (o *Orchestrator) ConfirmFromPreview() {
	o.mu.Lock()
	if o.phase != types.PhasePreviewing {
		o.mu.Unlock()
		return
	}
	text := o.preview
	target := o.targetApp
	o.toIdleLocked()
	gen := o.gen
	o.mu.Unlock()

	o.deliver(text, target, gen)
}

// DismissPreview discards the previewed text. The history entry is kept.
func (o *Orchestrator) DismissPreview() {
	o.mu.Lock()
	if o.phase != types.PhasePreviewing {
		o.mu.Unlock()
		return
	}
	o.toIdleLocked()
	o.mu.Unlock()

	o.deps.Presenter.Hide()
}

// DismissHint hides the paste-failure hint; the text stays on the
// clipboard.
func (o *Orchestrator) DismissHint() {
	o.mu.Lock()
	if o.phase != types.PhasePasteFailed {
		o.mu.Unlock()
		return
	}
	o.toIdleLocked()
	o.mu.Unlock()

	o.deps.Presenter.Hide()
}

// finish runs the shared stop-and-process path. The target app is
// latched before anything async happens and never re-read afterwards,
// even if focus moves while the engine flushes or filters run.
func (o *Orchestrator) finish(toPreview bool) {
	o.mu.Lock()
	if o.phase != types.PhaseRecording {
		o.mu.Unlock()
		return
	}
	target := o.deps.Probe.Frontmost()
	o.targetApp = target
	gen := o.gen
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.StopTimeout)
	defer cancel()
	if err := o.deps.Transcriber.Stop(ctx); err != nil {
		slog.Warn("stop transcriber", "error", err)
	}

	o.mu.Lock()
	if o.gen != gen || o.phase != types.PhaseRecording {
		// Cancelled or failed while flushing.
		o.mu.Unlock()
		return
	}
	raw := o.buf.Text()
	o.mu.Unlock()

	if raw == "" {
		o.mu.Lock()
		if o.gen == gen {
			o.toIdleLocked()
		}
		o.mu.Unlock()
		o.deps.Presenter.Hide()
		return
	}

	lang := ""
	if o.deps.DetectLanguage != nil {
		lang = o.deps.DetectLanguage(raw)
	}
	pctx := pipeline.Context{Language: lang}
	if text, ok := o.deps.Probe.SurroundingText(target); ok {
		pctx.SurroundingText = text
	}
	pctx.Vocabulary = o.deps.Probe.ScreenVocabulary(target)

	processed := raw
	if o.deps.Chain != nil {
		// The filters run on their own deadline, not on whatever the
		// engine flush left of the stop context.
		pipeCtx, pipeCancel := context.WithTimeout(context.Background(), o.cfg.StopTimeout)
		processed = o.deps.Chain.Process(pipeCtx, raw, pctx)
		pipeCancel()
	}
	if processed == "" {
		processed = raw
	}

	entry := types.HistoryEntry{
		ID:            uuid.NewString(),
		RawText:       raw,
		DeliveredText: processed,
		AppBundleID:   target.BundleID,
		AppName:       target.Name,
		Language:      lang,
		CreatedAt:     time.Now(),
	}

	o.mu.Lock()
	if o.gen != gen || o.phase != types.PhaseRecording {
		// Cancelled while the filters ran; the entry is discarded.
		o.mu.Unlock()
		return
	}
	if toPreview {
		o.preview = processed
		o.phase = types.PhasePreviewing
		pgen := o.nextGenLocked()
		o.armLocked(o.cfg.PreviewTimeout, pgen, o.previewElapsed)
		snap := o.snapshotLocked()
		o.mu.Unlock()

		o.deps.History.Record(entry)
		// The indicator takes focus while previewing; hand it back so
		// confirmation lands where the user was typing.
		if err := o.deps.Deliverer.Activate(target); err != nil {
			slog.Warn("activate target app", "error", err, "app", target.Name)
		}
		o.deps.Presenter.Show(snap)
		return
	}
	o.toIdleLocked()
	dgen := o.gen
	o.mu.Unlock()

	o.deps.History.Record(entry)
	o.deliver(processed, target, dgen)
}

// deliver places text into target, falling back to clipboard plus an
// audible cue and a timed hint when injection is impossible. gen is the
// generation current when the caller left its resting state; if a new
// session has claimed the orchestrator since, the fallback text stays
// on the clipboard but no state is touched.
func (o *Orchestrator) deliver(text string, target types.AppRef, gen uint64) {
	if o.deps.Probe.HasFocusedEditableField(target) {
		var err error
		if o.cfg.AutoPaste {
			err = o.deps.Deliverer.Paste(context.Background(), text, target)
		} else {
			if err = o.deps.Deliverer.WriteClipboard(text); err == nil {
				err = o.deps.Deliverer.Activate(target)
			}
		}
		if err == nil {
			o.mu.Lock()
			current := o.gen == gen
			o.mu.Unlock()
			if current {
				o.deps.Presenter.Hide()
			}
			return
		}
		slog.Warn("deliver text", "error", err, "app", target.Name)
	}

	if err := o.deps.Deliverer.WriteClipboard(text); err != nil {
		slog.Error("write clipboard", "error", err)
	}
	o.deps.Deliverer.FailureCue()

	o.mu.Lock()
	if o.gen != gen {
		// A newer session owns the state now.
		o.mu.Unlock()
		return
	}
	o.phase = types.PhasePasteFailed
	o.lastErr = ""
	hgen := o.nextGenLocked()
	o.armLocked(o.cfg.HintTimeout, hgen, o.hintElapsed)
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.deps.Presenter.Show(snap)
}

// onResult handles transcript updates from the engine. Updates arriving
// outside a recording session are dropped.
func (o *Orchestrator) onResult(res Result) {
	o.mu.Lock()
	if o.phase != types.PhaseRecording {
		o.mu.Unlock()
		return
	}
	if res.Final {
		o.buf.AppendFinalized(res.Text)
	} else {
		o.buf.SetVolatile(res.Text)
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.deps.Presenter.Show(snap)
}

// onEngineError aborts an in-flight session. The app stays usable; the
// next gesture starts fresh.
func (o *Orchestrator) onEngineError(err error) {
	slog.Error("speech engine", "error", err)
	o.mu.Lock()
	if o.phase != types.PhaseRecording {
		o.mu.Unlock()
		return
	}
	o.toIdleLocked()
	o.lastErr = "speech engine failed"
	snap := o.snapshotLocked()
	snap.Error = o.lastErr
	o.mu.Unlock()

	o.deps.Transcriber.Cancel()
	o.deps.Presenter.Show(snap)
	o.deps.Presenter.Hide()
}

func (o *Orchestrator) previewElapsed(gen uint64) {
	o.mu.Lock()
	if o.gen != gen || o.phase != types.PhasePreviewing {
		o.mu.Unlock()
		return
	}
	o.toIdleLocked()
	o.mu.Unlock()

	o.deps.Presenter.Hide()
}

func (o *Orchestrator) hintElapsed(gen uint64) {
	o.mu.Lock()
	if o.gen != gen || o.phase != types.PhasePasteFailed {
		o.mu.Unlock()
		return
	}
	o.toIdleLocked()
	o.mu.Unlock()

	o.deps.Presenter.Hide()
}

// failStartLocked reports a missing permission without starting a
// session. Unlocks o.mu.
func (o *Orchestrator) failStartLocked(reason string) {
	o.lastErr = reason
	snap := o.snapshotLocked()
	snap.Error = reason
	o.mu.Unlock()

	slog.Warn("session start refused", "reason", reason)
	o.deps.Presenter.Show(snap)
	o.deps.Presenter.Hide()
}

// toIdleLocked returns to the resting state and invalidates any armed
// timer and in-flight processing.
func (o *Orchestrator) toIdleLocked() {
	o.phase = types.PhaseIdle
	o.buf = nil
	o.preview = ""
	o.nextGenLocked()
}

// nextGenLocked bumps the generation and stops the armed timer, if any.
func (o *Orchestrator) nextGenLocked() uint64 {
	o.gen++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	return o.gen
}

// armLocked schedules fn(gen) after d. The callback re-enters through
// the mutex and checks gen itself.
func (o *Orchestrator) armLocked(d time.Duration, gen uint64, fn func(uint64)) {
	o.timer = time.AfterFunc(d, func() { fn(gen) })
}

func (o *Orchestrator) snapshotLocked() types.Snapshot {
	snap := types.Snapshot{Phase: o.phase, Timestamp: time.Now().UnixMilli()}
	switch o.phase {
	case types.PhaseRecording:
		if o.buf != nil {
			snap.DisplayText = o.buf.DisplayText()
		}
	case types.PhasePreviewing:
		snap.PreviewText = o.preview
	}
	return snap
}
