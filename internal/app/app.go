package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/wailsapp/wails/v3/pkg/application"

	"go.aimuz.me/murmur/capture"
	"go.aimuz.me/murmur/config"
	"go.aimuz.me/murmur/desktop"
	"go.aimuz.me/murmur/gesture"
	"go.aimuz.me/murmur/history"
	"go.aimuz.me/murmur/hotkey"
	"go.aimuz.me/murmur/internal/types"
	"go.aimuz.me/murmur/langdetect"
	"go.aimuz.me/murmur/llm"
	"go.aimuz.me/murmur/pipeline"
	"go.aimuz.me/murmur/session"
	"go.aimuz.me/murmur/stt"
	"go.aimuz.me/murmur/stt/realtime"
)

// defaultRewriteModel is used when the rewrite filter has no explicit
// model configured.
const defaultRewriteModel = "gpt-4o-mini"

// speechEngine is what both transcription backends look like to the
// wiring layer.
type speechEngine interface {
	Start(ctx context.Context, locale string) error
	Stop(ctx context.Context) error
	Cancel()
	OnTranscript(fn func(text string, final bool))
	OnError(fn func(error))
}

// Service is the application service bound to Wails. It wires config,
// the hotkey listener, the gesture recognizer, and the session
// orchestrator together and fans session state out to the frontend.
type Service struct {
	app    *application.App
	window application.Window

	cfg       *config.Config
	history   *history.Store
	providers *stt.Registry

	engine     speechEngine
	orch       *session.Orchestrator
	recognizer *gesture.Recognizer
	keys       *hotkey.Listener

	// holdSession records whether the active recording came from the
	// hold gesture (deliver on release) or the toggle gesture
	// (preview on stop).
	holdSession atomic.Bool

	version string
}

// New creates the service. Init must be called before use.
func New(version string) *Service {
	return &Service{version: version}
}

// GetVersion returns the build version.
func (s *Service) GetVersion() string {
	return s.version
}

// ─────────────────────────────────────────────────────────────────────────────
// Initialization (called from main)
// ─────────────────────────────────────────────────────────────────────────────

// Init initializes the service with references to app and indicator
// window.
func (s *Service) Init(app *application.App, window application.Window) {
	s.app = app
	s.window = window

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		cfg = config.Default()
	}
	s.cfg = cfg

	s.setupHistory()
	s.setupSpeech()
	s.setupSession()
	s.setupGesture()
}

// Shutdown cleans up resources.
func (s *Service) Shutdown() {
	if s.keys != nil {
		s.keys.Stop()
	}
	if s.orch != nil {
		s.orch.Cancel()
	}
	if s.providers != nil {
		if err := s.providers.Close(); err != nil {
			slog.Error("close speech providers", "error", err)
		}
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			slog.Error("close history", "error", err)
		}
	}
}

func (s *Service) setupHistory() {
	configDir, err := os.UserConfigDir()
	if err != nil {
		slog.Error("get config dir for history", "error", err)
		return
	}

	dir := filepath.Join(configDir, "murmur", "history")
	store, err := history.Open(dir)
	if err != nil {
		slog.Error("open history", "error", err)
		return
	}
	s.history = store
	slog.Info("history opened", "path", dir)
}

func (s *Service) setupSpeech() {
	var apiKey, baseURL string
	if cred := s.cfg.SpeechCredential(); cred != nil {
		apiKey = cred.APIKey
		baseURL = cred.BaseURL
	} else {
		slog.Warn("no speech credential configured - sessions will fail until one is added")
	}

	s.providers = stt.NewRegistry()
	s.providers.Register(stt.NewWhisper(stt.WhisperConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   s.cfg.Speech.Model,
	}))

	switch s.cfg.Speech.Engine {
	case config.EngineWhisper:
		mic, err := capture.New(stt.SampleRate)
		if err != nil {
			slog.Error("init microphone capture", "error", err)
			return
		}
		provider := s.providers.Get("whisper")
		if !provider.Ready() {
			slog.Warn("whisper provider not ready until a credential is added")
		}
		s.engine = stt.NewService(provider, mic)
		slog.Info("speech engine initialized", "engine", config.EngineWhisper)
	default:
		s.engine = realtime.NewService(apiKey)
		slog.Info("speech engine initialized", "engine", config.EngineRealtime)
	}
}

func (s *Service) setupSession() {
	if s.engine == nil {
		return
	}

	s.orch = session.New(session.Config{
		Locale:         langdetect.Canonical(s.cfg.Speech.Locale),
		AutoPaste:      s.cfg.Delivery.AutoPaste,
		PreviewTimeout: s.cfg.PreviewTimeout(),
		HintTimeout:    s.cfg.HintTimeout(),
	}, session.Deps{
		Transcriber:    engineTranscriber{eng: s.engine},
		Permissions:    deskPermissions{},
		Probe:          deskProbe{},
		Deliverer:      deskDeliverer{},
		Presenter:      indicatorPresenter{s: s},
		History:        historyRecorder{s: s},
		Chain:          s.buildChain(),
		DetectLanguage: langdetect.Detect,
	})
}

// buildChain assembles the post-processing pipeline from the filter
// configuration. Order is significant: fillers, formatting, rewrite.
func (s *Service) buildChain() *pipeline.Chain {
	var filters []pipeline.Filter
	if s.cfg.Filters.RemoveFillers {
		filters = append(filters, pipeline.NewFiller())
	}
	if s.cfg.Filters.FormatText {
		filters = append(filters, pipeline.NewFormat())
	}
	if rw := s.cfg.Filters.Rewrite; rw.Enabled {
		cred := s.cfg.RewriteCredential()
		if cred == nil {
			slog.Warn("rewrite filter enabled but no credential configured")
		} else {
			model := rw.Model
			if model == "" {
				model = defaultRewriteModel
			}
			completer := llm.NewCompleter(*cred, model, llm.Options{})
			filters = append(filters, pipeline.NewRewrite(completer, pipeline.RewriteOptions{
				SystemPrompt: rw.SystemPrompt,
				Timeout:      time.Duration(rw.TimeoutMS) * time.Millisecond,
				MinRatio:     rw.MinRatio,
				MaxRatio:     rw.MaxRatio,
			}))
		}
	}
	return pipeline.NewChain(filters...)
}

func (s *Service) setupGesture() {
	s.recognizer = gesture.New(gesture.Config{
		HoldThreshold:   s.cfg.HoldThreshold(),
		DoubleTapWindow: s.cfg.DoubleTapWindow(),
	}, s.gestureActivate, s.gestureDeactivate)

	s.keys = hotkey.NewListener(uint16(s.cfg.Gesture.ActivationKeyCode), s.recognizer.Handle)
	if err := s.keys.Start(); err != nil {
		slog.Error("start hotkey listener", "error", err)
	}

	granted := desktop.AccessibilityGranted()
	s.emit(EventAccessibilityPerm, granted)
	if !granted {
		slog.Warn("accessibility permission not granted - hotkey and paste unavailable")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Gesture → session
// ─────────────────────────────────────────────────────────────────────────────

func (s *Service) gestureActivate() {
	if s.orch == nil {
		slog.Warn("activation ignored, speech engine unavailable")
		return
	}
	// The hold path activates from StateHoldRecording; the double-tap
	// path activates before its KeyUp, from StateDoubleTapDown.
	s.holdSession.Store(s.recognizer.State() == gesture.StateHoldRecording)
	s.orch.Start()
}

func (s *Service) gestureDeactivate() {
	if s.orch == nil {
		return
	}
	if s.holdSession.Load() {
		s.orch.ConfirmAndDeliver()
	} else {
		s.orch.StopToPreview()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Session controls (bound, driven by on-screen indicator)
// ─────────────────────────────────────────────────────────────────────────────

// StopAndDeliver ends an active recording from the indicator and
// delivers immediately.
func (s *Service) StopAndDeliver() {
	if s.orch == nil {
		return
	}
	s.recognizer.Handle(gesture.Reset)
	s.orch.ConfirmAndDeliver()
}

// CancelSession discards an active recording from the indicator.
func (s *Service) CancelSession() {
	if s.orch == nil {
		return
	}
	s.recognizer.Handle(gesture.Reset)
	s.orch.Cancel()
}

// ConfirmPreview delivers the previewed text.
func (s *Service) ConfirmPreview() {
	if s.orch != nil {
		s.orch.ConfirmFromPreview()
	}
}

// DismissPreview discards the previewed text.
func (s *Service) DismissPreview() {
	if s.orch != nil {
		s.orch.DismissPreview()
	}
}

// DismissHint dismisses the paste-failure hint.
func (s *Service) DismissHint() {
	if s.orch != nil {
		s.orch.DismissHint()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// History
// ─────────────────────────────────────────────────────────────────────────────

// RecentHistory returns the n most recent dictations, newest first.
func (s *Service) RecentHistory(n int) ([]types.HistoryEntry, error) {
	if s.history == nil {
		return nil, fmt.Errorf("history unavailable")
	}
	return s.history.Recent(n)
}

// DeleteHistory removes one dictation from the history.
func (s *Service) DeleteHistory(id string) error {
	if s.history == nil {
		return fmt.Errorf("history unavailable")
	}
	if err := s.history.Delete(id); err != nil {
		return err
	}
	s.emit(EventHistoryChanged, id)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration (bound)
// ─────────────────────────────────────────────────────────────────────────────

// GetConfig returns the current configuration.
func (s *Service) GetConfig() config.Config {
	return *s.cfg
}

// SetConfig persists cfg and rewires the affected components. An
// in-flight session is cancelled first.
func (s *Service) SetConfig(cfg config.Config) error {
	if err := cfg.Save(); err != nil {
		return err
	}
	s.cfg = &cfg
	s.rewire()
	return nil
}

// rewire tears down the input and speech layers and rebuilds them from
// the current configuration.
func (s *Service) rewire() {
	if s.keys != nil {
		s.keys.Stop()
	}
	if s.orch != nil {
		s.orch.Cancel()
	}
	if s.providers != nil {
		if err := s.providers.Close(); err != nil {
			slog.Error("close speech providers", "error", err)
		}
	}
	s.engine = nil
	s.orch = nil

	s.setupSpeech()
	s.setupSession()
	s.setupGesture()
}

// ─────────────────────────────────────────────────────────────────────────────
// Credential Management (delegated to config)
// ─────────────────────────────────────────────────────────────────────────────

func (s *Service) GetCredentials() []types.APICredential {
	return s.cfg.GetCredentials()
}

func (s *Service) AddCredential(cred types.APICredential) error {
	return s.cfg.AddCredential(cred)
}

func (s *Service) UpdateCredential(id string, cred types.APICredential) error {
	return s.cfg.UpdateCredential(id, cred)
}

func (s *Service) RemoveCredential(id string) error {
	return s.cfg.RemoveCredential(id)
}

// ─────────────────────────────────────────────────────────────────────────────
// Permissions
// ─────────────────────────────────────────────────────────────────────────────

// SpeechProviderInfo describes one batch transcription provider for
// the settings UI.
type SpeechProviderInfo struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

// GetSpeechProviders lists the registered batch providers.
func (s *Service) GetSpeechProviders() []SpeechProviderInfo {
	if s.providers == nil {
		return nil
	}
	list := s.providers.List()
	result := make([]SpeechProviderInfo, len(list))
	for i, p := range list {
		result[i] = SpeechProviderInfo{Name: p.Name(), Ready: p.Ready()}
	}
	return result
}

// PermissionStatus is the OS permission state surfaced to settings.
type PermissionStatus struct {
	Microphone        bool `json:"microphone"`
	SpeechRecognition bool `json:"speechRecognition"`
	Accessibility     bool `json:"accessibility"`
}

// GetPermissions probes every permission the app depends on.
func (s *Service) GetPermissions() PermissionStatus {
	return PermissionStatus{
		Microphone:        desktop.MicrophoneGranted(),
		SpeechRecognition: desktop.SpeechRecognitionGranted(),
		Accessibility:     desktop.AccessibilityGranted(),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal plumbing
// ─────────────────────────────────────────────────────────────────────────────

func (s *Service) emit(name string, data any) {
	if s.app != nil {
		s.app.Event.Emit(name, data)
	}
}

// engineTranscriber adapts a speechEngine to session.Transcriber.
type engineTranscriber struct {
	eng speechEngine
}

func (t engineTranscriber) Start(ctx context.Context, locale string) error {
	return t.eng.Start(ctx, locale)
}

func (t engineTranscriber) Stop(ctx context.Context) error { return t.eng.Stop(ctx) }
func (t engineTranscriber) Cancel()                        { t.eng.Cancel() }

func (t engineTranscriber) OnResult(fn func(session.Result)) {
	t.eng.OnTranscript(func(text string, final bool) {
		fn(session.Result{Text: text, Final: final})
	})
}

func (t engineTranscriber) OnError(fn func(error)) {
	t.eng.OnError(fn)
}

// indicatorPresenter shows session state through the floating
// indicator window and the event bus.
type indicatorPresenter struct {
	s *Service
}

func (p indicatorPresenter) Show(snap types.Snapshot) {
	p.s.emit(EventSessionState, snap)
	if p.s.window != nil {
		p.s.window.Show()
	}
}

func (p indicatorPresenter) Hide() {
	p.s.emit(EventSessionState, types.Snapshot{
		Phase:     types.PhaseIdle,
		Timestamp: time.Now().UnixMilli(),
	})
	if p.s.window != nil {
		p.s.window.Hide()
	}
}

// historyRecorder adapts the Badger store to session.Recorder. The
// write happens off the session path so a slow disk cannot delay
// delivery.
type historyRecorder struct {
	s *Service
}

func (r historyRecorder) Record(entry types.HistoryEntry) {
	if r.s.history == nil {
		return
	}
	go func() {
		if err := r.s.history.Record(entry); err != nil {
			slog.Error("record history", "error", err)
			return
		}
		r.s.emit(EventHistoryChanged, entry.ID)
	}()
}
