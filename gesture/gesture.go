// Package gesture turns activation-key state changes into start/stop
// dictation callbacks, disambiguating hold-to-record from
// double-tap-to-toggle with two competing timers.
package gesture

import (
	"sync"
	"time"
)

// EventType is a state change of the activation key as reported by the
// global input hook.
type EventType int

const (
	// KeyDown means the activation key entered the held set.
	KeyDown EventType = iota
	// KeyUp means the activation key left the held set.
	KeyUp
	// OtherModifier means another modifier was engaged while the
	// activation key is still held. It is not a release.
	OtherModifier
	// Reset forces the recognizer back to idle without firing callbacks.
	// Used when the session was ended by other means, e.g. an on-screen
	// control.
	Reset
)

// State is the recognizer state. Exactly one timer may be armed, and only
// in StateFirstDown (hold timer) or StateAwaitingSecondTap (tap timer).
type State int

const (
	StateIdle State = iota
	StateFirstDown
	StateAwaitingSecondTap
	StateHoldRecording
	StateDoubleTapDown
	StateToggleRecording
	StateToggleTapDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFirstDown:
		return "first-down"
	case StateAwaitingSecondTap:
		return "awaiting-second-tap"
	case StateHoldRecording:
		return "hold-recording"
	case StateDoubleTapDown:
		return "double-tap-down"
	case StateToggleRecording:
		return "toggle-recording"
	case StateToggleTapDown:
		return "toggle-tap-down"
	}
	return "unknown"
}

// Recording reports whether the state represents an active dictation.
func (s State) Recording() bool {
	switch s {
	case StateHoldRecording, StateDoubleTapDown, StateToggleRecording, StateToggleTapDown:
		return true
	}
	return false
}

// Config holds gesture timing parameters.
type Config struct {
	// HoldThreshold is how long the key must stay down before the hold
	// gesture starts recording.
	HoldThreshold time.Duration
	// DoubleTapWindow is how long after a quick tap a second tap still
	// counts as a double tap.
	DoubleTapWindow time.Duration
}

// DefaultConfig returns the default gesture timings.
func DefaultConfig() Config {
	return Config{
		HoldThreshold:   300 * time.Millisecond,
		DoubleTapWindow: 300 * time.Millisecond,
	}
}

// Recognizer is the activation-key state machine. All mutation is
// serialized on its mutex; timer callbacks re-enter the same handler and
// are discarded when stale via a generation counter.
type Recognizer struct {
	mu  sync.Mutex
	cfg Config

	state State
	timer *time.Timer
	gen   uint64

	onActivate   func()
	onDeactivate func()
}

// New creates a Recognizer. onActivate and onDeactivate are invoked
// outside the recognizer lock, at most once per recording session.
func New(cfg Config, onActivate, onDeactivate func()) *Recognizer {
	if cfg.HoldThreshold <= 0 {
		cfg.HoldThreshold = DefaultConfig().HoldThreshold
	}
	if cfg.DoubleTapWindow <= 0 {
		cfg.DoubleTapWindow = DefaultConfig().DoubleTapWindow
	}
	return &Recognizer{
		cfg:          cfg,
		state:        StateIdle,
		onActivate:   onActivate,
		onDeactivate: onDeactivate,
	}
}

// State returns the current recognizer state.
func (r *Recognizer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Handle feeds one activation-key event into the state machine.
// Unmodeled event/state pairs are explicit no-ops; the recognizer has no
// failure mode, only mis-timing, which the timers absorb.
func (r *Recognizer) Handle(ev EventType) {
	r.mu.Lock()
	fire := r.handleLocked(ev)
	r.mu.Unlock()

	if fire != nil {
		fire()
	}
}

func (r *Recognizer) handleLocked(ev EventType) func() {
	if ev == Reset {
		r.disarm()
		r.state = StateIdle
		return nil
	}

	switch r.state {
	case StateIdle:
		if ev == KeyDown {
			r.state = StateFirstDown
			r.arm(r.cfg.HoldThreshold, r.holdElapsed)
		}

	case StateFirstDown:
		switch ev {
		case KeyUp:
			r.disarm()
			r.state = StateAwaitingSecondTap
			r.arm(r.cfg.DoubleTapWindow, r.tapWindowElapsed)
		case OtherModifier:
			// A chord like activation+shift is some other shortcut,
			// not the start of a dictation.
			r.disarm()
			r.state = StateIdle
		}

	case StateAwaitingSecondTap:
		if ev == KeyDown {
			r.disarm()
			r.state = StateDoubleTapDown
			return r.onActivate
		}

	case StateHoldRecording:
		if ev == KeyUp || ev == OtherModifier {
			r.state = StateIdle
			return r.onDeactivate
		}

	case StateDoubleTapDown:
		if ev == KeyUp {
			// Release of the activating tap itself; recording continues.
			r.state = StateToggleRecording
		}

	case StateToggleRecording:
		switch ev {
		case KeyDown:
			r.state = StateToggleTapDown
		case OtherModifier:
			// Stop rather than strand the session with no hotkey path
			// back to idle.
			r.state = StateIdle
			return r.onDeactivate
		}

	case StateToggleTapDown:
		if ev == KeyUp {
			r.state = StateIdle
			return r.onDeactivate
		}
	}
	return nil
}

// holdElapsed runs when the hold timer fires: the key stayed down past
// the threshold, so recording starts.
func (r *Recognizer) holdElapsed() func() {
	if r.state != StateFirstDown {
		return nil
	}
	r.state = StateHoldRecording
	return r.onActivate
}

// tapWindowElapsed runs when the double-tap window closes: the first tap
// was a lone tap while idle, which means nothing.
func (r *Recognizer) tapWindowElapsed() func() {
	if r.state == StateAwaitingSecondTap {
		r.state = StateIdle
	}
	return nil
}

// arm schedules fn on the single recognizer timer. The generation
// counter makes a callback from an already-replaced timer a no-op even
// if it was mid-flight when the timer was disarmed.
func (r *Recognizer) arm(d time.Duration, fn func() func()) {
	r.disarm()
	gen := r.gen
	r.timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		if r.gen != gen {
			r.mu.Unlock()
			return
		}
		r.timer = nil
		fire := fn()
		r.mu.Unlock()

		if fire != nil {
			fire()
		}
	})
}

func (r *Recognizer) disarm() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
