// Package hotkey watches the global keyboard and reduces raw key
// activity on the activation key to gesture events.
package hotkey

import (
	"fmt"
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"

	"go.aimuz.me/murmur/gesture"
)

// DefaultKeyCode is the right Option key on macOS.
const DefaultKeyCode = 61

// macOS virtual key codes for modifier keys. A press on any of these
// while the gesture is engaged cancels it; ordinary typing does not.
var modifierCodes = map[uint16]bool{
	54: true, // right command
	55: true, // command
	56: true, // shift
	57: true, // caps lock
	58: true, // option
	59: true, // control
	60: true, // right shift
	61: true, // right option
	62: true, // right control
}

// Listener owns the OS-level hook. It deduplicates auto-repeat so the
// recognizer sees one KeyDown per physical press.
type Listener struct {
	keycode uint16
	emit    func(gesture.EventType)

	mu      sync.Mutex
	running bool
	held    bool
}

// NewListener creates a listener for the given activation key code.
// emit receives gesture events from the hook goroutine.
func NewListener(keycode uint16, emit func(gesture.EventType)) *Listener {
	if keycode == 0 {
		keycode = DefaultKeyCode
	}
	return &Listener{keycode: keycode, emit: emit}
}

// Start installs the global hook and begins translating events.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return fmt.Errorf("hotkey: listener already running")
	}
	l.running = true

	events := hook.Start()
	go l.run(events)

	slog.Info("global key hook installed", "keycode", l.keycode)
	return nil
}

// Stop removes the hook.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.running = false
	hook.End()
}

func (l *Listener) run(events chan hook.Event) {
	for ev := range events {
		switch ev.Kind {
		case hook.KeyDown, hook.KeyHold:
			l.handleDown(ev.Rawcode)
		case hook.KeyUp:
			l.handleUp(ev.Rawcode)
		}
	}
}

func (l *Listener) handleDown(code uint16) {
	if code == l.keycode {
		l.mu.Lock()
		first := !l.held
		l.held = true
		l.mu.Unlock()
		// Auto-repeat delivers held keys again; only the first counts.
		if first {
			l.emit(gesture.KeyDown)
		}
		return
	}
	if modifierCodes[code] {
		l.emit(gesture.OtherModifier)
	}
}

func (l *Listener) handleUp(code uint16) {
	if code != l.keycode {
		return
	}
	l.mu.Lock()
	wasHeld := l.held
	l.held = false
	l.mu.Unlock()
	if wasHeld {
		l.emit(gesture.KeyUp)
	}
}
