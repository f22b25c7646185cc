// Package desktop probes and drives the host desktop: frontmost app
// identity, accessibility state, paste synthesis, and permission
// checks. Everything here is best effort; on platforms without a
// backend the probes report the unusable state.
package desktop

import "go.aimuz.me/murmur/internal/types"

// Frontmost returns the application that currently has focus.
func Frontmost() types.AppRef {
	return frontmost()
}

// Activate brings app to the foreground.
func Activate(app types.AppRef) error {
	return activate(app)
}

// HasFocusedEditableField reports whether app currently exposes a
// focused, writable text element.
func HasFocusedEditableField(app types.AppRef) bool {
	return hasFocusedEditableField(app)
}

// SurroundingText returns the text of app's focused element, false
// when it cannot be read.
func SurroundingText(app types.AppRef) (string, bool) {
	return surroundingText(app)
}

// WindowTitle returns the title of app's frontmost window.
func WindowTitle(app types.AppRef) string {
	return windowTitle(app)
}

// SynthesizePaste injects a paste keystroke into the focused app.
func SynthesizePaste() error {
	return synthesizePaste()
}

// MicrophoneGranted reports microphone permission.
func MicrophoneGranted() bool {
	return microphoneGranted()
}

// SpeechRecognitionGranted reports speech recognition permission.
func SpeechRecognitionGranted() bool {
	return speechRecognitionGranted()
}

// AccessibilityGranted reports whether the process is trusted for
// accessibility, required for paste synthesis and field probing.
func AccessibilityGranted() bool {
	return accessibilityGranted()
}

// PlayFailureCue plays the audible delivery-failure cue.
func PlayFailureCue() {
	playFailureCue()
}
