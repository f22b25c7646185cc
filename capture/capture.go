// Package capture records microphone audio as mono float32 PCM.
package capture

import "errors"

// ErrRunning is returned when Start is called on a running capturer.
var ErrRunning = errors.New("capture: already running")

// ErrUnsupported is returned on platforms without a microphone backend.
var ErrUnsupported = errors.New("capture: unsupported platform")

// Handler receives PCM frames in [-1, 1]. The slice is only valid for
// the duration of the call.
type Handler func(samples []float32)

// Capturer records from the default input device.
type Capturer interface {
	// Start begins capture, invoking handler for every frame.
	Start(handler Handler) error
	// Stop ends capture. Stopping a stopped capturer is a no-op.
	Stop() error
	// SampleRate returns the delivered sample rate in Hz.
	SampleRate() int
}
