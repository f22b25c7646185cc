//go:build darwin

package capture

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework AVFoundation -framework CoreAudio -framework Foundation

#include <stdlib.h>

extern int startMicCapture(int targetSampleRate, char** errOut);
extern void stopMicCapture(void);
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"
)

// Global handler for the CGO callback. One capture at a time.
var (
	globalHandler   Handler
	globalHandlerMu sync.RWMutex
)

//export goMicCallback
func goMicCallback(samples *C.float, count C.int) {
	n := int(count)
	if n <= 0 {
		return
	}

	globalHandlerMu.RLock()
	h := globalHandler
	globalHandlerMu.RUnlock()
	if h == nil {
		return
	}

	// No copy; the handler must not retain the slice past the call.
	h(unsafe.Slice((*float32)(unsafe.Pointer(samples)), n))
}

// capturer records from the default input device via AVAudioEngine.
type capturer struct {
	sampleRate int
	mu         sync.Mutex
	running    bool
}

// New creates a microphone capturer for macOS.
func New(sampleRate int) (Capturer, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &capturer{sampleRate: sampleRate}, nil
}

func (c *capturer) SampleRate() int { return c.sampleRate }

func (c *capturer) Start(handler Handler) error {
	if handler == nil {
		return errors.New("capture: nil handler")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrRunning
	}

	globalHandlerMu.Lock()
	globalHandler = handler
	globalHandlerMu.Unlock()

	var errStr *C.char
	if C.startMicCapture(C.int(c.sampleRate), &errStr) != 0 {
		globalHandlerMu.Lock()
		globalHandler = nil
		globalHandlerMu.Unlock()

		if errStr != nil {
			err := errors.New(C.GoString(errStr))
			C.free(unsafe.Pointer(errStr))
			return err
		}
		return errors.New("capture: unknown error")
	}

	c.running = true
	return nil
}

func (c *capturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}

	C.stopMicCapture()

	globalHandlerMu.Lock()
	globalHandler = nil
	globalHandlerMu.Unlock()

	c.running = false
	return nil
}
