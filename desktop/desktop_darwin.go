//go:build darwin

package desktop

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework Cocoa -framework ApplicationServices -framework AVFoundation -framework Speech

#include <stdlib.h>

extern int frontmostApp(char** bundleID, char** name, int* pid);
extern int activateAppByPID(int pid);
extern int focusedElementEditable(int pid);
extern char* focusedElementText(int pid);
extern char* frontWindowTitle(int pid);
extern int synthPasteKeystroke(void);
extern int micAuthorized(void);
extern int speechAuthorized(void);
extern int axTrusted(void);
extern void playSystemCue(void);
*/
import "C"

import (
	"errors"
	"unsafe"

	"go.aimuz.me/murmur/internal/types"
)

func frontmost() types.AppRef {
	var cBundle, cName *C.char
	var pid C.int
	if C.frontmostApp(&cBundle, &cName, &pid) != 0 {
		return types.AppRef{}
	}
	app := types.AppRef{PID: int(pid)}
	if cBundle != nil {
		app.BundleID = C.GoString(cBundle)
		C.free(unsafe.Pointer(cBundle))
	}
	if cName != nil {
		app.Name = C.GoString(cName)
		C.free(unsafe.Pointer(cName))
	}
	return app
}

func activate(app types.AppRef) error {
	if app.IsZero() {
		return errors.New("desktop: no app to activate")
	}
	if C.activateAppByPID(C.int(app.PID)) != 0 {
		return errors.New("desktop: activation failed")
	}
	return nil
}

func hasFocusedEditableField(app types.AppRef) bool {
	if app.IsZero() {
		return false
	}
	return C.focusedElementEditable(C.int(app.PID)) == 1
}

func surroundingText(app types.AppRef) (string, bool) {
	if app.IsZero() {
		return "", false
	}
	cstr := C.focusedElementText(C.int(app.PID))
	if cstr == nil {
		return "", false
	}
	defer C.free(unsafe.Pointer(cstr))
	return C.GoString(cstr), true
}

func windowTitle(app types.AppRef) string {
	if app.IsZero() {
		return ""
	}
	cstr := C.frontWindowTitle(C.int(app.PID))
	if cstr == nil {
		return ""
	}
	defer C.free(unsafe.Pointer(cstr))
	return C.GoString(cstr)
}

func synthesizePaste() error {
	if C.synthPasteKeystroke() != 0 {
		return errors.New("desktop: paste keystroke failed")
	}
	return nil
}

func microphoneGranted() bool        { return C.micAuthorized() == 1 }
func speechRecognitionGranted() bool { return C.speechAuthorized() == 1 }
func accessibilityGranted() bool     { return C.axTrusted() == 1 }

func playFailureCue() { C.playSystemCue() }
