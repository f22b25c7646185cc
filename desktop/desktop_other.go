//go:build !darwin

package desktop

import (
	"errors"

	"go.aimuz.me/murmur/internal/types"
)

var errUnsupported = errors.New("desktop: unsupported platform")

func frontmost() types.AppRef                     { return types.AppRef{} }
func activate(types.AppRef) error                 { return errUnsupported }
func hasFocusedEditableField(types.AppRef) bool   { return false }
func surroundingText(types.AppRef) (string, bool) { return "", false }
func windowTitle(types.AppRef) string             { return "" }
func synthesizePaste() error                      { return errUnsupported }
func microphoneGranted() bool                     { return false }
func speechRecognitionGranted() bool              { return false }
func accessibilityGranted() bool                  { return false }
func playFailureCue()                             {}
