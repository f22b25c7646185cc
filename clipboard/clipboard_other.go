//go:build !darwin

package clipboard

import "errors"

var errUnsupported = errors.New("clipboard: unsupported platform")

func getText() (string, error) { return "", errUnsupported }
func setText(string) error     { return errUnsupported }
