// Package clipboard reads and writes the system clipboard.
package clipboard

// GetText returns the clipboard's string content.
func GetText() (string, error) {
	return getText()
}

// SetText replaces the clipboard's content with text.
func SetText(text string) error {
	return setText(text)
}
