package pipeline

import (
	"context"
	"strings"
	"unicode"
)

// uncasedLanguages have no letter case; sentence capitalization is
// skipped for them.
var uncasedLanguages = map[string]bool{
	"zh": true,
	"ja": true,
	"ko": true,
	"th": true,
}

// FormatFilter normalizes whitespace, capitalizes sentence starts, and
// ensures terminal punctuation. Running it on already-formatted text
// changes nothing.
type FormatFilter struct{}

// NewFormat creates the formatting filter.
func NewFormat() *FormatFilter {
	return &FormatFilter{}
}

func (f *FormatFilter) Name() string { return "format" }

func (f *FormatFilter) Apply(_ context.Context, text string, pctx Context) (string, error) {
	out := strings.TrimSpace(text)
	if out == "" {
		return out, nil
	}

	out = regexSpaceRun.ReplaceAllString(out, " ")
	out = regexSpacePunct.ReplaceAllString(out, "$1")

	if !uncasedLanguages[pctx.Language] {
		out = capitalizeSentences(out)
	}

	if endsWithWord(out) {
		out += "."
	}
	return out, nil
}

// capitalizeSentences upper-cases the first letter of the text and the
// first letter after sentence-ending punctuation.
func capitalizeSentences(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	atStart := true
	for _, r := range s {
		switch {
		case atStart && unicode.IsLetter(r):
			b.WriteRune(unicode.ToUpper(r))
			atStart = false
		case r == '.' || r == '!' || r == '?':
			b.WriteRune(r)
			atStart = true
		case unicode.IsSpace(r) || r == '"' || r == '\'' || r == '(' || r == ')':
			b.WriteRune(r)
		default:
			b.WriteRune(r)
			atStart = false
		}
	}
	return b.String()
}

// endsWithWord reports whether the text stops mid-word, without any
// closing punctuation.
func endsWithWord(s string) bool {
	runes := []rune(s)
	last := runes[len(runes)-1]
	return unicode.IsLetter(last) || unicode.IsDigit(last)
}
