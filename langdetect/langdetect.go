// Package langdetect tags text with an ISO-639-1 language code.
package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"

	// The lingua-go fork ships language models as opt-in packages;
	// importing one registers its model with the detector.
	_ "github.com/pemistahl/lingua-go/language-models/de"
	_ "github.com/pemistahl/lingua-go/language-models/en"
	_ "github.com/pemistahl/lingua-go/language-models/es"
	_ "github.com/pemistahl/lingua-go/language-models/fr"
	_ "github.com/pemistahl/lingua-go/language-models/it"
	_ "github.com/pemistahl/lingua-go/language-models/ja"
	_ "github.com/pemistahl/lingua-go/language-models/ko"
	_ "github.com/pemistahl/lingua-go/language-models/pt"
	_ "github.com/pemistahl/lingua-go/language-models/ru"
	_ "github.com/pemistahl/lingua-go/language-models/zh"
)

// Detection below this confidence is reported as unknown.
const minConfidence = 0.6

var (
	once     sync.Once
	detector lingua.LanguageDetector
)

// The detector model is large; build it once, on first use.
func get() lingua.LanguageDetector {
	once.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(
				lingua.English,
				lingua.Chinese,
				lingua.Japanese,
				lingua.Korean,
				lingua.French,
				lingua.German,
				lingua.Spanish,
				lingua.Portuguese,
				lingua.Italian,
				lingua.Russian,
			).
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}

// Detect returns the ISO-639-1 code of text's language, empty when
// text is too short or ambiguous.
func Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	d := get()
	lang, ok := d.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	values := d.ComputeLanguageConfidenceValues(text)
	if len(values) > 0 && values[0].Value() < minConfidence {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

// Canonical normalizes a language code to its canonical BCP-47 form,
// returning the input unchanged when it cannot be parsed.
func Canonical(code string) string {
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return tag.String()
}
