package pipeline

import (
	"context"
	"regexp"
	"strings"
)

var (
	// regexFiller matches spoken fillers plus any trailing comma and
	// whitespace, so "Um, you know, the" collapses to "the".
	regexFiller = regexp.MustCompile(`(?i)\b(um+|uh+|erm+|hmm+|you know|i mean|basically|literally|kind of|sort of)\b[,;]?\s*`)
	// regexSpaceRun collapses whitespace left behind by removals.
	regexSpaceRun = regexp.MustCompile(`\s{2,}`)
	// regexSpacePunct drops a stray space before closing punctuation.
	regexSpacePunct = regexp.MustCompile(`\s+([,.;:!?])`)
)

// FillerFilter removes spoken filler words and phrases from the
// transcript. Removal is a fixed point: a clean transcript passes
// through untouched.
type FillerFilter struct{}

// NewFiller creates the filler-removal filter.
func NewFiller() *FillerFilter {
	return &FillerFilter{}
}

func (f *FillerFilter) Name() string { return "filler" }

func (f *FillerFilter) Apply(_ context.Context, text string, _ Context) (string, error) {
	out := regexFiller.ReplaceAllString(text, "")
	out = regexSpaceRun.ReplaceAllString(out, " ")
	out = regexSpacePunct.ReplaceAllString(out, "$1")
	return strings.TrimSpace(out), nil
}
