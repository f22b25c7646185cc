package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.aimuz.me/murmur/llm"
)

const defaultRewritePrompt = "You are a dictation cleanup assistant. " +
	"Rewrite the user's dictated text so it reads naturally, fixing grammar and obvious " +
	"mis-recognitions while preserving meaning, tone, and language. " +
	"Output only the rewritten text, with no commentary."

// RewriteOptions tunes the AI rewrite filter. The ratio bounds and
// timeout are policy, not contract; the defaults match what shipped.
type RewriteOptions struct {
	SystemPrompt string
	Timeout      time.Duration // default 5s
	MinRatio     float64       // default 0.3
	MaxRatio     float64       // default 3.0
}

// RewriteFilter asks a chat model to clean up the transcript. The call
// races a deadline; a timeout is a filter failure like any other. A
// length-ratio sanity check rejects implausible output even when the
// call itself succeeded.
type RewriteFilter struct {
	completer llm.Completer
	opts      RewriteOptions
}

// NewRewrite creates the rewrite filter around a chat completer.
func NewRewrite(completer llm.Completer, opts RewriteOptions) *RewriteFilter {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultRewritePrompt
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MinRatio <= 0 {
		opts.MinRatio = 0.3
	}
	if opts.MaxRatio <= 0 {
		opts.MaxRatio = 3.0
	}
	return &RewriteFilter{completer: completer, opts: opts}
}

func (f *RewriteFilter) Name() string { return "rewrite" }

func (f *RewriteFilter) Apply(ctx context.Context, text string, pctx Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	type completion struct {
		text string
		err  error
	}
	done := make(chan completion, 1)

	go func() {
		out, _, err := f.completer.Complete(ctx, f.buildMessages(text, pctx))
		done <- completion{text: out, err: err}
	}()

	// Race the completion against the deadline; the loser is
	// cancelled through ctx.
	var out string
	select {
	case c := <-done:
		if c.err != nil {
			return "", fmt.Errorf("rewrite: %w", c.err)
		}
		out = strings.TrimSpace(c.text)
	case <-ctx.Done():
		return "", fmt.Errorf("rewrite: %w", ctx.Err())
	}

	// Hallucination guard: a wildly shrunken, inflated, or empty
	// rewrite is discarded and the input passes through unchanged.
	if reason, ok := f.plausible(text, out); !ok {
		slog.Info("rewrite discarded", "reason", reason)
		return text, nil
	}
	return out, nil
}

func (f *RewriteFilter) plausible(in, out string) (string, bool) {
	if out == "" {
		return "empty output", false
	}
	ratio := float64(utf8.RuneCountInString(out)) / float64(utf8.RuneCountInString(in))
	if ratio < f.opts.MinRatio {
		return fmt.Sprintf("ratio %.2f below %.2f", ratio, f.opts.MinRatio), false
	}
	if ratio > f.opts.MaxRatio {
		return fmt.Sprintf("ratio %.2f above %.2f", ratio, f.opts.MaxRatio), false
	}
	return "", true
}

func (f *RewriteFilter) buildMessages(text string, pctx Context) []llm.Message {
	var user strings.Builder
	if pctx.SurroundingText != "" {
		fmt.Fprintf(&user, "Text around the insertion point:\n%s\n\n", pctx.SurroundingText)
	}
	if len(pctx.Vocabulary) > 0 {
		fmt.Fprintf(&user, "Terms visible on screen, keep their spelling: %s\n\n", strings.Join(pctx.Vocabulary, ", "))
	}
	fmt.Fprintf(&user, "Dictated text:\n%s", text)

	return []llm.Message{
		{Role: "system", Content: f.opts.SystemPrompt},
		{Role: "user", Content: user.String()},
	}
}
