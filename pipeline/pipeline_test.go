package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.aimuz.me/murmur/internal/types"
	"go.aimuz.me/murmur/llm"
)

// stubFilter is a scriptable filter for chain tests.
type stubFilter struct {
	name string
	fn   func(text string) (string, error)
}

func (s *stubFilter) Name() string { return s.name }
func (s *stubFilter) Apply(_ context.Context, text string, _ Context) (string, error) {
	return s.fn(text)
}

func appendFilter(name, suffix string) *stubFilter {
	return &stubFilter{name: name, fn: func(text string) (string, error) {
		return text + suffix, nil
	}}
}

func failingFilter(name string) *stubFilter {
	return &stubFilter{name: name, fn: func(text string) (string, error) {
		return "GARBAGE", errors.New("boom")
	}}
}

func TestChainIdentity(t *testing.T) {
	tests := []struct {
		name    string
		filters []Filter
		input   string
	}{
		{"no filters", nil, "hello world"},
		{"empty input", []Filter{appendFilter("a", "!")}, ""},
		{"empty input no filters", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewChain(tt.filters...).Process(context.Background(), tt.input, Context{})
			if got != tt.input {
				t.Errorf("Process() = %q, want input %q unchanged", got, tt.input)
			}
		})
	}
}

func TestChainOrder(t *testing.T) {
	chain := NewChain(appendFilter("first", "-1"), appendFilter("second", "-2"))

	got := chain.Process(context.Background(), "x", Context{})
	if got != "x-1-2" {
		t.Errorf("Process() = %q, want %q", got, "x-1-2")
	}
}

func TestChainSkipsFailingFilter(t *testing.T) {
	with := NewChain(appendFilter("a", "-1"), failingFilter("bad"), appendFilter("b", "-2"))
	without := NewChain(appendFilter("a", "-1"), appendFilter("b", "-2"))

	ctx := context.Background()
	gotWith := with.Process(ctx, "x", Context{})
	gotWithout := without.Process(ctx, "x", Context{})

	if gotWith != gotWithout {
		t.Errorf("failing filter changed output: with = %q, without = %q", gotWith, gotWithout)
	}
}

func TestFillerRemoval(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "leading and embedded fillers",
			input: "Um, you know, the project is basically done.",
			want:  "the project is done.",
		},
		{
			name:  "stretched fillers",
			input: "Umm so uhh this works",
			want:  "so this works",
		},
		{
			name:  "clean text untouched",
			input: "The project is done.",
			want:  "The project is done.",
		},
		{
			name:  "filler inside a word is kept",
			input: "The umbrella is basic.",
			want:  "The umbrella is basic.",
		},
	}

	f := NewFiller()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Apply(context.Background(), tt.input, Context{})
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatFilter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		pctx  Context
		want  string
	}{
		{
			name:  "capitalize and terminate",
			input: "the project is done",
			want:  "The project is done.",
		},
		{
			name:  "collapse whitespace",
			input: "hello   world .",
			want:  "Hello world.",
		},
		{
			name:  "multiple sentences",
			input: "first thing. second thing.",
			want:  "First thing. Second thing.",
		},
		{
			name:  "uncased language skipped",
			input: "这个项目完成了。",
			pctx:  Context{Language: "zh"},
			want:  "这个项目完成了。",
		},
	}

	f := NewFormat()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Apply(context.Background(), tt.input, tt.pctx)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatIdempotent(t *testing.T) {
	inputs := []string{
		"the project is done",
		"hello   world",
		"First thing. second thing",
		"What? really!",
	}

	f := NewFormat()
	for _, input := range inputs {
		once, err := f.Apply(context.Background(), input, Context{})
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		twice, err := f.Apply(context.Background(), once, Context{})
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if once != twice {
			t.Errorf("format is not a fixed point: %q -> %q -> %q", input, once, twice)
		}
	}
}

func TestFillerThenFormatScenario(t *testing.T) {
	chain := NewChain(NewFiller(), NewFormat())

	got := chain.Process(context.Background(), "Um, you know, the project is basically done.", Context{})
	if got != "The project is done." {
		t.Errorf("Process() = %q, want %q", got, "The project is done.")
	}
}

// mockCompleter implements llm.Completer for rewrite tests.
type mockCompleter struct {
	response string
	delay    time.Duration
	err      error
}

func (m *mockCompleter) Complete(ctx context.Context, _ []llm.Message) (string, types.Usage, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", types.Usage{}, ctx.Err()
		}
	}
	return m.response, types.Usage{}, m.err
}

func TestRewriteSuccess(t *testing.T) {
	f := NewRewrite(&mockCompleter{response: "The project is finished."}, RewriteOptions{})

	got, err := f.Apply(context.Background(), "the project is, like, finished", Context{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != "The project is finished." {
		t.Errorf("Apply() = %q, want rewritten text", got)
	}
}

func TestRewriteTimeout(t *testing.T) {
	f := NewRewrite(
		&mockCompleter{response: "too late", delay: time.Second},
		RewriteOptions{Timeout: 20 * time.Millisecond},
	)

	_, err := f.Apply(context.Background(), "some text", Context{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRewriteCompletionBeatsDeadline(t *testing.T) {
	f := NewRewrite(
		&mockCompleter{response: "made it in time", delay: 5 * time.Millisecond},
		RewriteOptions{Timeout: 500 * time.Millisecond},
	)

	got, err := f.Apply(context.Background(), "made it just in time", Context{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != "made it in time" {
		t.Errorf("Apply() = %q, want completion result", got)
	}
}

func TestRewriteHallucinationGuard(t *testing.T) {
	input := "this is a perfectly reasonable dictated sentence about the weekly status report"

	tests := []struct {
		name     string
		response string
		err      error
		want     string // expected output; input means "discarded"
	}{
		{
			name:     "empty output discarded",
			response: "",
			want:     input,
		},
		{
			name:     "shrunken output discarded",
			response: "ok",
			want:     input,
		},
		{
			name: "inflated output discarded",
			response: "this output rambles on and on, inventing sentence after sentence that was " +
				"never dictated, padding the result with imagined detail until it is far longer " +
				"than anything the speaker could plausibly have said in the recorded span, and " +
				"then continuing further still with even more invented material about reports, " +
				"meetings, deadlines, stakeholders, and action items nobody mentioned at all",
			want: input,
		},
		{
			name:     "plausible output kept",
			response: "This is a reasonable dictated sentence about the weekly status report.",
			want:     "This is a reasonable dictated sentence about the weekly status report.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewRewrite(&mockCompleter{response: tt.response, err: tt.err}, RewriteOptions{})
			got, err := f.Apply(context.Background(), input, Context{})
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got != tt.want {
				t.Errorf("Apply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRewriteErrorPropagates(t *testing.T) {
	f := NewRewrite(&mockCompleter{err: errors.New("api down")}, RewriteOptions{})

	if _, err := f.Apply(context.Background(), "text", Context{}); err == nil {
		t.Fatal("expected error from failing completer")
	}
}
