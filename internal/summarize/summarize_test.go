package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeGen struct {
	out    string
	err    error
	prompt string
}

func (f *fakeGen) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.out, f.err
}

func TestSummarizeEmbedsTranscriptAndLanguage(t *testing.T) {
	gen := &fakeGen{out: "  the report \n"}
	s := New(gen)

	got, err := s.Summarize(context.Background(), "transcript body", "ru")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got != "the report" {
		t.Fatalf("report = %q, want trimmed output", got)
	}
	if !strings.Contains(gen.prompt, "transcript body") {
		t.Fatal("prompt missing transcript")
	}
	if !strings.Contains(gen.prompt, `"ru"`) {
		t.Fatal("prompt missing target language")
	}
}

func TestSummarizeWrapsGeneratorError(t *testing.T) {
	inner := errors.New("model overloaded")
	s := New(&fakeGen{err: inner})

	_, err := s.Summarize(context.Background(), "text", "ru")
	if !errors.Is(err, inner) {
		t.Fatalf("err = %v, want wrapped generator error", err)
	}
}
