package summarize

import (
	"context"
	"fmt"
	"strings"
)

const reportPrompt = `You are an assistant that writes concise video reports. Based on the transcript below, write a structured summary in the language with code %q.

Requirements:
- Start with a one-sentence title describing the topic
- List the main points in the order they appear
- Keep terminology from the transcript intact
- Use markdown: a heading, bullet points, bold for key terms

Transcript:
---
%s
---`

// Generator is the language-model call used to produce the report text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summarizer turns a transcript into the final report via a single
// language-model call. Retry policy lives in the caller; quota accounting
// happens before this is invoked.
type Summarizer struct {
	gen Generator
}

// New creates a summarizer over a generation client.
func New(gen Generator) *Summarizer {
	return &Summarizer{gen: gen}
}

// Summarize produces the report for one transcript.
func (s *Summarizer) Summarize(ctx context.Context, text, targetLang string) (string, error) {
	out, err := s.gen.Generate(ctx, fmt.Sprintf(reportPrompt, targetLang, text))
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(out), nil
}
