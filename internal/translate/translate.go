package translate

import (
	"context"
	"fmt"
	"strings"
)

const translatePrompt = `Translate the following transcript into the language with code %q. Output only the translated text, with no preamble and no commentary. Preserve paragraph breaks.

Transcript:
---
%s
---`

// Generator is the language-model call used for translation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Translator converts transcripts into the target language through a
// generation client. Failures here are absorbed upstream; the transcript is
// passed through untranslated.
type Translator struct {
	gen Generator
}

// New creates a translator over a generation client.
func New(gen Generator) *Translator {
	return &Translator{gen: gen}
}

// Translate renders text in the target language.
func (t *Translator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	out, err := t.gen.Generate(ctx, fmt.Sprintf(translatePrompt, targetLang, text))
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return strings.TrimSpace(out), nil
}
