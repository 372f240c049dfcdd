package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"trns/internal/engine"
)

// Stage names carried on progress and error events.
const (
	StageCaptions      = "captions"
	StageTranscription = "transcription"
	StageTranslation   = "translation"
	StageSummarization = "summarization"
)

// Captions fetches pre-existing captions for a source. A source without
// captions returns ErrNoCaptions; that is the expected fallback path.
type Captions interface {
	Fetch(ctx context.Context, source string) (text, lang string, err error)
}

// ErrNoCaptions reports that a source carries no usable caption track.
var ErrNoCaptions = errors.New("no captions available")

// Speech turns a media source into text. ExtractAudio produces a local
// recognizer-ready audio file and its duration in seconds; Transcribe handles
// one window of it. An empty lang asks the recognizer to detect the language
// and report it back.
type Speech interface {
	ExtractAudio(ctx context.Context, source string) (wavPath string, duration float64, cleanup func(), err error)
	Transcribe(ctx context.Context, wavPath string, offset, length float64, lang string) (text, detectedLang string, err error)
}

// Translator converts text into the target language.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Summarizer produces the final report from a transcript. Implementations
// mark rate-limit and timeout failures with a `Transient() bool` method so
// the pipeline knows which errors to retry.
type Summarizer interface {
	Summarize(ctx context.Context, text, targetLang string) (string, error)
}

type transienter interface{ Transient() bool }

func isTransient(err error) bool {
	var tr transienter
	return errors.As(err, &tr) && tr.Transient()
}

// Config carries the tunables of one pipeline instance.
type Config struct {
	TargetLanguage string
	ChunkSeconds   float64
	OverlapSeconds float64
	SummaryRetries int
	BackoffBase    time.Duration
}

// Pipeline runs the four-stage fallback chain for one request at a time. It
// is stateless across runs; all per-run state lives on the stack.
type Pipeline struct {
	captions   Captions
	speech     Speech
	translator Translator
	summarizer Summarizer
	quota      *engine.Quota
	cfg        Config
}

// New assembles a pipeline from its stage capabilities.
func New(captions Captions, speech Speech, translator Translator, summarizer Summarizer, quota *engine.Quota, cfg Config) *Pipeline {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	return &Pipeline{
		captions:   captions,
		speech:     speech,
		translator: translator,
		summarizer: summarizer,
		quota:      quota,
		cfg:        cfg,
	}
}

// Run executes the stages in order for one request and returns the final
// report text. Cancellation is observed at stage and chunk boundaries; once
// ctx is done the current stage finishes or fails and Run returns ctx.Err().
func (p *Pipeline) Run(ctx context.Context, req engine.Request, emit func(engine.OutputEvent)) (string, error) {
	transcript, lang, err := p.obtainTranscript(ctx, req, emit)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := p.translate(ctx, transcript, lang, emit)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.summarize(ctx, text, emit)
}

// obtainTranscript runs stages 1 and 2 and returns the transcript plus its
// language ("" when unknown).
func (p *Pipeline) obtainTranscript(ctx context.Context, req engine.Request, emit func(engine.OutputEvent)) (string, string, error) {
	if req.Mode != engine.ModeTranscribeOnly {
		emit(engine.OutputEvent{Kind: engine.EventProgress, Stage: StageCaptions, Message: "looking for captions"})
		text, lang, err := p.captions.Fetch(ctx, req.Source)
		switch {
		case err == nil:
			emit(engine.OutputEvent{Kind: engine.EventPartial, Stage: StageCaptions, Text: text})
			return text, lang, nil
		case req.Mode == engine.ModeSubtitlesOnly:
			return "", "", &engine.TaskError{
				Kind:  engine.ErrKindExtraction,
				Stage: StageCaptions,
				Err:   err,
			}
		case errors.Is(err, context.Canceled):
			return "", "", err
		default:
			// expected fallback, not a failure
			log.Debug().Str("source", req.Source).Err(err).Msg("captions unavailable, falling back to speech")
		}
	}
	return p.transcribe(ctx, req.Source, emit)
}

// transcribe extracts the audio track and runs the recognizer over it window
// by window, detecting the language on the first window.
func (p *Pipeline) transcribe(ctx context.Context, source string, emit func(engine.OutputEvent)) (string, string, error) {
	emit(engine.OutputEvent{Kind: engine.EventProgress, Stage: StageTranscription, Message: "extracting audio"})

	wavPath, duration, cleanup, err := p.speech.ExtractAudio(ctx, source)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", "", err
		}
		return "", "", &engine.TaskError{Kind: engine.ErrKindExtraction, Stage: StageTranscription, Err: err}
	}
	if cleanup != nil {
		defer cleanup()
	}

	spans := splitSpans(duration, p.cfg.ChunkSeconds, p.cfg.OverlapSeconds)
	lang := ""
	parts := make([]string, 0, len(spans))
	for i, sp := range spans {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		emit(engine.OutputEvent{
			Kind:    engine.EventProgress,
			Stage:   StageTranscription,
			Message: fmt.Sprintf("transcribing segment %d of %d", i+1, len(spans)),
		})

		text, detected, err := p.speech.Transcribe(ctx, wavPath, sp.Offset, sp.Length, lang)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return "", "", err
			}
			return "", "", &engine.TaskError{
				Kind:    engine.ErrKindTranscription,
				Stage:   StageTranscription,
				Partial: joinChunks(parts),
				Err:     err,
			}
		}
		if lang == "" {
			lang = detected
		}
		parts = append(parts, text)
		emit(engine.OutputEvent{Kind: engine.EventPartial, Stage: StageTranscription, Text: text})
	}
	return joinChunks(parts), lang, nil
}

// translate runs stage 3. Failures degrade to the untranslated transcript
// with a warning; they never abort the task.
func (p *Pipeline) translate(ctx context.Context, transcript, lang string, emit func(engine.OutputEvent)) string {
	if p.translator == nil || sameLanguage(lang, p.cfg.TargetLanguage) {
		return transcript
	}
	emit(engine.OutputEvent{Kind: engine.EventProgress, Stage: StageTranslation, Message: "translating transcript"})

	translated, err := p.translator.Translate(ctx, transcript, p.cfg.TargetLanguage)
	if err != nil {
		log.Warn().Err(err).Msg("translation failed, passing transcript through")
		emit(engine.OutputEvent{
			Kind:    engine.EventWarning,
			Stage:   StageTranslation,
			Message: "translation failed, transcript passed through untranslated",
		})
		return transcript
	}
	emit(engine.OutputEvent{Kind: engine.EventPartial, Stage: StageTranslation, Text: translated})
	return translated
}

// summarize runs stage 4. Every attempt reserves a quota unit first; units
// are not refunded on failure. Transient failures retry with exponential
// backoff up to the configured ceiling.
func (p *Pipeline) summarize(ctx context.Context, text string, emit func(engine.OutputEvent)) (string, error) {
	emit(engine.OutputEvent{Kind: engine.EventProgress, Stage: StageSummarization, Message: "summarizing"})

	var lastErr error
	for attempt := 0; attempt <= p.cfg.SummaryRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, p.cfg.BackoffBase*time.Duration(1<<(attempt-1))); err != nil {
				return "", err
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if !p.quota.TryReserve() {
			return "", &engine.TaskError{
				Kind:    engine.ErrKindQuota,
				Stage:   StageSummarization,
				Partial: text,
				Err:     errors.New("daily summarization capacity exceeded"),
			}
		}

		report, err := p.summarizer.Summarize(ctx, text, p.cfg.TargetLanguage)
		if err == nil {
			return report, nil
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
		log.Warn().Int("attempt", attempt+1).Err(err).Msg("summarization failed, retrying")
	}

	return "", &engine.TaskError{
		Kind:    engine.ErrKindSummarization,
		Stage:   StageSummarization,
		Partial: text,
		Err:     lastErr,
	}
}

func sameLanguage(a, b string) bool {
	if a == "" {
		// unknown language, let the translator normalize it
		return false
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
