package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"trns/internal/captions"
	"trns/internal/config"
	"trns/internal/engine"
	fileutil "trns/internal/file"
	"trns/internal/gemini"
	"trns/internal/pipeline"
	"trns/internal/speech"
	"trns/internal/summarize"
	"trns/internal/translate"
	"trns/pkg/executor"
)

const cliSession = "cli"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		mode       string
		outputPath string
		quiet      bool
	)

	root := &cobra.Command{
		Use:           "trns <source>",
		Short:         "Transcribe, translate, and summarize a video in one shot",
		Long:          "Runs the full processing chain for a single video URL or local media file and prints the report to stdout.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], configPath, mode, outputPath, quiet)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "config.yml", "config file path")
	root.Flags().StringVarP(&mode, "mode", "m", "auto", "processing mode: auto, subtitles-only, transcribe-only")
	root.Flags().StringVarP(&outputPath, "output", "o", "", "also write the report to a file")
	root.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress messages")
	return root
}

func run(source, configPath, rawMode, outputPath string, quiet bool) error {
	_ = godotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	level := zerolog.WarnLevel
	if !quiet {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	mode, err := engine.ParseMode(rawMode)
	if err != nil {
		return err
	}

	orchestrator, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	orchestrator.SetBaseContext(ctx)

	// the local invoker is trusted, no key exchange
	orchestrator.Sessions().Grant(cliSession)

	task, err := orchestrator.Submit(cliSession, source, mode)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		orchestrator.Cancel(cliSession)
	}()

	report, err := drain(ctx, orchestrator, task.ID, quiet)
	if err != nil {
		return err
	}

	fmt.Println(report)
	if outputPath != "" {
		if err := fileutil.WriteAtomic(outputPath, []byte(report+"\n")); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}

// drain consumes the session's event stream until the terminal event and
// returns the report text, or an error for failed and cancelled runs.
func drain(ctx context.Context, orchestrator *engine.Orchestrator, taskID string, quiet bool) (string, error) {
	// use a background drain context: on interrupt the task is cancelled and
	// its terminal event still has to be consumed
	for event := range orchestrator.Drain(context.Background(), cliSession) {
		if event.TaskID != taskID {
			continue
		}
		switch event.Kind {
		case engine.EventProgress:
			if !quiet {
				log.Info().Str("stage", event.Stage).Msg(event.Message)
			}
		case engine.EventPartial:
			if !quiet {
				log.Info().Str("stage", event.Stage).Int("chars", len(event.Text)).Msg("partial result")
			}
		case engine.EventWarning:
			log.Warn().Str("stage", event.Stage).Msg(event.Message)
		case engine.EventReport:
			return event.Text, nil
		case engine.EventCancelled:
			return "", errors.New("cancelled")
		case engine.EventError:
			if event.Text != "" {
				// deliver the partial transcript before failing
				fmt.Println(event.Text)
			}
			return "", fmt.Errorf("%s: %s", event.ErrKind, event.Message)
		}
	}
	return "", ctx.Err()
}

func buildEngine(cfg config.Config) (*engine.Orchestrator, error) {
	quota := engine.NewQuota(cfg.DailyQuota)
	exec := executor.New()

	client, err := gemini.NewClient(cfg.SummaryModel, cfg.APIKeys)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	runner := pipeline.New(
		captions.NewFetcher(exec, cfg.YtDlpPath, cfg.TargetLanguage),
		speech.NewEngine(exec, speech.Config{
			FFmpegPath:   cfg.FFmpegPath,
			WhisperPath:  cfg.WhisperPath,
			WhisperModel: cfg.WhisperModel,
			YtDlpPath:    cfg.YtDlpPath,
		}),
		translate.New(client),
		summarize.New(client),
		quota,
		pipeline.Config{
			TargetLanguage: cfg.TargetLanguage,
			ChunkSeconds:   float64(cfg.ChunkSeconds),
			OverlapSeconds: float64(cfg.OverlapSeconds),
			SummaryRetries: cfg.SummaryRetries,
		},
	)

	sessions := engine.NewSessions(cfg.AuthKey, filepath.Join(cfg.DataDir, "sessions.json"))

	return engine.NewOrchestrator(engine.Options{
		Sessions:      sessions,
		Registry:      engine.NewRegistry(),
		Dispatcher:    engine.NewDispatcher(),
		Quota:         quota,
		Runner:        runner,
		WarnThreshold: cfg.WarnThreshold,
	}), nil
}
