package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trns/internal/api"
	"trns/internal/captions"
	"trns/internal/config"
	"trns/internal/engine"
	"trns/internal/gemini"
	fileutil "trns/internal/file"
	"trns/internal/pipeline"
	"trns/internal/speech"
	"trns/internal/summarize"
	"trns/internal/translate"
	"trns/pkg/executor"
)

func main() {
	_ = godotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load("config.yml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := fileutil.EnsureDir(cfg.DataDir); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("ensure data dir")
	}

	orchestrator, err := buildEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	orchestrator.SetBaseContext(baseCtx)

	router := setupRouter()
	api.NewAPI(orchestrator).RegisterRoutes(router)
	if cfg.ChatSendURL != "" {
		sender := api.NewHTTPSender(cfg.ChatSendURL)
		api.NewWebhook(baseCtx, orchestrator, sender).RegisterRoutes(router)
	}

	const (
		readHeaderTimeout = 5 * time.Second
		shutdownTimeout   = 30 * time.Second
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("server started")

	waitForShutdownSignal()

	gracefulShutdown(srv, baseCancel, orchestrator, shutdownTimeout)
}

func setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.ZerologLogger())
	return r
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
	if err := sessions.Load(); err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	return engine.NewOrchestrator(engine.Options{
		Sessions:      sessions,
		Registry:      engine.NewRegistry(),
		Dispatcher:    engine.NewDispatcher(),
		Quota:         quota,
		Runner:        runner,
		WarnThreshold: cfg.WarnThreshold,
	}), nil
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, orchestrator *engine.Orchestrator, timeout time.Duration) {
	orchestrator.StopAccepting()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	if !orchestrator.WaitAll(ctx) {
		log.Warn().Msg("background tasks did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
