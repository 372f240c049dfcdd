package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = 8080
	defaultDataDir        = "data"
	defaultTargetLanguage = "ru"
	defaultDailyQuota     = 1000
	defaultWarnThreshold  = 50
	defaultSummaryRetries = 3
	defaultChunkSeconds   = 300
	defaultOverlapSeconds = 5
	defaultSummaryModel   = "gemini-2.5-flash"
)

// Config describes runtime configuration for the service. Secrets (auth key,
// Gemini API keys) are not read from the YAML file; they come from the
// environment and are attached by Load.
type Config struct {
	Port           int    `yaml:"port"`
	DataDir        string `yaml:"data_dir"`
	TargetLanguage string `yaml:"target_language"`

	DailyQuota     int `yaml:"daily_quota"`
	WarnThreshold  int `yaml:"quota_warn_threshold"`
	SummaryRetries int `yaml:"summary_retries"`

	ChunkSeconds   int `yaml:"chunk_seconds"`
	OverlapSeconds int `yaml:"chunk_overlap_seconds"`

	SummaryModel string `yaml:"summary_model"`

	FFmpegPath   string `yaml:"ffmpeg_path"`
	WhisperPath  string `yaml:"whisper_path"`
	WhisperModel string `yaml:"whisper_model"`
	YtDlpPath    string `yaml:"ytdlp_path"`

	// ChatSendURL is the chat platform endpoint outbound messages are posted
	// to. Empty disables outbound delivery (events stay on the API stream).
	ChatSendURL string `yaml:"chat_send_url"`

	AuthKey string   `yaml:"-"`
	APIKeys []string `yaml:"-"`
}

// Default returns sane defaults for a single-node deployment.
func Default() Config {
	return Config{
		Port:           defaultPort,
		DataDir:        defaultDataDir,
		TargetLanguage: defaultTargetLanguage,
		DailyQuota:     defaultDailyQuota,
		WarnThreshold:  defaultWarnThreshold,
		SummaryRetries: defaultSummaryRetries,
		ChunkSeconds:   defaultChunkSeconds,
		OverlapSeconds: defaultOverlapSeconds,
		SummaryModel:   defaultSummaryModel,
		FFmpegPath:     "ffmpeg",
		WhisperPath:    "whisper-cli",
		WhisperModel:   "models/ggml-base.bin",
		YtDlpPath:      "yt-dlp",
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error. Environment secrets are
// attached afterwards.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnv(cfg), nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) > 0 {
		if err := yaml.Unmarshal(fileData, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	}
	cfg = normalize(cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return applyEnv(cfg), nil
}

func normalize(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.TargetLanguage = strings.ToLower(strings.TrimSpace(cfg.TargetLanguage))
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = defaultTargetLanguage
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = defaultSummaryModel
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.WhisperPath == "" {
		cfg.WhisperPath = "whisper-cli"
	}
	if cfg.YtDlpPath == "" {
		cfg.YtDlpPath = "yt-dlp"
	}
	return cfg
}

func validate(cfg Config) error {
	if cfg.DailyQuota < 1 {
		return fmt.Errorf("invalid daily_quota: %d (must be >= 1)", cfg.DailyQuota)
	}
	if cfg.WarnThreshold < 0 || cfg.WarnThreshold > cfg.DailyQuota {
		return fmt.Errorf("invalid quota_warn_threshold: %d (must be in [0, daily_quota])", cfg.WarnThreshold)
	}
	if cfg.SummaryRetries < 0 {
		return fmt.Errorf("invalid summary_retries: %d (must be >= 0)", cfg.SummaryRetries)
	}
	if cfg.ChunkSeconds < 30 {
		return fmt.Errorf("invalid chunk_seconds: %d (must be >= 30)", cfg.ChunkSeconds)
	}
	if cfg.OverlapSeconds < 0 || cfg.OverlapSeconds >= cfg.ChunkSeconds {
		return fmt.Errorf("invalid chunk_overlap_seconds: %d (must be in [0, chunk_seconds))", cfg.OverlapSeconds)
	}
	return nil
}

// applyEnv attaches secrets from the environment. GEMINI_API_KEYS is a
// comma-separated list; keys rotate on rate limiting.
func applyEnv(cfg Config) Config {
	if key := strings.TrimSpace(os.Getenv("TRNS_AUTH_KEY")); key != "" {
		cfg.AuthKey = key
	}
	if raw := os.Getenv("GEMINI_API_KEYS"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.APIKeys = append(cfg.APIKeys, k)
			}
		}
	}
	return cfg
}
