package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if cfg.Port == 0 || cfg.DataDir == "" || cfg.DailyQuota < 1 {
		t.Fatalf("default config invalid: %+v", cfg)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("not_exists.yml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.DailyQuota != defaultDailyQuota || cfg.TargetLanguage != defaultTargetLanguage {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadReadsAndValidates(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "cfg.yml")
	content := []byte("port: 9090\ndaily_quota: 10\nquota_warn_threshold: 2\ntarget_language: EN\nchunk_seconds: 60\nchunk_overlap_seconds: 3\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.DailyQuota != 10 || cfg.WarnThreshold != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.TargetLanguage != "en" {
		t.Fatalf("target language not normalized: %q", cfg.TargetLanguage)
	}
	if cfg.ChunkSeconds != 60 || cfg.OverlapSeconds != 3 {
		t.Fatalf("chunking not loaded: %+v", cfg)
	}
}

func TestLoadRejectsInvalidQuota(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "cfg.yml")
	if err := os.WriteFile(path, []byte("daily_quota: 0\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for daily_quota=0")
	}
}

func TestLoadRejectsOverlapNotSmallerThanChunk(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "cfg.yml")
	if err := os.WriteFile(path, []byte("chunk_seconds: 60\nchunk_overlap_seconds: 60\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for overlap >= chunk length")
	}
}

func TestApplyEnvSecrets(t *testing.T) {
	t.Setenv("TRNS_AUTH_KEY", "  sekret  ")
	t.Setenv("GEMINI_API_KEYS", "k1, ,k2,")
	cfg := applyEnv(Default())
	if cfg.AuthKey != "sekret" {
		t.Fatalf("auth key not trimmed: %q", cfg.AuthKey)
	}
	if len(cfg.APIKeys) != 2 || cfg.APIKeys[0] != "k1" || cfg.APIKeys[1] != "k2" {
		t.Fatalf("api keys not parsed: %v", cfg.APIKeys)
	}
}
