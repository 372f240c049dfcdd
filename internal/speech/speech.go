package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"trns/pkg/executor"
)

// Recognizer PCM format: 16 kHz, mono, signed 16-bit little-endian.
const (
	sampleRate    = 16000
	bytesPerSec   = sampleRate * 2
	wavHeaderSize = 44
)

// Config holds the external tool paths for the speech stage.
type Config struct {
	FFmpegPath   string
	WhisperPath  string
	WhisperModel string
	YtDlpPath    string
}

// Engine extracts recognizer-ready audio from media sources and transcribes
// it window by window with whisper.cpp.
type Engine struct {
	exec executor.Executor
	cfg  Config
}

// NewEngine creates a speech engine over an executor.
func NewEngine(exec executor.Executor, cfg Config) *Engine {
	return &Engine{exec: exec, cfg: cfg}
}

// ExtractAudio produces a 16 kHz mono PCM WAV file for the source and
// returns its path, duration in seconds, and a cleanup func that removes the
// work dir.
func (e *Engine) ExtractAudio(ctx context.Context, source string) (string, float64, func(), error) {
	dir, err := os.MkdirTemp("", "speech-*")
	if err != nil {
		return "", 0, nil, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Str("dir", dir).Err(err).Msg("cleanup work dir failed")
		}
	}

	input := source
	if isRemote(source) {
		input = filepath.Join(dir, "download")
		if _, err := e.exec.Execute(ctx, e.cfg.YtDlpPath,
			"-f", "bestaudio/best",
			"--no-playlist",
			"-o", input,
			source,
		); err != nil {
			cleanup()
			return "", 0, nil, fmt.Errorf("download audio: %w", err)
		}
	}

	wavPath := filepath.Join(dir, "audio.wav")
	if _, err := e.exec.Execute(ctx, e.cfg.FFmpegPath,
		"-y",
		"-i", input,
		"-vn",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-c:a", "pcm_s16le",
		wavPath,
	); err != nil {
		cleanup()
		return "", 0, nil, fmt.Errorf("extract audio: %w", err)
	}

	duration, err := wavDuration(wavPath)
	if err != nil {
		cleanup()
		return "", 0, nil, err
	}
	return wavPath, duration, cleanup, nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// wavDuration derives the duration of a PCM s16le mono 16 kHz file from its
// size; good enough for windowing, no probe process needed.
func wavDuration(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat audio: %w", err)
	}
	payload := info.Size() - wavHeaderSize
	if payload <= 0 {
		return 0, fmt.Errorf("audio file %s is empty", path)
	}
	return float64(payload) / bytesPerSec, nil
}

// whisperOutput mirrors the JSON whisper.cpp writes with -oj.
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Text string `json:"text"`
	} `json:"transcription"`
}

// Transcribe runs the recognizer over one window of the extracted audio. An
// empty lang requests auto-detection; the detected code is returned so the
// caller can pin it for subsequent windows.
func (e *Engine) Transcribe(ctx context.Context, wavPath string, offset, length float64, lang string) (string, string, error) {
	if lang == "" {
		lang = "auto"
	}
	outPrefix := fmt.Sprintf("%s-%d", strings.TrimSuffix(wavPath, ".wav"), int(offset))

	_, err := e.exec.Execute(ctx, e.cfg.WhisperPath,
		"-m", e.cfg.WhisperModel,
		"-f", wavPath,
		"-ot", strconv.Itoa(int(offset*1000)),
		"-d", strconv.Itoa(int(length*1000)),
		"-l", lang,
		"-oj",
		"-of", outPrefix,
	)
	if err != nil {
		return "", "", fmt.Errorf("transcribe window at %.0fs: %w", offset, err)
	}

	jsonPath := outPrefix + ".json"
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return "", "", fmt.Errorf("read recognizer output: %w", err)
	}
	defer os.Remove(jsonPath)

	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return "", "", fmt.Errorf("decode recognizer output: %w", err)
	}

	var text strings.Builder
	for _, seg := range out.Transcription {
		text.WriteString(seg.Text)
	}
	return strings.TrimSpace(text.String()), out.Result.Language, nil
}
