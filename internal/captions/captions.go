package captions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"trns/internal/pipeline"
	"trns/pkg/executor"
)

// Fetcher pulls pre-existing caption tracks. Remote sources go through
// yt-dlp; local files are checked for a sidecar subtitle file next to the
// media.
type Fetcher struct {
	exec       executor.Executor
	ytDlpPath  string
	targetLang string
}

// NewFetcher creates a caption fetcher. targetLang is preferred when a source
// offers several caption tracks.
func NewFetcher(exec executor.Executor, ytDlpPath, targetLang string) *Fetcher {
	return &Fetcher{exec: exec, ytDlpPath: ytDlpPath, targetLang: targetLang}
}

// Fetch returns the caption text and its language code. Sources without a
// usable track return pipeline.ErrNoCaptions.
func (f *Fetcher) Fetch(ctx context.Context, source string) (string, string, error) {
	if isLocal(source) {
		return f.fetchSidecar(source)
	}
	return f.fetchRemote(ctx, source)
}

func isLocal(source string) bool {
	return !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://")
}

// fetchSidecar looks for video.<lang>.vtt / video.srt style files next to a
// local media file.
func (f *Fetcher) fetchSidecar(source string) (string, string, error) {
	base := strings.TrimSuffix(source, filepath.Ext(source))
	candidates := []string{
		base + "." + f.targetLang + ".vtt",
		base + "." + f.targetLang + ".srt",
		base + ".vtt",
		base + ".srt",
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		lang := sidecarLang(path, base)
		return StripCues(string(data)), lang, nil
	}
	return "", "", pipeline.ErrNoCaptions
}

func sidecarLang(path, base string) string {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(path, base+"."), filepath.Ext(path))
	trimmed = strings.TrimSuffix(trimmed, ".")
	if trimmed == "vtt" || trimmed == "srt" || trimmed == "" {
		return ""
	}
	return trimmed
}

// fetchRemote downloads the best available caption track without downloading
// the media itself.
func (f *Fetcher) fetchRemote(ctx context.Context, source string) (string, string, error) {
	dir, err := os.MkdirTemp("", "captions-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	_, err = f.exec.Execute(ctx, f.ytDlpPath,
		"--skip-download",
		"--write-subs",
		"--write-auto-subs",
		"--sub-format", "vtt/srt/best",
		"--sub-langs", f.targetLang+",en,.*",
		"-o", filepath.Join(dir, "track"),
		source,
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		log.Debug().Str("source", source).Err(err).Msg("subtitle listing failed")
		return "", "", pipeline.ErrNoCaptions
	}

	path, lang, ok := pickTrack(dir, f.targetLang)
	if !ok {
		return "", "", pipeline.ErrNoCaptions
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read caption track: %w", err)
	}
	text := StripCues(string(data))
	if strings.TrimSpace(text) == "" {
		return "", "", pipeline.ErrNoCaptions
	}
	return text, lang, nil
}

// pickTrack chooses among downloaded track.<lang>.vtt files, preferring the
// target language.
func pickTrack(dir, targetLang string) (path, lang string, ok bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", false
	}
	var fallbackPath, fallbackLang string
	for _, e := range entries {
		name := e.Name()
		ext := filepath.Ext(name)
		if e.IsDir() || (ext != ".vtt" && ext != ".srt") {
			continue
		}
		trackLang := trackLang(name)
		if strings.EqualFold(trackLang, targetLang) {
			return filepath.Join(dir, name), trackLang, true
		}
		if fallbackPath == "" {
			fallbackPath = filepath.Join(dir, name)
			fallbackLang = trackLang
		}
	}
	if fallbackPath == "" {
		return "", "", false
	}
	return fallbackPath, fallbackLang, true
}

// trackLang extracts "en" from "track.en.vtt". Region suffixes like en-US
// collapse to the base code.
func trackLang(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) < 3 {
		return ""
	}
	lang := parts[len(parts)-2]
	if idx := strings.IndexByte(lang, '-'); idx > 0 {
		lang = lang[:idx]
	}
	return strings.ToLower(lang)
}

var (
	cueTimeRe   = regexp.MustCompile(`-->`)
	inlineTagRe = regexp.MustCompile(`<[^>]*>`)
	cueIndexRe  = regexp.MustCompile(`^\d+$`)
)

// StripCues reduces a VTT or SRT document to plain caption text: headers,
// cue indices, timing lines, and inline tags are dropped, and consecutive
// duplicate lines (common in auto-generated tracks) are collapsed.
func StripCues(doc string) string {
	var out []string
	prev := ""
	for _, raw := range strings.Split(doc, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "", line == "WEBVTT":
			continue
		case strings.HasPrefix(line, "NOTE"), strings.HasPrefix(line, "STYLE"), strings.HasPrefix(line, "Kind:"), strings.HasPrefix(line, "Language:"):
			continue
		case cueTimeRe.MatchString(line), cueIndexRe.MatchString(line):
			continue
		}
		line = strings.TrimSpace(inlineTagRe.ReplaceAllString(line, ""))
		if line == "" || line == prev {
			continue
		}
		out = append(out, line)
		prev = line
	}
	return strings.Join(out, "\n")
}
