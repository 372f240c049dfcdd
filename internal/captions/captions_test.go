package captions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"trns/internal/pipeline"
)

type fakeExec struct {
	run func(ctx context.Context, name string, args ...string) (string, error)
}

func (f *fakeExec) Execute(ctx context.Context, name string, args ...string) (string, error) {
	return f.run(ctx, name, args...)
}

const sampleVTT = `WEBVTT
Kind: captions
Language: en

00:00:00.000 --> 00:00:02.000
Hello there

00:00:02.000 --> 00:00:04.000
Hello there

00:00:04.000 --> 00:00:06.000
<i>General</i> Kenobi
`

func TestStripCuesDropsTimingAndDuplicates(t *testing.T) {
	got := StripCues(sampleVTT)
	want := "Hello there\nGeneral Kenobi"
	if got != want {
		t.Fatalf("stripped = %q, want %q", got, want)
	}
}

func TestStripCuesHandlesSRT(t *testing.T) {
	srt := "1\n00:00:00,000 --> 00:00:02,000\nfirst line\n\n2\n00:00:02,000 --> 00:00:04,000\nsecond line\n"
	got := StripCues(srt)
	if got != "first line\nsecond line" {
		t.Fatalf("stripped = %q", got)
	}
}

func TestFetchRemotePrefersTargetLanguageTrack(t *testing.T) {
	f := NewFetcher(&fakeExec{
		run: func(_ context.Context, _ string, args ...string) (string, error) {
			// mimic yt-dlp dropping tracks next to the -o template
			var dir string
			for i, a := range args {
				if a == "-o" {
					dir = filepath.Dir(args[i+1])
				}
			}
			writeTrack(t, dir, "track.en.vtt", sampleVTT)
			writeTrack(t, dir, "track.ru.vtt", "WEBVTT\n\n00:00:00.000 --> 00:00:02.000\nПривет\n")
			return "", nil
		},
	}, "yt-dlp", "ru")

	text, lang, err := f.Fetch(context.Background(), "https://example.org/v")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if lang != "ru" {
		t.Fatalf("lang = %q, want ru", lang)
	}
	if text != "Привет" {
		t.Fatalf("text = %q", text)
	}
}

func TestFetchRemoteNoTracksMeansNoCaptions(t *testing.T) {
	f := NewFetcher(&fakeExec{
		run: func(context.Context, string, ...string) (string, error) { return "", nil },
	}, "yt-dlp", "ru")

	_, _, err := f.Fetch(context.Background(), "https://example.org/v")
	if !errors.Is(err, pipeline.ErrNoCaptions) {
		t.Fatalf("err = %v, want ErrNoCaptions", err)
	}
}

func TestFetchRemoteToolFailureMeansNoCaptions(t *testing.T) {
	f := NewFetcher(&fakeExec{
		run: func(context.Context, string, ...string) (string, error) {
			return "", errors.New("yt-dlp exploded")
		},
	}, "yt-dlp", "ru")

	_, _, err := f.Fetch(context.Background(), "https://example.org/v")
	if !errors.Is(err, pipeline.ErrNoCaptions) {
		t.Fatalf("err = %v, want ErrNoCaptions", err)
	}
}

func TestFetchLocalSidecar(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "lecture.mp4")
	writeTrack(t, dir, "lecture.en.vtt", sampleVTT)

	f := NewFetcher(&fakeExec{
		run: func(context.Context, string, ...string) (string, error) {
			t.Fatal("local sources must not shell out")
			return "", nil
		},
	}, "yt-dlp", "ru")

	text, lang, err := f.Fetch(context.Background(), video)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if lang != "en" {
		t.Fatalf("lang = %q, want en", lang)
	}
	if text == "" {
		t.Fatal("empty caption text")
	}
}

func TestFetchLocalWithoutSidecar(t *testing.T) {
	f := NewFetcher(&fakeExec{
		run: func(context.Context, string, ...string) (string, error) { return "", nil },
	}, "yt-dlp", "ru")

	_, _, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "bare.mp4"))
	if !errors.Is(err, pipeline.ErrNoCaptions) {
		t.Fatalf("err = %v, want ErrNoCaptions", err)
	}
}

func writeTrack(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write track: %v", err)
	}
}
