package pipeline

import (
	"strings"
	"testing"
)

func TestSplitSpansShortAudioSingleSpan(t *testing.T) {
	spans := splitSpans(120, 300, 5)
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Offset != 0 || spans[0].Length != 120 {
		t.Fatalf("span = %+v", spans[0])
	}
}

func TestSplitSpansOverlapAndCoverage(t *testing.T) {
	spans := splitSpans(700, 300, 5)
	if len(spans) < 3 {
		t.Fatalf("got %d spans, want at least 3", len(spans))
	}
	if spans[0].Offset != 0 {
		t.Fatalf("first span offset = %v", spans[0].Offset)
	}
	for i := 1; i < len(spans); i++ {
		prevEnd := spans[i-1].Offset + spans[i-1].Length
		if spans[i].Offset >= prevEnd {
			t.Fatalf("span %d starts at %v, after previous end %v: gap", i, spans[i].Offset, prevEnd)
		}
		if got := prevEnd - spans[i].Offset; i < len(spans)-1 && got != 5 {
			t.Fatalf("span %d overlap = %v, want 5", i, got)
		}
	}
	last := spans[len(spans)-1]
	if last.Offset+last.Length < 700 {
		t.Fatalf("spans end at %v, want coverage through 700", last.Offset+last.Length)
	}
}

func TestJoinChunksDropsBoundaryDuplicates(t *testing.T) {
	got := joinChunks([]string{
		"the quick brown fox jumps",
		"fox jumps over the lazy dog",
	})
	want := "the quick brown fox jumps over the lazy dog"
	if got != want {
		t.Fatalf("joined = %q, want %q", got, want)
	}
}

func TestJoinChunksCaseInsensitiveOverlap(t *testing.T) {
	got := joinChunks([]string{"Hello there General", "general Kenobi"})
	if got != "Hello there General Kenobi" {
		t.Fatalf("joined = %q", got)
	}
}

func TestJoinChunksNoOverlap(t *testing.T) {
	got := joinChunks([]string{"first part", "second part"})
	if got != "first part second part" {
		t.Fatalf("joined = %q", got)
	}
}

func TestJoinChunksSkipsEmptyParts(t *testing.T) {
	got := joinChunks([]string{"", "  ", "only words here"})
	if got != "only words here" {
		t.Fatalf("joined = %q", got)
	}
}

func TestJoinChunksFullyDuplicatedChunk(t *testing.T) {
	got := joinChunks([]string{"repeat after me", "repeat after me"})
	if got != "repeat after me" {
		t.Fatalf("joined = %q", got)
	}
	if strings.Count(got, "repeat") != 1 {
		t.Fatalf("duplicate survived: %q", got)
	}
}
