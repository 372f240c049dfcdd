package pipeline

import "strings"

// span is one audio window handed to the recognizer. Windows overlap so that
// words cut at a boundary appear in full in at least one window.
type span struct {
	Offset float64
	Length float64
}

// splitSpans covers [0, duration) with fixed windows of chunkSec seconds,
// each starting overlapSec before the previous one ended. A duration at or
// under one window yields a single span.
func splitSpans(duration, chunkSec, overlapSec float64) []span {
	if duration <= chunkSec {
		return []span{{Offset: 0, Length: duration}}
	}
	step := chunkSec - overlapSec
	var spans []span
	for offset := 0.0; offset < duration; offset += step {
		length := chunkSec
		if offset+length > duration {
			length = duration - offset
		}
		spans = append(spans, span{Offset: offset, Length: length})
		if offset+chunkSec >= duration {
			break
		}
	}
	return spans
}

// maximum overlap, in words, considered when joining adjacent chunk texts
const maxJoinWords = 60

// joinChunks concatenates per-window transcripts, dropping the duplicated
// words the overlap produces. For each boundary it finds the longest word
// suffix of the accumulated text that is also a prefix of the next chunk.
func joinChunks(parts []string) string {
	var b strings.Builder
	var tail []string
	for _, part := range parts {
		words := strings.Fields(part)
		if len(words) == 0 {
			continue
		}
		skip := overlapWords(tail, words)
		words = words[skip:]
		if len(words) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.Join(words, " "))

		tail = append(tail, words...)
		if len(tail) > maxJoinWords {
			tail = tail[len(tail)-maxJoinWords:]
		}
	}
	return b.String()
}

// overlapWords returns the length of the longest suffix of prev that equals a
// prefix of next, compared case-insensitively.
func overlapWords(prev, next []string) int {
	max := len(prev)
	if len(next) < max {
		max = len(next)
	}
	for n := max; n > 0; n-- {
		if wordsEqualFold(prev[len(prev)-n:], next[:n]) {
			return n
		}
	}
	return 0
}

func wordsEqualFold(a, b []string) bool {
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
