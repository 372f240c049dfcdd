package executor

import "context"

// Executor runs external media tools (ffmpeg, whisper.cpp, yt-dlp) and
// returns their captured stdout. Implementations must honor context
// cancellation by killing the process.
type Executor interface {
	Execute(ctx context.Context, name string, args ...string) (string, error)
}
