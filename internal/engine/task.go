package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mode selects which pipeline stages may run for a request.
type Mode string

const (
	ModeAuto           Mode = "auto"
	ModeSubtitlesOnly  Mode = "subtitles-only"
	ModeTranscribeOnly Mode = "transcribe-only"
)

// ParseMode validates a caller-supplied mode string. Empty means auto.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.TrimSpace(strings.ToLower(raw))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeSubtitlesOnly:
		return ModeSubtitlesOnly, nil
	case ModeTranscribeOnly:
		return ModeTranscribeOnly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// Status is the task lifecycle state. Terminal statuses are final.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Request is the immutable description of one unit of submitted work.
type Request struct {
	Source      string
	SessionID   string
	Mode        Mode
	SubmittedAt time.Time
}

// Artifact is one partial result produced by a pipeline stage, kept on the
// task in stage order.
type Artifact struct {
	Stage string `json:"stage"`
	Text  string `json:"text"`
}

// Task represents one in-flight pipeline run for a session.
type Task struct {
	ID      string
	Request Request

	cancel context.CancelFunc

	mu        sync.Mutex
	status    Status
	artifacts []Artifact
}

// Status returns the current lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// setStatus applies a transition. Terminal statuses are immutable.
func (t *Task) setStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = s
}

// Cancel raises the task's cancellation signal. The pipeline observes it
// cooperatively at stage and chunk boundaries.
func (t *Task) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

// addArtifact records a stage's partial output.
func (t *Task) addArtifact(stage, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.artifacts = append(t.artifacts, Artifact{Stage: stage, Text: text})
}

// Artifacts returns a snapshot of partial results produced so far.
func (t *Task) Artifacts() []Artifact {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Artifact, len(t.artifacts))
	copy(out, t.artifacts)
	return out
}
