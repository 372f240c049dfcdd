package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated = errors.New("session not authenticated")
	ErrAlreadyActive    = errors.New("task already active for session")
	ErrNotAccepting     = errors.New("engine is not accepting new tasks")
	ErrInvalidKey       = errors.New("invalid authentication key")
	ErrTaskNotFound     = errors.New("task not found")
	ErrInvalidMode      = errors.New("invalid processing mode")
)

// Stable error kinds carried on terminal error events. The caller never sees
// a raw internal error, only one of these plus a message.
const (
	ErrKindExtraction    = "extraction_error"
	ErrKindTranscription = "transcription_error"
	ErrKindSummarization = "summarization_error"
	ErrKindQuota         = "quota_exceeded"
	ErrKindInternal      = "internal_error"
)

// TaskError is a stage-aware failure returned by the pipeline. Partial holds
// whatever transcript/translation was produced before the failure so it can
// be delivered with the terminal event instead of being discarded.
type TaskError struct {
	Kind    string
	Stage   string
	Partial string
	Err     error
}

func (e *TaskError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// ErrKindOf maps an error to its stable kind, defaulting to internal_error.
func ErrKindOf(err error) string {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ErrKindInternal
}
