package engine

import "time"

// EventKind classifies messages streamed to the caller while a task runs.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventPartial   EventKind = "partial_transcript"
	EventWarning   EventKind = "warning"
	EventReport    EventKind = "final_report"
	EventError     EventKind = "error"
	EventCancelled EventKind = "cancelled"
)

// OutputEvent is one sequenced item on a session's output queue. Sequence and
// timestamp are assigned by the dispatcher on enqueue. Ordering within a
// session follows pipeline stage order; cross-session ordering is undefined.
type OutputEvent struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	TaskID    string    `json:"task_id"`
	Kind      EventKind `json:"kind"`
	Stage     string    `json:"stage,omitempty"`
	Message   string    `json:"message,omitempty"`
	Text      string    `json:"text,omitempty"`
	ErrKind   string    `json:"error_kind,omitempty"`
}

// Terminal reports whether the event ends the task's stream. The consumer
// stops draining for the task once it observes a terminal event.
func (e OutputEvent) Terminal() bool {
	switch e.Kind {
	case EventReport, EventError, EventCancelled:
		return true
	default:
		return false
	}
}
