package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultRetainGrace = 2 * time.Minute

// Registry tracks the in-flight background task per session. Spawn is atomic
// with respect to the at-most-one-active-task invariant: concurrent spawns
// for the same session cannot both succeed.
type Registry struct {
	mu        sync.Mutex
	bySession map[string]*Task
	byID      map[string]*Task
	grace     time.Duration
}

// NewRegistry creates an empty registry. Terminal tasks are retained for a
// bounded grace period so slow consumers can still look them up.
func NewRegistry() *Registry {
	return &Registry{
		bySession: make(map[string]*Task),
		byID:      make(map[string]*Task),
		grace:     defaultRetainGrace,
	}
}

// Spawn registers a new pending task for the session and returns it together
// with the context its pipeline run must observe for cancellation. It fails
// with ErrAlreadyActive while the session has a non-terminal task.
func (r *Registry) Spawn(parent context.Context, req Request) (*Task, context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.bySession[req.SessionID]; ok && !current.Status().Terminal() {
		return nil, nil, ErrAlreadyActive
	}

	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		ID:      uuid.NewString(),
		Request: req,
		cancel:  cancel,
		status:  StatusPending,
	}
	r.bySession[req.SessionID] = t
	r.byID[t.ID] = t
	return t, ctx, nil
}

// Get returns a task by ID.
func (r *Registry) Get(taskID string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[taskID]
	return t, ok
}

// Active returns the session's non-terminal task, if any.
func (r *Registry) Active(sessionID string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.bySession[sessionID]
	if !ok || t.Status().Terminal() {
		return nil, false
	}
	return t, true
}

// Cancel raises the cancellation signal on a task. The pipeline observes it
// at the next stage or chunk boundary; nothing is interrupted mid-flight.
func (r *Registry) Cancel(taskID string) error {
	r.mu.Lock()
	t, ok := r.byID[taskID]
	r.mu.Unlock()
	if !ok {
		return ErrTaskNotFound
	}
	t.Cancel()
	return nil
}

// CancelSession cancels the session's active task, if any.
func (r *Registry) CancelSession(sessionID string) bool {
	if t, ok := r.Active(sessionID); ok {
		t.Cancel()
		return true
	}
	return false
}

// Retire schedules removal of a terminal task after the retain grace period.
func (r *Registry) Retire(t *Task) {
	time.AfterFunc(r.grace, func() { r.remove(t) })
}

func (r *Registry) remove(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, t.ID)
	if current, ok := r.bySession[t.Request.SessionID]; ok && current.ID == t.ID {
		delete(r.bySession, t.Request.SessionID)
	}
}
