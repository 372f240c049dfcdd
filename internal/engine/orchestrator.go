package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner executes the fallback pipeline for one request. It emits progress
// and partial-result events through emit and returns either the final report
// text or an error (a *TaskError for classified failures). It must observe
// ctx at stage boundaries and return ctx.Err() once cancelled.
type Runner interface {
	Run(ctx context.Context, req Request, emit func(OutputEvent)) (string, error)
}

// Options configures the orchestrator.
type Options struct {
	Sessions      *Sessions
	Registry      *Registry
	Dispatcher    *Dispatcher
	Quota         *Quota
	Runner        Runner
	WarnThreshold int
}

// Orchestrator is the submission entry point. It authorizes the session,
// registers the task, runs the pipeline in the background, and routes its
// events through the dispatcher. Callers observe progress only by draining
// the dispatcher.
type Orchestrator struct {
	sessions      *Sessions
	registry      *Registry
	dispatcher    *Dispatcher
	quota         *Quota
	runner        Runner
	warnThreshold int

	accepting atomic.Bool
	baseCtx   context.Context
	workersWG sync.WaitGroup
}

// NewOrchestrator wires the engine together.
func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		sessions:      opts.Sessions,
		registry:      opts.Registry,
		dispatcher:    opts.Dispatcher,
		quota:         opts.Quota,
		runner:        opts.Runner,
		warnThreshold: opts.WarnThreshold,
		baseCtx:       context.Background(),
	}
	o.accepting.Store(true)
	return o
}

// SetBaseContext sets the context all pipeline runs descend from. Cancelled
// during shutdown.
func (o *Orchestrator) SetBaseContext(ctx context.Context) {
	o.baseCtx = ctx
}

// Accepting reports whether new submissions are admitted. Used by the
// transport's liveness check.
func (o *Orchestrator) Accepting() bool { return o.accepting.Load() }

// StopAccepting rejects further submissions; in-flight tasks keep running.
func (o *Orchestrator) StopAccepting() { o.accepting.Store(false) }

// Sessions exposes the session store to the transport layer.
func (o *Orchestrator) Sessions() *Sessions { return o.sessions }

// QuotaSnapshot returns used and limit for the current UTC day.
func (o *Orchestrator) QuotaSnapshot() (used, limit int) { return o.quota.Snapshot() }

// WarnThreshold is the remaining-quota level below which callers are warned.
func (o *Orchestrator) WarnThreshold() int { return o.warnThreshold }

// Drain exposes the session's event stream.
func (o *Orchestrator) Drain(ctx context.Context, sessionID string) <-chan OutputEvent {
	return o.dispatcher.Drain(ctx, sessionID)
}

// Pending reports how many events are queued for the session but not yet
// drained.
func (o *Orchestrator) Pending(sessionID string) int { return o.dispatcher.Pending(sessionID) }

// Active returns the session's non-terminal task, if any.
func (o *Orchestrator) Active(sessionID string) (*Task, bool) {
	return o.registry.Active(sessionID)
}

// Get returns a task by ID.
func (o *Orchestrator) Get(taskID string) (*Task, bool) { return o.registry.Get(taskID) }

// Cancel cancels the session's active task. Returns false when idle.
func (o *Orchestrator) Cancel(sessionID string) bool {
	return o.registry.CancelSession(sessionID)
}

// Submit accepts one request for the session and spawns its pipeline run.
// Rejections, in check order: ErrNotAccepting, ErrNotAuthenticated,
// ErrAlreadyActive. Quota is not checked here; only the summarization stage
// costs quota and it reserves lazily.
func (o *Orchestrator) Submit(sessionID, source string, mode Mode) (*Task, error) {
	if !o.Accepting() {
		return nil, ErrNotAccepting
	}
	if !o.sessions.IsAuthenticated(sessionID) {
		return nil, ErrNotAuthenticated
	}

	req := Request{
		Source:      source,
		SessionID:   sessionID,
		Mode:        mode,
		SubmittedAt: time.Now().UTC(),
	}
	task, runCtx, err := o.registry.Spawn(o.baseCtx, req)
	if err != nil {
		return nil, err
	}

	log.Info().Str("task_id", task.ID).Str("session_id", sessionID).
		Str("mode", string(mode)).Msg("task accepted")

	if remaining := o.quota.Remaining(); remaining < o.warnThreshold {
		o.emit(task, OutputEvent{
			Kind:    EventWarning,
			Message: fmt.Sprintf("daily capacity low: %d calls remaining", remaining),
		})
	}

	o.workersWG.Add(1)
	go func() {
		defer o.workersWG.Done()
		o.run(runCtx, task)
	}()
	return task, nil
}

// run drives one pipeline execution and emits the single terminal event.
func (o *Orchestrator) run(ctx context.Context, task *Task) {
	task.setStatus(StatusRunning)

	report, err := o.runner.Run(ctx, task.Request, func(ev OutputEvent) {
		o.emit(task, ev)
	})

	switch {
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		task.setStatus(StatusCancelled)
		o.emit(task, OutputEvent{
			Kind:    EventCancelled,
			Message: "processing cancelled",
		})
		log.Info().Str("task_id", task.ID).Msg("task cancelled")
	case err != nil:
		task.setStatus(StatusFailed)
		var te *TaskError
		event := OutputEvent{Kind: EventError, ErrKind: ErrKindOf(err), Message: "processing failed"}
		if errors.As(err, &te) {
			event.Stage = te.Stage
			event.Text = te.Partial
		}
		o.emit(task, event)
		log.Error().Str("task_id", task.ID).Str("error_kind", event.ErrKind).
			Err(err).Msg("task failed")
	default:
		task.addArtifact("summary", report)
		task.setStatus(StatusCompleted)
		o.emit(task, OutputEvent{Kind: EventReport, Text: report})
		log.Info().Str("task_id", task.ID).Msg("task completed")
	}

	o.registry.Retire(task)
}

// emit stamps the task ID, records partial artifacts, and enqueues.
func (o *Orchestrator) emit(task *Task, ev OutputEvent) {
	ev.TaskID = task.ID
	if ev.Kind == EventPartial && ev.Text != "" {
		task.addArtifact(ev.Stage, ev.Text)
	}
	o.dispatcher.Enqueue(task.Request.SessionID, ev)
}

// WaitAll blocks until all in-flight pipeline workers finish or ctx is done.
// Returns true if all workers finished.
func (o *Orchestrator) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		o.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
