package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"trns/internal/engine"
)

type authRequest struct {
	Key string `json:"key"`
}

type submitRequest struct {
	Source string `json:"source"`
	Mode   string `json:"mode"`
}

type submitResponse struct {
	TaskID string        `json:"task_id"`
	Status engine.Status `json:"status"`
}

type taskResponse struct {
	ID        string            `json:"id"`
	Status    engine.Status     `json:"status"`
	Source    string            `json:"source"`
	Mode      engine.Mode       `json:"mode"`
	Artifacts []engine.Artifact `json:"artifacts,omitempty"`
}

type statsResponse struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// API exposes the engine over HTTP.
type API struct {
	orchestrator *engine.Orchestrator
}

func NewAPI(orchestrator *engine.Orchestrator) *API {
	return &API{orchestrator: orchestrator}
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", a.Health)
	api := router.Group("/api/v1")
	{
		api.POST("/sessions/:id/auth", a.Authenticate)
		api.POST("/sessions/:id/tasks", a.SubmitTask)
		api.POST("/sessions/:id/cancel", a.CancelTask)
		api.GET("/sessions/:id/events", a.StreamEvents)
		api.GET("/sessions/:id/stats", a.Stats)
		api.GET("/tasks/:id", a.GetTask)
	}
}

// Health reports liveness and whether submissions are still admitted.
func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "accepting": a.orchestrator.Accepting()})
}

// Authenticate exchanges the shared key for session access.
func (a *API) Authenticate(c *gin.Context) {
	sessionID := c.Param("id")
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := a.orchestrator.Sessions().Authenticate(sessionID, req.Key); err != nil {
		log.Warn().Str("session_id", sessionID).Msg("authentication rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid key"})
		return
	}
	log.Info().Str("session_id", sessionID).Msg("session authenticated")
	c.Status(http.StatusNoContent)
}

// SubmitTask accepts one processing request for the session.
func (a *API) SubmitTask(c *gin.Context) {
	sessionID := c.Param("id")
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source is required"})
		return
	}
	mode, err := engine.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := a.orchestrator.Submit(sessionID, req.Source, mode)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNotAccepting):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		case errors.Is(err, engine.ErrNotAuthenticated):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session not authenticated"})
		case errors.Is(err, engine.ErrAlreadyActive):
			c.JSON(http.StatusConflict, gin.H{"error": "a task is already running for this session"})
		default:
			log.Error().Str("session_id", sessionID).Err(err).Msg("submit failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusAccepted, submitResponse{TaskID: task.ID, Status: task.Status()})
}

// CancelTask cancels the session's active task.
func (a *API) CancelTask(c *gin.Context) {
	sessionID := c.Param("id")
	if !a.orchestrator.Sessions().IsAuthenticated(sessionID) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session not authenticated"})
		return
	}
	if !a.orchestrator.Cancel(sessionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active task"})
		return
	}
	log.Info().Str("session_id", sessionID).Msg("cancellation requested")
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// GetTask returns a task's status and accumulated artifacts.
func (a *API) GetTask(c *gin.Context) {
	id := c.Param("id")
	task, ok := a.orchestrator.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, taskResponse{
		ID:        task.ID,
		Status:    task.Status(),
		Source:    task.Request.Source,
		Mode:      task.Request.Mode,
		Artifacts: task.Artifacts(),
	})
}

// Stats reports today's summarization capacity usage.
func (a *API) Stats(c *gin.Context) {
	sessionID := c.Param("id")
	if !a.orchestrator.Sessions().IsAuthenticated(sessionID) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session not authenticated"})
		return
	}
	used, limit := a.orchestrator.QuotaSnapshot()
	c.JSON(http.StatusOK, statsResponse{Used: used, Limit: limit, Remaining: limit - used})
}

// StreamEvents drains the session's output queue as NDJSON. The stream ends
// after a terminal event or when the client disconnects; events not written
// remain queued for the next drain.
func (a *API) StreamEvents(c *gin.Context) {
	sessionID := c.Param("id")
	if !a.orchestrator.Sessions().IsAuthenticated(sessionID) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session not authenticated"})
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	for event := range a.orchestrator.Drain(c.Request.Context(), sessionID) {
		if err := enc.Encode(event); err != nil {
			log.Debug().Str("session_id", sessionID).Err(err).Msg("event stream client gone")
			return
		}
		c.Writer.Flush()
	}
}
