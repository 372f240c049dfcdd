package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"trns/internal/engine"
)

type scriptedRunner struct {
	run func(ctx context.Context, req engine.Request, emit func(engine.OutputEvent)) (string, error)
}

func (s *scriptedRunner) Run(ctx context.Context, req engine.Request, emit func(engine.OutputEvent)) (string, error) {
	if s.run == nil {
		return "report", nil
	}
	return s.run(ctx, req, emit)
}

func newTestRouter(t *testing.T, runner engine.Runner) (*gin.Engine, *engine.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := engine.NewSessions("test-key", "")
	orchestrator := engine.NewOrchestrator(engine.Options{
		Sessions:      sessions,
		Registry:      engine.NewRegistry(),
		Dispatcher:    engine.NewDispatcher(),
		Quota:         engine.NewQuota(1000),
		Runner:        runner,
		WarnThreshold: 50,
	})

	router := gin.New()
	NewAPI(orchestrator).RegisterRoutes(router)
	return router, orchestrator
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedRunner{})
	rec := doJSON(t, router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"accepting":true`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestAuthenticateFlow(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedRunner{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions/u1/auth", `{"key":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/sessions/u1/auth", `{"key":"test-key"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("correct key status = %d", rec.Code)
	}
}

func TestSubmitRequiresAuthentication(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedRunner{})
	rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions/u1/tasks", `{"source":"https://example.org/v"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSubmitAcceptsTask(t *testing.T) {
	router, orchestrator := newTestRouter(t, &scriptedRunner{})
	orchestrator.Sessions().Grant("u1")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions/u1/tasks", `{"source":"https://example.org/v","mode":"auto"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.TaskID == "" {
		t.Fatalf("bad response: %s", rec.Body.String())
	}
}

func TestSubmitRejectsInvalidMode(t *testing.T) {
	router, orchestrator := newTestRouter(t, &scriptedRunner{})
	orchestrator.Sessions().Grant("u1")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions/u1/tasks", `{"source":"x","mode":"lyrics"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitConflictWhileActive(t *testing.T) {
	block := make(chan struct{})
	router, orchestrator := newTestRouter(t, &scriptedRunner{
		run: func(ctx context.Context, _ engine.Request, _ func(engine.OutputEvent)) (string, error) {
			<-block
			return "report", nil
		},
	})
	orchestrator.Sessions().Grant("u1")
	defer close(block)

	if rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions/u1/tasks", `{"source":"a"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("first submit status = %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions/u1/tasks", `{"source":"b"}`); rec.Code != http.StatusConflict {
		t.Fatalf("second submit status = %d, want 409", rec.Code)
	}
}

func TestCancelWithoutActiveTask(t *testing.T) {
	router, orchestrator := newTestRouter(t, &scriptedRunner{})
	orchestrator.Sessions().Grant("u1")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions/u1/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStats(t *testing.T) {
	router, orchestrator := newTestRouter(t, &scriptedRunner{})
	orchestrator.Sessions().Grant("u1")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/sessions/u1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Limit != 1000 || resp.Remaining != 1000 {
		t.Fatalf("stats = %+v", resp)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedRunner{})
	rec := doJSON(t, router, http.MethodGet, "/api/v1/tasks/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStreamEventsDeliversNDJSONUntilTerminal(t *testing.T) {
	router, orchestrator := newTestRouter(t, &scriptedRunner{
		run: func(_ context.Context, _ engine.Request, emit func(engine.OutputEvent)) (string, error) {
			emit(engine.OutputEvent{Kind: engine.EventProgress, Stage: "captions", Message: "looking for captions"})
			return "the report", nil
		},
	})
	orchestrator.Sessions().Grant("u1")

	if rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions/u1/tasks", `{"source":"v"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/u1/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content type = %q", ct)
	}

	var kinds []engine.EventKind
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var ev engine.OutputEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("bad NDJSON line %q: %v", scanner.Text(), err)
		}
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 2 || kinds[0] != engine.EventProgress || kinds[1] != engine.EventReport {
		t.Fatalf("kinds = %v, want progress then final_report", kinds)
	}
}
