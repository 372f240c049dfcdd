package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"trns/internal/engine"
)

var youtubeRe = regexp.MustCompile(`(?:https?://)?(?:www\.)?(?:youtube\.com/(?:watch\?v=|live/|embed/)|youtu\.be/)[a-zA-Z0-9_-]{11}`)

var twitterRe = regexp.MustCompile(`(?:https?://)?(?:(?:www\.)?(?:twitter\.com|x\.com)/\w+/status(?:es)?/\d+|t\.co/[a-zA-Z0-9]+)`)

// IsVideoURL reports whether text is a link the pipeline knows how to fetch.
func IsVideoURL(text string) bool {
	return youtubeRe.MatchString(text) || twitterRe.MatchString(text)
}

// chat reply texts
const (
	msgWelcome        = "Send me a video link and I will send back a transcript and summary. Commands: /cancel stops the current task, /stats shows today's capacity."
	msgAskKey         = "Please send your access key to continue."
	msgKeyAccepted    = "Access granted. Send me a video link to get started."
	msgKeyRejected    = "That key is not valid. Please try again."
	msgBusy           = "A task is already running for you. Send /cancel to stop it first."
	msgShuttingDown   = "The service is restarting, please try again in a minute."
	msgNoActiveTask   = "Nothing to cancel right now."
	msgCancelAck      = "Stopping the current task."
	msgNotAVideo      = "I can only process video links (YouTube or X/Twitter) for now."
	msgAcceptedFormat = "Accepted. I will send results here as they are ready."
)

// Webhook adapts the engine to a chat-platform webhook: inbound updates
// arrive as HTTP posts, outbound messages go through a Sender. One delivery
// goroutine per session forwards queued events to the chat as they arrive.
type Webhook struct {
	orchestrator *engine.Orchestrator
	sender       Sender
	baseCtx      context.Context

	mu         sync.Mutex
	waitingKey map[string]bool
	delivering map[string]bool
}

// NewWebhook creates the chat transport. baseCtx bounds the lifetime of
// delivery goroutines.
func NewWebhook(baseCtx context.Context, orchestrator *engine.Orchestrator, sender Sender) *Webhook {
	return &Webhook{
		orchestrator: orchestrator,
		sender:       sender,
		baseCtx:      baseCtx,
		waitingKey:   make(map[string]bool),
		delivering:   make(map[string]bool),
	}
}

// RegisterRoutes registers the webhook endpoint.
func (w *Webhook) RegisterRoutes(router *gin.Engine) {
	router.POST("/webhook", w.HandleUpdate)
}

type chatUpdate struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// HandleUpdate processes one inbound chat message. The webhook always
// returns 200 once the update is parsed; user-facing replies go through the
// sender, not the HTTP response.
func (w *Webhook) HandleUpdate(c *gin.Context) {
	var update chatUpdate
	if err := c.ShouldBindJSON(&update); err != nil || update.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})

	text := strings.TrimSpace(update.Text)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "/") {
		w.handleCommand(update.ChatID, text)
		return
	}
	w.handleText(update.ChatID, text)
}

func (w *Webhook) handleCommand(chatID, text string) {
	command := strings.ToLower(strings.Fields(text)[0])
	switch command {
	case "/start":
		if !w.orchestrator.Sessions().IsAuthenticated(chatID) {
			w.setWaitingKey(chatID, true)
			w.reply(chatID, msgAskKey)
			return
		}
		w.reply(chatID, msgWelcome)
	case "/cancel":
		if !w.requireAuth(chatID) {
			return
		}
		if w.orchestrator.Cancel(chatID) {
			w.reply(chatID, msgCancelAck)
		} else {
			w.reply(chatID, msgNoActiveTask)
		}
	case "/stats":
		if !w.requireAuth(chatID) {
			return
		}
		used, limit := w.orchestrator.QuotaSnapshot()
		w.reply(chatID, fmt.Sprintf("Today's usage: %d of %d summaries, %d remaining.", used, limit, limit-used))
	default:
		log.Debug().Str("chat_id", chatID).Str("command", command).Msg("unknown command")
	}
}

func (w *Webhook) handleText(chatID, text string) {
	if w.isWaitingKey(chatID) {
		if err := w.orchestrator.Sessions().Authenticate(chatID, text); err != nil {
			w.reply(chatID, msgKeyRejected)
			return
		}
		w.setWaitingKey(chatID, false)
		w.reply(chatID, msgKeyAccepted)
		return
	}
	if !w.requireAuth(chatID) {
		return
	}
	if !IsVideoURL(text) {
		w.reply(chatID, msgNotAVideo)
		return
	}
	w.submit(chatID, text)
}

func (w *Webhook) submit(chatID, source string) {
	_, err := w.orchestrator.Submit(chatID, source, engine.ModeAuto)
	switch {
	case errors.Is(err, engine.ErrAlreadyActive):
		w.reply(chatID, msgBusy)
		return
	case errors.Is(err, engine.ErrNotAccepting):
		w.reply(chatID, msgShuttingDown)
		return
	case err != nil:
		log.Error().Str("chat_id", chatID).Err(err).Msg("chat submit failed")
		w.reply(chatID, "Something went wrong, please try again.")
		return
	}
	w.reply(chatID, msgAcceptedFormat)
	w.ensureDelivery(chatID)
}

// ensureDelivery starts the session's delivery loop if it is not running.
// Each Drain ends after one task's terminal event, but a new task may have
// been admitted while its predecessor's events were still being flushed, so
// the loop drains again as long as the session has queued events or an
// active task. The stop decision shares the mutex with the start guard so a
// concurrent submit either sees the loop still running or finds it gone and
// starts a fresh one.
func (w *Webhook) ensureDelivery(chatID string) {
	w.mu.Lock()
	if w.delivering[chatID] {
		w.mu.Unlock()
		return
	}
	w.delivering[chatID] = true
	w.mu.Unlock()

	go func() {
		for {
			for event := range w.orchestrator.Drain(w.baseCtx, chatID) {
				SendChunked(w.baseCtx, w.sender, chatID, formatEvent(event))
			}

			w.mu.Lock()
			_, active := w.orchestrator.Active(chatID)
			if w.baseCtx.Err() != nil || (!active && w.orchestrator.Pending(chatID) == 0) {
				delete(w.delivering, chatID)
				w.mu.Unlock()
				return
			}
			w.mu.Unlock()
		}
	}()
}

// formatEvent renders one output event as a chat message.
func formatEvent(event engine.OutputEvent) string {
	switch event.Kind {
	case engine.EventProgress:
		return event.Message
	case engine.EventPartial:
		return event.Text
	case engine.EventWarning:
		return "Warning: " + event.Message
	case engine.EventReport:
		return event.Text
	case engine.EventCancelled:
		return "Cancelled."
	case engine.EventError:
		msg := "Processing failed"
		switch event.ErrKind {
		case engine.ErrKindQuota:
			msg = "Daily capacity is exhausted, please try again tomorrow"
		case engine.ErrKindExtraction:
			msg = "I could not fetch that video"
		case engine.ErrKindTranscription:
			msg = "Transcription failed for this video"
		case engine.ErrKindSummarization:
			msg = "The summary service is unavailable"
		}
		if event.Text != "" {
			return msg + ". Here is what I got so far:\n\n" + event.Text
		}
		return msg + "."
	default:
		return event.Message
	}
}

func (w *Webhook) requireAuth(chatID string) bool {
	if w.orchestrator.Sessions().IsAuthenticated(chatID) {
		return true
	}
	w.setWaitingKey(chatID, true)
	w.reply(chatID, msgAskKey)
	return false
}

func (w *Webhook) reply(chatID, text string) {
	SendChunked(w.baseCtx, w.sender, chatID, text)
}

func (w *Webhook) setWaitingKey(chatID string, waiting bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if waiting {
		w.waitingKey[chatID] = true
	} else {
		delete(w.waitingKey, chatID)
	}
}

func (w *Webhook) isWaitingKey(chatID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.waitingKey[chatID]
}
