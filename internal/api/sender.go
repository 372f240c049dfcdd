package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// Chat platforms cap message length around 4096; stay under it.
const (
	maxMessageLen    = 4000
	sendRetries      = 3
	sendBackoffBase  = 500 * time.Millisecond
	sendTimeout      = 30 * time.Second
	newlineCutWindow = 0.7
)

// Sender delivers one message to a chat session.
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

// HTTPSender posts messages to the chat platform's send endpoint.
type HTTPSender struct {
	client *http.Client
	url    string
}

// NewHTTPSender creates a sender for the given send-message URL.
func NewHTTPSender(url string) *HTTPSender {
	return &HTTPSender{
		client: &http.Client{Timeout: sendTimeout},
		url:    url,
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (s *HTTPSender) Send(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send message: status %d", resp.StatusCode)
	}
	return nil
}

// SendChunked splits long text into chunks under the platform limit,
// preferring newline boundaries, and sends each chunk with bounded
// exponential-backoff retries. A chunk that fails all attempts is logged and
// skipped; later chunks are still sent.
func SendChunked(ctx context.Context, s Sender, chatID, text string) {
	for i, chunk := range splitMessage(text) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		var lastErr error
		for attempt := 0; attempt < sendRetries; attempt++ {
			if attempt > 0 {
				wait := sendBackoffBase * time.Duration(1<<(attempt-1))
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				}
			}
			if lastErr = s.Send(ctx, chatID, chunk); lastErr == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
		}
		if lastErr != nil {
			log.Error().Str("chat_id", chatID).Int("chunk", i+1).Err(lastErr).
				Msg("giving up on message chunk")
		}
	}
}

// splitMessage cuts text into pieces of at most maxMessageLen bytes. When a
// newline falls in the last 30% of a full-size piece, the cut moves there so
// paragraphs stay intact; otherwise the cut backs up to a rune boundary so
// multibyte characters are never split across messages.
func splitMessage(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var chunks []string
	for len(text) > maxMessageLen {
		cut := maxMessageLen
		if idx := strings.LastIndexByte(text[:maxMessageLen], '\n'); float64(idx) > maxMessageLen*newlineCutWindow {
			cut = idx + 1
		} else {
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if strings.TrimSpace(text) != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
