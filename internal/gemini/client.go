package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// APIError wraps a generation failure with its retry classification.
// Rate-limit and availability failures are transient; everything else is
// permanent for the request.
type APIError struct {
	Err       error
	transient bool
}

func (e *APIError) Error() string   { return e.Err.Error() }
func (e *APIError) Unwrap() error   { return e.Err }
func (e *APIError) Transient() bool { return e.transient }

// Client issues text-generation calls against the Gemini API, rotating
// through the configured keys when one hits its own rate limit or quota.
type Client struct {
	model string

	mu         sync.Mutex
	keys       []string
	currentKey int
}

// NewClient creates a client over one or more API keys.
func NewClient(model string, keys []string) (*Client, error) {
	if len(keys) == 0 {
		return nil, errors.New("no API keys configured")
	}
	return &Client{model: model, keys: keys}, nil
}

// Generate sends a single prompt and returns the concatenated text parts of
// the first candidate. Each configured key is tried at most once per call.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	attempts := c.keyCount()
	var lastErr error

	for range attempts {
		key := c.activeKey()

		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			lastErr = fmt.Errorf("create client: %w", err)
			c.rotateKey()
			continue
		}

		result, err := client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if isRateLimited(err) {
				lastErr = err
				c.rotateKey()
				continue
			}
			return "", &APIError{Err: fmt.Errorf("generate content: %w", err), transient: isTransient(err)}
		}

		if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
			var text strings.Builder
			for _, part := range result.Candidates[0].Content.Parts {
				text.WriteString(part.Text)
			}
			if text.Len() > 0 {
				return text.String(), nil
			}
		}
		return "", &APIError{Err: errors.New("empty response"), transient: true}
	}

	// every key rate limited: retryable later, not a hard failure
	return "", &APIError{Err: fmt.Errorf("all API keys exhausted: %w", lastErr), transient: true}
}

func (c *Client) keyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

func (c *Client) activeKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[c.currentKey]
}

func (c *Client) rotateKey() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentKey = (c.currentKey + 1) % len(c.keys)
}

func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func isTransient(err error) bool {
	msg := err.Error()
	return isRateLimited(err) ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "UNAVAILABLE") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "timeout")
}
