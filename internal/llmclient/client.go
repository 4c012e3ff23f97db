// Package llmclient implements the chat-completion HTTP client: bearer
// auth, bounded retries with jittered backoff, and the OpenAI-compatible
// envelope. Structured in the style of
// kalambet-tbyd/internal/proxy/openrouter.go; retry/backoff/error-kind
// mapping follows the same retry/backoff shape.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/usercommon/scrapeapi/internal/apperrors"
)

const (
	maxRetries    = 3
	baseDelay     = 1 * time.Second
	maxDelay      = 30 * time.Second
	defaultTimeout = 60 * time.Second
)

// Message is one chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to an OpenAI-compatible chat-completion provider.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. Fails fast if apiKey is empty.
func New(apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, apperrors.New(apperrors.KindConfiguration, "LLM API key cannot be empty")
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a chat-completion request and returns the first choice's
// message content verbatim. Transient/rate-limit failures are retried, for
// at most maxRetries attempts in total, with exponential backoff and 0-10%
// jitter (a rate-limit response's Retry-After header, when present, sets
// the delay instead), reusing the same payload on every attempt.
func (c *Client) Complete(ctx context.Context, messages []Message, model string, temperature float64, maxTokens int) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages:    messages,
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, "encoding chat request", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		content, retryAfter, err := c.doComplete(ctx, payload)
		if err == nil {
			return content, nil
		}

		var appErr *apperrors.Error
		if !apperrors.As(err, &appErr) || !appErr.Retryable() {
			return "", err
		}
		lastErr = err

		if attempt == maxRetries-1 {
			break
		}

		delay := backoffDelay(attempt)
		if retryAfter > 0 {
			delay = time.Duration(retryAfter) * time.Second
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	return "", lastErr
}

func backoffDelay(attempt int) time.Duration {
	delay := baseDelay * time.Duration(1<<uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}

func (c *Client) doComplete(ctx context.Context, payload []byte) (content string, retryAfterSeconds int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", 0, apperrors.Wrap(apperrors.KindInternal, "building request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, apperrors.Wrap(apperrors.KindTransientNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		var out chatResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return "", 0, apperrors.Wrap(apperrors.KindParsing, "decoding chat response", err)
		}
		if len(out.Choices) == 0 {
			return "", 0, apperrors.New(apperrors.KindParsing, "chat response had no choices")
		}
		return out.Choices[0].Message.Content, 0, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return "", 0, apperrors.New(apperrors.KindAuthentication, "LLM provider rejected the bearer token")

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if h := resp.Header.Get("Retry-After"); h != "" {
			if n, perr := strconv.Atoi(h); perr == nil {
				retryAfter = n
			}
		}
		msg := "rate limit exceeded"
		if retryAfter > 0 {
			msg = fmt.Sprintf("rate limit exceeded, retry after %ds", retryAfter)
		}
		e := apperrors.New(apperrors.KindRateLimit, msg)
		e.RetryAfter = retryAfter
		return "", retryAfter, e

	case resp.StatusCode >= 500:
		return "", 0, apperrors.New(apperrors.KindTransientNetwork, fmt.Sprintf("provider service error (HTTP %d)", resp.StatusCode))

	default:
		return "", 0, apperrors.New(apperrors.KindAPIError, fmt.Sprintf("provider API error (HTTP %d): %s", resp.StatusCode, string(body)))
	}
}
