// Package client is the consumer side of the relay API: a plain HTTP client
// for the single-shot endpoint and an SSE reader for the streaming one, plus
// a Session that enforces the one-active-stream-per-session rule.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sergueidmitriev/slm-chat/internal/api"
	"github.com/sergueidmitriev/slm-chat/internal/retry"
)

const (
	ssePrefix = "data: "

	// Lines are short JSON objects; a megabyte of headroom covers even
	// pathological fragments.
	maxLineBytes = 1 << 20
)

// StreamError is a failure the relay reported mid-stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream failed: %s", e.Message)
}

// Client talks to one relay server.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a relay client. A nil httpClient falls back to a default with
// no overall timeout, since streaming responses are open-ended.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: baseURL, client: httpClient}, nil
}

// SendMessage performs a single-shot chat request and returns the full
// response text.
func (c *Client) SendMessage(ctx context.Context, req api.ChatRequest) (string, error) {
	httpResp, err := c.post(ctx, "/api/chat", req)
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return "", decodeAPIError(httpResp)
	}

	var resp api.ChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return resp.Message, nil
}

// StreamMessage performs a streaming chat request, invoking onChunk for each
// text fragment in arrival order. It returns nil on normal completion
// (sentinel or clean EOF), a StreamError if the relay reported a failure,
// and the context's error when cancelled. Cancelling the context stops the
// read loop and releases the connection.
func (c *Client) StreamMessage(ctx context.Context, req api.ChatRequest, onChunk func(string)) error {
	httpResp, err := c.post(ctx, "/api/chat/stream", req)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return decodeAPIError(httpResp)
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, ssePrefix) {
			// Blank separator lines between events.
			continue
		}

		payload := strings.TrimPrefix(line, ssePrefix)
		if payload == api.StreamDone {
			return nil
		}

		var event api.StreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			slog.Warn("skipping malformed stream line", "error", err)
			continue
		}

		if event.Error != "" {
			return &StreamError{Message: event.Error}
		}
		if event.Chunk != "" && onChunk != nil {
			onChunk(event.Chunk)
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read stream: %w", err)
	}
	// EOF without sentinel: treat as implicit completion.
	return nil
}

// Health fetches the relay's health report.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return api.HealthResponse{}, fmt.Errorf("construct health request: %w", err)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return api.HealthResponse{}, fmt.Errorf("health request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return api.HealthResponse{}, decodeAPIError(httpResp)
	}

	var resp api.HealthResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return api.HealthResponse{}, fmt.Errorf("decode health response: %w", err)
	}
	return resp, nil
}

// WaitHealthy polls the health endpoint with exponential backoff until the
// relay reports healthy or attempts run out.
func (c *Client) WaitHealthy(ctx context.Context, attempts int) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		health, err := c.Health(ctx)
		if err != nil {
			return err
		}
		if health.Status != api.HealthStatusHealthy {
			return fmt.Errorf("relay is %s, model %q unavailable", health.Status, health.Model.Name)
		}
		return nil
	}, retry.Options{
		MaxAttempts: attempts,
		Delay:       time.Second,
		Backoff:     true,
		OnRetry: func(attempt int, err error) {
			slog.Warn("health check failed, retrying", "attempt", attempt, "error", err)
		},
	})
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", path, err)
	}
	return httpResp, nil
}

func decodeAPIError(resp *http.Response) error {
	var apiErr api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("relay error (status %d): %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("relay error: unexpected status %d", resp.StatusCode)
}
