package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sergueidmitriev/slm-chat/internal/api"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "slm-chat/0.1"

	// healthTimeout bounds listing requests used for health and model
	// info; a hung upstream must degrade, not block.
	healthTimeout = 5 * time.Second

	maxErrorBodyBytes = 64 * 1024
)

// UpstreamError reports a non-2xx response from the inference server.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("ollama upstream status %d: %s", e.StatusCode, e.Body)
}

// Client issues requests against one configured Ollama server and model.
type Client struct {
	baseURL     string
	model       string
	client      *http.Client
	generateURL string
	tagsURL     string
}

// New creates a client for the given upstream. The http.Client is injected
// so callers control transport behaviour and tests can point at fakes.
func New(baseURL, model string, client *http.Client) (*Client, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("model name must not be empty")
	}

	return &Client{
		baseURL:     baseURL,
		model:       model,
		client:      client,
		generateURL: baseURL + "/api/generate",
		tagsURL:     baseURL + "/api/tags",
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Generate issues a non-streaming generation request and returns the full
// response text.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	httpReq, err := c.newGenerateRequest(ctx, prompt, opts, false)
	if err != nil {
		return "", err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama generate request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return "", readUpstreamError(httpResp)
	}

	var resp GenerateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}

	return resp.Response, nil
}

// GenerateStream issues a streaming generation request. The returned channel
// yields text fragments in upstream order and is closed on completion; a
// mid-stream failure is delivered as a final Chunk with Err set. Cancelling
// the context stops emission within one iteration and releases the upstream
// connection.
func (c *Client) GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan Chunk, error) {
	httpReq, err := c.newGenerateRequest(ctx, prompt, opts, true)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama generate request failed: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		defer httpResp.Body.Close()
		return nil, readUpstreamError(httpResp)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer httpResp.Body.Close()

		reader := NewStreamReader(httpResp.Body)
		for {
			if err := ctx.Err(); err != nil {
				return
			}

			text, err := reader.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if ctx.Err() != nil {
					// Aborted by the caller; the closed body
					// surfaces as a read error, not a failure.
					return
				}
				select {
				case out <- Chunk{Err: fmt.Errorf("ollama stream failed: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case out <- Chunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// ListModels fetches the upstream model listing.
func (c *Client) ListModels(ctx context.Context) ([]ModelTag, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tagsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("construct tags request: %w", err)
	}
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("User-Agent", userAgent)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama tags request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, readUpstreamError(httpResp)
	}

	var resp TagsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	return resp.Models, nil
}

// CheckHealth reports whether the upstream is reachable and serves the
// configured model. It never returns an error; any failure or timeout is
// simply unhealthy.
func (c *Client) CheckHealth(ctx context.Context) bool {
	tags, err := c.ListModels(ctx)
	if err != nil {
		slog.Warn("ollama health check failed", "error", err)
		return false
	}

	for _, tag := range tags {
		if tag.Name == c.model {
			return true
		}
	}

	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	slog.Warn("configured model not installed upstream",
		"model", c.model,
		"available", strings.Join(names, ", "),
	)
	return false
}

// ModelInfo describes the configured model. Status is ready when the model
// appears in the upstream listing and unavailable otherwise, including on
// any request failure.
func (c *Client) ModelInfo(ctx context.Context) api.ModelInfo {
	info := api.ModelInfo{
		Name:     c.model,
		Provider: "Ollama",
		Status:   api.ModelStatusUnavailable,
	}

	tags, err := c.ListModels(ctx)
	if err != nil {
		return info
	}

	for _, tag := range tags {
		if tag.Name == c.model {
			info.Status = api.ModelStatusReady
			info.Version = tag.ModifiedAt
			break
		}
	}
	return info
}

func (c *Client) newGenerateRequest(ctx context.Context, prompt string, opts Options, stream bool) (*http.Request, error) {
	payload := GenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  stream,
		Options: &opts,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal generate payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.generateURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct generate request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func readUpstreamError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return &UpstreamError{StatusCode: resp.StatusCode, Body: "failed to read error body"}
	}
	return &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
