package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergueidmitriev/slm-chat/internal/api"
)

const testModel = "qwen2.5:3b"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(srv.URL, testModel, srv.Client())
	require.NoError(t, err)
	return client
}

func TestNew_Validation(t *testing.T) {
	_, err := New("http://localhost:11434", testModel, nil)
	assert.Error(t, err)

	_, err = New("", testModel, &http.Client{})
	assert.Error(t, err)

	_, err = New("http://localhost:11434", "  ", &http.Client{})
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)

		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testModel, req.Model)
		assert.Equal(t, "say hi", req.Prompt)
		assert.False(t, req.Stream)
		require.NotNil(t, req.Options)
		assert.InDelta(t, 0.7, req.Options.Temperature, 1e-9)

		json.NewEncoder(w).Encode(GenerateResponse{
			Model:    testModel,
			Response: "hi there",
			Done:     true,
		})
	})

	text, err := client.Generate(context.Background(), "say hi", Options{Temperature: 0.7, TopP: 0.9, TopK: 40})
	require.NoError(t, err)
	assert.Equal(t, "hi there", text)
}

func TestGenerate_UpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	})

	_, err := client.Generate(context.Background(), "say hi", Options{})
	require.Error(t, err)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusNotFound, upstreamErr.StatusCode)
	assert.Contains(t, upstreamErr.Body, "model not found")
}

func TestGenerateStream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		flusher := w.(http.Flusher)
		for _, line := range []string{
			`{"response":"Hello","done":false}`,
			`{"response":" world","done":true}`,
		} {
			w.Write([]byte(line + "\n"))
			flusher.Flush()
		}
	})

	stream, err := client.GenerateStream(context.Background(), "say hi", Options{})
	require.NoError(t, err)

	var got []string
	for chunk := range stream {
		require.NoError(t, chunk.Err)
		got = append(got, chunk.Text)
	}
	assert.Equal(t, []string{"Hello", " world"}, got)
}

func TestGenerateStream_UpstreamErrorBeforeStreaming(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.GenerateStream(context.Background(), "say hi", Options{})
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusInternalServerError, upstreamErr.StatusCode)
}

func TestGenerateStream_CancellationStopsEmission(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte(`{"response":"first","done":false}` + "\n"))
		flusher.Flush()
		// Hold the connection open until the client aborts.
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := client.GenerateStream(ctx, "say hi", Options{})
	require.NoError(t, err)

	chunk, ok := <-stream
	require.True(t, ok)
	require.NoError(t, chunk.Err)
	assert.Equal(t, "first", chunk.Text)

	cancel()

	// The channel must close without surfacing the abort as a failure.
	for chunk := range stream {
		assert.NoError(t, chunk.Err)
	}
}

func TestCheckHealth(t *testing.T) {
	t.Run("model installed", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/tags", r.URL.Path)
			json.NewEncoder(w).Encode(TagsResponse{Models: []ModelTag{
				{Name: "llama3:8b"},
				{Name: testModel},
			}})
		})
		assert.True(t, client.CheckHealth(context.Background()))
	})

	t.Run("model missing", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(TagsResponse{Models: []ModelTag{
				{Name: "llama3:8b"},
			}})
		})
		assert.False(t, client.CheckHealth(context.Background()))
	})

	t.Run("upstream failure", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		assert.False(t, client.CheckHealth(context.Background()))
	})

	t.Run("upstream hangs until deadline", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-release:
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		assert.False(t, client.CheckHealth(ctx))
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestModelInfo(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(TagsResponse{Models: []ModelTag{
				{Name: testModel, ModifiedAt: "2025-01-02T03:04:05Z", Size: 1 << 30},
			}})
		})

		info := client.ModelInfo(context.Background())
		assert.Equal(t, api.ModelInfo{
			Name:     testModel,
			Provider: "Ollama",
			Status:   api.ModelStatusReady,
			Version:  "2025-01-02T03:04:05Z",
		}, info)
	})

	t.Run("unavailable on failure", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		})

		info := client.ModelInfo(context.Background())
		assert.Equal(t, api.ModelStatusUnavailable, info.Status)
		assert.Equal(t, testModel, info.Name)
		assert.Empty(t, info.Version)
	})
}
