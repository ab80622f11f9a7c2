// Package api defines the wire types shared by the relay server and its
// clients.
package api

// ChatRequest is the body accepted by POST /api/chat and /api/chat/stream.
type ChatRequest struct {
	Message     string       `json:"message"`
	Language    string       `json:"language,omitempty"`
	ModelParams *ModelParams `json:"modelParams,omitempty"`
}

// ModelParams carries optional per-request sampling overrides. Nil fields
// fall back to the server's configured defaults.
type ModelParams struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
	TopK        *int     `json:"topK,omitempty"`
}

// ChatResponse is the single-shot response from POST /api/chat.
type ChatResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// StreamEvent is the payload of one SSE data line on /api/chat/stream.
// Exactly one of Chunk or Error is set.
type StreamEvent struct {
	Chunk string `json:"chunk,omitempty"`
	Error string `json:"error,omitempty"`
}

// StreamDone is the sentinel data payload terminating a successful stream.
// It is sent as a bare string, not JSON.
const StreamDone = "[DONE]"

// ModelStatus describes model availability as reported by /api/models.
type ModelStatus string

const (
	ModelStatusReady       ModelStatus = "ready"
	ModelStatusUnavailable ModelStatus = "unavailable"

	// ModelStatusLoading is reserved. No upstream signal currently maps to
	// it, so no code path produces it.
	ModelStatusLoading ModelStatus = "loading"
)

// ModelInfo describes the configured model.
type ModelInfo struct {
	Name     string      `json:"name"`
	Provider string      `json:"provider"`
	Status   ModelStatus `json:"status"`
	Version  string      `json:"version,omitempty"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status    string      `json:"status"`
	Timestamp string      `json:"timestamp"`
	Service   string      `json:"service"`
	Model     HealthModel `json:"model"`
}

// HealthModel summarises model availability inside a health response.
type HealthModel struct {
	Available bool   `json:"available"`
	Name      string `json:"name"`
}

const (
	HealthStatusHealthy  = "healthy"
	HealthStatusDegraded = "degraded"
)
