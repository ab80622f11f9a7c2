// Package ollama implements the HTTP client for a locally hosted Ollama
// inference server, including the streaming NDJSON reframer.
package ollama

// GenerateRequest is the request body for the /api/generate endpoint.
type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *Options `json:"options,omitempty"`
}

// Options contains sampling parameters for inference.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
}

// GenerateResponse is one response object from /api/generate. In streaming
// mode the body is a sequence of these, newline-delimited, the final one
// carrying Done.
type GenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// TagsResponse is the response from the /api/tags listing endpoint.
type TagsResponse struct {
	Models []ModelTag `json:"models"`
}

// ModelTag describes one installed model in a tags listing.
type ModelTag struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
}

// Chunk is a single text fragment from a streaming generation. Err is set on
// the final chunk when the stream ended due to a failure rather than a
// normal completion.
type Chunk struct {
	Text string
	Err  error
}
