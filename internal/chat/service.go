package chat

import (
	"context"
	"strings"

	"github.com/sergueidmitriev/slm-chat/internal/api"
	"github.com/sergueidmitriev/slm-chat/internal/config"
	"github.com/sergueidmitriev/slm-chat/internal/ollama"
)

// GenerationError wraps any upstream failure so handlers never see raw
// upstream error shapes. The cause stays reachable through Unwrap for
// cancellation checks.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "failed to generate response from model"
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Generator is the slice of the upstream client the facade needs.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ollama.Options) (string, error)
	GenerateStream(ctx context.Context, prompt string, opts ollama.Options) (<-chan ollama.Chunk, error)
	CheckHealth(ctx context.Context) bool
	ModelInfo(ctx context.Context) api.ModelInfo
	Model() string
}

// Chunk is one text fragment of a streaming response as exposed to request
// handlers. Err is set on the terminal chunk of a failed stream.
type Chunk struct {
	Text string
	Err  error
}

// Service formats prompts and delegates generation to the upstream client.
type Service struct {
	backend   Generator
	formatter *PromptFormatter
	defaults  ollama.Options
}

// NewService wires the facade. Default sampling parameters come from
// configuration and are overridden per request.
func NewService(backend Generator, formatter *PromptFormatter, cfg config.OllamaConfig) *Service {
	return &Service{
		backend:   backend,
		formatter: formatter,
		defaults: ollama.Options{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			TopK:        cfg.TopK,
		},
	}
}

// GenerateResponse formats the prompt and performs a single-shot generation,
// returning the trimmed response text.
func (s *Service) GenerateResponse(ctx context.Context, message, language string, params *api.ModelParams) (string, error) {
	prompt := s.formatter.Format(message, language)

	text, err := s.backend.Generate(ctx, prompt, s.options(params))
	if err != nil {
		return "", &GenerationError{Err: err}
	}
	return strings.TrimSpace(text), nil
}

// GenerateResponseStream formats the prompt and starts a streaming
// generation. Fragments arrive in upstream order; the channel closes on
// completion. Cancelling the context aborts the upstream request.
func (s *Service) GenerateResponseStream(ctx context.Context, message, language string, params *api.ModelParams) (<-chan Chunk, error) {
	prompt := s.formatter.Format(message, language)

	upstream, err := s.backend.GenerateStream(ctx, prompt, s.options(params))
	if err != nil {
		return nil, &GenerationError{Err: err}
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		for chunk := range upstream {
			if chunk.Err != nil {
				chunk = ollama.Chunk{Err: &GenerationError{Err: chunk.Err}}
			}
			select {
			case out <- Chunk{Text: chunk.Text, Err: chunk.Err}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// IsHealthy reports whether the upstream serves the configured model.
func (s *Service) IsHealthy(ctx context.Context) bool {
	return s.backend.CheckHealth(ctx)
}

// ModelInfo returns availability info for the configured model.
func (s *Service) ModelInfo(ctx context.Context) api.ModelInfo {
	return s.backend.ModelInfo(ctx)
}

// ModelName returns the configured model name.
func (s *Service) ModelName() string {
	return s.backend.Model()
}

// SupportedLanguages exposes the formatter's language table.
func (s *Service) SupportedLanguages() []string {
	return s.formatter.SupportedLanguages()
}

func (s *Service) options(params *api.ModelParams) ollama.Options {
	opts := s.defaults
	if params == nil {
		return opts
	}
	if params.Temperature != nil {
		opts.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		opts.TopP = *params.TopP
	}
	if params.TopK != nil {
		opts.TopK = *params.TopK
	}
	return opts
}
