// Package server exposes the chat relay HTTP API.
//
// Endpoints:
//   - POST /api/chat        - single-shot generation
//   - POST /api/chat/stream - SSE token stream
//   - GET  /api/health      - service and model health
//   - GET  /api/models      - configured model info
//   - GET  /               - embedded browser page
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/sergueidmitriev/slm-chat/internal/api"
	"github.com/sergueidmitriev/slm-chat/internal/chat"
	"github.com/sergueidmitriev/slm-chat/internal/config"
)

const (
	serviceName = "slm-chat-relay"

	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second

	// Requests per second allowed per client IP on /api routes. Token
	// generation is slow, so this is generous.
	rateLimit = rate.Limit(10)
	rateBurst = 20
)

//go:embed static
var staticFS embed.FS

// Server hosts the relay API in front of the chat service facade.
type Server struct {
	cfg     config.Config
	chat    *chat.Service
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, svc *chat.Service) (*Server, error) {
	if svc == nil {
		return nil, errors.New("chat service must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.Server.FrontendOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	}))
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return !strings.HasPrefix(c.Path(), "/api")
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rateLimit,
			Burst:     rateBurst,
			ExpiresIn: 3 * time.Minute,
		}),
	}))

	srv := &Server{
		cfg:     cfg,
		chat:    svc,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("starting server",
		"addr", s.address,
		"service", serviceName,
		"model", s.chat.ModelName(),
	)

	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
		// No WriteTimeout: SSE responses stay open for the whole
		// generation.
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

func (s *Server) registerRoutes() {
	s.app.GET("/api/health", s.handleHealth)
	s.app.GET("/api/models", s.handleModels)
	s.app.POST("/api/chat", s.handleChat)
	s.app.POST("/api/chat/stream", s.handleChatStream)
	s.app.StaticFS("/", echo.MustSubFS(staticFS, "static"))
}

func (s *Server) handleHealth(c echo.Context) error {
	status := api.HealthStatusHealthy
	available := s.chat.IsHealthy(c.Request().Context())
	if !available {
		status = api.HealthStatusDegraded
	}

	return c.JSON(http.StatusOK, api.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   serviceName,
		Model: api.HealthModel{
			Available: available,
			Name:      s.chat.ModelName(),
		},
	})
}

func (s *Server) handleModels(c echo.Context) error {
	return c.JSON(http.StatusOK, s.chat.ModelInfo(c.Request().Context()))
}

func (s *Server) handleChat(c echo.Context) error {
	req, err := decodeChatRequest(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	message, err := s.chat.GenerateResponse(ctx, req.Message, req.Language, req.ModelParams)
	if err != nil {
		if ctx.Err() != nil {
			// Client went away; nothing left to answer.
			return nil
		}
		slog.Error("chat generation failed", "error", err)
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "Failed to process message",
		}
	}

	return c.JSON(http.StatusOK, api.ChatResponse{
		Message: message,
		Success: true,
	})
}

// handleChatStream relays the generation as Server-Sent Events: one
// data: {"chunk": ...} line per fragment, a data: {"error": ...} line on
// mid-stream failure, and the [DONE] sentinel on normal completion. The
// request context carries client disconnects down to the upstream fetch.
func (s *Server) handleChatStream(c echo.Context) error {
	req, err := decodeChatRequest(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	stream, err := s.chat.GenerateResponseStream(ctx, req.Message, req.Language, req.ModelParams)
	if err != nil {
		slog.Error("chat stream could not start", "error", err)
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "Failed to process message",
		}
	}

	streamID := uuid.NewString()

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	// Keep reverse proxies from buffering the event stream.
	header.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	for chunk := range stream {
		if chunk.Err != nil {
			if errors.Is(chunk.Err, context.Canceled) {
				slog.Info("chat stream cancelled by client", "stream_id", streamID)
				return nil
			}
			slog.Error("chat stream failed", "stream_id", streamID, "error", chunk.Err)
			if werr := writeStreamEvent(c, api.StreamEvent{Error: "Failed to process message"}); werr == nil {
				c.Response().Flush()
			}
			return nil
		}

		if err := writeStreamEvent(c, api.StreamEvent{Chunk: chunk.Text}); err != nil {
			slog.Warn("client dropped mid-stream", "stream_id", streamID, "error", err)
			return nil
		}
		c.Response().Flush()
	}

	if ctx.Err() != nil {
		slog.Info("chat stream cancelled by client", "stream_id", streamID)
		return nil
	}

	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", api.StreamDone); err != nil {
		return nil
	}
	c.Response().Flush()
	return nil
}

// decodeChatRequest parses and validates a chat request body. Validation
// failures are terminal 400s and never reach the upstream client.
func decodeChatRequest(c echo.Context) (api.ChatRequest, error) {
	httpReq := c.Request()
	defer httpReq.Body.Close()

	httpReq.Body = http.MaxBytesReader(c.Response(), httpReq.Body, maxBodyBytes)

	var req api.ChatRequest
	decoder := json.NewDecoder(httpReq.Body)
	if err := decoder.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return api.ChatRequest{}, requestError{
				Status:  http.StatusBadRequest,
				Message: "Message is required and must be a string",
			}
		}
		return api.ChatRequest{}, requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
		}
	}

	if strings.TrimSpace(req.Message) == "" {
		return api.ChatRequest{}, requestError{
			Status:  http.StatusBadRequest,
			Message: "Message is required and must be a string",
		}
	}

	if err := validateModelParams(req.ModelParams); err != nil {
		return api.ChatRequest{}, err
	}

	return req, nil
}

func validateModelParams(params *api.ModelParams) error {
	if params == nil {
		return nil
	}
	if params.Temperature != nil && (*params.Temperature < 0 || *params.Temperature > 2) {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "temperature must be within [0, 2]",
		}
	}
	if params.TopP != nil && (*params.TopP <= 0 || *params.TopP > 1) {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "topP must be within (0, 1]",
		}
	}
	if params.TopK != nil && (*params.TopK < 1 || *params.TopK > 100) {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "topK must be within [1, 100]",
		}
	}
	return nil
}

func writeStreamEvent(c echo.Context, event api.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write stream event: %w", err)
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
}

func (e requestError) Error() string {
	return e.Message
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message)
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := http.StatusText(httpErr.Code)
		if httpErr.Code == http.StatusNotFound {
			message = "Route not found"
		}
		_ = writeError(c, httpErr.Code, message)
		return
	}

	slog.Error("unhandled error", "error", err)
	_ = writeError(c, http.StatusInternalServerError, "Internal server error")
}

func writeError(c echo.Context, status int, message string) error {
	return c.JSON(status, api.ErrorResponse{
		Error:   message,
		Success: false,
	})
}
