package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sergueidmitriev/slm-chat/internal/chat"
	"github.com/sergueidmitriev/slm-chat/internal/config"
	"github.com/sergueidmitriev/slm-chat/internal/ollama"
	"github.com/sergueidmitriev/slm-chat/internal/retry"
	"github.com/sergueidmitriev/slm-chat/internal/server"
)

const serveUsage = `Usage:
  slm-chat serve [--config <path>] [--port <port>]

Flags:
  --config string   Path to YAML configuration file (optional; environment
                    variables PORT, FRONTEND_URL, OLLAMA_URL, OLLAMA_MODEL
                    apply either way)
  --port   int      Override server port from configuration`

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	var cfg config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort <= 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	backend, err := ollama.New(cfg.Ollama.BaseURL, cfg.Ollama.Model, &http.Client{})
	if err != nil {
		return err
	}

	svc := chat.NewService(backend, chat.NewPromptFormatter(), cfg.Ollama)

	// Probe the upstream before serving. Not fatal: the health endpoint
	// keeps reporting degraded until the model shows up.
	probeErr := retry.Do(ctx, func(ctx context.Context) error {
		if !backend.CheckHealth(ctx) {
			return fmt.Errorf("model %q not available at %s", cfg.Ollama.Model, cfg.Ollama.BaseURL)
		}
		return nil
	}, retry.Options{
		MaxAttempts: 3,
		Delay:       time.Second,
		Backoff:     true,
		OnRetry: func(attempt int, err error) {
			slog.Warn("upstream not ready", "attempt", attempt, "error", err)
		},
	})
	if probeErr != nil {
		if errors.Is(probeErr, context.Canceled) {
			return probeErr
		}
		slog.Warn("starting degraded, upstream unavailable", "error", probeErr)
	}

	srv, err := server.New(cfg, svc)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
