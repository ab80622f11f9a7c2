package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default values mirror the environment the service has always run in: a
// sidecar Ollama container and a dev frontend on port 3000.
const (
	DefaultPort           = 3001
	DefaultFrontendOrigin = "http://localhost:3000"
	DefaultOllamaURL      = "http://model:11434"
	DefaultOllamaModel    = "qwen2.5:3b"

	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
	DefaultTopK        = 40
)

// Config represents the application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Ollama OllamaConfig `yaml:"ollama"`
}

// ServerConfig defines listener and CORS configuration.
type ServerConfig struct {
	Port           int    `yaml:"port"`
	FrontendOrigin string `yaml:"frontend_origin"`
}

// OllamaConfig captures the upstream inference server and default sampling
// parameters.
type OllamaConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	TopK        int     `yaml:"top_k"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           DefaultPort,
			FrontendOrigin: DefaultFrontendOrigin,
		},
		Ollama: OllamaConfig{
			BaseURL:     DefaultOllamaURL,
			Model:       DefaultOllamaModel,
			Temperature: DefaultTemperature,
			TopP:        DefaultTopP,
			TopK:        DefaultTopK,
		},
	}
}

// Load reads YAML configuration from disk on top of the defaults, applies
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds configuration from defaults and environment variables only,
// for deployments that ship no config file.
func FromEnv() (Config, error) {
	cfg := Default()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		c.Server.FrontendOrigin = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.Ollama.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.Ollama.Model = v
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.FrontendOrigin) == "" {
		return fmt.Errorf("server.frontend_origin must not be empty")
	}
	if strings.TrimSpace(c.Ollama.BaseURL) == "" {
		return fmt.Errorf("ollama.base_url must not be empty")
	}
	if strings.TrimSpace(c.Ollama.Model) == "" {
		return fmt.Errorf("ollama.model must not be empty")
	}
	if c.Ollama.Temperature < 0 || c.Ollama.Temperature > 2 {
		return fmt.Errorf("ollama.temperature must be within [0, 2], got %g", c.Ollama.Temperature)
	}
	if c.Ollama.TopP <= 0 || c.Ollama.TopP > 1 {
		return fmt.Errorf("ollama.top_p must be within (0, 1], got %g", c.Ollama.TopP)
	}
	if c.Ollama.TopK < 1 || c.Ollama.TopK > 100 {
		return fmt.Errorf("ollama.top_k must be within [1, 100], got %d", c.Ollama.TopK)
	}
	return nil
}
