package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultFrontendOrigin, cfg.Server.FrontendOrigin)
	assert.Equal(t, DefaultOllamaURL, cfg.Ollama.BaseURL)
	assert.Equal(t, DefaultOllamaModel, cfg.Ollama.Model)
	assert.InDelta(t, DefaultTemperature, cfg.Ollama.Temperature, 1e-9)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("FRONTEND_URL", "https://chat.example.com")
	t.Setenv("OLLAMA_URL", "http://localhost:11434")
	t.Setenv("OLLAMA_MODEL", "llama3:8b")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://chat.example.com", cfg.Server.FrontendOrigin)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "llama3:8b", cfg.Ollama.Model)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
ollama:
  base_url: http://inference:11434
  model: mistral:7b
  temperature: 0.2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "http://inference:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "mistral:7b", cfg.Ollama.Model)
	assert.InDelta(t, 0.2, cfg.Ollama.Temperature, 1e-9)
	// Unset keys keep defaults.
	assert.Equal(t, DefaultFrontendOrigin, cfg.Server.FrontendOrigin)
	assert.Equal(t, DefaultTopK, cfg.Ollama.TopK)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	t.Setenv("OLLAMA_MODEL", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ollama:\n  model: from-file\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Ollama.Model)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"empty origin", func(c *Config) { c.Server.FrontendOrigin = " " }},
		{"empty base url", func(c *Config) { c.Ollama.BaseURL = "" }},
		{"empty model", func(c *Config) { c.Ollama.Model = "" }},
		{"temperature too high", func(c *Config) { c.Ollama.Temperature = 2.5 }},
		{"top_p zero", func(c *Config) { c.Ollama.TopP = 0 }},
		{"top_k too large", func(c *Config) { c.Ollama.TopK = 1000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
