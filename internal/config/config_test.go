package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labeler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
io:
  workers: 3
  default_format: yolo
prediction:
  backend: llamacpp
  url: http://gpu:8080
  min_score: 0.5
`), 0o644))
	t.Setenv("LABELER_PREDICTION_MODEL", "llava")
	t.Setenv("LABELER_LOG_LEVEL", "debug")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.IO.Workers)
	assert.Equal(t, "yolo", cfg.IO.DefaultFormat)
	assert.Equal(t, BackendLlamaCpp, cfg.Prediction.Backend)
	assert.Equal(t, "http://gpu:8080", cfg.Prediction.URL)
	assert.Equal(t, 0.5, cfg.Prediction.MinScore)
	assert.Equal(t, "llava", cfg.Prediction.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 85, cfg.Prediction.Quality, "unset keys keep their defaults")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("io:\n  default_format: bmp\n"), 0o644))
	_, err := Load(NewViper(), path)
	assert.ErrorContains(t, err, "io.default_format")
}

func TestSaveToFileRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.IO.Workers = 8
	cfg.Prediction.Backend = BackendLlamaCpp
	cfg.Metrics.Enabled = true

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative workers", func(c *Config) { c.IO.Workers = -1 }},
		{"unknown format", func(c *Config) { c.IO.DefaultFormat = "bmp" }},
		{"negative ttl", func(c *Config) { c.IO.CacheTTL = -5 }},
		{"unknown backend", func(c *Config) { c.Prediction.Backend = "openai" }},
		{"score above one", func(c *Config) { c.Prediction.MinScore = 1.5 }},
		{"negative max size", func(c *Config) { c.Prediction.MaxSize = -1 }},
		{"quality zero", func(c *Config) { c.Prediction.Quality = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
