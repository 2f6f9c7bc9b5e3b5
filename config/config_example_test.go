package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ExampleFile(t *testing.T) {
	path, err := filepath.Abs("config.example.yaml")
	require.NoError(t, err)
	inTempDir(t)
	t.Setenv("PORT", "")
	t.Setenv("AI_BASE_URL", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "https://api.openai.com/v1", cfg.AI.BaseURL)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 5*time.Minute, cfg.Cache.SweepInterval)

	defaults := buildDefaultConfig()
	assert.Equal(t, defaults.RateLimitClasses(), cfg.RateLimitClasses(), "example limits match the built-in defaults")
	assert.Equal(t, defaults.Deadlines, cfg.Deadlines)
}
