package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyResolution(t *testing.T) {
	t.Run("reads configured env var", func(t *testing.T) {
		t.Setenv("INCIDENTD_TEST_KEY", "abc123")

		cfg := Config{APIKeyEnv: "INCIDENTD_TEST_KEY"}
		assert.Equal(t, "abc123", cfg.APIKey())
	})

	t.Run("empty env var name falls back to GEMINI_API_KEY", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "fallback-key")

		cfg := Config{}
		assert.Equal(t, "fallback-key", cfg.APIKey())
	})

	t.Run("unset variable yields empty key", func(t *testing.T) {
		t.Setenv("INCIDENTD_TEST_KEY", "")

		cfg := Config{APIKeyEnv: "INCIDENTD_TEST_KEY"}
		assert.Empty(t, cfg.APIKey())
	})
}

func TestValidateFillsZeroValues(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50, cfg.MaxTurns)
	assert.Equal(t, 30, cfg.AgentMaxSteps)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.NotEmpty(t, cfg.Graph.Edges)
}
