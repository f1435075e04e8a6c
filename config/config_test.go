package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]string{"--jwt-secret", "test-secret"})
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, time.Second, cfg.TickInterval)
	require.Equal(t, "typingserver", cfg.JWTIssuer)
}

func TestParseOverridesFromFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"--jwt-secret", "test-secret",
		"--port", "9090",
		"--tick-interval", "500ms",
	})
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 500*time.Millisecond, cfg.TickInterval)
}

func TestParseRejectsInvalidPort(t *testing.T) {
	_, err := Parse([]string{"--jwt-secret", "test-secret", "--port", "70000"})
	require.Error(t, err)
}

func TestParseRequiresJWTSecret(t *testing.T) {
	_, err := Parse(nil)
	require.Error(t, err)
}
