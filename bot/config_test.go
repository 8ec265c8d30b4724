package bot

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, Validate(cfg))

	cfg.Discord.Token = "abc"
	require.NoError(t, Validate(cfg))

	cfg.API.Enabled = true
	cfg.API.Listen = ""
	assert.Error(t, Validate(cfg))

	cfg.API.Listen = DefaultAPIListen
	cfg.Notify.Burst = 0
	assert.Error(t, Validate(cfg))
}

func TestConfig_LogValueRedactsToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discord.Token = "super-secret-token"

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("config", "config", cfg)

	assert.NotContains(t, buf.String(), "super-secret-token")
	assert.Contains(t, buf.String(), "[redacted]")
}

func TestCORSConfig_AllowAllOriginsByDefault(t *testing.T) {
	cfg := DefaultCORSConfig().GINConfig()
	assert.True(t, cfg.AllowAllOrigins)

	withOrigins := DefaultCORSConfig()
	withOrigins.AllowOrigins = []string{"https://example.com"}
	assert.False(t, withOrigins.GINConfig().AllowAllOrigins)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "부엉", Truncate("부엉이", 2))
	assert.Equal(t, "abc", Truncate("abc", 5))
}
