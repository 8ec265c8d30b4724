package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Corn-mrb/project/bot"
	"github.com/Corn-mrb/project/entry"
	"github.com/Corn-mrb/project/joke"
	"github.com/bwmarrin/discordgo"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv empties the environment, viper's settings and the --config
// file for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	originalConfigFile := configFile
	configFile = ""
	t.Cleanup(func() { configFile = originalConfigFile })
	originalEnv := os.Environ()
	t.Cleanup(
		func() {
			os.Clearenv()
			for _, envVar := range originalEnv {
				parts := strings.SplitN(envVar, "=", 2)
				os.Setenv(parts[0], parts[1])
			}
		},
	)
	os.Clearenv()
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	clearEnv(t)

	tmpdir := t.TempDir()
	envFile := filepath.Join(tmpdir, "test.env")

	envContent := `
LOG_LEVEL=DEBUG
SHUTDOWN_TIMEOUT=45s

# Discord bot config

DISCORD_TOKEN=your-discord-bot-token
DISCORD_APPLICATION_ID=your-discord-bot-app-id
GUILD_ID=111111111111111111
DISCORD_LOG_LEVEL=WARN
DISCORD_DISCORDGO_LOG_LEVEL=ERROR
DISCORD_GATEWAY_INTENTS=3243773
DISCORD_CUSTOM_STATUS="Hoo hoo"

# Status API

API_ENABLED=true
API_LISTEN=127.0.0.1:5050
API_LOG_LEVEL=INFO
API_CORS_ALLOW_ORIGINS=https://127.0.0.1:5050 https://localhost:5050
API_CORS_ALLOW_METHODS=GET HEAD OPTIONS
API_CORS_MAX_AGE=6h
API_READ_TIMEOUT=3s
API_WRITE_TIMEOUT=7s

# Owner notifications

NOTIFY_RATE_PER_SECOND=0.5
NOTIFY_BURST=3
NOTIFY_TIMEOUT=15s

# Entry bot

ENTRY_STORES_FILE=/srv/owl/stores.json
ENTRY_ARTIFACT_DIR=/srv/owl/qr_codes
ENTRY_ALLOWED_ROLES=Helper, 비트코인 기업 (Bitcoin Corporation)
ENTRY_STORAGE_TYPE=sqlite
ENTRY_STORAGE_DATABASE=/srv/owl/stores.sqlite3
ENTRY_STORAGE_LOG_LEVEL=INFO
ENTRY_STORAGE_SLOW_THRESHOLD=200ms

# Joke bot

JOKE_JOKES_FILE=/srv/owl/jokes.json
ALLOWED_USER_ID=222222222222222222
`

	err := os.WriteFile(envFile, []byte(envContent), 0o644)
	require.NoError(t, err)

	rootCmd.SetArgs([]string{fmt.Sprintf("--config=%s", envFile), "version"})
	require.NoError(t, rootCmd.Execute())

	assertLogLevel(t, slog.LevelDebug, viper.Get("log_level"))
	assert.Equal(t, slog.LevelDebug, cfg.Bot.LogLevel.Level())
	assert.Equal(t, 45*time.Second, cfg.Bot.ShutdownTimeout)

	assert.Equal(t, "your-discord-bot-token", viper.GetString("discord.token"))
	assert.Equal(t, "your-discord-bot-token", cfg.Bot.Discord.Token)
	assert.Equal(t, "your-discord-bot-app-id", cfg.Bot.Discord.ApplicationID)
	assert.Equal(t, "111111111111111111", viper.GetString("discord.guild_id"))
	assert.Equal(t, "111111111111111111", cfg.Bot.Discord.GuildID)
	assertLogLevel(t, slog.LevelWarn, viper.Get("discord.log_level"))
	assert.Equal(t, slog.LevelWarn, cfg.Bot.Discord.LogLevel.Level())
	assert.Equal(t, slog.LevelError, cfg.Bot.Discord.DiscordGoLogLevel.Level())
	assert.Equal(t, discordgo.Intent(3243773), cfg.Bot.Discord.GatewayIntents)
	assert.Equal(t, "Hoo hoo", cfg.Bot.Discord.CustomStatus)

	assert.True(t, cfg.Bot.API.Enabled)
	assert.Equal(t, "127.0.0.1:5050", cfg.Bot.API.Listen)
	assert.Equal(t, slog.LevelInfo, cfg.Bot.API.LogLevel.Level())
	assert.Equal(
		t,
		[]string{"https://127.0.0.1:5050", "https://localhost:5050"},
		viper.GetStringSlice("api.cors.allow_origins"),
	)
	assert.Equal(
		t,
		[]string{"https://127.0.0.1:5050", "https://localhost:5050"},
		cfg.Bot.API.CORS.AllowOrigins,
	)
	assert.Equal(t, []string{"GET", "HEAD", "OPTIONS"}, cfg.Bot.API.CORS.AllowMethods)
	assert.Equal(t, 6*time.Hour, cfg.Bot.API.CORS.MaxAge)
	assert.Equal(t, 3*time.Second, cfg.Bot.API.ReadTimeout)
	assert.Equal(t, 7*time.Second, cfg.Bot.API.WriteTimeout)

	assert.InDelta(t, 0.5, cfg.Bot.Notify.RatePerSecond, 0.0001)
	assert.Equal(t, 3, cfg.Bot.Notify.Burst)
	assert.Equal(t, 15*time.Second, cfg.Bot.Notify.Timeout)

	assert.Equal(t, "/srv/owl/stores.json", cfg.Entry.StoresFile)
	assert.Equal(t, "/srv/owl/qr_codes", cfg.Entry.ArtifactDir)
	assert.Equal(
		t,
		[]string{"Helper", "비트코인 기업 (Bitcoin Corporation)"},
		cfg.Entry.AllowedRoles,
	)
	assert.Equal(t, "sqlite", viper.GetString("entry.storage.type"))
	assert.Equal(t, "sqlite", cfg.Entry.Storage.Type)
	assert.Equal(t, "/srv/owl/stores.sqlite3", cfg.Entry.Storage.Database)
	assertLogLevel(t, slog.LevelInfo, viper.Get("entry.storage.log_level"))
	assert.Equal(t, slog.LevelInfo, cfg.Entry.Storage.LogLevel.Level())
	assert.Equal(t, 200*time.Millisecond, cfg.Entry.Storage.SlowThreshold)

	assert.Equal(t, "/srv/owl/jokes.json", cfg.Joke.JokesFile)
	assert.Equal(t, "222222222222222222", viper.GetString("joke.admin_user_id"))
	assert.Equal(t, "222222222222222222", cfg.Joke.AdminUserID)
	assert.NotEmpty(t, cfg.Joke.FallbackJoke)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a b", "c"}, splitList(" a b ,, c ,"))
	assert.Nil(t, splitList(""))
}

// loadEnv runs initConfig with only env set, then decodes a fresh config.
func loadEnv(t *testing.T, env map[string]string) *config {
	t.Helper()
	clearEnv(t)
	for k, v := range env {
		t.Setenv(k, v)
	}
	initConfig()

	c := defaultConfig()
	require.NoError(t, loadConfig(c))
	return c
}

func TestLoadConfig_Defaults(t *testing.T) {
	c := loadEnv(t, map[string]string{"DISCORD_TOKEN": "tok"})

	assert.Equal(t, "tok", c.Bot.Discord.Token)
	assert.Equal(t, bot.DefaultLogLevel, c.Bot.LogLevel.Level())
	assert.Equal(t, bot.DefaultDiscordLogLevel, c.Bot.Discord.LogLevel.Level())
	assert.Equal(t, bot.DefaultDiscordgoLogLevel, c.Bot.Discord.DiscordGoLogLevel.Level())
	assert.Equal(t, bot.DefaultAPILogLevel, c.Bot.API.LogLevel.Level())
	assert.Equal(t, bot.DefaultShutdownTimeout, c.Bot.ShutdownTimeout)
	assert.Equal(t, entry.DefaultAllowedRoles, c.Entry.AllowedRoles)
	assert.Equal(t, entry.DefaultStorageType, c.Entry.Storage.Type)
	assert.Equal(t, entry.DefaultStorageLogLevel, c.Entry.Storage.LogLevel.Level())
	assert.Equal(t, joke.DefaultJokesFile, c.Joke.JokesFile)
	assert.Equal(t, joke.DefaultJoke, c.Joke.FallbackJoke)
	require.NoError(t, bot.Validate(c.Bot))
	require.NoError(t, bot.Validate(c.Entry))
}

func TestLoadConfig_ListsReplaceDefaults(t *testing.T) {
	c := loadEnv(
		t, map[string]string{
			"DISCORD_TOKEN":          "tok",
			"ENTRY_ALLOWED_ROLES":    "Helper",
			"API_CORS_ALLOW_METHODS": "GET",
			"API_CORS_ALLOW_HEADERS": "Origin Accept",
		},
	)

	assert.Equal(t, []string{"Helper"}, c.Entry.AllowedRoles)
	assert.Equal(t, []string{"GET"}, c.Bot.API.CORS.AllowMethods)
	assert.Equal(t, []string{"Origin", "Accept"}, c.Bot.API.CORS.AllowHeaders)
}

func TestLoadConfig_InvalidLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "loud")
	initConfig()

	assert.Error(t, loadConfig(defaultConfig()))
}

func assertLogLevel(t testing.TB, expected slog.Level, val any) {
	t.Helper()
	switch v := val.(type) {
	case string:
		var lvl slog.Level
		require.NoError(t, lvl.UnmarshalText([]byte(v)))
		assert.Equal(t, expected, lvl)
	case slog.Level:
		assert.Equal(t, expected, v)
	case *slog.LevelVar:
		assert.Equal(t, expected, v.Level())
	default:
		t.Fatalf("unexpected log level type %T", val)
	}
}
