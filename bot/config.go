//nolint:lll // struct tags can't be split
package bot

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
	"github.com/go-playground/validator/v10"
)

const (
	EnvvarSetEnvPrefix = "OWLBOTS_ENV_PREFIX"
	DefaultEnvPrefix   = ""

	DefaultLogLevel          = slog.LevelInfo
	DefaultDiscordLogLevel   = slog.LevelInfo
	DefaultDiscordgoLogLevel = slog.LevelWarn
	DefaultAPILogLevel       = slog.LevelInfo
	DefaultShutdownTimeout   = 30 * time.Second

	DefaultGatewayIntents = discordgo.IntentsAllWithoutPrivileged

	DefaultAPIListen            = "127.0.0.1:5050"
	DefaultReadTimeout          = 5 * time.Second
	DefaultReadHeaderTimeout    = 5 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
	DefaultIdleTimeout          = 30 * time.Second
	DefaultCORSMaxAge           = 12 * time.Hour
	DefaultNotifyRatePerSecond  = 2.0
	DefaultNotifyBurst          = 5
	DefaultNotifyTimeout        = 15 * time.Second
	defaultAPIAllowCredentials  = false
	defaultAPIShutdownGraceTime = 5 * time.Second
)

var (
	DefaultCORSAllowMethods = []string{http.MethodGet, http.MethodOptions, http.MethodHead}
	DefaultCORSAllowHeaders = []string{"Origin", "Accept", "Content-Type", xRequestIDHeader}
)

var structValidator = func() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}()

// Validate checks v against its `binding` struct tags.
func Validate(v any) error {
	return structValidator.Struct(v)
}

// Config is the configuration shared by every bot process.
type Config struct {
	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// ShutdownTimeout bounds how long Run waits for in-flight notifications
	// and the API server after the context is canceled.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout" binding:"gte=0"`

	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord" binding:"required"`

	API *APIConfig `yaml:"api" mapstructure:"api" json:"api" binding:"required"`

	Notify *NotifyConfig `yaml:"notify" mapstructure:"notify" json:"notify" binding:"required"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the gateway session.
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// ApplicationID is used when registering commands. When empty, the
	// bot user ID from the Ready event is used.
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id"`

	// GuildID registers commands to a single guild, which propagates
	// immediately. Leave empty for global commands.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. Bots OR in whatever privileged intents
	// they need on top of this.
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// CustomStatus is set on Ready when not empty.
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`
}

// APIConfig configures the optional status API.
type APIConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5050").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required_if=Enabled true"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout" binding:"gte=0"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout" binding:"gte=0"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout" binding:"gte=0"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout" binding:"gte=0"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins     []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	AllowCredentials bool          `yaml:"allow_credentials" mapstructure:"allow_credentials" json:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	cfg := cors.Config{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		MaxAge:           c.MaxAge,
		AllowCredentials: c.AllowCredentials,
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cfg
}

// NotifyConfig paces the direct messages sent to store owners.
type NotifyConfig struct {
	// RatePerSecond is the sustained number of notifications per second.
	// 0 disables pacing.
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second" json:"rate_per_second" binding:"gte=0"`

	Burst int `yaml:"burst" mapstructure:"burst" json:"burst" binding:"gte=1"`

	// Timeout bounds a single notification, including time spent waiting
	// on the rate limiter.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" json:"timeout" binding:"gt=0"`
}

func DefaultCORSConfig() CORSConfig {
	methods := make([]string, len(DefaultCORSAllowMethods))
	copy(methods, DefaultCORSAllowMethods)

	headers := make([]string, len(DefaultCORSAllowHeaders))
	copy(headers, DefaultCORSAllowHeaders)

	return CORSConfig{
		AllowOrigins:     []string{},
		AllowMethods:     methods,
		AllowHeaders:     headers,
		AllowCredentials: defaultAPIAllowCredentials,
		MaxAge:           DefaultCORSMaxAge,
	}
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		LogLevel:        mainLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
			GatewayIntents:    DefaultGatewayIntents,
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			LogLevel:          apiLogLevel,
			CORS:              DefaultCORSConfig(),
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
		Notify: &NotifyConfig{
			RatePerSecond: DefaultNotifyRatePerSecond,
			Burst:         DefaultNotifyBurst,
			Timeout:       DefaultNotifyTimeout,
		},
	}
}
