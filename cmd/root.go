package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Corn-mrb/project/bot"
	"github.com/Corn-mrb/project/entry"
	"github.com/Corn-mrb/project/joke"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// config is everything the subcommands read from the environment.
type config struct {
	Bot   *bot.Config
	Entry *entry.Config `mapstructure:"entry"`
	Joke  *joke.Config  `mapstructure:"joke"`
}

func defaultConfig() *config {
	return &config{
		Bot:   bot.DefaultConfig(),
		Entry: entry.DefaultConfig(),
		Joke:  joke.DefaultConfig(),
	}
}

var (
	cfg        = defaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:           "owlbots [flags]",
	Short:         "Discord bots for store entry verification and owl jokes",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cfg)
	},
}

// decodeHook converts env strings into durations, lists and anything
// implementing encoding.TextUnmarshaler (the *slog.LevelVar levels).
// ZeroFields makes a configured list replace the default one instead of
// being decoded over it.
func decodeHook() viper.DecoderConfigOption {
	return func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.TextUnmarshallerHookFunc(),
		)
		c.ZeroFields = true
	}
}

// loadConfig decodes the viper settings into c. The bot settings live at
// the top level, entry and joke settings under their own keys.
func loadConfig(c *config) error {
	if err := viper.Unmarshal(c.Bot, decodeHook()); err != nil {
		return fmt.Errorf("error reading bot config: %w", err)
	}
	if err := viper.Unmarshal(c, decodeHook()); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}
	return nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
	)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("exiting", tint.Err(err))
		stop()
		os.Exit(1)
	}
}

// envKey is the environment variable for name, with the configured
// prefix applied.
func envKey(name string) string {
	prefix := os.Getenv(bot.EnvvarSetEnvPrefix)
	if prefix == "" {
		prefix = bot.DefaultEnvPrefix
	}
	if prefix == "" {
		return name
	}
	return strings.ToUpper(prefix) + "_" + name
}

func initConfig() {
	logger := slog.New(bot.NewLogHandler(slog.LevelInfo))
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			logger.Debug("no .env file found")
		}
	} else {
		logger.Info("loading env from file", "path", configFile)
		if err := godotenv.Load(configFile); err != nil {
			logger.Warn("unable to load env file", tint.Err(err), "path", configFile)
		}
	}

	viper.SetDefault("log_level", bot.DefaultLogLevel.String())
	viper.SetDefault("shutdown_timeout", bot.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.log_level", bot.DefaultDiscordLogLevel.String())
	viper.SetDefault("discord.discordgo_log_level", bot.DefaultDiscordgoLogLevel.String())
	viper.SetDefault("discord.gateway_intents", int(bot.DefaultGatewayIntents))
	viper.SetDefault("discord.custom_status", "")

	// API config
	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.listen", bot.DefaultAPIListen)
	viper.SetDefault("api.log_level", bot.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", bot.DefaultReadTimeout)
	viper.SetDefault("api.read_header_timeout", bot.DefaultReadHeaderTimeout)
	viper.SetDefault("api.write_timeout", bot.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", bot.DefaultIdleTimeout)
	viper.SetDefault("api.cors.allow_origins", []string{})
	viper.SetDefault("api.cors.allow_methods", bot.DefaultCORSAllowMethods)
	viper.SetDefault("api.cors.allow_headers", bot.DefaultCORSAllowHeaders)
	viper.SetDefault("api.cors.allow_credentials", false)
	viper.SetDefault("api.cors.max_age", bot.DefaultCORSMaxAge)

	// Owner notifications
	viper.SetDefault("notify.rate_per_second", bot.DefaultNotifyRatePerSecond)
	viper.SetDefault("notify.burst", bot.DefaultNotifyBurst)
	viper.SetDefault("notify.timeout", bot.DefaultNotifyTimeout)

	// Entry bot
	viper.SetDefault("entry.stores_file", entry.DefaultStoresFile)
	viper.SetDefault("entry.artifact_dir", entry.DefaultArtifactDir)
	viper.SetDefault("entry.allowed_roles", entry.DefaultAllowedRoles)
	viper.SetDefault("entry.storage.type", entry.DefaultStorageType)
	viper.SetDefault("entry.storage.database", "")
	viper.SetDefault("entry.storage.log_level", entry.DefaultStorageLogLevel.String())
	viper.SetDefault("entry.storage.slow_threshold", entry.DefaultSlowSQLThreshold)

	// Joke bot
	viper.SetDefault("joke.jokes_file", joke.DefaultJokesFile)
	viper.SetDefault("joke.admin_user_id", "")
	viper.SetDefault("joke.fallback_joke", joke.DefaultJoke)

	fatalErr := func(err error) {
		if err != nil {
			logger.Error("error binding env", tint.Err(err))
			os.Exit(1)
		}
	}

	// Names used by the earlier deployments
	fatalErr(viper.BindEnv("discord.guild_id", envKey("DISCORD_GUILD_ID"), "GUILD_ID"))
	fatalErr(viper.BindEnv("joke.admin_user_id", envKey("JOKE_ADMIN_USER_ID"), "ALLOWED_USER_ID"))

	envPrefix := os.Getenv(bot.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = bot.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Space separated, like the CORS settings of the status API
	for _, key := range []string{
		"api.cors.allow_origins",
		"api.cors.allow_methods",
		"api.cors.allow_headers",
	} {
		viper.Set(key, viper.GetStringSlice(key))
	}

	// Role names contain spaces, so they're comma separated
	if roles, ok := viper.Get("entry.allowed_roles").(string); ok {
		viper.Set("entry.allowed_roles", splitList(roles))
	}
}

func splitList(s string) []string {
	var rv []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			rv = append(rv, item)
		}
	}
	return rv
}

//nolint:gochecknoinits
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"env file to load settings from",
	)
}
