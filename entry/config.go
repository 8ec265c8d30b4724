//nolint:lll // struct tags can't be split
package entry

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	StorageTypeFile     = "file"
	StorageTypeSQLite   = "sqlite"
	StorageTypePostgres = "postgres"

	DefaultDataDir          = "data"
	DefaultArtifactDir      = "qr_codes"
	DefaultStorageType      = StorageTypeFile
	DefaultStorageLogLevel  = slog.LevelWarn
	DefaultSlowSQLThreshold = 500 * time.Millisecond

	// GatewayIntents are the privileged intents the entry bot needs on top
	// of the defaults: member lookups for the role gate, and message
	// content for passphrase replies.
	GatewayIntents = discordgo.IntentGuildMembers | discordgo.IntentMessageContent | discordgo.IntentDirectMessages
)

var DefaultStoresFile = filepath.Join(DefaultDataDir, "stores.json")

// DefaultAllowedRoles are the role names allowed to manage stores.
var DefaultAllowedRoles = []string{
	"Helper",
	"비트코인 기업 (Bitcoin Corporation)",
	"비트코인 경제매장 (Sea of Corea)",
}

// Config configures the entry bot.
type Config struct {
	// StoresFile is the JSON document holding every store, when using
	// the file storage type.
	StoresFile string `yaml:"stores_file" mapstructure:"stores_file" json:"stores_file"`

	// ArtifactDir holds generated per-store files (store_<code>.png),
	// removed along with their store.
	ArtifactDir string `yaml:"artifact_dir" mapstructure:"artifact_dir" json:"artifact_dir" binding:"required"`

	// AllowedRoles are role names whose holders may create and manage
	// stores.
	AllowedRoles []string `yaml:"allowed_roles" mapstructure:"allowed_roles" json:"allowed_roles" binding:"required,min=1,dive,required"`

	Storage StorageConfig `yaml:"storage" mapstructure:"storage" json:"storage"`
}

// StorageConfig selects where stores are persisted.
type StorageConfig struct {
	// Type is one of 'file', 'sqlite' or 'postgres'
	Type string `yaml:"type" mapstructure:"type" json:"type" binding:"required,oneof=file sqlite postgres"`

	// Database is the sqlite file path or postgres DSN.
	Database string `yaml:"database" mapstructure:"database" json:"database" log:"[redacted]" binding:"required_unless=Type file"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	SlowThreshold time.Duration `yaml:"slow_threshold" mapstructure:"slow_threshold" json:"slow_threshold" binding:"gte=0"`
}

func DefaultConfig() *Config {
	logLevel := &slog.LevelVar{}
	logLevel.Set(DefaultStorageLogLevel)

	roles := make([]string, len(DefaultAllowedRoles))
	copy(roles, DefaultAllowedRoles)

	return &Config{
		StoresFile:   DefaultStoresFile,
		ArtifactDir:  DefaultArtifactDir,
		AllowedRoles: roles,
		Storage: StorageConfig{
			Type:          DefaultStorageType,
			LogLevel:      logLevel,
			SlowThreshold: DefaultSlowSQLThreshold,
		},
	}
}
