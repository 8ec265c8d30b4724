package joke

const (
	DefaultJokesFile = "jokes.json"

	// DefaultJoke is served when no jokes could be loaded.
	DefaultJoke = "농담을 불러올 수 없습니다 😢"
)

// Config configures the joke bot.
type Config struct {
	// JokesFile is a JSON array of strings.
	JokesFile string `yaml:"jokes_file" mapstructure:"jokes_file" json:"jokes_file" binding:"required"`

	// AdminUserID is the only user allowed to add jokes.
	AdminUserID string `yaml:"admin_user_id" mapstructure:"admin_user_id" json:"admin_user_id" binding:"required,numeric"`

	// FallbackJoke is served while the list is empty.
	FallbackJoke string `yaml:"fallback_joke" mapstructure:"fallback_joke" json:"fallback_joke" binding:"required"`
}

func DefaultConfig() *Config {
	return &Config{
		JokesFile:    DefaultJokesFile,
		FallbackJoke: DefaultJoke,
	}
}
