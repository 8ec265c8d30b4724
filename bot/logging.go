package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const loggerNameKey = "logger"

var defaultLogWriter io.Writer = os.Stdout

var discordGoLogLevels = map[int]slog.Level{
	discordgo.LogDebug:         slog.LevelDebug,
	discordgo.LogError:         slog.LevelError,
	discordgo.LogWarning:       slog.LevelWarn,
	discordgo.LogInformational: slog.LevelInfo,
}

// NewLogHandler returns the tint handler used by every logger in the
// process, writing to stdout at the given level.
func NewLogHandler(level slog.Leveler) slog.Handler {
	return newLogHandler(defaultLogWriter, level)
}

func newLogHandler(w io.Writer, level slog.Leveler) slog.Handler {
	if level == nil {
		level = DefaultLogLevel
	}
	return tint.NewHandler(
		w, &tint.Options{
			Level:     level,
			AddSource: true,
		},
	)
}

// NewLogger returns a named logger at the given level.
func NewLogger(name string, level slog.Leveler) *slog.Logger {
	return slog.New(NewLogHandler(level)).With(loggerNameKey, name)
}

func discordgoLoggerFunc(ctx context.Context, handler slog.Handler) func(
	msgL int,
	caller int,
	format string,
	args ...any,
) {
	log := slog.New(handler)
	return func(
		msgL int,
		_ int,
		format string,
		args ...any,
	) {
		level, ok := discordGoLogLevels[msgL]
		if !ok {
			level = slog.LevelInfo
		}
		log.LogAttrs(
			ctx,
			level,
			strings.ReplaceAll(fmt.Sprintf(format, args...), "\n", ""),
		)
	}
}

// discordgoLogLevel maps a slog level onto the closest discordgo level.
func discordgoLogLevel(lvl slog.Level) (int, error) {
	switch lvl {
	case slog.LevelDebug:
		return discordgo.LogDebug, nil
	case slog.LevelInfo:
		return discordgo.LogInformational, nil
	case slog.LevelWarn:
		return discordgo.LogWarning, nil
	case slog.LevelError:
		return discordgo.LogError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", lvl)
	}
}

// GormLogger routes gorm's log output through slog. Statements slower
// than SlowThreshold are logged as warnings, everything else at debug.
type GormLogger struct {
	logger        *slog.Logger
	SlowThreshold time.Duration
}

// NewGormLogger returns a gorm logger.Interface writing through handler.
func NewGormLogger(handler slog.Handler, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{
		logger:        slog.New(handler).With(loggerNameKey, "gorm"),
		SlowThreshold: slowThreshold,
	}
}

// LogMode is a no-op: the level is owned by the slog handler.
func (g *GormLogger) LogMode(_ logger.LogLevel) logger.Interface {
	return g
}

func (g *GormLogger) Info(ctx context.Context, s string, i ...any) {
	g.logger.InfoContext(ctx, fmt.Sprintf(s, i...))
}

func (g *GormLogger) Warn(ctx context.Context, s string, i ...any) {
	g.logger.WarnContext(ctx, fmt.Sprintf(s, i...))
}

func (g *GormLogger) Error(ctx context.Context, s string, i ...any) {
	g.logger.ErrorContext(ctx, fmt.Sprintf(s, i...))
}

// ParamsFilter drops bound values, so logged SQL keeps its placeholders
// and never includes stored passphrases.
func (g *GormLogger) ParamsFilter(
	_ context.Context,
	sql string,
	_ ...any,
) (string, []any) {
	return sql, nil
}

func (g *GormLogger) Trace(
	ctx context.Context,
	begin time.Time,
	fc func() (sql string, rowsAffected int64),
	err error,
) {
	elapsed := time.Since(begin)
	s, rowsAffected := fc()

	attrs := []any{
		"elapsed", elapsed,
		"threshold", g.SlowThreshold,
		"sql", s,
	}
	if rowsAffected == -1 {
		attrs = append(attrs, "rows", "-")
	} else {
		attrs = append(attrs, "rows", rowsAffected)
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		g.logger.ErrorContext(ctx, "sql error", append(attrs, tint.Err(err))...)
	case g.SlowThreshold != 0 && elapsed > g.SlowThreshold:
		g.logger.WarnContext(ctx, "slow sql", attrs...)
	default:
		g.logger.DebugContext(ctx, "sql completed", attrs...)
	}
}
