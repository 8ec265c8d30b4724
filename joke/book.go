package joke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Corn-mrb/project/bot"
	"github.com/lmittmann/tint"
)

const minJokeLength = 3

var (
	ErrForbidden   = errors.New("only the admin can add jokes")
	ErrTooShort    = fmt.Errorf("joke must be at least %d characters", minJokeLength)
	ErrDuplicate   = errors.New("joke already exists")
	ErrPersistence = errors.New("error saving jokes")
)

// Book is the ordered list of unique jokes persisted in a JSON file.
// While the list is empty Pick returns the fallback joke, which is never
// saved.
type Book struct {
	mu       sync.RWMutex
	path     string
	adminID  string
	fallback string
	jokes    []string
	logger   *slog.Logger

	intN func(n int) int
}

func NewBook(cfg *Config, logger *slog.Logger) *Book {
	if logger == nil {
		logger = slog.Default()
	}
	fallback := cfg.FallbackJoke
	if fallback == "" {
		fallback = DefaultJoke
	}
	return &Book{
		path:     cfg.JokesFile,
		adminID:  cfg.AdminUserID,
		fallback: fallback,
		logger:   logger,
		intN:     rand.IntN,
	}
}

// Load reads the jokes file. On error, or when the file doesn't hold a
// non-empty list, the book is left empty and serves the fallback joke.
func (b *Book) Load(ctx context.Context) error {
	var jokes []string
	err := bot.ReadJSONFile(b.path, &jokes)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.jokes = nil
	if err != nil {
		return fmt.Errorf("error loading jokes: %w", err)
	}

	seen := make(map[string]bool, len(jokes))
	for _, j := range jokes {
		if seen[j] {
			continue
		}
		seen[j] = true
		b.jokes = append(b.jokes, j)
	}
	b.logger.InfoContext(ctx, "loaded jokes", "count", len(b.jokes), "path", b.path)
	return nil
}

// Pick returns a joke chosen uniformly at random.
func (b *Book) Pick() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.jokes) == 0 {
		return b.fallback
	}
	return b.jokes[b.intN(len(b.jokes))]
}

// Add appends text, trimmed, for the admin and saves the list. It returns
// the trimmed joke and the number of jokes. If saving fails the joke is
// removed again.
func (b *Book) Add(ctx context.Context, callerID string, text string) (string, int, error) {
	if callerID == "" || callerID != b.adminID {
		return "", 0, ErrForbidden
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minJokeLength {
		return text, 0, ErrTooShort
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if slices.Contains(b.jokes, text) {
		return text, len(b.jokes), ErrDuplicate
	}
	b.jokes = append(b.jokes, text)

	if err := bot.WriteJSONFile(b.path, b.jokes); err != nil {
		b.jokes = b.jokes[:len(b.jokes)-1]
		bot.Logger(ctx).ErrorContext(ctx, "error saving jokes", tint.Err(err), "path", b.path)
		return text, len(b.jokes), fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	bot.Logger(ctx).InfoContext(ctx, "added joke", "count", len(b.jokes))
	return text, len(b.jokes), nil
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.jokes)
}
