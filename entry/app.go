package entry

import (
	"context"
	"errors"
	"fmt"

	"github.com/Corn-mrb/project/bot"
)

// App is the entry bot: a Bot with the store commands and passphrase
// handler wired to a Registry.
type App struct {
	bot      *bot.Bot
	config   *Config
	registry *Registry
	tracker  *ChallengeTracker
	handlers *Handlers
}

// NewApp opens the configured storage, loads the registry and registers
// the entry commands on b. b should be built with GatewayIntents.
func NewApp(ctx context.Context, b *bot.Bot, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("entry config is required")
	}
	if err := bot.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid entry config: %w", err)
	}

	logger := b.Logger().With("storage", cfg.Storage.Type)
	backend, err := OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("error opening storage: %w", err)
	}

	registry := NewRegistry(backend, cfg, logger)
	if err = registry.Load(ctx); err != nil {
		return nil, errors.Join(err, backend.Close())
	}

	session := b.Session()
	platform := NewDiscordPlatform(session)
	tracker := NewChallengeTracker()
	verifier := NewVerifier(registry, tracker, platform, b.Notifier())

	app := &App{
		bot:      b,
		config:   cfg,
		registry: registry,
		tracker:  tracker,
		handlers: NewHandlers(registry, verifier, platform, session),
	}
	for _, c := range app.handlers.Commands() {
		b.AddCommand(c)
	}
	b.OnMessage(app.handlers.HandleMessage)
	b.SetStats(app.stats)
	return app, nil
}

func (a *App) Registry() *Registry {
	return a.registry
}

func (a *App) stats() map[string]any {
	return map[string]any{
		"stores":             a.registry.Len(),
		"pending_challenges": a.tracker.Len(),
	}
}

// Run runs the bot until ctx is canceled, then closes the storage.
func (a *App) Run(ctx context.Context) error {
	err := a.bot.Run(ctx)
	if closeErr := a.registry.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("error closing storage: %w", closeErr))
	}
	return err
}
