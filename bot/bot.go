package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

// Command is a slash command definition paired with its handler.
type Command struct {
	Definition *discordgo.ApplicationCommand
	Handle     func(ctx context.Context, h InteractionHandler)
}

// MessageHandler handles a MESSAGE_CREATE event.
type MessageHandler func(ctx context.Context, m *discordgo.MessageCreate)

// Option configures a Bot in New.
type Option func(*Bot)

// WithSession replaces the discordgo session, for tests.
func WithSession(s SessionHandler) Option {
	return func(b *Bot) {
		b.session = s
	}
}

// WithIntents adds gateway intents on top of the configured ones.
func WithIntents(intents discordgo.Intent) Option {
	return func(b *Bot) {
		b.intents |= intents
	}
}

// Bot owns a Discord session and dispatches its events to registered
// commands and message handlers. Events are handled on the gateway
// goroutine one at a time.
type Bot struct {
	name    string
	config  *Config
	session SessionHandler
	intents discordgo.Intent

	logger        *slog.Logger
	discordLogger *slog.Logger

	notifier *Notifier
	api      *API

	commands        map[string]Command
	definitions     []*discordgo.ApplicationCommand
	messageHandlers []MessageHandler

	stats   StatsFunc
	statsMu sync.RWMutex

	runMu          sync.Mutex
	startedAt      time.Time
	removeHandlers []func()

	connected          atomic.Bool
	metricConnects     atomic.Int64
	metricDisconnects  atomic.Int64
	metricInteractions atomic.Int64
	metricMessages     atomic.Int64
}

// New validates config and builds a Bot named name.
func New(name string, config *Config, opts ...Option) (*Bot, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	var errs []error
	if err := Validate(config); err != nil {
		errs = append(errs, fmt.Errorf("invalid config: %w", err))
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	b := &Bot{
		name:     name,
		config:   config,
		commands: map[string]Command{},
		logger:   NewLogger(name, config.LogLevel),
	}
	if config.Discord != nil {
		b.intents = config.Discord.GatewayIntents
		b.discordLogger = NewLogger("discord", config.Discord.LogLevel).With("bot", name)
	} else {
		b.discordLogger = b.logger
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.session == nil && config.Discord != nil {
		discordgo.Logger = discordgoLoggerFunc(
			context.Background(),
			NewLogHandler(config.Discord.DiscordGoLogLevel).WithAttrs(
				[]slog.Attr{slog.String(loggerNameKey, "discordgo")},
			),
		)
		session, err := NewSession(
			config.Discord.Token,
			b.discordLogger.With(loggerNameKey, "discord_session_handler"),
		)
		if err != nil {
			errs = append(errs, err)
		} else {
			if config.Discord.DiscordGoLogLevel != nil {
				if lvlErr := session.SetLogLevel(config.Discord.DiscordGoLogLevel.Level()); lvlErr != nil {
					errs = append(errs, lvlErr)
				}
			}
			b.session = session
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	b.notifier = NewNotifier(b.session, config.Notify, b.logger.With(loggerNameKey, "notifier"))
	if config.API != nil && config.API.Enabled {
		b.api = newAPI(b, config.API)
	}
	return b, nil
}

func (b *Bot) Name() string {
	return b.name
}

func (b *Bot) Session() SessionHandler {
	return b.session
}

func (b *Bot) Notifier() *Notifier {
	return b.notifier
}

func (b *Bot) Logger() *slog.Logger {
	return b.logger
}

func (b *Bot) Uptime() time.Duration {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.startedAt.IsZero() {
		return 0
	}
	return time.Since(b.startedAt)
}

// AddCommand registers a slash command. Commands must be added before Run.
func (b *Bot) AddCommand(c Command) {
	name := c.Definition.Name
	if _, exists := b.commands[name]; !exists {
		b.definitions = append(b.definitions, c.Definition)
	}
	b.commands[name] = c
}

// OnMessage registers a handler for every message the bot can see.
func (b *Bot) OnMessage(h MessageHandler) {
	b.messageHandlers = append(b.messageHandlers, h)
}

// SetStats sets the function reporting bot-specific counters on the
// status API.
func (b *Bot) SetStats(f StatsFunc) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	b.stats = f
}

func (b *Bot) statsFunc() StatsFunc {
	b.statsMu.RLock()
	defer b.statsMu.RUnlock()
	return b.stats
}

// Intents returns the gateway intents sent when identifying.
func (b *Bot) Intents() discordgo.Intent {
	return b.intents
}

// RegisterCommands bulk-overwrites the bot's commands for appID. With a
// configured guild ID they are registered to that guild only, which takes
// effect immediately; otherwise they're global.
func (b *Bot) RegisterCommands(
	ctx context.Context,
	appID string,
) ([]*discordgo.ApplicationCommand, error) {
	if len(b.definitions) == 0 {
		return nil, nil
	}
	guildID := b.config.Discord.GuildID
	created, err := b.session.ApplicationCommandBulkOverwrite(
		appID,
		guildID,
		b.definitions,
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return created, fmt.Errorf("error registering commands: %w", err)
	}
	b.logger.InfoContext(
		ctx,
		"registered commands",
		"count", len(created),
		"app_id", appID,
		"guild_id", guildID,
	)
	return created, nil
}

// Run opens the gateway session (and the status API, if enabled) and
// blocks until ctx is canceled or either fails. Pending notifications are
// given up to ShutdownTimeout to finish.
func (b *Bot) Run(ctx context.Context) error {
	b.runMu.Lock()
	b.startedAt = time.Now()
	b.runMu.Unlock()

	logger := b.logger
	ctx = WithLogger(ctx, logger)
	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", b.config))

	b.session.SetIdentify(discordgo.Identify{Intents: b.intents})

	b.removeHandlers = []func(){
		b.session.AddHandler(b.handlerConnect()),
		b.session.AddHandler(b.handlerDisconnect()),
		b.session.AddHandler(b.handlerReady(ctx)),
		b.session.AddHandler(
			func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
				b.HandleInteraction(ctx, NewGatewayHandler(b.session, i, b.discordLogger))
			},
		),
		b.session.AddHandler(
			func(_ *discordgo.Session, m *discordgo.MessageCreate) {
				b.HandleMessage(ctx, m)
			},
		),
	}
	defer func() {
		for _, remove := range b.removeHandlers {
			remove()
		}
		b.removeHandlers = nil
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(
		func() error {
			if err := b.session.Open(); err != nil {
				return fmt.Errorf("error opening discord connection: %w", err)
			}
			logger.InfoContext(gctx, "discord session opened")
			<-gctx.Done()
			logger.InfoContext(ctx, "closing discord session")
			if err := b.session.Close(); err != nil {
				return fmt.Errorf("error closing discord connection: %w", err)
			}
			return nil
		},
	)
	if b.api != nil {
		g.Go(func() error { return b.api.Serve(gctx) })
	}

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx),
		b.config.ShutdownTimeout,
	)
	defer cancel()
	if waitErr := b.notifier.Wait(shutdownCtx); waitErr != nil {
		logger.WarnContext(ctx, "abandoning pending notifications", tint.Err(waitErr))
	}

	if err != nil {
		logger.ErrorContext(ctx, "stopped with error", tint.Err(err))
		return err
	}
	logger.InfoContext(ctx, "stopped")
	return nil
}

// eventContext returns a context whose logger carries a fresh event ID.
func (b *Bot) eventContext(ctx context.Context, logger *slog.Logger) (context.Context, *slog.Logger) {
	if logger == nil {
		logger = Logger(ctx)
	}
	logger = logger.With("event_id", uuid.NewString())
	return WithLogger(ctx, logger), logger
}

// HandleInteraction dispatches an interaction to its command.
func (b *Bot) HandleInteraction(ctx context.Context, h InteractionHandler) {
	b.metricInteractions.Add(1)

	i := h.GetInteraction()
	ctx, logger := b.eventContext(ctx, h.Logger())
	defer func() {
		if rc := recover(); rc != nil {
			handleRecover(ctx, rc)
		}
	}()

	discordUser := DiscordUser(i)
	if discordUser == nil {
		logger.ErrorContext(ctx, "no user found in interaction", "interaction", structToSlogValue(i))
		return
	}
	logger = logger.With(
		slog.Group("interaction", interactionLogAttrs(*i)...),
		slog.Group("user", userLogAttrs(discordUser)...),
	)
	ctx = WithLogger(ctx, logger)

	if discordUser.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring")
		return
	}

	switch i.Type {
	case discordgo.InteractionPing:
		_ = h.Respond(ctx, &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		cmd, ok := b.commands[name]
		if !ok {
			logger.WarnContext(ctx, "unknown command")
			_ = RespondContent(ctx, h, "❌ 알 수 없는 명령어입니다.", true)
			return
		}
		logger.InfoContext(ctx, "received command")
		start := time.Now()
		cmd.Handle(ctx, h)
		logger.InfoContext(ctx, "handled command", "duration", time.Since(start))
	default:
		logger.WarnContext(ctx, "unhandled interaction type")
	}
}

// HandleMessage passes a message to every registered message handler.
func (b *Bot) HandleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	b.metricMessages.Add(1)

	ctx, logger := b.eventContext(ctx, b.discordLogger)
	logger = logger.With(
		slog.Group(
			"message",
			"id", m.ID,
			"channel_id", m.ChannelID,
			"guild_id", m.GuildID,
			"author_id", m.Author.ID,
		),
	)
	ctx = WithLogger(ctx, logger)
	defer func() {
		if rc := recover(); rc != nil {
			handleRecover(ctx, rc)
		}
	}()

	for _, h := range b.messageHandlers {
		h(ctx, m)
	}
}

func (b *Bot) handlerReady(ctx context.Context) func(*discordgo.Session, *discordgo.Ready) {
	return func(_ *discordgo.Session, r *discordgo.Ready) {
		logger := b.discordLogger
		var userID string
		if r.User != nil {
			userID = r.User.ID
			logger.InfoContext(
				ctx,
				"Ready",
				"session_id", r.SessionID,
				slog.Group("user", "id", r.User.ID, "username", r.User.Username),
				"guilds", len(r.Guilds),
			)
		}

		if status := b.config.Discord.CustomStatus; status != "" {
			if err := b.session.UpdateCustomStatus(status); err != nil {
				logger.ErrorContext(ctx, "error setting custom status", tint.Err(err))
			}
		}

		appID := b.config.Discord.ApplicationID
		if appID == "" {
			appID = userID
		}
		if appID == "" {
			logger.ErrorContext(ctx, "no application ID available, commands not registered")
			return
		}
		if _, err := b.RegisterCommands(ctx, appID); err != nil {
			logger.ErrorContext(ctx, "error registering commands", tint.Err(err))
		}
	}
}

func (b *Bot) handlerConnect() func(*discordgo.Session, *discordgo.Connect) {
	return func(_ *discordgo.Session, _ *discordgo.Connect) {
		b.metricConnects.Add(1)
		b.connected.Store(true)
		b.discordLogger.Info("connected")
	}
}

func (b *Bot) handlerDisconnect() func(*discordgo.Session, *discordgo.Disconnect) {
	return func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		b.connected.Store(false)
		b.metricDisconnects.Add(1)
		b.discordLogger.Warn("disconnected")
	}
}
