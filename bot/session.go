package bot

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// SessionHandler defines the methods from `discordgo.Session` which are
// used by the bots, to enable testing/mocking.
type SessionHandler interface {
	// Open creates a websocket connection to Discord
	Open() error

	// Close closes the websocket connection to Discord
	Close() error

	// AddHandler adds a discord gateway event handler
	AddHandler(handler any) func()

	// ApplicationCommandBulkOverwrite replaces the application's commands,
	// either globally (empty guildID) or for a single guild.
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)

	// InteractionRespond sends an interaction response to Discord
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error

	// InteractionResponseEdit modifies the given interaction
	InteractionResponseEdit(
		interaction *discordgo.Interaction,
		newresp *discordgo.WebhookEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// UserChannelCreate opens (or returns the existing) DM channel with
	// the given user
	UserChannelCreate(
		recipientID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)

	// ChannelMessageSendComplex sends a message with embeds/components
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// GuildMember fetches a guild member. Returns a RESTError with
	// ErrCodeUnknownMember when the user isn't in the guild.
	GuildMember(
		guildID string,
		userID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Member, error)

	// GuildRoles lists every role in the guild
	GuildRoles(
		guildID string,
		options ...discordgo.RequestOption,
	) ([]*discordgo.Role, error)

	// GuildMemberRoleAdd adds a role to a guild member
	GuildMemberRoleAdd(
		guildID string,
		userID string,
		roleID string,
		options ...discordgo.RequestOption,
	) error

	// UpdateCustomStatus sets the bot's user status to the given string.
	// If empty, sets the bot user to active and removes any existing
	// custom status.
	UpdateCustomStatus(status string) error

	// SetIdentify sets the identify object that's sent during the initial
	// handshake with the discord gateway
	SetIdentify(discordgo.Identify)

	// SetLogLevel modifies the session's log level
	SetLogLevel(lvl slog.Level) error
}

// Session implements SessionHandler, wrapping a
// [discordgo.Session](https://pkg.go.dev/github.com/bwmarrin/discordgo#Session)
type Session struct {
	session *discordgo.Session
	logger  *slog.Logger
}

// NewSession creates a bot session for token. Events are dispatched
// synchronously, and the state cache is disabled since every lookup the
// bots make goes to the REST API.
func NewSession(token string, logger *slog.Logger) (*Session, error) {
	disc, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	disc.SyncEvents = true
	disc.StateEnabled = false
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{session: disc, logger: logger}, nil
}

func (d Session) SetLogLevel(lvl slog.Level) error {
	level, err := discordgoLogLevel(lvl)
	if err != nil {
		return err
	}
	d.session.LogLevel = level
	return nil
}

// SetIdentify replaces the identify payload. The token, client properties
// and large threshold set by discordgo.New are kept when i leaves them
// empty.
func (d Session) SetIdentify(i discordgo.Identify) {
	current := d.session.Identify
	if i.Token == "" {
		i.Token = current.Token
	}
	if i.Properties == (discordgo.IdentifyProperties{}) {
		i.Properties = current.Properties
	}
	if i.LargeThreshold == 0 {
		i.LargeThreshold = current.LargeThreshold
	}
	d.session.Identify = i
}

func (d Session) Open() error {
	return d.session.Open()
}

func (d Session) Close() error {
	return d.session.Close()
}

func (d Session) AddHandler(handler any) func() {
	return d.session.AddHandler(handler)
}

func (d Session) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	created, err := d.session.ApplicationCommandBulkOverwrite(
		appID,
		guildID,
		commands,
		options...,
	)
	if err != nil {
		d.logger.Error("error overwriting discord commands", tint.Err(err))
		return created, err
	}
	for _, c := range created {
		d.logger.Info("created command", "name", c.Name, "id", c.ID, "guild_id", c.GuildID)
	}
	return created, nil
}

func (d Session) InteractionRespond(
	interaction *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	options ...discordgo.RequestOption,
) error {
	return d.session.InteractionRespond(interaction, resp, options...)
}

func (d Session) InteractionResponseEdit(
	interaction *discordgo.Interaction,
	newresp *discordgo.WebhookEdit,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.InteractionResponseEdit(interaction, newresp, options...)
}

func (d Session) UserChannelCreate(
	recipientID string,
	options ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	return d.session.UserChannelCreate(recipientID, options...)
}

func (d Session) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := d.session.ChannelMessageSendComplex(channelID, data, options...)
	if err != nil {
		d.logger.Error("error sending message", tint.Err(err), "channel_id", channelID)
	} else {
		d.logger.Debug("sent message", "channel_id", channelID, "message_id", msg.ID)
	}
	return msg, err
}

func (d Session) GuildMember(
	guildID string,
	userID string,
	options ...discordgo.RequestOption,
) (*discordgo.Member, error) {
	return d.session.GuildMember(guildID, userID, options...)
}

func (d Session) GuildRoles(
	guildID string,
	options ...discordgo.RequestOption,
) ([]*discordgo.Role, error) {
	return d.session.GuildRoles(guildID, options...)
}

func (d Session) GuildMemberRoleAdd(
	guildID string,
	userID string,
	roleID string,
	options ...discordgo.RequestOption,
) error {
	err := d.session.GuildMemberRoleAdd(guildID, userID, roleID, options...)
	if err != nil {
		d.logger.Error(
			"error adding role",
			tint.Err(err),
			"guild_id", guildID,
			"user_id", userID,
			"role_id", roleID,
		)
	}
	return err
}

func (d Session) UpdateCustomStatus(status string) error {
	return d.session.UpdateCustomStatus(status)
}
