package entry

import (
	"context"
	"errors"
	"fmt"

	"github.com/Corn-mrb/project/bot"
	"github.com/bwmarrin/discordgo"
)

var (
	ErrNotMember      = errors.New("user is not a guild member")
	ErrDeliveryFailed = errors.New("direct message delivery failed")
)

// Platform is what the verifier needs from Discord.
type Platform interface {
	// Member returns the guild member, or ErrNotMember.
	Member(ctx context.Context, guildID string, userID string) (*discordgo.Member, error)

	// Roles lists every role in the guild.
	Roles(ctx context.Context, guildID string) ([]*discordgo.Role, error)

	AddRole(ctx context.Context, guildID string, userID string, roleID string) error

	// SendDirect DMs msg to userID. Failures match ErrDeliveryFailed.
	SendDirect(ctx context.Context, userID string, msg *discordgo.MessageSend) error
}

// OwnerNotifier delivers best-effort messages to store owners.
type OwnerNotifier interface {
	Notify(ctx context.Context, userID string, embeds ...*discordgo.MessageEmbed)
}

type discordPlatform struct {
	session bot.SessionHandler
}

// NewDiscordPlatform adapts a bot session to Platform.
func NewDiscordPlatform(session bot.SessionHandler) Platform {
	return discordPlatform{session: session}
}

func (p discordPlatform) Member(ctx context.Context, guildID string, userID string) (*discordgo.Member, error) {
	member, err := p.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Message != nil &&
			restErr.Message.Code == discordgo.ErrCodeUnknownMember {
			return nil, ErrNotMember
		}
		return nil, err
	}
	return member, nil
}

func (p discordPlatform) Roles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	return p.session.GuildRoles(guildID, discordgo.WithContext(ctx))
}

func (p discordPlatform) AddRole(ctx context.Context, guildID string, userID string, roleID string) error {
	return p.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (p discordPlatform) SendDirect(ctx context.Context, userID string, msg *discordgo.MessageSend) error {
	if err := bot.SendDirectMessage(ctx, p.session, userID, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}
