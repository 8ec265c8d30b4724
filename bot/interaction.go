package bot

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// Embed colours, matching discord.py's Color presets.
const (
	ColorBlue   = 0x3498db
	ColorGreen  = 0x2ecc71
	ColorRed    = 0xe74c3c
	ColorOrange = 0xe67e22
)

// InteractionHandler defines the interface for responding to a single
// Discord interaction.
type InteractionHandler interface {
	// Respond sends the initial response to the interaction.
	Respond(ctx context.Context, i *discordgo.InteractionResponse) error

	// Edit modifies the (possibly deferred) interaction response.
	Edit(
		ctx context.Context,
		e *discordgo.WebhookEdit,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// GetInteraction returns the original InteractionCreate event.
	GetInteraction() *discordgo.InteractionCreate

	// Logger returns the logger associated with this handler.
	Logger() *slog.Logger
}

// GatewayHandler implements [InteractionHandler] when receiving interactions
// via the discord websocket gateway.
type GatewayHandler struct {
	session     SessionHandler
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger
}

func NewGatewayHandler(
	session SessionHandler,
	i *discordgo.InteractionCreate,
	logger *slog.Logger,
) GatewayHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return GatewayHandler{session: session, interaction: i, logger: logger}
}

func (w GatewayHandler) Respond(
	ctx context.Context,
	response *discordgo.InteractionResponse,
) error {
	err := w.session.InteractionRespond(w.interaction.Interaction, response)
	if err != nil {
		w.logger.ErrorContext(ctx, "error responding to interaction", tint.Err(err))
	} else {
		w.logger.InfoContext(ctx, "responded to interaction")
	}
	return err
}

func (w GatewayHandler) Edit(
	ctx context.Context,
	wh *discordgo.WebhookEdit,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := w.session.InteractionResponseEdit(
		w.interaction.Interaction,
		wh,
		opts...,
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error editing interaction response", tint.Err(err))
	} else {
		w.logger.InfoContext(ctx, "edited interaction")
	}
	return msg, err
}

func (w GatewayHandler) GetInteraction() *discordgo.InteractionCreate {
	return w.interaction
}

func (w GatewayHandler) Logger() *slog.Logger {
	return w.logger
}

// Defer acknowledges the interaction so the handler has up to 15 minutes
// to Edit in the real response. Ephemeral is fixed at this point and
// can't be changed by the edit.
func Defer(ctx context.Context, h InteractionHandler, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return h.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: data,
		},
	)
}

// EditContent replaces a deferred response with plain text.
func EditContent(ctx context.Context, h InteractionHandler, content string) error {
	_, err := h.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
	return err
}

// EditEmbeds replaces a deferred response with the given embeds.
func EditEmbeds(ctx context.Context, h InteractionHandler, embeds ...*discordgo.MessageEmbed) error {
	empty := ""
	_, err := h.Edit(ctx, &discordgo.WebhookEdit{Content: &empty, Embeds: &embeds})
	return err
}

// RespondContent sends an immediate text response.
func RespondContent(
	ctx context.Context,
	h InteractionHandler,
	content string,
	ephemeral bool,
) error {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return h.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: data,
		},
	)
}
