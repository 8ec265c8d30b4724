package entry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Corn-mrb/project/bot"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	commandStoreCreate = "매장등록"
	commandStoreUpdate = "매장수정"
	commandStoreList   = "매장목록"
	commandStoreDelete = "매장삭제"
	commandEnter       = "입장"
)

const (
	optionName            = "매장명"
	optionMinRole         = "최소역할"
	optionGrantRole       = "부여역할"
	optionPassphrase      = "암구호"
	optionClearPassphrase = "암구호제거"
	optionCode            = "매장코드"
)

var guildOnly = false

func codeOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        optionCode,
		Description: description,
		Required:    true,
		MinLength:   &codeLength,
		MaxLength:   codeLength,
	}
}

var codeLength = 2

func storeCreateDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:         commandStoreCreate,
		Description:  "새 매장을 등록하고 매장 코드를 발급합니다",
		DMPermission: &guildOnly,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        optionName,
				Description: "매장 이름",
				Required:    true,
				MaxLength:   100,
			},
			{
				Type:        discordgo.ApplicationCommandOptionRole,
				Name:        optionMinRole,
				Description: "입장에 필요한 최소 역할",
			},
			{
				Type:        discordgo.ApplicationCommandOptionRole,
				Name:        optionGrantRole,
				Description: "입장 승인 시 부여할 역할",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        optionPassphrase,
				Description: "입장 시 DM으로 확인할 암구호",
				MaxLength:   100,
			},
		},
	}
}

func storeUpdateDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:         commandStoreUpdate,
		Description:  "본인이 등록한 매장의 조건을 수정합니다",
		DMPermission: &guildOnly,
		Options: []*discordgo.ApplicationCommandOption{
			codeOption("수정할 매장 코드"),
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        optionName,
				Description: "새 매장 이름",
				MaxLength:   100,
			},
			{
				Type:        discordgo.ApplicationCommandOptionRole,
				Name:        optionMinRole,
				Description: "새 최소 역할",
			},
			{
				Type:        discordgo.ApplicationCommandOptionRole,
				Name:        optionGrantRole,
				Description: "새 부여 역할",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        optionPassphrase,
				Description: "새 암구호",
				MaxLength:   100,
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        optionClearPassphrase,
				Description: "암구호를 제거합니다",
			},
		},
	}
}

func storeListDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:         commandStoreList,
		Description:  "내가 등록한 매장 목록을 확인합니다",
		DMPermission: &guildOnly,
	}
}

func storeDeleteDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:         commandStoreDelete,
		Description:  "본인이 등록한 매장을 삭제합니다",
		DMPermission: &guildOnly,
		Options: []*discordgo.ApplicationCommandOption{
			codeOption("삭제할 매장 코드"),
		},
	}
}

func enterDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        commandEnter,
		Description: "매장 코드로 입장을 요청합니다",
		Options: []*discordgo.ApplicationCommandOption{
			codeOption("입장할 매장 코드"),
		},
	}
}

// Handlers serves the store commands and passphrase replies.
type Handlers struct {
	registry  *Registry
	verifier  *Verifier
	platform  Platform
	messenger bot.DirectMessenger
}

func NewHandlers(
	registry *Registry,
	verifier *Verifier,
	platform Platform,
	messenger bot.DirectMessenger,
) *Handlers {
	return &Handlers{
		registry:  registry,
		verifier:  verifier,
		platform:  platform,
		messenger: messenger,
	}
}

// Commands returns every slash command served by h.
func (h *Handlers) Commands() []bot.Command {
	return []bot.Command{
		{Definition: storeCreateDefinition(), Handle: h.storeCreate},
		{Definition: storeUpdateDefinition(), Handle: h.storeUpdate},
		{Definition: storeListDefinition(), Handle: h.storeList},
		{Definition: storeDeleteDefinition(), Handle: h.storeDelete},
		{Definition: enterDefinition(), Handle: h.enter},
	}
}

// caller resolves the invoking member's role names. ok is false, and a
// reply has already been sent, when the caller can't be resolved.
func (h *Handlers) caller(ctx context.Context, ih bot.InteractionHandler) (Caller, bool) {
	i := ih.GetInteraction()
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		_ = bot.EditContent(ctx, ih, msgGuildOnly)
		return Caller{}, false
	}
	c := Caller{UserID: i.Member.User.ID, GuildID: i.GuildID}

	guildRoles, err := h.platform.Roles(ctx, i.GuildID)
	if err != nil {
		bot.Logger(ctx).ErrorContext(ctx, "error fetching guild roles", tint.Err(err))
		_ = bot.EditContent(ctx, ih, msgInternalError)
		return Caller{}, false
	}
	c.RoleNames = callerRoleNames(i.Member, guildRoles, i.GuildID)
	return c, true
}

// errorMessage maps registry errors to replies. notOwner is the reply
// for ErrNotOwner.
func (h *Handlers) errorMessage(err error, notOwner string) string {
	switch {
	case errors.Is(err, ErrNotOwner):
		return notOwner
	case errors.Is(err, ErrForbidden):
		return forbiddenMessage(h.registry.AllowedRoles())
	case errors.Is(err, ErrNotFound):
		return msgNotFound
	case errors.Is(err, ErrNoChange):
		return msgNoChange
	case errors.Is(err, ErrCodeSpaceExhausted):
		return msgCodeExhausted
	case errors.Is(err, ErrInvalidOptions):
		return msgInvalidOptions
	default:
		return msgInternalError
	}
}

func (h *Handlers) storeCreate(ctx context.Context, ih bot.InteractionHandler) {
	if err := bot.Defer(ctx, ih, true); err != nil {
		return
	}
	c, ok := h.caller(ctx, ih)
	if !ok {
		return
	}

	opts := bot.InteractionOptions(ih.GetInteraction())
	createOpts := CreateOptions{
		Name:        strings.TrimSpace(stringOption(opts, optionName)),
		MinRoleID:   roleOption(opts, optionMinRole),
		GrantRoleID: roleOption(opts, optionGrantRole),
		Passphrase:  stringOption(opts, optionPassphrase),
	}

	code, store, err := h.registry.Create(ctx, c, createOpts)
	switch {
	case err == nil:
		_ = bot.EditEmbeds(ctx, ih, createdEmbed(code, store))
	case errors.Is(err, ErrPersistence):
		_ = bot.EditEmbeds(ctx, ih, withSaveWarning(createdEmbed(code, store)))
	default:
		bot.Logger(ctx).WarnContext(ctx, "store not created", tint.Err(err))
		_ = bot.EditContent(ctx, ih, h.errorMessage(err, msgInternalError))
	}
}

func (h *Handlers) storeUpdate(ctx context.Context, ih bot.InteractionHandler) {
	if err := bot.Defer(ctx, ih, true); err != nil {
		return
	}
	c, ok := h.caller(ctx, ih)
	if !ok {
		return
	}

	opts := bot.InteractionOptions(ih.GetInteraction())
	code := strings.TrimSpace(stringOption(opts, optionCode))

	var updateOpts UpdateOptions
	if o, ok := opts[optionName]; ok {
		name := strings.TrimSpace(o.StringValue())
		updateOpts.Name = &name
	}
	if _, ok := opts[optionMinRole]; ok {
		roleID := roleOption(opts, optionMinRole)
		updateOpts.MinRoleID = &roleID
	}
	if _, ok := opts[optionGrantRole]; ok {
		roleID := roleOption(opts, optionGrantRole)
		updateOpts.GrantRoleID = &roleID
	}
	if o, ok := opts[optionPassphrase]; ok {
		passphrase := o.StringValue()
		updateOpts.Passphrase = &passphrase
	} else if o, ok := opts[optionClearPassphrase]; ok && o.BoolValue() {
		cleared := ""
		updateOpts.Passphrase = &cleared
	}

	store, changes, err := h.registry.Update(ctx, c, code, updateOpts)
	switch {
	case err == nil:
		_ = bot.EditEmbeds(ctx, ih, updatedEmbed(code, store, changes))
	case errors.Is(err, ErrPersistence):
		_ = bot.EditEmbeds(ctx, ih, withSaveWarning(updatedEmbed(code, store, changes)))
	default:
		bot.Logger(ctx).InfoContext(ctx, "store not updated", tint.Err(err), "code", code)
		_ = bot.EditContent(ctx, ih, h.errorMessage(err, msgNotOwnerUpdate))
	}
}

func (h *Handlers) storeList(ctx context.Context, ih bot.InteractionHandler) {
	if err := bot.Defer(ctx, ih, true); err != nil {
		return
	}
	c, ok := h.caller(ctx, ih)
	if !ok {
		return
	}

	listings, err := h.registry.List(ctx, c)
	if err != nil {
		_ = bot.EditContent(ctx, ih, h.errorMessage(err, msgInternalError))
		return
	}
	if len(listings) == 0 {
		_ = bot.EditContent(ctx, ih, msgNoStores)
		return
	}
	_ = bot.EditEmbeds(ctx, ih, listEmbed(listings, h.roleNamer(ctx)))
}

// roleNamer resolves role names, fetching each guild's roles at most once.
func (h *Handlers) roleNamer(ctx context.Context) func(guildID string, roleID string) string {
	cache := map[string][]*discordgo.Role{}
	return func(guildID string, roleID string) string {
		roles, ok := cache[guildID]
		if !ok {
			var err error
			roles, err = h.platform.Roles(ctx, guildID)
			if err != nil {
				bot.Logger(ctx).WarnContext(ctx, "error fetching guild roles", tint.Err(err), "guild_id", guildID)
			}
			cache[guildID] = roles
		}
		if role := findRole(roles, roleID); role != nil {
			return role.Name
		}
		return ""
	}
}

func (h *Handlers) storeDelete(ctx context.Context, ih bot.InteractionHandler) {
	if err := bot.Defer(ctx, ih, true); err != nil {
		return
	}
	c, ok := h.caller(ctx, ih)
	if !ok {
		return
	}

	code := strings.TrimSpace(stringOption(bot.InteractionOptions(ih.GetInteraction()), optionCode))
	store, err := h.registry.Delete(ctx, c, code)
	switch {
	case err == nil:
		_ = bot.EditContent(ctx, ih, deletedMessage(store))
	case errors.Is(err, ErrPersistence):
		_ = bot.EditContent(ctx, ih, deletedMessage(store)+"\n"+msgPersistenceFailed)
	default:
		bot.Logger(ctx).InfoContext(ctx, "store not deleted", tint.Err(err), "code", code)
		_ = bot.EditContent(ctx, ih, h.errorMessage(err, msgNotOwnerDelete))
	}
}

func deletedMessage(s Store) string {
	return fmt.Sprintf("✅ '%s' 매장이 삭제되었습니다.", s.Name)
}

func (h *Handlers) enter(ctx context.Context, ih bot.InteractionHandler) {
	if err := bot.Defer(ctx, ih, true); err != nil {
		return
	}
	i := ih.GetInteraction()
	user := bot.DiscordUser(i)
	code := strings.TrimSpace(stringOption(bot.InteractionOptions(i), optionCode))

	out, err := h.verifier.Enter(ctx, code, Requester{ID: user.ID, Name: user.Username})
	if err != nil {
		bot.Logger(ctx).ErrorContext(ctx, "error checking entry", tint.Err(err), "code", code)
		_ = bot.EditContent(ctx, ih, msgInternalError)
		return
	}
	bot.Logger(ctx).InfoContext(ctx, "entry checked", "outcome", out)
	_ = bot.EditEmbeds(ctx, ih, outcomeEmbed(out, false))
}

// HandleMessage answers passphrase replies sent over DM.
func (h *Handlers) HandleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	out, handled := h.verifier.HandleDirectMessage(
		ctx, DirectMessage{
			AuthorID:   m.Author.ID,
			AuthorName: m.Author.Username,
			Bot:        m.Author.Bot,
			GuildID:    m.GuildID,
			Content:    m.Content,
		},
	)
	if !handled {
		return
	}
	logger := bot.Logger(ctx)
	logger.InfoContext(ctx, "passphrase checked", "outcome", out)

	reply := &discordgo.MessageSend{Reference: m.Reference()}
	if out.Reason == ReasonStoreNotFound {
		reply.Content = msgStoreGone
	} else {
		reply.Embeds = []*discordgo.MessageEmbed{outcomeEmbed(out, true)}
	}
	if _, err := h.messenger.ChannelMessageSendComplex(
		m.ChannelID,
		reply,
		discordgo.WithContext(ctx),
	); err != nil {
		logger.WarnContext(ctx, "error replying to passphrase", tint.Err(err))
	}
}

func stringOption(
	opts map[string]*discordgo.ApplicationCommandInteractionDataOption,
	name string,
) string {
	if o, ok := opts[name]; ok && o.Type == discordgo.ApplicationCommandOptionString {
		return o.StringValue()
	}
	return ""
}

func roleOption(
	opts map[string]*discordgo.ApplicationCommandInteractionDataOption,
	name string,
) string {
	if o, ok := opts[name]; ok && o.Type == discordgo.ApplicationCommandOptionRole {
		return o.RoleValue(nil, "").ID
	}
	return ""
}
