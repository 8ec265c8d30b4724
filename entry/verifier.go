package entry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Corn-mrb/project/bot"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// State is where an entry attempt ended up.
type State int

const (
	StateDenied State = iota
	StateApproved
	StateAlreadyApproved
	StatePassphrasePending
)

func (s State) String() string {
	switch s {
	case StateDenied:
		return "denied"
	case StateApproved:
		return "approved"
	case StateAlreadyApproved:
		return "already_approved"
	case StatePassphrasePending:
		return "passphrase_pending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Reason qualifies a Denied or Approved outcome.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonInvalidCode
	ReasonNotMember
	ReasonRoleShortfall
	ReasonDeliveryFailure
	ReasonPassphraseMismatch
	ReasonStoreNotFound
	ReasonRole
	ReasonRoleAndPassphrase
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonInvalidCode:
		return "invalid_code"
	case ReasonNotMember:
		return "not_member"
	case ReasonRoleShortfall:
		return "role_shortfall"
	case ReasonDeliveryFailure:
		return "delivery_failure"
	case ReasonPassphraseMismatch:
		return "passphrase_mismatch"
	case ReasonStoreNotFound:
		return "store_not_found"
	case ReasonRole:
		return "role"
	case ReasonRoleAndPassphrase:
		return "role_and_passphrase"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Requester is the user attempting to enter.
type Requester struct {
	ID   string
	Name string
}

// DirectMessage is a message that may answer a passphrase challenge.
type DirectMessage struct {
	AuthorID   string
	AuthorName string
	Bot        bool

	// GuildID is empty for DMs.
	GuildID string
	Content string
}

// Outcome is the result of an entry attempt or passphrase reply.
type Outcome struct {
	State  State
	Reason Reason
	Code   string
	Store  Store

	// RoleNames are the requester's roles, lowest rank first.
	RoleNames []string

	MinRoleName string

	// GrantedRoleID is set when the store's grant role was added.
	GrantedRoleID   string
	GrantedRoleName string
}

func (o Outcome) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("state", o.State.String()),
		slog.String("reason", o.Reason.String()),
		slog.String("code", o.Code),
	}
	if o.GrantedRoleID != "" {
		attrs = append(attrs, slog.String("granted_role_id", o.GrantedRoleID))
	}
	return slog.GroupValue(attrs...)
}

// Verifier runs the entry flow: role gate, optional passphrase challenge
// over DM, then approval.
type Verifier struct {
	registry *Registry
	tracker  *ChallengeTracker
	platform Platform
	notifier OwnerNotifier
}

func NewVerifier(
	registry *Registry,
	tracker *ChallengeTracker,
	platform Platform,
	notifier OwnerNotifier,
) *Verifier {
	return &Verifier{
		registry: registry,
		tracker:  tracker,
		platform: platform,
		notifier: notifier,
	}
}

// Enter checks user against the store with code. Errors are only
// returned when Discord can't be queried for the user's roles.
func (v *Verifier) Enter(ctx context.Context, code string, user Requester) (Outcome, error) {
	logger := bot.Logger(ctx).With("code", code)

	store, ok := v.registry.Get(code)
	if !ok {
		return Outcome{State: StateDenied, Reason: ReasonInvalidCode, Code: code}, nil
	}
	out := Outcome{Code: code, Store: store}

	if store.IsApproved(user.ID) {
		out.State = StateAlreadyApproved
		return out, nil
	}

	guildID := string(store.GuildID)
	member, err := v.platform.Member(ctx, guildID, user.ID)
	if errors.Is(err, ErrNotMember) {
		out.State, out.Reason = StateDenied, ReasonNotMember
		v.notifyOwner(ctx, out, user)
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("error fetching member: %w", err)
	}

	guildRoles, err := v.platform.Roles(ctx, guildID)
	if err != nil {
		return out, fmt.Errorf("error fetching guild roles: %w", err)
	}
	held := memberRoles(member, guildRoles, guildID)
	out.RoleNames = roleNames(held, guildID)

	if store.MinRoleID != "" {
		minRole := findRole(guildRoles, string(store.MinRoleID))
		if minRole != nil {
			out.MinRoleName = minRole.Name
		} else {
			logger.WarnContext(ctx, "minimum role no longer exists", "role_id", store.MinRoleID)
		}
		if minRole == nil || !meetsMinimum(held, minRole) {
			out.State, out.Reason = StateDenied, ReasonRoleShortfall
			v.notifyOwner(ctx, out, user)
			return out, nil
		}
	}

	if !store.HasPassphrase() {
		return v.approve(ctx, out, user, member, guildRoles, ReasonRole), nil
	}

	v.tracker.Put(user.ID, Challenge{Code: code, RolePassed: true, RoleNames: out.RoleNames})
	err = v.platform.SendDirect(
		ctx,
		user.ID,
		&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{challengeEmbed(store)}},
	)
	if err != nil {
		v.tracker.Delete(user.ID)
		logger.WarnContext(ctx, "unable to deliver passphrase challenge", tint.Err(err))
		out.State, out.Reason = StateDenied, ReasonDeliveryFailure
		return out, nil
	}

	out.State = StatePassphrasePending
	return out, nil
}

// HandleDirectMessage consumes the author's pending challenge, if any,
// and checks msg against the store's passphrase. It reports false when
// the message isn't a challenge reply.
func (v *Verifier) HandleDirectMessage(ctx context.Context, msg DirectMessage) (Outcome, bool) {
	if msg.Bot || msg.GuildID != "" {
		return Outcome{}, false
	}
	challenge, ok := v.tracker.Take(msg.AuthorID)
	if !ok {
		return Outcome{}, false
	}
	logger := bot.Logger(ctx).With("code", challenge.Code)
	user := Requester{ID: msg.AuthorID, Name: msg.AuthorName}

	store, ok := v.registry.Get(challenge.Code)
	if !ok {
		return Outcome{
			State:  StateDenied,
			Reason: ReasonStoreNotFound,
			Code:   challenge.Code,
		}, true
	}
	out := Outcome{Code: challenge.Code, Store: store, RoleNames: challenge.RoleNames}

	if !store.HasPassphrase() || msg.Content != string(store.Passphrase) {
		out.State, out.Reason = StateDenied, ReasonPassphraseMismatch
		v.notifyOwner(ctx, out, user)
		return out, true
	}

	guildID := string(store.GuildID)
	var guildRoles []*discordgo.Role
	member, err := v.platform.Member(ctx, guildID, user.ID)
	if err != nil {
		logger.WarnContext(ctx, "unable to fetch member for role grant", tint.Err(err))
		member = nil
	} else if store.GrantRoleID != "" {
		guildRoles, err = v.platform.Roles(ctx, guildID)
		if err != nil {
			logger.WarnContext(ctx, "unable to fetch guild roles for role grant", tint.Err(err))
		}
	}

	return v.approve(ctx, out, user, member, guildRoles, ReasonRoleAndPassphrase), true
}

// approve grants the store's role when the member lacks it, records the
// user as approved and tells the owner. Role grant and save failures are
// logged and don't change the outcome.
func (v *Verifier) approve(
	ctx context.Context,
	out Outcome,
	user Requester,
	member *discordgo.Member,
	guildRoles []*discordgo.Role,
	reason Reason,
) Outcome {
	logger := bot.Logger(ctx).With("code", out.Code)
	out.State, out.Reason = StateApproved, reason

	guildID := string(out.Store.GuildID)
	if grantID := string(out.Store.GrantRoleID); grantID != "" && member != nil {
		grantRole := findRole(guildRoles, grantID)
		if grantRole != nil && !slices.Contains(member.Roles, grantID) {
			if err := v.platform.AddRole(ctx, guildID, user.ID, grantID); err != nil {
				logger.WarnContext(ctx, "unable to grant role", tint.Err(err), "role_id", grantID)
			} else {
				out.GrantedRoleID = grantRole.ID
				out.GrantedRoleName = grantRole.Name
			}
		}
	}

	if _, err := v.registry.Approve(ctx, out.Code, user.ID); err != nil {
		logger.ErrorContext(ctx, "error recording approval", tint.Err(err))
	} else if !out.Store.IsApproved(user.ID) {
		out.Store.ApprovedUsers = append(out.Store.ApprovedUsers, Snowflake(user.ID))
	}

	v.notifyOwner(ctx, out, user)
	return out
}

func (v *Verifier) notifyOwner(ctx context.Context, out Outcome, user Requester) {
	if v.notifier == nil || out.Store.OwnerID == "" {
		return
	}
	embed := ownerNotificationEmbed(out, user)
	if embed == nil {
		return
	}
	v.notifier.Notify(ctx, string(out.Store.OwnerID), embed)
}
