package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

// ErrDirectMessageBlocked is returned by SendDirectMessage when the
// recipient doesn't accept DMs from the bot.
var ErrDirectMessageBlocked = errors.New("recipient does not accept direct messages")

// DirectMessenger is the subset of SessionHandler needed to DM a user.
type DirectMessenger interface {
	UserChannelCreate(
		recipientID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// SendDirectMessage opens a DM channel with userID and sends msg.
func SendDirectMessage(
	ctx context.Context,
	s DirectMessenger,
	userID string,
	msg *discordgo.MessageSend,
) error {
	opts := []discordgo.RequestOption{discordgo.WithContext(ctx)}

	ch, err := s.UserChannelCreate(userID, opts...)
	if err != nil {
		return fmt.Errorf("error opening DM channel: %w", dmError(err))
	}
	if _, err = s.ChannelMessageSendComplex(ch.ID, msg, opts...); err != nil {
		return fmt.Errorf("error sending DM: %w", dmError(err))
	}
	return nil
}

func dmError(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil &&
		restErr.Message.Code == discordgo.ErrCodeCannotSendMessagesToThisUser {
		return errors.Join(ErrDirectMessageBlocked, err)
	}
	return err
}

// Notifier sends best-effort direct messages. Each notification runs on
// its own goroutine, paced by a shared rate limiter, and its outcome is
// only logged.
type Notifier struct {
	messenger DirectMessenger
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewNotifier(messenger DirectMessenger, cfg *NotifyConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		messenger: messenger,
		timeout:   DefaultNotifyTimeout,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		logger:    logger,
	}
	if cfg != nil {
		if cfg.Timeout > 0 {
			n.timeout = cfg.Timeout
		}
		if cfg.RatePerSecond > 0 {
			burst := cfg.Burst
			if burst < 1 {
				burst = 1
			}
			n.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
		}
	}
	return n
}

// Notify DMs the given embeds to userID without blocking the caller.
// Cancellation of ctx doesn't abort the notification; the configured
// timeout does.
func (n *Notifier) Notify(ctx context.Context, userID string, embeds ...*discordgo.MessageEmbed) {
	logger := Logger(ctx).With("notify_user_id", userID)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()

		if err := n.limiter.Wait(ctx); err != nil {
			logger.WarnContext(ctx, "notification dropped", tint.Err(err))
			return
		}
		err := SendDirectMessage(ctx, n.messenger, userID, &discordgo.MessageSend{Embeds: embeds})
		if err != nil {
			logger.WarnContext(ctx, "notification failed", tint.Err(err))
			return
		}
		logger.DebugContext(ctx, "notification sent")
	}()
}

// Wait blocks until every pending notification finishes, or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
