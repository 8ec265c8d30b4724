package joke

import (
	"context"
	"errors"
	"fmt"

	"github.com/Corn-mrb/project/bot"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	commandJoke    = "joke"
	commandAddJoke = "add_joke"
	optionJoke     = "joke"

	jokeSuffix = " 🦉"

	msgForbidden   = "❌ 권한이 없습니다!"
	msgTooShort    = "❌ 최소 3글자 이상 입력해주세요."
	msgDuplicate   = "❌ 이미 존재하는 농담입니다!"
	msgSaveFailed  = "❌ 저장 실패. 다시 시도해주세요."
	msgAddFailed   = "❌ 농담을 추가하지 못했습니다."
	addedJokeReply = "✅ 추가 완료!\n**농담:** %s\n**전체:** %d개"
)

// App is the joke bot.
type App struct {
	bot  *bot.Bot
	book *Book
}

// NewApp loads the jokes and registers the joke commands on b. A jokes
// file that can't be loaded is logged and the fallback joke is served.
func NewApp(ctx context.Context, b *bot.Bot, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("joke config is required")
	}
	if err := bot.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid joke config: %w", err)
	}

	book := NewBook(cfg, b.Logger())
	if err := book.Load(ctx); err != nil {
		b.Logger().WarnContext(ctx, "serving fallback joke", tint.Err(err))
	}

	app := &App{bot: b, book: book}
	for _, c := range app.Commands() {
		b.AddCommand(c)
	}
	b.SetStats(
		func() map[string]any {
			return map[string]any{"jokes": book.Len()}
		},
	)
	return app, nil
}

func (a *App) Book() *Book {
	return a.book
}

func (a *App) Run(ctx context.Context) error {
	return a.bot.Run(ctx)
}

// Commands returns the joke bot's slash commands.
func (a *App) Commands() []bot.Command {
	minLength := minJokeLength
	return []bot.Command{
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        commandJoke,
				Description: "랜덤 농담을 들려줍니다 🦉",
			},
			Handle: a.joke,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        commandAddJoke,
				Description: "새로운 농담을 추가합니다 (관리자 전용)",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        optionJoke,
						Description: "추가할 농담 내용",
						Required:    true,
						MinLength:   &minLength,
						MaxLength:   2000,
					},
				},
			},
			Handle: a.addJoke,
		},
	}
}

func (a *App) joke(ctx context.Context, h bot.InteractionHandler) {
	_ = bot.RespondContent(ctx, h, a.book.Pick()+jokeSuffix, false)
}

func (a *App) addJoke(ctx context.Context, h bot.InteractionHandler) {
	i := h.GetInteraction()
	user := bot.DiscordUser(i)

	var text string
	if opt, ok := bot.InteractionOptions(i)[optionJoke]; ok {
		text = opt.StringValue()
	}

	added, count, err := a.book.Add(ctx, user.ID, text)
	if err != nil {
		bot.Logger(ctx).InfoContext(ctx, "joke not added", tint.Err(err))
		_ = bot.RespondContent(ctx, h, addErrorMessage(err), true)
		return
	}
	_ = bot.RespondContent(ctx, h, fmt.Sprintf(addedJokeReply, added, count), false)
}

func addErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return msgForbidden
	case errors.Is(err, ErrTooShort):
		return msgTooShort
	case errors.Is(err, ErrDuplicate):
		return msgDuplicate
	case errors.Is(err, ErrPersistence):
		return msgSaveFailed
	default:
		return msgAddFailed
	}
}
