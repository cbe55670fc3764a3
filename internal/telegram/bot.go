package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/deusflow/newsdigest/internal/digest"
	"github.com/deusflow/newsdigest/internal/storage"
)

// DigestBuilder produces a fresh digest on demand.
type DigestBuilder interface {
	Build(ctx context.Context) digest.Result
}

// Briefer writes a short overview of a list of headlines.
type Briefer interface {
	Brief(ctx context.Context, headlines []string) (string, error)
}

const helpText = `<b>News digest bot</b>

/start - subscribe to scheduled digests
/stop - unsubscribe
/news - get the digest now
/brief - digest with a short AI overview
/help - this message`

// Bot answers chat commands. Briefer may be nil.
type Bot struct {
	Sender        Sender
	Subscriptions storage.SubscriberStore
	Digests       DigestBuilder
	Briefer       Briefer
	Schedule      []string
}

// Handle processes one incoming message text from chatID.
func (b *Bot) Handle(ctx context.Context, chatID int64, text string) error {
	cmd := command(text)
	logger := log.With().Int64("chat_id", chatID).Str("command", cmd).Logger()
	logger.Debug().Msg("Handling command")

	switch cmd {
	case "start":
		if err := b.Subscriptions.Subscribe(ctx, chatID); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		msg := "✅ Subscribed."
		if len(b.Schedule) > 0 {
			msg += " Digests arrive at " + strings.Join(b.Schedule, ", ") + "."
		}
		return b.Sender.Send(ctx, chatID, msg+"\n\n"+helpText)

	case "stop":
		if err := b.Subscriptions.Unsubscribe(ctx, chatID); err != nil {
			return fmt.Errorf("unsubscribe: %w", err)
		}
		return b.Sender.Send(ctx, chatID, "👋 Unsubscribed. Send /start to come back.")

	case "news":
		return b.Sender.Send(ctx, chatID, b.Digests.Build(ctx).Text)

	case "brief":
		res := b.Digests.Build(ctx)
		return b.Sender.Send(ctx, chatID, b.briefText(ctx, res)+res.Text)

	case "help", "":
		return b.Sender.Send(ctx, chatID, helpText)

	default:
		return b.Sender.Send(ctx, chatID, "Unknown command. Send /help for the list.")
	}
}

// briefText returns the overview block or an empty string.
func (b *Bot) briefText(ctx context.Context, res digest.Result) string {
	if b.Briefer == nil {
		return "<i>AI brief is not configured.</i>\n\n"
	}
	headlines := res.Headlines()
	if len(headlines) == 0 {
		return ""
	}
	brief, err := b.Briefer.Brief(ctx, headlines)
	if err != nil {
		log.Warn().Err(err).Str("build_id", res.ID).Msg("Brief failed, sending digest only")
		return ""
	}
	return "🧠 <b>In short</b>\n" + html.EscapeString(brief) + "\n\n"
}

// Run consumes updates until ctx ends or the channel closes.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			chatID := update.Message.Chat.ID
			if err := b.Handle(ctx, chatID, update.Message.Text); err != nil {
				log.Error().Err(err).Int64("chat_id", chatID).Msg("Command failed")
			}
		}
	}
}

// command extracts "news" from "/news@my_bot extra".
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}
