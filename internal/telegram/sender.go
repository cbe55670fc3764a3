// Package telegram delivers digests and answers chat commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/deusflow/newsdigest/internal/metrics"
	"github.com/deusflow/newsdigest/internal/retry"
)

// MaxMessageLength is Telegram's limit for one text message.
const MaxMessageLength = 4096

// Sender delivers one HTML message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// messageAPI is the part of *tgbotapi.BotAPI the sender uses.
type messageAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type BotSender struct {
	api     messageAPI
	retry   retry.RetryConfig
	metrics *metrics.Metrics
}

func NewBotSender(api *tgbotapi.BotAPI) *BotSender {
	return newBotSender(api)
}

func newBotSender(api messageAPI) *BotSender {
	return &BotSender{
		api: api,
		retry: retry.RetryConfig{
			MaxAttempts: 3,
			Delay:       2 * time.Second,
			Backoff:     true,
			MaxDelay:    10 * time.Second,
		},
		metrics: metrics.Global,
	}
}

// Send splits text into chunks under the message limit and sends them in
// order. Client errors (bad markup, blocked bot) are not retried.
func (s *BotSender) Send(ctx context.Context, chatID int64, text string) error {
	for i, chunk := range Split(text, MaxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		err := retry.WithRetry(ctx, s.retry, "telegram send", func() error {
			_, err := s.api.Send(msg)
			var apiErr *tgbotapi.Error
			if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429 {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			s.metrics.IncrementMessagesFailed()
			return fmt.Errorf("send part %d to chat %d: %w", i+1, chatID, err)
		}
		s.metrics.IncrementMessagesSent()
	}

	log.Debug().Int64("chat_id", chatID).Int("runes", utf8.RuneCountInString(text)).Msg("Message sent")
	return nil
}

// Split breaks text into pieces of at most limit runes, cutting at line
// breaks where possible. A single line longer than limit is hard-cut.
func Split(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts []string
		cur   strings.Builder
		n     int
	)
	flush := func() {
		if chunk := strings.TrimRight(cur.String(), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		cur.Reset()
		n = 0
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		ln := utf8.RuneCountInString(line)
		if n+ln > limit {
			flush()
		}
		for ln > limit {
			r := []rune(line)
			parts = append(parts, string(r[:limit]))
			line = string(r[limit:])
			ln -= limit
		}
		cur.WriteString(line)
		n += ln
	}
	flush()
	return parts
}
