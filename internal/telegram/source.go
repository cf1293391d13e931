package telegram

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"signalflow/models"
)

// Source turns Telegram channel posts into pipeline messages. It implements
// models.MessageSource.
type Source struct {
	bot    *tgbotapi.BotAPI
	logger zerolog.Logger
}

// NewSource creates a Telegram message source
func NewSource(token string) (*Source, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("component", "telegram_source").Logger()
	logger.Info().Str("username", bot.Self.UserName).Msg("Authorized on Telegram")

	return &Source{bot: bot, logger: logger}, nil
}

// Messages starts long polling and returns the stream of channel messages.
// The stream closes when ctx is cancelled.
func (s *Source) Messages(ctx context.Context) (<-chan models.Message, error) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := s.bot.GetUpdatesChan(updateConfig)
	out := make(chan models.Message, 64)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				s.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				post := update.ChannelPost
				if post == nil {
					post = update.Message
				}
				if post == nil || post.Text == "" {
					continue
				}
				msg := models.Message{
					ChannelID: strconv.FormatInt(post.Chat.ID, 10),
					MessageID: strconv.Itoa(post.MessageID),
					Text:      post.Text,
					Timestamp: int64(post.Date) * 1000,
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					s.bot.StopReceivingUpdates()
					return
				}
			}
		}
	}()

	return out, nil
}
