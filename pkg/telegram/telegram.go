package telegram

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog"
)

// TelegramService sends and receives chat messages through the Bot API.
type TelegramService struct {
	bot    *telego.Bot
	logger zerolog.Logger
}

// NewTelegramService creates a bot client for token. The token format is
// validated locally; no request is made.
func NewTelegramService(token string, logger zerolog.Logger) (*TelegramService, error) {
	bot, err := telego.NewBot(token, telego.WithLogger(logAdapter{logger: logger}))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramService{bot: bot, logger: logger}, nil
}

// SendText sends text to chatID, rendered as legacy Markdown when markdown is set.
func (s *TelegramService) SendText(ctx context.Context, chatID int64, text string, markdown bool) error {
	params := tu.Message(tu.ID(chatID), text)
	if markdown {
		params = params.WithParseMode(telego.ModeMarkdown)
	}

	if _, err := s.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return nil
}

// Updates starts long polling. The channel is closed once ctx is cancelled.
func (s *TelegramService) Updates(ctx context.Context) (<-chan telego.Update, error) {
	updates, err := s.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start long polling: %w", err)
	}
	s.logger.Info().Msg("Telegram long polling started")
	return updates, nil
}

// logAdapter routes telego's internal logging into zerolog.
type logAdapter struct {
	logger zerolog.Logger
}

func (l logAdapter) Debugf(format string, args ...any) {
	l.logger.Debug().Str("component", "telego").Msgf(format, args...)
}

func (l logAdapter) Errorf(format string, args ...any) {
	l.logger.Error().Str("component", "telego").Msgf(format, args...)
}
