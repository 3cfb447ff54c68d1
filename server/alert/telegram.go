package alert

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier sends one alert photo with a caption. Implementations must be
// safe to call from a background goroutine.
type Notifier interface {
	SendPhoto(jpeg []byte, caption string) error
}

// TelegramNotifier pushes alert photos to a Telegram chat via the bot API.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to Telegram: %w", err)
	}
	return &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
	}, nil
}

func (t *TelegramNotifier) SendPhoto(jpeg []byte, caption string) error {
	photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FileBytes{
		Name:  "alert.jpg",
		Bytes: jpeg,
	})
	photo.Caption = caption
	if _, err := t.bot.Send(photo); err != nil {
		return fmt.Errorf("Failed to send Telegram photo: %w", err)
	}
	return nil
}
