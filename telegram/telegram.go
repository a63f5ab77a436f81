// Package telegram wraps the bot client used to push tax-event
// notifications (wash-sale risk, safe-harbor/withholding flags), restated
// from the teacher's InitBot/SendMessage without the hardcoded token.
package telegram

import (
	"log"
	"time"

	"gopkg.in/telebot.v3"
)

type Bot struct {
	bot *telebot.Bot
}

func NewBot(token string) (*Bot, error) {
	b, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Bot{bot: b}, nil
}

func (b *Bot) SendMessage(msg string, chatID int64) {
	recipient := telebot.ChatID(chatID)
	if _, err := b.bot.Send(recipient, msg); err != nil {
		log.Printf("failed to send message to chat id %d: %v", chatID, err)
	}
}
