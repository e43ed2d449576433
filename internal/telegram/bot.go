package telegram

import (
	"context"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"anima-bot/internal/engine"
)

type Bot struct {
	api         *tgbotapi.BotAPI
	s           sender
	engine      *engine.Engine
	adminUserID int64
}

func New(botToken string, eng *engine.Engine, adminUserID int64) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	return &Bot{
		api:         api,
		s:           botAPISender{api: api},
		engine:      eng,
		adminUserID: adminUserID,
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.handleIncomingMessage(ctx, int64(update.UpdateID), update.Message)
			}
		}
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

// SendToAdmin delivers text to the configured admin chat (daily reports).
func (b *Bot) SendToAdmin(text string) {
	if b.adminUserID == 0 {
		log.Println("admin user not configured, report dropped")
		return
	}
	b.sendMessage(b.adminUserID, text)
}
