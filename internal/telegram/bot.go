// Package telegram runs the bot entry point: /start with referral deep links
// and the button that opens the generation mini-app.
package telegram

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aieffects/videobot/internal/config"
	"github.com/aieffects/videobot/internal/models"
	"github.com/aieffects/videobot/internal/service"
)

type Bot struct {
	cfg   config.Config
	api   *tgbotapi.BotAPI
	log   *slog.Logger
	users *service.UserService
}

func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, users *service.UserService) *Bot {
	return &Bot{
		cfg:   cfg,
		api:   api,
		log:   log,
		users: users,
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			} else if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "help":
		b.sendHelp(msg.Chat.ID)
	default:
		b.sendText(msg.Chat.ID, "Откройте мини-приложение, чтобы создать видео: /start")
	}
}

// handleStart registers the user and attributes a referral tag carried in the
// deep link (t.me/bot?start=<tag>).
func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	refTag := strings.TrimSpace(msg.CommandArguments())

	profile := &models.User{
		ID:           msg.From.ID,
		Username:     msg.From.UserName,
		FirstName:    msg.From.FirstName,
		LastName:     msg.From.LastName,
		LanguageCode: msg.From.LanguageCode,
		IsPremium:    msg.From.IsPremium,
	}
	user, err := b.users.Ensure(ctx, profile, refTag)
	if err != nil {
		b.log.Error("ensure user failed", "user_id", msg.From.ID, "err", err)
		b.sendText(msg.Chat.ID, "Что-то пошло не так, попробуйте ещё раз.")
		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, "🎬 Создавайте видео из текста и фото прямо в Telegram!\nОткройте приложение кнопкой ниже.")
	reply.ReplyMarkup = b.mainKeyboard()
	if _, err := b.api.Send(reply); err != nil {
		b.log.Warn("send start reply failed", "user_id", user.ID, "err", err)
	}
}

func (b *Bot) handleCallback(_ context.Context, cb *tgbotapi.CallbackQuery) {
	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Request(callback); err != nil {
		b.log.Warn("answer callback failed", "err", err)
	}

	switch cb.Data {
	case "help":
		if cb.Message != nil {
			b.sendHelp(cb.Message.Chat.ID)
		}
	}
}

func (b *Bot) mainKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	if b.cfg.WebAppURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.InlineKeyboardButton{
				Text:   "🎬 Открыть приложение",
				WebApp: &tgbotapi.WebAppInfo{URL: b.cfg.WebAppURL},
			},
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("ℹ️ Как это работает", "help"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) sendHelp(chatID int64) {
	b.sendText(chatID, "1. Откройте приложение и опишите сцену.\n2. Добавьте фото или видео-референс.\n3. Готовый ролик придёт в этот чат.\n\nКредиты списываются при запуске и возвращаются, если генерация не удалась.")
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("send message failed", "chat_id", chatID, "err", err)
	}
}
