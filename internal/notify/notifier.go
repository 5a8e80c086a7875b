// Package notify delivers user-facing Telegram messages for task, payment
// and balance events.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Notifier struct {
	bot *tgbotapi.BotAPI
	log *slog.Logger
}

func New(bot *tgbotapi.BotAPI, log *slog.Logger) *Notifier {
	return &Notifier{bot: bot, log: log}
}

func (n *Notifier) send(userID int64, text string) {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warn("send message failed", "user_id", userID, "error", err)
	}
}

func (n *Notifier) NotifyQueued(_ context.Context, userID int64, position int) {
	n.send(userID, fmt.Sprintf("⏳ Задача принята! Позиция в очереди: %d\nГотовое видео придёт сюда.", position))
}

// NotifyGenerationComplete sends the result as a video; Telegram rejects some
// encodings as video, so a failed send falls back to a document.
func (n *Notifier) NotifyGenerationComplete(_ context.Context, userID int64, videoURL string) {
	if videoURL == "" {
		n.send(userID, "✅ Генерация завершена, но провайдер не вернул ссылку на видео. Напишите в поддержку.")
		return
	}
	video := tgbotapi.NewVideo(userID, tgbotapi.FileURL(videoURL))
	video.Caption = "✅ Ваше видео готово!"
	if _, err := n.bot.Send(video); err != nil {
		n.log.Warn("send video failed, retrying as document", "user_id", userID, "error", err)
		doc := tgbotapi.NewDocument(userID, tgbotapi.FileURL(videoURL))
		doc.Caption = "✅ Ваше видео готово!"
		if _, err := n.bot.Send(doc); err != nil {
			n.log.Error("send document failed", "user_id", userID, "error", err)
			n.send(userID, "✅ Ваше видео готово!\n"+videoURL)
		}
	}
}

func (n *Notifier) NotifyGenerationFailed(_ context.Context, userID int64, refunded int) {
	n.send(userID, fmt.Sprintf("❌ Генерация не удалась. Кредиты возвращены: %d. Попробуйте ещё раз.", refunded))
}

func (n *Notifier) NotifyPaymentSucceeded(_ context.Context, userID int64, credits int) {
	n.send(userID, fmt.Sprintf("💳 Оплата прошла! Начислено кредитов: %d.", credits))
}

func (n *Notifier) NotifyExpiryWarning(_ context.Context, userID int64, credits int, expireAt time.Time) {
	n.send(userID, fmt.Sprintf("⚠️ Ваши %d кредитов сгорят %s. Успейте их потратить!", credits, expireAt.Format("02.01.2006")))
}

func (n *Notifier) NotifyCreditsExpired(_ context.Context, userID int64, credits int) {
	n.send(userID, fmt.Sprintf("⌛ Срок действия кредитов истёк, списано: %d.", credits))
}
