package bot

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"repost_bot/internal/fingerprint"
)

func (b *Bot) handleCallback(_ context.Context, cb *tgbotapi.CallbackQuery) {
	answer := b.callbackAnswer(cb)

	callback := tgbotapi.NewCallback(cb.ID, answer)
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}

func (b *Bot) callbackAnswer(cb *tgbotapi.CallbackQuery) string {
	token, ok := ParseAllowCallback(cb.Data)
	if !ok || cb.Message == nil {
		return ""
	}

	b.log.Info("callback",
		"action", cmdAllow,
		"chat_id", cb.Message.Chat.ID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	if !b.cfg.IsUserAllowed(strconv.FormatInt(cb.From.ID, 10)) {
		return "Only operators can allow content."
	}

	fp, err := fingerprint.ParseToken(token)
	if err != nil {
		b.log.Warn("parse allow token", "token", token, "error", err)
		return "This button has expired."
	}

	added := b.engine.AllowFingerprint(fp)

	// Drop the button so the notice cannot be allowed twice.
	edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error("remove allow button", "chat_id", cb.Message.Chat.ID, "error", err)
	}

	if !added {
		return "Already allowed."
	}
	return "Allowed. It will not be flagged again."
}
