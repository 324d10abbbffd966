// Package telegram adapts the bot API into the progress handle and
// relay transport the pipeline works against.
package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	apperrors "relaybot/pkg/errors"
)

// StatusHandle edits one pinned status message in place. It is the
// job's single mutable progress surface.
type StatusHandle struct {
	bot       *tgbotapi.BotAPI
	chatID    int64
	messageID int
}

func NewStatusHandle(bot *tgbotapi.BotAPI, chatID int64, messageID int) *StatusHandle {
	return &StatusHandle{bot: bot, chatID: chatID, messageID: messageID}
}

func (h *StatusHandle) MessageID() int {
	return h.messageID
}

// Edit replaces the status message text. A platform refusal because
// the content is unchanged comes back as errors.ErrNotModified, which
// callers treat as success.
func (h *StatusHandle) Edit(text string) error {
	edit := tgbotapi.NewEditMessageText(h.chatID, h.messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown

	if _, err := h.bot.Send(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return apperrors.ErrNotModified
		}
		return err
	}
	return nil
}
