package handlers

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const resetTimeout = 10 * time.Second

// NewResetHandler returns a handler for the /reset command.
func NewResetHandler(deps HandlerDeps) bot.HandlerFunc {
	return resetHandler{deps}.Handle
}

type resetHandler struct {
	deps HandlerDeps
}

func (h resetHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "reset")
	msg := sender(update)
	if msg == nil {
		log.ErrorContext(ctx, "Reset handler called with nil Message or From", "update_id", update.ID)
		return
	}
	chatID := msg.Chat.ID

	timeoutCtx, cancel := context.WithTimeout(ctx, resetTimeout)
	defer cancel()

	if err := h.deps.Studio.Reset(timeoutCtx, chatID); err != nil {
		log.ErrorContext(ctx, "Failed to reset session", "error", err, "chat_id", chatID)
		reply(ctx, b, log, chatID, msg.ID, h.deps.Studio.UserMessage(err))
		return
	}

	reply(ctx, b, log, chatID, msg.ID, h.deps.Config.Messages.DraftReset)
}
