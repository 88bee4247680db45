// Package handlers contains the Telegram command and message handlers,
// their registration and middleware.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// AllowedUsers rejects messages from users outside the configured allow list.
// The admin is always allowed.
func AllowedUsers(deps HandlerDeps) tgbot.Middleware {
	log := deps.Logger.With("middleware", "allowed_users")

	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if update.Message == nil || update.Message.From == nil {
				next(ctx, b, update)
				return
			}

			userID := update.Message.From.ID
			if deps.Config.IsUserAllowed(userID) {
				next(ctx, b, update)
				return
			}

			chatID := update.Message.Chat.ID
			log.WarnContext(ctx, "Unauthorized access attempt", "user_id", userID, "chat_id", chatID)
			if _, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
				ChatID: chatID,
				Text:   deps.Config.Messages.NotAuthorized,
			}); err != nil {
				log.ErrorContext(ctx, "Failed to send unauthorized message", "error", err, "chat_id", chatID)
			}
		}
	}
}
