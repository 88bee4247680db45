package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Middleware logs every Telegram update before and after its handler runs.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			startTime := time.Now()

			entry := log.With("update_id", update.ID)

			if msg := update.Message; msg != nil {
				entry = entry.With(
					"update_type", "message",
					"message_id", msg.ID,
					"chat_id", msg.Chat.ID,
				)
				if msg.From != nil {
					entry = entry.With("user_id", msg.From.ID)
				}
				switch {
				case msg.Voice != nil:
					entry = entry.With("voice_seconds", msg.Voice.Duration, "mime_type", msg.Voice.MimeType)
				case msg.Audio != nil:
					entry = entry.With("audio_seconds", msg.Audio.Duration, "mime_type", msg.Audio.MimeType)
				case msg.Text != "":
					entry = entry.With("text_preview", truncate(msg.Text, 50))
				}
			} else {
				entry = entry.With("update_type", "other")
			}

			entry.InfoContext(ctx, "Processing update")

			next(ctx, b, update)

			entry.InfoContext(ctx, "Finished processing update", "duration", time.Since(startTime))
		}
	}
}
