package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	sendMessageTimeout = 10 * time.Second
	// Telegram rejects messages longer than 4096 characters.
	maxMessageRunes = 4000
)

// commandArgs returns the text after the command word, e.g. "Fractions" for
// "/new@gps_bot Fractions".
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	_, rest, _ := strings.Cut(text, " ")
	return strings.TrimSpace(rest)
}

// splitMessage breaks text into chunks Telegram accepts, preferring line breaks.
func splitMessage(text string, limit int) []string {
	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > cut/2 {
			cut = nl + 1
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" || len(chunks) == 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

func byteOffset(s string, runes int) int {
	i := 0
	for n := 0; n < runes && i < len(s); n++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}

// reply sends text to a chat, split over several messages when needed. When
// replyTo is positive the first chunk quotes that message.
func reply(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, replyTo int, text string) {
	for i, chunk := range splitMessage(text, maxMessageRunes) {
		params := &bot.SendMessageParams{ChatID: chatID, Text: chunk}
		if i == 0 && replyTo > 0 {
			params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo}
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
		_, err := b.SendMessage(sendCtx, params)
		cancel()
		if err != nil {
			log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID, "chunk", i)
			return
		}
	}
}

// sender returns the message of an update when it has a sender, else nil.
func sender(update *models.Update) *models.Message {
	if update == nil || update.Message == nil || update.Message.From == nil {
		return nil
	}
	return update.Message
}
