package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/rhythmlogic/gps/internal/cascade"
)

// NewModelsHandler returns a handler for /models, listing the cascade in the
// order it is tried.
func NewModelsHandler(deps HandlerDeps) bot.HandlerFunc {
	return modelsHandler{deps}.Handle
}

type modelsHandler struct {
	deps HandlerDeps
}

func (h modelsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "models")
	msg := sender(update)
	if msg == nil {
		return
	}

	secondaryOn := h.deps.Config.Cascade.Secondary.Configured()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Model cascade (up to %d attempts per primary model):", h.deps.Config.Cascade.MaxAttempts)
	for i, c := range h.deps.Studio.Candidates() {
		fmt.Fprintf(&sb, "\n%d. %s [%s]", i+1, c.ID, c.Provider)
		if c.Provider == cascade.Secondary && !secondaryOn {
			sb.WriteString(" (not configured)")
		}
	}
	reply(ctx, b, log, msg.Chat.ID, msg.ID, sb.String())
}

// NewHistoryHandler returns a handler for /history, showing recent runs of the chat.
func NewHistoryHandler(deps HandlerDeps) bot.HandlerFunc {
	return historyHandler{deps}.Handle
}

type historyHandler struct {
	deps HandlerDeps
}

func (h historyHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "history")
	msg := sender(update)
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID

	gens, err := h.deps.Studio.History(ctx, chatID, h.deps.Config.Database.HistoryLimit)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load history", "error", err, "chat_id", chatID)
		reply(ctx, b, log, chatID, msg.ID, h.deps.Studio.UserMessage(err))
		return
	}
	if len(gens) == 0 {
		reply(ctx, b, log, chatID, msg.ID, "No generations yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Recent generations:")
	for _, g := range gens {
		fmt.Fprintf(&sb, "\n%s %s %s", g.CreatedAt.UTC().Format("2006-01-02 15:04"), g.Mode, g.Outcome)
		if g.ServedBy != "" {
			fmt.Fprintf(&sb, " via %s", g.ServedBy)
		}
		fmt.Fprintf(&sb, " (%d attempts, %.1fs)", g.Attempts, float64(g.DurationMS)/1000)
	}
	reply(ctx, b, log, chatID, msg.ID, sb.String())
}
