package handlers

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/rhythmlogic/gps/internal/database"
	"github.com/rhythmlogic/gps/internal/studio"
	"github.com/rhythmlogic/gps/internal/text"
)

// NewNewDraftHandler returns a handler for /new <subject>. It starts a fresh
// session, keeping context parameters, and drafts the subject right away.
func NewNewDraftHandler(deps HandlerDeps) bot.HandlerFunc {
	return newDraftHandler{deps}.Handle
}

type newDraftHandler struct {
	deps HandlerDeps
}

func (h newDraftHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "new")
	msg := sender(update)
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID

	subject := commandArgs(msg.Text)
	if subject == "" {
		reply(ctx, b, log, chatID, msg.ID, h.deps.Config.Messages.ProvideSubject)
		return
	}

	if _, err := h.deps.Studio.Start(ctx, chatID, msg.From.ID, subject); err != nil {
		log.ErrorContext(ctx, "Failed to start session", "error", err, "chat_id", chatID)
		reply(ctx, b, log, chatID, msg.ID, h.deps.Studio.UserMessage(err))
		return
	}

	compose(ctx, b, h.deps, log, msg, studio.Input{
		ChatID: chatID,
		UserID: msg.From.ID,
		Source: database.SourceTelegram,
	})
}

// NewSetHandler returns a handler for /set key=value. A bare /set lists the
// current parameters; an empty value removes the key.
func NewSetHandler(deps HandlerDeps) bot.HandlerFunc {
	return setHandler{deps}.Handle
}

type setHandler struct {
	deps HandlerDeps
}

func (h setHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "set")
	msg := sender(update)
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID

	args := commandArgs(msg.Text)
	if args == "" {
		session, err := h.deps.Studio.Current(ctx, chatID)
		if err != nil || len(session.Params) == 0 {
			reply(ctx, b, log, chatID, msg.ID, h.deps.Config.Messages.ContextUsage)
			return
		}
		reply(ctx, b, log, chatID, msg.ID, formatParams(session.Params))
		return
	}

	key, value, ok := strings.Cut(args, "=")
	if !ok {
		reply(ctx, b, log, chatID, msg.ID, h.deps.Config.Messages.ContextUsage)
		return
	}

	session, err := h.deps.Studio.SetContext(ctx, chatID, msg.From.ID, key, value)
	if err != nil {
		log.WarnContext(ctx, "Rejected context parameter", "error", err, "chat_id", chatID)
		reply(ctx, b, log, chatID, msg.ID, h.deps.Studio.UserMessage(err))
		return
	}

	log.InfoContext(ctx, "Context parameter updated", "chat_id", chatID, "key", strings.ToLower(strings.TrimSpace(key)))
	reply(ctx, b, log, chatID, msg.ID, formatParams(session.Params))
}

func formatParams(params database.Params) string {
	if len(params) == 0 {
		return "No context parameters set."
	}
	var sb strings.Builder
	sb.WriteString("Context:")
	for _, k := range slices.Sorted(maps.Keys(params)) {
		fmt.Fprintf(&sb, "\n%s = %s", k, params[k])
	}
	return sb.String()
}

// NewDraftHandler returns a handler for /draft, which re-sends the current draft.
func NewDraftHandler(deps HandlerDeps) bot.HandlerFunc {
	return draftHandler{deps}.Handle
}

type draftHandler struct {
	deps HandlerDeps
}

func (h draftHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "draft")
	msg := sender(update)
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID

	session, err := h.deps.Studio.Current(ctx, chatID)
	if err == nil && !session.HasDraft() {
		err = studio.ErrNoSession
	}
	if err != nil {
		if !errors.Is(err, studio.ErrNoSession) {
			log.ErrorContext(ctx, "Failed to load draft", "error", err, "chat_id", chatID)
		}
		reply(ctx, b, log, chatID, msg.ID, h.deps.Studio.UserMessage(err))
		return
	}

	reply(ctx, b, log, chatID, msg.ID, text.Plain(session.Draft))
	reply(ctx, b, log, chatID, 0, fmt.Sprintf(h.deps.Config.Messages.ServedBy, session.Revision, session.ServedBy))
}
