package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/rhythmlogic/gps/internal/cascade"
	"github.com/rhythmlogic/gps/internal/database"
	"github.com/rhythmlogic/gps/internal/studio"
	"github.com/rhythmlogic/gps/internal/text"
)

const (
	defaultVoiceMIME = "audio/ogg"
	defaultAudioMIME = "audio/mpeg"
	// Telegram clears the typing indicator after about five seconds.
	typingInterval = 4 * time.Second
)

// NewComposeHandler returns the default handler. Plain text and voice or
// audio messages create or refine the chat's draft.
func NewComposeHandler(deps HandlerDeps) bot.HandlerFunc {
	return composeHandler{deps}.Handle
}

type composeHandler struct {
	deps HandlerDeps
}

func (h composeHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "compose")

	msg := sender(update)
	if msg == nil {
		log.DebugContext(ctx, "Ignoring update without message or sender", "update_id", update.ID)
		return
	}
	chatID := msg.Chat.ID

	body := msg.Text
	if body == "" {
		body = msg.Caption
	}
	if strings.HasPrefix(strings.TrimSpace(body), "/") {
		log.DebugContext(ctx, "Unknown command", "chat_id", chatID, "text", body)
		reply(ctx, b, log, chatID, msg.ID, h.deps.Config.Messages.Help)
		return
	}

	in := studio.Input{
		ChatID: chatID,
		UserID: msg.From.ID,
		Source: database.SourceTelegram,
		Text:   body,
	}

	fileID, mimeType := voiceFile(msg)
	if fileID != "" {
		data, err := downloadFile(ctx, b, h.deps.httpClient(), fileID)
		if err != nil {
			log.ErrorContext(ctx, "Voice download failed", "error", err, "chat_id", chatID, "file_id", fileID)
			reply(ctx, b, log, chatID, msg.ID, h.deps.Config.Messages.GeneralError)
			return
		}
		in.Audio = &cascade.Audio{MIMEType: mimeType, Data: data}
	}

	if strings.TrimSpace(in.Text) == "" && in.Audio == nil {
		log.DebugContext(ctx, "Ignoring message without text or voice", "chat_id", chatID)
		return
	}

	compose(ctx, b, h.deps, log, msg, in)
}

// voiceFile returns the file ID and MIME type of a voice note or audio file.
func voiceFile(msg *models.Message) (fileID, mimeType string) {
	switch {
	case msg.Voice != nil:
		mimeType = msg.Voice.MimeType
		if mimeType == "" {
			mimeType = defaultVoiceMIME
		}
		return msg.Voice.FileID, mimeType
	case msg.Audio != nil:
		mimeType = msg.Audio.MimeType
		if mimeType == "" {
			mimeType = defaultAudioMIME
		}
		return msg.Audio.FileID, mimeType
	default:
		return "", ""
	}
}

// compose runs one drafting turn. A status message is posted on the first
// attempt and edited in place for every further attempt, then replaced by
// the served-by line once the draft is sent.
func compose(ctx context.Context, b *bot.Bot, deps HandlerDeps, log *slog.Logger, msg *models.Message, in studio.Input) {
	chatID := msg.Chat.ID

	stopTyping := keepTyping(ctx, b, log, chatID)
	defer stopTyping()

	status := &statusMessage{b: b, log: log, chatID: chatID, replyTo: msg.ID}
	progress := func(pctx context.Context, p cascade.Progress) {
		status.set(pctx, fmt.Sprintf(deps.Config.Messages.Progress, p.Candidate.ID, p.Attempt, p.MaxAttempts))
	}

	runCtx, cancel := context.WithTimeout(ctx, deps.Config.Cascade.RequestTimeout)
	defer cancel()

	run, err := deps.Studio.Compose(runCtx, in, progress)
	if err != nil {
		log.ErrorContext(ctx, "Compose failed", "error", err, "chat_id", chatID)
		status.finish(ctx, deps.Studio.UserMessage(err))
		return
	}

	reply(ctx, b, log, chatID, msg.ID, text.Plain(run.Result.Text))
	status.finish(ctx, fmt.Sprintf(deps.Config.Messages.ServedBy, run.Session.Revision, run.Result.ServedBy))
	log.InfoContext(ctx, "Draft sent", "chat_id", chatID, "request_id", run.RequestID, "revision", run.Session.Revision)
}

// statusMessage is a single chat message that is edited as a run progresses.
type statusMessage struct {
	b       *bot.Bot
	log     *slog.Logger
	chatID  int64
	replyTo int

	mu   sync.Mutex
	id   int
	text string
}

func (s *statusMessage) set(ctx context.Context, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if content == s.text {
		return
	}
	s.text = content

	if s.id == 0 {
		sent, err := s.b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:          s.chatID,
			Text:            content,
			ReplyParameters: &models.ReplyParameters{MessageID: s.replyTo},
		})
		if err != nil {
			s.log.WarnContext(ctx, "Failed to send status message", "error", err, "chat_id", s.chatID)
			return
		}
		s.id = sent.ID
		return
	}

	if _, err := s.b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    s.chatID,
		MessageID: s.id,
		Text:      content,
	}); err != nil {
		s.log.WarnContext(ctx, "Failed to edit status message", "error", err, "chat_id", s.chatID, "message_id", s.id)
	}
}

// finish shows the final text, posting it when no status message exists yet.
func (s *statusMessage) finish(ctx context.Context, content string) {
	s.set(context.WithoutCancel(ctx), content)
}

// keepTyping shows the typing indicator until the returned func is called.
func keepTyping(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64) func() {
	send := func(ctx context.Context) {
		if _, err := b.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping}); err != nil {
			log.WarnContext(ctx, "Failed to send typing action", "error", err, "chat_id", chatID)
		}
	}
	send(ctx)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				send(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
