package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler describes one command handler and its middleware.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
	// Description is shown in the Telegram command menu.
	Description string
}

func command(pattern, description string, h tgbot.HandlerFunc) RegisteredHandler {
	return RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     pattern,
		Handler:     h,
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Description: description,
	}
}

// RegisterAllCommands returns every bot command keyed by its slash form.
// Text and voice messages that are not commands go to NewComposeHandler.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	return map[string]RegisteredHandler{
		"/start":   command("start", "Show the welcome message", NewStartHandler(deps)),
		"/help":    command("help", "List commands", NewHelpHandler(deps)),
		"/new":     command("new", "Start a new draft: /new <subject>", NewNewDraftHandler(deps)),
		"/set":     command("set", "Set a context parameter: /set key=value", NewSetHandler(deps)),
		"/draft":   command("draft", "Show the current draft", NewDraftHandler(deps)),
		"/reset":   command("reset", "Discard the current draft", NewResetHandler(deps)),
		"/models":  command("models", "Show the model cascade", NewModelsHandler(deps)),
		"/history": command("history", "Show recent generations", NewHistoryHandler(deps)),
	}
}
