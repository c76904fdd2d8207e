package command

import (
	"context"
	"log"
	"strings"
)

// Help lists every registered command.
type Help struct{}

func (Help) Name() string           { return "help" }
func (Help) Description() string    { return "Show all available commands" }
func (Help) Match(text string) bool { return strings.TrimSpace(text) == "help" }

func (Help) Execute(_ context.Context, req *Request) error {
	var sb strings.Builder
	sb.WriteString("Available commands:\n")
	for _, e := range req.Registry.List() {
		sb.WriteString(e.Name)
		sb.WriteString(": ")
		sb.WriteString(e.Description)
		sb.WriteString("\n")
	}
	return req.ReplyText(sb.String())
}

// Clear empties the user's conversation history.
type Clear struct{}

func (Clear) Name() string           { return "clear" }
func (Clear) Description() string    { return "Clear your conversation history (cannot be undone!)" }
func (Clear) Match(text string) bool { return strings.TrimSpace(text) == "clear" }

func (Clear) Execute(_ context.Context, req *Request) error {
	req.User.History.Clear()
	log.Printf("command: user %s cleared history", req.User.ID)
	return req.ReplyText("History cleared")
}
