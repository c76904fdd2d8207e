package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/lojasmm/papo/internal/ai"
	"github.com/lojasmm/papo/internal/chat"
	"github.com/lojasmm/papo/internal/command"
	"github.com/lojasmm/papo/internal/session"
	"github.com/lojasmm/papo/internal/store"
)

// ErrStore marks a failed load or save of user state.
var ErrStore = errors.New("user store failure")

const failureReply = "Sorry, something went wrong while processing your message. Please try again later."

// Event is one inbound user message, already parsed by the host adapter.
type Event struct {
	UserID    string
	Text      string
	Images    []string
	Addressed bool // false for group chatter that does not mention the bot
}

// Runner answers the last message in a user's history.
type Runner interface {
	Run(ctx context.Context, user *chat.User) (ai.Result, error)
}

// Handler is the turn coordinator: load, command or model dispatch, save,
// all under the user's lock.
type Handler struct {
	store    store.Store
	commands *command.Registry
	agent    Runner
	sessions *session.Manager
}

func NewHandler(s store.Store, commands *command.Registry, agent Runner, sessions *session.Manager) *Handler {
	return &Handler{store: s, commands: commands, agent: agent, sessions: sessions}
}

// HandleEvent runs one turn. It reports whether the event was taken up at all;
// unaddressed or empty events are ignored without touching the store.
func (h *Handler) HandleEvent(ctx context.Context, ev Event, out chat.Replier) (bool, error) {
	if !ev.Addressed {
		return false, nil
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" && len(ev.Images) == 0 {
		return false, nil
	}

	err := h.sessions.WithLock(ev.UserID, func() error {
		return h.turn(ctx, ev.UserID, text, ev.Images, out)
	})
	return true, err
}

func (h *Handler) turn(ctx context.Context, userID, text string, images []string, out chat.Replier) error {
	user, err := h.store.LoadUser(userID)
	if err != nil {
		log.Printf("bot: failed to load %s: %v", userID, err)
		h.reply(out, userID, chat.Text(failureReply))
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	if h.commands.Handle(ctx, text, images, user, out) {
		return h.save(user)
	}

	user.History.Append(chat.UserMessage(text, images...))

	res, runErr := h.agent.Run(ctx, user)
	if runErr != nil {
		log.Printf("bot: agent error for %s (%s): %v", userID, res.Outcome, runErr)
		h.reply(out, userID, chat.Text(failureReply))
	} else {
		log.Printf("bot: reply %s after %d iteration(s)", userID, res.Iterations)
		h.reply(out, userID, res.Reply.Content)
	}

	// the reply has already gone out; a failed save cannot take it back
	if err := h.save(user); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func (h *Handler) save(user *chat.User) error {
	if err := h.store.SaveUser(user); err != nil {
		log.Printf("bot: failed to save %s: %v", user.ID, err)
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (h *Handler) reply(out chat.Replier, userID string, content chat.Content) {
	if err := out.Reply(content); err != nil {
		log.Printf("bot: failed to send reply to %s: %v", userID, err)
	}
}
