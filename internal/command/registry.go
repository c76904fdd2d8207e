package command

import (
	"context"
	"fmt"
	"log"

	"github.com/lojasmm/papo/internal/chat"
)

// Command is a local handler tried before the message reaches the model.
type Command interface {
	Name() string
	Description() string
	// Match reports whether text invokes this command.
	Match(text string) bool
	Execute(ctx context.Context, req *Request) error
}

// Request carries everything a command may touch for one inbound message.
type Request struct {
	Text     string
	Images   []string
	User     *chat.User
	Out      chat.Replier
	Registry *Registry
}

func (r *Request) ReplyText(text string) error {
	return r.Out.Reply(chat.Text(text))
}

// failureReply hides error details from the user; they only go to the log.
const failureReply = "Command %s failed. Please try again later."

// Registry keeps commands keyed by name and tries them in registration order.
type Registry struct {
	commands map[string]Command
	order    []string
}

// NewRegistry returns a registry holding the built-in help and clear commands.
func NewRegistry() *Registry {
	r := &Registry{commands: make(map[string]Command)}
	r.Register(Help{})
	r.Register(Clear{})
	return r
}

// Register adds cmd. Re-registering a name replaces the handler but keeps its position.
func (r *Registry) Register(cmd Command) {
	name := cmd.Name()
	if _, ok := r.commands[name]; !ok {
		r.order = append(r.order, name)
	}
	r.commands[name] = cmd
}

// Entry is a command's name and description, as listed by help.
type Entry struct {
	Name        string
	Description string
}

func (r *Registry) List() []Entry {
	entries := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		cmd := r.commands[name]
		entries = append(entries, Entry{Name: cmd.Name(), Description: cmd.Description()})
	}
	return entries
}

// Handle runs the first command matching text and reports whether one did.
// Command failures never escape: they become a generic reply and still count as handled.
func (r *Registry) Handle(ctx context.Context, text string, images []string, user *chat.User, out chat.Replier) bool {
	for _, name := range r.order {
		cmd := r.commands[name]
		if !cmd.Match(text) {
			continue
		}
		req := &Request{Text: text, Images: images, User: user, Out: out, Registry: r}
		if err := run(ctx, cmd, req); err != nil {
			log.Printf("command: %s failed for %s: %v", name, user.ID, err)
			if replyErr := req.ReplyText(fmt.Sprintf(failureReply, name)); replyErr != nil {
				log.Printf("command: failed to reply to %s: %v", user.ID, replyErr)
			}
		}
		return true
	}
	return false
}

func run(ctx context.Context, cmd Command, req *Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return cmd.Execute(ctx, req)
}
