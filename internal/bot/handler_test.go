package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lojasmm/papo/internal/ai"
	"github.com/lojasmm/papo/internal/chat"
	"github.com/lojasmm/papo/internal/command"
	"github.com/lojasmm/papo/internal/session"
	"github.com/lojasmm/papo/internal/store"
)

type recorder struct {
	mu      sync.Mutex
	replies []chat.Content
}

func (r *recorder) Reply(c chat.Content) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, c)
	return nil
}

// scriptedCompleter answers each call via respond and counts calls.
type scriptedCompleter struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	respond func(req ai.Request) *ai.Response
}

func (s *scriptedCompleter) Complete(_ context.Context, req ai.Request) (*ai.Response, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.respond(req), nil
}

func (s *scriptedCompleter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// echoLast replies with the text of the last user message.
func echoLast(req ai.Request) *ai.Response {
	last := req.Messages[len(req.Messages)-1]
	return &ai.Response{Candidates: []ai.Candidate{{Message: chat.AssistantMessage("echo: " + last.Content.PlainText())}}}
}

type pingTool struct{}

func (pingTool) Name() string                { return "ping" }
func (pingTool) Description() string         { return "pong" }
func (pingTool) Parameters() *ai.ParamSchema { return nil }
func (pingTool) Execute(context.Context, map[string]any) (map[string]any, error) {
	return map[string]any{"pong": true}, nil
}

// flakyStore wraps a real store and fails on demand.
type flakyStore struct {
	store.Store
	failLoad bool
	failSave bool
}

func (f *flakyStore) LoadUser(id string) (*chat.User, error) {
	if f.failLoad {
		return nil, errors.New("disk on fire")
	}
	return f.Store.LoadUser(id)
}

func (f *flakyStore) SaveUser(u *chat.User) error {
	if f.failSave {
		return errors.New("disk full")
	}
	return f.Store.SaveUser(u)
}

func newTestStore(t *testing.T) *store.BoltStore {
	t.Helper()
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "papo.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newHandler(s store.Store, c ai.Completer, maxIter int) *Handler {
	tools := ai.NewRegistry()
	tools.Register(pingTool{})
	agent := ai.NewAgent(c, tools, ai.AgentConfig{Model: "m", SystemPrompt: "persona", MaxIterations: maxIter})
	return NewHandler(s, command.NewRegistry(), agent, session.NewManager())
}

func addressed(user, text string) Event {
	return Event{UserID: user, Text: text, Addressed: true}
}

func TestHelpNeverCallsEndpoint(t *testing.T) {
	fc := &scriptedCompleter{respond: echoLast}
	h := newHandler(newTestStore(t), fc, 5)
	out := &recorder{}

	handled, err := h.HandleEvent(context.Background(), addressed("u1", "help"), out)
	if err != nil || !handled {
		t.Fatalf("help turn failed: handled=%v err=%v", handled, err)
	}
	if fc.count() != 0 {
		t.Fatalf("help contacted the completion endpoint %d times", fc.count())
	}
	if len(out.replies) != 1 {
		t.Fatalf("expected one reply, got %+v", out.replies)
	}
}

func TestClearPersistsEmptyHistory(t *testing.T) {
	s := newTestStore(t)
	fc := &scriptedCompleter{respond: echoLast}
	h := newHandler(s, fc, 5)

	h.HandleEvent(context.Background(), addressed("u1", "hello"), &recorder{})
	h.HandleEvent(context.Background(), addressed("u1", "clear"), &recorder{})

	u, err := s.LoadUser("u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if u.History.Len() != 0 {
		t.Fatalf("expected empty history after clear, got %+v", u.History)
	}
}

func TestSuccessfulTurnIsPersistedInOrder(t *testing.T) {
	s := newTestStore(t)
	fc := &scriptedCompleter{}
	fc.respond = func(req ai.Request) *ai.Response {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == chat.RoleUser {
			return &ai.Response{Candidates: []ai.Candidate{{Call: &ai.FunctionCall{Name: "ping", Arguments: "{}"}}}}
		}
		return &ai.Response{Candidates: []ai.Candidate{{Message: chat.AssistantMessage(`got it\nbye`)}}}
	}
	h := newHandler(s, fc, 5)
	out := &recorder{}

	if _, err := h.HandleEvent(context.Background(), Event{UserID: "u1", Text: " ping ", Images: []string{"https://img.example/a.png"}, Addressed: true}, out); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if len(out.replies) != 1 || out.replies[0].Text != "got it\nbye" {
		t.Fatalf("unexpected replies: %+v", out.replies)
	}

	u, err := s.LoadUser("u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := chat.History{
		chat.SystemMessage("persona"),
		chat.UserMessage("ping", "https://img.example/a.png"),
		chat.ToolMessage("ping", `{"pong":true}`),
		chat.AssistantMessage("got it\nbye"),
	}
	if diff := cmp.Diff(want, u.History); diff != "" {
		t.Fatalf("unexpected persisted history (-want +got):\n%s", diff)
	}
}

func TestFailedLoopStillSavesUserMessage(t *testing.T) {
	s := newTestStore(t)
	fc := &scriptedCompleter{respond: func(ai.Request) *ai.Response {
		return &ai.Response{Candidates: []ai.Candidate{{Call: &ai.FunctionCall{Name: "ping"}}}}
	}}
	h := newHandler(s, fc, 2)
	out := &recorder{}

	_, err := h.HandleEvent(context.Background(), addressed("u1", "loop forever"), out)
	if !errors.Is(err, ai.ErrToolLoopExhausted) {
		t.Fatalf("expected ErrToolLoopExhausted, got %v", err)
	}
	if len(out.replies) != 1 || out.replies[0].Text != failureReply {
		t.Fatalf("expected failure reply, got %+v", out.replies)
	}

	u, _ := s.LoadUser("u1")
	if u.History.Len() != 4 || u.History[1].Content.Text != "loop forever" {
		t.Fatalf("partial history not saved: %+v", u.History)
	}
}

func TestLoadFailureAbortsBeforeEndpoint(t *testing.T) {
	fc := &scriptedCompleter{respond: echoLast}
	h := newHandler(&flakyStore{Store: newTestStore(t), failLoad: true}, fc, 5)

	_, err := h.HandleEvent(context.Background(), addressed("u1", "hi"), &recorder{})
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if fc.count() != 0 {
		t.Fatalf("endpoint called despite load failure")
	}
}

func TestSaveFailureKeepsDeliveredReply(t *testing.T) {
	fc := &scriptedCompleter{respond: echoLast}
	h := newHandler(&flakyStore{Store: newTestStore(t), failSave: true}, fc, 5)
	out := &recorder{}

	_, err := h.HandleEvent(context.Background(), addressed("u1", "hi"), out)
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if len(out.replies) != 1 || out.replies[0].Text != "echo: hi" {
		t.Fatalf("reply should still be delivered: %+v", out.replies)
	}
}

func TestUnaddressedAndEmptyEventsAreIgnored(t *testing.T) {
	fc := &scriptedCompleter{respond: echoLast}
	h := newHandler(&flakyStore{Store: newTestStore(t), failLoad: true}, fc, 5)

	for _, ev := range []Event{
		{UserID: "u1", Text: "hello", Addressed: false},
		{UserID: "u1", Text: "   ", Addressed: true},
	} {
		handled, err := h.HandleEvent(context.Background(), ev, &recorder{})
		if handled || err != nil {
			t.Fatalf("event %+v should be ignored, got handled=%v err=%v", ev, handled, err)
		}
	}
}

func TestConsecutiveTurnsKeepOneSystemMessage(t *testing.T) {
	s := newTestStore(t)
	h := newHandler(s, &scriptedCompleter{respond: echoLast}, 5)
	for i := 0; i < 2; i++ {
		if _, err := h.HandleEvent(context.Background(), addressed("u1", fmt.Sprintf("turn %d", i)), &recorder{}); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}
	u, _ := s.LoadUser("u1")
	systems := 0
	for _, m := range u.History {
		if m.Role == chat.RoleSystem {
			systems++
		}
	}
	if systems != 1 || u.History.Len() != 5 {
		t.Fatalf("unexpected history: %+v", u.History)
	}
}

func TestConcurrentTurnsForSameUserDoNotLoseUpdates(t *testing.T) {
	s := newTestStore(t)
	fc := &scriptedCompleter{respond: echoLast, delay: 5 * time.Millisecond}
	h := newHandler(s, fc, 5)

	const turns = 8
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := h.HandleEvent(context.Background(), addressed("u1", fmt.Sprintf("msg %d", i)), &recorder{}); err != nil {
				t.Errorf("turn %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	u, _ := s.LoadUser("u1")
	if got, want := u.History.Len(), 1+2*turns; got != want {
		t.Fatalf("lost update: history has %d messages, want %d", got, want)
	}
	seen := map[string]bool{}
	for i := 1; i < u.History.Len(); i += 2 {
		q, a := u.History[i], u.History[i+1]
		if q.Role != chat.RoleUser || a.Content.Text != "echo: "+q.Content.Text {
			t.Fatalf("turns interleaved at %d: %+v / %+v", i, q, a)
		}
		seen[q.Content.Text] = true
	}
	if len(seen) != turns {
		t.Fatalf("expected %d distinct turns, got %d", turns, len(seen))
	}
}
