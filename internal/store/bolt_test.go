package store

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lojasmm/papo/internal/chat"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "nested", "papo.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadUnknownUserIsEmpty(t *testing.T) {
	s := openTestStore(t)
	u, err := s.LoadUser("nobody")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if u.ID != "nobody" || u.History == nil || u.History.Len() != 0 {
		t.Fatalf("expected empty user, got %+v", u)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	u := chat.NewUser("5511999990000")
	u.History.Append(
		chat.SystemMessage("persona"),
		chat.UserMessage("what time is it?", "https://img.example/clock.png"),
		chat.ToolMessage("get_current_time", `{"time":"2026-01-01T00:00:00Z"}`),
		chat.AssistantMessage("midnight\nhappy new year"),
	)
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadUser(u.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(u.History, got.History); diff != "" {
		t.Fatalf("history changed across save/load (-want +got):\n%s", diff)
	}
}

func TestSaveReplacesWholeHistory(t *testing.T) {
	s := openTestStore(t)
	u := chat.NewUser("u1")
	u.History.Append(chat.UserMessage("a"), chat.AssistantMessage("b"))
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("save: %v", err)
	}

	u.History.Clear()
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("save cleared: %v", err)
	}
	got, err := s.LoadUser("u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.History.Len() != 0 {
		t.Fatalf("expected cleared history, got %+v", got.History)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	s := openTestStore(t)
	a := chat.NewUser("a")
	a.History.Append(chat.UserMessage("from a"))
	b := chat.NewUser("b")
	b.History.Append(chat.UserMessage("from b"))
	s.SaveUser(a)
	s.SaveUser(b)

	got, _ := s.LoadUser("a")
	if got.History.Len() != 1 || got.History[0].Content.Text != "from a" {
		t.Fatalf("unexpected history for a: %+v", got.History)
	}
}
