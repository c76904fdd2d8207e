package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lojasmm/papo/internal/ai"
	"github.com/lojasmm/papo/internal/host"
)

func TestBuildRegistry(t *testing.T) {
	r := BuildRegistry("/")
	for _, name := range []string{"get_server_status", "get_current_time"} {
		if _, ok := r.Get(name); !ok {
			t.Fatalf("tool %s not registered", name)
		}
	}
}

func TestCurrentTime(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tool := &CurrentTime{now: func() time.Time { return fixed }}

	out, err := tool.Execute(context.Background(), map[string]any{"unix": true})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if out["time"] != "2026-03-01T12:00:00Z" || out["weekday"] != "Sunday" || out["unix"] != fixed.Unix() {
		t.Fatalf("unexpected result: %v", out)
	}

	if _, err := tool.Execute(context.Background(), map[string]any{"timezone": "Not/AZone"}); err == nil {
		t.Fatalf("expected error for bad time zone")
	}

	out, err = tool.Execute(context.Background(), map[string]any{"timezone": 42})
	if err != nil || out["timezone"] != "UTC" {
		t.Fatalf("mistyped timezone should fall back to the default: %v, %v", out, err)
	}
}

func TestCurrentTimeFailureBecomesPayload(t *testing.T) {
	r := ai.NewRegistry()
	r.Register(NewCurrentTime())
	out, err := r.Execute(context.Background(), "get_current_time", map[string]any{"timezone": "Not/AZone"})
	if err != nil {
		t.Fatalf("tool failure should not be an error: %v", err)
	}
	if out["error_type"] != string(ai.ErrNotFound) {
		t.Fatalf("unexpected payload: %v", out)
	}
}

func TestServerStatus(t *testing.T) {
	tool := &ServerStatus{diskPath: "/data", collect: func(path string) (host.Status, error) {
		if path != "/data" {
			t.Fatalf("unexpected disk path %q", path)
		}
		return host.Status{Processes: 7}, nil
	}}
	out, err := tool.Execute(context.Background(), nil)
	if err != nil || out["processes"] != 7 {
		t.Fatalf("unexpected result %v, %v", out, err)
	}

	tool.collect = func(string) (host.Status, error) { return host.Status{}, errors.New("statfs failed") }
	if _, err := tool.Execute(context.Background(), nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{"n": float64(3), "s": "x", "b": true}
	if stringArg(args, "s") != "x" || stringArg(args, "n") != "" {
		t.Fatalf("stringArg mismatch")
	}
	if !boolArg(args, "b") || boolArg(args, "s") {
		t.Fatalf("boolArg mismatch")
	}
}
