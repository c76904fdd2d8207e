package tools

import (
	"context"
	"fmt"

	"github.com/lojasmm/papo/internal/ai"
	"github.com/lojasmm/papo/internal/host"
)

type ServerStatus struct {
	diskPath string
	collect  func(string) (host.Status, error)
}

func NewServerStatus(diskPath string) *ServerStatus {
	if diskPath == "" {
		diskPath = "/"
	}
	return &ServerStatus{diskPath: diskPath, collect: host.Collect}
}

func (t *ServerStatus) Name() string { return "get_server_status" }
func (t *ServerStatus) Description() string {
	return "Returns uptime, load averages, memory, disk usage and process count of the server running the bot"
}
func (t *ServerStatus) Parameters() *ai.ParamSchema { return nil }

func (t *ServerStatus) Execute(_ context.Context, _ map[string]any) (map[string]any, error) {
	st, err := t.collect(t.diskPath)
	if err != nil {
		return nil, fmt.Errorf("reading server status: %w", err)
	}
	return st.Map(), nil
}

var _ ai.Tool = (*ServerStatus)(nil)
