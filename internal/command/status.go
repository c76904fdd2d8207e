package command

import (
	"context"
	"log"
	"strings"

	"github.com/lojasmm/papo/internal/host"
)

// Status reports the host's uptime, load, memory and disk.
type Status struct {
	DiskPath string
	collect  func(string) (host.Status, error)
}

func NewStatus(diskPath string) *Status {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Status{DiskPath: diskPath, collect: host.Collect}
}

func (s *Status) Name() string           { return "status" }
func (s *Status) Description() string    { return "Show server status" }
func (s *Status) Match(text string) bool { return strings.TrimSpace(text) == "status" }

func (s *Status) Execute(_ context.Context, req *Request) error {
	log.Printf("command: user %s queried server status", req.User.ID)
	st, err := s.collect(s.DiskPath)
	if err != nil {
		return err
	}
	return req.ReplyText(st.String())
}
