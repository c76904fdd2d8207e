package command

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/lojasmm/papo/internal/chat"
)

// Image replies with a random picture from a local directory.
type Image struct {
	Dir  string
	pick func(n int) int
}

func NewImage(dir string) *Image {
	return &Image{Dir: dir, pick: rand.IntN}
}

func (c *Image) Name() string           { return "image" }
func (c *Image) Description() string    { return "Send a random image" }
func (c *Image) Match(text string) bool { return strings.TrimSpace(text) == "image" }

func (c *Image) Execute(_ context.Context, req *Request) error {
	info, err := os.Stat(c.Dir)
	if err != nil || !info.IsDir() {
		log.Printf("command: there is no image library at %s", c.Dir)
		if err := os.MkdirAll(c.Dir, 0o755); err != nil {
			return fmt.Errorf("creating image library: %w", err)
		}
		return req.ReplyText("The image library is empty.")
	}

	encoded, err := c.randomFileBase64()
	if err != nil {
		return err
	}
	if encoded == "" {
		return req.ReplyText("The image library is empty.")
	}
	return req.Out.Reply(chat.Multi(chat.ImagePart("base64://" + encoded)))
}

func (c *Image) randomFileBase64() (string, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return "", fmt.Errorf("reading image library: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(c.Dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return "", nil
	}

	data, err := os.ReadFile(files[c.pick(len(files))])
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
