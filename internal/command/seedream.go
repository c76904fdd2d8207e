package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/lojasmm/papo/internal/chat"
)

const (
	seedreamEndpoint = "https://ark.cn-beijing.volces.com/api/v3/images/generations"
	seedreamModel    = "doubao-seedream-4-0-250828"
	seedreamPrefix   = "seedream "
)

// Seedream generates images from a prompt and any attached reference images.
type Seedream struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

func NewSeedream(apiKey string) *Seedream {
	return &Seedream{
		endpoint: seedreamEndpoint,
		apiKey:   apiKey,
		model:    seedreamModel,
		http:     &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Seedream) Name() string        { return "seedream" }
func (c *Seedream) Description() string { return "Generate images with the seedream model: seedream <prompt>" }
func (c *Seedream) Match(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text)+" ", seedreamPrefix)
}

type seedreamRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Image  []string `json:"image,omitempty"`
}

type seedreamResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

func (c *Seedream) Execute(ctx context.Context, req *Request) error {
	prompt := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(req.Text), "seedream"))
	if prompt == "" {
		return req.ReplyText("Usage: seedream <prompt>")
	}
	log.Printf("command: user %s generating image", req.User.ID)

	urls, err := c.generate(ctx, prompt, req.Images)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return req.ReplyText("No image was generated.")
	}
	parts := make([]chat.Part, len(urls))
	for i, u := range urls {
		parts[i] = chat.ImagePart(u)
	}
	return req.Out.Reply(chat.Multi(parts...))
}

func (c *Seedream) generate(ctx context.Context, prompt string, images []string) ([]string, error) {
	payload, err := json.Marshal(seedreamRequest{Model: c.model, Prompt: prompt, Image: images})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("seedream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("seedream response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("seedream status %d: %s", resp.StatusCode, body)
	}

	var result seedreamResponse
	if err := json.Unmarshal(body, &result); err != nil {
		log.Printf("command: failed to parse seedream response: %s", body)
		return nil, fmt.Errorf("decoding seedream response: %w", err)
	}
	urls := make([]string, 0, len(result.Data))
	for _, d := range result.Data {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	return urls, nil
}
