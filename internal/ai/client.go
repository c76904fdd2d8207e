package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/lojasmm/papo/internal/chat"
)

// Request is one call to the completion endpoint.
type Request struct {
	Model       string
	Messages    chat.History
	Tools       []ToolSchema
	Temperature *float32
	MaxTokens   *int
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	Name      string
	Arguments string
}

// Candidate is one alternative returned by the endpoint.
type Candidate struct {
	Message      chat.Message
	Call         *FunctionCall
	FinishReason string
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Response struct {
	ID         string
	Model      string
	Candidates []Candidate
	Usage      Usage
}

// Completer is the completion endpoint collaborator.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient replaces the transport, e.g. for proxies or tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// --- wire types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Functions   []ToolSchema  `json:"functions,omitempty"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role         string          `json:"role"`
	Content      json.RawMessage `json:"content"`
	Name         string          `json:"name,omitempty"`
	FunctionCall *functionCall   `json:"function_call,omitempty"`
	ToolCalls    []toolCall      `json:"tool_calls,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *Usage       `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

func (c *Client) Complete(ctx context.Context, r Request) (*Response, error) {
	reqBody := chatRequest{
		Model:       r.Model,
		Functions:   r.Tools,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
	for _, m := range r.Messages {
		wm, err := toWireMessage(m)
		if err != nil {
			return nil, err
		}
		reqBody.Messages = append(reqBody.Messages, wm)
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil || chatResp.Choices == nil {
		log.Printf("openai: failed to parse response body: %s", respBody)
		if err == nil {
			err = fmt.Errorf("missing choices")
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	out := &Response{ID: chatResp.ID, Model: chatResp.Model}
	if chatResp.Usage != nil {
		out.Usage = *chatResp.Usage
	}
	for _, ch := range chatResp.Choices {
		cand, err := fromWireMessage(ch.Message)
		if err != nil {
			log.Printf("openai: failed to parse response body: %s", respBody)
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		cand.FinishReason = ch.FinishReason
		out.Candidates = append(out.Candidates, cand)
	}
	return out, nil
}

func toWireMessage(m chat.Message) (chatMessage, error) {
	wm := chatMessage{Role: string(m.Role)}
	if m.Role == chat.RoleTool {
		wm.Role = "function"
		wm.Name = m.ToolName
	}

	var content any = m.Content.Text
	if m.Content.IsMulti() {
		parts := make([]contentPart, 0, len(m.Content.Parts))
		for _, p := range m.Content.Parts {
			switch p.Kind {
			case chat.PartImage:
				parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: imageDataURL(p.Value)}})
			default:
				parts = append(parts, contentPart{Type: "text", Text: p.Value})
			}
		}
		content = parts
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return chatMessage{}, fmt.Errorf("openai: marshal content: %w", err)
	}
	wm.Content = raw
	return wm, nil
}

// imageDataURL maps base64:// references to data URLs the endpoint accepts.
func imageDataURL(ref string) string {
	if data, ok := strings.CutPrefix(ref, "base64://"); ok {
		return "data:" + sniffImageType(data) + ";base64," + data
	}
	return ref
}

// sniffImageType detects the type from the first decoded bytes, defaulting to PNG.
func sniffImageType(encoded string) string {
	// 684 base64 chars decode to the 512 bytes DetectContentType reads
	head := encoded[:min(len(encoded), 684)]
	raw, err := base64.StdEncoding.DecodeString(head)
	if err != nil {
		return "image/png"
	}
	if ct := http.DetectContentType(raw); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/png"
}

func fromWireMessage(wm chatMessage) (Candidate, error) {
	var cand Candidate
	role := chat.Role(wm.Role)
	if role == "" {
		role = chat.RoleAssistant
	}

	text, err := wireText(wm.Content)
	if err != nil {
		return cand, err
	}
	cand.Message = chat.Message{Role: role, Content: chat.Text(text)}

	switch {
	case wm.FunctionCall != nil && wm.FunctionCall.Name != "":
		cand.Call = &FunctionCall{Name: wm.FunctionCall.Name, Arguments: wm.FunctionCall.Arguments}
	case len(wm.ToolCalls) > 0:
		// only the first call is honored; the history model carries one tool result per step
		tc := wm.ToolCalls[0]
		cand.Call = &FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}
	return cand, nil
}

// wireText accepts string, null, or an array of text parts.
func wireText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("content: %w", err)
	}
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String(), nil
}
