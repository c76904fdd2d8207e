package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// Part is one element of a multi-part message: either text or an image reference.
type Part struct {
	Kind  PartKind `json:"type"`
	Value string   `json:"value"`
}

func TextPart(s string) Part  { return Part{Kind: PartText, Value: s} }
func ImagePart(s string) Part { return Part{Kind: PartImage, Value: s} }

// Content is either plain text or an ordered list of parts.
// A nil Parts slice means plain text.
type Content struct {
	Text  string
	Parts []Part
}

func Text(s string) Content { return Content{Text: s} }

func Multi(parts ...Part) Content {
	if parts == nil {
		parts = []Part{}
	}
	return Content{Parts: parts}
}

func (c Content) IsMulti() bool { return c.Parts != nil }

// PlainText returns the text of a plain message, or the text parts of a
// multi-part message joined by newlines. Images are skipped.
func (c Content) PlainText() string {
	if !c.IsMulti() {
		return c.Text
	}
	var texts []string
	for _, p := range c.Parts {
		if p.Kind == PartText {
			texts = append(texts, p.Value)
		}
	}
	return strings.Join(texts, "\n")
}

// MarshalJSON encodes plain text as a JSON string and multi-part content as an array.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsMulti() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Text(s)
		return nil
	case data[0] == '[':
		var parts []Part
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = Multi(parts...)
		return nil
	default:
		return fmt.Errorf("chat: content must be a string or an array, got %q", data)
	}
}

type Message struct {
	Role     Role    `json:"role"`
	Content  Content `json:"content"`
	ToolName string  `json:"name,omitempty"`
}

func SystemMessage(text string) Message    { return Message{Role: RoleSystem, Content: Text(text)} }
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Content: Text(text)} }

// UserMessage builds a user message; image references turn it into multi-part content.
func UserMessage(text string, images ...string) Message {
	if len(images) == 0 {
		return Message{Role: RoleUser, Content: Text(text)}
	}
	parts := make([]Part, 0, len(images)+1)
	if text != "" {
		parts = append(parts, TextPart(text))
	}
	for _, img := range images {
		parts = append(parts, ImagePart(img))
	}
	return Message{Role: RoleUser, Content: Multi(parts...)}
}

func ToolMessage(toolName, result string) Message {
	return Message{Role: RoleTool, Content: Text(result), ToolName: toolName}
}

// Replier is the output sink for one inbound event.
type Replier interface {
	Reply(content Content) error
}
