package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	PartText  = "text"
	PartImage = "image"
)

// Part is one segment of a structured message. Image holds either a data URL
// or a plain resource URL.
type Part struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Content is either plain text or an ordered list of parts.
type Content struct {
	Text  string
	Parts []Part
}

func TextContent(s string) Content { return Content{Text: s} }

// IsStructured reports whether the content carries parts instead of text.
func (c Content) IsStructured() bool { return c.Parts != nil }

// PlainText flattens the content, dropping image parts.
func (c Content) PlainText() string {
	if !c.IsStructured() {
		return c.Text
	}
	var b strings.Builder
	for _, p := range c.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsStructured() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errors.New("content is required")
	}
	if data[0] == '"' {
		c.Parts = nil
		return json.Unmarshal(data, &c.Text)
	}
	var parts []Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or a list of parts: %w", err)
	}
	for i, p := range parts {
		switch p.Type {
		case PartText:
		case PartImage:
			if strings.TrimSpace(p.Image) == "" {
				return fmt.Errorf("part %d: image is required", i)
			}
		default:
			return fmt.Errorf("part %d: unknown type %q", i, p.Type)
		}
	}
	if parts == nil {
		parts = []Part{}
	}
	c.Text = ""
	c.Parts = parts
	return nil
}

type Message struct {
	Role    string  `json:"role" binding:"required,oneof=user assistant system"`
	Content Content `json:"content"`
}

// UnmarshalJSON treats a missing content key like an explicit null.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Content == nil {
		return errors.New("content is required")
	}
	var c Content
	if err := c.UnmarshalJSON(raw.Content); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = c
	return nil
}

type Request struct {
	Model    string
	System   string
	Messages []Message
}

// Stream yields text chunks in provider order. Recv returns io.EOF once the
// provider has finished.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider opens one streaming completion per call.
type Provider interface {
	StreamChat(ctx context.Context, req Request) (Stream, error)
}

var ErrProviderDisabled = errors.New("llm provider is not configured")
