package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentDecodesText(t *testing.T) {
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`"hello"`), &c))
	assert.False(t, c.IsStructured())
	assert.Equal(t, "hello", c.Text)

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `"hello"`, string(out))
}

func TestContentDecodesParts(t *testing.T) {
	in := `[{"type":"text","text":"what is "},{"type":"image","image":"data:image/png;base64,AAAA"},{"type":"text","text":"this?"}]`
	var c Content
	require.NoError(t, json.Unmarshal([]byte(in), &c))
	require.True(t, c.IsStructured())
	require.Len(t, c.Parts, 3)
	assert.Equal(t, Part{Type: PartImage, Image: "data:image/png;base64,AAAA"}, c.Parts[1])
	assert.Equal(t, "what is this?", c.PlainText())

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestContentEmptyListStaysStructured(t *testing.T) {
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`[]`), &c))
	assert.True(t, c.IsStructured())
	assert.Empty(t, c.PlainText())
}

func TestContentRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"null":          `null`,
		"number":        `42`,
		"object":        `{"type":"text"}`,
		"unknown part":  `[{"type":"audio","text":"x"}]`,
		"image no data": `[{"type":"image"}]`,
		"image blank":   `[{"type":"image","image":"  "}]`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			var c Content
			assert.Error(t, json.Unmarshal([]byte(in), &c))
		})
	}
}

func TestMessageRequiresContent(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":"hi"}`), &m))
	assert.Equal(t, Message{Role: "user", Content: TextContent("hi")}, m)

	for _, in := range []string{
		`{"role":"user"}`,
		`{"role":"user","content":null}`,
	} {
		var m Message
		err := json.Unmarshal([]byte(in), &m)
		require.Error(t, err, in)
		assert.Contains(t, err.Error(), "content is required")
	}

	var list []Message
	assert.Error(t, json.Unmarshal([]byte(`[{"role":"user","content":"a"},{"role":"assistant"}]`), &list))
}

func TestToOpenAIMessage(t *testing.T) {
	plain := toOpenAIMessage(Message{Role: "assistant", Content: TextContent("sure")})
	assert.Equal(t, openai.ChatMessageRoleAssistant, plain.Role)
	assert.Equal(t, "sure", plain.Content)
	assert.Nil(t, plain.MultiContent)

	multi := toOpenAIMessage(Message{Role: "user", Content: Content{Parts: []Part{
		{Type: PartText, Text: "look"},
		{Type: PartImage, Image: "https://example.com/cat.png"},
	}}})
	assert.Empty(t, multi.Content)
	require.Len(t, multi.MultiContent, 2)
	assert.Equal(t, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: "look"}, multi.MultiContent[0])
	assert.Equal(t, openai.ChatMessagePartTypeImageURL, multi.MultiContent[1].Type)
	require.NotNil(t, multi.MultiContent[1].ImageURL)
	assert.Equal(t, "https://example.com/cat.png", multi.MultiContent[1].ImageURL.URL)
	assert.Equal(t, openai.ImageURLDetailAuto, multi.MultiContent[1].ImageURL.Detail)

	odd := toOpenAIMessage(Message{Role: "tool", Content: TextContent("x")})
	assert.Equal(t, openai.ChatMessageRoleUser, odd.Role)
}

func TestLocalProviderKeepsRunesWhole(t *testing.T) {
	req := Request{Model: "local", Messages: []Message{
		{Role: "user", Content: TextContent(strings.Repeat("ñ", 100))},
	}}

	answer := LocalAnswer(req)
	require.True(t, utf8.ValidString(answer))
	assert.Contains(t, answer, "Summary for: "+strings.Repeat("ñ", 100)+"\n")

	long := LocalAnswer(Request{Messages: []Message{{Role: "user", Content: TextContent(strings.Repeat("ñ", 200))}}})
	require.True(t, utf8.ValidString(long))
	assert.Contains(t, long, "Summary for: "+strings.Repeat("ñ", 117)+"...\n")

	stream, err := (&LocalProvider{}).StreamChat(context.Background(), req)
	require.NoError(t, err)
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.True(t, utf8.ValidString(chunk), "chunk %q", chunk)
		b.WriteString(chunk)
	}
	assert.Equal(t, answer, b.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ññ", truncate("ññññ", 2))
	assert.Equal(t, "ñññ...", truncate(strings.Repeat("ñ", 10), 6))
}

func TestSliceStreamError(t *testing.T) {
	s := NewSliceStream("a")
	s.Err = errors.New("boom")

	chunk, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "a", chunk)
	_, err = s.Recv()
	assert.EqualError(t, err, "boom")

	require.NoError(t, s.Close())
	_, err = s.Recv()
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
