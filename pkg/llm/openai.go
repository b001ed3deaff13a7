package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider streams completions from the OpenAI chat API (or any
// compatible endpoint set through baseURL).
type OpenAIProvider struct {
	client *openai.Client
	log    zerolog.Logger
}

func NewOpenAIProvider(apiKey, baseURL string, log zerolog.Logger) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		log:    log.With().Str("component", "openai").Logger(),
	}
}

func (p *OpenAIProvider) StreamChat(ctx context.Context, req Request) (Stream, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, toOpenAIMessage(m))
	}

	p.log.Debug().Str("model", req.Model).Int("messages", len(msgs)).Msg("opening stream")
	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat completion stream: %w", err)
	}
	return &openAIStream{stream: stream}, nil
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	role := m.Role
	switch role {
	case openai.ChatMessageRoleUser, openai.ChatMessageRoleAssistant, openai.ChatMessageRoleSystem:
	default:
		role = openai.ChatMessageRoleUser
	}
	if !m.Content.IsStructured() {
		return openai.ChatCompletionMessage{Role: role, Content: m.Content.Text}
	}
	parts := make([]openai.ChatMessagePart, 0, len(m.Content.Parts))
	for _, part := range m.Content.Parts {
		switch part.Type {
		case PartImage:
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: part.Image, Detail: openai.ImageURLDetailAuto},
			})
		default:
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: part.Text})
		}
	}
	return openai.ChatCompletionMessage{Role: role, MultiContent: parts}
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("stream read error: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}
