package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"Charla/models"
	"Charla/pkg/llm"
	"Charla/pkg/metrics"
	"Charla/pkg/store"
)

var (
	ErrProviderUnavailable        = errors.New("model provider unavailable")
	ErrIdentityRequired           = errors.New("signed-in user required")
	ErrAttachmentsRequireIdentity = errors.New("attachments require a signed-in user")
)

const untitled = "Untitled chat"

// Store is the persistence the pipeline needs. *store.Store satisfies it.
type Store interface {
	FindAccessibleConversation(ctx context.Context, id, userID string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	CreateMessage(ctx context.Context, msg *models.Message) error
	AttachUploads(ctx context.Context, messageID, uploaderID string, ids []string) ([]models.Upload, error)
	FindUploads(ctx context.Context, uploaderID string, ids []string) ([]models.Upload, error)
	UpdateMessageContent(ctx context.Context, id, content string) error
	SetTitleIfUnset(ctx context.Context, id, title string) (bool, error)
}

// Extractor turns uploads into attachments, preserving input order.
type Extractor interface {
	Uploads(ctx context.Context, uploads []models.Upload) []Attachment
	Inline(ctx context.Context, files []InlineUpload) []Attachment
}

// InlineUpload is a file sent with a temporary turn instead of uploaded first.
type InlineUpload struct {
	FileName     string `json:"fileName" binding:"required"`
	ResourceType string `json:"resourceType" binding:"required,oneof=image video raw"`
	MimeType     string `json:"mimeType"`
	Base64       string `json:"base64" binding:"required"`
}

// TurnRequest is one user submission. UserID is empty for guests.
type TurnRequest struct {
	UserID         string
	ConversationID string
	History        []llm.Message
	NewMessage     string
	Model          string
	Mode           string
	UploadIDs      []string
	Inline         []InlineUpload
}

// Turn is a started turn. Live yields the provider chunks for the caller;
// persisted turns also carry the ids of the rows they wrote.
type Turn struct {
	ConversationID      string
	CreatedConversation bool
	UserMessageID       string
	AssistantMessageID  string
	Model               string
	Mode                string
	Live                Source
}

type Options struct {
	DefaultModel    string
	MultimodalModel string
	TitleMaxLength  int
}

// Orchestrator runs chat turns: it records the user message, calls the
// provider once and splits the stream between the caller and a detached
// persistence task.
type Orchestrator struct {
	store     Store
	provider  llm.Provider
	extractor Extractor
	opts      Options
	log       zerolog.Logger

	tasks sync.WaitGroup
}

func NewOrchestrator(st Store, provider llm.Provider, extractor Extractor, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.TitleMaxLength <= 0 {
		opts.TitleMaxLength = 80
	}
	return &Orchestrator{
		store:     st,
		provider:  provider,
		extractor: extractor,
		opts:      opts,
		log:       log.With().Str("component", "orchestrator").Logger(),
	}
}

// Start runs a persisted turn for a signed-in user. It returns once the
// provider stream is open; the assistant text is saved in the background
// whether or not the caller keeps reading Live.
func (o *Orchestrator) Start(ctx context.Context, req TurnRequest) (*Turn, error) {
	if req.UserID == "" {
		return nil, ErrIdentityRequired
	}
	mode := normalizeMode(req.Mode)

	conv, created, err := o.resolveConversation(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	userMsg := &models.Message{
		ConversationID: conv.ID,
		AuthorID:       &req.UserID,
		Role:           models.RoleUser,
		Content:        req.NewMessage,
	}
	if err := o.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	var atts []Attachment
	if len(req.UploadIDs) > 0 {
		uploads, err := o.store.AttachUploads(ctx, userMsg.ID, req.UserID, req.UploadIDs)
		if err != nil {
			return nil, fmt.Errorf("attach uploads: %w", err)
		}
		atts = o.extractor.Uploads(ctx, uploads)
	}

	content := Format(req.NewMessage, atts)
	model := SelectModel(req.Model, o.opts.DefaultModel, o.opts.MultimodalModel, atts)

	assistantMsg := &models.Message{ConversationID: conv.ID, Role: models.RoleAssistant}
	if err := o.store.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("save assistant placeholder: %w", err)
	}

	// The stream outlives the request so the transcript is complete even
	// when the client goes away.
	stream, err := o.provider.StreamChat(context.WithoutCancel(ctx), llm.Request{
		Model:    model,
		System:   SystemPrompt(mode),
		Messages: buildHistory(req.History, content),
	})
	if err != nil {
		metrics.ProviderErrorsTotal.WithLabelValues("persisted").Inc()
		o.log.Error().Err(err).Str("conversation_id", conv.ID).Str("model", model).Msg("provider stream failed to start")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	metrics.TurnsTotal.WithLabelValues("persisted", mode, model).Inc()

	tee := NewTee(stream)
	live := tee.Cursor()
	stored := tee.Cursor()

	o.tasks.Add(1)
	go o.persist(stored, persistJob{
		conversationID: conv.ID,
		messageID:      assistantMsg.ID,
		hasTitle:       conv.HasTitle(),
		userText:       req.NewMessage,
	})

	return &Turn{
		ConversationID:      conv.ID,
		CreatedConversation: created,
		UserMessageID:       userMsg.ID,
		AssistantMessageID:  assistantMsg.ID,
		Model:               model,
		Mode:                mode,
		Live:                live,
	}, nil
}

// StartEphemeral runs a turn that writes nothing. Guests (empty UserID) may
// not send attachments.
func (o *Orchestrator) StartEphemeral(ctx context.Context, req TurnRequest) (*Turn, error) {
	if req.UserID == "" && (len(req.UploadIDs) > 0 || len(req.Inline) > 0) {
		return nil, ErrAttachmentsRequireIdentity
	}
	mode := normalizeMode(req.Mode)
	kind := "ephemeral"
	if req.UserID == "" {
		kind = "guest"
	}

	var atts []Attachment
	if len(req.UploadIDs) > 0 {
		uploads, err := o.store.FindUploads(ctx, req.UserID, req.UploadIDs)
		if err != nil {
			return nil, fmt.Errorf("find uploads: %w", err)
		}
		atts = append(atts, o.extractor.Uploads(ctx, uploads)...)
	}
	if len(req.Inline) > 0 {
		atts = append(atts, o.extractor.Inline(ctx, req.Inline)...)
	}

	content := Format(req.NewMessage, atts)
	model := SelectModel(req.Model, o.opts.DefaultModel, o.opts.MultimodalModel, atts)

	stream, err := o.provider.StreamChat(ctx, llm.Request{
		Model:    model,
		System:   SystemPrompt(mode),
		Messages: buildHistory(req.History, content),
	})
	if err != nil {
		metrics.ProviderErrorsTotal.WithLabelValues(kind).Inc()
		o.log.Error().Err(err).Str("kind", kind).Str("model", model).Msg("provider stream failed to start")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	metrics.TurnsTotal.WithLabelValues(kind, mode, model).Inc()

	return &Turn{Model: model, Mode: mode, Live: &StreamSource{Stream: stream}}, nil
}

// Wait blocks until every background persistence task has finished or ctx
// is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) resolveConversation(ctx context.Context, userID, id string) (*models.Conversation, bool, error) {
	if id != "" {
		conv, err := o.store.FindAccessibleConversation(ctx, id, userID)
		if err == nil {
			return conv, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, fmt.Errorf("find conversation: %w", err)
		}
		o.log.Debug().Str("conversation_id", id).Str("user_id", userID).Msg("conversation not accessible, starting a new one")
	}
	conv := &models.Conversation{UserID: userID}
	if err := o.store.CreateConversation(ctx, conv); err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	metrics.ConversationsCreatedTotal.Inc()
	return conv, true, nil
}

type persistJob struct {
	conversationID string
	messageID      string
	hasTitle       bool
	userText       string
}

func (o *Orchestrator) persist(cur *Cursor, job persistJob) {
	defer o.tasks.Done()
	log := o.log.With().Str("conversation_id", job.conversationID).Str("message_id", job.messageID).Logger()
	defer func() {
		if r := recover(); r != nil {
			metrics.StorageBranchFailuresTotal.WithLabelValues("panic").Inc()
			log.Error().Interface("panic", r).Msg("persistence task panicked")
		}
	}()

	ctx := context.Background()
	text, err := cur.ReadAll(ctx)
	if err != nil {
		// partial output is discarded; the assistant message stays empty
		metrics.StorageBranchFailuresTotal.WithLabelValues("stream").Inc()
		log.Warn().Err(err).Int("partial_len", len(text)).Msg("provider stream ended with error")
		text = ""
	} else if err := o.store.UpdateMessageContent(ctx, job.messageID, text); err != nil {
		metrics.StorageBranchFailuresTotal.WithLabelValues("update_message").Inc()
		log.Error().Err(err).Msg("failed to save assistant message")
	}

	if job.hasTitle {
		return
	}
	title := DeriveTitle(text, job.userText, o.opts.TitleMaxLength)
	if _, err := o.store.SetTitleIfUnset(ctx, job.conversationID, title); err != nil {
		metrics.StorageBranchFailuresTotal.WithLabelValues("title").Inc()
		log.Error().Err(err).Msg("failed to set conversation title")
	}
}

// DeriveTitle takes the first max characters of the assistant reply as is.
// An empty reply falls back to the trimmed user message, then to a fixed
// placeholder.
func DeriveTitle(assistantText, userText string, max int) string {
	if assistantText != "" {
		return prefix(assistantText, max)
	}
	if s := strings.TrimSpace(userText); s != "" {
		return prefix(s, max)
	}
	return untitled
}

func prefix(s string, max int) string {
	if r := []rune(s); len(r) > max {
		return string(r[:max])
	}
	return s
}

func buildHistory(prior []llm.Message, content llm.Content) []llm.Message {
	out := make([]llm.Message, 0, len(prior)+1)
	out = append(out, prior...)
	return append(out, llm.Message{Role: models.RoleUser, Content: content})
}

func normalizeMode(mode string) string {
	if ValidMode(mode) {
		return mode
	}
	return ModeNormal
}

// Relay copies chunks from src to write until the stream ends. It returns
// nil on a clean end, otherwise the first read or write error.
func Relay(ctx context.Context, src Source, write func(string) error) error {
	if c, ok := src.(interface{ Close() }); ok {
		defer c.Close()
	}
	for {
		chunk, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := write(chunk); err != nil {
			return err
		}
	}
}
