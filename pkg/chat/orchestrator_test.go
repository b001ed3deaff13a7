package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Charla/models"
	"Charla/pkg/llm"
	"Charla/pkg/store"
)

type fakeStore struct {
	mu       sync.Mutex
	convs    map[string]*models.Conversation
	members  map[string][]string
	messages []*models.Message
	uploads  map[string]*models.Upload
	failSave bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		convs:   map[string]*models.Conversation{},
		members: map[string][]string{},
		uploads: map[string]*models.Upload{},
	}
}

func (f *fakeStore) FindAccessibleConversation(ctx context.Context, id, userID string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if conv.UserID == userID {
		c := *conv
		return &c, nil
	}
	for _, m := range f.members[id] {
		if m == userID {
			c := *conv
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv.ID = uuid.NewString()
	c := *conv
	f.convs[conv.ID] = &c
	return nil
}

func (f *fakeStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = uuid.NewString()
	m := *msg
	f.messages = append(f.messages, &m)
	return nil
}

func (f *fakeStore) AttachUploads(ctx context.Context, messageID, uploaderID string, ids []string) ([]models.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Upload
	for _, id := range ids {
		u, ok := f.uploads[id]
		if !ok || u.UploaderID != uploaderID || u.MessageID != nil {
			continue
		}
		mid := messageID
		u.MessageID = &mid
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeStore) FindUploads(ctx context.Context, uploaderID string, ids []string) ([]models.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Upload
	for _, id := range ids {
		if u, ok := f.uploads[id]; ok && u.UploaderID == uploaderID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateMessageContent(ctx context.Context, id, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errors.New("disk full")
	}
	for _, m := range f.messages {
		if m.ID == id {
			m.Content = content
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) SetTitleIfUnset(ctx context.Context, id, title string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok || conv.Title != "" {
		return false, nil
	}
	conv.Title = title
	return true, nil
}

func (f *fakeStore) message(id string) models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			return *m
		}
	}
	return models.Message{}
}

func (f *fakeStore) title(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convs[id].Title
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []llm.Request
	stream   func() llm.Stream
	err      error
}

func (p *fakeProvider) StreamChat(ctx context.Context, req llm.Request) (llm.Stream, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.stream(), nil
}

func (p *fakeProvider) last() llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

func chunks(c ...string) func() llm.Stream {
	return func() llm.Stream { return llm.NewSliceStream(c...) }
}

// fakeExtractor maps resource types straight to attachments.
type fakeExtractor struct{}

func (fakeExtractor) Uploads(ctx context.Context, uploads []models.Upload) []Attachment {
	out := make([]Attachment, 0, len(uploads))
	for _, u := range uploads {
		switch u.ResourceType {
		case models.ResourceImage:
			out = append(out, Attachment{Kind: KindImage, FileName: u.FileName, URL: u.URL})
		default:
			out = append(out, Attachment{Kind: KindDocument, FileName: u.FileName, Text: "text of " + u.FileName})
		}
	}
	return out
}

func (fakeExtractor) Inline(ctx context.Context, files []InlineUpload) []Attachment {
	out := make([]Attachment, 0, len(files))
	for _, f := range files {
		out = append(out, Attachment{Kind: KindDocument, FileName: f.FileName, Text: "inline " + f.FileName})
	}
	return out
}

var testOpts = Options{DefaultModel: "small", MultimodalModel: "vision", TitleMaxLength: 80}

func newTestOrchestrator(st Store, p llm.Provider) *Orchestrator {
	return NewOrchestrator(st, p, fakeExtractor{}, testOpts, zerolog.Nop())
}

func waitTasks(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, o.Wait(ctx))
}

func TestStartNewConversationStreamsAndPersists(t *testing.T) {
	st := newFakeStore()
	p := &fakeProvider{stream: chunks("Hello", ", ", "world")}
	o := newTestOrchestrator(st, p)

	turn, err := o.Start(context.Background(), TurnRequest{UserID: "u1", NewMessage: "Hi there"})
	require.NoError(t, err)
	assert.True(t, turn.CreatedConversation)
	assert.Equal(t, "small", turn.Model)

	var live strings.Builder
	require.NoError(t, Relay(context.Background(), turn.Live, func(s string) error {
		live.WriteString(s)
		return nil
	}))
	waitTasks(t, o)

	assert.Equal(t, "Hello, world", live.String())
	assistant := st.message(turn.AssistantMessageID)
	assert.Equal(t, live.String(), assistant.Content)
	assert.Equal(t, models.RoleAssistant, assistant.Role)
	assert.Nil(t, assistant.AuthorID)

	user := st.message(turn.UserMessageID)
	assert.Equal(t, "Hi there", user.Content)
	require.NotNil(t, user.AuthorID)
	assert.Equal(t, "u1", *user.AuthorID)

	assert.Equal(t, "Hello, world", st.title(turn.ConversationID))
}

func TestStartKeepsExistingTitle(t *testing.T) {
	st := newFakeStore()
	st.convs["c1"] = &models.Conversation{Base: models.Base{ID: "c1"}, UserID: "u1", Title: "Kept"}
	o := newTestOrchestrator(st, &fakeProvider{stream: chunks("new text")})

	turn, err := o.Start(context.Background(), TurnRequest{UserID: "u1", ConversationID: "c1", NewMessage: "again"})
	require.NoError(t, err)
	assert.False(t, turn.CreatedConversation)
	assert.Equal(t, "c1", turn.ConversationID)
	waitTasks(t, o)

	assert.Equal(t, "Kept", st.title("c1"))
}

func TestStartMemberContinuesSharedConversation(t *testing.T) {
	st := newFakeStore()
	st.convs["c1"] = &models.Conversation{Base: models.Base{ID: "c1"}, UserID: "owner", Title: "Group"}
	st.members["c1"] = []string{"guest-member"}
	o := newTestOrchestrator(st, &fakeProvider{stream: chunks("ok")})

	turn, err := o.Start(context.Background(), TurnRequest{UserID: "guest-member", ConversationID: "c1", NewMessage: "hey"})
	require.NoError(t, err)
	assert.Equal(t, "c1", turn.ConversationID)
	waitTasks(t, o)
}

func TestStartInaccessibleConversationStartsFresh(t *testing.T) {
	st := newFakeStore()
	st.convs["c1"] = &models.Conversation{Base: models.Base{ID: "c1"}, UserID: "owner"}
	o := newTestOrchestrator(st, &fakeProvider{stream: chunks("ok")})

	turn, err := o.Start(context.Background(), TurnRequest{UserID: "stranger", ConversationID: "c1", NewMessage: "hey"})
	require.NoError(t, err)
	assert.True(t, turn.CreatedConversation)
	assert.NotEqual(t, "c1", turn.ConversationID)
	waitTasks(t, o)
}

func TestStartSurvivesClientDisconnect(t *testing.T) {
	st := newFakeStore()
	src := newGateStream()
	o := newTestOrchestrator(st, &fakeProvider{stream: func() llm.Stream { return src }})

	reqCtx, cancel := context.WithCancel(context.Background())
	turn, err := o.Start(reqCtx, TurnRequest{UserID: "u1", NewMessage: "long question"})
	require.NoError(t, err)

	src.next <- "first "
	chunk, err := turn.Live.Next(reqCtx)
	require.NoError(t, err)
	assert.Equal(t, "first ", chunk)

	cancel()
	_, err = turn.Live.Next(reqCtx)
	assert.ErrorIs(t, err, context.Canceled)

	src.next <- "second"
	close(src.next)
	waitTasks(t, o)

	assert.Equal(t, "first second", st.message(turn.AssistantMessageID).Content)
}

func TestStartProviderFailure(t *testing.T) {
	st := newFakeStore()
	o := newTestOrchestrator(st, &fakeProvider{err: errors.New("401 from upstream")})

	turn, err := o.Start(context.Background(), TurnRequest{UserID: "u1", NewMessage: "hi"})
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Nil(t, turn)
	waitTasks(t, o)

	require.Equal(t, 2, st.messageCount())
	assert.Equal(t, models.RoleAssistant, st.messages[1].Role)
	assert.Empty(t, st.messages[1].Content)
}

func TestStartStreamErrorLeavesAssistantEmpty(t *testing.T) {
	st := newFakeStore()
	o := newTestOrchestrator(st, &fakeProvider{stream: func() llm.Stream {
		s := llm.NewSliceStream("half an ans")
		s.Err = errors.New("connection reset")
		return s
	}})

	turn, err := o.Start(context.Background(), TurnRequest{UserID: "u1", NewMessage: "  Why is the sky blue?  "})
	require.NoError(t, err)
	err = Relay(context.Background(), turn.Live, func(string) error { return nil })
	assert.Error(t, err)
	waitTasks(t, o)

	assert.Empty(t, st.message(turn.AssistantMessageID).Content)
	assert.Equal(t, "Why is the sky blue?", st.title(turn.ConversationID))
}

func TestStartSaveFailureIsSwallowed(t *testing.T) {
	st := newFakeStore()
	st.failSave = true
	o := newTestOrchestrator(st, &fakeProvider{stream: chunks("fine")})

	turn, err := o.Start(context.Background(), TurnRequest{UserID: "u1", NewMessage: "q"})
	require.NoError(t, err)
	text, err := turn.Live.(*Cursor).ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fine", text)
	waitTasks(t, o)
}

func TestStartImageForcesMultimodalModel(t *testing.T) {
	st := newFakeStore()
	st.uploads["img"] = &models.Upload{Base: models.Base{ID: "img"}, UploaderID: "u1", ResourceType: models.ResourceImage, FileName: "cat.png", URL: "http://x/cat.png"}
	st.uploads["doc"] = &models.Upload{Base: models.Base{ID: "doc"}, UploaderID: "u1", ResourceType: models.ResourceRaw, FileName: "a.pdf"}
	p := &fakeProvider{stream: chunks("a cat")}
	o := newTestOrchestrator(st, p)

	turn, err := o.Start(context.Background(), TurnRequest{
		UserID:     "u1",
		NewMessage: "what is it",
		Model:      "small-custom",
		Mode:       ModeThink,
		UploadIDs:  []string{"doc", "img"},
		History: []llm.Message{
			{Role: models.RoleUser, Content: llm.TextContent("earlier")},
			{Role: models.RoleAssistant, Content: llm.TextContent("reply")},
		},
	})
	require.NoError(t, err)
	waitTasks(t, o)

	assert.Equal(t, "vision", turn.Model)
	req := p.last()
	assert.Equal(t, "vision", req.Model)
	assert.Equal(t, SystemPrompt(ModeThink), req.System)
	require.Len(t, req.Messages, 3)
	last := req.Messages[2]
	assert.Equal(t, models.RoleUser, last.Role)
	require.True(t, last.Content.IsStructured())
	assert.Equal(t, []llm.Part{
		{Type: llm.PartText, Text: "what is it\n\n--- Content of a.pdf ---\ntext of a.pdf"},
		{Type: llm.PartImage, Image: "http://x/cat.png"},
	}, last.Content.Parts)

	require.NotNil(t, st.uploads["img"].MessageID)
	assert.Equal(t, turn.UserMessageID, *st.uploads["img"].MessageID)
}

func TestStartRequiresIdentity(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), &fakeProvider{stream: chunks("x")})
	_, err := o.Start(context.Background(), TurnRequest{NewMessage: "hi"})
	assert.ErrorIs(t, err, ErrIdentityRequired)
}

func TestStartEphemeralGuest(t *testing.T) {
	st := newFakeStore()
	p := &fakeProvider{stream: chunks("guest ", "answer")}
	o := newTestOrchestrator(st, p)

	turn, err := o.StartEphemeral(context.Background(), TurnRequest{NewMessage: "hello", Mode: "bogus"})
	require.NoError(t, err)
	var got strings.Builder
	require.NoError(t, Relay(context.Background(), turn.Live, func(s string) error {
		got.WriteString(s)
		return nil
	}))

	assert.Equal(t, "guest answer", got.String())
	assert.Equal(t, ModeNormal, turn.Mode)
	assert.Equal(t, SystemPrompt(ModeNormal), p.last().System)
	assert.Zero(t, st.messageCount())
	assert.Empty(t, turn.ConversationID)
}

func TestStartEphemeralGuestAttachmentsRejected(t *testing.T) {
	p := &fakeProvider{stream: chunks("x")}
	o := newTestOrchestrator(newFakeStore(), p)

	_, err := o.StartEphemeral(context.Background(), TurnRequest{NewMessage: "hi", UploadIDs: []string{"a"}})
	assert.ErrorIs(t, err, ErrAttachmentsRequireIdentity)
	_, err = o.StartEphemeral(context.Background(), TurnRequest{NewMessage: "hi", Inline: []InlineUpload{{FileName: "a.txt"}}})
	assert.ErrorIs(t, err, ErrAttachmentsRequireIdentity)
	assert.Empty(t, p.requests)
}

func TestStartEphemeralSignedInWithAttachments(t *testing.T) {
	st := newFakeStore()
	st.uploads["doc"] = &models.Upload{Base: models.Base{ID: "doc"}, UploaderID: "u1", ResourceType: models.ResourceRaw, FileName: "a.txt"}
	p := &fakeProvider{stream: chunks("x")}
	o := newTestOrchestrator(st, p)

	turn, err := o.StartEphemeral(context.Background(), TurnRequest{
		UserID:     "u1",
		NewMessage: "read",
		UploadIDs:  []string{"doc"},
		Inline:     []InlineUpload{{FileName: "b.md", ResourceType: models.ResourceRaw, Base64: "eA=="}},
	})
	require.NoError(t, err)
	require.NoError(t, Relay(context.Background(), turn.Live, func(string) error { return nil }))

	content := p.last().Messages[0].Content
	assert.Equal(t, "read\n\n--- Content of a.txt ---\ntext of a.txt\n\n--- Content of b.md ---\ninline b.md", content.Text)
	assert.Nil(t, st.uploads["doc"].MessageID, "temporary turns never attach uploads")
	assert.Zero(t, st.messageCount())
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "  Answer  ", DeriveTitle("  Answer  ", "question", 80))
	assert.Equal(t, "   ", DeriveTitle("   ", "question", 80))
	assert.Equal(t, "question", DeriveTitle("", " question ", 80))
	assert.Equal(t, "Untitled chat", DeriveTitle("", "  ", 80))
	assert.Equal(t, strings.Repeat("ñ", 80), DeriveTitle(strings.Repeat("ñ", 200), "", 80))

	reply := "\n\n" + strings.Repeat("a", 77) + " tail of the answer"
	assert.Equal(t, "\n\n"+strings.Repeat("a", 77)+" ", DeriveTitle(reply, "q", 80))
}

func TestStartTitleIsRawReplyPrefix(t *testing.T) {
	st := newFakeStore()
	reply := "\n\n" + strings.Repeat("a", 77) + " tail of the answer"
	o := newTestOrchestrator(st, &fakeProvider{stream: chunks(reply[:40], reply[40:])})

	turn, err := o.Start(context.Background(), TurnRequest{UserID: "u1", NewMessage: "question"})
	require.NoError(t, err)
	require.NoError(t, Relay(context.Background(), turn.Live, func(string) error { return nil }))
	waitTasks(t, o)

	assert.Equal(t, string([]rune(reply)[:80]), st.title(turn.ConversationID))
}
