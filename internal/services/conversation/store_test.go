// Package conversation_test provides unit tests for the conversation store.
package conversation_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customsflow/agent-service/internal/core/docdb"
	domainerrors "github.com/customsflow/agent-service/internal/domain/errors"
	"github.com/customsflow/agent-service/internal/domain/models"
	rediscache "github.com/customsflow/agent-service/internal/infrastructure/cache/redis"
	"github.com/customsflow/agent-service/internal/pkg/encryption"
	"github.com/customsflow/agent-service/internal/services/conversation"
)

// fakeDocDB is an in-memory docdb.Client.
type fakeDocDB struct {
	conversations *fakeConversations
	messages      *fakeMessages
}

func newFakeDocDB() *fakeDocDB {
	return &fakeDocDB{
		conversations: &fakeConversations{items: make(map[string]*models.Conversation)},
		messages:      &fakeMessages{},
	}
}

func (f *fakeDocDB) Conversations() docdb.ConversationsCollection { return f.conversations }
func (f *fakeDocDB) Messages() docdb.MessagesCollection           { return f.messages }
func (f *fakeDocDB) EnsureIndexes(ctx context.Context) error      { return nil }
func (f *fakeDocDB) Ping(ctx context.Context) error               { return nil }
func (f *fakeDocDB) Close(ctx context.Context) error              { return nil }

type fakeConversations struct {
	mu    sync.Mutex
	items map[string]*models.Conversation
	// applyTurnErrs makes the next n ApplyTurn calls fail.
	applyTurnErrs int
}

func (f *fakeConversations) Create(ctx context.Context, conv *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *conv
	f.items[conv.ID] = &cp
	return nil
}

func (f *fakeConversations) Get(ctx context.Context, id string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	cp := *conv
	return &cp, nil
}

func (f *fakeConversations) ListByUser(ctx context.Context, opts *docdb.ListConversationsOptions) ([]*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Conversation
	for _, conv := range f.items {
		if conv.UserID == opts.UserID {
			cp := *conv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeConversations) ApplyTurn(ctx context.Context, id string, update *docdb.TurnUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyTurnErrs > 0 {
		f.applyTurnErrs--
		return domainerrors.NewInternalError("update failed", nil)
	}
	conv, ok := f.items[id]
	if !ok {
		return domainerrors.NewNotFoundError("conversation", id)
	}
	conv.MessageCount += update.MessageDelta
	conv.LastAgent = update.LastAgent
	if update.UpdatedAt.After(conv.UpdatedAt) {
		conv.UpdatedAt = update.UpdatedAt
	}
	return nil
}

func (f *fakeConversations) EnsureIndexes(ctx context.Context) error { return nil }

type fakeMessages struct {
	mu    sync.Mutex
	items []*models.Message
}

func (f *fakeMessages) Add(ctx context.Context, m *models.Message) error {
	return f.AddMany(ctx, []*models.Message{m})
}

// AddMany upserts by message id, matching the durable store's contract.
func (f *fakeMessages) AddMany(ctx context.Context, messages []*models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range messages {
		cp := *m
		replaced := false
		for i, existing := range f.items {
			if existing.ID == m.ID {
				f.items[i] = &cp
				replaced = true
				break
			}
		}
		if !replaced {
			f.items = append(f.items, &cp)
		}
	}
	return nil
}

func (f *fakeMessages) List(ctx context.Context, opts *docdb.ListMessagesOptions) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Message
	for _, m := range f.items {
		if m.ConversationID == opts.ConversationID {
			cp := *m
			out = append(out, &cp)
		}
	}
	asc := opts.OrderBy != docdb.SortOrderDesc
	sort.Slice(out, func(i, j int) bool {
		if asc {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(out)) {
			return nil, nil
		}
		out = out[opts.Skip:]
	}
	if opts.Limit > 0 && int64(len(out)) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeMessages) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.items {
		if m.ConversationID == conversationID {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) EnsureIndexes(ctx context.Context) error { return nil }

func setupStore(t *testing.T) (*miniredis.Miniredis, *fakeDocDB, conversation.Store) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	cacheClient, err := rediscache.NewClient(rediscache.Config{
		Host: mr.Host(),
		Port: mr.Port(),
	})
	require.NoError(t, err)

	db := newFakeDocDB()
	store, err := conversation.NewStore(&conversation.Config{
		CacheClient: cacheClient,
		DocDBClient: db,
		TTL:         time.Minute,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		cacheClient.Close()
		mr.Close()
	})

	return mr, db, store
}

func appendTurn(t *testing.T, store conversation.Store, convID string, userText, assistantText string) (*models.Message, *models.Message) {
	t.Helper()

	userMsg := models.NewMessage(uuid.NewString(), convID, models.RoleUser, userText)
	assistantMsg := models.NewMessage(uuid.NewString(), convID, models.RoleAssistant, assistantText)
	assistantMsg.AgentUsed = models.AgentConsultation
	require.NoError(t, store.AppendTurn(context.Background(), convID, userMsg, assistantMsg))
	return userMsg, assistantMsg
}

func TestCreateAndGetConversation(t *testing.T) {
	_, _, store := setupStore(t)
	ctx := context.Background()

	created, err := store.CreateConversation(ctx, 7, "수입 신고 절차 문의")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, int64(7), created.UserID)
	assert.NotEmpty(t, created.Title)

	got, err := store.GetConversation(ctx, 7, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestGetConversation_NotFound(t *testing.T) {
	_, _, store := setupStore(t)

	_, err := store.GetConversation(context.Background(), 7, "missing")

	require.Error(t, err)
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestGetConversation_OtherUserLooksMissing(t *testing.T) {
	_, _, store := setupStore(t)
	ctx := context.Background()

	created, err := store.CreateConversation(ctx, 7, "첫 질문")
	require.NoError(t, err)

	_, err = store.GetConversation(ctx, 8, created.ID)

	require.Error(t, err)
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestAppendTurn_ReadAfterWrite(t *testing.T) {
	_, _, store := setupStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, 7, "질문")
	require.NoError(t, err)

	// Prime the cache, then append and read back.
	_, err = store.GetConversation(ctx, 7, conv.ID)
	require.NoError(t, err)

	appendTurn(t, store, conv.ID, "질문", "답변")

	got, err := store.GetConversation(ctx, 7, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.MessageCount)
	assert.Equal(t, models.AgentConsultation, got.LastAgent)
}

func TestAppendTurn_MessageOrdering(t *testing.T) {
	_, _, store := setupStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, 7, "질문")
	require.NoError(t, err)

	// Force identical timestamps; the store must still order the assistant
	// message strictly after the user message.
	userMsg := models.NewMessage(uuid.NewString(), conv.ID, models.RoleUser, "질문")
	assistantMsg := models.NewMessage(uuid.NewString(), conv.ID, models.RoleAssistant, "답변")
	assistantMsg.CreatedAt = userMsg.CreatedAt
	require.NoError(t, store.AppendTurn(ctx, conv.ID, userMsg, assistantMsg))

	messages, err := store.ListMessages(ctx, conv.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)
	assert.True(t, messages[1].CreatedAt.After(messages[0].CreatedAt))
}

func TestAppendTurn_ConcurrentAppendsCountCorrectly(t *testing.T) {
	_, _, store := setupStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, 7, "질문")
	require.NoError(t, err)

	const turns = 10
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			appendTurn(t, store, conv.ID, "질문", "답변")
		}()
	}
	wg.Wait()

	got, err := store.GetConversation(ctx, 7, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2*turns), got.MessageCount)

	messages, err := store.ListMessages(ctx, conv.ID, 100, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 2*turns)
}

func TestAppendTurn_RetryAfterCountUpdateFailure(t *testing.T) {
	_, db, store := setupStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, 7, "관세법 문의")
	require.NoError(t, err)

	userMsg := models.NewMessage(uuid.NewString(), conv.ID, models.RoleUser, "관세법 제1조?")
	assistantMsg := models.NewMessage(uuid.NewString(), conv.ID, models.RoleAssistant, "목적 조항입니다.")

	// The messages land but the conversation counter update fails once.
	db.conversations.applyTurnErrs = 1
	require.Error(t, store.AppendTurn(ctx, conv.ID, userMsg, assistantMsg))

	// Retrying with the same messages must succeed: the already stored
	// messages are replaced in place, not inserted a second time.
	require.NoError(t, store.AppendTurn(ctx, conv.ID, userMsg, assistantMsg))

	got, err := store.GetConversation(ctx, 7, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.MessageCount)

	messages, err := store.ListMessages(ctx, conv.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, userMsg.ID, messages[0].ID)
	assert.Equal(t, assistantMsg.ID, messages[1].ID)
}

func TestRecentContext_CachesWindow(t *testing.T) {
	mr, db, store := setupStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, 7, "질문")
	require.NoError(t, err)
	appendTurn(t, store, conv.ID, "첫 질문", "첫 답변")

	window, err := store.RecentContext(ctx, conv.ID, 5)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "첫 질문", window[0].Content)

	// Second read is served from the cache even if the durable store is
	// wiped underneath.
	db.messages.mu.Lock()
	db.messages.items = nil
	db.messages.mu.Unlock()

	cached, err := store.RecentContext(ctx, conv.ID, 5)
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	// A differing window size is a distinct cache entry.
	assert.True(t, mr.Exists("context:"+conv.ID+":5"))
}

func TestAppendTurn_InvalidatesContextCache(t *testing.T) {
	_, _, store := setupStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, 7, "질문")
	require.NoError(t, err)
	appendTurn(t, store, conv.ID, "첫 질문", "첫 답변")

	window, err := store.RecentContext(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, window, 2)

	appendTurn(t, store, conv.ID, "둘째 질문", "둘째 답변")

	window, err = store.RecentContext(ctx, conv.ID, 10)
	require.NoError(t, err)
	assert.Len(t, window, 4)
	assert.Equal(t, "둘째 답변", window[3].Content)
}

func TestCacheOutage_FallsBackToDurableStore(t *testing.T) {
	mr, _, store := setupStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, 7, "질문")
	require.NoError(t, err)
	appendTurn(t, store, conv.ID, "질문", "답변")

	mr.SetError("cache down")

	got, err := store.GetConversation(ctx, 7, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	window, err := store.RecentContext(ctx, conv.ID, 5)
	require.NoError(t, err)
	assert.Len(t, window, 2)
}

func TestSealedCache_RoundTrips(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cacheClient, err := rediscache.NewClient(rediscache.Config{Host: mr.Host(), Port: mr.Port()})
	require.NoError(t, err)
	defer cacheClient.Close()

	key, err := encryption.GenerateKey()
	require.NoError(t, err)
	sealer, err := encryption.NewAESSealer(key)
	require.NoError(t, err)

	store, err := conversation.NewStore(&conversation.Config{
		CacheClient: cacheClient,
		DocDBClient: newFakeDocDB(),
		TTL:         time.Minute,
		Sealer:      sealer,
	})
	require.NoError(t, err)

	ctx := context.Background()
	conv, err := store.CreateConversation(ctx, 7, "민감한 질문")
	require.NoError(t, err)

	// Populate the session cache entry.
	_, err = store.GetConversation(ctx, 7, conv.ID)
	require.NoError(t, err)

	// The raw cache entry must not contain the plaintext.
	raw, err := mr.Get("session:7:" + conv.ID)
	require.NoError(t, err)
	assert.NotContains(t, raw, "민감한")

	// The sealed entry still round-trips through the store.
	got, err := store.GetConversation(ctx, 7, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
}
