package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customsflow/agent-service/internal/core/docdb"
	"github.com/customsflow/agent-service/internal/core/vector"
	domainerrors "github.com/customsflow/agent-service/internal/domain/errors"
	"github.com/customsflow/agent-service/internal/domain/models"
	"github.com/customsflow/agent-service/internal/services/agents"
	"github.com/customsflow/agent-service/internal/services/orchestrator"
	"github.com/customsflow/agent-service/internal/services/progress"
	"github.com/customsflow/agent-service/internal/services/router"
)

// fakeStore is an in-memory conversation.Store for handler tests.
type fakeStore struct {
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
	}
}

func (s *fakeStore) GetConversation(_ context.Context, userID int64, conversationID string) (*models.Conversation, error) {
	conv, ok := s.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return nil, domainerrors.NewNotFoundError("conversation", conversationID)
	}
	return conv, nil
}

func (s *fakeStore) CreateConversation(_ context.Context, userID int64, firstMessage string) (*models.Conversation, error) {
	conv := models.NewConversation(fmt.Sprintf("conv-%d", len(s.conversations)+1), userID, firstMessage)
	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *fakeStore) AppendTurn(_ context.Context, conversationID string, userMsg, assistantMsg *models.Message) error {
	s.messages[conversationID] = append(s.messages[conversationID], userMsg, assistantMsg)
	return nil
}

func (s *fakeStore) RecentContext(_ context.Context, conversationID string, limit int) ([]models.Message, error) {
	msgs := s.messages[conversationID]
	out := make([]models.Message, 0, limit)
	for _, m := range msgs {
		out = append(out, *m)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) ListMessages(_ context.Context, conversationID string, limit, offset int64) ([]*models.Message, error) {
	msgs := s.messages[conversationID]
	if offset >= int64(len(msgs)) {
		return nil, nil
	}
	end := offset + limit
	if end > int64(len(msgs)) {
		end = int64(len(msgs))
	}
	return msgs[offset:end], nil
}

func (s *fakeStore) ListConversations(_ context.Context, userID int64, limit, offset int64) ([]*models.Conversation, error) {
	var out []*models.Conversation
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if offset >= int64(len(out)) {
		return nil, nil
	}
	end := offset + limit
	if end > int64(len(out)) {
		end = int64(len(out))
	}
	return out[offset:end], nil
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(_ context.Context) error { return f.err }

type fakeCache struct{ fakePinger }

func (f *fakeCache) Get(_ context.Context, _ string) ([]byte, error)                 { return nil, nil }
func (f *fakeCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (f *fakeCache) Delete(_ context.Context, _ string) (bool, error)                { return false, nil }
func (f *fakeCache) DeletePattern(_ context.Context, _ string) (int64, error)        { return 0, nil }
func (f *fakeCache) Close() error                                                    { return nil }

type fakeDocDB struct{ fakePinger }

func (f *fakeDocDB) Conversations() docdb.ConversationsCollection { return nil }
func (f *fakeDocDB) Messages() docdb.MessagesCollection           { return nil }
func (f *fakeDocDB) EnsureIndexes(_ context.Context) error        { return nil }
func (f *fakeDocDB) Close(_ context.Context) error                { return nil }

type healthRetriever struct{ fakePinger }

func (f *healthRetriever) Search(_ context.Context, _, _ string, _ int) ([]vector.SearchResult, error) {
	return nil, nil
}

// asUser simulates the auth middleware resolving the caller.
func asUser(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	}
}

func TestListConversations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	_, err := store.CreateConversation(context.Background(), 42, "관세법 문의")
	require.NoError(t, err)
	_, err = store.CreateConversation(context.Background(), 7, "다른 사용자 대화")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/conversations", asUser(42), NewConversationsHandler(store).List)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "관세법 문의")
	assert.NotContains(t, w.Body.String(), "다른 사용자 대화")
	assert.Contains(t, w.Body.String(), `"limit":20`)
}

func TestListConversationsRejectsBadLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/conversations", asUser(42), NewConversationsHandler(newFakeStore()).List)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations?limit=500", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestGetMessagesUnknownConversation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/conversations/:conversationId/messages", asUser(42), NewConversationsHandler(newFakeStore()).Messages)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/missing/messages", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestGetMessagesOtherUsersConversation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	conv, err := store.CreateConversation(context.Background(), 7, "다른 사용자 대화")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/conversations/:conversationId/messages", asUser(42), NewConversationsHandler(store).Messages)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/"+conv.ID+"/messages", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/conversations/chat", asUser(42), NewChatHandler(nil, time.Second).Chat)

	req := httptest.NewRequest(http.MethodPost, "/conversations/chat", strings.NewReader(`{"message": ""}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestChatUserIDMismatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/conversations/chat", asUser(42), NewChatHandler(nil, time.Second).Chat)

	req := httptest.NewRequest(http.MethodPost, "/conversations/chat",
		strings.NewReader(`{"message": "관세법 문의", "user_id": 7}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "FORBIDDEN")
}

// gatedAgent is a scriptable agents.Agent whose generation can be held open
// so a test can act mid-turn.
type gatedAgent struct {
	agentType models.AgentType
	started   chan struct{}
	gate      chan struct{}
	startOnce sync.Once
}

func (a *gatedAgent) Type() models.AgentType { return a.agentType }
func (a *gatedAgent) Collection() string     { return string(a.agentType) }

func (a *gatedAgent) Retrieve(_ context.Context, _ string) ([]models.DocumentReference, error) {
	return nil, nil
}

func (a *gatedAgent) Generate(_ context.Context, _ string, refs []models.DocumentReference, _ []models.Message) (*agents.Answer, error) {
	if a.started != nil {
		a.startOnce.Do(func() { close(a.started) })
	}
	if a.gate != nil {
		<-a.gate
	}
	return &agents.Answer{Content: "관세법 제1조는 목적 조항입니다.", Confidence: 0.9, References: refs}, nil
}

func (a *gatedAgent) Answer(ctx context.Context, query string, history []models.Message) (*agents.Answer, error) {
	refs, err := a.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	return a.Generate(ctx, query, refs, history)
}

func TestChatPersistsTurnAfterClientDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	law := &gatedAgent{
		agentType: models.AgentLaw,
		started:   make(chan struct{}),
		gate:      make(chan struct{}),
	}
	orch, err := orchestrator.New(&orchestrator.Config{
		Store:  store,
		Router: router.New(router.Config{}),
		Agents: agents.NewRegistryFromAgents(law,
			&gatedAgent{agentType: models.AgentTradeRegulation},
			&gatedAgent{agentType: models.AgentConsultation}),
		Broker:       progress.NewBroker(32),
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	r := gin.New()
	r.POST("/conversations/chat", asUser(42), NewChatHandler(orch, time.Minute).Chat)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/conversations/chat",
		strings.NewReader(`{"message": "관세법 제1조에 대해 알려주세요"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	// The client goes away mid-generation; the turn must still complete.
	go func() {
		<-law.started
		cancel()
		close(law.gate)
	}()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "목적 조항")

	require.Len(t, store.conversations, 1)
	for id := range store.conversations {
		require.Len(t, store.messages[id], 2)
		assert.Equal(t, models.RoleAssistant, store.messages[id][1].Role)
	}
}

func TestStreamUnknownConversation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	broker := progress.NewBroker(32)
	r := gin.New()
	r.GET("/progress/stream/:conversationId", asUser(42),
		NewProgressHandler(broker, newFakeStore(), time.Second).Stream)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/progress/stream/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamNoActiveTurn(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	conv, err := store.CreateConversation(context.Background(), 42, "관세법 문의")
	require.NoError(t, err)

	broker := progress.NewBroker(32)
	r := gin.New()
	r.GET("/progress/stream/:conversationId", asUser(42),
		NewProgressHandler(broker, store, time.Second).Stream)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/progress/stream/"+conv.ID, nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "active turn")
}

func TestStreamReplaysEventsAndCompletes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	conv, err := store.CreateConversation(context.Background(), 42, "관세법 문의")
	require.NoError(t, err)

	broker := progress.NewBroker(32)
	broker.OpenTurn(conv.ID)
	broker.Publish(models.NewProgressEvent(conv.ID, models.StepReceived, "요청을 접수했습니다", ""))
	broker.Publish(models.NewProgressEvent(conv.ID, models.StepRouting, "질문을 분석하고 있습니다", ""))

	// The handler's subscription replaces this sentinel one; its channel
	// closing signals that the handler is attached and live publishing is safe.
	sentinel, ok := broker.Subscribe(conv.ID)
	require.True(t, ok)
	go func() {
		for range sentinel.Events() {
		}
		broker.Publish(models.NewProgressEvent(conv.ID, models.StepPersisting, "답변을 저장하고 있습니다", ""))
		broker.Publish(models.NewProgressEvent(conv.ID, models.StepCompleted, "답변이 준비되었습니다", ""))
	}()

	r := gin.New()
	r.GET("/progress/stream/:conversationId", asUser(42),
		NewProgressHandler(broker, store, time.Minute).Stream)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/progress/stream/"+conv.ID, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, `"step":"received"`)
	assert.Contains(t, body, `"step":"routing"`)
	assert.Contains(t, body, `"step":"completed"`)
	assert.Contains(t, body, "event: done")

	// Replayed events come before the live ones.
	assert.Less(t, strings.Index(body, `"step":"received"`), strings.Index(body, `"step":"completed"`))
}

func TestStreamWritesHeartbeatsWhileIdle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	conv, err := store.CreateConversation(context.Background(), 42, "관세법 문의")
	require.NoError(t, err)

	broker := progress.NewBroker(32)
	broker.OpenTurn(conv.ID)

	sentinel, ok := broker.Subscribe(conv.ID)
	require.True(t, ok)
	go func() {
		for range sentinel.Events() {
		}
		time.Sleep(80 * time.Millisecond)
		broker.Publish(models.NewProgressEvent(conv.ID, models.StepCompleted, "답변이 준비되었습니다", ""))
	}()

	r := gin.New()
	r.GET("/progress/stream/:conversationId", asUser(42),
		NewProgressHandler(broker, store, 10*time.Millisecond).Stream)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/progress/stream/"+conv.ID, nil))

	body := w.Body.String()
	assert.Contains(t, body, `"step":"heartbeat"`)
	assert.Contains(t, body, "event: done")
}

func TestHealthAllComponentsUp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(&fakeCache{}, &fakeDocDB{}, &healthRetriever{})

	r := gin.New()
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.Contains(t, w.Body.String(), `"vector":"healthy"`)
}

func TestHealthVectorBackendDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(&fakeCache{}, &fakeDocDB{},
		&healthRetriever{fakePinger{err: fmt.Errorf("connection refused")}})

	r := gin.New()
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"vector":"unhealthy"`)
	assert.Contains(t, w.Body.String(), `"cache":"healthy"`)
}

func TestReadyIgnoresCacheOutage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(&fakeCache{fakePinger{err: fmt.Errorf("cache down")}}, &fakeDocDB{}, &healthRetriever{})

	r := gin.New()
	r.GET("/ready", h.Ready)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyGatesOnDocDB(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(&fakeCache{}, &fakeDocDB{fakePinger{err: fmt.Errorf("docdb down")}}, &healthRetriever{})

	r := gin.New()
	r.GET("/ready", h.Ready)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "docdb unavailable")
}
