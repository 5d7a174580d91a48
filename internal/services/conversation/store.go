// Package conversation provides conversation and message persistence with a
// cache-aside layer in front of the durable store.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/customsflow/agent-service/internal/core/cache"
	"github.com/customsflow/agent-service/internal/core/docdb"
	domainerrors "github.com/customsflow/agent-service/internal/domain/errors"
	"github.com/customsflow/agent-service/internal/domain/models"
	"github.com/customsflow/agent-service/internal/pkg/encryption"
)

// DefaultCacheTTL is the TTL for repopulated cache entries.
const DefaultCacheTTL = 5 * time.Minute

// Store owns conversation and message persistence. Reads go cache-first and
// repopulate on miss; writes go to the durable store synchronously and then
// invalidate the affected cache entries, so a crash between the two steps can
// never serve stale data.
type Store interface {
	// GetConversation loads a conversation owned by the user. Returns a
	// typed not-found error when it does not exist or belongs to another user.
	GetConversation(ctx context.Context, userID int64, conversationID string) (*models.Conversation, error)

	// CreateConversation creates a conversation for the user, titling it
	// from the first message.
	CreateConversation(ctx context.Context, userID int64, firstMessage string) (*models.Conversation, error)

	// AppendTurn durably appends one completed turn (user message followed by
	// the assistant message). Appends are serialized per conversation.
	AppendTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *models.Message) error

	// RecentContext returns the trailing window of messages in ascending
	// timestamp order.
	RecentContext(ctx context.Context, conversationID string, limit int) ([]models.Message, error)

	// ListMessages returns a conversation's messages in ascending timestamp
	// order with pagination.
	ListMessages(ctx context.Context, conversationID string, limit, offset int64) ([]*models.Message, error)

	// ListConversations returns a user's conversations, most recently
	// updated first.
	ListConversations(ctx context.Context, userID int64, limit, offset int64) ([]*models.Conversation, error)
}

// Config holds the dependencies for the store.
type Config struct {
	CacheClient cache.Client
	DocDBClient docdb.Client
	TTL         time.Duration
	// Sealer encrypts cached payloads at rest. Nil stores them unsealed.
	Sealer encryption.Sealer
}

// store implements the Store interface.
type store struct {
	cache  cache.Client
	docdb  docdb.Client
	ttl    time.Duration
	sealer encryption.Sealer
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewStore creates a new conversation store.
func NewStore(cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.CacheClient == nil {
		return nil, fmt.Errorf("cache client is required")
	}
	if cfg.DocDBClient == nil {
		return nil, fmt.Errorf("docdb client is required")
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	sealer := cfg.Sealer
	if sealer == nil {
		sealer = encryption.NewPassthroughSealer()
	}

	return &store{
		cache:  cfg.CacheClient,
		docdb:  cfg.DocDBClient,
		ttl:    ttl,
		sealer: sealer,
		logger: log.Logger,
		locks:  make(map[string]*lockEntry),
	}, nil
}

// GetConversation loads a conversation cache-first.
func (s *store) GetConversation(ctx context.Context, userID int64, conversationID string) (*models.Conversation, error) {
	key := SessionKey(userID, conversationID)

	if data := s.cacheGet(ctx, key); data != nil {
		var conv models.Conversation
		if err := json.Unmarshal(data, &conv); err == nil {
			return &conv, nil
		}
		// Corrupted entry: drop it and fall through to the durable store.
		_, _ = s.cache.Delete(ctx, key)
	}

	conv, err := s.docdb.Conversations().Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil || conv.UserID != userID {
		return nil, domainerrors.NewNotFoundError("conversation", conversationID)
	}

	s.cacheSet(ctx, key, conv)
	return conv, nil
}

// CreateConversation creates a conversation for the user.
func (s *store) CreateConversation(ctx context.Context, userID int64, firstMessage string) (*models.Conversation, error) {
	conv := models.NewConversation(uuid.NewString(), userID, firstMessage)
	if err := s.docdb.Conversations().Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// AppendTurn durably appends a completed turn and invalidates cache entries.
// Message writes are idempotent by id, so a caller may retry a failed append
// with the same messages: writes that already landed are replaced in place
// and the conversation counters are only bumped by the attempt that gets
// the whole turn through.
func (s *store) AppendTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *models.Message) error {
	unlock := s.lockConversation(conversationID)
	defer unlock()

	// Messages within a conversation are totally ordered by timestamp; the
	// assistant message must sort strictly after the user message.
	if !assistantMsg.CreatedAt.After(userMsg.CreatedAt) {
		assistantMsg.CreatedAt = userMsg.CreatedAt.Add(time.Millisecond)
	}

	if err := s.docdb.Messages().AddMany(ctx, []*models.Message{userMsg, assistantMsg}); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}

	update := &docdb.TurnUpdate{
		MessageDelta: 2,
		LastAgent:    assistantMsg.AgentUsed,
		UpdatedAt:    assistantMsg.CreatedAt,
	}
	if err := s.docdb.Conversations().ApplyTurn(ctx, conversationID, update); err != nil {
		return fmt.Errorf("failed to update conversation after append: %w", err)
	}

	// Invalidate, don't overwrite: the next read misses and repopulates.
	s.invalidate(ctx, conversationID)
	return nil
}

// RecentContext returns the trailing context window cache-first.
func (s *store) RecentContext(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	key := ContextKey(conversationID, limit)

	if data := s.cacheGet(ctx, key); data != nil {
		var window []models.Message
		if err := json.Unmarshal(data, &window); err == nil {
			return window, nil
		}
		_, _ = s.cache.Delete(ctx, key)
	}

	// Fetch the trailing messages newest-first, then reverse into
	// chronological order.
	messages, err := s.docdb.Messages().List(ctx, &docdb.ListMessagesOptions{
		ConversationID: conversationID,
		Limit:          int64(limit),
		OrderBy:        docdb.SortOrderDesc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent context: %w", err)
	}

	window := make([]models.Message, len(messages))
	for i, m := range messages {
		window[len(messages)-1-i] = *m
	}

	s.cacheSet(ctx, key, window)
	return window, nil
}

// ListMessages returns a conversation's messages in ascending order.
func (s *store) ListMessages(ctx context.Context, conversationID string, limit, offset int64) ([]*models.Message, error) {
	messages, err := s.docdb.Messages().List(ctx, &docdb.ListMessagesOptions{
		ConversationID: conversationID,
		Limit:          limit,
		Skip:           offset,
		OrderBy:        docdb.SortOrderAsc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// ListConversations returns a user's conversations, most recent first.
func (s *store) ListConversations(ctx context.Context, userID int64, limit, offset int64) ([]*models.Conversation, error) {
	conversations, err := s.docdb.Conversations().ListByUser(ctx, &docdb.ListConversationsOptions{
		UserID: userID,
		Limit:  limit,
		Skip:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// lockConversation acquires the per-conversation append lock and returns the
// release function. Entries are freed once no goroutine holds or waits on them.
func (s *store) lockConversation(id string) func() {
	s.mu.Lock()
	entry, ok := s.locks[id]
	if !ok {
		entry = &lockEntry{}
		s.locks[id] = entry
	}
	entry.refs++
	s.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		s.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

// cacheGet reads a key, absorbing cache failures as misses. An unopenable
// sealed payload is dropped and treated as a miss.
func (s *store) cacheGet(ctx context.Context, key string) []byte {
	sealed, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed; falling back to durable store")
		return nil
	}
	if sealed == nil {
		return nil
	}
	data, err := s.sealer.Open(sealed)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache entry unreadable; dropping")
		_, _ = s.cache.Delete(ctx, key)
		return nil
	}
	return data
}

// cacheSet repopulates a key with TTL, absorbing cache failures.
func (s *store) cacheSet(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache payload sealing failed")
		return
	}
	if err := s.cache.Set(ctx, key, sealed, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// invalidate removes every cache entry affected by a conversation mutation.
func (s *store) invalidate(ctx context.Context, conversationID string) {
	for _, pattern := range []string{sessionPattern(conversationID), contextPattern(conversationID)} {
		if _, err := s.cache.DeletePattern(ctx, pattern); err != nil {
			s.logger.Warn().Err(err).Str("pattern", pattern).Msg("cache invalidation failed")
		}
	}
}
