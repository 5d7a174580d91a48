// Package progress fans orchestration progress events out to stream
// subscribers.
package progress

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/customsflow/agent-service/internal/domain/models"
)

// DefaultQueueSize is the per-turn event buffer size.
const DefaultQueueSize = 32

// Broker maintains one append-only event queue per active turn and forwards
// events to at most one subscribing client. Subscribing late replays the
// events published so far; unsubscribing frees the forwarding channel but
// never cancels the underlying turn.
type Broker struct {
	mu        sync.Mutex
	turns     map[string]*turn
	queueSize int
	logger    zerolog.Logger
}

type turn struct {
	events []models.ProgressEvent
	sub    *Subscription
}

// Subscription is one client's live view of a turn's progress stream.
type Subscription struct {
	broker *Broker
	convID string

	mu     sync.Mutex
	ch     chan models.ProgressEvent
	closed bool
}

// Events returns the channel of progress events. It is closed when the turn
// reaches a terminal step or the subscription is closed.
func (s *Subscription) Events() <-chan models.ProgressEvent {
	return s.ch
}

// Close detaches the subscriber and closes the event channel. The turn keeps
// running; its queue stays available for a later reconnect.
func (s *Subscription) Close() {
	s.broker.detach(s)
	s.shutdown()
}

// send forwards one event without blocking the publisher. Events for a slow
// subscriber are dropped once its buffer is full; the append-only turn queue
// still holds them for replay.
func (s *Subscription) send(ev models.ProgressEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// shutdown closes the event channel exactly once.
func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// NewBroker creates a progress broker.
func NewBroker(queueSize int) *Broker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broker{
		turns:     make(map[string]*turn),
		queueSize: queueSize,
		logger:    log.Logger,
	}
}

// OpenTurn allocates the event queue for a new turn, replacing any stale
// queue left by a previous turn on the same conversation.
func (b *Broker) OpenTurn(conversationID string) {
	b.mu.Lock()
	old, ok := b.turns[conversationID]
	b.turns[conversationID] = &turn{}
	b.mu.Unlock()

	if ok && old.sub != nil {
		old.sub.shutdown()
	}
}

// Publish appends the event to its turn's queue and forwards it to the
// subscriber, if any. A terminal step closes the stream and frees the queue.
func (b *Broker) Publish(ev models.ProgressEvent) {
	b.mu.Lock()
	t, ok := b.turns[ev.ConversationID]
	if !ok {
		b.mu.Unlock()
		return
	}

	t.events = append(t.events, ev)
	sub := t.sub

	terminal := ev.Step.Terminal()
	if terminal {
		delete(b.turns, ev.ConversationID)
	}
	b.mu.Unlock()

	if sub == nil {
		return
	}
	if !sub.send(ev) {
		b.logger.Warn().
			Str("conversation_id", ev.ConversationID).
			Str("step", string(ev.Step)).
			Msg("progress event not forwarded to subscriber")
	}
	if terminal {
		sub.shutdown()
	}
}

// Subscribe attaches a client to the turn's event stream, replaying the
// events already published. Returns false when the conversation has no
// active turn.
func (b *Broker) Subscribe(conversationID string) (*Subscription, bool) {
	b.mu.Lock()
	t, ok := b.turns[conversationID]
	if !ok {
		b.mu.Unlock()
		return nil, false
	}

	// One subscriber per turn: a reconnect replaces the previous stream.
	replaced := t.sub

	sub := &Subscription{
		broker: b,
		convID: conversationID,
		ch:     make(chan models.ProgressEvent, b.queueSize+len(t.events)),
	}
	for _, ev := range t.events {
		sub.ch <- ev
	}
	t.sub = sub
	b.mu.Unlock()

	if replaced != nil {
		replaced.shutdown()
	}
	return sub, true
}

// CloseTurn frees an abandoned turn queue without publishing a terminal
// event. Normal completion frees the queue through Publish instead.
func (b *Broker) CloseTurn(conversationID string) {
	b.mu.Lock()
	t, ok := b.turns[conversationID]
	if ok {
		delete(b.turns, conversationID)
	}
	b.mu.Unlock()

	if ok && t.sub != nil {
		t.sub.shutdown()
	}
}

// ActiveTurns reports how many turns currently hold a queue.
func (b *Broker) ActiveTurns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.turns)
}

// detach removes the subscription from its turn, if still attached.
func (b *Broker) detach(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.turns[sub.convID]; ok && t.sub == sub {
		t.sub = nil
	}
}
