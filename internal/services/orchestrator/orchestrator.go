// Package orchestrator drives a conversation turn through its processing
// pipeline: routing, retrieval, generation, merging and persistence, emitting
// one progress event per stage transition.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/customsflow/agent-service/internal/domain/errors"
	"github.com/customsflow/agent-service/internal/domain/models"
	"github.com/customsflow/agent-service/internal/services/agents"
	"github.com/customsflow/agent-service/internal/services/conversation"
	"github.com/customsflow/agent-service/internal/services/progress"
	"github.com/customsflow/agent-service/internal/services/router"
)

// Section headers prefixed to each agent's part of a merged multi-agent answer.
var agentHeaders = map[models.AgentType]string{
	models.AgentLaw:             "[관세법 답변]",
	models.AgentTradeRegulation: "[무역 규제 답변]",
	models.AgentConsultation:    "[상담 사례 답변]",
}

// Config wires the orchestrator's collaborators and timing policy.
type Config struct {
	Store  conversation.Store
	Router *router.Engine
	Agents *agents.Registry
	Broker *progress.Broker

	// RetrievalTimeout bounds one vector search call.
	RetrievalTimeout time.Duration
	// RetryBackoff is the pause before the single retry of a timed-out
	// upstream call.
	RetryBackoff time.Duration
	// ContextWindow is how many recent messages are loaded as agent context.
	ContextWindow int
}

// TurnRequest is one user message to process.
type TurnRequest struct {
	UserID         int64
	ConversationID string
	Message        string
	// SkipHistory processes the turn without conversation context: no sticky
	// routing bias and no history-conditioned generation.
	SkipHistory bool
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	Conversation      *models.Conversation
	UserMessage       *models.Message
	AssistantMessage  *models.Message
	IsNewConversation bool
}

// Service processes conversation turns.
type Service struct {
	store            conversation.Store
	router           *router.Engine
	agents           *agents.Registry
	broker           *progress.Broker
	retrievalTimeout time.Duration
	retryBackoff     time.Duration
	contextWindow    int
	logger           zerolog.Logger
}

// New creates the turn orchestrator.
func New(cfg *Config) (*Service, error) {
	if cfg.Store == nil || cfg.Router == nil || cfg.Agents == nil || cfg.Broker == nil {
		return nil, fmt.Errorf("orchestrator requires store, router, agents and broker")
	}

	retrievalTimeout := cfg.RetrievalTimeout
	if retrievalTimeout <= 0 {
		retrievalTimeout = 10 * time.Second
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = 500 * time.Millisecond
	}
	contextWindow := cfg.ContextWindow
	if contextWindow <= 0 {
		contextWindow = 10
	}

	return &Service{
		store:            cfg.Store,
		router:           cfg.Router,
		agents:           cfg.Agents,
		broker:           cfg.Broker,
		retrievalTimeout: retrievalTimeout,
		retryBackoff:     retryBackoff,
		contextWindow:    contextWindow,
		logger:           log.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// agentOutcome is one agent's progress through the retrieval and generation
// stages of a turn.
type agentOutcome struct {
	agent  agents.Agent
	refs   []models.DocumentReference
	answer *agents.Answer
	err    error
}

// ProcessTurn runs one user message through the full pipeline. The caller's
// context bounds the whole turn; client disconnects must not be propagated
// into it.
func (s *Service) ProcessTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return nil, errors.NewValidationError("message must not be empty", "")
	}
	if req.UserID <= 0 {
		return nil, errors.NewValidationError("user id must be positive", "")
	}

	conv, isNew, err := s.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	s.broker.OpenTurn(conv.ID)
	s.emit(conv.ID, models.StepReceived, "요청을 접수했습니다", "")

	history, err := s.loadHistory(ctx, conv.ID, isNew || req.SkipHistory)
	if err != nil {
		return nil, s.failTurn(conv.ID, err)
	}

	s.emit(conv.ID, models.StepRouting, "질문을 분석하고 있습니다", "")
	decision, err := s.router.Route(req.Message, history)
	if err != nil {
		return nil, s.failTurn(conv.ID, err)
	}

	targets := decision.Targets()
	outcomes := make([]*agentOutcome, 0, len(targets))
	for _, t := range targets {
		agent, err := s.agents.Get(t)
		if err != nil {
			return nil, s.failTurn(conv.ID, err)
		}
		outcomes = append(outcomes, &agentOutcome{agent: agent})
	}

	s.emit(conv.ID, models.StepRetrieving, "관련 문서를 검색하고 있습니다",
		fmt.Sprintf("agents=%s", joinTargets(targets)))
	s.retrieveAll(ctx, req.Message, outcomes)

	s.emit(conv.ID, models.StepGenerating, "답변을 생성하고 있습니다", "")
	s.generateAll(ctx, req.Message, history, outcomes)

	answered := 0
	for _, o := range outcomes {
		if o.err == nil && o.answer != nil {
			answered++
		}
	}
	if answered == 0 {
		first := outcomes[0].err
		if first == nil {
			first = errors.NewUpstreamTimeoutError("generation", nil)
		}
		return nil, s.failTurn(conv.ID, first)
	}

	content, references := s.merge(conv.ID, decision, outcomes)

	userMsg := models.NewMessage(uuid.NewString(), conv.ID, models.RoleUser, req.Message)
	assistantMsg := models.NewMessage(uuid.NewString(), conv.ID, models.RoleAssistant, content)
	assistantMsg.AgentUsed = decision.SelectedAgent
	assistantMsg.RoutingInfo = decision
	assistantMsg.References = references
	assistantMsg.Metadata = s.answerMetadata(outcomes)

	s.emit(conv.ID, models.StepPersisting, "대화를 저장하고 있습니다", "")
	if err := s.persistTurn(ctx, conv.ID, userMsg, assistantMsg); err != nil {
		return nil, s.failTurn(conv.ID, err)
	}
	conv.MessageCount += 2
	conv.LastAgent = decision.SelectedAgent
	conv.UpdatedAt = assistantMsg.CreatedAt

	s.emit(conv.ID, models.StepCompleted, "답변이 완료되었습니다", "")

	s.logger.Info().
		Str("conversation_id", conv.ID).
		Int64("user_id", req.UserID).
		Str("agent", string(decision.SelectedAgent)).
		Bool("multi_agent", decision.RequiresMultipleAgents).
		Int("answered", answered).
		Msg("turn completed")

	return &TurnResult{
		Conversation:      conv,
		UserMessage:       userMsg,
		AssistantMessage:  assistantMsg,
		IsNewConversation: isNew,
	}, nil
}

// resolveConversation loads an existing conversation or creates a new one
// when no conversation id was supplied.
func (s *Service) resolveConversation(ctx context.Context, req *TurnRequest) (*models.Conversation, bool, error) {
	if req.ConversationID == "" {
		conv, err := s.store.CreateConversation(ctx, req.UserID, req.Message)
		if err != nil {
			return nil, false, err
		}
		return conv, true, nil
	}

	conv, err := s.store.GetConversation(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return nil, false, err
	}
	return conv, false, nil
}

// loadHistory fetches recent context for routing and generation. A brand-new
// conversation has none, and a caller may opt out of it entirely.
func (s *Service) loadHistory(ctx context.Context, conversationID string, skip bool) ([]models.Message, error) {
	if skip {
		return nil, nil
	}
	return s.store.RecentContext(ctx, conversationID, s.contextWindow)
}

// retrieveAll runs document retrieval for every target agent concurrently.
// A timed-out search is retried once after the configured backoff.
func (s *Service) retrieveAll(ctx context.Context, query string, outcomes []*agentOutcome) {
	var wg sync.WaitGroup
	for _, o := range outcomes {
		wg.Add(1)
		go func(o *agentOutcome) {
			defer wg.Done()
			o.refs, o.err = s.retrieveOnce(ctx, o.agent, query)
			if o.err != nil {
				s.logger.Warn().
					Err(o.err).
					Str("agent", string(o.agent.Type())).
					Msg("retrieval failed")
			}
		}(o)
	}
	wg.Wait()
}

func (s *Service) retrieveOnce(ctx context.Context, agent agents.Agent, query string) ([]models.DocumentReference, error) {
	do := func() ([]models.DocumentReference, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.retrievalTimeout)
		defer cancel()
		return agent.Retrieve(callCtx, query)
	}

	refs, err := do()
	if err == nil || !errors.IsUpstreamTimeout(err) {
		return refs, err
	}
	if !s.backoff(ctx) {
		return nil, err
	}
	return do()
}

// generateAll runs answer generation for every agent whose retrieval
// succeeded. A timed-out generation is retried once.
func (s *Service) generateAll(ctx context.Context, query string, history []models.Message, outcomes []*agentOutcome) {
	var wg sync.WaitGroup
	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		wg.Add(1)
		go func(o *agentOutcome) {
			defer wg.Done()
			o.answer, o.err = s.generateOnce(ctx, o, query, history)
			if o.err != nil {
				s.logger.Warn().
					Err(o.err).
					Str("agent", string(o.agent.Type())).
					Msg("generation failed")
			}
		}(o)
	}
	wg.Wait()
}

func (s *Service) generateOnce(ctx context.Context, o *agentOutcome, query string, history []models.Message) (*agents.Answer, error) {
	answer, err := o.agent.Generate(ctx, query, o.refs, history)
	if err == nil || !errors.IsUpstreamTimeout(err) {
		return answer, err
	}
	if !s.backoff(ctx) {
		return nil, err
	}
	return o.agent.Generate(ctx, query, o.refs, history)
}

// backoff sleeps for the retry backoff, honoring context cancellation.
func (s *Service) backoff(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.retryBackoff):
		return true
	}
}

// merge composes the final answer content and reference list. A single-agent
// turn passes the answer through unchanged; a multi-agent turn emits a
// merging event and joins the sections under per-agent headers. Agents that
// failed while at least one succeeded contribute a degraded placeholder.
func (s *Service) merge(conversationID string, decision *models.RoutingDecision, outcomes []*agentOutcome) (string, []models.DocumentReference) {
	if !decision.RequiresMultipleAgents {
		o := outcomes[0]
		return o.answer.Content, o.answer.References
	}

	s.emit(conversationID, models.StepMerging, "답변을 종합하고 있습니다", "")

	sections := make([]string, 0, len(outcomes))
	seen := make(map[string]bool)
	var references []models.DocumentReference

	for _, o := range outcomes {
		header := agentHeaders[o.agent.Type()]
		if o.err != nil || o.answer == nil {
			sections = append(sections,
				header+"\n일시적인 오류로 이 항목의 답변을 가져오지 못했습니다. 잠시 후 다시 시도해 주세요.")
			continue
		}
		sections = append(sections, header+"\n"+o.answer.Content)
		for _, ref := range o.answer.References {
			key := ref.Source + "|" + ref.Title
			if seen[key] {
				continue
			}
			seen[key] = true
			references = append(references, ref)
		}
	}

	return strings.Join(sections, "\n\n"), references
}

// answerMetadata collects per-agent confidence and degradation details for
// the assistant message.
func (s *Service) answerMetadata(outcomes []*agentOutcome) map[string]interface{} {
	meta := make(map[string]interface{})
	var degraded []string

	for _, o := range outcomes {
		name := string(o.agent.Type())
		if o.err != nil || o.answer == nil {
			degraded = append(degraded, name)
			continue
		}
		meta["confidence_"+name] = o.answer.Confidence
		if o.answer.Degraded {
			degraded = append(degraded, name)
		}
	}
	if len(degraded) > 0 {
		meta["degraded_agents"] = degraded
	}
	return meta
}

// persistTurn appends both turn messages, retrying once before giving up.
func (s *Service) persistTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *models.Message) error {
	err := s.store.AppendTurn(ctx, conversationID, userMsg, assistantMsg)
	if err == nil {
		return nil
	}
	if errors.IsValidationError(err) || errors.IsNotFound(err) {
		return err
	}

	s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("append failed, retrying")
	if s.backoff(ctx) {
		if err = s.store.AppendTurn(ctx, conversationID, userMsg, assistantMsg); err == nil {
			return nil
		}
	}
	return errors.NewPersistenceError("append turn", err)
}

// failTurn publishes the failed event, releasing the turn queue, and returns
// the error unchanged.
func (s *Service) failTurn(conversationID string, err error) error {
	detail := ""
	if de, ok := errors.GetDomainError(err); ok {
		detail = de.Code
	}
	s.emit(conversationID, models.StepFailed, "요청을 처리하지 못했습니다", detail)
	s.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("turn failed")
	return err
}

func (s *Service) emit(conversationID string, step models.ProgressStep, message, details string) {
	s.broker.Publish(models.NewProgressEvent(conversationID, step, message, details))
}

func joinTargets(targets []models.AgentType) string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = string(t)
	}
	return strings.Join(names, ",")
}
