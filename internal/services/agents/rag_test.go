// Package agents_test provides unit tests for the specialized agents.
package agents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customsflow/agent-service/internal/core/vector"
	"github.com/customsflow/agent-service/internal/domain/models"
	"github.com/customsflow/agent-service/internal/services/agents"
	"github.com/customsflow/agent-service/internal/services/llm"
)

// fakeRetriever returns canned search results per collection.
type fakeRetriever struct {
	results map[string][]vector.SearchResult
	err     error
	calls   []string
}

func (f *fakeRetriever) Search(ctx context.Context, collection, query string, topK int) ([]vector.SearchResult, error) {
	f.calls = append(f.calls, collection)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[collection], nil
}

func (f *fakeRetriever) Ping(ctx context.Context) error { return nil }

// fakeGenerator echoes a canned completion and records the last request.
type fakeGenerator struct {
	content string
	err     error
	lastReq *llm.CompletionRequest
}

func (f *fakeGenerator) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content, Model: "test-model"}, nil
}

func searchResult(title string, score float64) vector.SearchResult {
	return vector.SearchResult{
		ID:    title,
		Score: score,
		Payload: map[string]interface{}{
			"source": "customs_law.pdf",
			"title":  title,
			"text":   title + " 본문",
		},
	}
}

func newLawAgent(t *testing.T, retriever *fakeRetriever, generator *fakeGenerator) agents.Agent {
	t.Helper()

	agent, err := agents.NewLawAgent(agents.Deps{
		Retriever:  retriever,
		Generator:  generator,
		Collection: "customs_law",
		TopK:       3,
	})
	require.NoError(t, err)
	return agent
}

func TestAgent_AnswerUsesRetrievedDocuments(t *testing.T) {
	retriever := &fakeRetriever{results: map[string][]vector.SearchResult{
		"customs_law": {
			searchResult("관세법 제1조", 0.9),
			searchResult("관세법 제2조", 0.7),
		},
	}}
	generator := &fakeGenerator{content: "관세법 제1조는 목적 조항입니다."}
	agent := newLawAgent(t, retriever, generator)

	answer, err := agent.Answer(context.Background(), "관세법 제1조에 대해 알려주세요", nil)

	require.NoError(t, err)
	assert.Equal(t, "관세법 제1조는 목적 조항입니다.", answer.Content)
	assert.False(t, answer.Degraded)
	assert.Len(t, answer.References, 2)
	assert.InDelta(t, 0.8, answer.Confidence, 0.0001)
	assert.Equal(t, []string{"customs_law"}, retriever.calls)

	// The prompt must carry the retrieved excerpts and the question.
	require.NotNil(t, generator.lastReq)
	prompt := generator.lastReq.Messages[len(generator.lastReq.Messages)-1].Content
	assert.Contains(t, prompt, "관세법 제1조")
	assert.Contains(t, prompt, "질문: 관세법 제1조에 대해 알려주세요")
}

func TestAgent_ZeroMatchesReturnsDisclaimer(t *testing.T) {
	retriever := &fakeRetriever{results: map[string][]vector.SearchResult{}}
	generator := &fakeGenerator{content: "절대 호출되면 안 됨"}
	agent := newLawAgent(t, retriever, generator)

	answer, err := agent.Answer(context.Background(), "존재하지 않는 주제", nil)

	require.NoError(t, err)
	assert.True(t, answer.Degraded)
	assert.Contains(t, answer.Content, "찾지 못했습니다")
	assert.Equal(t, 0.1, answer.Confidence)
	assert.Empty(t, answer.References)
	// Generation is skipped entirely.
	assert.Nil(t, generator.lastReq)
}

func TestAgent_HistoryIncludedInGeneration(t *testing.T) {
	retriever := &fakeRetriever{results: map[string][]vector.SearchResult{
		"customs_law": {searchResult("관세법 제1조", 0.9)},
	}}
	generator := &fakeGenerator{content: "답변"}
	agent := newLawAgent(t, retriever, generator)

	history := []models.Message{
		{Role: models.RoleUser, Content: "이전 질문"},
		{Role: models.RoleAssistant, Content: "이전 답변"},
		{Role: models.RoleSystem, Content: "시스템 메시지는 제외"},
	}

	_, err := agent.Answer(context.Background(), "후속 질문", history)

	require.NoError(t, err)
	require.NotNil(t, generator.lastReq)
	require.Len(t, generator.lastReq.Messages, 3)
	assert.Equal(t, "이전 질문", generator.lastReq.Messages[0].Content)
	assert.Equal(t, "이전 답변", generator.lastReq.Messages[1].Content)
}

func TestRegistry_ClosedVariantSet(t *testing.T) {
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{}

	registry, err := agents.NewRegistry(&agents.RegistryConfig{
		Retriever: retriever,
		Generator: generator,
		Collections: map[models.AgentType]string{
			models.AgentLaw:             "customs_law",
			models.AgentTradeRegulation: "trade_regulation",
			models.AgentConsultation:    "consultation_cases",
		},
	})
	require.NoError(t, err)

	for _, agentType := range models.AgentTypes {
		agent, err := registry.Get(agentType)
		require.NoError(t, err)
		assert.Equal(t, agentType, agent.Type())
	}

	_, err = registry.Get(models.AgentType("unknown"))
	assert.Error(t, err)
}

func TestAgent_CollectionsAreDistinct(t *testing.T) {
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{}

	registry, err := agents.NewRegistry(&agents.RegistryConfig{
		Retriever: retriever,
		Generator: generator,
		Collections: map[models.AgentType]string{
			models.AgentLaw:             "customs_law",
			models.AgentTradeRegulation: "trade_regulation",
			models.AgentConsultation:    "consultation_cases",
		},
	})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, agentType := range models.AgentTypes {
		agent, err := registry.Get(agentType)
		require.NoError(t, err)
		assert.False(t, seen[agent.Collection()])
		seen[agent.Collection()] = true
	}
}
