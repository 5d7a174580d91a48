package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/customsflow/agent-service/internal/core/vector"
	"github.com/customsflow/agent-service/internal/domain/models"
	"github.com/customsflow/agent-service/internal/services/llm"
)

// Deps holds the shared dependencies for constructing an agent.
type Deps struct {
	Retriever vector.Retriever
	Generator Generator
	// Collection is the agent's embedding collection name.
	Collection string
	// TopK is how many documents retrieval requests.
	TopK int
	// GenerationTimeout bounds the agent's own generation call.
	GenerationTimeout time.Duration
}

// ragAgent is the shared retrieve-and-answer implementation. The three
// variants differ only in type, collection, system prompt, and disclaimer.
type ragAgent struct {
	agentType    models.AgentType
	collection   string
	systemPrompt string
	disclaimer   string
	retriever    vector.Retriever
	generator    Generator
	topK         int
	genTimeout   time.Duration
}

func newRAGAgent(agentType models.AgentType, systemPrompt, disclaimer string, deps Deps) (*ragAgent, error) {
	if deps.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if deps.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	topK := deps.TopK
	if topK <= 0 {
		topK = 5
	}
	genTimeout := deps.GenerationTimeout
	if genTimeout == 0 {
		genTimeout = 60 * time.Second
	}

	return &ragAgent{
		agentType:    agentType,
		collection:   deps.Collection,
		systemPrompt: systemPrompt,
		disclaimer:   disclaimer,
		retriever:    deps.Retriever,
		generator:    deps.Generator,
		topK:         topK,
		genTimeout:   genTimeout,
	}, nil
}

// Type identifies the agent variant.
func (a *ragAgent) Type() models.AgentType {
	return a.agentType
}

// Collection names the embedding collection this agent queries.
func (a *ragAgent) Collection() string {
	return a.collection
}

// Retrieve queries the agent's collection for documents similar to the query.
func (a *ragAgent) Retrieve(ctx context.Context, query string) ([]models.DocumentReference, error) {
	results, err := a.retriever.Search(ctx, a.collection, query, a.topK)
	if err != nil {
		return nil, err
	}

	refs := make([]models.DocumentReference, 0, len(results))
	for _, r := range results {
		refs = append(refs, r.Reference())
	}
	return refs, nil
}

// Generate produces an answer conditioned on the retrieved references. With
// no references it returns the agent's disclaimer answer without calling the
// generation backend.
func (a *ragAgent) Generate(ctx context.Context, query string, refs []models.DocumentReference, history []models.Message) (*Answer, error) {
	if len(refs) == 0 {
		return &Answer{
			Content:        a.disclaimer,
			Confidence:     0.1,
			Degraded:       true,
			DegradedReason: "no matching documents in collection " + a.collection,
			References:     []models.DocumentReference{},
		}, nil
	}

	genCtx, cancel := context.WithTimeout(ctx, a.genTimeout)
	defer cancel()

	messages := historyMessages(history)
	messages = append(messages, llm.ChatMessage{
		Role:    string(models.RoleUser),
		Content: buildPrompt(query, refs),
	})

	resp, err := a.generator.Complete(genCtx, &llm.CompletionRequest{
		SystemPrompt: a.systemPrompt,
		Messages:     messages,
		Temperature:  -1,
	})
	if err != nil {
		return nil, err
	}

	return &Answer{
		Content:    resp.Content,
		Confidence: averageSimilarity(refs),
		References: refs,
	}, nil
}

// Answer runs Retrieve then Generate.
func (a *ragAgent) Answer(ctx context.Context, query string, history []models.Message) (*Answer, error) {
	refs, err := a.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	return a.Generate(ctx, query, refs, history)
}

// buildPrompt assembles the generation prompt from the query and the
// retrieved document excerpts.
func buildPrompt(query string, refs []models.DocumentReference) string {
	var b strings.Builder
	b.WriteString("참고 문서:\n")
	for i, ref := range refs {
		fmt.Fprintf(&b, "[%d] %s", i+1, ref.Title)
		if text, ok := ref.Metadata["text"].(string); ok && text != "" {
			b.WriteString("\n")
			b.WriteString(text)
		}
		b.WriteString("\n\n")
	}
	b.WriteString("질문: ")
	b.WriteString(query)
	return b.String()
}

// historyMessages converts recent conversation context into chat messages.
func historyMessages(history []models.Message) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		messages = append(messages, llm.ChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return messages
}

func averageSimilarity(refs []models.DocumentReference) float64 {
	if len(refs) == 0 {
		return 0
	}
	var sum float64
	for _, r := range refs {
		sum += r.Similarity
	}
	avg := sum / float64(len(refs))
	if avg > 1 {
		avg = 1
	}
	return avg
}
