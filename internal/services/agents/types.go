// Package agents provides the specialized retrieval-augmented agents.
package agents

import (
	"context"

	"github.com/customsflow/agent-service/internal/domain/models"
	"github.com/customsflow/agent-service/internal/services/llm"
)

// Answer is the result of one agent's retrieve-and-answer call.
type Answer struct {
	// Content is the generated answer text.
	Content string
	// Confidence is the agent's confidence in [0,1], derived from retrieval
	// similarity scores.
	Confidence float64
	// Degraded marks answers produced without generation (zero retrieval
	// matches) or after an exhausted upstream retry.
	Degraded bool
	// DegradedReason explains why the answer is degraded.
	DegradedReason string
	// References are the documents the answer was conditioned on.
	References []models.DocumentReference
}

// Generator produces text conditioned on a prompt and context.
type Generator interface {
	Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Agent is the contract every specialized agent implements. The variant set
// is closed: Law, TradeRegulation, and Consultation.
//
// Retrieve and Generate expose the two phases separately so the orchestrator
// can report distinct retrieval and generation progress; Answer composes them
// for callers that want the full retrieve-and-answer contract.
type Agent interface {
	// Type identifies the agent variant.
	Type() models.AgentType

	// Collection names the embedding collection this agent queries.
	Collection() string

	// Retrieve queries the agent's document collection. Zero matches is a
	// legitimate outcome and returns an empty slice.
	Retrieve(ctx context.Context, query string) ([]models.DocumentReference, error)

	// Generate produces an answer conditioned on the retrieved references.
	// With no references it returns a clearly-labeled disclaimer answer
	// instead of fabricating content.
	Generate(ctx context.Context, query string, refs []models.DocumentReference, history []models.Message) (*Answer, error)

	// Answer runs Retrieve then Generate.
	Answer(ctx context.Context, query string, history []models.Message) (*Answer, error)
}
