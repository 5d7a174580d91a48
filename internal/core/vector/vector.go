// Package vector defines the vector retrieval interfaces.
package vector

import (
	"context"

	"github.com/customsflow/agent-service/internal/domain/models"
)

// SearchResult is one scored match returned by the vector backend.
type SearchResult struct {
	// ID is the stored point identifier.
	ID string
	// Score is the similarity score in [0,1].
	Score float64
	// Payload carries the document fields stored alongside the embedding.
	Payload map[string]interface{}
}

// Reference converts the result into a document reference for messages.
func (r SearchResult) Reference() models.DocumentReference {
	ref := models.DocumentReference{
		Source:     payloadString(r.Payload, "source"),
		Title:      payloadString(r.Payload, "title"),
		Similarity: r.Score,
		Metadata:   r.Payload,
	}
	if ref.Title == "" {
		ref.Title = ref.Source
	}
	return ref
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// Embedder produces a query embedding for similarity search.
type Embedder interface {
	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever queries a per-domain embedding collection for the top-k most
// similar documents to a text query.
type Retriever interface {
	// Search returns scored matches from the named collection. A query that
	// matches nothing returns an empty slice, not an error.
	Search(ctx context.Context, collection, query string, topK int) ([]SearchResult, error)

	// Ping checks if the vector backend is reachable.
	Ping(ctx context.Context) error
}
