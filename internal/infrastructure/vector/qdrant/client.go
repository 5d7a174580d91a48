// Package qdrant provides the Qdrant vector search client.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	domainerrors "github.com/customsflow/agent-service/internal/domain/errors"
	"github.com/customsflow/agent-service/internal/core/vector"
)

// Config holds the configuration for the Qdrant client.
type Config struct {
	BaseURL        string
	APIKey         string
	ScoreThreshold float64
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// Client implements vector.Retriever against the Qdrant REST API.
type Client struct {
	baseURL        string
	apiKey         string
	scoreThreshold float64
	httpClient     *http.Client
	embedder       vector.Embedder
	outbound       *semaphore.Weighted
	logger         zerolog.Logger
}

// NewClient creates a new Qdrant client. The outbound semaphore is shared
// with other upstream clients to bound concurrent backend calls process-wide.
func NewClient(cfg *Config, embedder vector.Embedder, outbound *semaphore.Weighted) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		scoreThreshold: cfg.ScoreThreshold,
		httpClient:     httpClient,
		embedder:       embedder,
		outbound:       outbound,
		logger:         log.Logger,
	}, nil
}

type searchRequest struct {
	Vector         []float32 `json:"vector"`
	Limit          int       `json:"limit"`
	WithPayload    bool      `json:"with_payload"`
	ScoreThreshold float64   `json:"score_threshold,omitempty"`
}

type searchResponse struct {
	Result []struct {
		ID      interface{}            `json:"id"`
		Score   float64                `json:"score"`
		Payload map[string]interface{} `json:"payload"`
	} `json:"result"`
}

type collectionInfoResponse struct {
	Result struct {
		PointsCount int64 `json:"points_count"`
	} `json:"result"`
}

// Search embeds the query and returns the top-k scored matches from the named
// collection. Zero matches is a legitimate outcome, not an error; the client
// logs the embedding dimension, target collection, and stored point count so
// an empty result set can be told apart from a collection mismatch.
func (c *Client) Search(ctx context.Context, collection, query string, topK int) ([]vector.SearchResult, error) {
	// The embedder takes its own slot on the shared outbound semaphore, so
	// embed first and acquire the search slot afterwards; a Search must never
	// hold two slots at once.
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	if c.outbound != nil {
		if err := c.outbound.Acquire(ctx, 1); err != nil {
			return nil, domainerrors.NewUpstreamTimeoutError("vector search slot acquisition", err)
		}
		defer c.outbound.Release(1)
	}

	body, err := json.Marshal(searchRequest{
		Vector:         embedding,
		Limit:          topK,
		WithPayload:    true,
		ScoreThreshold: c.scoreThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, domainerrors.NewUpstreamTimeoutError("vector search", err)
		}
		return nil, fmt.Errorf("failed to execute search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vector search returned status %d for collection %s", resp.StatusCode, collection)
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]vector.SearchResult, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		results = append(results, vector.SearchResult{
			ID:      fmt.Sprintf("%v", r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}

	c.logger.Debug().
		Str("collection", collection).
		Int("embedding_dim", len(embedding)).
		Int("matches", len(results)).
		Msg("vector search completed")

	if len(results) == 0 {
		// Empty results do not always mean "no data": a collection-name or
		// embedding-model mismatch between write-time and query-time produces
		// the same outcome. Surface the stored point count for diagnosis.
		count, countErr := c.pointsCount(ctx, collection)
		ev := c.logger.Warn().
			Str("collection", collection).
			Int("embedding_dim", len(embedding))
		if countErr != nil {
			ev.AnErr("count_error", countErr)
		} else {
			ev.Int64("stored_points", count)
		}
		ev.Msg("vector search returned zero matches")
	}

	return results, nil
}

// pointsCount returns the number of points stored in the collection.
func (c *Client) pointsCount(ctx context.Context, collection string) (int64, error) {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("collection info returned status %d", resp.StatusCode)
	}

	var info collectionInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return 0, fmt.Errorf("failed to decode collection info: %w", err)
	}

	return info.Result.PointsCount, nil
}

// Ping checks if the vector backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vector backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vector backend returned status %d", resp.StatusCode)
	}
	return nil
}

// setHeaders sets the required headers for Qdrant API requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
