// Package router scores incoming messages and selects the target agents.
package router

import (
	"fmt"
	"strings"

	domainerrors "github.com/customsflow/agent-service/internal/domain/errors"
	"github.com/customsflow/agent-service/internal/domain/models"
)

// Config holds the router configuration.
type Config struct {
	// TieMargin is the score gap under which the runner-up agent is also
	// targeted (multi-agent turn).
	TieMargin float64
	// StickyBias is added to the score of the agent that answered the
	// previous turn in the inspected history window.
	StickyBias float64
	// HistoryWindow is how many trailing history messages are inspected for
	// the sticky bias.
	HistoryWindow int
	// Keyword overrides; an empty list keeps the built-in set.
	LawKeywords          []string
	TradeKeywords        []string
	ConsultationKeywords []string
}

// Engine routes messages to agents. Routing is a pure function over the
// message, the history, and the static configuration: identical inputs always
// produce an identical decision.
type Engine struct {
	cfg      Config
	keywords map[models.AgentType][]string
}

// New creates a routing engine.
func New(cfg Config) *Engine {
	if cfg.TieMargin <= 0 {
		cfg.TieMargin = 0.15
	}
	if cfg.StickyBias <= 0 {
		cfg.StickyBias = 0.1
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}

	keywords := map[models.AgentType][]string{
		models.AgentLaw:             lowercaseAll(orDefault(cfg.LawKeywords, models.AgentLaw)),
		models.AgentTradeRegulation: lowercaseAll(orDefault(cfg.TradeKeywords, models.AgentTradeRegulation)),
		models.AgentConsultation:    lowercaseAll(orDefault(cfg.ConsultationKeywords, models.AgentConsultation)),
	}

	return &Engine{cfg: cfg, keywords: keywords}
}

// Route classifies the message and selects one primary agent, plus a
// secondary agent when two domain scores land within the tie margin. It never
// returns zero agents: total ambiguity falls back to Consultation with a
// low-confidence rationale. An empty message is rejected before routing.
func (e *Engine) Route(message string, history []models.Message) (*models.RoutingDecision, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil, domainerrors.NewValidationError("message must not be empty", "")
	}

	lower := strings.ToLower(trimmed)

	hits := make(map[models.AgentType]int, len(models.AgentTypes))
	scores := make(map[models.AgentType]float64, len(models.AgentTypes))
	for _, t := range models.AgentTypes {
		n := countHits(lower, e.keywords[t])
		hits[t] = n
		scores[t] = minf(1, float64(n)*0.25)
	}

	sticky := e.stickyAgent(history)
	if sticky != "" {
		scores[sticky] += e.cfg.StickyBias
	}

	// Deterministic selection: iterate the fixed variant order so equal
	// scores always resolve the same way.
	var primary, secondary models.AgentType
	var best, second float64
	for _, t := range models.AgentTypes {
		s := scores[t]
		if primary == "" || s > best {
			secondary, second = primary, best
			primary, best = t, s
		} else if secondary == "" || s > second {
			secondary, second = t, s
		}
	}

	complexity := e.complexity(lower, hits)

	if best == 0 {
		return &models.RoutingDecision{
			SchemaVersion: models.RoutingSchemaVersion,
			SelectedAgent: models.AgentConsultation,
			Complexity:    complexity,
			Reasoning:     "no domain keywords matched; defaulting to consultation with low confidence",
		}, nil
	}

	decision := &models.RoutingDecision{
		SchemaVersion: models.RoutingSchemaVersion,
		SelectedAgent: primary,
		Complexity:    complexity,
	}

	multiAgent := second > 0 && best-second <= e.cfg.TieMargin
	if multiAgent {
		decision.RequiresMultipleAgents = true
		decision.SecondaryAgent = secondary
	}

	decision.Reasoning = e.reasoning(primary, secondary, best, second, hits, sticky, multiAgent)
	return decision, nil
}

// complexity estimates cross-domain reasoning need in [0,1] from message
// length, domain keyword spread, and multi-clause markers.
func (e *Engine) complexity(lower string, hits map[models.AgentType]int) float64 {
	length := float64(len([]rune(lower)))
	lengthFactor := minf(1, length/240)

	domains := 0
	for _, n := range hits {
		if n > 0 {
			domains++
		}
	}
	spreadFactor := 0.0
	if domains > 1 {
		spreadFactor = float64(domains-1) / 2
	}

	conjunctionFactor := 0.0
	for _, marker := range conjunctionMarkers {
		if strings.Contains(lower, marker) {
			conjunctionFactor = 1
			break
		}
	}

	c := 0.15*lengthFactor + 0.55*spreadFactor + 0.2*conjunctionFactor
	return minf(1, c)
}

// stickyAgent returns the agent that answered most recently within the
// history window, or empty when the history anchors nothing.
func (e *Engine) stickyAgent(history []models.Message) models.AgentType {
	start := len(history) - e.cfg.HistoryWindow
	if start < 0 {
		start = 0
	}
	for i := len(history) - 1; i >= start; i-- {
		m := history[i]
		if m.Role == models.RoleAssistant && m.AgentUsed.Valid() {
			return m.AgentUsed
		}
	}
	return ""
}

func (e *Engine) reasoning(primary, secondary models.AgentType, best, second float64, hits map[models.AgentType]int, sticky models.AgentType, multiAgent bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "selected %s (score %.2f, %d keyword hits)", primary, best, hits[primary])
	if sticky != "" {
		fmt.Fprintf(&b, "; sticky bias applied to %s", sticky)
	}
	if multiAgent {
		fmt.Fprintf(&b, "; %s within tie margin (score %.2f), targeting both", secondary, second)
	}
	return b.String()
}

func countHits(lower string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

func orDefault(override []string, t models.AgentType) []string {
	if len(override) > 0 {
		return override
	}
	return defaultKeywords(t)
}

func lowercaseAll(keywords []string) []string {
	out := make([]string, len(keywords))
	for i, kw := range keywords {
		out[i] = strings.ToLower(kw)
	}
	return out
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
