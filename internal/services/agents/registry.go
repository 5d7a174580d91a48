package agents

import (
	"fmt"
	"time"

	"github.com/customsflow/agent-service/internal/core/vector"
	"github.com/customsflow/agent-service/internal/domain/models"
)

// RegistryConfig holds the configuration for building the agent registry.
type RegistryConfig struct {
	Retriever vector.Retriever
	Generator Generator
	// Collections maps each agent type to its embedding collection name.
	Collections map[models.AgentType]string
	// TopK is how many documents each retrieval requests.
	TopK int
	// GenerationTimeout bounds each agent's generation call.
	GenerationTimeout time.Duration
}

// Registry holds the closed set of agent variants, keyed by type.
type Registry struct {
	agents map[models.AgentType]Agent
}

// NewRegistry constructs all three agents from the shared dependencies.
func NewRegistry(cfg *RegistryConfig) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	deps := func(t models.AgentType) Deps {
		return Deps{
			Retriever:         cfg.Retriever,
			Generator:         cfg.Generator,
			Collection:        cfg.Collections[t],
			TopK:              cfg.TopK,
			GenerationTimeout: cfg.GenerationTimeout,
		}
	}

	law, err := NewLawAgent(deps(models.AgentLaw))
	if err != nil {
		return nil, fmt.Errorf("failed to create law agent: %w", err)
	}
	trade, err := NewTradeRegulationAgent(deps(models.AgentTradeRegulation))
	if err != nil {
		return nil, fmt.Errorf("failed to create trade regulation agent: %w", err)
	}
	consultation, err := NewConsultationAgent(deps(models.AgentConsultation))
	if err != nil {
		return nil, fmt.Errorf("failed to create consultation agent: %w", err)
	}

	return &Registry{
		agents: map[models.AgentType]Agent{
			models.AgentLaw:             law,
			models.AgentTradeRegulation: trade,
			models.AgentConsultation:    consultation,
		},
	}, nil
}

// NewRegistryFromAgents builds a registry from pre-constructed agents.
func NewRegistryFromAgents(list ...Agent) *Registry {
	agents := make(map[models.AgentType]Agent, len(list))
	for _, a := range list {
		agents[a.Type()] = a
	}
	return &Registry{agents: agents}
}

// Get returns the agent for the given type.
func (r *Registry) Get(t models.AgentType) (Agent, error) {
	agent, ok := r.agents[t]
	if !ok {
		return nil, fmt.Errorf("unknown agent type: %s", t)
	}
	return agent, nil
}
