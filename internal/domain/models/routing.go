package models

// AgentType identifies one of the specialized retrieval agents. The set is
// closed: routing always resolves to one of these variants.
type AgentType string

const (
	// AgentLaw answers questions about customs law and statute articles.
	AgentLaw AgentType = "law"
	// AgentTradeRegulation answers questions about import/export regulation.
	AgentTradeRegulation AgentType = "trade_regulation"
	// AgentConsultation handles general declaration-procedure consultation
	// and is the fallback when routing is ambiguous.
	AgentConsultation AgentType = "consultation"
)

// AgentTypes lists all agent variants in routing priority order.
var AgentTypes = []AgentType{AgentLaw, AgentTradeRegulation, AgentConsultation}

// Valid reports whether t is a known agent type.
func (t AgentType) Valid() bool {
	switch t {
	case AgentLaw, AgentTradeRegulation, AgentConsultation:
		return true
	}
	return false
}

// RoutingDecision records how a user turn was routed. It is produced once per
// turn by the router and embedded into the resulting assistant message.
type RoutingDecision struct {
	// SchemaVersion tracks the record layout for downstream consumers.
	SchemaVersion int `json:"schemaVersion" bson:"schemaVersion"`
	// SelectedAgent is the primary agent chosen for the turn.
	SelectedAgent AgentType `json:"selectedAgent" bson:"selectedAgent"`
	// SecondaryAgent is set when RequiresMultipleAgents is true.
	SecondaryAgent AgentType `json:"secondaryAgent,omitempty" bson:"secondaryAgent,omitempty"`
	// Complexity is a heuristic in [0,1] estimating cross-domain reasoning need.
	Complexity float64 `json:"complexity" bson:"complexity"`
	// Reasoning is a human-readable routing rationale.
	Reasoning string `json:"reasoning" bson:"reasoning"`
	// RequiresMultipleAgents marks turns where two domain scores tied.
	RequiresMultipleAgents bool `json:"requiresMultipleAgents" bson:"requiresMultipleAgents"`
}

// RoutingSchemaVersion is the current RoutingDecision layout version.
const RoutingSchemaVersion = 1

// Targets returns the agents this decision selects, primary first.
func (d *RoutingDecision) Targets() []AgentType {
	if d.RequiresMultipleAgents && d.SecondaryAgent != "" {
		return []AgentType{d.SelectedAgent, d.SecondaryAgent}
	}
	return []AgentType{d.SelectedAgent}
}
