package models

import "time"

// ProgressStep enumerates the orchestration state transitions reported to
// clients. Steps for one turn arrive strictly in declaration order, with
// StepMerging omitted on single-agent turns. StepHeartbeat is injected by the
// streaming gateway on an idle timer and carries no turn state.
type ProgressStep string

const (
	StepReceived   ProgressStep = "received"
	StepRouting    ProgressStep = "routing"
	StepRetrieving ProgressStep = "retrieving"
	StepGenerating ProgressStep = "generating"
	StepMerging    ProgressStep = "merging"
	StepPersisting ProgressStep = "persisting"
	StepCompleted  ProgressStep = "completed"
	StepFailed     ProgressStep = "failed"
	StepHeartbeat  ProgressStep = "heartbeat"
)

// Terminal reports whether the step closes the turn's event stream.
func (s ProgressStep) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// ProgressEvent is a transient notification of one orchestration state
// transition. Events are never persisted; they exist only for the duration of
// one turn's stream.
type ProgressEvent struct {
	Timestamp      time.Time    `json:"timestamp"`
	ConversationID string       `json:"conversation_id"`
	Step           ProgressStep `json:"step"`
	Message        string       `json:"message"`
	Details        string       `json:"details,omitempty"`
}

// NewProgressEvent creates a progress event stamped with the current time.
func NewProgressEvent(conversationID string, step ProgressStep, message, details string) ProgressEvent {
	return ProgressEvent{
		Timestamp:      time.Now().UTC(),
		ConversationID: conversationID,
		Step:           step,
		Message:        message,
		Details:        details,
	}
}
