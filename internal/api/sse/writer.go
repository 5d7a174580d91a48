// Package sse provides Server-Sent Events support for progress streaming.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/customsflow/agent-service/internal/domain/models"
)

// EventType represents the type of SSE event.
type EventType string

const (
	// EventProgress carries one pipeline progress event.
	EventProgress EventType = "progress"
	// EventError is an error event.
	EventError EventType = "error"
	// EventDone is a stream completion event.
	EventDone EventType = "done"
)

// Writer writes Server-Sent Events to an HTTP response.
type Writer struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

// NewWriter creates a new SSE writer.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &Writer{
		writer:  w,
		flusher: flusher,
	}, nil
}

// WriteEvent writes an SSE event with the given type and data.
func (w *Writer) WriteEvent(eventType EventType, data string) error {
	_, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", eventType, data)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// WriteJSON writes an SSE event with JSON-encoded data.
func (w *Writer) WriteJSON(eventType EventType, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	return w.WriteEvent(eventType, string(jsonData))
}

// WriteProgress writes one progress event.
func (w *Writer) WriteProgress(ev models.ProgressEvent) error {
	return w.WriteJSON(EventProgress, ev)
}

// WriteHeartbeat writes a heartbeat progress event to keep the connection
// alive through idle stretches of a long turn.
func (w *Writer) WriteHeartbeat(conversationID string) error {
	return w.WriteProgress(models.NewProgressEvent(conversationID, models.StepHeartbeat, "", ""))
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// WriteError writes an error event.
func (w *Writer) WriteError(code, message string, details string) error {
	return w.WriteJSON(EventError, &ErrorEvent{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// WriteDone writes a done event to signal stream completion.
func (w *Writer) WriteDone() error {
	return w.WriteEvent(EventDone, "stream completed")
}

// Flush flushes the response writer.
func (w *Writer) Flush() {
	w.flusher.Flush()
}
