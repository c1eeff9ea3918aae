package agent

import "context"

type EventKind string

const (
	EventReasoning            EventKind = "reasoning"
	EventToolCall             EventKind = "tool_call"
	EventToolResult           EventKind = "tool_result"
	EventStructuredData       EventKind = "structured_data"
	EventConfirmationRequired EventKind = "confirmation_required"
	EventChunk                EventKind = "chunk"
	EventWarning              EventKind = "warning"
	EventError                EventKind = "error"
	EventReviewComplete       EventKind = "review_complete"
	EventDone                 EventKind = "done"
)

// Event is one record of the loop's output stream. Exactly one field group
// is populated per kind; Done carries nothing.
type Event struct {
	Kind    EventKind          `json:"type"`
	Message string             `json:"message,omitempty"`
	Tool    string             `json:"tool,omitempty"`
	Args    map[string]any     `json:"args,omitempty"`
	Chunk   string             `json:"chunk,omitempty"`
	Data    *StructuredPayload `json:"data,omitempty"`
	Action  *PendingAction     `json:"action,omitempty"`
	Review  *ReviewVerdict     `json:"review,omitempty"`
}

// StructuredPayload is a UI-renderable data block emitted alongside, but
// never fed back into, the model conversation.
type StructuredPayload struct {
	Kind    string     `json:"kind"`
	Label   string     `json:"label,omitempty"`
	Issues  []Issue    `json:"issues,omitempty"`
	Columns []string   `json:"columns,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`
}

// emitter delivers events to the single stream consumer. Delivery blocks on
// the consumer (backpressure) and aborts when the request context ends.
type emitter struct {
	ctx context.Context
	ch  chan<- Event
}

// emit returns false once the context is done; callers use that to stop
// producing without side effects.
func (e *emitter) emit(ev Event) bool {
	select {
	case <-e.ctx.Done():
		return false
	case e.ch <- ev:
		return true
	}
}
