package server

import "github.com/jmercer/sprintdesk/internal/agent"

// ChatRequest is the POST /chat request body. One turn per request; the
// client carries the full conversation each time.
type ChatRequest struct {
	// ConversationHistory must end with the user turn being asked.
	ConversationHistory []agent.Turn `json:"conversation_history"`

	// SideChannel carries pre-parsed tabular data for the table_* tools.
	SideChannel *agent.TabularData `json:"side_channel,omitempty"`

	// SessionCredential is forwarded to the tool service per call and is
	// never persisted or logged.
	SessionCredential string `json:"session_credential,omitempty"`

	// ConfigID scopes the cached result set for this client.
	ConfigID string `json:"config_id,omitempty"`

	AuditEnabled bool `json:"audit_enabled,omitempty"`

	// ExecuteConfirmedAction replays a previously emitted pending action.
	// When set, the conversation history is ignored.
	ExecuteConfirmedAction *agent.PendingAction `json:"execute_confirmed_action,omitempty"`
}

// ErrorResponse is the JSON error body for non-streaming failures.
type ErrorResponse struct {
	Error string `json:"error"`
}
