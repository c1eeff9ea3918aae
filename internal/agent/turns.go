package agent

import (
	"fmt"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of the client-visible conversation. The loop only
// appends turns or drops a prefix; it never edits one in place.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SplitHistory separates the conversation into prior turns and the current
// user turn, which must be the last entry and carry the user role.
func SplitHistory(history []Turn) ([]Turn, Turn, error) {
	if len(history) == 0 {
		return nil, Turn{}, fmt.Errorf("conversation history is empty")
	}
	current := history[len(history)-1]
	if current.Role != RoleUser {
		return nil, Turn{}, fmt.Errorf("last turn must be a user turn, got %q", current.Role)
	}
	if strings.TrimSpace(current.Content) == "" {
		return nil, Turn{}, fmt.Errorf("current user turn is empty")
	}
	prior := make([]Turn, len(history)-1)
	copy(prior, history[:len(history)-1])
	return prior, current, nil
}

// LastAssistantTurn returns the content of the most recent assistant turn,
// or "" when there is none.
func LastAssistantTurn(turns []Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleAssistant {
			return turns[i].Content
		}
	}
	return ""
}
