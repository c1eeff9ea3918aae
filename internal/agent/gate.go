package agent

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/oklog/ulid/v2"

	"github.com/jmercer/sprintdesk/internal/llm"
)

// PendingAction describes a side-effecting tool call awaiting client
// confirmation. The server holds no state for it between turns: the
// descriptor is emitted to the client, and a later independent request
// carrying it back triggers execution.
type PendingAction struct {
	ID       string      `json:"id"`
	ToolName string      `json:"tool_name"`
	Issues   []IssueEdit `json:"issues"`
}

// WriteGate detects tool calls in the write set and converts them into
// pending actions instead of executing them. The write set is configured as
// glob patterns over tool names.
type WriteGate struct {
	patterns []string
}

func NewWriteGate(patterns []string) *WriteGate {
	if len(patterns) == 0 {
		patterns = []string{"update_issues", "create_issues"}
	}
	return &WriteGate{patterns: patterns}
}

func (g *WriteGate) IsWriteTool(name string) bool {
	for _, p := range g.patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// BuildPendingAction normalizes a write tool call into a PendingAction.
// Malformed arguments are a validation failure, reported synchronously.
func (g *WriteGate) BuildPendingAction(call llm.ToolCallData) (PendingAction, error) {
	args, err := DecodeArgs(call.Arguments)
	if err != nil {
		return PendingAction{}, err
	}
	edits, err := normalizeIssueEdits(args["issues"])
	if err != nil {
		return PendingAction{}, fmt.Errorf("write action %s: %v", call.Name, err)
	}
	return PendingAction{
		ID:       ulid.Make().String(),
		ToolName: call.Name,
		Issues:   edits,
	}, nil
}

// Validate re-checks a client-supplied action descriptor before confirmed
// execution: the tool must still be in the write set and the issue list
// non-empty.
func (g *WriteGate) Validate(action PendingAction) error {
	if !g.IsWriteTool(action.ToolName) {
		return fmt.Errorf("tool %s is not in the write set", action.ToolName)
	}
	if len(action.Issues) == 0 {
		return fmt.Errorf("confirmed action has no issues")
	}
	return nil
}
