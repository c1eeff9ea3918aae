package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jmercer/sprintdesk/internal/llm"
)

// RunContext carries the per-request side channel and credentials a tool
// execution may need. Local tools read the side channel; remote tools
// forward the credential and config id.
type RunContext struct {
	Tabular    *TabularData
	Cached     *CachedData
	Credential string
	ConfigID   string
}

// RemoteExecutor forwards a tool call to the external tool-execution
// service. Implemented by toolsvc.Client.
type RemoteExecutor interface {
	Execute(ctx context.Context, tool string, args map[string]any, credential, configID string) (any, error)
}

type ExecFunc func(ctx context.Context, rc RunContext, args map[string]any) (any, error)

// RegisteredTool is one catalog entry. Local tools carry an Exec closure;
// remote tools are delegated to the RemoteExecutor.
type RegisteredTool struct {
	Definition llm.ToolDefinition
	Schema     *jsonschema.Schema
	Exec       ExecFunc
	Remote     bool
}

type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]RegisteredTool
	remote RemoteExecutor
}

func NewToolRegistry(remote RemoteExecutor) *ToolRegistry {
	return &ToolRegistry{
		tools:  map[string]RegisteredTool{},
		remote: remote,
	}
}

func (r *ToolRegistry) Register(t RegisteredTool) error {
	if err := llm.ValidateToolName(t.Definition.Name); err != nil {
		return err
	}
	if !t.Remote && t.Exec == nil {
		return fmt.Errorf("local tool %s missing executor", t.Definition.Name)
	}
	if t.Schema == nil {
		s, err := compileSchema(t.Definition.Parameters)
		if err != nil {
			return fmt.Errorf("tool %s schema: %w", t.Definition.Name, err)
		}
		t.Schema = s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Definition.Name] = t
	return nil
}

func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

func (r *ToolRegistry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Definition)
	}
	return out
}

// DecodeArgs parses tool-call argument JSON into a map, attempting a repair
// pass before rejecting. Models frequently emit near-JSON (trailing commas,
// single quotes); repairing costs nothing and saves a whole loop round.
func DecodeArgs(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "" {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err == nil {
		return args, nil
	}
	repaired, rerr := jsonrepair.JSONRepair(string(raw))
	if rerr != nil {
		return nil, fmt.Errorf("invalid tool arguments JSON: %v", rerr)
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments JSON: %v", err)
	}
	return args, nil
}

// ExecuteCall validates and runs one tool call, returning the raw result and
// the decoded arguments. Unknown names and argument validation failures are
// reported as errors without reaching any executor.
func (r *ToolRegistry) ExecuteCall(ctx context.Context, rc RunContext, call llm.ToolCallData) (any, map[string]any, error) {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown tool: %s", call.Name)
	}

	args, err := DecodeArgs(call.Arguments)
	if err != nil {
		return nil, nil, err
	}

	if err := t.Schema.Validate(toValidatable(args)); err != nil {
		return nil, args, fmt.Errorf("tool args schema validation failed: %v", err)
	}

	if t.Remote {
		if r.remote == nil {
			return nil, args, fmt.Errorf("tool %s requires the remote tool service, which is not configured", call.Name)
		}
		v, err := r.remote.Execute(ctx, call.Name, args, rc.Credential, rc.ConfigID)
		return v, args, err
	}

	v, err := t.Exec(ctx, rc, args)
	return v, args, err
}

func compileSchema(params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		// Default to an empty object schema.
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}

// toValidatable round-trips args so numeric values take the interface
// shapes the schema validator expects.
func toValidatable(args map[string]any) any {
	b, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return args
	}
	return v
}
