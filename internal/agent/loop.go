package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmercer/sprintdesk/internal/llm"
)

// DefaultMaxToolIterations bounds LLM<->tool rounds per turn. Hitting the
// bound is not an error: the loop forces a best-effort streamed summary.
const DefaultMaxToolIterations = 8

const apologeticMessage = "I'm sorry, I ran into a problem reaching the language model. Please try again in a moment."

const defaultSystemPrompt = `You are a sprint data assistant. You answer questions about issues, sprints, story points, and uploaded tables using the available tools.
Rules:
- Call at most one tool at a time and wait for its result.
- Tool results arrive as aggregate statistics; never invent issue rows that were not reported.
- Any change to issues (update_issues, create_issues) must first be prepared with prepare_issue_update.`

type LoopConfig struct {
	MaxToolIterations int

	// ContextWindow enables a usage warning at ~80% of this many tokens.
	// Zero disables the check.
	ContextWindow int

	// SystemPrompt overrides the default when non-empty.
	SystemPrompt string

	// Analyzer, Classifier, and Tokens default to the regex analyzer, the
	// model-backed classifier, and the chars/4 heuristic.
	Analyzer   HistoryAnalyzer
	Classifier ContinuityClassifier
	Tokens     TokenCounter
}

// RunInput is one inbound turn: the conversation so far plus the optional
// side channel and per-request credentials.
type RunInput struct {
	History    []Turn
	Tabular    *TabularData
	Cached     *CachedData
	Credential string
	ConfigID   string

	// AuditEnabled asks for a post-hoc review of the finished answer.
	AuditEnabled bool
}

// Loop is the orchestration state machine: a sequential driver of
// LLM<->tool iterations ending in a streamed answer, a confirmation pause,
// or a terminal error. One Run per request; no shared mutable state.
type Loop struct {
	model      ModelClient
	reg        *ToolRegistry
	gate       *WriteGate
	analyzer   HistoryAnalyzer
	classifier ContinuityClassifier
	tokens     TokenCounter
	cfg        LoopConfig
}

func NewLoop(model ModelClient, reg *ToolRegistry, gate *WriteGate, cfg LoopConfig) (*Loop, error) {
	if model == nil {
		return nil, fmt.Errorf("model client is nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("tool registry is nil")
	}
	if gate == nil {
		return nil, fmt.Errorf("write gate is nil")
	}
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = DefaultMaxToolIterations
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = NewRegexHistoryAnalyzer()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = NewModelClassifier(model)
	}
	if cfg.Tokens == nil {
		cfg.Tokens = NewHeuristicCounter()
	}
	return &Loop{
		model:      model,
		reg:        reg,
		gate:       gate,
		analyzer:   cfg.Analyzer,
		classifier: cfg.Classifier,
		tokens:     cfg.Tokens,
		cfg:        cfg,
	}, nil
}

// Run drives one turn and returns its event stream. The channel is closed
// after the terminal event; `done` is always the last event unless the
// context is canceled first, in which case production simply stops.
func (l *Loop) Run(ctx context.Context, in RunInput) <-chan Event {
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		e := &emitter{ctx: ctx, ch: ch}
		defer func() {
			if r := recover(); r != nil {
				e.emit(Event{Kind: EventError, Message: fmt.Sprintf("internal error: %v", r)})
				e.emit(Event{Kind: EventDone})
			}
		}()
		l.run(ctx, e, in)
	}()
	return ch
}

func (l *Loop) run(ctx context.Context, e *emitter, in RunInput) {
	prior, current, err := SplitHistory(in.History)
	if err != nil {
		e.emit(Event{Kind: EventError, Message: err.Error()})
		e.emit(Event{Kind: EventDone})
		return
	}

	turns := in.History
	var dataContext string
	if len(prior) > 0 {
		summary := l.analyzer.SummarizeHistory(prior)
		verdict, cerr := l.classifier.Classify(ctx, current.Content, summary)
		if cerr != nil {
			// Classifier failures degrade to "continuing"; a wrong guess
			// only costs irrelevant context, never correctness.
			verdict = ContinuityContinuing
		}
		if verdict == ContinuityFresh {
			turns = []Turn{current}
			if !e.emit(Event{Kind: EventReasoning, Message: "This looks like a new topic, so I'm starting from a clean context."}) {
				return
			}
		} else {
			dataContext = l.analyzer.ExtractDataContext(prior)
		}
	}

	msgs := l.assembleMessages(turns, in, dataContext)
	rc := RunContext{
		Tabular:    in.Tabular,
		Cached:     in.Cached,
		Credential: in.Credential,
		ConfigID:   in.ConfigID,
	}

	var facts []string
	ctxWarned := false

	for round := 0; round < l.cfg.MaxToolIterations; round++ {
		resp, err := l.model.ChatWithTools(ctx, msgs, l.reg.Definitions())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transport failure is terminal for the turn: surface once,
			// never retry here (the model client already applied its
			// bounded retry policy).
			e.emit(Event{Kind: EventChunk, Chunk: apologeticMessage})
			e.emit(Event{Kind: EventDone})
			return
		}

		if !ctxWarned && l.warnContextUsage(e, msgs) {
			ctxWarned = true
		}

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			l.streamFinal(ctx, e, msgs, resp.Text(), in.AuditEnabled, facts)
			return
		}

		// Only the first tool call of a multi-call response is acted on;
		// this keeps condensation and confirmation per-call.
		call := calls[0]
		callArgs, _ := DecodeArgs(call.Arguments)

		if l.gate.IsWriteTool(call.Name) {
			if !e.emit(Event{Kind: EventToolCall, Tool: call.Name, Args: callArgs}) {
				return
			}
			action, aerr := l.gate.BuildPendingAction(call)
			if aerr != nil {
				e.emit(Event{Kind: EventError, Message: aerr.Error()})
				e.emit(Event{Kind: EventDone})
				return
			}
			e.emit(Event{Kind: EventConfirmationRequired, Action: &action})
			e.emit(Event{Kind: EventDone})
			return
		}

		reason := strings.TrimSpace(resp.Text())
		if reason == "" {
			reason = "Calling " + call.Name + "..."
		}
		if !e.emit(Event{Kind: EventReasoning, Message: reason}) {
			return
		}
		if !e.emit(Event{Kind: EventToolCall, Tool: call.Name, Args: callArgs}) {
			return
		}

		assistantTurn := llm.AssistantToolCalls(resp.Text(), call)
		raw, args, xerr := l.reg.ExecuteCall(ctx, rc, call)
		if xerr != nil {
			if ctx.Err() != nil {
				return
			}
			// Tool failures are recoverable: the model sees the error as a
			// tool response and can retry with different arguments.
			if !e.emit(Event{Kind: EventToolResult, Tool: call.Name, Message: "Error: " + xerr.Error()}) {
				return
			}
			msgs = append(msgs, assistantTurn, llm.ToolResult(callID(call), call.Name,
				"Error: "+xerr.Error()+". You may retry with corrected arguments or answer without this tool."))
			continue
		}

		cr := Condense(call.Name, raw, args)
		facts = append(facts, cr.ForHuman)
		if !e.emit(Event{Kind: EventToolResult, Tool: call.Name, Message: cr.ForHuman}) {
			return
		}
		for i := range cr.Structured {
			if !e.emit(Event{Kind: EventStructuredData, Data: &cr.Structured[i]}) {
				return
			}
		}
		msgs = append(msgs, assistantTurn, llm.ToolResult(callID(call), call.Name, cr.ForLLM))
	}

	// Iteration bound reached: force a best-effort summary instead of failing.
	if !e.emit(Event{Kind: EventReasoning, Message: "Reached the tool-call budget for this question; summarizing the data gathered so far."}) {
		return
	}
	msgs = append(msgs, llm.User("Provide your best final answer now using only the data already gathered. Do not call any more tools."))
	l.streamFinal(ctx, e, msgs, "", in.AuditEnabled, facts)
}

func (l *Loop) assembleMessages(turns []Turn, in RunInput, dataContext string) []llm.Message {
	sys := l.cfg.SystemPrompt
	if sys == "" {
		sys = defaultSystemPrompt
	}
	msgs := []llm.Message{llm.System(sys)}

	if in.Cached != nil && len(in.Cached.Issues) > 0 {
		msgs = append(msgs, llm.System(fmt.Sprintf(
			"Cached data available: %s (%d issues). Use the cached_issue_stats tool instead of re-fetching.",
			in.Cached.Label, len(in.Cached.Issues))))
	}
	if in.Tabular != nil && len(in.Tabular.Columns) > 0 {
		msgs = append(msgs, llm.System(fmt.Sprintf(
			"An uploaded table with %d rows is available. Columns: %s. Use the table_* tools to inspect it.",
			len(in.Tabular.Rows), strings.Join(in.Tabular.Columns, ", "))))
	}
	if dataContext != "" {
		msgs = append(msgs, llm.System("Available data from the previous query: "+dataContext))
	}

	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			msgs = append(msgs, llm.Assistant(t.Content))
		default:
			msgs = append(msgs, llm.User(t.Content))
		}
	}
	return msgs
}

func (l *Loop) warnContextUsage(e *emitter, msgs []llm.Message) bool {
	if l.cfg.ContextWindow <= 0 {
		return false
	}
	total := 0
	for _, m := range msgs {
		total += l.tokens.Count(m.Content)
	}
	if float64(total) <= float64(l.cfg.ContextWindow)*0.8 {
		return false
	}
	pct := total * 100 / l.cfg.ContextWindow
	e.emit(Event{Kind: EventWarning, Message: fmt.Sprintf("Context usage at ~%d%% of the context window", pct)})
	return true
}

// streamFinal streams the answer token-by-token, optionally reviews it, and
// terminates the turn. fallback is used when streaming fails outright.
func (l *Loop) streamFinal(ctx context.Context, e *emitter, msgs []llm.Message, fallback string, audit bool, facts []string) {
	var answer strings.Builder

	s, err := l.model.StreamAnswer(ctx, msgs)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		text := fallback
		if strings.TrimSpace(text) == "" {
			text = apologeticMessage
		}
		if !e.emit(Event{Kind: EventChunk, Chunk: text}) {
			return
		}
		answer.WriteString(text)
	} else {
		defer s.Close()
		for ev := range s.Events() {
			if ev.Type != llm.StreamEventTextDelta || ev.Delta == "" {
				continue
			}
			if !e.emit(Event{Kind: EventChunk, Chunk: ev.Delta}) {
				return
			}
			answer.WriteString(ev.Delta)
		}
		if answer.Len() == 0 {
			text := fallback
			if strings.TrimSpace(text) == "" {
				text = apologeticMessage
			}
			if !e.emit(Event{Kind: EventChunk, Chunk: text}) {
				return
			}
			answer.WriteString(text)
		}
	}

	if audit {
		if verdict, rerr := l.model.ReviewAnswer(ctx, answer.String(), facts); rerr == nil {
			if !e.emit(Event{Kind: EventReviewComplete, Review: &verdict}) {
				return
			}
		}
		// Review failures are silent: observability must not block the answer.
	}
	e.emit(Event{Kind: EventDone})
}

// ExecuteConfirmed runs a client-confirmed write action. This is the only
// path allowed to invoke a write-set tool, and it bypasses the LLM loop
// entirely. Failures are reported per issue with partial success counted.
func (l *Loop) ExecuteConfirmed(ctx context.Context, action PendingAction, credential, configID string) <-chan Event {
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		e := &emitter{ctx: ctx, ch: ch}

		if err := l.gate.Validate(action); err != nil {
			e.emit(Event{Kind: EventError, Message: err.Error()})
			e.emit(Event{Kind: EventDone})
			return
		}
		if !l.reg.Has(action.ToolName) {
			e.emit(Event{Kind: EventError, Message: "unknown tool: " + action.ToolName})
			e.emit(Event{Kind: EventDone})
			return
		}

		rc := RunContext{Credential: credential, ConfigID: configID}
		succeeded, failed := 0, 0
		for i, issue := range action.Issues {
			argsJSON, err := json.Marshal(map[string]any{"issues": []IssueEdit{issue}})
			if err != nil {
				failed++
				e.emit(Event{Kind: EventToolResult, Tool: action.ToolName,
					Message: fmt.Sprintf("%s: failed: %v", issueLabel(issue, i), err)})
				continue
			}
			call := llm.ToolCallData{
				ID:        fmt.Sprintf("confirm_%s_%d", action.ID, i),
				Name:      action.ToolName,
				Arguments: argsJSON,
			}
			if _, _, err := l.reg.ExecuteCall(ctx, rc, call); err != nil {
				if ctx.Err() != nil {
					return
				}
				failed++
				if !e.emit(Event{Kind: EventToolResult, Tool: action.ToolName,
					Message: fmt.Sprintf("%s: failed: %v", issueLabel(issue, i), err)}) {
					return
				}
				continue
			}
			succeeded++
			if !e.emit(Event{Kind: EventToolResult, Tool: action.ToolName,
				Message: fmt.Sprintf("%s: ok", issueLabel(issue, i))}) {
				return
			}
		}

		e.emit(Event{Kind: EventToolResult, Tool: action.ToolName,
			Args:    map[string]any{"succeeded": succeeded, "failed": failed},
			Message: fmt.Sprintf("Executed %s: %d succeeded, %d failed", action.ToolName, succeeded, failed)})
		e.emit(Event{Kind: EventDone})
	}()
	return ch
}

func issueLabel(issue IssueEdit, idx int) string {
	if issue.Key != "" {
		return issue.Key
	}
	if issue.Summary != nil && *issue.Summary != "" {
		return *issue.Summary
	}
	return fmt.Sprintf("issue %d", idx+1)
}

func callID(call llm.ToolCallData) string {
	if strings.TrimSpace(call.ID) != "" {
		return call.ID
	}
	return "call_" + Fingerprint(call.Name, string(call.Arguments))[:12]
}
