package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CondensedResult is the three-way split of a raw tool result: a bounded
// model-facing text, a one-line human digest, and UI payloads. ForHuman and
// Structured are emitted as events only and never re-enter the conversation.
type CondensedResult struct {
	ForLLM     string
	ForHuman   string
	Structured []StructuredPayload
}

// WritePreview is the result of a "prepare write" tool: the exact arguments
// the model must pass to the follow-up write call.
type WritePreview struct {
	ToolName string      `json:"tool_name"`
	Issues   []IssueEdit `json:"issues"`
}

// Condense shapes a raw tool result for the three consumers. Pure function:
// no I/O, total over all tool names (unknown results pass through as JSON).
//
// The load-bearing policy: list-shaped results are reduced to aggregate
// statistics for the model. The UI already receives the raw rows via the
// structured payload, so re-sending them to the model would double context
// cost and invite verbatim transcription.
func Condense(toolName string, raw any, args map[string]any) CondensedResult {
	switch v := raw.(type) {
	case WritePreview:
		return condenseWritePreview(v)
	case *WritePreview:
		if v != nil {
			return condenseWritePreview(*v)
		}
	case TableSlice:
		return condenseTableSlice(v)
	case *TableSlice:
		if v != nil {
			return condenseTableSlice(*v)
		}
	}

	if issues, ok := decodeIssues(raw); ok {
		return condenseIssueList(toolName, issues, args)
	}

	return condensePassthrough(toolName, raw)
}

// IssueAggregates are the statistics the condenser computes once over a
// list-shaped result. Size is O(distinct statuses + distinct assignees),
// independent of row count.
type IssueAggregates struct {
	Count       int
	TotalPoints float64
	ByStatus    []GroupStat
	ByAssignee  []GroupStat
	Topics      []PhraseCount
}

type GroupStat struct {
	Name   string
	Count  int
	Points float64
}

// AggregateIssues computes the aggregate statistics for an issue list.
func AggregateIssues(issues []Issue) IssueAggregates {
	agg := IssueAggregates{Count: len(issues)}
	status := map[string]*GroupStat{}
	assignee := map[string]*GroupStat{}
	summaries := make([]string, 0, len(issues))
	for _, is := range issues {
		agg.TotalPoints += is.StoryPoints

		st := is.Status
		if st == "" {
			st = "No Status"
		}
		if _, ok := status[st]; !ok {
			status[st] = &GroupStat{Name: st}
		}
		status[st].Count++
		status[st].Points += is.StoryPoints

		as := is.Assignee
		if as == "" {
			as = "unassigned"
		}
		if _, ok := assignee[as]; !ok {
			assignee[as] = &GroupStat{Name: as}
		}
		assignee[as].Count++
		assignee[as].Points += is.StoryPoints

		if s := strings.TrimSpace(is.Summary); s != "" {
			summaries = append(summaries, s)
		}
	}
	agg.ByStatus = sortedGroups(status)
	agg.ByAssignee = sortedGroups(assignee)
	agg.Topics = ExtractTopics(summaries)
	return agg
}

func sortedGroups(m map[string]*GroupStat) []GroupStat {
	out := make([]GroupStat, 0, len(m))
	for _, g := range m {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (a IssueAggregates) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SUMMARY: %d issues | %s story points", a.Count, formatPoints(a.TotalPoints))
	if len(a.ByStatus) > 0 {
		b.WriteString("\nSTATUS: ")
		b.WriteString(renderGroups(a.ByStatus))
	}
	if len(a.ByAssignee) > 0 {
		b.WriteString("\nASSIGNEES: ")
		b.WriteString(renderGroups(a.ByAssignee))
	}
	if len(a.Topics) > 0 {
		parts := make([]string, 0, len(a.Topics))
		for _, t := range a.Topics {
			parts = append(parts, fmt.Sprintf("%s (%d)", t.Phrase, t.Count))
		}
		b.WriteString("\nTOPICS: ")
		b.WriteString(strings.Join(parts, ", "))
	}
	return b.String()
}

func renderGroups(groups []GroupStat) string {
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, fmt.Sprintf("%s: %d (%s pts)", g.Name, g.Count, formatPoints(g.Points)))
	}
	return strings.Join(parts, ", ")
}

func formatPoints(p float64) string {
	if p == float64(int64(p)) {
		return fmt.Sprintf("%d", int64(p))
	}
	return fmt.Sprintf("%.1f", p)
}

func condenseIssueList(toolName string, issues []Issue, args map[string]any) CondensedResult {
	agg := AggregateIssues(issues)
	rendered := agg.render()

	label := issueSetLabel(toolName, args)
	forLLM := rendered +
		"\nNOTE: The full issue rows were already delivered to the user interface as structured data. " +
		"Do not list or transcribe individual issues; answer using the aggregates above."

	return CondensedResult{
		ForLLM:   forLLM,
		ForHuman: rendered,
		Structured: []StructuredPayload{{
			Kind:   "issues",
			Label:  label,
			Issues: issues,
		}},
	}
}

func issueSetLabel(toolName string, args map[string]any) string {
	if args != nil {
		if s, ok := args["sprint"].(string); ok && s != "" {
			return "Sprint " + s
		}
		if n, ok := toFloat(args["sprint"]); ok {
			return fmt.Sprintf("Sprint %s", formatPoints(n))
		}
		if q, ok := args["query"].(string); ok && q != "" {
			return "Search: " + q
		}
	}
	return toolName
}

func condenseWritePreview(p WritePreview) CondensedResult {
	argsJSON, _ := json.Marshal(map[string]any{"issues": p.Issues})
	forLLM := fmt.Sprintf(
		"The write is prepared. Call the %s tool now with exactly these arguments and nothing else: %s",
		p.ToolName, string(argsJSON))
	return CondensedResult{
		ForLLM:   forLLM,
		ForHuman: fmt.Sprintf("Prepared %s for %d issue(s)", p.ToolName, len(p.Issues)),
	}
}

func condenseTableSlice(t TableSlice) CondensedResult {
	human := fmt.Sprintf("Returned %d of %d rows", len(t.Rows), t.TotalRows)
	if t.Requested != "" {
		human = fmt.Sprintf("Returned %d rows for requested %s (%d available)", len(t.Rows), t.Requested, t.TotalRows)
	}
	forLLM := fmt.Sprintf(
		"%s. Columns: %s. The rows themselves were delivered to the user interface; reference them by row number only.",
		human, strings.Join(t.Columns, ", "))
	if len(t.Missing) > 0 {
		forLLM += fmt.Sprintf(" Requested rows not present: %s.", joinInts(t.Missing))
		human += fmt.Sprintf(" (missing: %s)", joinInts(t.Missing))
	}
	return CondensedResult{
		ForLLM:   forLLM,
		ForHuman: human,
		Structured: []StructuredPayload{{
			Kind:    "table",
			Columns: t.Columns,
			Rows:    t.Rows,
		}},
	}
}

func condensePassthrough(toolName string, raw any) CondensedResult {
	var forLLM string
	switch v := raw.(type) {
	case string:
		forLLM = v
	case []byte:
		forLLM = string(v)
	default:
		b, err := json.Marshal(raw)
		if err != nil {
			forLLM = fmt.Sprint(raw)
		} else {
			forLLM = string(b)
		}
	}
	human := fmt.Sprintf("%s completed", toolName)
	if len(forLLM) <= 120 {
		human = fmt.Sprintf("%s: %s", toolName, forLLM)
	}
	return CondensedResult{ForLLM: forLLM, ForHuman: human}
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}
