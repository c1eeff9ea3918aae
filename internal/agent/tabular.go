package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmercer/sprintdesk/internal/llm"
)

// TableSlice is the result shape of the tabular lookup tools: the selected
// rows plus what was requested vs. actually found.
type TableSlice struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	TotalRows int        `json:"total_rows"`
	Requested string     `json:"requested,omitempty"`
	Missing   []int      `json:"missing,omitempty"`
}

// parseRowRange parses "start-end" with 1-based inclusive bounds against a
// dataset of n rows. end is clamped to n; start < 1 and end < start are
// rejected, never silently adjusted.
func parseRowRange(spec string, n int) (start, end int, err error) {
	parts := strings.SplitN(strings.TrimSpace(spec), "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("row range must be \"start-end\", got %q", spec)
	}
	start, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("row range start %q is not a number", parts[0])
	}
	end, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("row range end %q is not a number", parts[1])
	}
	if start < 1 {
		return 0, 0, fmt.Errorf("row range start must be >= 1, got %d", start)
	}
	if end < start {
		return 0, 0, fmt.Errorf("row range end %d is before start %d", end, start)
	}
	if end > n {
		end = n
	}
	return start, end, nil
}

// RegisterLocalTools installs the class-1 tools: pure computation over the
// request's side-channel data, no network.
func RegisterLocalTools(reg *ToolRegistry) error {
	tools := []RegisteredTool{
		{
			Definition: llm.ToolDefinition{
				Name:        "table_rows",
				Description: "Return a contiguous range of rows from the uploaded table. Range is 1-based inclusive, e.g. \"1-10\".",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"range": map[string]any{"type": "string", "description": "Row range as \"start-end\""},
					},
					"required": []any{"range"},
				},
			},
			Exec: func(ctx context.Context, rc RunContext, args map[string]any) (any, error) {
				_ = ctx
				tab, err := requireTabular(rc)
				if err != nil {
					return nil, err
				}
				spec := fmt.Sprint(args["range"])
				start, end, err := parseRowRange(spec, len(tab.Rows))
				if err != nil {
					return nil, err
				}
				if start > len(tab.Rows) {
					return TableSlice{Columns: tab.Columns, TotalRows: len(tab.Rows), Requested: spec}, nil
				}
				return TableSlice{
					Columns:   tab.Columns,
					Rows:      tab.Rows[start-1 : end],
					TotalRows: len(tab.Rows),
					Requested: spec,
				}, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "table_lookup",
				Description: "Return specific rows from the uploaded table by 1-based row number.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"rows": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "integer"},
						},
					},
					"required": []any{"rows"},
				},
			},
			Exec: func(ctx context.Context, rc RunContext, args map[string]any) (any, error) {
				_ = ctx
				tab, err := requireTabular(rc)
				if err != nil {
					return nil, err
				}
				rawRows, ok := args["rows"].([]any)
				if !ok {
					return nil, fmt.Errorf("rows argument must be a list of row numbers")
				}
				requested := make([]int, 0, len(rawRows))
				for _, rr := range rawRows {
					n, ok := toFloat(rr)
					if !ok {
						return nil, fmt.Errorf("row number %v is not an integer", rr)
					}
					requested = append(requested, int(n))
				}
				// Out-of-range lookups are dropped, not errors; the slice
				// reports which requested rows were missing.
				slice := TableSlice{
					Columns:   tab.Columns,
					TotalRows: len(tab.Rows),
					Requested: fmt.Sprintf("rows %s", joinInts(requested)),
				}
				for _, n := range requested {
					if n < 1 || n > len(tab.Rows) {
						slice.Missing = append(slice.Missing, n)
						continue
					}
					slice.Rows = append(slice.Rows, tab.Rows[n-1])
				}
				return slice, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "table_filter",
				Description: "Return rows of the uploaded table where a column contains the given text (case-insensitive).",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"column":   map[string]any{"type": "string"},
						"contains": map[string]any{"type": "string"},
					},
					"required": []any{"column", "contains"},
				},
			},
			Exec: func(ctx context.Context, rc RunContext, args map[string]any) (any, error) {
				_ = ctx
				tab, err := requireTabular(rc)
				if err != nil {
					return nil, err
				}
				col := fmt.Sprint(args["column"])
				needle := strings.ToLower(fmt.Sprint(args["contains"]))
				idx := -1
				for i, c := range tab.Columns {
					if strings.EqualFold(c, col) {
						idx = i
						break
					}
				}
				if idx < 0 {
					return nil, fmt.Errorf("unknown column %q; available: %s", col, strings.Join(tab.Columns, ", "))
				}
				slice := TableSlice{Columns: tab.Columns, TotalRows: len(tab.Rows), Requested: fmt.Sprintf("%s contains %q", col, needle)}
				for _, row := range tab.Rows {
					if idx < len(row) && strings.Contains(strings.ToLower(row[idx]), needle) {
						slice.Rows = append(slice.Rows, row)
					}
				}
				return slice, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "cached_issue_stats",
				Description: "Aggregate the cached issue set from the previous query (counts, points, per-status and per-assignee breakdowns).",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
			Exec: func(ctx context.Context, rc RunContext, args map[string]any) (any, error) {
				_ = ctx
				_ = args
				if rc.Cached == nil || len(rc.Cached.Issues) == 0 {
					return nil, fmt.Errorf("no cached result set is available for this session")
				}
				return *rc.Cached, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "prepare_issue_update",
				Description: "Validate and normalize a set of issue edits before writing. Always call this before update_issues or create_issues.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"target": map[string]any{
							"type": "string",
							"enum": []any{"update_issues", "create_issues"},
						},
						"issues": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "object"},
						},
					},
					"required": []any{"target", "issues"},
				},
			},
			Exec: func(ctx context.Context, rc RunContext, args map[string]any) (any, error) {
				_ = ctx
				_ = rc
				target := fmt.Sprint(args["target"])
				edits, err := normalizeIssueEdits(args["issues"])
				if err != nil {
					return nil, err
				}
				if target == "update_issues" {
					for i, e := range edits {
						if strings.TrimSpace(e.Key) == "" {
							return nil, fmt.Errorf("issues[%d] is missing the issue key required for an update", i)
						}
					}
				}
				return WritePreview{ToolName: target, Issues: edits}, nil
			},
		},
	}

	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// RegisterRemoteTools installs the class-2 catalog entries that delegate to
// the external tool-execution service.
func RegisterRemoteTools(reg *ToolRegistry) error {
	defs := []llm.ToolDefinition{
		{
			Name:        "fetch_sprint_issues",
			Description: "Fetch all issues in a sprint from the issue tracker.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sprint": map[string]any{"type": "string"},
				},
				"required": []any{"sprint"},
			},
		},
		{
			Name:        "search_issues",
			Description: "Search issues in the tracker with a free-text query.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":       map[string]any{"type": "string"},
					"max_results": map[string]any{"type": "integer"},
				},
				"required": []any{"query"},
			},
		},
		{
			Name:        "get_issue",
			Description: "Fetch one issue by key.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"key": map[string]any{"type": "string"},
				},
				"required": []any{"key"},
			},
		},
		{
			Name:        "update_issues",
			Description: "Apply prepared edits to existing issues. Requires explicit user confirmation.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"issues": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "object"},
					},
				},
				"required": []any{"issues"},
			},
		},
		{
			Name:        "create_issues",
			Description: "Create new issues from prepared edits. Requires explicit user confirmation.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"issues": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "object"},
					},
				},
				"required": []any{"issues"},
			},
		},
	}
	for _, d := range defs {
		if err := reg.Register(RegisteredTool{Definition: d, Remote: true}); err != nil {
			return err
		}
	}
	return nil
}

func requireTabular(rc RunContext) (*TabularData, error) {
	if rc.Tabular == nil || len(rc.Tabular.Columns) == 0 {
		return nil, fmt.Errorf("no tabular data was uploaded with this request")
	}
	return rc.Tabular, nil
}
