package agent

import (
	"encoding/json"
	"fmt"
	"time"
)

// Issue is the normalized issue-tracker row this system reasons about.
// Remote tool results are decoded into this shape; field names accept the
// common snake_case wire form.
type Issue struct {
	Key         string   `json:"key"`
	Summary     string   `json:"summary"`
	Status      string   `json:"status,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	StoryPoints float64  `json:"story_points,omitempty"`
	Type        string   `json:"type,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Sprint      string   `json:"sprint,omitempty"`
}

// IssueEdit is the normalized field shape of a single pending write.
// Every field is optional; nil means "leave unchanged" for updates and
// "unset" for creates.
type IssueEdit struct {
	Key         string   `json:"key,omitempty"`
	Summary     *string  `json:"summary,omitempty"`
	Description *string  `json:"description,omitempty"`
	Assignee    *string  `json:"assignee,omitempty"`
	Status      *string  `json:"status,omitempty"`
	StoryPoints *float64 `json:"story_points,omitempty"`
	Type        *string  `json:"type,omitempty"`
	Priority    *string  `json:"priority,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	FixVersions []string `json:"fix_versions,omitempty"`
	DueDate     *string  `json:"due_date,omitempty"`
	ParentKey   *string  `json:"parent_key,omitempty"`
}

// CachedData is a previously fetched issue set a caller may carry across
// requests to avoid redundant remote fetches.
type CachedData struct {
	Label     string    `json:"label"`
	Issues    []Issue   `json:"issues"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
}

// TabularData is the side-channel upload: already-parsed rows with column
// names. The loop never parses raw files.
type TabularData struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// DecodeIssues extracts an issue list from a raw tool result. Accepted
// shapes: []Issue, {"issues": [...]}, or a bare JSON array of issue objects.
func DecodeIssues(raw any) ([]Issue, bool) {
	return decodeIssues(raw)
}

func decodeIssues(raw any) ([]Issue, bool) {
	switch v := raw.(type) {
	case []Issue:
		return v, true
	case CachedData:
		return v.Issues, true
	case *CachedData:
		if v == nil {
			return nil, false
		}
		return v.Issues, true
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var envelope struct {
		Issues []Issue `json:"issues"`
	}
	if err := json.Unmarshal(b, &envelope); err == nil && len(envelope.Issues) > 0 {
		return envelope.Issues, true
	}
	var list []Issue
	if err := json.Unmarshal(b, &list); err == nil && len(list) > 0 && list[0].Key != "" {
		return list, true
	}
	return nil, false
}

// normalizeIssueEdits converts the untyped "issues" tool argument into the
// fixed IssueEdit shape. Unknown fields are dropped; type mismatches on
// known fields are reported rather than silently defaulted.
func normalizeIssueEdits(v any) ([]IssueEdit, error) {
	items, ok := v.([]any)
	if !ok {
		if single, okMap := v.(map[string]any); okMap {
			items = []any{single}
		} else {
			return nil, fmt.Errorf("issues argument must be a list of objects")
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("issues argument is empty")
	}

	out := make([]IssueEdit, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("issues[%d] is not an object", i)
		}
		var e IssueEdit
		if s, ok, err := stringField(m, i, "key"); err != nil {
			return nil, err
		} else if ok {
			e.Key = s
		}
		for _, f := range []struct {
			names []string
			dst   **string
		}{
			{[]string{"summary"}, &e.Summary},
			{[]string{"description"}, &e.Description},
			{[]string{"assignee"}, &e.Assignee},
			{[]string{"status"}, &e.Status},
			{[]string{"type", "issue_type"}, &e.Type},
			{[]string{"priority"}, &e.Priority},
			{[]string{"due_date", "duedate"}, &e.DueDate},
			{[]string{"parent_key", "parent"}, &e.ParentKey},
		} {
			for _, name := range f.names {
				if s, ok, err := stringField(m, i, name); err != nil {
					return nil, err
				} else if ok {
					v := s
					*f.dst = &v
					break
				}
			}
		}
		for _, name := range []string{"story_points", "storypoints", "points"} {
			if raw, ok := m[name]; ok {
				n, ok := toFloat(raw)
				if !ok {
					return nil, fmt.Errorf("issues[%d].%s is not a number", i, name)
				}
				e.StoryPoints = &n
				break
			}
		}
		if lab, ok := m["labels"]; ok {
			ss, err := toStringSlice(lab)
			if err != nil {
				return nil, fmt.Errorf("issues[%d].labels: %v", i, err)
			}
			e.Labels = ss
		}
		if fv, ok := m["fix_versions"]; ok {
			ss, err := toStringSlice(fv)
			if err != nil {
				return nil, fmt.Errorf("issues[%d].fix_versions: %v", i, err)
			}
			e.FixVersions = ss
		}
		out = append(out, e)
	}
	return out, nil
}

func stringField(m map[string]any, idx int, name string) (string, bool, error) {
	raw, ok := m[name]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("issues[%d].%s is not a string", idx, name)
	}
	return s, true, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toStringSlice(v any) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, it := range x {
			s, ok := it.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", it)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected list of strings, got %T", v)
}
