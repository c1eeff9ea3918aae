// Package report builds multi-sprint summary reports by fetching each
// sprint's issues through the tool service and aggregating them.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmercer/sprintdesk/internal/agent"
	"github.com/jmercer/sprintdesk/internal/llm"
)

const defaultConcurrency = 4

type Config struct {
	// Concurrency bounds simultaneous fetches against the tool service.
	Concurrency int
	RetryPolicy llm.RetryPolicy
	Sleep       llm.SleepFunc
}

type Generator struct {
	remote agent.RemoteExecutor
	cfg    Config
}

func NewGenerator(remote agent.RemoteExecutor, cfg Config) (*Generator, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote executor is nil")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.RetryPolicy.MaxAttempts == 0 {
		cfg.RetryPolicy = llm.DefaultRetryPolicy()
	}
	return &Generator{remote: remote, cfg: cfg}, nil
}

// SprintSummary is one sprint's slice of the report. Err is set when the
// fetch failed after retries; aggregates are zero in that case.
type SprintSummary struct {
	Sprint     string
	Count      int
	Points     float64
	ByStatus   []agent.GroupStat
	ByAssignee []agent.GroupStat
	Err        error
}

type Report struct {
	Sprints     []SprintSummary
	TotalIssues int
	TotalPoints float64
	GeneratedAt time.Time
}

// Generate fetches all sprints concurrently. Per-sprint failures do not
// abort the report: each failed sprint carries its own error.
func (g *Generator) Generate(ctx context.Context, sprints []string, credential, configID string) (Report, error) {
	if len(sprints) == 0 {
		return Report{}, fmt.Errorf("no sprints requested")
	}

	summaries := make([]SprintSummary, len(sprints))
	var mu sync.Mutex

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.cfg.Concurrency)
	for i, sprint := range sprints {
		grp.Go(func() error {
			s := g.fetchSprint(gctx, sprint, credential, configID)
			mu.Lock()
			summaries[i] = s
			mu.Unlock()
			// Only cancellation stops the group; fetch errors stay local.
			return gctx.Err()
		})
	}
	if err := grp.Wait(); err != nil {
		return Report{}, err
	}

	rep := Report{Sprints: summaries, GeneratedAt: time.Now()}
	for _, s := range summaries {
		rep.TotalIssues += s.Count
		rep.TotalPoints += s.Points
	}
	return rep, nil
}

func (g *Generator) fetchSprint(ctx context.Context, sprint, credential, configID string) SprintSummary {
	raw, err := llm.Retry(ctx, g.cfg.RetryPolicy, g.cfg.Sleep, nil, func() (any, error) {
		return g.remote.Execute(ctx, "fetch_sprint_issues", map[string]any{"sprint": sprint}, credential, configID)
	})
	if err != nil {
		return SprintSummary{Sprint: sprint, Err: err}
	}
	issues, ok := agent.DecodeIssues(raw)
	if !ok {
		return SprintSummary{Sprint: sprint, Err: fmt.Errorf("sprint %s: unrecognized issue payload", sprint)}
	}
	agg := agent.AggregateIssues(issues)
	return SprintSummary{
		Sprint:     sprint,
		Count:      agg.Count,
		Points:     agg.TotalPoints,
		ByStatus:   agg.ByStatus,
		ByAssignee: agg.ByAssignee,
	}
}

// Render produces a plain-text report, one block per sprint in the order
// requested, sprints with the most issues first within the totals line.
func (r Report) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sprint report (%d sprints, %d issues, %s points)\n",
		len(r.Sprints), r.TotalIssues, trimPoints(r.TotalPoints))
	for _, s := range r.Sprints {
		fmt.Fprintf(&b, "\n== %s ==\n", s.Sprint)
		if s.Err != nil {
			fmt.Fprintf(&b, "fetch failed: %v\n", s.Err)
			continue
		}
		fmt.Fprintf(&b, "%d issues, %s points\n", s.Count, trimPoints(s.Points))
		writeGroups(&b, "status", s.ByStatus)
		writeGroups(&b, "assignee", s.ByAssignee)
	}
	return b.String()
}

func writeGroups(b *strings.Builder, label string, groups []agent.GroupStat) {
	if len(groups) == 0 {
		return
	}
	sorted := make([]agent.GroupStat, len(groups))
	copy(sorted, groups)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Count > sorted[j].Count })
	parts := make([]string, 0, len(sorted))
	for _, gs := range sorted {
		parts = append(parts, fmt.Sprintf("%s %d", gs.Name, gs.Count))
	}
	fmt.Fprintf(b, "by %s: %s\n", label, strings.Join(parts, ", "))
}

func trimPoints(p float64) string {
	s := fmt.Sprintf("%.1f", p)
	return strings.TrimSuffix(s, ".0")
}
