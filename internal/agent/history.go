package agent

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// HistoryAnalyzer derives best-effort hints about what data is in scope from
// prior turns. Both operations are heuristic: their output steers prompt
// assembly and the continuity classifier, never correctness-critical
// decisions. The interface exists so the regex strategy can be swapped for
// an embedding- or model-based one without touching the loop.
type HistoryAnalyzer interface {
	SummarizeHistory(turns []Turn) string
	ExtractDataContext(turns []Turn) string
}

type regexHistoryAnalyzer struct{}

func NewRegexHistoryAnalyzer() HistoryAnalyzer { return regexHistoryAnalyzer{} }

var (
	issueCountRe = regexp.MustCompile(`(?i)\b(\d+)\s+issues?\b`)
	sprintRe     = regexp.MustCompile(`(?i)\bsprint\s+(\d+)\b`)
	pointsRe     = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s+(?:story\s+)?points?\b`)
	issueKeyRe   = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)
	assigneeRe   = regexp.MustCompile(`(?i)\b(?:for|assigned to)\s+([A-Z][a-zA-Z]+)\b`)
)

const maxQuestionChars = 100

// SummarizeHistory builds a terse "data flow" trail from prior assistant
// turns plus the last two user questions, e.g.
// "fetched 12 issues from Sprint 4 -> filtered to 3 for Alice".
func (regexHistoryAnalyzer) SummarizeHistory(turns []Turn) string {
	var steps []string
	for _, t := range turns {
		if t.Role != RoleAssistant {
			continue
		}
		if step := describeAssistantTurn(t.Content); step != "" {
			steps = append(steps, step)
		}
	}

	var questions []string
	for i := len(turns) - 1; i >= 0 && len(questions) < 2; i-- {
		if turns[i].Role != RoleUser {
			continue
		}
		q := strings.TrimSpace(turns[i].Content)
		if len(q) > maxQuestionChars {
			// Cut on a rune boundary so a split multibyte character never
			// feeds invalid UTF-8 into the classifier prompt.
			cut := maxQuestionChars
			for cut > 0 && !utf8.RuneStart(q[cut]) {
				cut--
			}
			q = q[:cut]
		}
		questions = append([]string{q}, questions...)
	}

	var b strings.Builder
	if len(steps) > 0 {
		b.WriteString("Data flow: ")
		b.WriteString(strings.Join(steps, " -> "))
	}
	for _, q := range questions {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Earlier question: ")
		b.WriteString(q)
	}
	return b.String()
}

func describeAssistantTurn(text string) string {
	var parts []string
	if m := issueCountRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, m[1]+" issues")
	}
	if m := sprintRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, "Sprint "+m[1])
	}
	if m := assigneeRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, "for "+m[1])
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " from ")
}

// ExtractDataContext scans the last assistant turn for sprint/issue/count
// patterns and renders them as a short hint.
func (regexHistoryAnalyzer) ExtractDataContext(turns []Turn) string {
	last := LastAssistantTurn(turns)
	if last == "" {
		return ""
	}

	var facts []string
	if m := sprintRe.FindStringSubmatch(last); m != nil {
		facts = append(facts, "sprint "+m[1])
	}
	if m := issueCountRe.FindStringSubmatch(last); m != nil {
		facts = append(facts, m[1]+" issues")
	}
	if m := pointsRe.FindStringSubmatch(last); m != nil {
		facts = append(facts, m[1]+" story points")
	}
	if keys := issueKeyRe.FindAllString(last, 5); len(keys) > 0 {
		facts = append(facts, "issue keys "+strings.Join(dedupeStrings(keys), ", "))
	}
	if len(facts) == 0 {
		return ""
	}
	return fmt.Sprintf("The previous answer referenced: %s.", strings.Join(facts, "; "))
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
