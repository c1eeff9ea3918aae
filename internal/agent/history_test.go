package agent

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSummarizeHistoryDataFlow(t *testing.T) {
	a := NewRegexHistoryAnalyzer()
	summary := a.SummarizeHistory([]Turn{
		{Role: RoleUser, Content: "Show me sprint 4"},
		{Role: RoleAssistant, Content: "Fetched 12 issues from Sprint 4."},
		{Role: RoleUser, Content: "Filter to Alice's work"},
		{Role: RoleAssistant, Content: "There are 3 issues for Alice."},
	})

	if !strings.Contains(summary, "12 issues from Sprint 4") {
		t.Fatalf("summary = %q", summary)
	}
	if !strings.Contains(summary, " -> ") {
		t.Fatalf("no data-flow trail in %q", summary)
	}
	if !strings.Contains(summary, "3 issues") || !strings.Contains(summary, "for Alice") {
		t.Fatalf("summary = %q", summary)
	}
	if !strings.Contains(summary, "Earlier question: Filter to Alice's work") {
		t.Fatalf("summary = %q", summary)
	}
}

func TestSummarizeHistoryTruncatesLongQuestions(t *testing.T) {
	a := NewRegexHistoryAnalyzer()
	long := strings.Repeat("x", 300)
	summary := a.SummarizeHistory([]Turn{{Role: RoleUser, Content: long}})
	if strings.Contains(summary, strings.Repeat("x", 101)) {
		t.Fatalf("question not truncated: %d chars", len(summary))
	}
}

func TestSummarizeHistoryTruncatesOnRuneBoundary(t *testing.T) {
	a := NewRegexHistoryAnalyzer()
	// 3-byte runes, so the byte limit falls inside a character.
	long := strings.Repeat("€", 80)
	summary := a.SummarizeHistory([]Turn{{Role: RoleUser, Content: long}})
	if !utf8.ValidString(summary) {
		t.Fatalf("summary contains invalid UTF-8: %q", summary)
	}
	if !strings.Contains(summary, strings.Repeat("€", 33)) {
		t.Fatalf("question over-truncated: %q", summary)
	}
	if strings.Contains(summary, strings.Repeat("€", 34)) {
		t.Fatalf("question not truncated: %q", summary)
	}
}

func TestSummarizeHistoryKeepsLastTwoQuestions(t *testing.T) {
	a := NewRegexHistoryAnalyzer()
	summary := a.SummarizeHistory([]Turn{
		{Role: RoleUser, Content: "first question"},
		{Role: RoleUser, Content: "second question"},
		{Role: RoleUser, Content: "third question"},
	})
	if strings.Contains(summary, "first question") {
		t.Fatalf("oldest question kept: %q", summary)
	}
	if !strings.Contains(summary, "second question") || !strings.Contains(summary, "third question") {
		t.Fatalf("summary = %q", summary)
	}
}

func TestExtractDataContext(t *testing.T) {
	a := NewRegexHistoryAnalyzer()
	hint := a.ExtractDataContext([]Turn{
		{Role: RoleUser, Content: "sprint status?"},
		{Role: RoleAssistant, Content: "Sprint 14 has 12 issues totaling 40 points, including SD-101 and SD-102."},
	})

	if !strings.HasPrefix(hint, "The previous answer referenced:") {
		t.Fatalf("hint = %q", hint)
	}
	for _, want := range []string{"sprint 14", "12 issues", "40 story points", "SD-101", "SD-102"} {
		if !strings.Contains(hint, want) {
			t.Errorf("hint missing %q: %q", want, hint)
		}
	}
}

func TestExtractDataContextEmptyWhenNoFacts(t *testing.T) {
	a := NewRegexHistoryAnalyzer()
	if got := a.ExtractDataContext([]Turn{{Role: RoleAssistant, Content: "Sure, happy to help."}}); got != "" {
		t.Fatalf("hint = %q", got)
	}
	if got := a.ExtractDataContext(nil); got != "" {
		t.Fatalf("hint = %q", got)
	}
}

func TestSplitHistory(t *testing.T) {
	prior, current, err := SplitHistory([]Turn{
		{Role: RoleUser, Content: "a"},
		{Role: RoleAssistant, Content: "b"},
		{Role: RoleUser, Content: "c"},
	})
	if err != nil {
		t.Fatalf("SplitHistory: %v", err)
	}
	if len(prior) != 2 || current.Content != "c" {
		t.Fatalf("prior=%v current=%+v", prior, current)
	}

	if _, _, err := SplitHistory(nil); err == nil {
		t.Fatal("empty history should error")
	}
	if _, _, err := SplitHistory([]Turn{{Role: RoleAssistant, Content: "x"}}); err == nil {
		t.Fatal("assistant-final history should error")
	}
	if _, _, err := SplitHistory([]Turn{{Role: RoleUser, Content: "  "}}); err == nil {
		t.Fatal("blank question should error")
	}
}
