package agent

import "testing"

func TestExtractTopicsFindsRecurringPhrases(t *testing.T) {
	topics := ExtractTopics([]string{
		"Login page timeout on mobile",
		"Login page styling broken",
		"Login page accessibility audit",
		"Export to CSV",
	})

	if len(topics) == 0 {
		t.Fatal("no topics found")
	}
	if topics[0].Phrase != "login page" || topics[0].Count != 3 {
		t.Fatalf("top topic = %+v", topics[0])
	}
	for _, tc := range topics {
		if tc.Count < 2 {
			t.Fatalf("topic below frequency threshold: %+v", tc)
		}
	}
}

func TestExtractTopicsDropsStopWordsAndShortTokens(t *testing.T) {
	topics := ExtractTopics([]string{
		"Fix the API for the users",
		"Fix the API for the admins",
	})
	for _, tc := range topics {
		if tc.Phrase == "fix the" || tc.Phrase == "the api" {
			t.Fatalf("stop word survived: %+v", tc)
		}
	}
}

func TestExtractTopicsEmptyInput(t *testing.T) {
	if got := ExtractTopics(nil); len(got) != 0 {
		t.Fatalf("got %+v", got)
	}
	if got := ExtractTopics([]string{"one"}); len(got) != 0 {
		t.Fatalf("single summary produced topics: %+v", got)
	}
}

func TestTopicTokensKeepHyphens(t *testing.T) {
	tokens := topicTokens("Re-index the e-mail queue")
	want := map[string]bool{"re-index": true, "e-mail": true, "queue": true}
	for _, tok := range tokens {
		if !want[tok] {
			t.Fatalf("unexpected token %q in %v", tok, tokens)
		}
	}
	if len(tokens) != 3 {
		t.Fatalf("tokens = %v", tokens)
	}
}
