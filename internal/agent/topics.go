package agent

import (
	"sort"
	"strings"
)

// PhraseCount is one recurring topic phrase across issue summaries.
type PhraseCount struct {
	Phrase string
	Count  int
}

var topicStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"that": true, "this": true, "are": true, "was": true, "were": true,
	"should": true, "would": true, "could": true, "have": true, "has": true,
	"not": true, "but": true, "when": true, "where": true, "into": true,
	"add": true, "fix": true, "update": true, "new": true, "all": true,
}

// ExtractTopics finds recurring 2- and 3-word phrases across free-text
// summaries: lowercase, punctuation stripped except hyphens, tokens of at
// most 2 characters and stop words dropped, phrases kept at frequency >= 2,
// sorted by descending frequency.
func ExtractTopics(summaries []string) []PhraseCount {
	counts := map[string]int{}
	for _, s := range summaries {
		tokens := topicTokens(s)
		for n := 2; n <= 3; n++ {
			for i := 0; i+n <= len(tokens); i++ {
				phrase := strings.Join(tokens[i:i+n], " ")
				counts[phrase]++
			}
		}
	}

	out := make([]PhraseCount, 0, len(counts))
	for phrase, c := range counts {
		if c >= 2 {
			out = append(out, PhraseCount{Phrase: phrase, Count: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Phrase < out[j].Phrase
	})
	return out
}

func topicTokens(s string) []string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	fields := strings.Fields(b.String())
	out := fields[:0]
	for _, tok := range fields {
		if len(tok) <= 2 || topicStopWords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}
