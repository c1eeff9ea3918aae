package agent

import (
	"context"
	"fmt"
	"strings"
)

type Continuity string

const (
	ContinuityFresh      Continuity = "fresh"
	ContinuityContinuing Continuity = "continuing"
)

// ContinuityClassifier decides whether a new question continues the prior
// data context or starts a new one. Implementations are best-effort: the
// loop treats any error as "continuing".
type ContinuityClassifier interface {
	Classify(ctx context.Context, question, historySummary string) (Continuity, error)
}

type modelClassifier struct {
	model ModelClient
}

// NewModelClassifier backs the continuity decision with a cheap model call.
func NewModelClassifier(model ModelClient) ContinuityClassifier {
	return &modelClassifier{model: model}
}

func (c *modelClassifier) Classify(ctx context.Context, question, historySummary string) (Continuity, error) {
	prompt := fmt.Sprintf(
		"A user is chatting with a sprint data assistant.\n"+
			"Conversation so far:\n%s\n\n"+
			"New question: %s\n\n"+
			"Does the new question continue working with the data above, or does it start a fresh topic?\n"+
			"Answer with exactly one word: FRESH or CONTINUING.",
		historySummary, question)

	label, err := c.model.Classify(ctx, prompt)
	if err != nil {
		return ContinuityContinuing, err
	}
	if strings.Contains(strings.ToLower(label), "fresh") {
		return ContinuityFresh, nil
	}
	return ContinuityContinuing, nil
}
