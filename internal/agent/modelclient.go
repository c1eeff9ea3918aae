package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmercer/sprintdesk/internal/llm"
)

// ModelClient is the narrow LLM surface the loop consumes. The underlying
// provider is opaque; implementations decide models, retries, and transport.
type ModelClient interface {
	ChatWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (llm.Response, error)
	StreamAnswer(ctx context.Context, messages []llm.Message) (llm.Stream, error)
	Classify(ctx context.Context, prompt string) (string, error)
	ReviewAnswer(ctx context.Context, answer string, factsUsed []string) (ReviewVerdict, error)
}

// ClientModel adapts the provider-agnostic llm.Client to ModelClient.
// Chat calls go through the retry policy; the classifier uses a cheaper
// model when configured.
type ClientModel struct {
	Client          *llm.Client
	Provider        string
	Model           string
	ClassifierModel string

	RetryPolicy llm.RetryPolicy
	Sleep       llm.SleepFunc
}

func NewClientModel(client *llm.Client, provider, model, classifierModel string) *ClientModel {
	if classifierModel == "" {
		classifierModel = model
	}
	return &ClientModel{
		Client:          client,
		Provider:        provider,
		Model:           model,
		ClassifierModel: classifierModel,
		RetryPolicy:     llm.DefaultRetryPolicy(),
	}
}

func (m *ClientModel) ChatWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (llm.Response, error) {
	req := llm.Request{
		Model:    m.Model,
		Provider: m.Provider,
		Messages: messages,
		Tools:    tools,
	}
	return llm.Retry(ctx, m.RetryPolicy, m.Sleep, nil, func() (llm.Response, error) {
		return m.Client.Complete(ctx, req)
	})
}

func (m *ClientModel) StreamAnswer(ctx context.Context, messages []llm.Message) (llm.Stream, error) {
	return m.Client.Stream(ctx, llm.Request{
		Model:    m.Model,
		Provider: m.Provider,
		Messages: messages,
	})
}

func (m *ClientModel) Classify(ctx context.Context, prompt string) (string, error) {
	temp := 0.0
	resp, err := m.Client.Complete(ctx, llm.Request{
		Model:       m.ClassifierModel,
		Provider:    m.Provider,
		Messages:    []llm.Message{llm.User(prompt)},
		Temperature: &temp,
		MaxTokens:   8,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (m *ClientModel) ReviewAnswer(ctx context.Context, answer string, factsUsed []string) (ReviewVerdict, error) {
	prompt := fmt.Sprintf(
		"You audit answers produced by a sprint data assistant.\n"+
			"Facts gathered from tools during the turn:\n%s\n\n"+
			"Final answer given to the user:\n%s\n\n"+
			"Is the answer consistent with the gathered facts? Reply with one line:\n"+
			"PASS: <one-sentence summary>  or  FAIL: <reason>.",
		strings.Join(factsUsed, "\n"), answer)

	resp, err := m.Client.Complete(ctx, llm.Request{
		Model:    m.ClassifierModel,
		Provider: m.Provider,
		Messages: []llm.Message{llm.User(prompt)},
	})
	if err != nil {
		return ReviewVerdict{}, err
	}
	return parseVerdict(resp.Text()), nil
}

func parseVerdict(text string) ReviewVerdict {
	line := strings.TrimSpace(text)
	upper := strings.ToUpper(line)
	switch {
	case strings.HasPrefix(upper, "PASS"):
		return ReviewVerdict{Pass: true, Summary: trimVerdictTail(line)}
	case strings.HasPrefix(upper, "FAIL"):
		return ReviewVerdict{Pass: false, Reason: trimVerdictTail(line)}
	default:
		// Unparseable verdicts count as a pass with the raw text attached;
		// the review never blocks the answer.
		return ReviewVerdict{Pass: true, Summary: line}
	}
}

func trimVerdictTail(line string) string {
	if i := strings.IndexByte(line, ':'); i >= 0 {
		return strings.TrimSpace(line[i+1:])
	}
	return ""
}
