package agent

import (
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the token footprint of text for context-usage
// warnings. Estimates only; never used for correctness decisions.
type TokenCounter interface {
	Count(text string) int
}

type heuristicCounter struct{}

func (heuristicCounter) Count(text string) int { return len(text) / 4 }

// NewHeuristicCounter approximates four characters per token.
func NewHeuristicCounter() TokenCounter { return heuristicCounter{} }

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter builds a BPE-backed counter for the given model,
// falling back to the cl100k_base encoding for unknown models. Callers that
// cannot tolerate the encoding download should keep the heuristic counter.
func NewTiktokenCounter(model string) (TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
