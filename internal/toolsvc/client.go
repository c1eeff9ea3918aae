// Package toolsvc talks to the external tool-execution service that owns
// the issue-tracker credentials and performs remote tool calls.
package toolsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmercer/sprintdesk/internal/llm"
)

const defaultTimeout = 60 * time.Second

// maxErrorBody caps how much of an error response is read for the message.
const maxErrorBody = 8 << 10

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client executes remote tools via POST {base}/tools/{name}. The request
// credential travels as a bearer token, never in the body.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("tool service base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type executeRequest struct {
	Arguments map[string]any `json:"arguments"`
	ConfigID  string         `json:"config_id,omitempty"`
}

type serviceError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Execute implements agent.RemoteExecutor. Non-2xx responses are normalized
// into the shared error taxonomy so the caller's retry policy applies.
func (c *Client) Execute(ctx context.Context, tool string, args map[string]any, credential, configID string) (any, error) {
	body, err := json.Marshal(executeRequest{Arguments: args, ConfigID: configID})
	if err != nil {
		return nil, fmt.Errorf("encode tool arguments: %w", err)
	}

	url := c.baseURL + "/tools/" + tool
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, llm.WrapContextError("toolsvc", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := errorMessage(raw)
		if msg == "" {
			msg = fmt.Sprintf("tool call failed: status %d", resp.StatusCode)
		}
		retryAfter := llm.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return nil, llm.ErrorFromHTTPStatus("toolsvc", resp.StatusCode, msg, retryAfter)
	}

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode tool service response: %w", err)
	}
	return result, nil
}

func errorMessage(raw []byte) string {
	var se serviceError
	if err := json.Unmarshal(raw, &se); err == nil {
		if se.Message != "" {
			return se.Message
		}
		if se.Error != "" {
			return se.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
