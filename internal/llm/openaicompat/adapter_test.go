package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmercer/sprintdesk/internal/llm"
)

func testAdapter(serverURL string) *Adapter {
	return NewAdapter(Config{
		Provider: "openai",
		APIKey:   "test-key",
		BaseURL:  serverURL,
	})
}

func chatRequest() llm.Request {
	return llm.Request{
		Model:    "gpt-4o",
		Messages: []llm.Message{llm.User("hello")},
	}
}

func TestCompleteParsesTextResponse(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{
			"choices": [{"message": {"content": "hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3}
		}`)
	}))
	defer srv.Close()

	resp, err := testAdapter(srv.URL).Complete(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text() != "hi there" || resp.Finish != llm.FinishStop {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 3 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestCompleteParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{"id": "call_abc", "function": {"name": "fetch_sprint_issues", "arguments": "{\"sprint\":\"14\"}"}}]
				},
				"finish_reason": "tool_calls"
			}]
		}`)
	}))
	defer srv.Close()

	resp, err := testAdapter(srv.URL).Complete(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	calls := resp.ToolCalls()
	if len(calls) != 1 || calls[0].Name != "fetch_sprint_issues" || calls[0].ID != "call_abc" {
		t.Fatalf("calls = %+v", calls)
	}
	if string(calls[0].Arguments) != `{"sprint":"14"}` {
		t.Fatalf("arguments = %s", calls[0].Arguments)
	}
	if resp.Finish != llm.FinishToolCalls {
		t.Fatalf("finish = %v", resp.Finish)
	}
}

func TestCompleteMapsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited"}}`)
	}))
	defer srv.Close()

	_, err := testAdapter(srv.URL).Complete(context.Background(), chatRequest())
	var rle *llm.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %T %v", err, err)
	}
	if !llm.IsRetryable(err) {
		t.Fatal("rate limit should be retryable")
	}
	if rle.RetryAfter() == nil {
		t.Fatal("Retry-After header dropped")
	}
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer srv.Close()

	_, err := testAdapter(srv.URL).Complete(context.Background(), chatRequest())
	if err == nil {
		t.Fatal("empty choices accepted")
	}
}

func TestStreamDeliversDeltasAndFinal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != true {
			t.Errorf("stream flag not set: %v", body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2},\"choices\":[]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	s, err := testAdapter(srv.URL).Stream(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	var text string
	var final *llm.Response
	for ev := range s.Events() {
		switch ev.Type {
		case llm.StreamEventTextDelta:
			text += ev.Delta
		case llm.StreamEventFinish:
			final = ev.Response
		case llm.StreamEventError:
			t.Fatalf("stream error: %v", ev.Err)
		}
	}
	if text != "Hello" {
		t.Fatalf("text = %q", text)
	}
	if final == nil || final.Text() != "Hello" || final.Usage.InputTokens != 5 {
		t.Fatalf("final = %+v", final)
	}
}

func TestStreamErrorStatusReturnsUnifiedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "bad key"}}`)
	}))
	defer srv.Close()

	_, err := testAdapter(srv.URL).Stream(context.Background(), chatRequest())
	var ae *llm.AuthenticationError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %T %v", err, err)
	}
}

func TestMapFinishReason(t *testing.T) {
	cases := map[string]llm.FinishReason{
		"stop":          llm.FinishStop,
		"":              llm.FinishStop,
		"tool_calls":    llm.FinishToolCalls,
		"function_call": llm.FinishToolCalls,
		"length":        llm.FinishLength,
	}
	for in, want := range cases {
		if got := mapFinishReason(in); got != want {
			t.Errorf("mapFinishReason(%q) = %v, want %v", in, got, want)
		}
	}
}
