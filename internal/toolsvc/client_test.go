package toolsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmercer/sprintdesk/internal/llm"
)

func TestExecutePostsToToolPath(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody executeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"issues": [{"key": "SD-1"}]}`)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, err := c.Execute(context.Background(), "fetch_sprint_issues",
		map[string]any{"sprint": "14"}, "tok-1", "cfg-1")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gotPath != "/tools/fetch_sprint_issues" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody.Arguments["sprint"] != "14" || gotBody.ConfigID != "cfg-1" {
		t.Fatalf("body = %+v", gotBody)
	}
	m := raw.(map[string]any)
	if _, ok := m["issues"]; !ok {
		t.Fatalf("raw = %v", raw)
	}
}

func TestExecuteOmitsAuthWithoutCredential(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	if _, err := c.Execute(context.Background(), "get_issue", nil, "", ""); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("auth = %q, want none", gotAuth)
	}
}

func TestExecuteNormalizesServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"message": "tracker rate limit"}`)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	_, err := c.Execute(context.Background(), "search_issues", map[string]any{"query": "x"}, "", "")

	var rle *llm.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %T %v", err, err)
	}
	if rle.RetryAfter() == nil {
		t.Fatal("Retry-After dropped")
	}
	if got := rle.Error(); !strings.Contains(got, "tracker rate limit") {
		t.Fatalf("message lost: %q", got)
	}
}

func TestExecuteErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	_, err := c.Execute(context.Background(), "get_issue", nil, "", "")
	if err == nil || !strings.Contains(err.Error(), "tool call failed: status 502") {
		t.Fatalf("err = %v", err)
	}
	if !llm.IsRetryable(err) {
		t.Fatal("502 should be retryable")
	}
}

func TestExecuteEmptyBodyIsNilResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	raw, err := c.Execute(context.Background(), "update_issues", nil, "", "")
	if err != nil || raw != nil {
		t.Fatalf("raw=%v err=%v", raw, err)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("empty base URL accepted")
	}
}
