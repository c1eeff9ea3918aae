package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorFromHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		status    int
		wantType  any
		retryable bool
	}{
		{400, &InvalidRequestError{}, false},
		{401, &AuthenticationError{}, false},
		{403, &AccessDeniedError{}, false},
		{404, &NotFoundError{}, false},
		{408, &RequestTimeoutError{}, true},
		{413, &ContextLengthError{}, false},
		{422, &InvalidRequestError{}, false},
		{429, &RateLimitError{}, true},
		{500, &ServerError{}, true},
		{502, &ServerError{}, true},
		{503, &ServerError{}, true},
		{504, &ServerError{}, true},
		{418, &UnknownHTTPError{}, true},
	}
	for _, tc := range cases {
		err := ErrorFromHTTPStatus("openai", tc.status, "boom", nil)
		if fmt.Sprintf("%T", err) != fmt.Sprintf("%T", tc.wantType) {
			t.Errorf("status %d: got %T, want %T", tc.status, err, tc.wantType)
		}
		if IsRetryable(err) != tc.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tc.status, IsRetryable(err), tc.retryable)
		}
		var ue Error
		if !errors.As(err, &ue) || ue.StatusCode() != tc.status || ue.Provider() != "openai" {
			t.Errorf("status %d: unified accessors wrong: %v", tc.status, err)
		}
	}
}

func TestErrorFromHTTPStatusMessageHints(t *testing.T) {
	cases := []struct {
		message  string
		wantType any
	}{
		{"request blocked by content filter", &ContentFilterError{}},
		{"flagged by safety system", &ContentFilterError{}},
		{"maximum context length exceeded", &ContextLengthError{}},
		{"too many tokens in request", &ContextLengthError{}},
		{"you have exceeded your quota", &QuotaExceededError{}},
		{"billing hard limit reached", &QuotaExceededError{}},
		{"model does not exist", &NotFoundError{}},
		{"invalid key provided", &AuthenticationError{}},
		{"plain validation failure", &InvalidRequestError{}},
	}
	for _, tc := range cases {
		err := ErrorFromHTTPStatus("openai", 400, tc.message, nil)
		if fmt.Sprintf("%T", err) != fmt.Sprintf("%T", tc.wantType) {
			t.Errorf("%q: got %T, want %T", tc.message, err, tc.wantType)
		}
	}
}

func TestErrorRetryAfterPropagates(t *testing.T) {
	d := 7 * time.Second
	err := ErrorFromHTTPStatus("openai", 429, "slow down", &d)
	var ue Error
	if !errors.As(err, &ue) {
		t.Fatal("not a unified error")
	}
	if ue.RetryAfter() == nil || *ue.RetryAfter() != d {
		t.Fatalf("RetryAfter = %v", ue.RetryAfter())
	}
}

func TestWrapContextError(t *testing.T) {
	if got := WrapContextError("openai", nil); got != nil {
		t.Fatalf("nil wrap = %v", got)
	}
	if got := WrapContextError("openai", context.Canceled); !errors.Is(got, context.Canceled) {
		t.Fatalf("canceled wrap = %v", got)
	}
	got := WrapContextError("openai", context.DeadlineExceeded)
	var rte *RequestTimeoutError
	if !errors.As(got, &rte) || IsRetryable(got) {
		t.Fatalf("deadline wrap = %T retryable=%v", got, IsRetryable(got))
	}
	got = WrapContextError("openai", errors.New("connection reset"))
	if !IsRetryable(got) {
		t.Fatalf("transport wrap not retryable: %v", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	if d := ParseRetryAfter("5", now); d == nil || *d != 5*time.Second {
		t.Fatalf("seconds form = %v", d)
	}
	httpDate := now.Add(30 * time.Second).Format(time.RFC1123)
	if d := ParseRetryAfter(httpDate, now); d == nil || *d != 30*time.Second {
		t.Fatalf("date form = %v", d)
	}
	past := now.Add(-time.Minute).Format(time.RFC1123)
	if d := ParseRetryAfter(past, now); d == nil || *d != 0 {
		t.Fatalf("past date = %v", d)
	}
	if d := ParseRetryAfter("", now); d != nil {
		t.Fatalf("empty = %v", d)
	}
	if d := ParseRetryAfter("soon", now); d != nil {
		t.Fatalf("garbage = %v", d)
	}
	if d := ParseRetryAfter("-3", now); d != nil {
		t.Fatalf("negative = %v", d)
	}
}

func TestIsRetryableNonUnifiedError(t *testing.T) {
	if IsRetryable(errors.New("plain")) {
		t.Fatal("plain errors must not be retryable")
	}
	if IsRetryable(nil) {
		t.Fatal("nil must not be retryable")
	}
}
