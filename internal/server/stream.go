package server

import (
	"encoding/json"
	"net/http"

	"github.com/jmercer/sprintdesk/internal/agent"
)

// StreamResult is what the handler learns from a fully drained event stream:
// the structured issue payloads (for refreshing the session cache) and
// whether any confirmed write actually landed (for invalidating it).
type StreamResult struct {
	IssuePayloads  []agent.StructuredPayload
	WriteSucceeded bool
}

// WriteEventStream encodes events as NDJSON, one object per line, flushing
// after each line so the client sees events as they happen. Consumption
// speed is the loop's backpressure: a slow reader slows the producer.
//
// The returned error is the first write failure if the client went away
// mid-stream; the StreamResult is valid either way.
func WriteEventStream(w http.ResponseWriter, events <-chan agent.Event) (StreamResult, error) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	var res StreamResult
	var writeErr error

	for ev := range events {
		if ev.Kind == agent.EventStructuredData && ev.Data != nil && ev.Data.Kind == "issues" {
			res.IssuePayloads = append(res.IssuePayloads, *ev.Data)
		}
		if ev.Kind == agent.EventToolResult && ev.Args != nil {
			if n, ok := toCount(ev.Args["succeeded"]); ok && n > 0 {
				res.WriteSucceeded = true
			}
		}
		if writeErr != nil {
			// Keep draining so the producer can finish; events after a dead
			// client are dropped.
			continue
		}
		if err := enc.Encode(ev); err != nil {
			writeErr = err
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return res, writeErr
}

func toCount(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
