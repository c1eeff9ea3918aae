package llm

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
)

type StreamEventType string

const (
	StreamEventStart     StreamEventType = "stream_start"
	StreamEventTextDelta StreamEventType = "text_delta"
	StreamEventFinish    StreamEventType = "finish"
	StreamEventError     StreamEventType = "error"
)

type StreamEvent struct {
	Type         StreamEventType
	Delta        string
	FinishReason *FinishReason
	Usage        *Usage
	Response     *Response
	Err          error
}

// Stream is a pull-based event sequence from a streaming completion.
// Events is closed when the stream ends; Close aborts the underlying request.
type Stream interface {
	Events() <-chan StreamEvent
	Close()
}

// ChanStream is the channel-backed Stream used by adapters. The producer
// goroutine calls Send and CloseSend; the consumer drains Events.
type ChanStream struct {
	ch     chan StreamEvent
	cancel func()
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	closed bool
}

func NewChanStream(cancel func()) *ChanStream {
	return &ChanStream{
		ch:     make(chan StreamEvent, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *ChanStream) Events() <-chan StreamEvent { return s.ch }

// Send delivers an event to the consumer. Events sent after CloseSend are
// dropped rather than panicking, and a Send blocked on a full buffer
// unblocks when the consumer calls Close, so an abandoned stream never
// strands the producer goroutine.
func (s *ChanStream) Send(ev StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	case <-s.done:
	}
}

func (s *ChanStream) CloseSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Close aborts the stream from the consumer side. It must not take mu: a
// producer blocked in Send holds the lock until done is closed.
func (s *ChanStream) Close() {
	s.once.Do(func() { close(s.done) })
	if s.cancel != nil {
		s.cancel()
	}
}

// SSEEvent is one server-sent event: an optional event name plus data payload.
type SSEEvent struct {
	Event string
	Data  []byte
}

// ParseSSE reads text/event-stream records and invokes fn per event.
// Returns the first fn error, a read error, or nil at EOF.
func ParseSSE(ctx context.Context, r io.Reader, fn func(SSEEvent) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var name string
	var data bytes.Buffer
	flush := func() error {
		if data.Len() == 0 && name == "" {
			return nil
		}
		ev := SSEEvent{Event: name, Data: append([]byte{}, data.Bytes()...)}
		name = ""
		data.Reset()
		return fn(ev)
	}

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return flush()
}
