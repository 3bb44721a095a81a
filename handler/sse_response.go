package handler

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/starfederation/datastar-go/datastar"
)

// LastEventIDHeader is sent by reconnecting EventSource clients
const LastEventIDHeader = "Last-Event-ID"

// Event is one server-sent event
type Event struct {
	ID   string
	Name string
	Data []byte
}

// Stream writes server-sent events to one client.
// The event stream is opened by the first write; until then a handler can
// still fail with a regular error response.
type Stream struct {
	w   http.ResponseWriter
	r   *http.Request
	sse *datastar.ServerSentEventGenerator
}

// Context is done when the client goes away or the server shuts down.
func (s *Stream) Context() context.Context {
	return s.r.Context()
}

// LastEventID returns the Last-Event-ID header, falling back to the
// last_event_id query parameter for clients that cannot set headers.
func (s *Stream) LastEventID() string {
	if id := strings.TrimSpace(s.r.Header.Get(LastEventIDHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(s.r.URL.Query().Get("last_event_id"))
}

// Started reports whether the response headers were sent
func (s *Stream) Started() bool {
	return s.sse != nil
}

// Send writes one event.
func (s *Stream) Send(ev Event) error {
	s.start()

	var opts []datastar.SSEEventOption
	if ev.ID != "" {
		opts = append(opts, datastar.WithSSEEventId(ev.ID))
	}
	return s.sse.Send(datastar.EventType(ev.Name), dataLines(ev.Data), opts...)
}

// Comment writes a comment line. EventSource clients ignore it, proxies see traffic.
func (s *Stream) Comment(text string) error {
	s.start()
	if _, err := s.w.Write([]byte(": " + strings.ReplaceAll(text, "\n", " ") + "\n\n")); err != nil {
		return err
	}
	return http.NewResponseController(s.w).Flush()
}

// KeepAlive writes the keep-alive comment
func (s *Stream) KeepAlive() error {
	return s.Comment("keep-alive")
}

func (s *Stream) start() {
	if s.sse == nil {
		s.sse = datastar.NewSSE(s.w, s.r)
	}
}

func dataLines(data []byte) []string {
	if len(data) == 0 {
		return []string{""}
	}
	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = string(line)
	}
	return out
}

// StreamFunc produces the events of one SSE response. It should return
// when the stream is finished or stream.Context() is done.
type StreamFunc func(stream *Stream) error

type sseResponse struct {
	fn StreamFunc
}

// Render clears the server write deadline for the long lived response and
// runs the stream. Errors are reported only while nothing was written; once
// the stream is open a failing write just ends it.
func (s sseResponse) Render(w http.ResponseWriter, r *http.Request) error {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	stream := &Stream{w: w, r: r}
	if err := s.fn(stream); err != nil && !stream.Started() {
		return err
	}
	return nil
}

// SSE creates a streaming response.
//
//	return handler.SSE(func(stream *handler.Stream) error {
//		for ev := range events {
//			if err := stream.Send(handler.Event{Name: "tick", Data: ev}); err != nil {
//				return err
//			}
//		}
//		return nil
//	})
func SSE(fn StreamFunc) Response {
	return sseResponse{fn: fn}
}
