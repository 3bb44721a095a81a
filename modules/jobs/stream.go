package jobs

import (
	"strconv"

	"github.com/dmitrymomot/taskline/handler"
	"github.com/dmitrymomot/taskline/pkg/queue"
)

// streamSink writes queue frames to an SSE stream
type streamSink struct {
	stream *handler.Stream
}

func (s streamSink) Send(f queue.Frame) error {
	switch f.Kind {
	case queue.FrameKeepAlive:
		return s.stream.KeepAlive()
	case queue.FrameReady:
		return s.stream.Comment(f.Name)
	default:
		return s.stream.Send(handler.Event{
			ID:   strconv.FormatInt(f.ID, 10),
			Name: f.Name,
			Data: f.Data,
		})
	}
}

// lastEventID parses the resume cursor. Anything that is not a
// non-negative integer means no cursor.
func lastEventID(stream *handler.Stream) (int64, bool) {
	raw := stream.LastEventID()
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
