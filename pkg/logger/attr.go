package logger

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups the non-nil errors under "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.String(strconv.Itoa(i), err.Error()))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error records err under "error". A nil error yields an empty Attr,
// so callers can pass it unconditionally.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func TaskID(id uuid.UUID) slog.Attr {
	return slog.String("task_id", id.String())
}

func TaskType(taskType string) slog.Attr {
	return slog.String("task_type", taskType)
}

// TaskStatus accepts any string-based status type.
func TaskStatus[S ~string](status S) slog.Attr {
	return slog.String("status", string(status))
}

func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

func EventID(id int64) slog.Attr {
	return slog.Int64("event_id", id)
}

func HourUTC(hour int) slog.Attr {
	return slog.Int("hour_utc", hour)
}

func UserID(id int64) slog.Attr {
	return slog.Int64("user_id", id)
}

// RequestID records the request identifier. Empty ids yield an empty Attr.
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
