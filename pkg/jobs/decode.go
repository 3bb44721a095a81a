package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrymomot/taskline/pkg/queue"
)

// Decode turns a stored task into its Command.
// Unknown types yield queue.ErrUnsupportedTaskType; missing or mistyped
// fields yield a *PayloadError.
func Decode(taskType string, payload json.RawMessage) (Command, error) {
	f, err := parseFields(payload)
	if err != nil {
		return nil, err
	}

	switch taskType {
	case TypeSyncStarred:
		return userCommand(f, func(id int64) Command { return SyncStarred{UserID: id} })
	case TypeSyncReleases:
		return userCommand(f, func(id int64) Command { return SyncReleases{UserID: id} })
	case TypeSyncNotifications:
		return userCommand(f, func(id int64) Command { return SyncNotifications{UserID: id} })
	case TypeSyncAll:
		return userCommand(f, func(id int64) Command { return SyncAll{UserID: id} })
	case TypeGenerateBrief:
		return userCommand(f, func(id int64) Command { return GenerateBrief{UserID: id} })
	case TypeDailySlot:
		hour, err := f.int64("hour_utc")
		if err != nil {
			return nil, err
		}
		slotKey, _ := f.string("slot_key")
		return DailySlot{HourUTC: int(hour), SlotKey: slotKey}, nil
	case TypeTranslateRelease, TypeTranslateReleaseDetail:
		userID, err := f.int64("user_id")
		if err != nil {
			return nil, err
		}
		releaseID, err := f.string("release_id")
		if err != nil {
			return nil, err
		}
		if taskType == TypeTranslateReleaseDetail {
			return TranslateReleaseDetail{UserID: userID, ReleaseID: releaseID}, nil
		}
		return TranslateRelease{UserID: userID, ReleaseID: releaseID}, nil
	case TypeTranslateReleaseBatch:
		userID, err := f.int64("user_id")
		if err != nil {
			return nil, err
		}
		ids, err := f.int64s("release_ids")
		if err != nil {
			return nil, err
		}
		return TranslateReleaseBatch{UserID: userID, ReleaseIDs: ids}, nil
	case TypeTranslateNotification:
		userID, err := f.int64("user_id")
		if err != nil {
			return nil, err
		}
		threadID, err := f.string("thread_id")
		if err != nil {
			return nil, err
		}
		return TranslateNotification{UserID: userID, ThreadID: threadID}, nil
	}

	return nil, fmt.Errorf("%w: %s", queue.ErrUnsupportedTaskType, taskType)
}

func userCommand(f fields, build func(userID int64) Command) (Command, error) {
	userID, err := f.int64("user_id")
	if err != nil {
		return nil, err
	}
	return build(userID), nil
}

type fields map[string]any

func parseFields(payload json.RawMessage) (fields, error) {
	f := fields{}
	if len(bytes.TrimSpace(payload)) == 0 {
		return f, nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", queue.ErrInvalidPayload, err)
	}
	return f, nil
}

func (f fields) int64(key string) (int64, error) {
	n, ok := f[key].(json.Number)
	if !ok {
		return 0, &PayloadError{Field: key, Reason: reasonInteger}
	}
	v, err := n.Int64()
	if err != nil {
		return 0, &PayloadError{Field: key, Reason: reasonInteger}
	}
	return v, nil
}

// string returns the trimmed value; blank strings count as missing.
func (f fields) string(key string) (string, error) {
	s, ok := f[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", &PayloadError{Field: key, Reason: reasonString}
	}
	return strings.TrimSpace(s), nil
}

func (f fields) int64s(key string) ([]int64, error) {
	items, ok := f[key].([]any)
	if !ok {
		return nil, &PayloadError{Field: key, Reason: reasonArray}
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		n, ok := item.(json.Number)
		if !ok {
			return nil, &PayloadError{Field: key, Reason: reasonIntArray}
		}
		v, err := n.Int64()
		if err != nil {
			return nil, &PayloadError{Field: key, Reason: reasonIntArray}
		}
		out = append(out, v)
	}
	return out, nil
}
