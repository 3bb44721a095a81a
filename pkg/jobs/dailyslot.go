package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrymomot/taskline/pkg/logger"
	"github.com/dmitrymomot/taskline/pkg/queue"
)

// Progress stages reported by the daily slot fan-out.
const (
	StageCollect    = "collect"
	StageGenerate   = "generate"
	StageUserFailed = "user_failed"
)

const keyDateLayout = "2006-01-02"

// DailySlotResult is the task result of a daily slot fan-out.
type DailySlotResult struct {
	HourUTC   int  `json:"hour_utc"`
	Total     int  `json:"total"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Canceled  bool `json:"canceled,omitempty"`
}

type collectProgress struct {
	TaskID     string `json:"task_id"`
	Stage      string `json:"stage"`
	HourUTC    int    `json:"hour_utc"`
	TotalUsers int    `json:"total_users"`
}

type generateProgress struct {
	TaskID       string     `json:"task_id"`
	Stage        string     `json:"stage"`
	Index        int        `json:"index"`
	Total        int        `json:"total"`
	UserID       int64      `json:"user_id"`
	LastActiveAt *time.Time `json:"last_active_at"`
	KeyDate      string     `json:"key_date"`
}

type userFailedProgress struct {
	TaskID string `json:"task_id"`
	Stage  string `json:"stage"`
	UserID int64  `json:"user_id"`
	Error  string `json:"error"`
}

// dailySlot generates the brief for every eligible user of the hour.
// A failing user is recorded and skipped; the task fails only when every
// attempted user failed.
func (e *Executor) dailySlot(ctx context.Context, c DailySlot, ctl queue.TaskControl) (json.RawMessage, error) {
	if e.users == nil {
		return nil, unavailable("user directory")
	}
	if e.briefs == nil {
		return nil, unavailable("brief generator")
	}

	users, err := e.users.UsersForHour(ctx, c.HourUTC)
	if err != nil {
		return nil, fmt.Errorf("failed to query users for daily slot: %w", err)
	}

	taskID := ctl.TaskID().String()
	if err := ctl.Progress(ctx, collectProgress{
		TaskID:     taskID,
		Stage:      StageCollect,
		HourUTC:    c.HourUTC,
		TotalUsers: len(users),
	}); err != nil {
		return nil, err
	}

	res := DailySlotResult{HourUTC: c.HourUTC, Total: len(users)}
	for i, user := range users {
		if e.cancelRequested(ctx, ctl) {
			res.Canceled = true
			break
		}

		boundary, err := queue.ParseBoundary(user.DailyBriefUTCTime)
		if err != nil {
			boundary = queue.Boundary{Hour: c.HourUTC}
		}
		keyDate := queue.KeyDateForBoundary(e.now(), boundary)

		if err := ctl.Progress(ctx, generateProgress{
			TaskID:       taskID,
			Stage:        StageGenerate,
			Index:        i + 1,
			Total:        len(users),
			UserID:       user.ID,
			LastActiveAt: user.LastActiveAt,
			KeyDate:      keyDate.Format(keyDateLayout),
		}); err != nil {
			return nil, err
		}

		if err := e.briefs.GenerateDailyBrief(ctx, user.ID, keyDate, boundary); err != nil {
			res.Failed++
			e.logger.WarnContext(ctx, "daily brief failed",
				logger.TaskID(ctl.TaskID()),
				logger.UserID(user.ID),
				logger.Error(err))
			if err := ctl.Progress(ctx, userFailedProgress{
				TaskID: taskID,
				Stage:  StageUserFailed,
				UserID: user.ID,
				Error:  err.Error(),
			}); err != nil {
				return nil, err
			}
			continue
		}
		res.Succeeded++
	}

	if !res.Canceled && res.Failed > 0 && res.Succeeded == 0 {
		return nil, fmt.Errorf("daily slot %02d failed for all users (failed=%d, total=%d)", c.HourUTC, res.Failed, res.Total)
	}

	return encodeResult(res, nil)
}
