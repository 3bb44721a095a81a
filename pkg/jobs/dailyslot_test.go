package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskline/pkg/jobs"
	"github.com/dmitrymomot/taskline/pkg/logger"
	"github.com/dmitrymomot/taskline/pkg/queue"
)

var slotNow = time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC)

func slotUsers() []jobs.SlotUser {
	active := slotNow.Add(-time.Hour)
	return []jobs.SlotUser{
		{ID: 1, DailyBriefUTCTime: "08:00", LastActiveAt: &active},
		{ID: 2, DailyBriefUTCTime: "07:15"},
		{ID: 3, DailyBriefUTCTime: "garbage"},
	}
}

func newSlotExecutor(users jobs.UserDirectory, briefs jobs.BriefGenerator) *jobs.Executor {
	return jobs.NewExecutor(
		jobs.WithUserDirectory(users),
		jobs.WithBriefGenerator(briefs),
		jobs.WithLogger(logger.Discard()),
		jobs.WithClock(func() time.Time { return slotNow }),
	)
}

func decodeSlotResult(t *testing.T, raw json.RawMessage) jobs.DailySlotResult {
	t.Helper()
	var res jobs.DailySlotResult
	require.NoError(t, json.Unmarshal(raw, &res))
	return res
}

func TestExecutor_DailySlot(t *testing.T) {
	t.Parallel()

	t.Run("partial failure still succeeds", func(t *testing.T) {
		t.Parallel()
		users := &MockUserDirectory{}
		users.On("UsersForHour", mock.Anything, 8).Return(slotUsers(), nil)

		briefs := &MockBriefGenerator{}
		briefs.On("GenerateDailyBrief", mock.Anything, int64(1), mock.Anything, mock.Anything).Return(nil)
		briefs.On("GenerateDailyBrief", mock.Anything, int64(2), mock.Anything, mock.Anything).Return(errors.New("llm down"))
		briefs.On("GenerateDailyBrief", mock.Anything, int64(3), mock.Anything, mock.Anything).Return(nil)

		ctl := newFakeControl(0)
		raw, err := newSlotExecutor(users, briefs).Dispatch(context.Background(), jobs.DailySlot{HourUTC: 8}, ctl)
		require.NoError(t, err)

		assert.Equal(t, jobs.DailySlotResult{HourUTC: 8, Total: 3, Succeeded: 2, Failed: 1}, decodeSlotResult(t, raw))
		// collect + 3 generate + 1 user_failed
		assert.Equal(t, 5, ctl.progressCount())
	})

	t.Run("all users failing fails the task", func(t *testing.T) {
		t.Parallel()
		users := &MockUserDirectory{}
		users.On("UsersForHour", mock.Anything, 8).Return(slotUsers(), nil)

		briefs := &MockBriefGenerator{}
		briefs.On("GenerateDailyBrief", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("llm down"))

		_, err := newSlotExecutor(users, briefs).Dispatch(context.Background(), jobs.DailySlot{HourUTC: 8}, newFakeControl(0))
		assert.EqualError(t, err, "daily slot 08 failed for all users (failed=3, total=3)")
	})

	t.Run("no users succeeds with zero counts", func(t *testing.T) {
		t.Parallel()
		users := &MockUserDirectory{}
		users.On("UsersForHour", mock.Anything, 23).Return([]jobs.SlotUser{}, nil)

		ctl := newFakeControl(0)
		raw, err := newSlotExecutor(users, &MockBriefGenerator{}).Dispatch(context.Background(), jobs.DailySlot{HourUTC: 23}, ctl)
		require.NoError(t, err)
		assert.Equal(t, jobs.DailySlotResult{HourUTC: 23}, decodeSlotResult(t, raw))
		assert.Equal(t, 1, ctl.progressCount())
	})

	t.Run("cancel between users keeps partial counts", func(t *testing.T) {
		t.Parallel()
		users := &MockUserDirectory{}
		users.On("UsersForHour", mock.Anything, 8).Return(slotUsers(), nil)

		briefs := &MockBriefGenerator{}
		briefs.On("GenerateDailyBrief", mock.Anything, int64(1), mock.Anything, mock.Anything).Return(nil).Once()

		raw, err := newSlotExecutor(users, briefs).Dispatch(context.Background(), jobs.DailySlot{HourUTC: 8}, newFakeControl(2))
		require.NoError(t, err)
		assert.Equal(t, jobs.DailySlotResult{HourUTC: 8, Total: 3, Succeeded: 1, Canceled: true}, decodeSlotResult(t, raw))
		briefs.AssertExpectations(t)
	})

	t.Run("key date follows each user's boundary", func(t *testing.T) {
		t.Parallel()
		users := &MockUserDirectory{}
		users.On("UsersForHour", mock.Anything, 8).Return(slotUsers(), nil)

		yesterday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
		today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

		briefs := &MockBriefGenerator{}
		briefs.On("GenerateDailyBrief", mock.Anything, int64(1), yesterday, queue.Boundary{Hour: 8}).Return(nil)
		briefs.On("GenerateDailyBrief", mock.Anything, int64(2), today, queue.Boundary{Hour: 7, Minute: 15}).Return(nil)
		// unparsable brief time falls back to the slot hour
		briefs.On("GenerateDailyBrief", mock.Anything, int64(3), yesterday, queue.Boundary{Hour: 8}).Return(nil)

		_, err := newSlotExecutor(users, briefs).Dispatch(context.Background(), jobs.DailySlot{HourUTC: 8}, newFakeControl(0))
		require.NoError(t, err)
		briefs.AssertExpectations(t)
	})

	t.Run("user query failure fails the task", func(t *testing.T) {
		t.Parallel()
		users := &MockUserDirectory{}
		users.On("UsersForHour", mock.Anything, 8).Return(nil, errors.New("db gone"))

		_, err := newSlotExecutor(users, &MockBriefGenerator{}).Dispatch(context.Background(), jobs.DailySlot{HourUTC: 8}, newFakeControl(0))
		assert.ErrorContains(t, err, "db gone")
	})

	t.Run("needs a user directory", func(t *testing.T) {
		t.Parallel()
		exec := jobs.NewExecutor(jobs.WithBriefGenerator(&MockBriefGenerator{}), jobs.WithLogger(logger.Discard()))
		_, err := exec.Dispatch(context.Background(), jobs.DailySlot{HourUTC: 8}, newFakeControl(0))
		assert.ErrorIs(t, err, jobs.ErrCollaboratorUnavailable)
	})
}
