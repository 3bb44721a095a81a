package pgstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/taskline/pkg/queue"
)

// Overview implements queue.InspectorRepository
func (s *Storage) Overview(ctx context.Context, since time.Time) (*queue.Overview, error) {
	var o queue.Overview
	err := s.pool.QueryRow(ctx, `
SELECT
    COUNT(*) FILTER (WHERE status = 'queued'),
    COUNT(*) FILTER (WHERE status = 'running'),
    COUNT(*) FILTER (WHERE status = 'failed' AND finished_at >= $1),
    COUNT(*) FILTER (WHERE status = 'succeeded' AND finished_at >= $1)
FROM `+tasksTable, since).Scan(&o.Queued, &o.Running, &o.Failed24h, &o.Succeeded24h)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
SELECT COUNT(*) FILTER (WHERE enabled), COUNT(*)
FROM `+slotsTable).Scan(&o.EnabledScheduledSlots, &o.TotalScheduledSlots)
	if err != nil {
		return nil, fmt.Errorf("failed to count hour slots: %w", err)
	}

	return &o, nil
}

// ListTasks implements queue.InspectorRepository.
// filter is expected to be normalized.
func (s *Storage) ListTasks(ctx context.Context, filter queue.TaskFilter) ([]queue.Task, int64, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" && filter.Status != queue.StatusFilterAll {
		args = append(args, filter.Status)
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.TaskType != "" {
		args = append(args, filter.TaskType)
		conds = append(conds, "task_type = $"+strconv.Itoa(len(args)))
	}
	if filter.ExcludeTaskType != "" {
		args = append(args, filter.ExcludeTaskType)
		conds = append(conds, "task_type <> $"+strconv.Itoa(len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+tasksTable+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	args = append(args, filter.PageSize, filter.Offset())
	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM `+tasksTable+where+`
ORDER BY created_at DESC, id DESC
LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}

	items, err := collectTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetHourSlot implements queue.SchedulerRepository
func (s *Storage) GetHourSlot(ctx context.Context, hourUTC int) (*queue.HourSlot, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+slotColumns+` FROM `+slotsTable+` WHERE hour_utc = $1`, hourUTC)
	slot, err := scanSlot(row)
	if err != nil {
		return nil, slotError(err, hourUTC)
	}
	return slot, nil
}

// MarkSlotDispatched implements queue.SchedulerRepository
func (s *Storage) MarkSlotDispatched(ctx context.Context, hourUTC int, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE `+slotsTable+`
SET last_dispatch_at = $2, updated_at = $2
WHERE hour_utc = $1`, hourUTC, at)
	if err != nil {
		return fmt.Errorf("failed to mark slot %02d dispatched: %w", hourUTC, err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrSlotNotFound
	}
	return nil
}

// ListHourSlots implements queue.InspectorRepository
func (s *Storage) ListHourSlots(ctx context.Context) ([]queue.HourSlot, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+slotColumns+` FROM `+slotsTable+` ORDER BY hour_utc ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hour slots: %w", err)
	}
	defer rows.Close()

	slots := make([]queue.HourSlot, 0, 24)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hour slot: %w", err)
		}
		slots = append(slots, *slot)
	}
	return slots, rows.Err()
}

// SetHourSlotEnabled implements queue.InspectorRepository
func (s *Storage) SetHourSlotEnabled(ctx context.Context, hourUTC int, enabled bool, at time.Time) (*queue.HourSlot, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE `+slotsTable+`
SET enabled = $2, updated_at = $3
WHERE hour_utc = $1
RETURNING `+slotColumns, hourUTC, enabled, at)
	slot, err := scanSlot(row)
	if err != nil {
		return nil, slotError(err, hourUTC)
	}
	return slot, nil
}
