package pgstore

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/taskline/pkg/pg"
	"github.com/dmitrymomot/taskline/pkg/queue"
)

const (
	taskColumns = `id, task_type, status, source, requested_by, parent_task_id, dedup_key,
    payload_json, result_json, error_message, cancel_requested,
    created_at, started_at, finished_at, updated_at`

	eventColumns = `id, task_id, event_type, payload_json, created_at`

	slotColumns = `hour_utc, enabled, last_dispatch_at, updated_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*queue.Task, error) {
	var (
		t       queue.Task
		status  string
		payload []byte
		result  []byte
	)
	err := row.Scan(
		&t.ID, &t.TaskType, &status, &t.Source, &t.RequestedBy, &t.ParentTaskID, &t.DedupKey,
		&payload, &result, &t.ErrorMessage, &t.CancelRequested,
		&t.CreatedAt, &t.StartedAt, &t.FinishedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = queue.TaskStatus(status)
	t.Payload = json.RawMessage(payload)
	if result != nil {
		t.Result = json.RawMessage(result)
	}
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]queue.Task, error) {
	defer rows.Close()

	tasks := []queue.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func collectEvents(rows pgx.Rows) ([]queue.TaskEvent, error) {
	defer rows.Close()

	var events []queue.TaskEvent
	for rows.Next() {
		var (
			ev      queue.TaskEvent
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.TaskID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task event: %w", err)
		}
		ev.Payload = json.RawMessage(payload)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanSlot(row rowScanner) (*queue.HourSlot, error) {
	var slot queue.HourSlot
	if err := row.Scan(&slot.HourUTC, &slot.Enabled, &slot.LastDispatchAt, &slot.UpdatedAt); err != nil {
		return nil, err
	}
	return &slot, nil
}

func slotError(err error, hourUTC int) error {
	if pg.IsNotFoundError(err) {
		return queue.ErrSlotNotFound
	}
	return fmt.Errorf("failed to load hour slot %02d: %w", hourUTC, err)
}

// jsonOrEmpty maps an absent payload to an empty object for NOT NULL columns
func jsonOrEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte(`{}`)
	}
	return []byte(raw)
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
