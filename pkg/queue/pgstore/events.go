package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/taskline/pkg/pg"
	"github.com/dmitrymomot/taskline/pkg/queue"
)

// AppendEvent implements queue.EventRepository
func (s *Storage) AppendEvent(ctx context.Context, ev *queue.TaskEvent) error {
	var createdAt any
	if !ev.CreatedAt.IsZero() {
		createdAt = ev.CreatedAt
	}

	err := pg.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, eventLogLockKey); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
INSERT INTO `+eventsTable+` (task_id, event_type, payload_json, created_at)
VALUES ($1, $2, $3, COALESCE($4::timestamptz, now()))
RETURNING id, created_at`,
			ev.TaskID, ev.EventType, jsonOrEmpty(ev.Payload), createdAt,
		).Scan(&ev.ID, &ev.CreatedAt)
	})
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return queue.ErrTaskNotFound
		}
		return fmt.Errorf("failed to append %s event: %w", ev.EventType, err)
	}
	return nil
}

// ListTaskEvents implements queue.StreamRepository
func (s *Storage) ListTaskEvents(ctx context.Context, taskID uuid.UUID, afterID int64, limit int) ([]queue.TaskEvent, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+eventColumns+` FROM `+eventsTable+`
WHERE task_id = $1 AND id > $2
ORDER BY id ASC
LIMIT $3`, taskID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events of task %s: %w", taskID, err)
	}
	return collectEvents(rows)
}

// ListRecentTaskEvents implements queue.InspectorRepository
func (s *Storage) ListRecentTaskEvents(ctx context.Context, id uuid.UUID, limit int) ([]queue.TaskEvent, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+eventColumns+` FROM `+eventsTable+`
WHERE task_id = $1
ORDER BY id DESC
LIMIT $2`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent events of task %s: %w", id, err)
	}
	return collectEvents(rows)
}

// LatestEventID implements queue.StreamRepository
func (s *Storage) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM `+eventsTable).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read latest event id: %w", err)
	}
	return id, nil
}

// ListEventsAfter implements queue.StreamRepository
func (s *Storage) ListEventsAfter(ctx context.Context, afterID int64, limit int) ([]queue.GlobalEvent, error) {
	rows, err := s.pool.Query(ctx, `
SELECT e.id, e.task_id, t.task_type, t.status, e.event_type, e.created_at
FROM `+eventsTable+` e
JOIN `+tasksTable+` t ON t.id = e.task_id
WHERE e.id > $1
ORDER BY e.id ASC
LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events after %d: %w", afterID, err)
	}
	defer rows.Close()

	out := make([]queue.GlobalEvent, 0, limit)
	for rows.Next() {
		var (
			ev     queue.GlobalEvent
			status string
		)
		if err := rows.Scan(&ev.EventID, &ev.TaskID, &ev.TaskType, &status, &ev.EventType, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan global event: %w", err)
		}
		ev.Status = queue.TaskStatus(status)
		out = append(out, ev)
	}
	return out, rows.Err()
}
