package queue

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements all queue repository interfaces for testing and local development
type MemoryStorage struct {
	mu     sync.RWMutex
	tasks  map[uuid.UUID]*Task
	order  []uuid.UUID // insertion order, breaks created_at ties
	dedup  map[string]uuid.UUID
	events []TaskEvent
	slots  map[int]*HourSlot
}

// NewMemoryStorage creates a new in-memory storage with all 24 hour slots enabled
func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{
		tasks: make(map[uuid.UUID]*Task),
		dedup: make(map[string]uuid.UUID),
		slots: make(map[int]*HourSlot, hourSlotCount),
	}

	now := time.Now().UTC()
	for h := range hourSlotCount {
		ms.slots[h] = &HourSlot{HourUTC: h, Enabled: true, UpdatedAt: now}
	}

	return ms
}

// CreateTask implements EnqueuerRepository
func (ms *MemoryStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}
	if task.DedupKey != nil {
		if _, taken := ms.dedup[*task.DedupKey]; taken {
			return ErrDuplicateTask
		}
		ms.dedup[*task.DedupKey] = task.ID
	}

	ms.tasks[task.ID] = cloneTask(task)
	ms.order = append(ms.order, task.ID)

	return nil
}

// GetTask implements EnqueuerRepository and InspectorRepository
func (ms *MemoryStorage) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	task, ok := ms.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// CancelQueuedTask implements EnqueuerRepository
func (ms *MemoryStorage) CancelQueuedTask(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, ok := ms.tasks[id]
	if !ok || task.Status != TaskStatusQueued {
		return false, nil
	}

	task.Status = TaskStatusCanceled
	task.CancelRequested = true
	task.FinishedAt = &at
	task.UpdatedAt = at
	return true, nil
}

// RequestCancel implements EnqueuerRepository
func (ms *MemoryStorage) RequestCancel(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, ok := ms.tasks[id]
	if !ok || task.Status != TaskStatusRunning {
		return false, nil
	}

	task.CancelRequested = true
	task.UpdatedAt = at
	return true, nil
}

// ClaimTask implements WorkerRepository
func (ms *MemoryStorage) ClaimTask(ctx context.Context, at time.Time) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var oldest *Task
	for _, id := range ms.order {
		task := ms.tasks[id]
		if task.Status != TaskStatusQueued {
			continue
		}
		if oldest == nil || task.CreatedAt.Before(oldest.CreatedAt) {
			oldest = task
		}
	}
	if oldest == nil {
		return nil, ErrNoTaskToClaim
	}

	next, err := Next(oldest.Status, TriggerClaim)
	if err != nil {
		return nil, err
	}
	oldest.Status = next
	oldest.StartedAt = &at
	oldest.UpdatedAt = at

	return cloneTask(oldest), nil
}

// FinishTask implements WorkerRepository
func (ms *MemoryStorage) FinishTask(ctx context.Context, id uuid.UUID, fin Finalization) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, ok := ms.tasks[id]
	if !ok {
		return false, ErrTaskNotFound
	}
	if task.Status != TaskStatusRunning || !CanTransition(task.Status, fin.Status) {
		return false, nil
	}

	task.Status = fin.Status
	task.Result = slices.Clone(fin.Result)
	task.ErrorMessage = fin.ErrorMessage
	task.FinishedAt = &fin.FinishedAt
	task.UpdatedAt = fin.FinishedAt
	return true, nil
}

// IsCancelRequested implements WorkerRepository
func (ms *MemoryStorage) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	task, ok := ms.tasks[id]
	if !ok {
		return false, ErrTaskNotFound
	}
	return task.CancelRequested, nil
}

// AppendEvent implements EventRepository
func (ms *MemoryStorage) AppendEvent(ctx context.Context, ev *TaskEvent) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.tasks[ev.TaskID]; !ok {
		return ErrTaskNotFound
	}

	ev.ID = int64(len(ms.events)) + 1
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	stored := *ev
	stored.Payload = slices.Clone(ev.Payload)
	ms.events = append(ms.events, stored)
	return nil
}

// ListTaskEvents implements StreamRepository
func (ms *MemoryStorage) ListTaskEvents(ctx context.Context, taskID uuid.UUID, afterID int64, limit int) ([]TaskEvent, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []TaskEvent
	for _, ev := range ms.eventsAfter(afterID) {
		if len(out) == limit {
			break
		}
		if ev.TaskID == taskID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// GetTaskStatus implements StreamRepository
func (ms *MemoryStorage) GetTaskStatus(ctx context.Context, taskID uuid.UUID) (TaskStatus, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	task, ok := ms.tasks[taskID]
	if !ok {
		return "", ErrTaskNotFound
	}
	return task.Status, nil
}

// LatestEventID implements StreamRepository
func (ms *MemoryStorage) LatestEventID(ctx context.Context) (int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return int64(len(ms.events)), nil
}

// ListEventsAfter implements StreamRepository
func (ms *MemoryStorage) ListEventsAfter(ctx context.Context, afterID int64, limit int) ([]GlobalEvent, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	after := ms.eventsAfter(afterID)
	out := make([]GlobalEvent, 0, min(len(after), limit))
	for _, ev := range after {
		if len(out) == limit {
			break
		}
		task := ms.tasks[ev.TaskID]
		out = append(out, GlobalEvent{
			EventID:   ev.ID,
			TaskID:    ev.TaskID,
			TaskType:  task.TaskType,
			Status:    task.Status,
			EventType: ev.EventType,
			CreatedAt: ev.CreatedAt,
		})
	}
	return out, nil
}

// ListRecentTaskEvents implements InspectorRepository
func (ms *MemoryStorage) ListRecentTaskEvents(ctx context.Context, id uuid.UUID, limit int) ([]TaskEvent, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []TaskEvent
	for i := len(ms.events) - 1; i >= 0 && len(out) < limit; i-- {
		if ms.events[i].TaskID == id {
			out = append(out, ms.events[i])
		}
	}
	return out, nil
}

// eventsAfter relies on ids being 1-based positions in ms.events
func (ms *MemoryStorage) eventsAfter(afterID int64) []TaskEvent {
	if afterID < 0 {
		afterID = 0
	}
	if afterID >= int64(len(ms.events)) {
		return nil
	}
	return ms.events[afterID:]
}

// Overview implements InspectorRepository
func (ms *MemoryStorage) Overview(ctx context.Context, since time.Time) (*Overview, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	o := &Overview{TotalScheduledSlots: int64(len(ms.slots))}
	for _, task := range ms.tasks {
		recent := task.FinishedAt != nil && !task.FinishedAt.Before(since)
		switch {
		case task.Status == TaskStatusQueued:
			o.Queued++
		case task.Status == TaskStatusRunning:
			o.Running++
		case task.Status == TaskStatusFailed && recent:
			o.Failed24h++
		case task.Status == TaskStatusSucceeded && recent:
			o.Succeeded24h++
		}
	}
	for _, slot := range ms.slots {
		if slot.Enabled {
			o.EnabledScheduledSlots++
		}
	}
	return o, nil
}

// ListTasks implements InspectorRepository
func (ms *MemoryStorage) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	matched := make([]*Task, 0, len(ms.tasks))
	for _, task := range ms.tasks {
		if filter.Matches(task) {
			matched = append(matched, task)
		}
	}
	slices.SortFunc(matched, func(a, b *Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})

	total := int64(len(matched))
	offset := filter.Offset()
	if offset < 0 || offset >= len(matched) {
		return []Task{}, total, nil
	}
	end := min(offset+filter.PageSize, len(matched))

	items := make([]Task, 0, end-offset)
	for _, task := range matched[offset:end] {
		items = append(items, *cloneTask(task))
	}
	return items, total, nil
}

// GetHourSlot implements SchedulerRepository
func (ms *MemoryStorage) GetHourSlot(ctx context.Context, hourUTC int) (*HourSlot, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	slot, ok := ms.slots[hourUTC]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return cloneSlot(slot), nil
}

// MarkSlotDispatched implements SchedulerRepository
func (ms *MemoryStorage) MarkSlotDispatched(ctx context.Context, hourUTC int, at time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	slot, ok := ms.slots[hourUTC]
	if !ok {
		return ErrSlotNotFound
	}
	slot.LastDispatchAt = &at
	slot.UpdatedAt = at
	return nil
}

// ListHourSlots implements InspectorRepository
func (ms *MemoryStorage) ListHourSlots(ctx context.Context) ([]HourSlot, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]HourSlot, 0, len(ms.slots))
	for _, slot := range ms.slots {
		out = append(out, *cloneSlot(slot))
	}
	slices.SortFunc(out, func(a, b HourSlot) int { return cmp.Compare(a.HourUTC, b.HourUTC) })
	return out, nil
}

// SetHourSlotEnabled implements InspectorRepository
func (ms *MemoryStorage) SetHourSlotEnabled(ctx context.Context, hourUTC int, enabled bool, at time.Time) (*HourSlot, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	slot, ok := ms.slots[hourUTC]
	if !ok {
		return nil, ErrSlotNotFound
	}
	slot.Enabled = enabled
	slot.UpdatedAt = at
	return cloneSlot(slot), nil
}

// DeleteHourSlot removes a slot. Used to model partially seeded stores.
func (ms *MemoryStorage) DeleteHourSlot(hourUTC int) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.slots, hourUTC)
}

func cloneTask(t *Task) *Task {
	c := *t
	c.Payload = slices.Clone(t.Payload)
	c.Result = slices.Clone(t.Result)
	c.RequestedBy = clonePtr(t.RequestedBy)
	c.ParentTaskID = clonePtr(t.ParentTaskID)
	c.DedupKey = clonePtr(t.DedupKey)
	c.ErrorMessage = clonePtr(t.ErrorMessage)
	c.StartedAt = clonePtr(t.StartedAt)
	c.FinishedAt = clonePtr(t.FinishedAt)
	return &c
}

func cloneSlot(s *HourSlot) *HourSlot {
	c := *s
	c.LastDispatchAt = clonePtr(s.LastDispatchAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
