package queue

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// StatusFilterAll disables the status condition of a TaskFilter
const StatusFilterAll = "all"

const (
	defaultPageSize   = 20
	maxPageSize       = 100
	detailEventsLimit = 200
	overviewWindow    = 24 * time.Hour
	hourSlotCount     = 24
)

// maxPage keeps (page-1)*pageSize inside int32, so the offset handed to the
// store can never wrap negative however large the requested page is.
const maxPage = math.MaxInt32 / maxPageSize

// Overview is a snapshot of queue health
type Overview struct {
	Queued                int64 `json:"queued"`
	Running               int64 `json:"running"`
	Failed24h             int64 `json:"failed_24h"`
	Succeeded24h          int64 `json:"succeeded_24h"`
	EnabledScheduledSlots int64 `json:"enabled_scheduled_slots"`
	TotalScheduledSlots   int64 `json:"total_scheduled_slots"`
}

// TaskFilter selects a page of tasks. Empty strings disable a condition.
type TaskFilter struct {
	Status          string
	TaskType        string
	ExcludeTaskType string
	Page            int
	PageSize        int
}

// Normalize applies defaults and clamps paging
func (f TaskFilter) Normalize() TaskFilter {
	if f.Status == "" {
		f.Status = StatusFilterAll
	}
	f.Page = min(max(f.Page, 1), maxPage)
	switch {
	case f.PageSize == 0:
		f.PageSize = defaultPageSize
	case f.PageSize < 1:
		f.PageSize = 1
	case f.PageSize > maxPageSize:
		f.PageSize = maxPageSize
	}
	return f
}

// Offset returns the number of rows to skip
func (f TaskFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Matches reports whether a task passes the filter
func (f TaskFilter) Matches(t *Task) bool {
	if f.Status != "" && f.Status != StatusFilterAll && string(t.Status) != f.Status {
		return false
	}
	if f.TaskType != "" && t.TaskType != f.TaskType {
		return false
	}
	if f.ExcludeTaskType != "" && t.TaskType == f.ExcludeTaskType {
		return false
	}
	return true
}

// TaskPage is one page of tasks
type TaskPage struct {
	Items    []Task `json:"items"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int64  `json:"total"`
}

// TaskDetail is a task with its most recent events, newest first
type TaskDetail struct {
	Task   *Task       `json:"task"`
	Events []TaskEvent `json:"events"`
}

// InspectorRepository defines the read and admin operations on tasks and slots
type InspectorRepository interface {
	Overview(ctx context.Context, since time.Time) (*Overview, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, int64, error)
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	// ListRecentTaskEvents returns up to limit events of a task, newest first
	ListRecentTaskEvents(ctx context.Context, id uuid.UUID, limit int) ([]TaskEvent, error)
	ListHourSlots(ctx context.Context) ([]HourSlot, error)
	// SetHourSlotEnabled returns ErrSlotNotFound when the slot does not exist
	SetHourSlotEnabled(ctx context.Context, hourUTC int, enabled bool, at time.Time) (*HourSlot, error)
}

// Inspector serves the admin view of the queue
type Inspector struct {
	repo InspectorRepository
	now  func() time.Time
}

// NewInspector creates a new Inspector
func NewInspector(repo InspectorRepository) (*Inspector, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	return &Inspector{repo: repo, now: time.Now}, nil
}

func (i *Inspector) Overview(ctx context.Context) (*Overview, error) {
	o, err := i.repo.Overview(ctx, i.now().UTC().Add(-overviewWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load overview: %w", err)
	}
	return o, nil
}

func (i *Inspector) ListTasks(ctx context.Context, filter TaskFilter) (*TaskPage, error) {
	filter = filter.Normalize()

	items, total, err := i.repo.ListTasks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if items == nil {
		items = []Task{}
	}

	return &TaskPage{
		Items:    items,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Total:    total,
	}, nil
}

func (i *Inspector) TaskDetail(ctx context.Context, id uuid.UUID) (*TaskDetail, error) {
	task, err := i.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	events, err := i.repo.ListRecentTaskEvents(ctx, id, detailEventsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load events of task %s: %w", id, err)
	}
	if events == nil {
		events = []TaskEvent{}
	}

	return &TaskDetail{Task: task, Events: events}, nil
}

func (i *Inspector) ListSlots(ctx context.Context) ([]HourSlot, error) {
	slots, err := i.repo.ListHourSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list hour slots: %w", err)
	}
	if slots == nil {
		slots = []HourSlot{}
	}
	return slots, nil
}

func (i *Inspector) SetSlotEnabled(ctx context.Context, hourUTC int, enabled bool) (*HourSlot, error) {
	if hourUTC < 0 || hourUTC >= hourSlotCount {
		return nil, ErrInvalidHour
	}
	return i.repo.SetHourSlotEnabled(ctx, hourUTC, enabled, i.now().UTC())
}
