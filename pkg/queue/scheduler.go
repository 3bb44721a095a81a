package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/taskline/pkg/logger"
)

// DefaultSlotTaskType is the task type the scheduler enqueues for an hour slot
const DefaultSlotTaskType = "brief.daily_slot"

// SchedulerRepository defines the slot operations of the hourly scheduler
type SchedulerRepository interface {
	// GetHourSlot returns the slot for the hour. Returns ErrSlotNotFound when missing.
	GetHourSlot(ctx context.Context, hourUTC int) (*HourSlot, error)

	// MarkSlotDispatched sets last_dispatch_at of the slot
	MarkSlotDispatched(ctx context.Context, hourUTC int, at time.Time) error
}

// SlotPayload is the payload of the task enqueued for an hour slot
type SlotPayload struct {
	HourUTC int    `json:"hour_utc"`
	SlotKey string `json:"slot_key"`
}

// Scheduler dispatches one fan-out task per enabled hour slot and hour bucket
type Scheduler struct {
	repo     SchedulerRepository
	enqueuer *Enqueuer
	interval time.Duration
	taskType string
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler creates a new hourly scheduler
func NewScheduler(repo SchedulerRepository, enqueuer *Enqueuer, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil || enqueuer == nil {
		return nil, ErrRepositoryNil
	}

	options := &schedulerOptions{
		checkInterval: DefaultSchedulerTick,
		taskType:      DefaultSlotTaskType,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		repo:     repo,
		enqueuer: enqueuer,
		interval: options.checkInterval,
		taskType: options.taskType,
		logger:   options.logger,
		now:      options.now,
	}, nil
}

// Start checks the current slot immediately and then on every tick until ctx is done
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Run returns a function suitable for errgroup
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.Check(ctx, s.now()); err != nil {
		s.logger.Error("scheduler check failed", logger.Error(err))
	}
}

// Check dispatches the slot of now's UTC hour unless it already ran in this hour bucket.
// It returns the created task, or nil when nothing was enqueued.
//
// Ticks are much shorter than an hour, so most calls see an already dispatched
// bucket and return early. The dedup key on the task covers two schedulers
// racing on the same bucket; the slot mark alone could not.
func (s *Scheduler) Check(ctx context.Context, now time.Time) (*Task, error) {
	now = now.UTC()
	hour := now.Hour()

	slot, err := s.repo.GetHourSlot(ctx, hour)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load hour slot %d: %w", hour, err)
	}
	if !slot.Enabled {
		return nil, nil
	}

	bucket := HourBucketKey(now)
	if slot.LastDispatchAt != nil && HourBucketKey(*slot.LastDispatchAt) == bucket {
		return nil, nil
	}

	task, err := s.enqueuer.Enqueue(ctx, s.taskType,
		SlotPayload{HourUTC: hour, SlotKey: bucket},
		WithSource(SourceScheduler),
		WithDedupKey(s.taskType+":"+bucket),
	)
	switch {
	case errors.Is(err, ErrDuplicateTask):
		s.logger.Info("hour slot already dispatched",
			logger.HourUTC(hour),
			slog.String("slot_key", bucket))
	case err != nil:
		return nil, fmt.Errorf("failed to enqueue hour slot %d: %w", hour, err)
	}

	if err := s.repo.MarkSlotDispatched(ctx, hour, now); err != nil {
		return task, fmt.Errorf("failed to mark hour slot %d dispatched: %w", hour, err)
	}

	if task != nil {
		s.logger.Info("dispatched hour slot",
			logger.HourUTC(hour),
			slog.String("slot_key", bucket),
			logger.TaskID(task.ID))
	}

	return task, nil
}
