package jobs_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/taskline/pkg/jobs"
	"github.com/dmitrymomot/taskline/pkg/queue"
)

// MockSyncer is a mock implementation of jobs.Syncer
type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) SyncStarred(ctx context.Context, userID int64) (any, error) {
	args := m.Called(ctx, userID)
	return args.Get(0), args.Error(1)
}

func (m *MockSyncer) SyncReleases(ctx context.Context, userID int64) (any, error) {
	args := m.Called(ctx, userID)
	return args.Get(0), args.Error(1)
}

func (m *MockSyncer) SyncNotifications(ctx context.Context, userID int64) (any, error) {
	args := m.Called(ctx, userID)
	return args.Get(0), args.Error(1)
}

// MockBriefGenerator is a mock implementation of jobs.BriefGenerator
type MockBriefGenerator struct {
	mock.Mock
}

func (m *MockBriefGenerator) GenerateBrief(ctx context.Context, userID int64) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *MockBriefGenerator) GenerateDailyBrief(ctx context.Context, userID int64, keyDate time.Time, boundary queue.Boundary) error {
	args := m.Called(ctx, userID, keyDate, boundary)
	return args.Error(0)
}

// MockTranslator is a mock implementation of jobs.Translator
type MockTranslator struct {
	mock.Mock
}

func (m *MockTranslator) TranslateRelease(ctx context.Context, userID int64, releaseID string) (any, error) {
	args := m.Called(ctx, userID, releaseID)
	return args.Get(0), args.Error(1)
}

func (m *MockTranslator) TranslateReleaseBatch(ctx context.Context, userID int64, releaseIDs []int64) (any, error) {
	args := m.Called(ctx, userID, releaseIDs)
	return args.Get(0), args.Error(1)
}

func (m *MockTranslator) TranslateReleaseDetail(ctx context.Context, userID int64, releaseID string) (any, error) {
	args := m.Called(ctx, userID, releaseID)
	return args.Get(0), args.Error(1)
}

func (m *MockTranslator) TranslateNotification(ctx context.Context, userID int64, threadID string) (any, error) {
	args := m.Called(ctx, userID, threadID)
	return args.Get(0), args.Error(1)
}

// MockUserDirectory is a mock implementation of jobs.UserDirectory
type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) UsersForHour(ctx context.Context, hourUTC int) ([]jobs.SlotUser, error) {
	args := m.Called(ctx, hourUTC)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]jobs.SlotUser), args.Error(1)
}

// fakeControl records progress and reports cancellation from the
// cancelAt-th check onwards. Zero never cancels.
type fakeControl struct {
	id       uuid.UUID
	cancelAt int

	mu       sync.Mutex
	checks   int
	progress []any
}

func newFakeControl(cancelAt int) *fakeControl {
	return &fakeControl{id: uuid.New(), cancelAt: cancelAt}
}

func (c *fakeControl) TaskID() uuid.UUID { return c.id }

func (c *fakeControl) CancelRequested(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks++
	return c.cancelAt > 0 && c.checks >= c.cancelAt, nil
}

func (c *fakeControl) Progress(ctx context.Context, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = append(c.progress, payload)
	return nil
}

func (c *fakeControl) progressCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.progress)
}
