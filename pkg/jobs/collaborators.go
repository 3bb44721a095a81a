package jobs

import (
	"context"
	"time"

	"github.com/dmitrymomot/taskline/pkg/queue"
)

// Syncer pulls a user's data from the upstream provider.
// Results are encoded as the task result.
type Syncer interface {
	SyncStarred(ctx context.Context, userID int64) (any, error)
	SyncReleases(ctx context.Context, userID int64) (any, error)
	SyncNotifications(ctx context.Context, userID int64) (any, error)
}

// BriefGenerator produces daily briefs.
type BriefGenerator interface {
	// GenerateBrief builds the brief for the current period and returns its content
	GenerateBrief(ctx context.Context, userID int64) (string, error)
	// GenerateDailyBrief builds the brief keyed by keyDate, covering the period ending at boundary
	GenerateDailyBrief(ctx context.Context, userID int64, keyDate time.Time, boundary queue.Boundary) error
}

// Translator translates release notes and notifications for a user.
type Translator interface {
	TranslateRelease(ctx context.Context, userID int64, releaseID string) (any, error)
	TranslateReleaseBatch(ctx context.Context, userID int64, releaseIDs []int64) (any, error)
	TranslateReleaseDetail(ctx context.Context, userID int64, releaseID string) (any, error)
	TranslateNotification(ctx context.Context, userID int64, threadID string) (any, error)
}

// SlotUser is an account eligible for a daily slot.
type SlotUser struct {
	ID                int64
	DailyBriefUTCTime string // "HH:MM"
	LastActiveAt      *time.Time
}

// UserDirectory lists the accounts a daily slot fans out to.
type UserDirectory interface {
	// UsersForHour returns enabled users whose brief time falls in hourUTC,
	// most recently active first, never-active last, ties by id.
	UsersForHour(ctx context.Context, hourUTC int) ([]SlotUser, error)
}
