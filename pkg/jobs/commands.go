package jobs

// Task types handled by the Executor.
const (
	TypeSyncStarred            = "sync.starred"
	TypeSyncReleases           = "sync.releases"
	TypeSyncNotifications      = "sync.notifications"
	TypeSyncAll                = "sync.all"
	TypeGenerateBrief          = "brief.generate"
	TypeDailySlot              = "brief.daily_slot"
	TypeTranslateRelease       = "translate.release"
	TypeTranslateReleaseBatch  = "translate.release.batch"
	TypeTranslateReleaseDetail = "translate.release_detail"
	TypeTranslateNotification  = "translate.notification"
)

// Command is a decoded task payload. The set of implementations is closed:
// only this package can add one, and Executor handles every one of them.
type Command interface {
	TaskType() string
	command()
}

type SyncStarred struct {
	UserID int64 `json:"user_id"`
}

type SyncReleases struct {
	UserID int64 `json:"user_id"`
}

type SyncNotifications struct {
	UserID int64 `json:"user_id"`
}

// SyncAll runs the three sync steps in order with a cancellation checkpoint
// between them.
type SyncAll struct {
	UserID int64 `json:"user_id"`
}

type GenerateBrief struct {
	UserID int64 `json:"user_id"`
}

// DailySlot fans the daily brief out to every user whose brief time falls in HourUTC.
type DailySlot struct {
	HourUTC int    `json:"hour_utc"`
	SlotKey string `json:"slot_key,omitempty"`
}

type TranslateRelease struct {
	UserID    int64  `json:"user_id"`
	ReleaseID string `json:"release_id"`
}

type TranslateReleaseBatch struct {
	UserID     int64   `json:"user_id"`
	ReleaseIDs []int64 `json:"release_ids"`
}

type TranslateReleaseDetail struct {
	UserID    int64  `json:"user_id"`
	ReleaseID string `json:"release_id"`
}

type TranslateNotification struct {
	UserID   int64  `json:"user_id"`
	ThreadID string `json:"thread_id"`
}

func (SyncStarred) TaskType() string            { return TypeSyncStarred }
func (SyncReleases) TaskType() string           { return TypeSyncReleases }
func (SyncNotifications) TaskType() string      { return TypeSyncNotifications }
func (SyncAll) TaskType() string                { return TypeSyncAll }
func (GenerateBrief) TaskType() string          { return TypeGenerateBrief }
func (DailySlot) TaskType() string              { return TypeDailySlot }
func (TranslateRelease) TaskType() string       { return TypeTranslateRelease }
func (TranslateReleaseBatch) TaskType() string  { return TypeTranslateReleaseBatch }
func (TranslateReleaseDetail) TaskType() string { return TypeTranslateReleaseDetail }
func (TranslateNotification) TaskType() string  { return TypeTranslateNotification }

func (SyncStarred) command()            {}
func (SyncReleases) command()           {}
func (SyncNotifications) command()      {}
func (SyncAll) command()                {}
func (GenerateBrief) command()          {}
func (DailySlot) command()              {}
func (TranslateRelease) command()       {}
func (TranslateReleaseBatch) command()  {}
func (TranslateReleaseDetail) command() {}
func (TranslateNotification) command()  {}
