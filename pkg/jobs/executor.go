package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/dmitrymomot/taskline/pkg/logger"
	"github.com/dmitrymomot/taskline/pkg/queue"
)

var _ queue.Executor = (*Executor)(nil)

// Executor decodes claimed tasks into Commands and dispatches them to collaborators.
type Executor struct {
	syncer     Syncer
	briefs     BriefGenerator
	translator Translator
	users      UserDirectory
	logger     *slog.Logger
	now        func() time.Time
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

func WithSyncer(s Syncer) ExecutorOption {
	return func(e *Executor) { e.syncer = s }
}

func WithBriefGenerator(g BriefGenerator) ExecutorOption {
	return func(e *Executor) { e.briefs = g }
}

func WithTranslator(t Translator) ExecutorOption {
	return func(e *Executor) { e.translator = t }
}

func WithUserDirectory(d UserDirectory) ExecutorOption {
	return func(e *Executor) { e.users = d }
}

func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source used for daily slot key dates
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor creates an executor. Collaborators left unset make the
// matching tasks fail with ErrCollaboratorUnavailable.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logger.Component("executor"))
	return e
}

// MissingCollaborators names the collaborators that were not configured.
// Tasks that need one of them fail with ErrCollaboratorUnavailable.
func (e *Executor) MissingCollaborators() []string {
	var missing []string
	if e.syncer == nil {
		missing = append(missing, "syncer")
	}
	if e.briefs == nil {
		missing = append(missing, "brief generator")
	}
	if e.translator == nil {
		missing = append(missing, "translator")
	}
	if e.users == nil {
		missing = append(missing, "user directory")
	}
	return missing
}

// Execute implements queue.Executor
func (e *Executor) Execute(ctx context.Context, task *queue.Task, ctl queue.TaskControl) (json.RawMessage, error) {
	cmd, err := Decode(task.TaskType, task.Payload)
	if err != nil {
		return nil, err
	}
	return e.Dispatch(ctx, cmd, ctl)
}

// Dispatch runs one command. The switch covers every Command implementation.
func (e *Executor) Dispatch(ctx context.Context, cmd Command, ctl queue.TaskControl) (json.RawMessage, error) {
	switch c := cmd.(type) {
	case SyncStarred:
		if e.syncer == nil {
			return nil, unavailable("syncer")
		}
		return encodeResult(e.syncer.SyncStarred(ctx, c.UserID))
	case SyncReleases:
		if e.syncer == nil {
			return nil, unavailable("syncer")
		}
		return encodeResult(e.syncer.SyncReleases(ctx, c.UserID))
	case SyncNotifications:
		if e.syncer == nil {
			return nil, unavailable("syncer")
		}
		return encodeResult(e.syncer.SyncNotifications(ctx, c.UserID))
	case SyncAll:
		return e.syncAll(ctx, c, ctl)
	case GenerateBrief:
		if e.briefs == nil {
			return nil, unavailable("brief generator")
		}
		content, err := e.briefs.GenerateBrief(ctx, c.UserID)
		if err != nil {
			return nil, err
		}
		return encodeResult(map[string]int{"content_length": utf8.RuneCountInString(content)}, nil)
	case DailySlot:
		return e.dailySlot(ctx, c, ctl)
	case TranslateRelease:
		if e.translator == nil {
			return nil, unavailable("translator")
		}
		res, err := e.translator.TranslateRelease(ctx, c.UserID, c.ReleaseID)
		return encodeResult(res, wrapStep("translate_release", err))
	case TranslateReleaseBatch:
		if e.translator == nil {
			return nil, unavailable("translator")
		}
		res, err := e.translator.TranslateReleaseBatch(ctx, c.UserID, c.ReleaseIDs)
		return encodeResult(res, wrapStep("translate_releases_batch", err))
	case TranslateReleaseDetail:
		if e.translator == nil {
			return nil, unavailable("translator")
		}
		res, err := e.translator.TranslateReleaseDetail(ctx, c.UserID, c.ReleaseID)
		return encodeResult(res, wrapStep("translate_release_detail", err))
	case TranslateNotification:
		if e.translator == nil {
			return nil, unavailable("translator")
		}
		res, err := e.translator.TranslateNotification(ctx, c.UserID, c.ThreadID)
		return encodeResult(res, wrapStep("translate_notification", err))
	}

	return nil, fmt.Errorf("%w: %s", queue.ErrUnsupportedTaskType, cmd.TaskType())
}

// syncAll stops between steps once cancellation is requested.
func (e *Executor) syncAll(ctx context.Context, c SyncAll, ctl queue.TaskControl) (json.RawMessage, error) {
	if e.syncer == nil {
		return nil, unavailable("syncer")
	}

	steps := []struct {
		name string
		run  func(context.Context, int64) (any, error)
	}{
		{"starred", e.syncer.SyncStarred},
		{"releases", e.syncer.SyncReleases},
		{"notifications", e.syncer.SyncNotifications},
	}

	results := make(map[string]any, len(steps))
	for i, step := range steps {
		if i > 0 && e.cancelRequested(ctx, ctl) {
			return encodeResult(map[string]bool{"canceled": true}, nil)
		}
		res, err := step.run(ctx, c.UserID)
		if err != nil {
			return nil, fmt.Errorf("sync %s failed: %w", step.name, err)
		}
		results[step.name] = res
	}

	return encodeResult(results, nil)
}

// cancelRequested treats a failed lookup as "not requested"; the worker
// re-checks the flag after the executor returns.
func (e *Executor) cancelRequested(ctx context.Context, ctl queue.TaskControl) bool {
	requested, err := ctl.CancelRequested(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to check cancel flag",
			logger.TaskID(ctl.TaskID()),
			logger.Error(err))
		return false
	}
	return requested
}

func encodeResult(v any, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return json.RawMessage(`{"ok":true}`), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"ok":true}`), nil
	}
	return raw, nil
}

func unavailable(name string) error {
	return fmt.Errorf("%w: %s", ErrCollaboratorUnavailable, name)
}

func wrapStep(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s failed: %w", step, err)
}
