package jobs_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskline/internal/db"
	"github.com/dmitrymomot/taskline/pkg/jobs"
	"github.com/dmitrymomot/taskline/pkg/pg"
)

func TestPostgresUsers_UsersForHour(t *testing.T) {
	connURL := os.Getenv("PG_TEST_CONN_URL")
	if connURL == "" {
		t.Skip("PG_TEST_CONN_URL is not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString: connURL,
		MaxOpenConns:     4,
		MaxIdleConns:     1,
		RetryAttempts:    1,
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, pg.MigrateFS(ctx, pool, db.Migrations, db.MigrationsDir, cfg, log))

	_, err = pool.Exec(ctx, `TRUNCATE users RESTART IDENTITY`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
INSERT INTO users (login, daily_brief_utc_time, is_disabled) VALUES
  ('padded', '08:00', FALSE),
  ('unpadded', '8:30', FALSE),
  ('evening', '18:00', FALSE),
  ('garbage', 'soon', FALSE),
  ('disabled', '08:15', TRUE)`)
	require.NoError(t, err)

	users, err := jobs.NewPostgresUsers(pool)
	require.NoError(t, err)

	got, err := users.UsersForHour(ctx, 8)
	require.NoError(t, err)
	times := make([]string, 0, len(got))
	for _, u := range got {
		times = append(times, u.DailyBriefUTCTime)
	}
	assert.ElementsMatch(t, []string{"08:00", "8:30"}, times)

	got, err = users.UsersForHour(ctx, 18)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "18:00", got[0].DailyBriefUTCTime)

	got, err = users.UsersForHour(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewPostgresUsers(t *testing.T) {
	t.Parallel()

	_, err := jobs.NewPostgresUsers(nil)
	assert.Error(t, err)
}
