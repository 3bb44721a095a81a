package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var _ UserDirectory = (*PostgresUsers)(nil)

// briefHourExpr must stay identical to the idx_users_brief_hour_num index expression.
const briefHourExpr = `(CASE WHEN daily_brief_utc_time ~ '^[0-9]{1,2}:' THEN split_part(daily_brief_utc_time, ':', 1)::int END)`

// PostgresUsers reads slot users from the users table.
type PostgresUsers struct {
	pool *pgxpool.Pool
}

func NewPostgresUsers(pool *pgxpool.Pool) (*PostgresUsers, error) {
	if pool == nil {
		return nil, errors.New("pool cannot be nil")
	}
	return &PostgresUsers{pool: pool}, nil
}

// UsersForHour implements UserDirectory.
//
// The hour is compared as a number so unpadded values such as "8:30" land in
// slot 8. Rows whose time does not start with one or two digits and a colon
// are skipped rather than failing the cast for the whole query.
func (u *PostgresUsers) UsersForHour(ctx context.Context, hourUTC int) ([]SlotUser, error) {
	rows, err := u.pool.Query(ctx, `
SELECT id, daily_brief_utc_time, last_active_at
FROM users
WHERE is_disabled = FALSE
  AND `+briefHourExpr+` = $1
ORDER BY last_active_at DESC NULLS LAST, id ASC`, hourUTC)
	if err != nil {
		return nil, fmt.Errorf("failed to query users for hour %02d: %w", hourUTC, err)
	}
	defer rows.Close()

	var users []SlotUser
	for rows.Next() {
		var user SlotUser
		if err := rows.Scan(&user.ID, &user.DailyBriefUTCTime, &user.LastActiveAt); err != nil {
			return nil, fmt.Errorf("failed to scan slot user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
