package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Healthcheck returns a readiness probe. It pings the pool and, when tables
// are given, checks that each of them exists, so an instance whose
// migrations have not run yet is not reported ready.
func Healthcheck(pool *pgxpool.Pool, tables ...string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		for _, table := range tables {
			var exists bool
			if err := pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", table).Scan(&exists); err != nil {
				return errors.Join(ErrHealthcheckFailed, err)
			}
			if !exists {
				return errors.Join(ErrHealthcheckFailed, fmt.Errorf("%w: %s", ErrSchemaMissing, table))
			}
		}
		return nil
	}
}
