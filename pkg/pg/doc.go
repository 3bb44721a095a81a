// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Connect opens a *pgxpool.Pool from Config (populated from PG_* environment
// variables) and retries until the server answers a ping. Migrate and
// MigrateFS apply goose migrations from disk or from an embedded filesystem.
// WithTx wraps a unit of work in a transaction, and the Is*Error helpers
// classify driver errors.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.MigrateFS(ctx, pool, db.Migrations, "migrations", cfg, logger); err != nil {
//		return err
//	}
package pg
