// Package pgstore implements the queue repositories on PostgreSQL.
//
// The schema lives in internal/db/migrations. Status changes are conditional
// updates guarded by the expected prior status, so a lost race affects zero
// rows instead of overwriting a newer state. Event appends serialize on a
// transaction-level advisory lock, which makes ids commit in allocation order
// and lets readers page by id without skipping a late commit.
package pgstore
