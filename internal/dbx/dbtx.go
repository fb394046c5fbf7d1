// Package dbx holds the database plumbing shared by repositories: the DBTX
// handle satisfied by both *sql.DB and *sql.Tx, a transaction runner and
// Postgres error classification.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by the repositories.
// *sql.DB and *sql.Tx both satisfy it, so a repository built on a DBTX works
// the same inside and outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction on db, passes the transactional handle to fn
// and finishes the transaction from fn's outcome.
//
// Parameters:
//
//	ctx  - bounds the whole transaction, including BeginTx
//	db   - connection pool the transaction is opened on
//	opts - isolation level and read-only flag, nil for driver defaults
//	fn   - unit of work; it must use tx, not db, for every statement
//
// Returns:
//
//	The error from BeginTx, from fn, or from Commit. When fn fails the
//	transaction is rolled back and fn's error is returned unchanged, so
//	callers can match sentinels with errors.Is. A panic in fn rolls back
//	and is re-raised.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    flow, err := repos.Flows(tx).GetForUpdate(ctx, id)
//	    ...
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		// Panic: undo and keep unwinding
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		// fn failed: undo, keep fn's error
		if err != nil {
			_ = tx.Rollback()
			return
		}
		// Success: a failed commit becomes the result
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}
