// Package store is the persistent catalog of resources, certificate
// authorities, certificates, resource users, jobs, stats, and the audit
// log. It is written as plain SQL over pgx, in the same style as
// wisbric-nightowl's pkg/incident store: no ORM, hand-rolled Scan calls, a
// narrow DBTX interface so callers can pass either a pool or a transaction.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, letting Store run
// either standalone or as part of a caller-managed transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner is satisfied by *pgxpool.Pool; WithTx uses it to run a group of
// writes atomically.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx runs fn inside a transaction started on db, committing on success
// and rolling back on error or panic. No caller in this module uses it:
// Provisioner and ExternalOps write jobs, resource updates and audit entries
// as separate statements over the pool.
func WithTx(ctx context.Context, db Beginner, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
