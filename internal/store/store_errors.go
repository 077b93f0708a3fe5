package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wisbric/fleetd/internal/errs"
)

// wrapErr classifies a raw pgx/pgconn error into the StoreError taxonomy.
func wrapErr(message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.NotFound, message, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errs.Wrap(errs.Conflict, message, err)
	}
	return errs.Wrap(errs.StoreError, message, err)
}
