package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const resourceUserColumns = `id, resource_id, username, encrypted_password, roles,
	sync_status, last_synced_at, sync_error, created_at, updated_at, deleted_at`

func scanResourceUser(row pgx.Row) (ResourceUser, error) {
	var u ResourceUser
	err := row.Scan(&u.ID, &u.ResourceID, &u.Username, &u.EncryptedPassword, &u.Roles,
		&u.SyncStatus, &u.LastSyncedAt, &u.SyncError, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	return u, err
}

// InsertResourceUser creates a ResourceUser in SyncPending.
func (s *Store) InsertResourceUser(ctx context.Context, u ResourceUser) (ResourceUser, error) {
	query := `INSERT INTO resource_users (resource_id, username, encrypted_password, roles, sync_status)
		VALUES ($1,$2,$3,$4,$5) RETURNING ` + resourceUserColumns
	out, err := scanResourceUser(s.db.QueryRow(ctx, query, u.ResourceID, u.Username, u.EncryptedPassword, u.Roles, SyncPending))
	if err != nil {
		return ResourceUser{}, wrapErr("inserting resource user", err)
	}
	return out, nil
}

// GetResourceUser returns a non-deleted resource user by ID.
func (s *Store) GetResourceUser(ctx context.Context, id int64) (ResourceUser, error) {
	query := `SELECT ` + resourceUserColumns + ` FROM resource_users WHERE id = $1 AND deleted_at IS NULL`
	out, err := scanResourceUser(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return ResourceUser{}, wrapErr("getting resource user", err)
	}
	return out, nil
}

// ListResourceUsersPendingSync returns non-deleted resource users whose
// sync_status is pending or error, oldest first, limited to batchSize — the
// query UserSyncWorker polls every cycle.
func (s *Store) ListResourceUsersPendingSync(ctx context.Context, batchSize int) ([]ResourceUser, error) {
	query := `SELECT ` + resourceUserColumns + ` FROM resource_users
		WHERE deleted_at IS NULL AND sync_status IN ($1, $2)
		ORDER BY created_at ASC LIMIT $3`
	rows, err := s.db.Query(ctx, query, SyncPending, SyncError, batchSize)
	if err != nil {
		return nil, wrapErr("listing pending resource users", err)
	}
	defer rows.Close()

	var out []ResourceUser
	for rows.Next() {
		u, err := scanResourceUser(rows)
		if err != nil {
			return nil, wrapErr("scanning resource user", err)
		}
		out = append(out, u)
	}
	return out, wrapErr("iterating resource users", rows.Err())
}

// ListResourceUsersForResource returns every non-deleted resource user
// belonging to resourceID, oldest first — the set SyncUsers reconciles in
// one batch.
func (s *Store) ListResourceUsersForResource(ctx context.Context, resourceID int64) ([]ResourceUser, error) {
	query := `SELECT ` + resourceUserColumns + ` FROM resource_users
		WHERE resource_id = $1 AND deleted_at IS NULL ORDER BY created_at ASC`
	rows, err := s.db.Query(ctx, query, resourceID)
	if err != nil {
		return nil, wrapErr("listing resource users for resource", err)
	}
	defer rows.Close()

	var out []ResourceUser
	for rows.Next() {
		u, err := scanResourceUser(rows)
		if err != nil {
			return nil, wrapErr("scanning resource user", err)
		}
		out = append(out, u)
	}
	return out, wrapErr("iterating resource users", rows.Err())
}

// MarkResourceUserSyncing transitions a row to SyncSyncing.
func (s *Store) MarkResourceUserSyncing(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `UPDATE resource_users SET sync_status = $2, updated_at = now() WHERE id = $1`,
		id, SyncSyncing)
	return wrapErr("marking resource user syncing", err)
}

// MarkResourceUserSynced transitions a row to SyncSynced and stamps LastSyncedAt.
func (s *Store) MarkResourceUserSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE resource_users SET sync_status = $2, last_synced_at = $3, sync_error = NULL, updated_at = now() WHERE id = $1`,
		id, SyncSynced, at)
	return wrapErr("marking resource user synced", err)
}

// MarkResourceUserError transitions a row to SyncError with a message.
func (s *Store) MarkResourceUserError(ctx context.Context, id int64, message string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE resource_users SET sync_status = $2, sync_error = $3, updated_at = now() WHERE id = $1`,
		id, SyncError, message)
	return wrapErr("marking resource user error", err)
}

// SoftDeleteResourceUser marks a resource user deleted.
func (s *Store) SoftDeleteResourceUser(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE resource_users SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return wrapErr("soft deleting resource user", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("soft deleting resource user", pgx.ErrNoRows)
	}
	return nil
}
