package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Store is the persistent catalog backing every fleetd component. A single
// Store value is shared process-wide and runs every call over the DBTX it
// was built with; a Store built with New over a pgx.Tx (for example inside
// WithTx) runs its writes in that transaction.
type Store struct {
	db DBTX
}

// New creates a Store over the given connection or transaction.
func New(db DBTX) *Store {
	return &Store{db: db}
}

const resourceColumns = `id, team_id, resource_type_id, name, lifecycle_mode, status,
	can_modify_config, can_modify_users, can_backup, can_scale,
	k8s_namespace, k8s_resource_name, k8s_resource_type,
	connection_info, credentials, config, tls_ca_id, tls_cert_id,
	created_at, updated_at, deleted_at`

func scanResource(row pgx.Row) (Resource, error) {
	var r Resource
	err := row.Scan(
		&r.ID, &r.TeamID, &r.ResourceTypeID, &r.Name, &r.LifecycleMode, &r.Status,
		&r.CanModifyConfig, &r.CanModifyUsers, &r.CanBackup, &r.CanScale,
		&r.K8sNamespace, &r.K8sResourceName, &r.K8sResourceType,
		&r.ConnectionInfo, &r.Credentials, &r.Config, &r.TLSCAID, &r.TLSCertID,
		&r.CreatedAt, &r.UpdatedAt, &r.DeletedAt,
	)
	return r, err
}

// InsertResource creates a new Resource in StatusPending.
func (s *Store) InsertResource(ctx context.Context, r Resource) (Resource, error) {
	r.Status = StatusPending
	if r.Config == nil {
		r.Config = json.RawMessage(`{}`)
	}
	if r.ConnectionInfo == nil {
		r.ConnectionInfo = json.RawMessage(`{}`)
	}
	if r.Credentials == nil {
		r.Credentials = json.RawMessage(`{}`)
	}
	query := `INSERT INTO resources (
		team_id, resource_type_id, name, lifecycle_mode, status,
		can_modify_config, can_modify_users, can_backup, can_scale,
		k8s_namespace, k8s_resource_name, k8s_resource_type,
		connection_info, credentials, config, tls_ca_id, tls_cert_id
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	RETURNING ` + resourceColumns
	row := s.db.QueryRow(ctx, query,
		r.TeamID, r.ResourceTypeID, r.Name, r.LifecycleMode, r.Status,
		r.CanModifyConfig, r.CanModifyUsers, r.CanBackup, r.CanScale,
		r.K8sNamespace, r.K8sResourceName, r.K8sResourceType,
		r.ConnectionInfo, r.Credentials, r.Config, r.TLSCAID, r.TLSCertID,
	)
	out, err := scanResource(row)
	if err != nil {
		return Resource{}, wrapErr("inserting resource", err)
	}
	return out, nil
}

// GetResource returns a non-deleted resource by ID.
func (s *Store) GetResource(ctx context.Context, id int64) (Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE id = $1 AND deleted_at IS NULL`
	out, err := scanResource(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return Resource{}, wrapErr("getting resource", err)
	}
	return out, nil
}

// ResourceFilter narrows QueryResources results. Zero values are ignored.
type ResourceFilter struct {
	TeamID         int64
	ResourceTypeID int64
	Status         Status
	LifecycleMode  LifecycleMode
	IncludeDeleted bool
}

// QueryResources returns resources matching filter, newest first.
func (s *Store) QueryResources(ctx context.Context, filter ResourceFilter, limit, offset int) ([]Resource, error) {
	where := []string{"1=1"}
	var args []any
	argN := 1

	if !filter.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if filter.TeamID != 0 {
		where = append(where, fmt.Sprintf("team_id = $%d", argN))
		args = append(args, filter.TeamID)
		argN++
	}
	if filter.ResourceTypeID != 0 {
		where = append(where, fmt.Sprintf("resource_type_id = $%d", argN))
		args = append(args, filter.ResourceTypeID)
		argN++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, filter.Status)
		argN++
	}
	if filter.LifecycleMode != "" {
		where = append(where, fmt.Sprintf("lifecycle_mode = $%d", argN))
		args = append(args, filter.LifecycleMode)
		argN++
	}

	query := fmt.Sprintf(`SELECT %s FROM resources WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		resourceColumns, strings.Join(where, " AND "), argN, argN+1)
	args = append(args, limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("querying resources", err)
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, wrapErr("scanning resource", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterating resources", err)
	}
	return out, nil
}

// CountResources returns the count of resources matching filter.
func (s *Store) CountResources(ctx context.Context, filter ResourceFilter) (int, error) {
	where := []string{"1=1"}
	var args []any
	argN := 1
	if !filter.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if filter.TeamID != 0 {
		where = append(where, fmt.Sprintf("team_id = $%d", argN))
		args = append(args, filter.TeamID)
		argN++
	}
	if filter.ResourceTypeID != 0 {
		where = append(where, fmt.Sprintf("resource_type_id = $%d", argN))
		args = append(args, filter.ResourceTypeID)
		argN++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, filter.Status)
		argN++
	}
	if filter.LifecycleMode != "" {
		where = append(where, fmt.Sprintf("lifecycle_mode = $%d", argN))
		args = append(args, filter.LifecycleMode)
	}
	query := fmt.Sprintf(`SELECT count(*) FROM resources WHERE %s`, strings.Join(where, " AND "))
	var n int
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, wrapErr("counting resources", err)
	}
	return n, nil
}

// ResourceUpdate carries the fields UpdateResourceFields may change. A nil
// pointer leaves the column untouched.
type ResourceUpdate struct {
	Status          *Status
	K8sNamespace    *string
	K8sResourceName *string
	K8sResourceType *string
	ConnectionInfo  json.RawMessage
	Credentials     json.RawMessage
	Config          json.RawMessage
	TLSCAID         *int64
	TLSCertID       *int64
	DeletedAt       *time.Time
}

// UpdateResourceFields performs an atomic, multi-field partial update.
func (s *Store) UpdateResourceFields(ctx context.Context, id int64, u ResourceUpdate) (Resource, error) {
	sets := []string{"updated_at = now()"}
	var args []any
	argN := 1

	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argN))
		args = append(args, val)
		argN++
	}

	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.K8sNamespace != nil {
		add("k8s_namespace", *u.K8sNamespace)
	}
	if u.K8sResourceName != nil {
		add("k8s_resource_name", *u.K8sResourceName)
	}
	if u.K8sResourceType != nil {
		add("k8s_resource_type", *u.K8sResourceType)
	}
	if u.ConnectionInfo != nil {
		add("connection_info", u.ConnectionInfo)
	}
	if u.Credentials != nil {
		add("credentials", u.Credentials)
	}
	if u.Config != nil {
		add("config", u.Config)
	}
	if u.TLSCAID != nil {
		add("tls_ca_id", *u.TLSCAID)
	}
	if u.TLSCertID != nil {
		add("tls_cert_id", *u.TLSCertID)
	}
	if u.DeletedAt != nil {
		add("deleted_at", *u.DeletedAt)
	}

	query := fmt.Sprintf(`UPDATE resources SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), argN, resourceColumns)
	args = append(args, id)

	out, err := scanResource(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return Resource{}, wrapErr("updating resource", err)
	}
	return out, nil
}

// SoftDeleteResource marks a resource deleted. Idempotent against an
// already-deleted row is NOT assumed: callers must check status first, per
// the Resource invariants.
func (s *Store) SoftDeleteResource(ctx context.Context, id int64) error {
	query := `UPDATE resources SET status = $2, deleted_at = now(), updated_at = now(),
		k8s_namespace = NULL, k8s_resource_name = NULL, k8s_resource_type = NULL
		WHERE id = $1 AND deleted_at IS NULL`
	tag, err := s.db.Exec(ctx, query, id, StatusDeleted)
	if err != nil {
		return wrapErr("soft deleting resource", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("soft deleting resource", pgx.ErrNoRows)
	}
	return nil
}
