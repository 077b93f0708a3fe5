package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const resourceTypeColumns = `id, name, category, supports_full_lifecycle, supports_user_management,
	supports_backup, supports_partial_lifecycle, created_at, updated_at`

func scanResourceType(row pgx.Row) (ResourceType, error) {
	var t ResourceType
	err := row.Scan(&t.ID, &t.Name, &t.Category, &t.SupportsFullLifecycle,
		&t.SupportsUserManagement, &t.SupportsBackup, &t.SupportsPartialLifecycle,
		&t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// GetResourceType returns a resource type by ID.
func (s *Store) GetResourceType(ctx context.Context, id int64) (ResourceType, error) {
	query := `SELECT ` + resourceTypeColumns + ` FROM resource_types WHERE id = $1`
	out, err := scanResourceType(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return ResourceType{}, wrapErr("getting resource type", err)
	}
	return out, nil
}

// GetResourceTypeByName returns a resource type by its unique name, e.g. "db-postgresql".
func (s *Store) GetResourceTypeByName(ctx context.Context, name string) (ResourceType, error) {
	query := `SELECT ` + resourceTypeColumns + ` FROM resource_types WHERE name = $1`
	out, err := scanResourceType(s.db.QueryRow(ctx, query, name))
	if err != nil {
		return ResourceType{}, wrapErr("getting resource type by name", err)
	}
	return out, nil
}

// ListResourceTypes returns every registered resource type.
func (s *Store) ListResourceTypes(ctx context.Context) ([]ResourceType, error) {
	query := `SELECT ` + resourceTypeColumns + ` FROM resource_types ORDER BY name`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, wrapErr("listing resource types", err)
	}
	defer rows.Close()

	var out []ResourceType
	for rows.Next() {
		t, err := scanResourceType(rows)
		if err != nil {
			return nil, wrapErr("scanning resource type", err)
		}
		out = append(out, t)
	}
	return out, wrapErr("iterating resource types", rows.Err())
}
