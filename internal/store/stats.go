package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const resourceStatColumns = `id, resource_id, timestamp, metrics, risk_level, risk_factors`

func scanResourceStat(row pgx.Row) (ResourceStat, error) {
	var st ResourceStat
	err := row.Scan(&st.ID, &st.ResourceID, &st.Timestamp, &st.Metrics, &st.RiskLevel, &st.RiskFactors)
	return st, err
}

// InsertResourceStat appends a statistics sample. ResourceStat is append-only.
func (s *Store) InsertResourceStat(ctx context.Context, st ResourceStat) (ResourceStat, error) {
	query := `INSERT INTO resource_stats (resource_id, timestamp, metrics, risk_level, risk_factors)
		VALUES ($1,$2,$3,$4,$5) RETURNING ` + resourceStatColumns
	out, err := scanResourceStat(s.db.QueryRow(ctx, query,
		st.ResourceID, st.Timestamp, st.Metrics, st.RiskLevel, st.RiskFactors))
	if err != nil {
		return ResourceStat{}, wrapErr("inserting resource stat", err)
	}
	return out, nil
}

// LatestResourceStat returns the most recent sample for a resource.
func (s *Store) LatestResourceStat(ctx context.Context, resourceID int64) (ResourceStat, error) {
	query := `SELECT ` + resourceStatColumns + ` FROM resource_stats
		WHERE resource_id = $1 ORDER BY timestamp DESC LIMIT 1`
	out, err := scanResourceStat(s.db.QueryRow(ctx, query, resourceID))
	if err != nil {
		return ResourceStat{}, wrapErr("getting latest resource stat", err)
	}
	return out, nil
}
