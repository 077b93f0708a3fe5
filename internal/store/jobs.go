package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const backupJobColumns = `id, resource_id, type, status, location, size_bytes,
	started_at, finished_at, error, created_at`

func scanBackupJob(row pgx.Row) (BackupJob, error) {
	var j BackupJob
	err := row.Scan(&j.ID, &j.ResourceID, &j.Type, &j.Status, &j.Location, &j.SizeBytes,
		&j.StartedAt, &j.FinishedAt, &j.Error, &j.CreatedAt)
	return j, err
}

// InsertBackupJob creates a BackupJob record.
func (s *Store) InsertBackupJob(ctx context.Context, j BackupJob) (BackupJob, error) {
	query := `INSERT INTO backup_jobs (resource_id, type, status, started_at)
		VALUES ($1,$2,$3,$4) RETURNING ` + backupJobColumns
	out, err := scanBackupJob(s.db.QueryRow(ctx, query, j.ResourceID, j.Type, j.Status, j.StartedAt))
	if err != nil {
		return BackupJob{}, wrapErr("inserting backup job", err)
	}
	return out, nil
}

// CompleteBackupJob marks a backup job completed with its resulting location/size.
func (s *Store) CompleteBackupJob(ctx context.Context, id int64, location string, sizeBytes int64, finishedAt time.Time) (BackupJob, error) {
	query := `UPDATE backup_jobs SET status = $2, location = $3, size_bytes = $4, finished_at = $5
		WHERE id = $1 RETURNING ` + backupJobColumns
	out, err := scanBackupJob(s.db.QueryRow(ctx, query, id, JobCompleted, location, sizeBytes, finishedAt))
	if err != nil {
		return BackupJob{}, wrapErr("completing backup job", err)
	}
	return out, nil
}

// FailBackupJob marks a backup job failed with an error message.
func (s *Store) FailBackupJob(ctx context.Context, id int64, message string, finishedAt time.Time) (BackupJob, error) {
	query := `UPDATE backup_jobs SET status = $2, error = $3, finished_at = $4
		WHERE id = $1 RETURNING ` + backupJobColumns
	out, err := scanBackupJob(s.db.QueryRow(ctx, query, id, JobFailed, message, finishedAt))
	if err != nil {
		return BackupJob{}, wrapErr("failing backup job", err)
	}
	return out, nil
}

// ListBackupJobsForResource returns completed backup jobs for a resource,
// newest first — used by retention cleanup.
func (s *Store) ListBackupJobsForResource(ctx context.Context, resourceID int64) ([]BackupJob, error) {
	query := `SELECT ` + backupJobColumns + ` FROM backup_jobs
		WHERE resource_id = $1 AND status = $2 ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, resourceID, JobCompleted)
	if err != nil {
		return nil, wrapErr("listing backup jobs", err)
	}
	defer rows.Close()

	var out []BackupJob
	for rows.Next() {
		j, err := scanBackupJob(rows)
		if err != nil {
			return nil, wrapErr("scanning backup job", err)
		}
		out = append(out, j)
	}
	return out, wrapErr("iterating backup jobs", rows.Err())
}

const provisioningJobColumns = `id, resource_id, type, status, logs, error,
	started_at, finished_at, created_at`

func scanProvisioningJob(row pgx.Row) (ProvisioningJob, error) {
	var j ProvisioningJob
	err := row.Scan(&j.ID, &j.ResourceID, &j.Type, &j.Status, &j.Logs, &j.Error,
		&j.StartedAt, &j.FinishedAt, &j.CreatedAt)
	return j, err
}

// InsertProvisioningJob creates a ProvisioningJob record, typically as part
// of a transaction grouping it with the resource-state write that follows.
func (s *Store) InsertProvisioningJob(ctx context.Context, j ProvisioningJob) (ProvisioningJob, error) {
	query := `INSERT INTO provisioning_jobs (resource_id, type, status, logs, error, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING ` + provisioningJobColumns
	out, err := scanProvisioningJob(s.db.QueryRow(ctx, query,
		j.ResourceID, j.Type, j.Status, j.Logs, j.Error, j.StartedAt, j.FinishedAt))
	if err != nil {
		return ProvisioningJob{}, wrapErr("inserting provisioning job", err)
	}
	return out, nil
}
