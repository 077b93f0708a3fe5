package store

import (
	"context"
	"encoding/json"
)

// AppendAudit writes one audit log entry. Audit writes are best-effort from
// the caller's perspective: a failure here must never be allowed to fail
// the operation it is recording.
func (s *Store) AppendAudit(ctx context.Context, a AuditLog) error {
	if a.Details == nil {
		a.Details = json.RawMessage(`{}`)
	}
	query := `INSERT INTO audit_log (user_id, action, resource_type, resource_id, team_id, details)
		VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := s.db.Exec(ctx, query, a.UserID, a.Action, a.ResourceType, a.ResourceID, a.TeamID, a.Details)
	return wrapErr("appending audit log", err)
}
