package store

import (
	"context"
)

// GetTeamMembership returns a user's role on a team, or errs.NotFound if absent.
func (s *Store) GetTeamMembership(ctx context.Context, userID, teamID int64) (TeamMembership, error) {
	query := `SELECT id, user_id, team_id, role, created_at FROM team_memberships
		WHERE user_id = $1 AND team_id = $2`
	var m TeamMembership
	err := s.db.QueryRow(ctx, query, userID, teamID).Scan(&m.ID, &m.UserID, &m.TeamID, &m.Role, &m.CreatedAt)
	if err != nil {
		return TeamMembership{}, wrapErr("getting team membership", err)
	}
	return m, nil
}

// IsGlobalAdmin reports whether userID has an admin role on the team
// flagged isGlobal.
func (s *Store) IsGlobalAdmin(ctx context.Context, userID int64) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM team_memberships m
		JOIN teams t ON t.id = m.team_id
		WHERE m.user_id = $1 AND m.role = $2 AND t.is_global AND t.deleted_at IS NULL
	)`
	var ok bool
	if err := s.db.QueryRow(ctx, query, userID, RoleAdmin).Scan(&ok); err != nil {
		return false, wrapErr("checking global admin", err)
	}
	return ok, nil
}
