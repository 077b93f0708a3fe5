// Package rbac implements the three-tier access rule every mutating
// component applies before touching a team's resources: fleet-admin (admin
// on the global team), team-admin (admin on the owning team), and
// team-member (any role on the owning team) for read access.
package rbac

import (
	"context"

	"github.com/wisbric/fleetd/internal/errs"
	"github.com/wisbric/fleetd/internal/store"
)

// Level is the access tier a caller must hold.
type Level int

const (
	// LevelRead is satisfied by any role on the team.
	LevelRead Level = iota
	// LevelWrite is satisfied by an admin role on the team (or global admin).
	LevelWrite
)

// Checker resolves a caller's access against a team.
type Checker struct {
	store *store.Store
}

// New creates a Checker backed by store.
func New(s *store.Store) *Checker {
	return &Checker{store: s}
}

// Check returns errs.AccessDenied if userID does not hold need on teamID.
func (c *Checker) Check(ctx context.Context, userID, teamID int64, need Level) error {
	if isGlobal, err := c.store.IsGlobalAdmin(ctx, userID); err != nil {
		return errs.Wrap(errs.AccessDenied, "checking global admin status", err)
	} else if isGlobal {
		return nil
	}

	membership, err := c.store.GetTeamMembership(ctx, userID, teamID)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return errs.New(errs.AccessDenied, "user is not a member of the owning team")
		}
		return errs.Wrap(errs.AccessDenied, "resolving team membership", err)
	}

	switch need {
	case LevelRead:
		return nil // any membership role satisfies read access
	case LevelWrite:
		if membership.Role != store.RoleAdmin {
			return errs.New(errs.AccessDenied, "admin role required on the owning team")
		}
		return nil
	default:
		return errs.New(errs.AccessDenied, "unknown access level")
	}
}
