package lending

import (
	"context"
	"strings"

	"lendshelf/models"
)

// Guard resolves the calling actor and checks its role on a record before the
// engine is consulted.
type Guard struct {
	profiles ProfileDirectory
}

func NewGuard(profiles ProfileDirectory) *Guard { return &Guard{profiles: profiles} }

func (g *Guard) Authenticate(ctx context.Context, callerID string) (string, error) {
	const op = "lending.Authenticate"

	id := strings.TrimSpace(callerID)
	if id == "" {
		return "", E(KindNotAuthenticated, op, "no caller identity", nil)
	}
	ok, err := g.profiles.ProfileExists(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", E(KindNotAuthenticated, op, "unknown caller", nil)
	}
	return id, nil
}

// RoleOf returns the roles actorID holds on rec (zero if none).
func RoleOf(actorID string, rec *models.BorrowRecord) Role {
	var r Role
	if actorID == rec.OwnerID {
		r |= RoleOwner
	}
	if actorID == rec.BorrowerID {
		r |= RoleBorrower
	}
	return r
}

// Authorize fails with ErrNotFound when the record is outside the actor's
// scope and with ErrNotAuthorized when the actor lacks the action's role.
func (g *Guard) Authorize(actorID string, rec *models.BorrowRecord, action Action) error {
	const op = "lending.Authorize"

	held := RoleOf(actorID, rec)
	if held == 0 {
		return E(KindNotFound, op, "borrow record not found", nil)
	}
	if held&RequiredRole(action) == 0 {
		return E(KindNotAuthorized, op, string(action)+" requires the "+RequiredRole(action).String(), nil)
	}
	return nil
}
