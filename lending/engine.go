package lending

import (
	"time"

	"lendshelf/models"
)

type Action string

const (
	ActionRequest      Action = "request"
	ActionApprove      Action = "approve"
	ActionDecline      Action = "decline"
	ActionCancel       Action = "cancel"
	ActionMarkBorrowed Action = "mark_borrowed"
	ActionMarkReturned Action = "mark_returned"
)

// Actions lists every action the engine knows about.
var Actions = []Action{ActionRequest, ActionApprove, ActionDecline, ActionCancel, ActionMarkBorrowed, ActionMarkReturned}

type Role uint8

const (
	RoleOwner Role = 1 << iota
	RoleBorrower

	RoleEither = RoleOwner | RoleBorrower
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleBorrower:
		return "borrower"
	case RoleEither:
		return "owner or borrower"
	}
	return "none"
}

// Outcome is the effect of a legal transition.
type Outcome struct {
	To            models.Status
	Delete        bool
	StampBorrowed bool
	StampReturned bool
}

type rule struct {
	role    Role
	from    []models.Status
	outcome Outcome
}

// request has no from-status: it creates the record instead of moving one.
var rules = map[Action]rule{
	ActionRequest: {role: RoleBorrower, outcome: Outcome{To: models.StatusRequested}},
	ActionApprove: {
		role:    RoleOwner,
		from:    []models.Status{models.StatusRequested},
		outcome: Outcome{To: models.StatusApproved},
	},
	ActionDecline: {
		role:    RoleOwner,
		from:    []models.Status{models.StatusRequested},
		outcome: Outcome{To: models.StatusDeclined},
	},
	ActionCancel: {
		role:    RoleBorrower,
		from:    []models.Status{models.StatusRequested},
		outcome: Outcome{Delete: true},
	},
	ActionMarkBorrowed: {
		role:    RoleEither,
		from:    []models.Status{models.StatusApproved},
		outcome: Outcome{To: models.StatusBorrowed, StampBorrowed: true},
	},
	ActionMarkReturned: {
		role:    RoleEither,
		from:    []models.Status{models.StatusApproved, models.StatusBorrowed},
		outcome: Outcome{To: models.StatusReturned, StampReturned: true},
	},
}

// RequiredRole is the role an actor must hold on a record to perform action.
func RequiredRole(action Action) Role {
	return rules[action].role
}

// Decide returns the outcome of applying action to a record in status from.
// It is total: every pair that is not in the transition table yields
// ErrInvalidTransition.
func Decide(from models.Status, action Action) (Outcome, error) {
	const op = "lending.Decide"

	r, ok := rules[action]
	if !ok {
		return Outcome{}, E(KindInvalidTransition, op, "unknown action "+string(action), nil)
	}
	for _, s := range r.from {
		if s == from {
			return r.outcome, nil
		}
	}
	return Outcome{}, E(KindInvalidTransition, op, "cannot "+string(action)+" a "+string(from)+" record", nil)
}

// Change is the write a store performs for a committed transition.
type Change struct {
	To         models.Status
	UpdatedAt  time.Time
	BorrowedAt *time.Time
	ReturnedAt *time.Time
}

// Apply turns an outcome into the store change for rec. Timestamps that are
// already set are never overwritten.
func Apply(rec *models.BorrowRecord, o Outcome, now time.Time) Change {
	ch := Change{To: o.To, UpdatedAt: now}
	if o.StampBorrowed && rec.BorrowedAt == nil {
		t := now
		ch.BorrowedAt = &t
	}
	if o.StampReturned && rec.ReturnedAt == nil {
		t := now
		ch.ReturnedAt = &t
	}
	return ch
}
