package lending

import (
	"context"
	"time"
)

// ItemSnapshot is the catalog's view of an item at read time.
type ItemSnapshot struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Missing bool   `json:"missing,omitempty"`
}

type ProfileSnapshot struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Missing     bool   `json:"missing,omitempty"`
}

// ItemCatalog owns items and their current owner. GetItem returns ErrNotFound
// for unknown ids; LookupItems silently omits them.
type ItemCatalog interface {
	GetItem(ctx context.Context, id string) (*ItemSnapshot, error)
	LookupItems(ctx context.Context, ids []string) (map[string]ItemSnapshot, error)
}

// ProfileDirectory is the identity provider: it knows which actors exist.
type ProfileDirectory interface {
	ProfileExists(ctx context.Context, id string) (bool, error)
	LookupProfiles(ctx context.Context, ids []string) (map[string]ProfileSnapshot, error)
}

const (
	EventBorrowRequested = "borrow_requested"
	EventBorrowApproved  = "borrow_approved"
	EventBorrowDeclined  = "borrow_declined"
	EventBorrowCancelled = "borrow_cancelled"
	EventBorrowPickedUp  = "borrow_picked_up"
	EventBorrowReturned  = "borrow_returned"
)

type Event struct {
	Type           string            `json:"type"`
	RecipientID    string            `json:"recipientId"`
	ActorID        string            `json:"actorId"`
	TargetRecordID string            `json:"targetRecordId"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	OccurredAt     time.Time         `json:"occurredAt"`
}

// Notifier receives events after a transition has committed. Emit must not
// block and has no way to report failure.
type Notifier interface {
	Emit(ev Event)
}

type NopNotifier struct{}

func (NopNotifier) Emit(Event) {}
