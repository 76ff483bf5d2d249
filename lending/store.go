package lending

import (
	"context"

	"lendshelf/models"
)

// Store is the only component allowed to mutate borrow records. Implementations
// must enforce the single-active-record-per-item rule atomically at write time.
type Store interface {
	// Create inserts rec. It fails with ErrAlreadyActive when the item already
	// has an active record and with ErrDuplicateRequest when the borrower has
	// already used rec.RequestKey.
	Create(ctx context.Context, rec *models.BorrowRecord) error
	Get(ctx context.Context, id string) (*models.BorrowRecord, error)
	FindByRequestKey(ctx context.Context, borrowerID, key string) (*models.BorrowRecord, error)
	// ConditionalUpdate applies ch only while the stored status equals
	// expected, returning ErrStaleState otherwise.
	ConditionalUpdate(ctx context.Context, id string, expected models.Status, ch Change) (*models.BorrowRecord, error)
	// DeleteRequested hard-deletes a requested record owned by borrowerID.
	DeleteRequested(ctx context.Context, id, borrowerID string) error
	List(ctx context.Context, f RecordFilter) ([]models.BorrowRecord, error)
	ActiveForItem(ctx context.Context, itemID string) (*models.BorrowRecord, error)
}

// RecordFilter narrows List. Empty fields do not filter. ParticipantID
// matches either side of the record.
type RecordFilter struct {
	OwnerID       string
	BorrowerID    string
	ParticipantID string
	ItemID        string
	Statuses      []models.Status
	Limit         int
}

const DefaultListLimit = 200

func (f RecordFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > DefaultListLimit {
		return DefaultListLimit
	}
	return f.Limit
}

// Match reports whether rec satisfies the filter. Stores that filter in
// memory use it; SQL stores translate the same fields into WHERE clauses.
func (f RecordFilter) Match(rec *models.BorrowRecord) bool {
	if f.OwnerID != "" && rec.OwnerID != f.OwnerID {
		return false
	}
	if f.BorrowerID != "" && rec.BorrowerID != f.BorrowerID {
		return false
	}
	if f.ParticipantID != "" && rec.OwnerID != f.ParticipantID && rec.BorrowerID != f.ParticipantID {
		return false
	}
	if f.ItemID != "" && rec.ItemID != f.ItemID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if rec.Status == s {
			return true
		}
	}
	return false
}
