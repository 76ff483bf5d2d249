// Package memstore provides in-memory implementations of the lending store and
// its collaborators. The store gives the same atomicity guarantees as the
// postgres one within a single process.
package memstore

import (
	"context"
	"sort"
	"sync"

	"lendshelf/lending"
	"lendshelf/models"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]models.BorrowRecord

	lockMu    sync.Mutex
	itemLocks map[string]*sync.Mutex
}

var _ lending.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		records:   map[string]models.BorrowRecord{},
		itemLocks: map[string]*sync.Mutex{},
	}
}

// itemLock serialises check-and-insert for one item.
func (s *Store) itemLock(itemID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.itemLocks[itemID]
	if !ok {
		l = &sync.Mutex{}
		s.itemLocks[itemID] = l
	}
	return l
}

func (s *Store) Create(ctx context.Context, rec *models.BorrowRecord) error {
	const op = "memstore.Create"
	if err := ctx.Err(); err != nil {
		return lending.E(lending.KindUnavailable, op, "", err)
	}

	l := s.itemLock(rec.ItemID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return lending.E(lending.KindInternal, op, "duplicate record id", nil)
	}
	for _, r := range s.records {
		if rec.RequestKey != nil && r.RequestKey != nil && r.BorrowerID == rec.BorrowerID && *r.RequestKey == *rec.RequestKey {
			return lending.E(lending.KindDuplicateRequest, op, "request key already used", nil)
		}
	}
	if rec.Status.Active() {
		for _, r := range s.records {
			if r.ItemID == rec.ItemID && r.Status.Active() {
				return lending.E(lending.KindAlreadyActive, op, "item already has an active borrow record", nil)
			}
		}
	}
	s.records[rec.ID] = clone(*rec)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.BorrowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, lending.E(lending.KindNotFound, "memstore.Get", "borrow record not found", nil)
	}
	out := clone(r)
	return &out, nil
}

func (s *Store) FindByRequestKey(ctx context.Context, borrowerID, key string) (*models.BorrowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.BorrowerID == borrowerID && r.RequestKey != nil && *r.RequestKey == key {
			out := clone(r)
			return &out, nil
		}
	}
	return nil, lending.E(lending.KindNotFound, "memstore.FindByRequestKey", "no record for request key", nil)
}

func (s *Store) ConditionalUpdate(ctx context.Context, id string, expected models.Status, ch lending.Change) (*models.BorrowRecord, error) {
	const op = "memstore.ConditionalUpdate"
	if err := ctx.Err(); err != nil {
		return nil, lending.E(lending.KindUnavailable, op, "", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, lending.E(lending.KindNotFound, op, "borrow record not found", nil)
	}
	if r.Status != expected {
		return nil, lending.E(lending.KindStaleState, op, "status changed from "+string(expected)+" to "+string(r.Status), nil)
	}
	r.Status = ch.To
	r.UpdatedAt = ch.UpdatedAt
	if ch.BorrowedAt != nil && r.BorrowedAt == nil {
		t := *ch.BorrowedAt
		r.BorrowedAt = &t
	}
	if ch.ReturnedAt != nil && r.ReturnedAt == nil {
		t := *ch.ReturnedAt
		r.ReturnedAt = &t
	}
	s.records[id] = r
	out := clone(r)
	return &out, nil
}

func (s *Store) DeleteRequested(ctx context.Context, id, borrowerID string) error {
	const op = "memstore.DeleteRequested"
	if err := ctx.Err(); err != nil {
		return lending.E(lending.KindUnavailable, op, "", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return lending.E(lending.KindNotFound, op, "borrow record not found", nil)
	}
	if r.Status != models.StatusRequested || r.BorrowerID != borrowerID {
		return lending.E(lending.KindStaleState, op, "record is no longer a pending request", nil)
	}
	delete(s.records, id)
	return nil
}

func (s *Store) List(ctx context.Context, f lending.RecordFilter) ([]models.BorrowRecord, error) {
	s.mu.RLock()
	out := make([]models.BorrowRecord, 0)
	for _, r := range s.records {
		if f.Match(&r) {
			out = append(out, clone(r))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ActiveForItem(ctx context.Context, itemID string) (*models.BorrowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ItemID == itemID && r.Status.Active() {
			out := clone(r)
			return &out, nil
		}
	}
	return nil, lending.E(lending.KindNotFound, "memstore.ActiveForItem", "no active record", nil)
}

func clone(r models.BorrowRecord) models.BorrowRecord {
	out := r
	if r.ExpectedReturnDate != nil {
		t := *r.ExpectedReturnDate
		out.ExpectedReturnDate = &t
	}
	if r.RequestKey != nil {
		k := *r.RequestKey
		out.RequestKey = &k
	}
	if r.BorrowedAt != nil {
		t := *r.BorrowedAt
		out.BorrowedAt = &t
	}
	if r.ReturnedAt != nil {
		t := *r.ReturnedAt
		out.ReturnedAt = &t
	}
	return out
}
