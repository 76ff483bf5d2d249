package db

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lendshelf/lending"
	"lendshelf/models"
)

// BorrowStore is the postgres lending.Store. Every write is a single
// statement whose WHERE clause or unique index carries the precondition.
type BorrowStore struct{ DB *gorm.DB }

var _ lending.Store = (*BorrowStore)(nil)

func NewBorrowStore(db *gorm.DB) *BorrowStore { return &BorrowStore{DB: db} }

func (s *BorrowStore) Create(ctx context.Context, rec *models.BorrowRecord) error {
	return classify("db.BorrowStore.Create", s.DB.WithContext(ctx).Create(rec).Error)
}

func (s *BorrowStore) Get(ctx context.Context, id string) (*models.BorrowRecord, error) {
	var rec models.BorrowRecord
	if err := s.DB.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, classify("db.BorrowStore.Get", err)
	}
	return &rec, nil
}

func (s *BorrowStore) FindByRequestKey(ctx context.Context, borrowerID, key string) (*models.BorrowRecord, error) {
	var rec models.BorrowRecord
	if err := s.DB.WithContext(ctx).
		Where("borrower_id = ? AND request_key = ?", borrowerID, key).
		First(&rec).Error; err != nil {
		return nil, classify("db.BorrowStore.FindByRequestKey", err)
	}
	return &rec, nil
}

// ConditionalUpdate is UPDATE ... WHERE id = ? AND status = ? RETURNING *.
// borrowed_at/returned_at are COALESCEd so they can only be set once.
func (s *BorrowStore) ConditionalUpdate(ctx context.Context, id string, expected models.Status, ch lending.Change) (*models.BorrowRecord, error) {
	const op = "db.BorrowStore.ConditionalUpdate"

	update := map[string]any{
		"status":     ch.To,
		"updated_at": ch.UpdatedAt,
	}
	if ch.BorrowedAt != nil {
		update["borrowed_at"] = gorm.Expr("COALESCE(borrowed_at, ?)", *ch.BorrowedAt)
	}
	if ch.ReturnedAt != nil {
		update["returned_at"] = gorm.Expr("COALESCE(returned_at, ?)", *ch.ReturnedAt)
	}

	var rec models.BorrowRecord
	res := s.DB.WithContext(ctx).
		Model(&rec).
		Clauses(clause.Returning{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(update)
	if res.Error != nil {
		return nil, classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, s.missOrStale(ctx, op, id)
	}
	return &rec, nil
}

func (s *BorrowStore) DeleteRequested(ctx context.Context, id, borrowerID string) error {
	const op = "db.BorrowStore.DeleteRequested"

	res := s.DB.WithContext(ctx).
		Where("id = ? AND status = ? AND borrower_id = ?", id, models.StatusRequested, borrowerID).
		Delete(&models.BorrowRecord{})
	if res.Error != nil {
		return classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.missOrStale(ctx, op, id)
	}
	return nil
}

// missOrStale explains a conditional write that matched no rows.
func (s *BorrowStore) missOrStale(ctx context.Context, op, id string) error {
	var n int64
	if err := s.DB.WithContext(ctx).Model(&models.BorrowRecord{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return lending.E(lending.KindNotFound, op, "borrow record not found", nil)
	}
	return lending.E(lending.KindStaleState, op, "record changed concurrently", nil)
}

func (s *BorrowStore) List(ctx context.Context, f lending.RecordFilter) ([]models.BorrowRecord, error) {
	q := s.DB.WithContext(ctx).Model(&models.BorrowRecord{})
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.BorrowerID != "" {
		q = q.Where("borrower_id = ?", f.BorrowerID)
	}
	if f.ParticipantID != "" {
		q = q.Where("(owner_id = ? OR borrower_id = ?)", f.ParticipantID, f.ParticipantID)
	}
	if f.ItemID != "" {
		q = q.Where("item_id = ?", f.ItemID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}

	var recs []models.BorrowRecord
	if err := q.Order("updated_at DESC, id").Limit(f.EffectiveLimit()).Find(&recs).Error; err != nil {
		return nil, classify("db.BorrowStore.List", err)
	}
	return recs, nil
}

func (s *BorrowStore) ActiveForItem(ctx context.Context, itemID string) (*models.BorrowRecord, error) {
	var rec models.BorrowRecord
	if err := s.DB.WithContext(ctx).
		Where("item_id = ? AND status IN ?", itemID, models.ActiveStatuses).
		First(&rec).Error; err != nil {
		return nil, classify("db.BorrowStore.ActiveForItem", err)
	}
	return &rec, nil
}
