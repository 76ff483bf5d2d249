package db

import (
	"context"
	"errors"

	"lendshelf/lending"
	"lendshelf/models"
)

var ErrSerialTaken = errors.New("serial already registered")

func (r *Repo) CreateItem(ctx context.Context, it *models.Item) error {
	if it.Status == "" {
		it.Status = models.ItemStatusActive
	}
	if err := r.DB.WithContext(ctx).Create(it).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrSerialTaken
		}
		return classify("db.CreateItem", err)
	}
	return nil
}

func (r *Repo) FindItemByID(ctx context.Context, id string) (*models.Item, error) {
	var it models.Item
	if err := r.DB.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, classify("db.FindItemByID", err)
	}
	return &it, nil
}

// ListItems lists catalog items, newest first. An empty ownerID lists all.
func (r *Repo) ListItems(ctx context.Context, ownerID string) ([]models.Item, error) {
	q := r.DB.WithContext(ctx).Where("status = ?", models.ItemStatusActive)
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	var items []models.Item
	if err := q.Order("created_at DESC").Limit(200).Find(&items).Error; err != nil {
		return nil, classify("db.ListItems", err)
	}
	return items, nil
}

// RetireItem takes an item out of circulation. Only the owner may do it; the
// returned count is zero when the item is not theirs.
func (r *Repo) RetireItem(ctx context.Context, id, ownerID string) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&models.Item{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Update("status", models.ItemStatusRetired)
	if res.Error != nil {
		return 0, classify("db.RetireItem", res.Error)
	}
	return res.RowsAffected, nil
}

// GetItem implements lending.ItemCatalog.
func (r *Repo) GetItem(ctx context.Context, id string) (*lending.ItemSnapshot, error) {
	var it models.Item
	if err := r.DB.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, classify("db.GetItem", err)
	}
	snap := lending.ItemSnapshot{ID: it.ID, OwnerID: it.OwnerID, Name: it.Name, Status: it.Status}
	return &snap, nil
}

func (r *Repo) LookupItems(ctx context.Context, ids []string) (map[string]lending.ItemSnapshot, error) {
	out := make(map[string]lending.ItemSnapshot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []models.Item
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, classify("db.LookupItems", err)
	}
	for _, it := range items {
		out[it.ID] = lending.ItemSnapshot{ID: it.ID, OwnerID: it.OwnerID, Name: it.Name, Status: it.Status}
	}
	return out, nil
}
