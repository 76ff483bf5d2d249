// models/item.go
package models

import "time"

const ItemTable = "lendshelf_items"

const (
	ItemStatusActive  = "active"
	ItemStatusRetired = "retired"
)

type Item struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID   string    `gorm:"type:uuid;index;not null" json:"ownerId"`
	Serial    string    `gorm:"size:120;uniqueIndex;not null" json:"serial"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	Status    string    `gorm:"size:20;not null;default:'active'" json:"status"` // active/retired
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Item) TableName() string { return ItemTable }
