package models

import "time"

const NotificationTable = "lendshelf_notifications"

// Notification is an append-only activity record produced after a lending
// transition has committed.
type Notification struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	Type           string    `gorm:"size:40;not null" json:"type"`
	RecipientID    string    `gorm:"type:uuid;not null;index:lendshelf_notifications_recipient,priority:1" json:"recipientId"`
	ActorID        string    `gorm:"type:uuid;not null" json:"actorId"`
	TargetRecordID string    `gorm:"type:uuid;not null" json:"targetRecordId"`
	Metadata       string    `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt      time.Time `gorm:"not null;index:lendshelf_notifications_recipient,priority:2,sort:desc" json:"createdAt"`
}

func (Notification) TableName() string { return NotificationTable }
