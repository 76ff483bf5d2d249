// models/borrow_record.go
package models

import "time"

const BorrowRecordTable = "borrow_records"

// Index names are referenced when classifying unique violations.
const (
	IndexOneActivePerItem = "borrow_records_one_active_per_item"
	IndexRequestKey       = "borrow_records_request_key"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusApproved  Status = "approved"
	StatusDeclined  Status = "declined"
	StatusBorrowed  Status = "borrowed"
	StatusReturned  Status = "returned"
)

// ActiveStatuses block new requests for the same item.
var ActiveStatuses = []Status{StatusRequested, StatusApproved, StatusBorrowed}

func (s Status) Active() bool {
	return s == StatusRequested || s == StatusApproved || s == StatusBorrowed
}

func (s Status) Terminal() bool { return s == StatusDeclined || s == StatusReturned }

func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusApproved, StatusDeclined, StatusBorrowed, StatusReturned:
		return true
	}
	return false
}

type BorrowRecord struct {
	ID                 string     `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID             string     `gorm:"type:uuid;not null" json:"itemId"`
	OwnerID            string     `gorm:"type:uuid;not null;index:borrow_records_owner_status,priority:1" json:"ownerId"`
	BorrowerID         string     `gorm:"type:uuid;not null;index:borrow_records_borrower_status,priority:1" json:"borrowerId"`
	Status             Status     `gorm:"size:20;not null;index:borrow_records_owner_status,priority:2;index:borrow_records_borrower_status,priority:2" json:"status"`
	Notes              string     `gorm:"size:500" json:"notes,omitempty"`
	ExpectedReturnDate *time.Time `json:"expectedReturnDate,omitempty"`
	RequestKey         *string    `gorm:"size:128" json:"-"`

	CreatedAt  time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt  time.Time  `gorm:"not null;index" json:"updatedAt"`
	BorrowedAt *time.Time `json:"borrowedAt,omitempty"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`
}

func (BorrowRecord) TableName() string { return BorrowRecordTable }

// Counterparty returns the other participant of the record.
func (r *BorrowRecord) Counterparty(actorID string) string {
	if actorID == r.OwnerID {
		return r.BorrowerID
	}
	return r.OwnerID
}
