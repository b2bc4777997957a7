package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BillingBatchStatus string

const (
	BatchDraft BillingBatchStatus = "draft"
	BatchSent  BillingBatchStatus = "sent"
	BatchPaid  BillingBatchStatus = "paid"
)

func IsValidBatchStatus(status BillingBatchStatus) bool {
	switch status {
	case BatchDraft, BatchSent, BatchPaid:
		return true
	default:
		return false
	}
}

// ValidBatchTransition reports whether a batch may move between the two
// statuses. The machine is strictly forward: draft -> sent -> paid.
func ValidBatchTransition(from, to BillingBatchStatus) bool {
	switch from {
	case BatchDraft:
		return to == BatchSent
	case BatchSent:
		return to == BatchPaid
	default:
		return false
	}
}

type BillingItemType string

const (
	BillingItemManual    BillingItemType = "manual"
	BillingItemTimeEntry BillingItemType = "time_entry"
	BillingItemTimesheet BillingItemType = "timesheet"
)

// BillingBatch groups billable line items destined for one invoice.
// TotalAmount and TotalHours are derived and must always equal the sums
// over the batch's current items; the repository recomputes them in the
// same transaction as any item change.
type BillingBatch struct {
	ID                uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrganizationID    uuid.UUID     `gorm:"type:uuid;not null;index"`
	Organization      *Organization `gorm:"foreignKey:OrganizationID"`
	ProjectID         *uuid.UUID    `gorm:"type:uuid;index"`
	Project           *Project      `gorm:"foreignKey:ProjectID"`
	Name              string        `gorm:"not null"`
	Type              BillingItemType    `gorm:"type:varchar(50);default:'manual'"`
	Status            BillingBatchStatus `gorm:"type:varchar(50);default:'draft';index"`
	TotalAmount       float64
	TotalHours        float64
	Currency          string `gorm:"type:varchar(10);default:'USD'"`
	InvoiceNumber     string
	InvoiceDate       *time.Time
	DueDate           *time.Time
	ExternalInvoiceID string
	SyncedAt          *time.Time
	Notes             string
	Items             []BillingItem `gorm:"foreignKey:BatchID"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         gorm.DeletedAt `gorm:"index"`
}

// Deletable reports whether the batch may be removed. Only drafts can go.
func (b *BillingBatch) Deletable() bool {
	return b.Status == BatchDraft
}

// Mutable reports whether items may still be added or removed.
func (b *BillingBatch) Mutable() bool {
	return b.Status == BatchDraft
}

type BillingItem struct {
	ID             uuid.UUID    `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrganizationID uuid.UUID    `gorm:"type:uuid;not null;index"`
	BatchID        uuid.UUID    `gorm:"type:uuid;not null;index"`
	Batch          *BillingBatch `gorm:"foreignKey:BatchID"`
	TimeEntryID    *uuid.UUID   `gorm:"type:uuid"`
	TimesheetID    *uuid.UUID   `gorm:"type:uuid"`
	Description    string       `gorm:"not null"`
	Quantity       float64      `gorm:"not null"`
	UnitRate       float64      `gorm:"not null"`
	// TotalAmount is fixed at creation as Quantity * UnitRate and never
	// recomputed afterwards; there is no item-update operation.
	TotalAmount float64 `gorm:"not null"`
	Billable    bool    `gorm:"default:true"`
	BillingDate time.Time       `gorm:"type:date"`
	Type        BillingItemType `gorm:"type:varchar(50);default:'manual'"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// BatchTotals sums amount and hours over a batch's items.
func BatchTotals(items []BillingItem) (amount, hours float64) {
	for _, item := range items {
		amount += item.TotalAmount
		hours += item.Quantity
	}
	return amount, hours
}
