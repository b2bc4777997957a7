// Package store holds the types shared between the persistence layer and
// its consumers: domain sentinel errors, list filters, and derived views.
// Not-found is signalled with gorm.ErrRecordNotFound throughout, which is
// also what a row in another tenant surfaces as.
package store

import (
	"errors"

	"github.com/google/uuid"

	"github.com/timeledger/timeledger/pkg/model"
)

var (
	// ErrSOWHasActiveProjects refuses SOW cancellation while owned
	// projects are still in planning or active status.
	ErrSOWHasActiveProjects = errors.New("sow has projects in planning or active status")

	// ErrBatchNotDraft refuses item mutation or deletion on a batch that
	// has left draft.
	ErrBatchNotDraft = errors.New("billing batch is not in draft status")

	// ErrInvalidBatchTransition refuses a status change outside
	// draft -> sent -> paid.
	ErrInvalidBatchTransition = errors.New("invalid billing batch status transition")

	// ErrDuplicateMembership refuses a second active membership for the
	// same (project, user) pair.
	ErrDuplicateMembership = errors.New("user already has an active membership on this project")

	// ErrNotReviewable refuses an approve or reject on a record that is no
	// longer in submitted status, including one a concurrent reviewer beat
	// us to.
	ErrNotReviewable = errors.New("record is not in submitted status")
)

// ProjectFilter narrows project listings. VisibleToUserID switches the query
// to employee visibility: active memberships on active projects only.
type ProjectFilter struct {
	CustomerID      *uuid.UUID
	Status          *model.ProjectStatus
	VisibleToUserID *uuid.UUID
}

type TimeEntryFilter struct {
	UserID    *uuid.UUID
	ProjectID *uuid.UUID
	Status    *model.TimeEntryStatus
}

type TimesheetFilter struct {
	UserID *uuid.UUID
	Status *model.TimesheetStatus
}

// BillingStats is the read-only derived view over an organization's batches.
// It is recomputed in full on every request, never cached.
type BillingStats struct {
	DraftBatches int64   `json:"draft_batches"`
	SentBatches  int64   `json:"sent_batches"`
	PaidBatches  int64   `json:"paid_batches"`
	BilledAmount float64 `json:"billed_amount"`
	BilledHours  float64 `json:"billed_hours"`
}
