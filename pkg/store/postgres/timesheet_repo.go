package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/model"
	"github.com/timeledger/timeledger/pkg/store"
)

type TimesheetRepository struct {
	db *gorm.DB
}

func NewTimesheetRepository(db *gorm.DB) *TimesheetRepository {
	return &TimesheetRepository{db: db}
}

// Create persists the timesheet and its per-day entries together.
func (r *TimesheetRepository) Create(ctx context.Context, timesheet *model.Timesheet) error {
	return r.db.WithContext(ctx).Create(timesheet).Error
}

func (r *TimesheetRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.Timesheet, error) {
	var timesheet model.Timesheet
	err := r.db.WithContext(ctx).
		Preload("Entries").
		First(&timesheet, "id = ? AND organization_id = ?", id, orgID).Error
	if err != nil {
		return nil, err
	}
	return &timesheet, nil
}

func (r *TimesheetRepository) List(ctx context.Context, orgID uuid.UUID, filter store.TimesheetFilter, limit, offset int) ([]model.Timesheet, int64, error) {
	var timesheets []model.Timesheet
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Timesheet{}).Where("organization_id = ?", orgID)

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("week_start DESC").
		Limit(limit).
		Offset(offset).
		Find(&timesheets).Error

	return timesheets, total, err
}

// UpdateStatus applies a transition without touching the loaded entries.
func (r *TimesheetRepository) UpdateStatus(ctx context.Context, orgID, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&model.Timesheet{}).
		Where("id = ? AND organization_id = ?", id, orgID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Review moves a submitted timesheet to approved or rejected. The status
// predicate is part of the UPDATE, so a concurrent review that already
// settled the timesheet surfaces as ErrNotReviewable instead of being
// silently overwritten.
func (r *TimesheetRepository) Review(ctx context.Context, orgID, id uuid.UUID, status model.TimesheetStatus, reviewerID uuid.UUID, reviewedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.Timesheet{}).
		Where("id = ? AND organization_id = ? AND status = ?", id, orgID, model.TimesheetSubmitted).
		Updates(map[string]interface{}{
			"status":         status,
			"reviewed_at":    reviewedAt,
			"reviewed_by_id": reviewerID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotReviewable
	}
	return nil
}
