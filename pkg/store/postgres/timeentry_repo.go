package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/model"
	"github.com/timeledger/timeledger/pkg/store"
)

type TimeEntryRepository struct {
	db *gorm.DB
}

func NewTimeEntryRepository(db *gorm.DB) *TimeEntryRepository {
	return &TimeEntryRepository{db: db}
}

func (r *TimeEntryRepository) Create(ctx context.Context, entry *model.TimeEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *TimeEntryRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.TimeEntry, error) {
	var entry model.TimeEntry
	err := r.db.WithContext(ctx).
		First(&entry, "id = ? AND organization_id = ?", id, orgID).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *TimeEntryRepository) List(ctx context.Context, orgID uuid.UUID, filter store.TimeEntryFilter, limit, offset int) ([]model.TimeEntry, int64, error) {
	var entries []model.TimeEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.TimeEntry{}).Where("organization_id = ?", orgID)

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("entry_date DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error

	return entries, total, err
}

func (r *TimeEntryRepository) Save(ctx context.Context, entry *model.TimeEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

// Review moves a submitted entry to approved or rejected. The status
// predicate rides in the UPDATE itself, so of two concurrent reviewers
// only one can win; the loser sees ErrNotReviewable.
func (r *TimeEntryRepository) Review(ctx context.Context, orgID, id uuid.UUID, status model.TimeEntryStatus, reviewerID uuid.UUID, reviewedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.TimeEntry{}).
		Where("id = ? AND organization_id = ? AND status = ?", id, orgID, model.TimeEntrySubmitted).
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

func (r *TimeEntryRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		Delete(&model.TimeEntry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
