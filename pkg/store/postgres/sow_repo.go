package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/model"
	"github.com/timeledger/timeledger/pkg/store"
)

type SOWRepository struct {
	db *gorm.DB
}

func NewSOWRepository(db *gorm.DB) *SOWRepository {
	return &SOWRepository{db: db}
}

func (r *SOWRepository) Create(ctx context.Context, sow *model.SOW) error {
	return r.db.WithContext(ctx).Create(sow).Error
}

func (r *SOWRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.SOW, error) {
	var sow model.SOW
	err := r.db.WithContext(ctx).
		First(&sow, "id = ? AND organization_id = ?", id, orgID).Error
	if err != nil {
		return nil, err
	}
	return &sow, nil
}

func (r *SOWRepository) List(ctx context.Context, orgID uuid.UUID, customerID *uuid.UUID, limit, offset int) ([]model.SOW, int64, error) {
	var sows []model.SOW
	var total int64

	query := r.db.WithContext(ctx).Model(&model.SOW{}).Where("organization_id = ?", orgID)
	if customerID != nil {
		query = query.Where("customer_id = ?", *customerID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&sows).Error

	return sows, total, err
}

func (r *SOWRepository) Save(ctx context.Context, sow *model.SOW) error {
	return r.db.WithContext(ctx).Save(sow).Error
}

// Cancel marks a SOW cancelled. It refuses while any owned project is
// still in planning or active status; the check and the update run in one
// transaction so a concurrent project creation cannot slip between them.
func (r *SOWRepository) Cancel(ctx context.Context, orgID, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sow model.SOW
		if err := tx.First(&sow, "id = ? AND organization_id = ?", id, orgID).Error; err != nil {
			return err
		}

		var active int64
		err := tx.Model(&model.Project{}).
			Where("sow_id = ? AND status IN ?", sow.ID,
				[]model.ProjectStatus{model.ProjectPlanning, model.ProjectActive}).
			Count(&active).Error
		if err != nil {
			return err
		}
		if active > 0 {
			return store.ErrSOWHasActiveProjects
		}

		return tx.Model(&model.SOW{}).Where("id = ?", sow.ID).
			Updates(map[string]interface{}{
				"status":     model.SOWCancelled,
				"updated_at": time.Now().UTC(),
			}).Error
	})
}
