package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/model"
	"github.com/timeledger/timeledger/pkg/store"
)

type BillingRepository struct {
	db *gorm.DB
}

func NewBillingRepository(db *gorm.DB) *BillingRepository {
	return &BillingRepository{db: db}
}

func (r *BillingRepository) CreateBatch(ctx context.Context, batch *model.BillingBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *BillingRepository) GetBatch(ctx context.Context, orgID, id uuid.UUID) (*model.BillingBatch, error) {
	var batch model.BillingBatch
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&batch, "id = ? AND organization_id = ?", id, orgID).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *BillingRepository) ListBatches(ctx context.Context, orgID uuid.UUID, status *model.BillingBatchStatus, limit, offset int) ([]model.BillingBatch, int64, error) {
	var batches []model.BillingBatch
	var total int64

	query := r.db.WithContext(ctx).Model(&model.BillingBatch{}).Where("organization_id = ?", orgID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&batches).Error

	return batches, total, err
}

// AddItem appends a line to a draft batch and refreshes the batch totals.
// Item write and total recomputation share one transaction so concurrent
// additions serialize instead of overwriting each other's totals.
func (r *BillingRepository) AddItem(ctx context.Context, orgID, batchID uuid.UUID, item *model.BillingItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch model.BillingBatch
		if err := tx.First(&batch, "id = ? AND organization_id = ?", batchID, orgID).Error; err != nil {
			return err
		}
		if !batch.Mutable() {
			return store.ErrBatchNotDraft
		}

		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrganizationID = orgID
		item.BatchID = batch.ID
		if err := tx.Create(item).Error; err != nil {
			return err
		}

		return r.refreshTotals(tx, batch.ID)
	})
}

// RemoveItem deletes a line from a draft batch and refreshes the totals.
func (r *BillingRepository) RemoveItem(ctx context.Context, orgID, batchID, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch model.BillingBatch
		if err := tx.First(&batch, "id = ? AND organization_id = ?", batchID, orgID).Error; err != nil {
			return err
		}
		if !batch.Mutable() {
			return store.ErrBatchNotDraft
		}

		result := tx.Where("id = ? AND batch_id = ?", itemID, batch.ID).Delete(&model.BillingItem{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return r.refreshTotals(tx, batch.ID)
	})
}

func (r *BillingRepository) refreshTotals(tx *gorm.DB, batchID uuid.UUID) error {
	var totals struct {
		Amount float64
		Hours  float64
	}
	err := tx.Model(&model.BillingItem{}).
		Select("COALESCE(SUM(total_amount), 0) AS amount, COALESCE(SUM(quantity), 0) AS hours").
		Where("batch_id = ?", batchID).
		Scan(&totals).Error
	if err != nil {
		return err
	}

	return tx.Model(&model.BillingBatch{}).
		Where("id = ?", batchID).
		Updates(map[string]interface{}{
			"total_amount": totals.Amount,
			"total_hours":  totals.Hours,
			"updated_at":   time.Now().UTC(),
		}).Error
}

// UpdateStatus moves a batch along draft -> sent -> paid. The current
// status is checked inside the transaction so two concurrent transitions
// cannot both succeed.
func (r *BillingRepository) UpdateStatus(ctx context.Context, orgID, id uuid.UUID, target model.BillingBatchStatus) (*model.BillingBatch, error) {
	var batch model.BillingBatch

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&batch, "id = ? AND organization_id = ?", id, orgID).Error; err != nil {
			return err
		}
		if !model.ValidBatchTransition(batch.Status, target) {
			return store.ErrInvalidBatchTransition
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":     target,
			"updated_at": now,
		}
		if target == model.BatchSent && batch.InvoiceDate == nil {
			updates["invoice_date"] = &now
		}

		if err := tx.Model(&model.BillingBatch{}).Where("id = ?", batch.ID).Updates(updates).Error; err != nil {
			return err
		}
		batch.Status = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// DeleteBatch removes a draft batch and its items.
func (r *BillingRepository) DeleteBatch(ctx context.Context, orgID, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch model.BillingBatch
		if err := tx.First(&batch, "id = ? AND organization_id = ?", id, orgID).Error; err != nil {
			return err
		}
		if !batch.Deletable() {
			return store.ErrBatchNotDraft
		}

		if err := tx.Where("batch_id = ?", batch.ID).Delete(&model.BillingItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&batch).Error
	})
}

// Stats recomputes the organization's billing overview on every call; there
// is no stored or cached state behind it.
func (r *BillingRepository) Stats(ctx context.Context, orgID uuid.UUID) (*store.BillingStats, error) {
	stats := &store.BillingStats{}

	rows, err := r.db.WithContext(ctx).Model(&model.BillingBatch{}).
		Select("status, COUNT(*) AS count").
		Where("organization_id = ?", orgID).
		Group("status").
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status model.BillingBatchStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case model.BatchDraft:
			stats.DraftBatches = count
		case model.BatchSent:
			stats.SentBatches = count
		case model.BatchPaid:
			stats.PaidBatches = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var sums struct {
		Amount float64
		Hours  float64
	}
	err = r.db.WithContext(ctx).Model(&model.BillingBatch{}).
		Select("COALESCE(SUM(total_amount), 0) AS amount, COALESCE(SUM(total_hours), 0) AS hours").
		Where("organization_id = ? AND status IN ?", orgID,
			[]model.BillingBatchStatus{model.BatchSent, model.BatchPaid}).
		Scan(&sums).Error
	if err != nil {
		return nil, err
	}

	stats.BilledAmount = sums.Amount
	stats.BilledHours = sums.Hours
	return stats, nil
}
