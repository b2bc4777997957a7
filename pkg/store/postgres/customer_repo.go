package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/model"
)

type CustomerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) Create(ctx context.Context, customer *model.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

func (r *CustomerRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.Customer, error) {
	var customer model.Customer
	err := r.db.WithContext(ctx).
		First(&customer, "id = ? AND organization_id = ?", id, orgID).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *CustomerRepository) List(ctx context.Context, orgID uuid.UUID, activeOnly bool, limit, offset int) ([]model.Customer, int64, error) {
	var customers []model.Customer
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Customer{}).Where("organization_id = ?", orgID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("name ASC").
		Limit(limit).
		Offset(offset).
		Find(&customers).Error

	return customers, total, err
}

func (r *CustomerRepository) Save(ctx context.Context, customer *model.Customer) error {
	return r.db.WithContext(ctx).Save(customer).Error
}

// Deactivate soft-disables a customer; rows are never hard-deleted.
func (r *CustomerRepository) Deactivate(ctx context.Context, orgID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&model.Customer{}).
		Where("id = ? AND organization_id = ?", id, orgID).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
