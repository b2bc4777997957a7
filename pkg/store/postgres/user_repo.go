package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		First(&user, "id = ? AND organization_id = ?", id, orgID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByExternalID resolves the identity-provider subject to a local user.
// Used by the auth middleware, so it is not org-scoped: the subject is
// globally unique and determines the organization.
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		First(&user, "external_id = ?", externalID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	query := r.db.WithContext(ctx).Model(&model.User{}).Where("organization_id = ?", orgID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error

	return users, total, err
}

func (r *UserRepository) Save(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// ListPendingProvisioning returns active users whose identity-provider
// role or group sync has not completed, with their organization loaded for
// the reconciler.
func (r *UserRepository) ListPendingProvisioning(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Preload("Organization").
		Where("provisioning_status <> ? AND is_active = ?", model.ProvisioningSynced, true).
		Find(&users).Error
	return users, err
}

func (r *UserRepository) UpdateProvisioningStatus(ctx context.Context, id uuid.UUID, status model.ProvisioningStatus) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Update("provisioning_status", status).Error
}
