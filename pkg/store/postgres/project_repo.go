package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/model"
	"github.com/timeledger/timeledger/pkg/store"
)

type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, project *model.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *ProjectRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.Project, error) {
	var project model.Project
	err := r.db.WithContext(ctx).
		First(&project, "id = ? AND organization_id = ?", id, orgID).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// List returns projects in the organization. With VisibleToUserID set the
// query narrows to active projects where that user holds an active
// membership, which is the whole of an employee's view.
func (r *ProjectRepository) List(ctx context.Context, orgID uuid.UUID, filter store.ProjectFilter, limit, offset int) ([]model.Project, int64, error) {
	var projects []model.Project
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Project{}).
		Where("projects.organization_id = ?", orgID)

	if filter.CustomerID != nil {
		query = query.Where("projects.customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("projects.status = ?", *filter.Status)
	}
	if filter.VisibleToUserID != nil {
		query = query.
			Joins("JOIN project_memberships ON project_memberships.project_id = projects.id").
			Where("project_memberships.user_id = ? AND project_memberships.is_active = ?", *filter.VisibleToUserID, true).
			Where("projects.is_active = ?", true)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("projects.created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&projects).Error

	return projects, total, err
}

func (r *ProjectRepository) Save(ctx context.Context, project *model.Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}

// ActiveMembership returns the active membership for the pair, or
// gorm.ErrRecordNotFound.
func (r *ProjectRepository) ActiveMembership(ctx context.Context, orgID, projectID, userID uuid.UUID) (*model.ProjectMembership, error) {
	var membership model.ProjectMembership
	err := r.db.WithContext(ctx).
		First(&membership,
			"organization_id = ? AND project_id = ? AND user_id = ? AND is_active = ?",
			orgID, projectID, userID, true).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *ProjectRepository) ListMembers(ctx context.Context, orgID, projectID uuid.UUID) ([]model.ProjectMembership, error) {
	var memberships []model.ProjectMembership
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("organization_id = ? AND project_id = ?", orgID, projectID).
		Order("joined_at ASC").
		Find(&memberships).Error
	return memberships, err
}

// AddMember creates a membership, or reactivates a previously removed one
// for the same pair. A second active membership is refused.
func (r *ProjectRepository) AddMember(ctx context.Context, orgID, projectID, userID uuid.UUID, rate *float64) (*model.ProjectMembership, error) {
	var membership model.ProjectMembership

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&membership,
			"organization_id = ? AND project_id = ? AND user_id = ?",
			orgID, projectID, userID).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}

		now := time.Now().UTC()

		if err == nil {
			if membership.IsActive {
				return store.ErrDuplicateMembership
			}
			membership.IsActive = true
			membership.JoinedAt = now
			membership.LeftAt = nil
			membership.HourlyRate = rate
			return tx.Save(&membership).Error
		}

		membership = model.ProjectMembership{
			ID:             uuid.New(),
			OrganizationID: orgID,
			ProjectID:      projectID,
			UserID:         userID,
			HourlyRate:     rate,
			IsActive:       true,
			JoinedAt:       now,
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// RemoveMember soft-removes the active membership for the pair.
func (r *ProjectRepository) RemoveMember(ctx context.Context, orgID, projectID, userID uuid.UUID) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&model.ProjectMembership{}).
		Where("organization_id = ? AND project_id = ? AND user_id = ? AND is_active = ?",
			orgID, projectID, userID, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"left_at":    &now,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
