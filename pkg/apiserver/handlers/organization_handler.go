package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/model"
	"github.com/timeledger/timeledger/pkg/policy"
)

type organizationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Organization, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) (*model.Organization, error)
}

type OrganizationHandler struct {
	orgs   organizationStore
	logger *zap.Logger
}

func NewOrganizationHandler(orgs organizationStore, logger *zap.Logger) *OrganizationHandler {
	return &OrganizationHandler{orgs: orgs, logger: logger}
}

type organizationUpdateRequest struct {
	Name     *string                `json:"name"`
	Domain   *string                `json:"domain"`
	Plan     *string                `json:"plan"`
	Settings map[string]interface{} `json:"settings"`
}

type organizationResponse struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Domain   string      `json:"domain"`
	Plan     string      `json:"plan"`
	Settings model.JSONB `json:"settings"`
	IsActive bool        `json:"is_active"`
}

func (h *OrganizationHandler) Get(c *gin.Context) {
	user := caller(c)
	if !decide(c, policy.Evaluate(user, policy.ActionOrgRead, policy.Resource{}), "organization") {
		return
	}

	org, err := h.orgs.GetByID(c.Request.Context(), user.OrganizationID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "organization")
			return
		}
		h.logger.Error("failed to load organization", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusOK, mapOrganization(org))
}

func (h *OrganizationHandler) Update(c *gin.Context) {
	user := caller(c)
	if !decide(c, policy.Evaluate(user, policy.ActionOrgWrite, policy.Resource{}), "organization") {
		return
	}

	var req organizationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Domain != nil {
		updates["domain"] = *req.Domain
	}
	if req.Plan != nil {
		plan := model.Plan(*req.Plan)
		if plan != model.PlanStarter && plan != model.PlanTeam && plan != model.PlanEnterprise {
			validationError(c, "invalid plan", nil)
			return
		}
		updates["plan"] = plan
	}
	if req.Settings != nil {
		updates["settings"] = model.JSONB(req.Settings)
	}
	if len(updates) == 0 {
		validationError(c, "no fields to update", nil)
		return
	}

	org, err := h.orgs.Update(c.Request.Context(), user.OrganizationID, updates)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "organization")
			return
		}
		h.logger.Error("failed to update organization", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusOK, mapOrganization(org))
}

func mapOrganization(org *model.Organization) organizationResponse {
	return organizationResponse{
		ID:       org.ID.String(),
		Name:     org.Name,
		Domain:   org.Domain,
		Plan:     string(org.Plan),
		Settings: org.Settings,
		IsActive: org.IsActive,
	}
}
