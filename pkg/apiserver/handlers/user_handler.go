package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/identity"
	"github.com/timeledger/timeledger/pkg/model"
	"github.com/timeledger/timeledger/pkg/policy"
)

type userStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.User, error)
	List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]model.User, int64, error)
	Save(ctx context.Context, user *model.User) error
}

type identityProvider interface {
	CreateUser(ctx context.Context, account identity.Account) (string, error)
	AssignRole(ctx context.Context, externalID, role string) error
	AddToGroup(ctx context.Context, externalID, group string) error
}

type UserHandler struct {
	users  userStore
	idp    identityProvider
	logger *zap.Logger
}

func NewUserHandler(users userStore, idp identityProvider, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, idp: idp, logger: logger}
}

type userCreateRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Role      string `json:"role" binding:"required"`
}

type userUpdateRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Role      *string `json:"role"`
	IsActive  *bool   `json:"is_active"`
}

type userResponse struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	Role               string `json:"role"`
	IsActive           bool   `json:"is_active"`
	ProvisioningStatus string `json:"provisioning_status"`
	CreatedAt          string `json:"created_at"`
}

func (h *UserHandler) List(c *gin.Context) {
	user := caller(c)
	if !decide(c, policy.Evaluate(user, policy.ActionUserList, policy.Resource{}), "user") {
		return
	}

	page, limit := parsePage(c)

	// Employees see only themselves.
	if !user.CanManage() {
		respondPage(c, []userResponse{mapUser(user)}, newPagination(1, limit, 1))
		return
	}

	users, total, err := h.users.List(c.Request.Context(), user.OrganizationID, limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		internalError(c)
		return
	}

	response := make([]userResponse, 0, len(users))
	for i := range users {
		response = append(response, mapUser(&users[i]))
	}
	respondPage(c, response, newPagination(page, limit, total))
}

// Create provisions the account at the identity provider first, then
// persists the local row. Role and group assignment are best-effort: a
// failure is recorded on the row for the reconciler instead of failing the
// request.
func (h *UserHandler) Create(c *gin.Context) {
	user := caller(c)
	if !decide(c, policy.Evaluate(user, policy.ActionUserWrite, policy.Resource{OwnerID: uuid.Nil}), "user") {
		return
	}

	var req userCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}

	role := model.Role(req.Role)
	if !model.IsValidRole(role) {
		validationError(c, "invalid role", nil)
		return
	}

	ctx := c.Request.Context()

	externalID, err := h.idp.CreateUser(ctx, identity.Account{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.logger.Error("identity provider account creation failed", zap.Error(err))
		respondError(c, http.StatusBadGateway, CodeInternalError, "identity provider unavailable", nil)
		return
	}

	provisioning := model.ProvisioningSynced
	if err := h.idp.AssignRole(ctx, externalID, string(role)); err != nil {
		h.logger.Warn("role assignment failed, deferring to reconciler",
			zap.String("external_id", externalID), zap.Error(err))
		provisioning = model.ProvisioningPendingRoleSync
	} else {
		group := ""
		if user.Organization != nil {
			group = user.Organization.Domain
		}
		if err := h.idp.AddToGroup(ctx, externalID, group); err != nil {
			h.logger.Warn("group assignment failed, deferring to reconciler",
				zap.String("external_id", externalID), zap.Error(err))
			provisioning = model.ProvisioningPendingGroupSync
		}
	}

	created := &model.User{
		ID:                 uuid.New(),
		OrganizationID:     user.OrganizationID,
		ExternalID:         externalID,
		Email:              req.Email,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Role:               role,
		IsActive:           true,
		ProvisioningStatus: provisioning,
	}

	if err := h.users.Create(ctx, created); err != nil {
		if err == gorm.ErrDuplicatedKey {
			respondError(c, http.StatusConflict, CodeDuplicateResource, "a user with this email already exists", nil)
			return
		}
		h.logger.Error("failed to create user", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusCreated, mapUser(created))
}

func (h *UserHandler) Get(c *gin.Context) {
	user := caller(c)

	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		validationError(c, "invalid user id", nil)
		return
	}

	target, err := h.users.GetByID(c.Request.Context(), user.OrganizationID, targetID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "user")
			return
		}
		h.logger.Error("failed to load user", zap.Error(err))
		internalError(c)
		return
	}

	if !decide(c, policy.Evaluate(user, policy.ActionUserRead, policy.Resource{OwnerID: target.ID}), "user") {
		return
	}

	respondData(c, http.StatusOK, mapUser(target))
}

func (h *UserHandler) Update(c *gin.Context) {
	user := caller(c)

	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		validationError(c, "invalid user id", nil)
		return
	}

	target, err := h.users.GetByID(c.Request.Context(), user.OrganizationID, targetID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "user")
			return
		}
		h.logger.Error("failed to load user", zap.Error(err))
		internalError(c)
		return
	}

	if !decide(c, policy.Evaluate(user, policy.ActionUserWrite, policy.Resource{OwnerID: target.ID}), "user") {
		return
	}

	var req userUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}

	// Role and activation changes have their own gate; name fields are
	// all a self-update may touch.
	if req.Role != nil || req.IsActive != nil || req.Email != nil {
		if !decide(c, policy.Evaluate(user, policy.ActionUserSetRole, policy.Resource{OwnerID: target.ID}), "user") {
			return
		}
	}

	if req.FirstName != nil {
		target.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		target.LastName = *req.LastName
	}
	if req.Email != nil {
		target.Email = *req.Email
	}
	if req.Role != nil {
		role := model.Role(*req.Role)
		if !model.IsValidRole(role) {
			validationError(c, "invalid role", nil)
			return
		}
		target.Role = role
	}
	if req.IsActive != nil {
		target.IsActive = *req.IsActive
	}

	if err := h.users.Save(c.Request.Context(), target); err != nil {
		if err == gorm.ErrDuplicatedKey {
			respondError(c, http.StatusConflict, CodeDuplicateResource, "a user with this email already exists", nil)
			return
		}
		h.logger.Error("failed to update user", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusOK, mapUser(target))
}

func mapUser(user *model.User) userResponse {
	return userResponse{
		ID:                 user.ID.String(),
		Email:              user.Email,
		FirstName:          user.FirstName,
		LastName:           user.LastName,
		Role:               string(user.Role),
		IsActive:           user.IsActive,
		ProvisioningStatus: string(user.ProvisioningStatus),
		CreatedAt:          user.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
