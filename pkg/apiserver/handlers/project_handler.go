package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/model"
	"github.com/timeledger/timeledger/pkg/policy"
	"github.com/timeledger/timeledger/pkg/store"
)

type projectStore interface {
	Create(ctx context.Context, project *model.Project) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.Project, error)
	List(ctx context.Context, orgID uuid.UUID, filter store.ProjectFilter, limit, offset int) ([]model.Project, int64, error)
	Save(ctx context.Context, project *model.Project) error
	ActiveMembership(ctx context.Context, orgID, projectID, userID uuid.UUID) (*model.ProjectMembership, error)
	ListMembers(ctx context.Context, orgID, projectID uuid.UUID) ([]model.ProjectMembership, error)
	AddMember(ctx context.Context, orgID, projectID, userID uuid.UUID, rate *float64) (*model.ProjectMembership, error)
	RemoveMember(ctx context.Context, orgID, projectID, userID uuid.UUID) error
}

type projectUserStore interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.User, error)
}

type projectCustomerStore interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.Customer, error)
}

type projectSOWStore interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.SOW, error)
}

type ProjectHandler struct {
	projects  projectStore
	users     projectUserStore
	customers projectCustomerStore
	sows      projectSOWStore
	logger    *zap.Logger
}

func NewProjectHandler(projects projectStore, users projectUserStore, customers projectCustomerStore, sows projectSOWStore, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, users: users, customers: customers, sows: sows, logger: logger}
}

type projectCreateRequest struct {
	CustomerID   string  `json:"customer_id" binding:"required"`
	SOWID        string  `json:"sow_id"`
	Name         string  `json:"name" binding:"required"`
	Description  string  `json:"description"`
	BillingModel string  `json:"billing_model" binding:"required"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	HourlyRate   float64 `json:"hourly_rate"`
	BudgetHours  float64 `json:"budget_hours"`
}

type projectUpdateRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Status      *string  `json:"status"`
	IsActive    *bool    `json:"is_active"`
	HourlyRate  *float64 `json:"hourly_rate"`
	BudgetHours *float64 `json:"budget_hours"`
}

type projectResponse struct {
	ID           string  `json:"id"`
	CustomerID   string  `json:"customer_id"`
	SOWID        *string `json:"sow_id,omitempty"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	BillingModel string  `json:"billing_model"`
	Status       string  `json:"status"`
	IsActive     bool    `json:"is_active"`
	StartDate    *string `json:"start_date,omitempty"`
	EndDate      *string `json:"end_date,omitempty"`
	HourlyRate   float64 `json:"hourly_rate"`
	BudgetHours  float64 `json:"budget_hours"`
}

type membershipRequest struct {
	UserID     string   `json:"user_id" binding:"required"`
	HourlyRate *float64 `json:"hourly_rate"`
}

type membershipResponse struct {
	ID         string   `json:"id"`
	ProjectID  string   `json:"project_id"`
	UserID     string   `json:"user_id"`
	HourlyRate *float64 `json:"hourly_rate,omitempty"`
	IsActive   bool     `json:"is_active"`
	JoinedAt   string   `json:"joined_at"`
	LeftAt     *string  `json:"left_at,omitempty"`
}

func (h *ProjectHandler) List(c *gin.Context) {
	user := caller(c)

	page, limit := parsePage(c)

	filter := store.ProjectFilter{}
	if value := c.Query("customer_id"); value != "" {
		parsed, err := uuid.Parse(value)
		if err != nil {
			validationError(c, "invalid customer_id", nil)
			return
		}
		filter.CustomerID = &parsed
	}
	if value := c.Query("status"); value != "" {
		status := model.ProjectStatus(value)
		if !model.IsValidProjectStatus(status) {
			validationError(c, "invalid status", nil)
			return
		}
		filter.Status = &status
	}

	// Employees only ever see active projects they actively belong to.
	if !user.CanManage() {
		if user.Role != model.RoleEmployee {
			denied(c)
			return
		}
		filter.VisibleToUserID = &user.ID
	}

	projects, total, err := h.projects.List(c.Request.Context(), user.OrganizationID, filter, limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("failed to list projects", zap.Error(err))
		internalError(c)
		return
	}

	response := make([]projectResponse, 0, len(projects))
	for i := range projects {
		response = append(response, mapProject(&projects[i]))
	}
	respondPage(c, response, newPagination(page, limit, total))
}

func (h *ProjectHandler) Create(c *gin.Context) {
	user := caller(c)
	if !decide(c, policy.Evaluate(user, policy.ActionProjectWrite, policy.Resource{}), "project") {
		return
	}

	var req projectCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}

	billingModel := model.BillingModel(req.BillingModel)
	if !model.IsValidBillingModel(billingModel) {
		validationError(c, "billing_model must be timesheet or task_based", nil)
		return
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		validationError(c, "invalid customer_id", nil)
		return
	}

	ctx := c.Request.Context()

	if _, err := h.customers.GetByID(ctx, user.OrganizationID, customerID); err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "customer")
			return
		}
		h.logger.Error("failed to load customer", zap.Error(err))
		internalError(c)
		return
	}

	var sowID *uuid.UUID
	if req.SOWID != "" {
		parsed, err := uuid.Parse(req.SOWID)
		if err != nil {
			validationError(c, "invalid sow_id", nil)
			return
		}
		if _, err := h.sows.GetByID(ctx, user.OrganizationID, parsed); err != nil {
			if err == gorm.ErrRecordNotFound {
				notFound(c, "sow")
				return
			}
			h.logger.Error("failed to load sow", zap.Error(err))
			internalError(c)
			return
		}
		sowID = &parsed
	}

	startDate, err := parseOptionalDate(req.StartDate)
	if err != nil {
		validationError(c, "invalid start_date, expected YYYY-MM-DD", nil)
		return
	}
	endDate, err := parseOptionalDate(req.EndDate)
	if err != nil {
		validationError(c, "invalid end_date, expected YYYY-MM-DD", nil)
		return
	}

	project := &model.Project{
		ID:             uuid.New(),
		OrganizationID: user.OrganizationID,
		CustomerID:     customerID,
		SOWID:          sowID,
		Name:           req.Name,
		Description:    req.Description,
		BillingModel:   billingModel,
		Status:         model.ProjectPlanning,
		IsActive:       true,
		StartDate:      startDate,
		EndDate:        endDate,
		HourlyRate:     req.HourlyRate,
		BudgetHours:    req.BudgetHours,
	}

	if err := h.projects.Create(ctx, project); err != nil {
		h.logger.Error("failed to create project", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusCreated, mapProject(project))
}

func (h *ProjectHandler) Get(c *gin.Context) {
	user := caller(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		validationError(c, "invalid project id", nil)
		return
	}

	project, res, err := h.loadProjectForCaller(c.Request.Context(), user, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "project")
			return
		}
		h.logger.Error("failed to load project", zap.Error(err))
		internalError(c)
		return
	}

	if !decide(c, policy.Evaluate(user, policy.ActionProjectRead, res), "project") {
		return
	}

	respondData(c, http.StatusOK, mapProject(project))
}

// loadProject resolves the id route param within the caller's
// organization. Callers must run this before any role check so rows
// from other tenants surface as not-found, never as denied.
func (h *ProjectHandler) loadProject(c *gin.Context, user *model.User) (*model.Project, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		validationError(c, "invalid project id", nil)
		return nil, false
	}

	project, err := h.projects.GetByID(c.Request.Context(), user.OrganizationID, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "project")
			return nil, false
		}
		h.logger.Error("failed to load project", zap.Error(err))
		internalError(c)
		return nil, false
	}
	return project, true
}

func (h *ProjectHandler) Update(c *gin.Context) {
	user := caller(c)
	project, ok := h.loadProject(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionProjectWrite, policy.Resource{}), "project") {
		return
	}

	var req projectUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.Status != nil {
		status := model.ProjectStatus(*req.Status)
		if !model.IsValidProjectStatus(status) {
			validationError(c, "invalid status", nil)
			return
		}
		project.Status = status
	}
	if req.IsActive != nil {
		project.IsActive = *req.IsActive
	}
	if req.HourlyRate != nil {
		project.HourlyRate = *req.HourlyRate
	}
	if req.BudgetHours != nil {
		project.BudgetHours = *req.BudgetHours
	}

	if err := h.projects.Save(c.Request.Context(), project); err != nil {
		h.logger.Error("failed to update project", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusOK, mapProject(project))
}

func (h *ProjectHandler) ListMembers(c *gin.Context) {
	user := caller(c)
	project, ok := h.loadProject(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionMembershipRead, policy.Resource{}), "project") {
		return
	}

	memberships, err := h.projects.ListMembers(c.Request.Context(), user.OrganizationID, project.ID)
	if err != nil {
		h.logger.Error("failed to list members", zap.Error(err))
		internalError(c)
		return
	}

	response := make([]membershipResponse, 0, len(memberships))
	for i := range memberships {
		response = append(response, mapMembership(&memberships[i]))
	}
	respondData(c, http.StatusOK, response)
}

func (h *ProjectHandler) AddMember(c *gin.Context) {
	user := caller(c)
	project, ok := h.loadProject(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionMembershipWrite, policy.Resource{}), "project") {
		return
	}
	projectID := project.ID

	var req membershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		validationError(c, "invalid user_id", nil)
		return
	}

	ctx := c.Request.Context()

	if _, err := h.users.GetByID(ctx, user.OrganizationID, userID); err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "user")
			return
		}
		h.logger.Error("failed to load user", zap.Error(err))
		internalError(c)
		return
	}

	membership, err := h.projects.AddMember(ctx, user.OrganizationID, projectID, userID, req.HourlyRate)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateMembership) {
			respondError(c, http.StatusConflict, CodeDuplicateResource, "user already has an active membership on this project", nil)
			return
		}
		h.logger.Error("failed to add member", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusCreated, mapMembership(membership))
}

func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	user := caller(c)
	project, ok := h.loadProject(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionMembershipWrite, policy.Resource{}), "project") {
		return
	}

	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		validationError(c, "invalid user id", nil)
		return
	}

	if err := h.projects.RemoveMember(c.Request.Context(), user.OrganizationID, project.ID, userID); err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "membership")
			return
		}
		h.logger.Error("failed to remove member", zap.Error(err))
		internalError(c)
		return
	}

	respondMessage(c, http.StatusOK, nil, "membership removed")
}

// loadProjectForCaller loads the project and assembles the policy facts for
// it from the caller's perspective.
func (h *ProjectHandler) loadProjectForCaller(ctx context.Context, user *model.User, projectID uuid.UUID) (*model.Project, policy.Resource, error) {
	project, err := h.projects.GetByID(ctx, user.OrganizationID, projectID)
	if err != nil {
		return nil, policy.Resource{}, err
	}

	res := policy.Resource{ProjectActive: project.IsActive}
	if user.Role == model.RoleEmployee {
		_, err := h.projects.ActiveMembership(ctx, user.OrganizationID, project.ID, user.ID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return nil, policy.Resource{}, err
		}
		res.ActiveMember = err == nil
	}
	return project, res, nil
}

func mapProject(project *model.Project) projectResponse {
	response := projectResponse{
		ID:           project.ID.String(),
		CustomerID:   project.CustomerID.String(),
		Name:         project.Name,
		Description:  project.Description,
		BillingModel: string(project.BillingModel),
		Status:       string(project.Status),
		IsActive:     project.IsActive,
		StartDate:    formatDatePtr(project.StartDate),
		EndDate:      formatDatePtr(project.EndDate),
		HourlyRate:   project.HourlyRate,
		BudgetHours:  project.BudgetHours,
	}
	if project.SOWID != nil {
		sowID := project.SOWID.String()
		response.SOWID = &sowID
	}
	return response
}

func mapMembership(membership *model.ProjectMembership) membershipResponse {
	return membershipResponse{
		ID:         membership.ID.String(),
		ProjectID:  membership.ProjectID.String(),
		UserID:     membership.UserID.String(),
		HourlyRate: membership.HourlyRate,
		IsActive:   membership.IsActive,
		JoinedAt:   formatDate(membership.JoinedAt),
		LeftAt:     formatDatePtr(membership.LeftAt),
	}
}
