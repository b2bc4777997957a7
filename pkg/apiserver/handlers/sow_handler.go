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

type sowStore interface {
	Create(ctx context.Context, sow *model.SOW) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.SOW, error)
	List(ctx context.Context, orgID uuid.UUID, customerID *uuid.UUID, limit, offset int) ([]model.SOW, int64, error)
	Save(ctx context.Context, sow *model.SOW) error
	Cancel(ctx context.Context, orgID, id uuid.UUID) error
}

type sowCustomerStore interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.Customer, error)
}

type SOWHandler struct {
	sows      sowStore
	customers sowCustomerStore
	logger    *zap.Logger
}

func NewSOWHandler(sows sowStore, customers sowCustomerStore, logger *zap.Logger) *SOWHandler {
	return &SOWHandler{sows: sows, customers: customers, logger: logger}
}

type sowCreateRequest struct {
	CustomerID   string   `json:"customer_id" binding:"required"`
	Title        string   `json:"title" binding:"required"`
	Description  string   `json:"description"`
	Scope        string   `json:"scope"`
	Deliverables []string `json:"deliverables"`
	BillingTerms string   `json:"billing_terms"`
	HourlyRate   float64  `json:"hourly_rate"`
	TotalBudget  float64  `json:"total_budget"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
}

type sowUpdateRequest struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	Scope        *string  `json:"scope"`
	Deliverables []string `json:"deliverables"`
	BillingTerms *string  `json:"billing_terms"`
	HourlyRate   *float64 `json:"hourly_rate"`
	TotalBudget  *float64 `json:"total_budget"`
	Status       *string  `json:"status"`
}

type sowResponse struct {
	ID           string   `json:"id"`
	CustomerID   string   `json:"customer_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Scope        string   `json:"scope"`
	Deliverables []string `json:"deliverables"`
	BillingTerms string   `json:"billing_terms"`
	HourlyRate   float64  `json:"hourly_rate"`
	TotalBudget  float64  `json:"total_budget"`
	StartDate    *string  `json:"start_date,omitempty"`
	EndDate      *string  `json:"end_date,omitempty"`
	Status       string   `json:"status"`
}

func (h *SOWHandler) List(c *gin.Context) {
	user := caller(c)
	if !decide(c, policy.Evaluate(user, policy.ActionSOWRead, policy.Resource{}), "sow") {
		return
	}

	page, limit := parsePage(c)

	var customerID *uuid.UUID
	if value := c.Query("customer_id"); value != "" {
		parsed, err := uuid.Parse(value)
		if err != nil {
			validationError(c, "invalid customer_id", nil)
			return
		}
		customerID = &parsed
	}

	sows, total, err := h.sows.List(c.Request.Context(), user.OrganizationID, customerID, limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("failed to list sows", zap.Error(err))
		internalError(c)
		return
	}

	response := make([]sowResponse, 0, len(sows))
	for i := range sows {
		response = append(response, mapSOW(&sows[i]))
	}
	respondPage(c, response, newPagination(page, limit, total))
}

func (h *SOWHandler) Create(c *gin.Context) {
	user := caller(c)
	if !decide(c, policy.Evaluate(user, policy.ActionSOWWrite, policy.Resource{}), "sow") {
		return
	}

	var req sowCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
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

	sow := &model.SOW{
		ID:             uuid.New(),
		OrganizationID: user.OrganizationID,
		CustomerID:     customerID,
		Title:          req.Title,
		Description:    req.Description,
		Scope:          req.Scope,
		Deliverables:   model.StringList(req.Deliverables),
		BillingTerms:   req.BillingTerms,
		HourlyRate:     req.HourlyRate,
		TotalBudget:    req.TotalBudget,
		StartDate:      startDate,
		EndDate:        endDate,
		Status:         model.SOWDraft,
	}

	if err := h.sows.Create(ctx, sow); err != nil {
		h.logger.Error("failed to create sow", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusCreated, mapSOW(sow))
}

// loadSOW resolves the id route param within the caller's organization.
// The lookup runs before any role check so a row from another tenant is
// reported as not-found, never as denied.
func (h *SOWHandler) loadSOW(c *gin.Context, user *model.User) (*model.SOW, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		validationError(c, "invalid sow id", nil)
		return nil, false
	}

	sow, err := h.sows.GetByID(c.Request.Context(), user.OrganizationID, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "sow")
			return nil, false
		}
		h.logger.Error("failed to load sow", zap.Error(err))
		internalError(c)
		return nil, false
	}
	return sow, true
}

func (h *SOWHandler) Get(c *gin.Context) {
	user := caller(c)
	sow, ok := h.loadSOW(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionSOWRead, policy.Resource{}), "sow") {
		return
	}

	respondData(c, http.StatusOK, mapSOW(sow))
}

func (h *SOWHandler) Update(c *gin.Context) {
	user := caller(c)
	sow, ok := h.loadSOW(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionSOWWrite, policy.Resource{}), "sow") {
		return
	}

	var req sowUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}

	if req.Title != nil {
		sow.Title = *req.Title
	}
	if req.Description != nil {
		sow.Description = *req.Description
	}
	if req.Scope != nil {
		sow.Scope = *req.Scope
	}
	if req.Deliverables != nil {
		sow.Deliverables = model.StringList(req.Deliverables)
	}
	if req.BillingTerms != nil {
		sow.BillingTerms = *req.BillingTerms
	}
	if req.HourlyRate != nil {
		sow.HourlyRate = *req.HourlyRate
	}
	if req.TotalBudget != nil {
		sow.TotalBudget = *req.TotalBudget
	}
	if req.Status != nil {
		status := model.SOWStatus(*req.Status)
		if !model.IsValidSOWStatus(status) {
			validationError(c, "invalid status", nil)
			return
		}
		sow.Status = status
	}

	if err := h.sows.Save(c.Request.Context(), sow); err != nil {
		h.logger.Error("failed to update sow", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusOK, mapSOW(sow))
}

// Delete cancels the SOW. Cancellation is refused while the SOW still has
// projects in planning or active status.
func (h *SOWHandler) Delete(c *gin.Context) {
	user := caller(c)
	sow, ok := h.loadSOW(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionSOWWrite, policy.Resource{}), "sow") {
		return
	}

	if err := h.sows.Cancel(c.Request.Context(), user.OrganizationID, sow.ID); err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "sow")
			return
		}
		if errors.Is(err, store.ErrSOWHasActiveProjects) {
			stateConflict(c, "sow has projects in planning or active status")
			return
		}
		h.logger.Error("failed to cancel sow", zap.Error(err))
		internalError(c)
		return
	}

	respondMessage(c, http.StatusOK, nil, "sow cancelled")
}

func mapSOW(sow *model.SOW) sowResponse {
	return sowResponse{
		ID:           sow.ID.String(),
		CustomerID:   sow.CustomerID.String(),
		Title:        sow.Title,
		Description:  sow.Description,
		Scope:        sow.Scope,
		Deliverables: []string(sow.Deliverables),
		BillingTerms: sow.BillingTerms,
		HourlyRate:   sow.HourlyRate,
		TotalBudget:  sow.TotalBudget,
		StartDate:    formatDatePtr(sow.StartDate),
		EndDate:      formatDatePtr(sow.EndDate),
		Status:       string(sow.Status),
	}
}
