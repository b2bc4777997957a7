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

type customerStore interface {
	Create(ctx context.Context, customer *model.Customer) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.Customer, error)
	List(ctx context.Context, orgID uuid.UUID, activeOnly bool, limit, offset int) ([]model.Customer, int64, error)
	Save(ctx context.Context, customer *model.Customer) error
	Deactivate(ctx context.Context, orgID, id uuid.UUID) error
}

type CustomerHandler struct {
	customers customerStore
	logger    *zap.Logger
}

func NewCustomerHandler(customers customerStore, logger *zap.Logger) *CustomerHandler {
	return &CustomerHandler{customers: customers, logger: logger}
}

type addressPayload struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type customerCreateRequest struct {
	Name            string                 `json:"name" binding:"required"`
	Email           string                 `json:"email"`
	Phone           string                 `json:"phone"`
	Address         addressPayload         `json:"address"`
	BillingSettings map[string]interface{} `json:"billing_settings"`
}

type customerUpdateRequest struct {
	Name            *string                `json:"name"`
	Email           *string                `json:"email"`
	Phone           *string                `json:"phone"`
	Address         *addressPayload        `json:"address"`
	BillingSettings map[string]interface{} `json:"billing_settings"`
	IsActive        *bool                  `json:"is_active"`
}

type customerResponse struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Email           string         `json:"email"`
	Phone           string         `json:"phone"`
	Address         addressPayload `json:"address"`
	BillingSettings model.JSONB    `json:"billing_settings"`
	IsActive        bool           `json:"is_active"`
}

func (h *CustomerHandler) List(c *gin.Context) {
	user := caller(c)
	if !decide(c, policy.Evaluate(user, policy.ActionCustomerRead, policy.Resource{}), "customer") {
		return
	}

	page, limit := parsePage(c)
	activeOnly := c.Query("active") == "true"

	customers, total, err := h.customers.List(c.Request.Context(), user.OrganizationID, activeOnly, limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("failed to list customers", zap.Error(err))
		internalError(c)
		return
	}

	response := make([]customerResponse, 0, len(customers))
	for i := range customers {
		response = append(response, mapCustomer(&customers[i]))
	}
	respondPage(c, response, newPagination(page, limit, total))
}

func (h *CustomerHandler) Create(c *gin.Context) {
	user := caller(c)
	if !decide(c, policy.Evaluate(user, policy.ActionCustomerWrite, policy.Resource{}), "customer") {
		return
	}

	var req customerCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}

	customer := &model.Customer{
		ID:              uuid.New(),
		OrganizationID:  user.OrganizationID,
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		AddressLine1:    req.Address.Line1,
		AddressLine2:    req.Address.Line2,
		City:            req.Address.City,
		State:           req.Address.State,
		PostalCode:      req.Address.PostalCode,
		Country:         req.Address.Country,
		BillingSettings: model.JSONB(req.BillingSettings),
		IsActive:        true,
	}

	if err := h.customers.Create(c.Request.Context(), customer); err != nil {
		h.logger.Error("failed to create customer", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusCreated, mapCustomer(customer))
}

// loadCustomer resolves the id route param against the caller's
// organization. Rows from other tenants come back as not-found, so the
// lookup must run before any role check can turn them into a 403.
func (h *CustomerHandler) loadCustomer(c *gin.Context, user *model.User) (*model.Customer, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		validationError(c, "invalid customer id", nil)
		return nil, false
	}

	customer, err := h.customers.GetByID(c.Request.Context(), user.OrganizationID, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "customer")
			return nil, false
		}
		h.logger.Error("failed to load customer", zap.Error(err))
		internalError(c)
		return nil, false
	}
	return customer, true
}

func (h *CustomerHandler) Get(c *gin.Context) {
	user := caller(c)
	customer, ok := h.loadCustomer(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionCustomerRead, policy.Resource{}), "customer") {
		return
	}

	respondData(c, http.StatusOK, mapCustomer(customer))
}

func (h *CustomerHandler) Update(c *gin.Context) {
	user := caller(c)
	customer, ok := h.loadCustomer(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionCustomerWrite, policy.Resource{}), "customer") {
		return
	}

	var req customerUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}

	if req.Name != nil {
		customer.Name = *req.Name
	}
	if req.Email != nil {
		customer.Email = *req.Email
	}
	if req.Phone != nil {
		customer.Phone = *req.Phone
	}
	if req.Address != nil {
		customer.AddressLine1 = req.Address.Line1
		customer.AddressLine2 = req.Address.Line2
		customer.City = req.Address.City
		customer.State = req.Address.State
		customer.PostalCode = req.Address.PostalCode
		customer.Country = req.Address.Country
	}
	if req.BillingSettings != nil {
		customer.BillingSettings = model.JSONB(req.BillingSettings)
	}
	if req.IsActive != nil {
		customer.IsActive = *req.IsActive
	}

	if err := h.customers.Save(c.Request.Context(), customer); err != nil {
		h.logger.Error("failed to update customer", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusOK, mapCustomer(customer))
}

// Delete deactivates; customer rows are never hard-deleted.
func (h *CustomerHandler) Delete(c *gin.Context) {
	user := caller(c)
	customer, ok := h.loadCustomer(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionCustomerWrite, policy.Resource{}), "customer") {
		return
	}

	if err := h.customers.Deactivate(c.Request.Context(), user.OrganizationID, customer.ID); err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "customer")
			return
		}
		h.logger.Error("failed to deactivate customer", zap.Error(err))
		internalError(c)
		return
	}

	respondMessage(c, http.StatusOK, nil, "customer deactivated")
}

func mapCustomer(customer *model.Customer) customerResponse {
	return customerResponse{
		ID:    customer.ID.String(),
		Name:  customer.Name,
		Email: customer.Email,
		Phone: customer.Phone,
		Address: addressPayload{
			Line1:      customer.AddressLine1,
			Line2:      customer.AddressLine2,
			City:       customer.City,
			State:      customer.State,
			PostalCode: customer.PostalCode,
			Country:    customer.Country,
		},
		BillingSettings: customer.BillingSettings,
		IsActive:        customer.IsActive,
	}
}
