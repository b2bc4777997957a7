package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/model"
	"github.com/timeledger/timeledger/pkg/policy"
	"github.com/timeledger/timeledger/pkg/store"
)

type billingStore interface {
	CreateBatch(ctx context.Context, batch *model.BillingBatch) error
	GetBatch(ctx context.Context, orgID, id uuid.UUID) (*model.BillingBatch, error)
	ListBatches(ctx context.Context, orgID uuid.UUID, status *model.BillingBatchStatus, limit, offset int) ([]model.BillingBatch, int64, error)
	AddItem(ctx context.Context, orgID, batchID uuid.UUID, item *model.BillingItem) error
	RemoveItem(ctx context.Context, orgID, batchID, itemID uuid.UUID) error
	UpdateStatus(ctx context.Context, orgID, id uuid.UUID, target model.BillingBatchStatus) (*model.BillingBatch, error)
	DeleteBatch(ctx context.Context, orgID, id uuid.UUID) error
	Stats(ctx context.Context, orgID uuid.UUID) (*store.BillingStats, error)
}

type billingProjectStore interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.Project, error)
}

type BillingHandler struct {
	billing  billingStore
	projects billingProjectStore
	logger   *zap.Logger
}

func NewBillingHandler(billing billingStore, projects billingProjectStore, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{billing: billing, projects: projects, logger: logger}
}

type batchCreateRequest struct {
	Name          string `json:"name" binding:"required"`
	ProjectID     string `json:"project_id"`
	Type          string `json:"type"`
	Currency      string `json:"currency"`
	InvoiceNumber string `json:"invoice_number"`
	DueDate       string `json:"due_date"`
	Notes         string `json:"notes"`
}

type batchStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type itemCreateRequest struct {
	Description string  `json:"description" binding:"required"`
	Quantity    float64 `json:"quantity" binding:"required"`
	UnitRate    float64 `json:"unit_rate"`
	Billable    *bool   `json:"billable"`
	BillingDate string  `json:"billing_date"`
	Type        string  `json:"type"`
	TimeEntryID string  `json:"time_entry_id"`
	TimesheetID string  `json:"timesheet_id"`
}

type itemResponse struct {
	ID          string  `json:"id"`
	BatchID     string  `json:"batch_id"`
	TimeEntryID *string `json:"time_entry_id,omitempty"`
	TimesheetID *string `json:"timesheet_id,omitempty"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitRate    float64 `json:"unit_rate"`
	TotalAmount float64 `json:"total_amount"`
	Billable    bool    `json:"billable"`
	BillingDate string  `json:"billing_date"`
	Type        string  `json:"type"`
}

type batchResponse struct {
	ID            string         `json:"id"`
	ProjectID     *string        `json:"project_id,omitempty"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Status        string         `json:"status"`
	TotalAmount   float64        `json:"total_amount"`
	TotalHours    float64        `json:"total_hours"`
	Currency      string         `json:"currency"`
	InvoiceNumber string         `json:"invoice_number,omitempty"`
	InvoiceDate   *string        `json:"invoice_date,omitempty"`
	DueDate       *string        `json:"due_date,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	Items         []itemResponse `json:"items,omitempty"`
}

type billingStatsResponse struct {
	DraftBatches int64   `json:"draft_batches"`
	SentBatches  int64   `json:"sent_batches"`
	PaidBatches  int64   `json:"paid_batches"`
	BilledAmount float64 `json:"billed_amount"`
	BilledHours  float64 `json:"billed_hours"`
}

func (h *BillingHandler) ListBatches(c *gin.Context) {
	user := caller(c)
	if !decide(c, policy.Evaluate(user, policy.ActionBillingRead, policy.Resource{}), "billing_batch") {
		return
	}

	page, limit := parsePage(c)

	var status *model.BillingBatchStatus
	if value := c.Query("status"); value != "" {
		parsed := model.BillingBatchStatus(value)
		if !model.IsValidBatchStatus(parsed) {
			validationError(c, "invalid status", nil)
			return
		}
		status = &parsed
	}

	batches, total, err := h.billing.ListBatches(c.Request.Context(), user.OrganizationID, status, limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("failed to list billing batches", zap.Error(err))
		internalError(c)
		return
	}

	response := make([]batchResponse, 0, len(batches))
	for i := range batches {
		response = append(response, mapBatch(&batches[i]))
	}
	respondPage(c, response, newPagination(page, limit, total))
}

func (h *BillingHandler) CreateBatch(c *gin.Context) {
	user := caller(c)
	if !decide(c, policy.Evaluate(user, policy.ActionBillingWrite, policy.Resource{}), "billing_batch") {
		return
	}

	var req batchCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}

	ctx := c.Request.Context()

	var projectID *uuid.UUID
	if req.ProjectID != "" {
		parsed, err := uuid.Parse(req.ProjectID)
		if err != nil {
			validationError(c, "invalid project_id", nil)
			return
		}
		if _, err := h.projects.GetByID(ctx, user.OrganizationID, parsed); err != nil {
			if err == gorm.ErrRecordNotFound {
				notFound(c, "project")
				return
			}
			h.logger.Error("failed to load project", zap.Error(err))
			internalError(c)
			return
		}
		projectID = &parsed
	}

	batchType := model.BillingItemManual
	if req.Type != "" {
		batchType = model.BillingItemType(req.Type)
		switch batchType {
		case model.BillingItemManual, model.BillingItemTimeEntry, model.BillingItemTimesheet:
		default:
			validationError(c, "invalid type", nil)
			return
		}
	}

	dueDate, err := parseOptionalDate(req.DueDate)
	if err != nil {
		validationError(c, "invalid due_date, expected YYYY-MM-DD", nil)
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	batch := &model.BillingBatch{
		ID:             uuid.New(),
		OrganizationID: user.OrganizationID,
		ProjectID:      projectID,
		Name:           req.Name,
		Type:           batchType,
		Status:         model.BatchDraft,
		Currency:       currency,
		InvoiceNumber:  req.InvoiceNumber,
		DueDate:        dueDate,
		Notes:          req.Notes,
	}

	if err := h.billing.CreateBatch(ctx, batch); err != nil {
		h.logger.Error("failed to create billing batch", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusCreated, mapBatch(batch))
}

func (h *BillingHandler) GetBatch(c *gin.Context) {
	user := caller(c)
	batch, ok := h.loadBatch(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionBillingRead, policy.Resource{}), "billing_batch") {
		return
	}

	respondData(c, http.StatusOK, mapBatch(batch))
}

func (h *BillingHandler) DeleteBatch(c *gin.Context) {
	user := caller(c)
	batch, ok := h.loadBatch(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionBillingWrite, policy.Resource{}), "billing_batch") {
		return
	}

	if err := h.billing.DeleteBatch(c.Request.Context(), user.OrganizationID, batch.ID); err != nil {
		switch {
		case err == gorm.ErrRecordNotFound:
			notFound(c, "billing_batch")
		case errors.Is(err, store.ErrBatchNotDraft):
			stateConflict(c, "only draft batches can be deleted")
		default:
			h.logger.Error("failed to delete billing batch", zap.Error(err))
			internalError(c)
		}
		return
	}

	respondMessage(c, http.StatusOK, nil, "billing batch deleted")
}

func (h *BillingHandler) UpdateStatus(c *gin.Context) {
	user := caller(c)
	loaded, ok := h.loadBatch(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionBillingWrite, policy.Resource{}), "billing_batch") {
		return
	}
	id := loaded.ID

	var req batchStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}
	target := model.BillingBatchStatus(req.Status)
	if !model.IsValidBatchStatus(target) {
		validationError(c, "status must be draft, sent or paid", nil)
		return
	}

	batch, err := h.billing.UpdateStatus(c.Request.Context(), user.OrganizationID, id, target)
	if err != nil {
		switch {
		case err == gorm.ErrRecordNotFound:
			notFound(c, "billing_batch")
		case errors.Is(err, store.ErrInvalidBatchTransition):
			stateConflict(c, "batches move draft to sent to paid, never backwards")
		default:
			h.logger.Error("failed to update batch status", zap.Error(err))
			internalError(c)
		}
		return
	}

	respondData(c, http.StatusOK, mapBatch(batch))
}

func (h *BillingHandler) AddItem(c *gin.Context) {
	user := caller(c)
	batch, ok := h.loadBatch(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionBillingWrite, policy.Resource{}), "billing_batch") {
		return
	}
	batchID := batch.ID

	var req itemCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}
	if req.Quantity <= 0 {
		validationError(c, "quantity must be positive", nil)
		return
	}
	if req.UnitRate < 0 {
		validationError(c, "unit_rate must not be negative", nil)
		return
	}

	itemType := model.BillingItemManual
	if req.Type != "" {
		itemType = model.BillingItemType(req.Type)
		switch itemType {
		case model.BillingItemManual, model.BillingItemTimeEntry, model.BillingItemTimesheet:
		default:
			validationError(c, "invalid type", nil)
			return
		}
	}

	var timeEntryID *uuid.UUID
	if req.TimeEntryID != "" {
		parsed, err := uuid.Parse(req.TimeEntryID)
		if err != nil {
			validationError(c, "invalid time_entry_id", nil)
			return
		}
		timeEntryID = &parsed
	}
	var timesheetID *uuid.UUID
	if req.TimesheetID != "" {
		parsed, err := uuid.Parse(req.TimesheetID)
		if err != nil {
			validationError(c, "invalid timesheet_id", nil)
			return
		}
		timesheetID = &parsed
	}

	billingDate := time.Now().UTC()
	if req.BillingDate != "" {
		parsed, err := parseDate(req.BillingDate)
		if err != nil {
			validationError(c, "invalid billing_date, expected YYYY-MM-DD", nil)
			return
		}
		billingDate = parsed
	}

	billable := true
	if req.Billable != nil {
		billable = *req.Billable
	}

	item := &model.BillingItem{
		ID:          uuid.New(),
		TimeEntryID: timeEntryID,
		TimesheetID: timesheetID,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitRate:    req.UnitRate,
		TotalAmount: req.Quantity * req.UnitRate,
		Billable:    billable,
		BillingDate: billingDate,
		Type:        itemType,
	}

	if err := h.billing.AddItem(c.Request.Context(), user.OrganizationID, batchID, item); err != nil {
		switch {
		case err == gorm.ErrRecordNotFound:
			notFound(c, "billing_batch")
		case errors.Is(err, store.ErrBatchNotDraft):
			stateConflict(c, "items can only be added to draft batches")
		default:
			h.logger.Error("failed to add billing item", zap.Error(err))
			internalError(c)
		}
		return
	}

	respondData(c, http.StatusCreated, mapItem(item))
}

func (h *BillingHandler) RemoveItem(c *gin.Context) {
	user := caller(c)
	batch, ok := h.loadBatch(c, user)
	if !ok {
		return
	}
	if !decide(c, policy.Evaluate(user, policy.ActionBillingWrite, policy.Resource{}), "billing_batch") {
		return
	}

	itemID, err := uuid.Parse(c.Param("itemID"))
	if err != nil {
		validationError(c, "invalid item id", nil)
		return
	}

	if err := h.billing.RemoveItem(c.Request.Context(), user.OrganizationID, batch.ID, itemID); err != nil {
		switch {
		case err == gorm.ErrRecordNotFound:
			notFound(c, "billing_item")
		case errors.Is(err, store.ErrBatchNotDraft):
			stateConflict(c, "items can only be removed from draft batches")
		default:
			h.logger.Error("failed to remove billing item", zap.Error(err))
			internalError(c)
		}
		return
	}

	respondMessage(c, http.StatusOK, nil, "billing item removed")
}

func (h *BillingHandler) Stats(c *gin.Context) {
	user := caller(c)
	if !decide(c, policy.Evaluate(user, policy.ActionBillingRead, policy.Resource{}), "billing_batch") {
		return
	}

	stats, err := h.billing.Stats(c.Request.Context(), user.OrganizationID)
	if err != nil {
		h.logger.Error("failed to compute billing stats", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusOK, billingStatsResponse{
		DraftBatches: stats.DraftBatches,
		SentBatches:  stats.SentBatches,
		PaidBatches:  stats.PaidBatches,
		BilledAmount: stats.BilledAmount,
		BilledHours:  stats.BilledHours,
	})
}

// loadBatch resolves the id route param within the caller's
// organization. It runs ahead of the role check so batches from other
// tenants come back as not-found, never as denied.
func (h *BillingHandler) loadBatch(c *gin.Context, user *model.User) (*model.BillingBatch, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		validationError(c, "invalid batch id", nil)
		return nil, false
	}

	batch, err := h.billing.GetBatch(c.Request.Context(), user.OrganizationID, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "billing_batch")
			return nil, false
		}
		h.logger.Error("failed to load billing batch", zap.Error(err))
		internalError(c)
		return nil, false
	}
	return batch, true
}

func mapBatch(batch *model.BillingBatch) batchResponse {
	response := batchResponse{
		ID:            batch.ID.String(),
		Name:          batch.Name,
		Type:          string(batch.Type),
		Status:        string(batch.Status),
		TotalAmount:   batch.TotalAmount,
		TotalHours:    batch.TotalHours,
		Currency:      batch.Currency,
		InvoiceNumber: batch.InvoiceNumber,
		InvoiceDate:   formatTime(batch.InvoiceDate),
		DueDate:       formatDatePtr(batch.DueDate),
		Notes:         batch.Notes,
	}
	if batch.ProjectID != nil {
		projectID := batch.ProjectID.String()
		response.ProjectID = &projectID
	}
	for i := range batch.Items {
		response.Items = append(response.Items, mapItem(&batch.Items[i]))
	}
	return response
}

func mapItem(item *model.BillingItem) itemResponse {
	response := itemResponse{
		ID:          item.ID.String(),
		BatchID:     item.BatchID.String(),
		Description: item.Description,
		Quantity:    item.Quantity,
		UnitRate:    item.UnitRate,
		TotalAmount: item.TotalAmount,
		Billable:    item.Billable,
		BillingDate: formatDate(item.BillingDate),
		Type:        string(item.Type),
	}
	if item.TimeEntryID != nil {
		id := item.TimeEntryID.String()
		response.TimeEntryID = &id
	}
	if item.TimesheetID != nil {
		id := item.TimesheetID.String()
		response.TimesheetID = &id
	}
	return response
}
