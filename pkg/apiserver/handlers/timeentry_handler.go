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

type timeEntryStore interface {
	Create(ctx context.Context, entry *model.TimeEntry) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.TimeEntry, error)
	List(ctx context.Context, orgID uuid.UUID, filter store.TimeEntryFilter, limit, offset int) ([]model.TimeEntry, int64, error)
	Save(ctx context.Context, entry *model.TimeEntry) error
	Review(ctx context.Context, orgID, id uuid.UUID, status model.TimeEntryStatus, reviewerID uuid.UUID, reviewedAt time.Time) error
	Delete(ctx context.Context, orgID, id uuid.UUID) error
}

type timeEntryProjectStore interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.Project, error)
	ActiveMembership(ctx context.Context, orgID, projectID, userID uuid.UUID) (*model.ProjectMembership, error)
}

type TimeEntryHandler struct {
	entries  timeEntryStore
	projects timeEntryProjectStore
	logger   *zap.Logger
}

func NewTimeEntryHandler(entries timeEntryStore, projects timeEntryProjectStore, logger *zap.Logger) *TimeEntryHandler {
	return &TimeEntryHandler{entries: entries, projects: projects, logger: logger}
}

type timeEntryCreateRequest struct {
	ProjectID   string   `json:"project_id" binding:"required"`
	UserID      string   `json:"user_id"`
	EntryDate   string   `json:"entry_date" binding:"required"`
	Hours       float64  `json:"hours" binding:"required"`
	Description string   `json:"description"`
	Billable    *bool    `json:"billable"`
	HourlyRate  *float64 `json:"hourly_rate"`
	Notes       string   `json:"notes"`
}

type timeEntryUpdateRequest struct {
	EntryDate   *string  `json:"entry_date"`
	Hours       *float64 `json:"hours"`
	Description *string  `json:"description"`
	Billable    *bool    `json:"billable"`
	HourlyRate  *float64 `json:"hourly_rate"`
	Notes       *string  `json:"notes"`
}

type timeEntryResponse struct {
	ID           string  `json:"id"`
	ProjectID    string  `json:"project_id"`
	UserID       string  `json:"user_id"`
	EntryDate    string  `json:"entry_date"`
	Hours        float64 `json:"hours"`
	Description  string  `json:"description"`
	Billable     bool    `json:"billable"`
	HourlyRate   float64 `json:"hourly_rate"`
	Notes        string  `json:"notes,omitempty"`
	Status       string  `json:"status"`
	SubmittedAt  *string `json:"submitted_at,omitempty"`
	ReviewedAt   *string `json:"reviewed_at,omitempty"`
	ReviewedByID *string `json:"reviewed_by_id,omitempty"`
}

func (h *TimeEntryHandler) List(c *gin.Context) {
	user := caller(c)

	page, limit := parsePage(c)

	filter := store.TimeEntryFilter{}
	if value := c.Query("project_id"); value != "" {
		parsed, err := uuid.Parse(value)
		if err != nil {
			validationError(c, "invalid project_id", nil)
			return
		}
		filter.ProjectID = &parsed
	}
	if value := c.Query("status"); value != "" {
		status := model.TimeEntryStatus(value)
		if !model.IsValidTimeEntryStatus(status) {
			validationError(c, "invalid status", nil)
			return
		}
		filter.Status = &status
	}
	if value := c.Query("user_id"); value != "" {
		parsed, err := uuid.Parse(value)
		if err != nil {
			validationError(c, "invalid user_id", nil)
			return
		}
		filter.UserID = &parsed
	}

	// Employees can only list their own entries no matter what filter they ask
	// for; a filter naming someone else yields an empty page, not a leak.
	if !user.CanManage() {
		if user.Role != model.RoleEmployee {
			denied(c)
			return
		}
		filter.UserID = &user.ID
	}

	entries, total, err := h.entries.List(c.Request.Context(), user.OrganizationID, filter, limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("failed to list time entries", zap.Error(err))
		internalError(c)
		return
	}

	response := make([]timeEntryResponse, 0, len(entries))
	for i := range entries {
		response = append(response, mapTimeEntry(&entries[i]))
	}
	respondPage(c, response, newPagination(page, limit, total))
}

func (h *TimeEntryHandler) Create(c *gin.Context) {
	user := caller(c)

	var req timeEntryCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		validationError(c, "invalid project_id", nil)
		return
	}

	targetUserID := user.ID
	if req.UserID != "" {
		parsed, err := uuid.Parse(req.UserID)
		if err != nil {
			validationError(c, "invalid user_id", nil)
			return
		}
		targetUserID = parsed
	}

	entryDate, err := parseDate(req.EntryDate)
	if err != nil {
		validationError(c, "invalid entry_date, expected YYYY-MM-DD", nil)
		return
	}
	if req.Hours <= 0 || req.Hours > 24 {
		validationError(c, "hours must be between 0 and 24", nil)
		return
	}

	ctx := c.Request.Context()

	project, err := h.projects.GetByID(ctx, user.OrganizationID, projectID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "project")
			return
		}
		h.logger.Error("failed to load project", zap.Error(err))
		internalError(c)
		return
	}
	if project.BillingModel != model.BillingTaskBased {
		respondError(c, http.StatusConflict, CodeBillingModelConflict,
			"project is billed by timesheet, individual time entries are not accepted", nil)
		return
	}

	membership, err := h.projects.ActiveMembership(ctx, user.OrganizationID, projectID, targetUserID)
	if err != nil && err != gorm.ErrRecordNotFound {
		h.logger.Error("failed to load membership", zap.Error(err))
		internalError(c)
		return
	}

	res := policy.Resource{
		OwnerID:       targetUserID,
		ProjectActive: project.IsActive,
		ActiveMember:  membership != nil,
	}
	if !decide(c, policy.Evaluate(user, policy.ActionTimeEntryCreate, res), "project") {
		return
	}
	// Managers still need the target user on the project roster.
	if membership == nil {
		validationError(c, "user is not an active member of this project", nil)
		return
	}

	rate := membership.EffectiveRate(project)
	if req.HourlyRate != nil {
		if !user.CanManage() {
			denied(c)
			return
		}
		rate = *req.HourlyRate
	}

	billable := true
	if req.Billable != nil {
		billable = *req.Billable
	}

	entry := &model.TimeEntry{
		ID:             uuid.New(),
		OrganizationID: user.OrganizationID,
		ProjectID:      projectID,
		UserID:         targetUserID,
		EntryDate:      entryDate,
		Hours:          req.Hours,
		Description:    req.Description,
		Billable:       billable,
		HourlyRate:     rate,
		Notes:          req.Notes,
		Status:         model.TimeEntryDraft,
	}

	if err := h.entries.Create(ctx, entry); err != nil {
		h.logger.Error("failed to create time entry", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusCreated, mapTimeEntry(entry))
}

func (h *TimeEntryHandler) Get(c *gin.Context) {
	user := caller(c)

	entry, ok := h.loadEntry(c, user, policy.ActionTimeEntryRead)
	if !ok {
		return
	}
	respondData(c, http.StatusOK, mapTimeEntry(entry))
}

func (h *TimeEntryHandler) Update(c *gin.Context) {
	user := caller(c)

	entry, ok := h.loadEntry(c, user, policy.ActionTimeEntryEdit)
	if !ok {
		return
	}
	if !entry.Editable() {
		stateConflict(c, "only draft or rejected entries can be edited")
		return
	}

	var req timeEntryUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}

	if req.EntryDate != nil {
		parsed, err := parseDate(*req.EntryDate)
		if err != nil {
			validationError(c, "invalid entry_date, expected YYYY-MM-DD", nil)
			return
		}
		entry.EntryDate = parsed
	}
	if req.Hours != nil {
		if *req.Hours <= 0 || *req.Hours > 24 {
			validationError(c, "hours must be between 0 and 24", nil)
			return
		}
		entry.Hours = *req.Hours
	}
	if req.Description != nil {
		entry.Description = *req.Description
	}
	if req.Billable != nil {
		entry.Billable = *req.Billable
	}
	if req.HourlyRate != nil {
		if !user.CanManage() {
			denied(c)
			return
		}
		entry.HourlyRate = *req.HourlyRate
	}
	if req.Notes != nil {
		entry.Notes = *req.Notes
	}

	if err := h.entries.Save(c.Request.Context(), entry); err != nil {
		h.logger.Error("failed to update time entry", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusOK, mapTimeEntry(entry))
}

func (h *TimeEntryHandler) Delete(c *gin.Context) {
	user := caller(c)

	entry, ok := h.loadEntry(c, user, policy.ActionTimeEntryEdit)
	if !ok {
		return
	}
	if !entry.Editable() {
		stateConflict(c, "only draft or rejected entries can be deleted")
		return
	}

	if err := h.entries.Delete(c.Request.Context(), user.OrganizationID, entry.ID); err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "time_entry")
			return
		}
		h.logger.Error("failed to delete time entry", zap.Error(err))
		internalError(c)
		return
	}

	respondMessage(c, http.StatusOK, nil, "time entry deleted")
}

func (h *TimeEntryHandler) Submit(c *gin.Context) {
	user := caller(c)

	entry, ok := h.loadEntry(c, user, policy.ActionTimeEntrySubmit)
	if !ok {
		return
	}
	// Submission belongs to the entry's owner even when the caller could
	// otherwise manage it.
	if entry.UserID != user.ID {
		denied(c)
		return
	}
	if !entry.Submittable() {
		stateConflict(c, "only draft or rejected entries can be submitted")
		return
	}

	now := time.Now().UTC()
	entry.Status = model.TimeEntrySubmitted
	entry.SubmittedAt = &now
	entry.ReviewedAt = nil
	entry.ReviewedByID = nil

	if err := h.entries.Save(c.Request.Context(), entry); err != nil {
		h.logger.Error("failed to submit time entry", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusOK, mapTimeEntry(entry))
}

func (h *TimeEntryHandler) Approve(c *gin.Context) {
	h.review(c, model.TimeEntryApproved)
}

func (h *TimeEntryHandler) Reject(c *gin.Context) {
	h.review(c, model.TimeEntryRejected)
}

func (h *TimeEntryHandler) review(c *gin.Context, status model.TimeEntryStatus) {
	user := caller(c)

	entry, ok := h.loadEntry(c, user, policy.ActionTimeEntryReview)
	if !ok {
		return
	}

	// The store enforces the submitted-status precondition atomically, so
	// a concurrent review that already settled the entry lands here as a
	// conflict rather than a double write.
	now := time.Now().UTC()
	err := h.entries.Review(c.Request.Context(), user.OrganizationID, entry.ID, status, user.ID, now)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotReviewable):
		stateConflict(c, "only submitted entries can be reviewed")
		return
	case err == gorm.ErrRecordNotFound:
		notFound(c, "time_entry")
		return
	default:
		h.logger.Error("failed to review time entry", zap.Error(err))
		internalError(c)
		return
	}

	entry.Status = status
	entry.ReviewedAt = &now
	entry.ReviewedByID = &user.ID
	respondData(c, http.StatusOK, mapTimeEntry(entry))
}

// loadEntry parses the path id, loads the entry and runs the policy check
// with the entry's owner as the resource owner. It writes the error response
// itself when it returns ok=false.
func (h *TimeEntryHandler) loadEntry(c *gin.Context, user *model.User, action policy.Action) (*model.TimeEntry, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		validationError(c, "invalid time entry id", nil)
		return nil, false
	}

	entry, err := h.entries.GetByID(c.Request.Context(), user.OrganizationID, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "time_entry")
			return nil, false
		}
		h.logger.Error("failed to load time entry", zap.Error(err))
		internalError(c)
		return nil, false
	}

	res := policy.Resource{OwnerID: entry.UserID}
	if !decide(c, policy.Evaluate(user, action, res), "time_entry") {
		return nil, false
	}
	return entry, true
}

func mapTimeEntry(entry *model.TimeEntry) timeEntryResponse {
	response := timeEntryResponse{
		ID:          entry.ID.String(),
		ProjectID:   entry.ProjectID.String(),
		UserID:      entry.UserID.String(),
		EntryDate:   formatDate(entry.EntryDate),
		Hours:       entry.Hours,
		Description: entry.Description,
		Billable:    entry.Billable,
		HourlyRate:  entry.HourlyRate,
		Notes:       entry.Notes,
		Status:      string(entry.Status),
		SubmittedAt: formatTime(entry.SubmittedAt),
		ReviewedAt:  formatTime(entry.ReviewedAt),
	}
	if entry.ReviewedByID != nil {
		reviewer := entry.ReviewedByID.String()
		response.ReviewedByID = &reviewer
	}
	return response
}
