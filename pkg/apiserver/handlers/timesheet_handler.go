package handlers

import (
	"context"
	"errors"
	"fmt"
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

type timesheetStore interface {
	Create(ctx context.Context, timesheet *model.Timesheet) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.Timesheet, error)
	List(ctx context.Context, orgID uuid.UUID, filter store.TimesheetFilter, limit, offset int) ([]model.Timesheet, int64, error)
	UpdateStatus(ctx context.Context, orgID, id uuid.UUID, updates map[string]interface{}) error
	Review(ctx context.Context, orgID, id uuid.UUID, status model.TimesheetStatus, reviewerID uuid.UUID, reviewedAt time.Time) error
}

type timesheetProjectStore interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*model.Project, error)
	ActiveMembership(ctx context.Context, orgID, projectID, userID uuid.UUID) (*model.ProjectMembership, error)
}

type TimesheetHandler struct {
	timesheets timesheetStore
	projects   timesheetProjectStore
	logger     *zap.Logger
}

func NewTimesheetHandler(timesheets timesheetStore, projects timesheetProjectStore, logger *zap.Logger) *TimesheetHandler {
	return &TimesheetHandler{timesheets: timesheets, projects: projects, logger: logger}
}

type timesheetEntryRequest struct {
	ProjectID   string  `json:"project_id" binding:"required"`
	EntryDate   string  `json:"entry_date" binding:"required"`
	Hours       float64 `json:"hours" binding:"required"`
	Description string  `json:"description"`
}

type timesheetCreateRequest struct {
	UserID    string                  `json:"user_id"`
	WeekStart string                  `json:"week_start" binding:"required"`
	Entries   []timesheetEntryRequest `json:"entries" binding:"required"`
}

type timesheetEntryResponse struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	EntryDate   string  `json:"entry_date"`
	Hours       float64 `json:"hours"`
	Description string  `json:"description,omitempty"`
}

type timesheetResponse struct {
	ID           string                   `json:"id"`
	UserID       string                   `json:"user_id"`
	WeekStart    string                   `json:"week_start"`
	WeekEnd      string                   `json:"week_end"`
	TotalHours   float64                  `json:"total_hours"`
	Status       string                   `json:"status"`
	SubmittedAt  *string                  `json:"submitted_at,omitempty"`
	ReviewedAt   *string                  `json:"reviewed_at,omitempty"`
	ReviewedByID *string                  `json:"reviewed_by_id,omitempty"`
	Entries      []timesheetEntryResponse `json:"entries,omitempty"`
}

func (h *TimesheetHandler) List(c *gin.Context) {
	user := caller(c)

	page, limit := parsePage(c)

	filter := store.TimesheetFilter{}
	if value := c.Query("status"); value != "" {
		status := model.TimesheetStatus(value)
		switch status {
		case model.TimesheetDraft, model.TimesheetSubmitted, model.TimesheetApproved, model.TimesheetRejected:
		default:
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

	if !user.CanManage() {
		if user.Role != model.RoleEmployee {
			denied(c)
			return
		}
		filter.UserID = &user.ID
	}

	timesheets, total, err := h.timesheets.List(c.Request.Context(), user.OrganizationID, filter, limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("failed to list timesheets", zap.Error(err))
		internalError(c)
		return
	}

	response := make([]timesheetResponse, 0, len(timesheets))
	for i := range timesheets {
		response = append(response, mapTimesheet(&timesheets[i]))
	}
	respondPage(c, response, newPagination(page, limit, total))
}

func (h *TimesheetHandler) Create(c *gin.Context) {
	user := caller(c)

	var req timesheetCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body", err.Error())
		return
	}
	if len(req.Entries) == 0 {
		validationError(c, "entries must not be empty", nil)
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
	weekStart, err := parseDate(req.WeekStart)
	if err != nil {
		validationError(c, "invalid week_start, expected YYYY-MM-DD", nil)
		return
	}
	weekEnd := weekStart.AddDate(0, 0, 6)

	ctx := c.Request.Context()
	projectsSeen := map[uuid.UUID]*model.Project{}

	entries := make([]model.TimesheetEntry, 0, len(req.Entries))
	for i, item := range req.Entries {
		projectID, err := uuid.Parse(item.ProjectID)
		if err != nil {
			validationError(c, fmt.Sprintf("entries[%d]: invalid project_id", i), nil)
			return
		}
		entryDate, err := parseDate(item.EntryDate)
		if err != nil {
			validationError(c, fmt.Sprintf("entries[%d]: invalid entry_date, expected YYYY-MM-DD", i), nil)
			return
		}
		if entryDate.Before(weekStart) || entryDate.After(weekEnd) {
			validationError(c, fmt.Sprintf("entries[%d]: entry_date outside the timesheet week", i), nil)
			return
		}
		if item.Hours <= 0 || item.Hours > 24 {
			validationError(c, fmt.Sprintf("entries[%d]: hours must be between 0 and 24", i), nil)
			return
		}

		project, cached := projectsSeen[projectID]
		if !cached {
			project, err = h.projects.GetByID(ctx, user.OrganizationID, projectID)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					notFound(c, "project")
					return
				}
				h.logger.Error("failed to load project", zap.Error(err))
				internalError(c)
				return
			}
			if project.BillingModel != model.BillingTimesheet {
				respondError(c, http.StatusConflict, CodeBillingModelConflict,
					"project is billed per time entry, timesheet hours are not accepted", nil)
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
			if !decide(c, policy.Evaluate(user, policy.ActionTimesheetCreate, res), "project") {
				return
			}
			projectsSeen[projectID] = project
		}

		entries = append(entries, model.TimesheetEntry{
			ID:          uuid.New(),
			ProjectID:   projectID,
			EntryDate:   entryDate,
			Hours:       item.Hours,
			Description: item.Description,
		})
	}

	timesheet := &model.Timesheet{
		ID:             uuid.New(),
		OrganizationID: user.OrganizationID,
		UserID:         targetUserID,
		WeekStart:      weekStart,
		WeekEnd:        weekEnd,
		TotalHours:     model.TimesheetHours(entries),
		Status:         model.TimesheetDraft,
		Entries:        entries,
	}
	for i := range timesheet.Entries {
		timesheet.Entries[i].TimesheetID = timesheet.ID
	}

	if err := h.timesheets.Create(ctx, timesheet); err != nil {
		h.logger.Error("failed to create timesheet", zap.Error(err))
		internalError(c)
		return
	}

	respondData(c, http.StatusCreated, mapTimesheet(timesheet))
}

func (h *TimesheetHandler) Get(c *gin.Context) {
	user := caller(c)

	timesheet, ok := h.loadTimesheet(c, user, policy.ActionTimesheetRead)
	if !ok {
		return
	}
	respondData(c, http.StatusOK, mapTimesheet(timesheet))
}

func (h *TimesheetHandler) Submit(c *gin.Context) {
	user := caller(c)

	timesheet, ok := h.loadTimesheet(c, user, policy.ActionTimesheetSubmit)
	if !ok {
		return
	}
	if timesheet.UserID != user.ID {
		denied(c)
		return
	}
	if !timesheet.Submittable() {
		stateConflict(c, "only draft or rejected timesheets can be submitted")
		return
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":         model.TimesheetSubmitted,
		"submitted_at":   &now,
		"reviewed_at":    nil,
		"reviewed_by_id": nil,
	}
	if err := h.timesheets.UpdateStatus(c.Request.Context(), user.OrganizationID, timesheet.ID, updates); err != nil {
		h.logger.Error("failed to submit timesheet", zap.Error(err))
		internalError(c)
		return
	}

	timesheet.Status = model.TimesheetSubmitted
	timesheet.SubmittedAt = &now
	timesheet.ReviewedAt = nil
	timesheet.ReviewedByID = nil
	respondData(c, http.StatusOK, mapTimesheet(timesheet))
}

func (h *TimesheetHandler) Approve(c *gin.Context) {
	h.review(c, model.TimesheetApproved)
}

func (h *TimesheetHandler) Reject(c *gin.Context) {
	h.review(c, model.TimesheetRejected)
}

func (h *TimesheetHandler) review(c *gin.Context, status model.TimesheetStatus) {
	user := caller(c)

	timesheet, ok := h.loadTimesheet(c, user, policy.ActionTimesheetReview)
	if !ok {
		return
	}

	// The submitted-status precondition is enforced in the store's UPDATE,
	// so a review that lost the race to a concurrent reviewer comes back
	// as a conflict instead of overwriting the earlier verdict.
	now := time.Now().UTC()
	err := h.timesheets.Review(c.Request.Context(), user.OrganizationID, timesheet.ID, status, user.ID, now)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotReviewable):
		stateConflict(c, "only submitted timesheets can be reviewed")
		return
	case err == gorm.ErrRecordNotFound:
		notFound(c, "timesheet")
		return
	default:
		h.logger.Error("failed to review timesheet", zap.Error(err))
		internalError(c)
		return
	}

	timesheet.Status = status
	timesheet.ReviewedAt = &now
	timesheet.ReviewedByID = &user.ID
	respondData(c, http.StatusOK, mapTimesheet(timesheet))
}

func (h *TimesheetHandler) loadTimesheet(c *gin.Context, user *model.User, action policy.Action) (*model.Timesheet, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		validationError(c, "invalid timesheet id", nil)
		return nil, false
	}

	timesheet, err := h.timesheets.GetByID(c.Request.Context(), user.OrganizationID, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			notFound(c, "timesheet")
			return nil, false
		}
		h.logger.Error("failed to load timesheet", zap.Error(err))
		internalError(c)
		return nil, false
	}

	res := policy.Resource{OwnerID: timesheet.UserID}
	if !decide(c, policy.Evaluate(user, action, res), "timesheet") {
		return nil, false
	}
	return timesheet, true
}

func mapTimesheet(timesheet *model.Timesheet) timesheetResponse {
	response := timesheetResponse{
		ID:          timesheet.ID.String(),
		UserID:      timesheet.UserID.String(),
		WeekStart:   formatDate(timesheet.WeekStart),
		WeekEnd:     formatDate(timesheet.WeekEnd),
		TotalHours:  timesheet.TotalHours,
		Status:      string(timesheet.Status),
		SubmittedAt: formatTime(timesheet.SubmittedAt),
		ReviewedAt:  formatTime(timesheet.ReviewedAt),
	}
	if timesheet.ReviewedByID != nil {
		reviewer := timesheet.ReviewedByID.String()
		response.ReviewedByID = &reviewer
	}
	for i := range timesheet.Entries {
		entry := &timesheet.Entries[i]
		response.Entries = append(response.Entries, timesheetEntryResponse{
			ID:          entry.ID.String(),
			ProjectID:   entry.ProjectID.String(),
			EntryDate:   formatDate(entry.EntryDate),
			Hours:       entry.Hours,
			Description: entry.Description,
		})
	}
	return response
}
