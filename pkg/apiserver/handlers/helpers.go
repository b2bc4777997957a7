package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/timeledger/timeledger/pkg/apiserver/middleware"
	"github.com/timeledger/timeledger/pkg/model"
	"github.com/timeledger/timeledger/pkg/policy"
)

const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeAuthorizationDenied  = "AUTHORIZATION_DENIED"
	CodeResourceNotFound     = "RESOURCE_NOT_FOUND"
	CodeDuplicateResource    = "DUPLICATE_RESOURCE"
	CodeStateConflict        = "STATE_CONFLICT"
	CodeBillingModelConflict = "BILLING_MODEL_CONFLICT"
	CodeInternalError        = "INTERNAL_ERROR"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	dateLayout   = "2006-01-02"
)

type pagination struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
	HasNext bool  `json:"has_next"`
	HasPrev bool  `json:"has_prev"`
}

func parsePage(c *gin.Context) (page, limit int) {
	page = 1
	if value, err := strconv.Atoi(c.Query("page")); err == nil && value >= 1 {
		page = value
	}
	limit = defaultLimit
	if value, err := strconv.Atoi(c.Query("limit")); err == nil && value >= 1 {
		limit = value
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func newPagination(page, limit int, total int64) pagination {
	pages := int((total + int64(limit) - 1) / int64(limit))
	return pagination{
		Page:    page,
		Limit:   limit,
		Total:   total,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1 && total > 0,
	}
}

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"data": data})
}

func respondMessage(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, gin.H{"data": data, "message": message})
}

func respondPage(c *gin.Context, data interface{}, p pagination) {
	c.JSON(http.StatusOK, gin.H{"data": data, "pagination": p})
}

func respondError(c *gin.Context, status int, code, message string, details interface{}) {
	body := gin.H{
		"code":       code,
		"message":    message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": middleware.RequestIDFrom(c),
	}
	if details != nil {
		body["details"] = details
	}
	c.JSON(status, gin.H{"error": body})
}

func validationError(c *gin.Context, message string, details interface{}) {
	respondError(c, http.StatusBadRequest, CodeValidationError, message, details)
}

// notFound emits the per-resource code, e.g. PROJECT_NOT_FOUND. Rows in
// another tenant take this same path, so wrong tenant and absent row are
// indistinguishable on the wire.
func notFound(c *gin.Context, resource string) {
	code := strings.ToUpper(strings.ReplaceAll(resource, " ", "_")) + "_NOT_FOUND"
	respondError(c, http.StatusNotFound, code, resource+" not found", nil)
}

func denied(c *gin.Context) {
	respondError(c, http.StatusForbidden, CodeAuthorizationDenied, "insufficient permissions", nil)
}

func stateConflict(c *gin.Context, message string) {
	respondError(c, http.StatusConflict, CodeStateConflict, message, nil)
}

func internalError(c *gin.Context) {
	respondError(c, http.StatusInternalServerError, CodeInternalError, "an unexpected error occurred", nil)
}

// decide maps a policy decision onto the wire, returning true when the
// handler may proceed.
func decide(c *gin.Context, decision policy.Decision, resource string) bool {
	switch decision {
	case policy.Allow:
		return true
	case policy.NotFound:
		notFound(c, resource)
		return false
	default:
		denied(c)
		return false
	}
}

func caller(c *gin.Context) *model.User {
	return middleware.Caller(c)
}

func formatTime(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := value.UTC().Format(time.RFC3339Nano)
	return &formatted
}

func formatDate(value time.Time) string {
	return value.Format(dateLayout)
}

func formatDatePtr(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := formatDate(*value)
	return &formatted
}

func parseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, value)
}

func parseOptionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := parseDate(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
