package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/timeledger/timeledger/pkg/apiserver/middleware"
	"github.com/timeledger/timeledger/pkg/model"
)

// newTestRouter builds a router whose auth middleware is replaced by one
// that injects the given caller directly.
func newTestRouter(user *model.User, register func(api *gin.RouterGroup)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	api := r.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Set(middleware.CallerKey, user)
		c.Next()
	})
	register(api)
	return r
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	decodeBody(t, recorder, &body)
	return body.Error.Code
}

func testOrgID() uuid.UUID {
	return uuid.MustParse("00000000-0000-0000-0000-00000000a0a0")
}

func adminUser() *model.User {
	return &model.User{
		ID:             uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		OrganizationID: testOrgID(),
		Email:          "admin@example.com",
		Role:           model.RoleAdmin,
		IsActive:       true,
	}
}

func managerUser() *model.User {
	return &model.User{
		ID:             uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		OrganizationID: testOrgID(),
		Email:          "manager@example.com",
		Role:           model.RoleManager,
		IsActive:       true,
	}
}

func employeeUser() *model.User {
	return &model.User{
		ID:             uuid.MustParse("00000000-0000-0000-0000-000000000003"),
		OrganizationID: testOrgID(),
		Email:          "employee@example.com",
		Role:           model.RoleEmployee,
		IsActive:       true,
	}
}
