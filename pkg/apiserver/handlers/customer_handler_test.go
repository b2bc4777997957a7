package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/model"
)

type fakeCustomerStore struct {
	customers map[uuid.UUID]*model.Customer
}

func newFakeCustomerStore() *fakeCustomerStore {
	return &fakeCustomerStore{customers: map[uuid.UUID]*model.Customer{}}
}

func (f *fakeCustomerStore) Create(_ context.Context, customer *model.Customer) error {
	f.customers[customer.ID] = customer
	return nil
}

func (f *fakeCustomerStore) GetByID(_ context.Context, orgID, id uuid.UUID) (*model.Customer, error) {
	customer, ok := f.customers[id]
	if !ok || customer.OrganizationID != orgID {
		return nil, gorm.ErrRecordNotFound
	}
	return customer, nil
}

func (f *fakeCustomerStore) List(_ context.Context, orgID uuid.UUID, activeOnly bool, limit, offset int) ([]model.Customer, int64, error) {
	var out []model.Customer
	for _, customer := range f.customers {
		if customer.OrganizationID != orgID {
			continue
		}
		if activeOnly && !customer.IsActive {
			continue
		}
		out = append(out, *customer)
	}
	return out, int64(len(out)), nil
}

func (f *fakeCustomerStore) Save(_ context.Context, customer *model.Customer) error {
	f.customers[customer.ID] = customer
	return nil
}

func (f *fakeCustomerStore) Deactivate(_ context.Context, orgID, id uuid.UUID) error {
	customer, ok := f.customers[id]
	if !ok || customer.OrganizationID != orgID {
		return gorm.ErrRecordNotFound
	}
	customer.IsActive = false
	return nil
}

func registerCustomerRoutes(handler *CustomerHandler) func(api *gin.RouterGroup) {
	return func(api *gin.RouterGroup) {
		api.GET("/customers", handler.List)
		api.POST("/customers", handler.Create)
		api.GET("/customers/:id", handler.Get)
		api.PUT("/customers/:id", handler.Update)
		api.DELETE("/customers/:id", handler.Delete)
	}
}

func seedCustomer(customers *fakeCustomerStore, orgID uuid.UUID) *model.Customer {
	customer := &model.Customer{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           "Acme Corp",
		Email:          "billing@acme.test",
		IsActive:       true,
	}
	customers.customers[customer.ID] = customer
	return customer
}

func TestCustomerUpdateRoundTrip(t *testing.T) {
	customers := newFakeCustomerStore()
	customer := seedCustomer(customers, testOrgID())

	handler := NewCustomerHandler(customers, zap.NewNop())
	router := newTestRouter(managerUser(), registerCustomerRoutes(handler))

	recorder := doRequest(t, router, http.MethodPut, "/api/v1/customers/"+customer.ID.String(), gin.H{
		"name": "Acme Holdings",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Data customerResponse `json:"data"`
	}
	decodeBody(t, recorder, &body)
	assert.Equal(t, "Acme Holdings", body.Data.Name)
	assert.Equal(t, "billing@acme.test", body.Data.Email)
}

func TestCustomerCrossOrgIsNotFoundForEmployee(t *testing.T) {
	customers := newFakeCustomerStore()
	foreign := seedCustomer(customers, uuid.New())
	local := seedCustomer(customers, testOrgID())

	handler := NewCustomerHandler(customers, zap.NewNop())
	router := newTestRouter(employeeUser(), registerCustomerRoutes(handler))

	// Foreign-tenant rows stay invisible even when the role would be
	// denied anyway.
	recorder := doRequest(t, router, http.MethodDelete, "/api/v1/customers/"+foreign.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "CUSTOMER_NOT_FOUND", errorCode(t, recorder))

	recorder = doRequest(t, router, http.MethodPut, "/api/v1/customers/"+local.ID.String(), gin.H{"name": "x"})
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, "AUTHORIZATION_DENIED", errorCode(t, recorder))
}

func TestCustomerDeleteDeactivates(t *testing.T) {
	customers := newFakeCustomerStore()
	customer := seedCustomer(customers, testOrgID())

	handler := NewCustomerHandler(customers, zap.NewNop())
	router := newTestRouter(adminUser(), registerCustomerRoutes(handler))

	recorder := doRequest(t, router, http.MethodDelete, "/api/v1/customers/"+customer.ID.String(), nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	// The row survives as inactive rather than disappearing.
	recorder = doRequest(t, router, http.MethodGet, "/api/v1/customers/"+customer.ID.String(), nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var body struct {
		Data customerResponse `json:"data"`
	}
	decodeBody(t, recorder, &body)
	assert.False(t, body.Data.IsActive)
}
