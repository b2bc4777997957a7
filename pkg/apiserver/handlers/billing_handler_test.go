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
	"github.com/timeledger/timeledger/pkg/store"
)

// fakeBillingStore mirrors the repository's transactional behavior: every
// item change recomputes the batch totals from the current items.
type fakeBillingStore struct {
	batches map[uuid.UUID]*model.BillingBatch
	items   map[uuid.UUID][]model.BillingItem
}

func newFakeBillingStore() *fakeBillingStore {
	return &fakeBillingStore{
		batches: map[uuid.UUID]*model.BillingBatch{},
		items:   map[uuid.UUID][]model.BillingItem{},
	}
}

func (f *fakeBillingStore) CreateBatch(_ context.Context, batch *model.BillingBatch) error {
	f.batches[batch.ID] = batch
	return nil
}

func (f *fakeBillingStore) GetBatch(_ context.Context, orgID, id uuid.UUID) (*model.BillingBatch, error) {
	batch, ok := f.batches[id]
	if !ok || batch.OrganizationID != orgID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *batch
	copied.Items = append([]model.BillingItem(nil), f.items[id]...)
	return &copied, nil
}

func (f *fakeBillingStore) ListBatches(_ context.Context, orgID uuid.UUID, status *model.BillingBatchStatus, limit, offset int) ([]model.BillingBatch, int64, error) {
	var out []model.BillingBatch
	for _, batch := range f.batches {
		if batch.OrganizationID != orgID {
			continue
		}
		if status != nil && batch.Status != *status {
			continue
		}
		out = append(out, *batch)
	}
	return out, int64(len(out)), nil
}

func (f *fakeBillingStore) AddItem(_ context.Context, orgID, batchID uuid.UUID, item *model.BillingItem) error {
	batch, ok := f.batches[batchID]
	if !ok || batch.OrganizationID != orgID {
		return gorm.ErrRecordNotFound
	}
	if !batch.Mutable() {
		return store.ErrBatchNotDraft
	}
	item.OrganizationID = orgID
	item.BatchID = batchID
	f.items[batchID] = append(f.items[batchID], *item)
	batch.TotalAmount, batch.TotalHours = model.BatchTotals(f.items[batchID])
	return nil
}

func (f *fakeBillingStore) RemoveItem(_ context.Context, orgID, batchID, itemID uuid.UUID) error {
	batch, ok := f.batches[batchID]
	if !ok || batch.OrganizationID != orgID {
		return gorm.ErrRecordNotFound
	}
	if !batch.Mutable() {
		return store.ErrBatchNotDraft
	}
	items := f.items[batchID]
	for i := range items {
		if items[i].ID == itemID {
			f.items[batchID] = append(items[:i], items[i+1:]...)
			batch.TotalAmount, batch.TotalHours = model.BatchTotals(f.items[batchID])
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeBillingStore) UpdateStatus(_ context.Context, orgID, id uuid.UUID, target model.BillingBatchStatus) (*model.BillingBatch, error) {
	batch, ok := f.batches[id]
	if !ok || batch.OrganizationID != orgID {
		return nil, gorm.ErrRecordNotFound
	}
	if !model.ValidBatchTransition(batch.Status, target) {
		return nil, store.ErrInvalidBatchTransition
	}
	batch.Status = target
	return batch, nil
}

func (f *fakeBillingStore) DeleteBatch(_ context.Context, orgID, id uuid.UUID) error {
	batch, ok := f.batches[id]
	if !ok || batch.OrganizationID != orgID {
		return gorm.ErrRecordNotFound
	}
	if !batch.Deletable() {
		return store.ErrBatchNotDraft
	}
	delete(f.batches, id)
	delete(f.items, id)
	return nil
}

func (f *fakeBillingStore) Stats(_ context.Context, orgID uuid.UUID) (*store.BillingStats, error) {
	stats := &store.BillingStats{}
	for _, batch := range f.batches {
		if batch.OrganizationID != orgID {
			continue
		}
		switch batch.Status {
		case model.BatchDraft:
			stats.DraftBatches++
		case model.BatchSent:
			stats.SentBatches++
			stats.BilledAmount += batch.TotalAmount
			stats.BilledHours += batch.TotalHours
		case model.BatchPaid:
			stats.PaidBatches++
			stats.BilledAmount += batch.TotalAmount
			stats.BilledHours += batch.TotalHours
		}
	}
	return stats, nil
}

func registerBillingRoutes(handler *BillingHandler) func(api *gin.RouterGroup) {
	return func(api *gin.RouterGroup) {
		api.GET("/billing/batches", handler.ListBatches)
		api.POST("/billing/batches", handler.CreateBatch)
		api.GET("/billing/batches/:id", handler.GetBatch)
		api.DELETE("/billing/batches/:id", handler.DeleteBatch)
		api.PUT("/billing/batches/:id/status", handler.UpdateStatus)
		api.POST("/billing/batches/:id/items", handler.AddItem)
		api.DELETE("/billing/batches/:id/items/:itemID", handler.RemoveItem)
		api.GET("/billing/stats", handler.Stats)
	}
}

func createBatch(t *testing.T, router *gin.Engine) batchResponse {
	t.Helper()

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/billing/batches", gin.H{
		"name": "March invoice",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var body struct {
		Data batchResponse `json:"data"`
	}
	decodeBody(t, recorder, &body)
	return body.Data
}

func TestBillingBatchTotalsFollowItems(t *testing.T) {
	billing := newFakeBillingStore()
	handler := NewBillingHandler(billing, newFakeProjectStore(), zap.NewNop())
	router := newTestRouter(managerUser(), registerBillingRoutes(handler))

	batch := createBatch(t, router)
	itemsPath := "/api/v1/billing/batches/" + batch.ID + "/items"

	recorder := doRequest(t, router, http.MethodPost, itemsPath, gin.H{
		"description": "Backend work",
		"quantity":    2.0,
		"unit_rate":   50.0,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	var first struct {
		Data itemResponse `json:"data"`
	}
	decodeBody(t, recorder, &first)
	assert.Equal(t, 100.0, first.Data.TotalAmount)

	recorder = doRequest(t, router, http.MethodPost, itemsPath, gin.H{
		"description": "Design review",
		"quantity":    1.0,
		"unit_rate":   75.0,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	batchPath := "/api/v1/billing/batches/" + batch.ID
	recorder = doRequest(t, router, http.MethodGet, batchPath, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var loaded struct {
		Data batchResponse `json:"data"`
	}
	decodeBody(t, recorder, &loaded)
	assert.Equal(t, 175.0, loaded.Data.TotalAmount)
	assert.Equal(t, 3.0, loaded.Data.TotalHours)

	// Removing the first item drops the totals to the remaining line.
	recorder = doRequest(t, router, http.MethodDelete, itemsPath+"/"+first.Data.ID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(t, router, http.MethodGet, batchPath, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	loaded.Data = batchResponse{}
	decodeBody(t, recorder, &loaded)
	assert.Equal(t, 75.0, loaded.Data.TotalAmount)
	assert.Equal(t, 1.0, loaded.Data.TotalHours)
}

func TestBillingBatchStatusFlow(t *testing.T) {
	billing := newFakeBillingStore()
	handler := NewBillingHandler(billing, newFakeProjectStore(), zap.NewNop())
	router := newTestRouter(managerUser(), registerBillingRoutes(handler))

	batch := createBatch(t, router)
	statusPath := "/api/v1/billing/batches/" + batch.ID + "/status"

	// draft -> paid skips sent and is rejected.
	recorder := doRequest(t, router, http.MethodPut, statusPath, gin.H{"status": "paid"})
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(t, "STATE_CONFLICT", errorCode(t, recorder))

	recorder = doRequest(t, router, http.MethodPut, statusPath, gin.H{"status": "sent"})
	require.Equal(t, http.StatusOK, recorder.Code)

	// Sent batches freeze their items.
	recorder = doRequest(t, router, http.MethodPost, "/api/v1/billing/batches/"+batch.ID+"/items", gin.H{
		"description": "Late addition",
		"quantity":    1.0,
		"unit_rate":   10.0,
	})
	assert.Equal(t, http.StatusConflict, recorder.Code)

	// And cannot be deleted.
	recorder = doRequest(t, router, http.MethodDelete, "/api/v1/billing/batches/"+batch.ID, nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)

	recorder = doRequest(t, router, http.MethodPut, statusPath, gin.H{"status": "paid"})
	require.Equal(t, http.StatusOK, recorder.Code)

	// paid -> sent never goes backwards.
	recorder = doRequest(t, router, http.MethodPut, statusPath, gin.H{"status": "sent"})
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestBillingDraftBatchDelete(t *testing.T) {
	billing := newFakeBillingStore()
	handler := NewBillingHandler(billing, newFakeProjectStore(), zap.NewNop())
	router := newTestRouter(adminUser(), registerBillingRoutes(handler))

	batch := createBatch(t, router)

	recorder := doRequest(t, router, http.MethodDelete, "/api/v1/billing/batches/"+batch.ID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(t, router, http.MethodGet, "/api/v1/billing/batches/"+batch.ID, nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "BILLING_BATCH_NOT_FOUND", errorCode(t, recorder))
}

func TestBillingDeniedForEmployee(t *testing.T) {
	billing := newFakeBillingStore()
	handler := NewBillingHandler(billing, newFakeProjectStore(), zap.NewNop())
	router := newTestRouter(employeeUser(), registerBillingRoutes(handler))

	recorder := doRequest(t, router, http.MethodGet, "/api/v1/billing/batches", nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = doRequest(t, router, http.MethodGet, "/api/v1/billing/stats", nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestBillingCrossOrgBatchIsNotFoundForEmployee(t *testing.T) {
	billing := newFakeBillingStore()
	foreignID := uuid.New()
	billing.batches[foreignID] = &model.BillingBatch{
		ID: foreignID, OrganizationID: uuid.New(), Name: "other tenant",
		Status: model.BatchDraft,
	}
	localID := uuid.New()
	billing.batches[localID] = &model.BillingBatch{
		ID: localID, OrganizationID: testOrgID(), Name: "own tenant",
		Status: model.BatchDraft,
	}

	handler := NewBillingHandler(billing, newFakeProjectStore(), zap.NewNop())
	router := newTestRouter(employeeUser(), registerBillingRoutes(handler))

	// The tenant scope answers before the role does: a foreign batch is
	// invisible, not forbidden.
	recorder := doRequest(t, router, http.MethodDelete, "/api/v1/billing/batches/"+foreignID.String(), nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "BILLING_BATCH_NOT_FOUND", errorCode(t, recorder))

	recorder = doRequest(t, router, http.MethodDelete, "/api/v1/billing/batches/"+localID.String(), nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, "AUTHORIZATION_DENIED", errorCode(t, recorder))
}

func TestBillingStats(t *testing.T) {
	billing := newFakeBillingStore()
	orgID := testOrgID()
	seed := func(status model.BillingBatchStatus, amount, hours float64) {
		id := uuid.New()
		billing.batches[id] = &model.BillingBatch{
			ID: id, OrganizationID: orgID, Name: "b",
			Status: status, TotalAmount: amount, TotalHours: hours,
		}
	}
	seed(model.BatchDraft, 500, 5)
	seed(model.BatchSent, 200, 2)
	seed(model.BatchPaid, 300, 3)

	handler := NewBillingHandler(billing, newFakeProjectStore(), zap.NewNop())
	router := newTestRouter(managerUser(), registerBillingRoutes(handler))

	recorder := doRequest(t, router, http.MethodGet, "/api/v1/billing/stats", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Data billingStatsResponse `json:"data"`
	}
	decodeBody(t, recorder, &body)
	assert.Equal(t, int64(1), body.Data.DraftBatches)
	assert.Equal(t, int64(1), body.Data.SentBatches)
	assert.Equal(t, int64(1), body.Data.PaidBatches)
	// Draft batches are excluded from billed totals.
	assert.Equal(t, 500.0, body.Data.BilledAmount)
	assert.Equal(t, 5.0, body.Data.BilledHours)
}
