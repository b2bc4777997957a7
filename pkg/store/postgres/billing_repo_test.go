package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/timeledger/timeledger/pkg/model"
	"github.com/timeledger/timeledger/pkg/store"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open gorm: %v", err)
	}
	return db, mock
}

func batchRow(id, orgID uuid.UUID, status model.BillingBatchStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "organization_id", "name", "status"}).
		AddRow(id.String(), orgID.String(), "March invoice", string(status))
}

func TestBillingAddItemScopedToOrganization(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBillingRepository(db)

	orgID := uuid.New()
	batchID := uuid.New()
	itemID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "billing_batches" WHERE .*id = \$1 AND organization_id = \$2`).
		WithArgs(batchID, orgID).
		WillReturnRows(batchRow(batchID, orgID, model.BatchDraft))
	// The id column has a database-side default, so GORM appends
	// RETURNING "id" and the INSERT goes through Query, not Exec.
	mock.ExpectQuery(`INSERT INTO "billing_items"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(itemID.String()))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(total_amount\), 0\) AS amount, COALESCE\(SUM\(quantity\), 0\) AS hours FROM "billing_items"`).
		WillReturnRows(sqlmock.NewRows([]string{"amount", "hours"}).AddRow(175.0, 3.0))
	mock.ExpectExec(`UPDATE "billing_batches" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	item := &model.BillingItem{
		ID:          itemID,
		Description: "Design review",
		Quantity:    1,
		UnitRate:    75,
		TotalAmount: 75,
		Billable:    true,
		Type:        model.BillingItemManual,
	}
	if err := repo.AddItem(context.Background(), orgID, batchID, item); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if item.BatchID != batchID {
		t.Fatalf("expected item bound to batch %s, got %s", batchID, item.BatchID)
	}
	if item.OrganizationID != orgID {
		t.Fatalf("expected item bound to org %s, got %s", orgID, item.OrganizationID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBillingAddItemToSentBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBillingRepository(db)

	orgID := uuid.New()
	batchID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "billing_batches"`).
		WillReturnRows(batchRow(batchID, orgID, model.BatchSent))
	mock.ExpectRollback()

	err := repo.AddItem(context.Background(), orgID, batchID, &model.BillingItem{ID: uuid.New()})
	if !errors.Is(err, store.ErrBatchNotDraft) {
		t.Fatalf("expected ErrBatchNotDraft, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBillingUpdateStatusRejectsBackwardTransition(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBillingRepository(db)

	orgID := uuid.New()
	batchID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "billing_batches"`).
		WillReturnRows(batchRow(batchID, orgID, model.BatchPaid))
	mock.ExpectRollback()

	_, err := repo.UpdateStatus(context.Background(), orgID, batchID, model.BatchSent)
	if !errors.Is(err, store.ErrInvalidBatchTransition) {
		t.Fatalf("expected ErrInvalidBatchTransition, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBillingDeleteSentBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBillingRepository(db)

	orgID := uuid.New()
	batchID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "billing_batches"`).
		WillReturnRows(batchRow(batchID, orgID, model.BatchSent))
	mock.ExpectRollback()

	err := repo.DeleteBatch(context.Background(), orgID, batchID)
	if !errors.Is(err, store.ErrBatchNotDraft) {
		t.Fatalf("expected ErrBatchNotDraft, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBillingStats(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBillingRepository(db)

	orgID := uuid.New()

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) AS count FROM "billing_batches"`).
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("draft", 2).
			AddRow("sent", 1).
			AddRow("paid", 3))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(total_amount\), 0\) AS amount, COALESCE\(SUM\(total_hours\), 0\) AS hours FROM "billing_batches"`).
		WillReturnRows(sqlmock.NewRows([]string{"amount", "hours"}).AddRow(4200.0, 35.0))

	stats, err := repo.Stats(context.Background(), orgID)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.DraftBatches != 2 || stats.SentBatches != 1 || stats.PaidBatches != 3 {
		t.Fatalf("unexpected batch counts: %+v", stats)
	}
	if stats.BilledAmount != 4200 || stats.BilledHours != 35 {
		t.Fatalf("unexpected billed totals: %+v", stats)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
