package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/kaladeofin/invoice-approvals/internal/auth"
	"github.com/kaladeofin/invoice-approvals/internal/domain/entity"
	"github.com/kaladeofin/invoice-approvals/internal/infrastructure/persistence/sqlite"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kaladeofin/invoice-approvals/pkg/database"
)

func setupDB(t *testing.T) *sqlite.DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	// A :memory: database lives per connection
	sqlDB.SetMaxOpenConns(1)

	logger := zap.NewNop()
	require.NoError(t, database.NewMigrator(sqlDB, logger).RunMigrations())

	return sqlite.NewDB(sqlDB, logger)
}

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }
func timePtr(t time.Time) *time.Time { return &t }

func sampleInvoice() *entity.Invoice {
	return &entity.Invoice{
		Filename:       "acme-march.pdf",
		SupplierName:   strPtr("Acme Corp"),
		InvoiceDate:    timePtr(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)),
		TotalAmount:    floatPtr(125.50),
		Currency:       "USD",
		LineItems:      []entity.LineItem{{Description: "Paper", Quantity: 10, UnitPrice: 12.55, Total: 125.50}},
		SubmitterName:  "Jane Doe",
		SubmitterEmail: "jane@example.com",
		SubmitterTeam:  "Finance",
		BusinessReason: "office supplies",
		ContentHash:    "hash-1",
		ApprovalStatus: entity.StatusInProgress,
	}
}

func TestInvoiceRepository_CreateAndGet(t *testing.T) {
	db := setupDB(t)
	repo := NewInvoiceRepository(db, zap.NewNop())
	ctx := context.Background()

	invoice := sampleInvoice()
	require.NoError(t, repo.Create(ctx, invoice))
	require.NotZero(t, invoice.ID)

	got, err := repo.GetByID(ctx, invoice.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, invoice.Filename, got.Filename)
	assert.Equal(t, "Acme Corp", *got.SupplierName)
	assert.Equal(t, 125.50, *got.TotalAmount)
	assert.Equal(t, invoice.InvoiceDate.Format("2006-01-02"), got.InvoiceDate.Format("2006-01-02"))
	assert.Equal(t, invoice.LineItems, got.LineItems)
	assert.Equal(t, entity.StatusInProgress, got.ApprovalStatus)
	assert.Equal(t, invoice.CreatedAt.UTC().Format(auth.TimeFormat), got.CreatedAt.Format(auth.TimeFormat))
}

func TestInvoiceRepository_NullableFields(t *testing.T) {
	db := setupDB(t)
	repo := NewInvoiceRepository(db, zap.NewNop())
	ctx := context.Background()

	invoice := sampleInvoice()
	invoice.SupplierName = nil
	invoice.InvoiceDate = nil
	invoice.TotalAmount = nil
	require.NoError(t, repo.Create(ctx, invoice))

	got, err := repo.GetByID(ctx, invoice.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.SupplierName)
	assert.Nil(t, got.InvoiceDate)
	assert.Nil(t, got.TotalAmount)
}

func TestInvoiceRepository_GetByID_NotFound(t *testing.T) {
	db := setupDB(t)
	repo := NewInvoiceRepository(db, zap.NewNop())

	got, err := repo.GetByID(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInvoiceRepository_GetByContentHash(t *testing.T) {
	db := setupDB(t)
	repo := NewInvoiceRepository(db, zap.NewNop())
	ctx := context.Background()

	first := sampleInvoice()
	require.NoError(t, repo.Create(ctx, first))

	second := sampleInvoice()
	second.Filename = "acme-march-resubmit.pdf"
	require.NoError(t, repo.Create(ctx, second))

	got, err := repo.GetByContentHash(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID, "latest submission wins")

	missing, err := repo.GetByContentHash(ctx, "no-such-hash")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInvoiceRepository_List(t *testing.T) {
	db := setupDB(t)
	repo := NewInvoiceRepository(db, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		inv := sampleInvoice()
		inv.ContentHash = "hash-" + string(rune('a'+i))
		require.NoError(t, repo.Create(ctx, inv))
	}

	page, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Greater(t, page[0].ID, page[1].ID, "newest first")

	rest, err := repo.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
}

func TestInvoiceRepository_UpdateApprovalStatus(t *testing.T) {
	db := setupDB(t)
	repo := NewInvoiceRepository(db, zap.NewNop())
	ctx := context.Background()

	invoice := sampleInvoice()
	require.NoError(t, repo.Create(ctx, invoice))

	require.NoError(t, repo.UpdateApprovalStatus(ctx, invoice.ID, entity.StatusApproved))

	got, err := repo.GetByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, got.ApprovalStatus)

	err = repo.UpdateApprovalStatus(ctx, 999, entity.StatusApproved)
	assert.Error(t, err)
}

func sampleApproval(invoiceID int64) *entity.Approval {
	return &entity.Approval{
		InvoiceID:        invoiceID,
		Status:           entity.StatusInProgress,
		Reason:           "Routed for human review",
		DecidedBy:        entity.AutoDecider(),
		ApproverEmail:    "approver@example.com",
		ModelDecision:    "declined",
		ModelConfidence:  floatPtr(0.62),
		PolicyCitations:  []string{"Section 4.2"},
		PreviousCaseRefs: []string{"approval-7"},
	}
}

func createInvoiceAndApproval(t *testing.T, db *sqlite.DB) (*entity.Invoice, *entity.Approval) {
	t.Helper()
	ctx := context.Background()

	invoices := NewInvoiceRepository(db, zap.NewNop())
	approvals := NewApprovalRepository(db, zap.NewNop())

	invoice := sampleInvoice()
	require.NoError(t, invoices.Create(ctx, invoice))

	approval := sampleApproval(invoice.ID)
	require.NoError(t, approvals.Create(ctx, approval))
	return invoice, approval
}

func TestApprovalRepository_CreateAndGet(t *testing.T) {
	db := setupDB(t)
	repo := NewApprovalRepository(db, zap.NewNop())
	ctx := context.Background()

	_, approval := createInvoiceAndApproval(t, db)
	require.NotZero(t, approval.ID)

	got, err := repo.GetByID(ctx, approval.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, approval.InvoiceID, got.InvoiceID)
	assert.Equal(t, entity.StatusInProgress, got.Status)
	assert.Equal(t, entity.AutoDecider(), got.DecidedBy)
	assert.Equal(t, 0.62, *got.ModelConfidence)
	assert.Equal(t, []string{"Section 4.2"}, got.PolicyCitations)
	assert.Equal(t, []string{"approval-7"}, got.PreviousCaseRefs)
	assert.Equal(t, approval.CreatedAt.UTC().Format(auth.TimeFormat), got.CreatedAt.Format(auth.TimeFormat))
}

func TestApprovalRepository_TokenSurvivesRoundTrip(t *testing.T) {
	db := setupDB(t)
	repo := NewApprovalRepository(db, zap.NewNop())
	ctx := context.Background()

	_, approval := createInvoiceAndApproval(t, db)

	authority := auth.NewTokenAuthority("test-secret")
	token := authority.Sign(approval.ID, approval.CreatedAt)
	require.NoError(t, repo.SetLinkToken(ctx, approval.ID, token))

	got, err := repo.GetByID(ctx, approval.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, token, got.LinkToken)
	assert.True(t, authority.Verify(got.ID, got.CreatedAt, got.LinkToken))
}

func TestApprovalRepository_List(t *testing.T) {
	db := setupDB(t)
	repo := NewApprovalRepository(db, zap.NewNop())
	ctx := context.Background()

	invoice, _ := createInvoiceAndApproval(t, db)

	decided := sampleApproval(invoice.ID)
	decided.Status = entity.StatusApproved
	require.NoError(t, repo.Create(ctx, decided))

	all, err := repo.List(ctx, nil, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Greater(t, all[0].ID, all[1].ID, "newest first")

	pending := entity.StatusInProgress
	filtered, err := repo.List(ctx, &pending, 10, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, entity.StatusInProgress, filtered[0].Status)
}

func TestApprovalRepository_UpdateDecision_CAS(t *testing.T) {
	db := setupDB(t)
	repo := NewApprovalRepository(db, zap.NewNop())
	ctx := context.Background()

	_, approval := createInvoiceAndApproval(t, db)

	now := time.Now().UTC()
	applied, err := repo.UpdateDecision(ctx, approval.ID, entity.StatusApproved, "Looks good", entity.HumanDecider("approver@example.com"), now)
	require.NoError(t, err)
	assert.True(t, applied)

	// Second decision loses the race: the row is no longer pending
	applied, err = repo.UpdateDecision(ctx, approval.ID, entity.StatusDeclined, "Second thoughts", entity.HumanDecider("other@example.com"), now)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := repo.GetByID(ctx, approval.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, got.Status)
	assert.Equal(t, "Looks good", got.Reason)
	assert.Equal(t, entity.HumanDecider("approver@example.com"), got.DecidedBy)
}

func TestApprovalRepository_ListPriorHumanCases(t *testing.T) {
	db := setupDB(t)
	repo := NewApprovalRepository(db, zap.NewNop())
	ctx := context.Background()

	invoice, autoApproval := createInvoiceAndApproval(t, db)
	_ = autoApproval // auto-decided rows must not appear as precedent

	olderHuman := sampleApproval(invoice.ID)
	olderHuman.Status = entity.StatusDeclined
	olderHuman.Reason = "Missing receipts"
	olderHuman.DecidedBy = entity.HumanDecider("approver@example.com")
	require.NoError(t, repo.Create(ctx, olderHuman))

	newerHuman := sampleApproval(invoice.ID)
	newerHuman.Status = entity.StatusApproved
	newerHuman.Reason = "Verified with supplier"
	newerHuman.DecidedBy = entity.HumanDecider("approver@example.com")
	require.NoError(t, repo.Create(ctx, newerHuman))

	cases, err := repo.ListPriorHumanCases(ctx, 10)
	require.NoError(t, err)
	require.Len(t, cases, 2)

	assert.Equal(t, "Verified with supplier", cases[0].Reason)
	assert.Equal(t, entity.StatusApproved, cases[0].Status)
	assert.Equal(t, "Acme Corp", *cases[0].SupplierName)
	assert.Equal(t, 125.50, *cases[0].TotalAmount)
	assert.Equal(t, "Missing receipts", cases[1].Reason)

	one, err := repo.ListPriorHumanCases(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "Verified with supplier", one[0].Reason)
}

func TestTransactionManager_RollbackOnError(t *testing.T) {
	db := setupDB(t)
	invoices := NewInvoiceRepository(db, zap.NewNop())
	approvals := NewApprovalRepository(db, zap.NewNop())
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		invoice := sampleInvoice()
		if err := invoices.Create(ctx, invoice); err != nil {
			return err
		}
		if err := approvals.Create(ctx, sampleApproval(invoice.ID)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := invoices.GetByContentHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Nil(t, got, "rollback leaves no invoice behind")

	rows, err := approvals.List(ctx, nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTransactionManager_CommitPersistsPair(t *testing.T) {
	db := setupDB(t)
	invoices := NewInvoiceRepository(db, zap.NewNop())
	approvals := NewApprovalRepository(db, zap.NewNop())
	ctx := context.Background()

	var invoiceID, approvalID int64
	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		invoice := sampleInvoice()
		if err := invoices.Create(ctx, invoice); err != nil {
			return err
		}
		approval := sampleApproval(invoice.ID)
		approval.Status = entity.StatusApproved
		if err := approvals.Create(ctx, approval); err != nil {
			return err
		}
		if err := invoices.UpdateApprovalStatus(ctx, invoice.ID, approval.Status); err != nil {
			return err
		}
		invoiceID, approvalID = invoice.ID, approval.ID
		return nil
	})
	require.NoError(t, err)

	invoice, err := invoices.GetByID(ctx, invoiceID)
	require.NoError(t, err)
	require.NotNil(t, invoice)
	assert.Equal(t, entity.StatusApproved, invoice.ApprovalStatus)

	approval, err := approvals.GetByID(ctx, approvalID)
	require.NoError(t, err)
	require.NotNil(t, approval)
	assert.Equal(t, entity.StatusApproved, approval.Status)
}
