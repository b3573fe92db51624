package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kaladeofin/invoice-approvals/internal/application/port"
	"github.com/kaladeofin/invoice-approvals/internal/auth"
	"github.com/kaladeofin/invoice-approvals/internal/domain/entity"
	"github.com/kaladeofin/invoice-approvals/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// dateFormat is the storage form of the invoice date. Only the calendar day
// matters for staleness checks.
const dateFormat = "2006-01-02"

// executor abstracts sql.DB and sql.Tx so a repository call participates in
// whichever transaction the context carries.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// InvoiceRepository implements port.InvoiceRepository using SQLite
type InvoiceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sqlite.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

func (r *InvoiceRepository) getExecutor(ctx context.Context) executor {
	if tx := sqlite.ExtractTx(ctx); tx != nil {
		return tx
	}
	return r.db.DB
}

// Create inserts a new invoice and assigns its ID.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) error {
	lineItems, err := json.Marshal(invoice.LineItems)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}

	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO invoices (
			filename, supplier_name, invoice_date, total_amount, currency,
			line_items, submitter_name, submitter_email, submitter_team,
			business_reason, content_hash, approval_status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var invoiceDate interface{}
	if invoice.InvoiceDate != nil {
		invoiceDate = invoice.InvoiceDate.Format(dateFormat)
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		invoice.Filename,
		invoice.SupplierName,
		invoiceDate,
		invoice.TotalAmount,
		invoice.Currency,
		string(lineItems),
		invoice.SubmitterName,
		invoice.SubmitterEmail,
		invoice.SubmitterTeam,
		invoice.BusinessReason,
		invoice.ContentHash,
		invoice.ApprovalStatus.String(),
		invoice.CreatedAt.UTC().Format(auth.TimeFormat),
	)
	if err != nil {
		r.logger.Error("Failed to create invoice", zap.Error(err), zap.String("filename", invoice.Filename))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get invoice id: %w", err)
	}
	invoice.ID = id

	return nil
}

// GetByID retrieves an invoice by its ID, (nil, nil) when absent.
func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	query := `
		SELECT id, filename, supplier_name, invoice_date, total_amount, currency,
		       line_items, submitter_name, submitter_email, submitter_team,
		       business_reason, content_hash, approval_status, created_at
		FROM invoices
		WHERE id = ?
	`

	invoice, err := r.scanInvoice(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return invoice, nil
}

// GetByContentHash retrieves an invoice by its content hash, (nil, nil)
// when absent. The hash is the ingestion dedupe key.
func (r *InvoiceRepository) GetByContentHash(ctx context.Context, hash string) (*entity.Invoice, error) {
	query := `
		SELECT id, filename, supplier_name, invoice_date, total_amount, currency,
		       line_items, submitter_name, submitter_email, submitter_team,
		       business_reason, content_hash, approval_status, created_at
		FROM invoices
		WHERE content_hash = ?
		ORDER BY id DESC
		LIMIT 1
	`

	invoice, err := r.scanInvoice(r.getExecutor(ctx).QueryRowContext(ctx, query, hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice by content hash: %w", err)
	}
	return invoice, nil
}

// List retrieves invoices newest-first with pagination.
func (r *InvoiceRepository) List(ctx context.Context, limit, offset int) ([]*entity.Invoice, error) {
	query := `
		SELECT id, filename, supplier_name, invoice_date, total_amount, currency,
		       line_items, submitter_name, submitter_email, submitter_team,
		       business_reason, content_hash, approval_status, created_at
		FROM invoices
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*entity.Invoice
	for rows.Next() {
		invoice, err := r.scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

// UpdateApprovalStatus repoints the denormalized status mirror.
func (r *InvoiceRepository) UpdateApprovalStatus(ctx context.Context, id int64, status entity.Status) error {
	query := `UPDATE invoices SET approval_status = ? WHERE id = ?`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, status.String(), id)
	if err != nil {
		r.logger.Error("Failed to update invoice approval status",
			zap.Error(err), zap.Int64("invoice_id", id), zap.String("status", status.String()))
		return fmt.Errorf("failed to update invoice approval status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("invoice %d not found", id)
	}
	return nil
}

// scanner covers sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *InvoiceRepository) scanInvoice(row scanner) (*entity.Invoice, error) {
	var (
		invoice      entity.Invoice
		supplierName sql.NullString
		invoiceDate  sql.NullString
		totalAmount  sql.NullFloat64
		lineItems    string
		status       string
		createdAt    string
	)

	err := row.Scan(
		&invoice.ID,
		&invoice.Filename,
		&supplierName,
		&invoiceDate,
		&totalAmount,
		&invoice.Currency,
		&lineItems,
		&invoice.SubmitterName,
		&invoice.SubmitterEmail,
		&invoice.SubmitterTeam,
		&invoice.BusinessReason,
		&invoice.ContentHash,
		&status,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if supplierName.Valid {
		invoice.SupplierName = &supplierName.String
	}
	if invoiceDate.Valid && invoiceDate.String != "" {
		d, err := time.Parse(dateFormat, invoiceDate.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse invoice date: %w", err)
		}
		invoice.InvoiceDate = &d
	}
	if totalAmount.Valid {
		invoice.TotalAmount = &totalAmount.Float64
	}
	if lineItems != "" {
		if err := json.Unmarshal([]byte(lineItems), &invoice.LineItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal line items: %w", err)
		}
	}
	invoice.ApprovalStatus = entity.Status(status)
	invoice.CreatedAt, err = time.Parse(auth.TimeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return &invoice, nil
}

// Verify interface compliance
var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
