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

// ApprovalRepository implements port.ApprovalRepository using SQLite
type ApprovalRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sqlite.DB, logger *zap.Logger) *ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ApprovalRepository) getExecutor(ctx context.Context) executor {
	if tx := sqlite.ExtractTx(ctx); tx != nil {
		return tx
	}
	return r.db.DB
}

// Create inserts a new approval row and assigns its ID. The link token is
// set afterwards because it is derived from the assigned ID.
func (r *ApprovalRepository) Create(ctx context.Context, approval *entity.Approval) error {
	citations, err := json.Marshal(approval.PolicyCitations)
	if err != nil {
		return fmt.Errorf("failed to marshal policy citations: %w", err)
	}
	caseRefs, err := json.Marshal(approval.PreviousCaseRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal previous case refs: %w", err)
	}

	now := time.Now().UTC()
	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = now
	}
	if approval.UpdatedAt.IsZero() {
		approval.UpdatedAt = approval.CreatedAt
	}

	query := `
		INSERT INTO approvals (
			invoice_id, status, reason, decided_by, approver_email,
			model_decision, model_confidence, policy_citations,
			previous_case_refs, link_token, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		approval.InvoiceID,
		approval.Status.String(),
		approval.Reason,
		approval.DecidedBy.String(),
		approval.ApproverEmail,
		approval.ModelDecision,
		approval.ModelConfidence,
		string(citations),
		string(caseRefs),
		approval.LinkToken,
		approval.CreatedAt.UTC().Format(auth.TimeFormat),
		approval.UpdatedAt.UTC().Format(auth.TimeFormat),
	)
	if err != nil {
		r.logger.Error("Failed to create approval", zap.Error(err), zap.Int64("invoice_id", approval.InvoiceID))
		return fmt.Errorf("failed to create approval: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get approval id: %w", err)
	}
	approval.ID = id

	return nil
}

// SetLinkToken stores the token derived from the assigned ID and creation
// time.
func (r *ApprovalRepository) SetLinkToken(ctx context.Context, id int64, token string) error {
	query := `UPDATE approvals SET link_token = ? WHERE id = ?`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, token, id)
	if err != nil {
		return fmt.Errorf("failed to set link token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("approval %d not found", id)
	}
	return nil
}

// GetByID retrieves an approval by its ID, (nil, nil) when absent.
func (r *ApprovalRepository) GetByID(ctx context.Context, id int64) (*entity.Approval, error) {
	query := `
		SELECT id, invoice_id, status, reason, decided_by, approver_email,
		       model_decision, model_confidence, policy_citations,
		       previous_case_refs, link_token, created_at, updated_at
		FROM approvals
		WHERE id = ?
	`

	approval, err := r.scanApproval(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return approval, nil
}

// List retrieves approvals newest-first, optionally filtered by status.
func (r *ApprovalRepository) List(ctx context.Context, status *entity.Status, limit, offset int) ([]*entity.Approval, error) {
	query := `
		SELECT id, invoice_id, status, reason, decided_by, approver_email,
		       model_decision, model_confidence, policy_citations,
		       previous_case_refs, link_token, created_at, updated_at
		FROM approvals
	`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, status.String())
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*entity.Approval
	for rows.Next() {
		approval, err := r.scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, approval)
	}
	return approvals, rows.Err()
}

// UpdateDecision resolves a pending approval. The WHERE clause is a
// compare-and-swap on status: only a row still approval_inprogress is
// updated, so concurrent deciders racing on the same approval see at most
// one true.
func (r *ApprovalRepository) UpdateDecision(ctx context.Context, id int64, status entity.Status, reason string, decidedBy entity.DecidedBy, updatedAt time.Time) (bool, error) {
	query := `
		UPDATE approvals
		SET status = ?, reason = ?, decided_by = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		status.String(),
		reason,
		decidedBy.String(),
		updatedAt.UTC().Format(auth.TimeFormat),
		id,
		entity.StatusInProgress.String(),
	)
	if err != nil {
		r.logger.Error("Failed to update approval decision",
			zap.Error(err), zap.Int64("approval_id", id), zap.String("status", status.String()))
		return false, fmt.Errorf("failed to update approval decision: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListPriorHumanCases returns recent human-decided approvals joined with
// their invoice context, newest-first. These are fed to the classifier as
// precedent.
func (r *ApprovalRepository) ListPriorHumanCases(ctx context.Context, limit int) ([]*entity.PriorCase, error) {
	query := `
		SELECT a.reason, a.status, i.supplier_name, i.total_amount, i.currency
		FROM approvals a
		JOIN invoices i ON i.id = a.invoice_id
		WHERE a.decided_by LIKE 'human:%'
		ORDER BY a.id DESC
		LIMIT ?
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list prior human cases: %w", err)
	}
	defer rows.Close()

	var cases []*entity.PriorCase
	for rows.Next() {
		var (
			c            entity.PriorCase
			status       string
			supplierName sql.NullString
			totalAmount  sql.NullFloat64
		)
		if err := rows.Scan(&c.Reason, &status, &supplierName, &totalAmount, &c.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan prior case: %w", err)
		}
		c.Status = entity.Status(status)
		if supplierName.Valid {
			c.SupplierName = &supplierName.String
		}
		if totalAmount.Valid {
			c.TotalAmount = &totalAmount.Float64
		}
		cases = append(cases, &c)
	}
	return cases, rows.Err()
}

func (r *ApprovalRepository) scanApproval(row scanner) (*entity.Approval, error) {
	var (
		approval   entity.Approval
		status     string
		decidedBy  string
		confidence sql.NullFloat64
		citations  string
		caseRefs   string
		linkToken  sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := row.Scan(
		&approval.ID,
		&approval.InvoiceID,
		&status,
		&approval.Reason,
		&decidedBy,
		&approval.ApproverEmail,
		&approval.ModelDecision,
		&confidence,
		&citations,
		&caseRefs,
		&linkToken,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	approval.Status = entity.Status(status)
	approval.DecidedBy = entity.ParseDecidedBy(decidedBy)
	if confidence.Valid {
		approval.ModelConfidence = &confidence.Float64
	}
	if citations != "" {
		if err := json.Unmarshal([]byte(citations), &approval.PolicyCitations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal policy citations: %w", err)
		}
	}
	if caseRefs != "" {
		if err := json.Unmarshal([]byte(caseRefs), &approval.PreviousCaseRefs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal previous case refs: %w", err)
		}
	}
	approval.LinkToken = linkToken.String
	approval.CreatedAt, err = time.Parse(auth.TimeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	approval.UpdatedAt, err = time.Parse(auth.TimeFormat, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &approval, nil
}

// Verify interface compliance
var _ port.ApprovalRepository = (*ApprovalRepository)(nil)
