package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kaladeofin/invoice-approvals/internal/application/port"
	"github.com/kaladeofin/invoice-approvals/internal/domain/entity"
	"github.com/kaladeofin/invoice-approvals/internal/policy"
)

// InvoiceSubmission is the payload accepted at ingestion.
type InvoiceSubmission struct {
	Filename       string            `json:"filename"`
	SupplierName   *string           `json:"supplier_name"`
	InvoiceDate    *time.Time        `json:"invoice_date"`
	TotalAmount    *float64          `json:"total_amount"`
	Currency       string            `json:"currency"`
	LineItems      []entity.LineItem `json:"line_items"`
	SubmitterName  string            `json:"submitter_name"`
	SubmitterEmail string            `json:"submitter_email"`
	SubmitterTeam  string            `json:"submitter_team"`
	BusinessReason string            `json:"business_reason"`
}

// SubmissionResult reports what ingestion did. Duplicate submissions return
// the previously stored invoice without starting a new approval run.
type SubmissionResult struct {
	Invoice   *entity.Invoice
	Approval  *entity.Approval
	Duplicate bool
}

// WorkflowRunner runs the decision pipeline for a persisted invoice.
type WorkflowRunner interface {
	Run(ctx context.Context, invoice *entity.Invoice) (*entity.Approval, error)
}

// IngestService accepts invoice submissions and guarantees every stored
// invoice ends up with at least one approval row.
type IngestService interface {
	Submit(ctx context.Context, sub InvoiceSubmission) (*SubmissionResult, error)

	// StartApproval reruns the decision pipeline on a stored invoice.
	// Each run appends a new approval row and repoints the mirror.
	StartApproval(ctx context.Context, invoiceID int64) (*entity.Approval, error)

	Get(ctx context.Context, id int64) (*entity.Invoice, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Invoice, error)
}

type ingestServiceImpl struct {
	invoiceRepo port.InvoiceRepository
	approvals   ApprovalService
	runner      WorkflowRunner
	policyCfg   policy.Config
	approvers   policy.Approvers
	logger      Logger
}

// NewIngestService creates a new IngestService
func NewIngestService(
	invoiceRepo port.InvoiceRepository,
	approvals ApprovalService,
	runner WorkflowRunner,
	policyCfg policy.Config,
	approvers policy.Approvers,
	logger Logger,
) IngestService {
	return &ingestServiceImpl{
		invoiceRepo: invoiceRepo,
		approvals:   approvals,
		runner:      runner,
		policyCfg:   policyCfg,
		approvers:   approvers,
		logger:      logger,
	}
}

// Submit stores a new invoice and runs the approval pipeline on it. A
// resubmission with identical content returns the stored invoice instead of
// producing another approval run.
func (s *ingestServiceImpl) Submit(ctx context.Context, sub InvoiceSubmission) (*SubmissionResult, error) {
	hash := contentHash(sub)

	existing, err := s.invoiceRepo.GetByContentHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Info("Duplicate submission", "invoice_id", existing.ID, "content_hash", hash)
		return &SubmissionResult{Invoice: existing, Duplicate: true}, nil
	}

	entity.ReconcileLineItems(sub.LineItems)

	currency := sub.Currency
	if currency == "" {
		currency = "USD"
	}

	invoice := &entity.Invoice{
		Filename:       sub.Filename,
		SupplierName:   sub.SupplierName,
		InvoiceDate:    sub.InvoiceDate,
		TotalAmount:    sub.TotalAmount,
		Currency:       currency,
		LineItems:      sub.LineItems,
		SubmitterName:  sub.SubmitterName,
		SubmitterEmail: sub.SubmitterEmail,
		SubmitterTeam:  sub.SubmitterTeam,
		BusinessReason: sub.BusinessReason,
		ContentHash:    hash,
		ApprovalStatus: entity.StatusInProgress,
	}
	if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	approval, err := s.runner.Run(ctx, invoice)
	if err != nil {
		// The invoice is already stored, so it must still get an
		// approval row: fall back to a pending record carrying the
		// failure as its reason.
		s.logger.Error("Approval run failed, writing pending fallback", "invoice_id", invoice.ID, "error", err)
		approval, err = s.fallbackApproval(ctx, invoice, err)
		if err != nil {
			return nil, err
		}
	}

	invoice.ApprovalStatus = approval.Status
	return &SubmissionResult{Invoice: invoice, Approval: approval}, nil
}

// StartApproval reruns the decision pipeline on a stored invoice. The same
// fallback applies: a failed run still produces a pending approval row.
func (s *ingestServiceImpl) StartApproval(ctx context.Context, invoiceID int64) (*entity.Approval, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, ErrInvoiceNotFound
	}

	s.logger.Info("Restarting approval run", "invoice_id", invoiceID)

	approval, err := s.runner.Run(ctx, invoice)
	if err != nil {
		s.logger.Error("Approval rerun failed, writing pending fallback", "invoice_id", invoiceID, "error", err)
		return s.fallbackApproval(ctx, invoice, err)
	}
	return approval, nil
}

func (s *ingestServiceImpl) fallbackApproval(ctx context.Context, invoice *entity.Invoice, cause error) (*entity.Approval, error) {
	tier := s.policyCfg.TierFor(invoice.TotalAmount)
	approval := &entity.Approval{
		InvoiceID:     invoice.ID,
		Status:        entity.StatusInProgress,
		Reason:        fmt.Sprintf("Automatic processing failed (%v). Routed for human review.", cause),
		DecidedBy:     entity.SystemErrorDecider(),
		ApproverEmail: s.approvers.For(tier).Email,
	}
	if err := s.approvals.Create(ctx, approval); err != nil {
		return nil, fmt.Errorf("create fallback approval: %w", err)
	}
	return approval, nil
}

// Get retrieves an invoice by ID
func (s *ingestServiceImpl) Get(ctx context.Context, id int64) (*entity.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, ErrInvoiceNotFound
	}
	return invoice, nil
}

// List retrieves invoices newest-first
func (s *ingestServiceImpl) List(ctx context.Context, limit, offset int) ([]*entity.Invoice, error) {
	return s.invoiceRepo.List(ctx, limit, offset)
}

// contentHash derives the dedupe key from the submission content. The hash
// covers the canonical JSON encoding, so a byte-identical resubmission maps
// to the same key regardless of when it arrives.
func contentHash(sub InvoiceSubmission) string {
	raw, _ := json.Marshal(sub)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
