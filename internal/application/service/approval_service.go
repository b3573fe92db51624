package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kaladeofin/invoice-approvals/internal/application/port"
	"github.com/kaladeofin/invoice-approvals/internal/auth"
	"github.com/kaladeofin/invoice-approvals/internal/domain/entity"
	"github.com/kaladeofin/invoice-approvals/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ReviewContext is everything a reviewer needs to render the decision
// surface: the pending approval with the effective outcome, and the invoice
// it covers.
type ReviewContext struct {
	Approval *entity.Approval
	Invoice  *entity.Invoice
}

// ApprovalService manages the approval lifecycle
type ApprovalService interface {
	// Create persists a new approval row together with the invoice
	// mirror update, and derives the link token from the assigned ID.
	Create(ctx context.Context, approval *entity.Approval) error

	// Get retrieves an approval by ID
	Get(ctx context.Context, id int64) (*entity.Approval, error)

	// List retrieves approvals newest-first, optionally by status
	List(ctx context.Context, status *entity.Status, limit, offset int) ([]*entity.Approval, error)

	// Review authenticates the link token and returns the review context
	Review(ctx context.Context, id int64, token string) (*ReviewContext, error)

	// Decide applies a human decision to a pending approval
	Decide(ctx context.Context, id int64, token, action, justification, approverIdentity string) (*entity.Approval, error)
}

type approvalServiceImpl struct {
	approvalRepo port.ApprovalRepository
	invoiceRepo  port.InvoiceRepository
	txManager    port.TransactionManager
	tokens       *auth.TokenAuthority
	logger       Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	approvalRepo port.ApprovalRepository,
	invoiceRepo port.InvoiceRepository,
	txManager port.TransactionManager,
	tokens *auth.TokenAuthority,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		approvalRepo: approvalRepo,
		invoiceRepo:  invoiceRepo,
		txManager:    txManager,
		tokens:       tokens,
		logger:       logger,
	}
}

// Create persists the approval row, its link token and the invoice status
// mirror in one transaction, so an invoice is never observable with a
// status that disagrees with its latest approval.
func (s *approvalServiceImpl) Create(ctx context.Context, approval *entity.Approval) error {
	if !approval.Status.IsValid() {
		return fmt.Errorf("invalid approval status %q", approval.Status)
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.approvalRepo.Create(txCtx, approval); err != nil {
			return fmt.Errorf("create approval: %w", err)
		}

		// The token binds to the row identity assigned by the insert
		approval.LinkToken = s.tokens.Sign(approval.ID, approval.CreatedAt)
		if err := s.approvalRepo.SetLinkToken(txCtx, approval.ID, approval.LinkToken); err != nil {
			return fmt.Errorf("set link token: %w", err)
		}

		if err := s.invoiceRepo.UpdateApprovalStatus(txCtx, approval.InvoiceID, approval.Status); err != nil {
			return fmt.Errorf("update invoice mirror: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create approval", "invoice_id", approval.InvoiceID, "error", err)
		return err
	}

	s.logger.Info("Approval created",
		"approval_id", approval.ID,
		"invoice_id", approval.InvoiceID,
		"status", approval.Status.String(),
		"decided_by", approval.DecidedBy.String())
	return nil
}

// Get retrieves an approval by ID
func (s *approvalServiceImpl) Get(ctx context.Context, id int64) (*entity.Approval, error) {
	approval, err := s.approvalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if approval == nil {
		return nil, ErrApprovalNotFound
	}
	return approval, nil
}

// List retrieves approvals newest-first, optionally by status
func (s *approvalServiceImpl) List(ctx context.Context, status *entity.Status, limit, offset int) ([]*entity.Approval, error) {
	return s.approvalRepo.List(ctx, status, limit, offset)
}

// Review authenticates the link token and returns the review context. The
// token is checked before anything about the approval is revealed.
func (s *approvalServiceImpl) Review(ctx context.Context, id int64, token string) (*ReviewContext, error) {
	approval, err := s.approvalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if approval == nil {
		return nil, ErrApprovalNotFound
	}
	if !s.tokens.Verify(approval.ID, approval.CreatedAt, token) {
		s.logger.Info("Review rejected, token mismatch", "approval_id", id)
		return nil, ErrTokenMismatch
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, approval.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, ErrInvoiceNotFound
	}

	return &ReviewContext{Approval: approval, Invoice: invoice}, nil
}

// Decide applies a human decision to a pending approval. The status update
// is a compare-and-swap: when two deciders race, exactly one wins and the
// loser gets ErrAlreadyDecided with no mutation.
func (s *approvalServiceImpl) Decide(ctx context.Context, id int64, token, action, justification, approverIdentity string) (*entity.Approval, error) {
	approval, err := s.approvalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if approval == nil {
		return nil, ErrApprovalNotFound
	}
	if !s.tokens.Verify(approval.ID, approval.CreatedAt, token) {
		s.logger.Info("Decision rejected, token mismatch", "approval_id", id)
		return nil, ErrTokenMismatch
	}
	if approval.Status.IsTerminal() {
		return nil, ErrAlreadyDecided
	}

	trigger, ok := workflow.ParseTrigger(action)
	if !ok {
		return nil, ErrInvalidAction
	}
	if justification == "" {
		return nil, ErrEmptyJustification
	}

	machine, err := workflow.NewApprovalMachine(workflow.State(approval.Status))
	if err != nil {
		return nil, err
	}
	if err := machine.Fire(trigger); err != nil {
		return nil, ErrAlreadyDecided
	}

	newStatus := machine.State().Status()
	decidedBy := entity.HumanDecider(approverIdentity)
	now := time.Now().UTC()

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		applied, err := s.approvalRepo.UpdateDecision(txCtx, id, newStatus, justification, decidedBy, now)
		if err != nil {
			return fmt.Errorf("update decision: %w", err)
		}
		if !applied {
			return ErrAlreadyDecided
		}
		if err := s.invoiceRepo.UpdateApprovalStatus(txCtx, approval.InvoiceID, newStatus); err != nil {
			return fmt.Errorf("update invoice mirror: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	approval.Status = newStatus
	approval.Reason = justification
	approval.DecidedBy = decidedBy
	approval.UpdatedAt = now

	s.logger.Info("Approval decided",
		"approval_id", id,
		"status", newStatus.String(),
		"decided_by", decidedBy.String())
	return approval, nil
}
