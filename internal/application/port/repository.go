package port

import (
	"context"
	"time"

	"github.com/kaladeofin/invoice-approvals/internal/domain/entity"
)

// InvoiceRepository defines persistence operations for Invoice. Lookups
// return (nil, nil) when no row matches.
type InvoiceRepository interface {
	// Create inserts a new invoice and assigns its ID
	Create(ctx context.Context, invoice *entity.Invoice) error

	// GetByID retrieves an invoice by its ID
	GetByID(ctx context.Context, id int64) (*entity.Invoice, error)

	// GetByContentHash retrieves an invoice by its content hash (dedupe key)
	GetByContentHash(ctx context.Context, hash string) (*entity.Invoice, error)

	// List retrieves invoices newest-first with pagination
	List(ctx context.Context, limit, offset int) ([]*entity.Invoice, error)

	// UpdateApprovalStatus repoints the denormalized status mirror
	UpdateApprovalStatus(ctx context.Context, id int64, status entity.Status) error
}

// ApprovalRepository defines persistence operations for Approval. Approval
// rows are append-only audit entries: there is no delete.
type ApprovalRepository interface {
	// Create inserts a new approval and assigns its ID
	Create(ctx context.Context, approval *entity.Approval) error

	// SetLinkToken stores the token derived from the assigned ID and
	// creation time
	SetLinkToken(ctx context.Context, id int64, token string) error

	// GetByID retrieves an approval by its ID, (nil, nil) when absent
	GetByID(ctx context.Context, id int64) (*entity.Approval, error)

	// List retrieves approvals newest-first, optionally filtered by status
	List(ctx context.Context, status *entity.Status, limit, offset int) ([]*entity.Approval, error)

	// UpdateDecision resolves a pending approval. The update is a
	// compare-and-swap on status: it only applies while the row is still
	// approval_inprogress, and the bool reports whether it did. Concurrent
	// callers racing on the same approval see at most one true.
	UpdateDecision(ctx context.Context, id int64, status entity.Status, reason string, decidedBy entity.DecidedBy, updatedAt time.Time) (bool, error)

	// ListPriorHumanCases returns recent human-decided approvals joined
	// with their invoice context, newest-first
	ListPriorHumanCases(ctx context.Context, limit int) ([]*entity.PriorCase, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
