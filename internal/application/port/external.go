package port

import (
	"context"
	"time"

	"github.com/kaladeofin/invoice-approvals/internal/domain/entity"
)

// ClassificationInput is the context handed to the external classifier: the
// invoice snapshot, the evaluation time, the prior human-decided cases, and
// the routing context derived from the amount.
type ClassificationInput struct {
	Invoice      *entity.Invoice
	EvaluatedAt  time.Time
	PriorCases   []*entity.PriorCase
	ApprovalTier string
	ApproverName string
}

// DecisionClassifier is the external classification capability. The
// recommendation is probabilistic and possibly unreliable; callers must
// treat an error as "defer to human review", never as a decline.
type DecisionClassifier interface {
	Propose(ctx context.Context, input ClassificationInput) (entity.RawProposal, error)
}

// ApprovalNotification carries everything the notification collaborator
// needs to reach the approver, including the signed link token.
type ApprovalNotification struct {
	ApprovalID      int64
	Invoice         *entity.Invoice
	EffectiveStatus entity.Status
	Reason          string
	ModelDecision   entity.Status
	ModelConfidence *float64
	Citations       []string
	ApproverName    string
	ApproverEmail   string
	Token           string
}

// Notifier delivers the human-review request. Delivery failure is logged by
// the caller and never fails the workflow.
type Notifier interface {
	SendApprovalRequest(ctx context.Context, notification ApprovalNotification) error
}
