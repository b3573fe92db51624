// Package workflow orchestrates one approval run for a freshly ingested
// invoice: classification, the deterministic policy stages, lifecycle
// creation and, for pending outcomes, approver notification.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kaladeofin/invoice-approvals/internal/application/port"
	"github.com/kaladeofin/invoice-approvals/internal/domain/entity"
	"github.com/kaladeofin/invoice-approvals/internal/policy"
	"go.uber.org/zap"
)

// priorCaseLimit caps how many precedent cases are fed to the classifier.
const priorCaseLimit = 5

// ApprovalCreator persists a new approval with its invoice mirror.
type ApprovalCreator interface {
	Create(ctx context.Context, approval *entity.Approval) error
}

// PriorCaseSource supplies human-decided precedent for the classifier.
type PriorCaseSource interface {
	ListPriorHumanCases(ctx context.Context, limit int) ([]*entity.PriorCase, error)
}

// Engine runs the decision pipeline for one invoice.
type Engine struct {
	classifier port.DecisionClassifier
	priorCases PriorCaseSource
	approvals  ApprovalCreator
	notifier   port.Notifier
	gate       *policy.AutoApprovalGate
	overrides  *policy.OverridePolicyEngine
	cfg        policy.Config
	approvers  policy.Approvers
	logger     *zap.Logger
}

// NewEngine creates a new workflow engine
func NewEngine(
	classifier port.DecisionClassifier,
	priorCases PriorCaseSource,
	approvals ApprovalCreator,
	notifier port.Notifier,
	cfg policy.Config,
	approvers policy.Approvers,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		classifier: classifier,
		priorCases: priorCases,
		approvals:  approvals,
		notifier:   notifier,
		gate:       policy.NewAutoApprovalGate(cfg, logger),
		overrides:  policy.NewOverridePolicyEngine(cfg, logger),
		cfg:        cfg,
		approvers:  approvers,
		logger:     logger,
	}
}

// Run takes a persisted invoice through classification and the policy
// stages, creates the resulting approval and notifies the approver when the
// outcome is pending. A classifier failure degrades to a pending approval;
// only persistence failures are returned to the caller.
func (e *Engine) Run(ctx context.Context, invoice *entity.Invoice) (*entity.Approval, error) {
	runID := uuid.NewString()
	log := e.logger.With(zap.String("run_id", runID), zap.Int64("invoice_id", invoice.ID))
	log.Info("Starting approval run")

	tier := e.cfg.TierFor(invoice.TotalAmount)
	approver := e.approvers.For(tier)

	cases, err := e.priorCases.ListPriorHumanCases(ctx, priorCaseLimit)
	if err != nil {
		// Precedent is advisory context, never required
		log.Warn("Failed to load prior cases", zap.Error(err))
		cases = nil
	}

	now := time.Now().UTC()

	var effective policy.Effective
	proposal, err := e.classifier.Propose(ctx, port.ClassificationInput{
		Invoice:      invoice,
		EvaluatedAt:  now,
		PriorCases:   cases,
		ApprovalTier: tier.String(),
		ApproverName: approver.Name,
	})
	if err != nil {
		// Without analysis the policy stages have nothing to stand on, so
		// the invoice goes straight to human review.
		log.Warn("Classifier unavailable, routing for human review", zap.Error(err))
		reason := fmt.Sprintf("Automatic analysis unavailable (%v). Routed for human review.", err)
		proposal = entity.RawProposal{Decision: entity.StatusInProgress, Reason: &reason}
		effective = policy.Effective{Status: entity.StatusInProgress, Reason: reason}
	} else {
		var fired bool
		effective, fired = e.gate.Apply(invoice, proposal, now)
		if fired {
			log.Info("Auto-approval gate fired")
		}
		effective = e.overrides.Apply(invoice, proposal, effective)
	}

	approval := &entity.Approval{
		InvoiceID:        invoice.ID,
		Status:           effective.Status,
		Reason:           effective.Reason,
		DecidedBy:        entity.AutoDecider(),
		ModelDecision:    string(proposal.Decision),
		ModelConfidence:  proposal.Confidence,
		PolicyCitations:  proposal.Citations,
		PreviousCaseRefs: caseRefs(cases),
	}
	if effective.Status == entity.StatusInProgress {
		approval.ApproverEmail = approver.Email
	}

	if err := e.approvals.Create(ctx, approval); err != nil {
		return nil, err
	}

	log.Info("Approval run completed",
		zap.Int64("approval_id", approval.ID),
		zap.String("status", approval.Status.String()))

	if approval.Status == entity.StatusInProgress {
		e.notify(ctx, log, invoice, approval, effective, proposal, approver)
	}

	return approval, nil
}

// notify sends the review request. Delivery failure is logged and swallowed
// so the approval outcome stands regardless.
func (e *Engine) notify(ctx context.Context, log *zap.Logger, invoice *entity.Invoice, approval *entity.Approval, effective policy.Effective, proposal entity.RawProposal, approver policy.Approver) {
	err := e.notifier.SendApprovalRequest(ctx, port.ApprovalNotification{
		ApprovalID:      approval.ID,
		Invoice:         invoice,
		EffectiveStatus: effective.Status,
		Reason:          effective.Reason,
		ModelDecision:   proposal.Decision,
		ModelConfidence: proposal.Confidence,
		Citations:       proposal.Citations,
		ApproverName:    approver.Name,
		ApproverEmail:   approver.Email,
		Token:           approval.LinkToken,
	})
	if err != nil {
		log.Warn("Failed to notify approver",
			zap.Int64("approval_id", approval.ID),
			zap.Error(err))
	}
}

func caseRefs(cases []*entity.PriorCase) []string {
	refs := make([]string, 0, len(cases))
	for _, c := range cases {
		supplier := "unknown supplier"
		if c.SupplierName != nil {
			supplier = *c.SupplierName
		}
		amount := "unknown amount"
		if c.TotalAmount != nil {
			amount = fmt.Sprintf("%.2f %s", *c.TotalAmount, c.Currency)
		}
		refs = append(refs, fmt.Sprintf("%s (%s): %s", supplier, amount, c.Status))
	}
	return refs
}
