package policy

import (
	"strings"
	"time"

	"github.com/kaladeofin/invoice-approvals/internal/domain/entity"
	"go.uber.org/zap"
)

// reasonDisallowedKeywords disqualify auto-approval when the classifier's
// reason mentions alcohol or an explicit policy breach.
var reasonDisallowedKeywords = []string{
	"alcohol", "beer", "wine", "vodka", "whiskey", "whisky", "rum", "gin",
	"tequila", "liqueur", "spirits", "liquor", "champagne", "disallowed",
	"malt", "bira", "absolut", "prohibited", "violates policy",
}

// lineItemDisallowedKeywords disqualify auto-approval when a line item
// belongs to a blocked purchase category.
var lineItemDisallowedKeywords = []string{
	"weapon", "firearm", "knife", "gambling", "casino", "lottery",
}

// Effective is the decision after the deterministic stages: the status that
// will actually be persisted and the reason that accompanies it. The raw
// classifier fields are carried separately for audit.
type Effective struct {
	Status entity.Status
	Reason string
}

// AutoApprovalGate deterministically promotes qualifying low-value invoices
// to approved, overriding the classifier's recommendation. The promotion is
// one-way: the gate never demotes a proposal, and it never acts when the
// amount is unknown or above the limit.
type AutoApprovalGate struct {
	cfg    Config
	logger *zap.Logger
}

// NewAutoApprovalGate creates a gate with the given thresholds.
func NewAutoApprovalGate(cfg Config, logger *zap.Logger) *AutoApprovalGate {
	return &AutoApprovalGate{cfg: cfg, logger: logger}
}

// passthrough normalizes the raw proposal into an effective decision
// without gate involvement. A malformed decision defers to human review.
func passthrough(proposal entity.RawProposal) Effective {
	status := proposal.Decision
	if !status.IsValid() {
		status = entity.StatusInProgress
	}
	return Effective{Status: status, Reason: proposal.ReasonText()}
}

// Apply evaluates the gate. The returned bool reports whether the gate
// fired; when it did not, the proposal passes through unchanged.
func (g *AutoApprovalGate) Apply(invoice *entity.Invoice, proposal entity.RawProposal, now time.Time) (Effective, bool) {
	if invoice.TotalAmount == nil || *invoice.TotalAmount > g.cfg.AutoApproveLimit {
		return passthrough(proposal), false
	}
	amount := *invoice.TotalAmount

	if reason, ok := g.disqualified(invoice, proposal, now); ok {
		g.logger.Info("Auto-approval blocked",
			zap.Int64("invoice_id", invoice.ID),
			zap.Float64("amount", amount),
			zap.String("cause", reason))
		return passthrough(proposal), false
	}

	g.logger.Info("Auto-approving invoice",
		zap.Int64("invoice_id", invoice.ID),
		zap.Float64("amount", amount))

	reason := "Invoice amount (" + FormatAmount(amount) + ") is within auto-approval threshold (≤ " +
		FormatAmount(g.cfg.AutoApproveLimit) + "). All policy requirements met: supplier verified, " +
		"invoice date within 180 days, no disallowed items."
	return Effective{Status: entity.StatusApproved, Reason: reason}, true
}

// disqualified checks every gate disqualifier; any single hit blocks the
// promotion. The returned string names the cause for logging.
func (g *AutoApprovalGate) disqualified(invoice *entity.Invoice, proposal entity.RawProposal, now time.Time) (string, bool) {
	if proposal.Decision == entity.StatusDeclined {
		return "classifier declined", true
	}

	for _, citation := range proposal.Citations {
		if strings.Contains(strings.ToLower(citation), "alcohol") {
			return "alcohol policy citation", true
		}
	}

	if reason := strings.ToLower(proposal.ReasonText()); reason != "" {
		for _, keyword := range reasonDisallowedKeywords {
			if strings.Contains(reason, keyword) {
				return "classifier reason mentions disallowed content", true
			}
		}
	}

	for _, item := range invoice.LineItems {
		description := strings.ToLower(item.Description)
		for _, keyword := range lineItemDisallowedKeywords {
			if strings.Contains(description, keyword) {
				return "disallowed line item: " + item.Description, true
			}
		}
	}

	if invoice.SupplierName == nil || strings.TrimSpace(*invoice.SupplierName) == "" {
		return "missing supplier name", true
	}
	if len(invoice.LineItems) == 0 {
		return "no line items", true
	}
	if invoice.InvoiceDate == nil {
		return "missing invoice date", true
	}
	if now.Sub(*invoice.InvoiceDate) > time.Duration(g.cfg.StaleInvoiceDays)*24*time.Hour {
		return "invoice date older than stale window", true
	}

	return "", false
}
