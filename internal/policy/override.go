package policy

import (
	"fmt"
	"strings"

	"github.com/kaladeofin/invoice-approvals/internal/domain/entity"
	"go.uber.org/zap"
)

// ambiguityKeywords mark a classifier reason as too uncertain to support an
// outright decline.
var ambiguityKeywords = []string{
	"ambiguous", "unclear", "uncertain", "requires clarification",
	"needs review", "unable to determine", "missing",
}

// preservedReasonKeywords keep the classifier's own wording visible when a
// declined invoice is rerouted: genuine policy violations must not be
// papered over by the routing template.
var preservedReasonKeywords = []string{"disallowed", "alcohol", "prohibited"}

// recommendationPrefixes mark a reason already phrased as reviewer guidance.
// Such reasons survive rerouting verbatim.
var recommendationPrefixes = []string{"RECOMMENDATION:", "ANALYSIS:", "Recommendation:", "Analysis:"}

// auditPrefix is stripped from preserved reasons before they are persisted.
const auditPrefix = "AI Analysis: "

// OverridePolicyEngine prevents unjustified declined outcomes. Declines are
// only final when no override rule applies; everything else reroutes to
// human review. Rules are priority ordered, first match wins.
type OverridePolicyEngine struct {
	cfg    Config
	logger *zap.Logger
}

// NewOverridePolicyEngine creates an override engine with the given
// thresholds.
func NewOverridePolicyEngine(cfg Config, logger *zap.Logger) *OverridePolicyEngine {
	return &OverridePolicyEngine{cfg: cfg, logger: logger}
}

// Apply evaluates the override rules against a declined effective decision.
// Non-declined decisions pass through unmodified.
func (e *OverridePolicyEngine) Apply(invoice *entity.Invoice, proposal entity.RawProposal, effective Effective) Effective {
	if effective.Status != entity.StatusDeclined {
		return effective
	}

	// Rule 1: amounts above the auto-approval limit are a human call, not a
	// machine decline.
	if invoice.TotalAmount != nil && *invoice.TotalAmount > e.cfg.AutoApproveLimit {
		tier := e.cfg.TierFor(invoice.TotalAmount)
		e.logger.Info("Overriding declined to pending",
			zap.Int64("invoice_id", invoice.ID),
			zap.String("rule", "amount threshold"),
			zap.String("tier", tier.String()))
		return Effective{
			Status: entity.StatusInProgress,
			Reason: e.amountReason(effective.Reason, *invoice.TotalAmount, tier),
		}
	}

	// Rule 2: a low-confidence decline indicates uncertainty.
	if proposal.Confidence != nil && *proposal.Confidence < e.cfg.LowConfidenceFloor {
		e.logger.Info("Overriding declined to pending",
			zap.Int64("invoice_id", invoice.ID),
			zap.String("rule", "low confidence"),
			zap.Float64("confidence", *proposal.Confidence))
		return Effective{
			Status: entity.StatusInProgress,
			Reason: fmt.Sprintf("Invoice analysis indicates uncertainty (confidence: %.2f). Routed for human review with recommendation.", *proposal.Confidence),
		}
	}

	// Rule 3: the reason itself admits ambiguity.
	if reason := strings.ToLower(effective.Reason); reason != "" {
		for _, keyword := range ambiguityKeywords {
			if strings.Contains(reason, keyword) {
				e.logger.Info("Overriding declined to pending",
					zap.Int64("invoice_id", invoice.ID),
					zap.String("rule", "ambiguous reason"),
					zap.String("keyword", keyword))
				return Effective{
					Status: entity.StatusInProgress,
					Reason: "Invoice contains ambiguous or unclear information. Routed for human review with recommendation.",
				}
			}
		}
	}

	// No rule matched: the decline stands as final.
	return effective
}

// amountReason builds the rerouting reason for rule 1. A reason already
// phrased as a recommendation, or one that names disallowed content, is
// preserved so the classifier's finding stays visible to the reviewer.
func (e *OverridePolicyEngine) amountReason(original string, amount float64, tier Tier) string {
	for _, prefix := range recommendationPrefixes {
		if strings.HasPrefix(original, prefix) {
			return original
		}
	}
	lower := strings.ToLower(original)
	for _, keyword := range preservedReasonKeywords {
		if strings.Contains(lower, keyword) {
			return strings.TrimSpace(strings.ReplaceAll(original, auditPrefix, ""))
		}
	}
	return fmt.Sprintf("Invoice amount (%s) requires %s approval per policy threshold.", FormatAmount(amount), tier)
}
