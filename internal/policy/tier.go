// Package policy holds the deterministic decision layer that sits on top of
// the classifier's recommendation: the auto-approval gate, the decline
// override rules and the amount-based approval tiers.
package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// Tier is the human approval level derived from the invoice amount.
type Tier string

const (
	TierManager        Tier = "manager"
	TierFinanceManager Tier = "finance manager"
	TierExecutive      Tier = "executive"
)

// String returns the tier name as used in reasons and routing context.
func (t Tier) String() string {
	return string(t)
}

// Approver identifies one person on the approval roster.
type Approver struct {
	Name  string
	Email string
}

// Approvers maps each tier to the approver used in notifications and
// classifier context.
type Approvers struct {
	Manager        Approver
	FinanceManager Approver
	Executive      Approver
}

// DefaultApprovers returns the company approver roster.
func DefaultApprovers() Approvers {
	return Approvers{
		Manager:        Approver{Name: "Robert Schrill", Email: "robert.schrill@example.com"},
		FinanceManager: Approver{Name: "Sven Stevenon", Email: "sven.stevenon@example.com"},
		Executive:      Approver{Name: "Georly Daniel", Email: "georly.daniel@example.com"},
	}
}

// For returns the approver for a tier.
func (a Approvers) For(tier Tier) Approver {
	switch tier {
	case TierExecutive:
		return a.Executive
	case TierFinanceManager:
		return a.FinanceManager
	default:
		return a.Manager
	}
}

// NameFor returns the approver name for a tier.
func (a Approvers) NameFor(tier Tier) string {
	return a.For(tier).Name
}

// Config holds the deterministic policy thresholds. Values are injected
// from application configuration rather than read from ambient state.
type Config struct {
	AutoApproveLimit   float64
	StaleInvoiceDays   int
	LowConfidenceFloor float64
	FinanceManagerOver float64
	ExecutiveOver      float64
}

// DefaultConfig returns the standard policy thresholds.
func DefaultConfig() Config {
	return Config{
		AutoApproveLimit:   250,
		StaleInvoiceDays:   180,
		LowConfidenceFloor: 0.7,
		FinanceManagerOver: 2500,
		ExecutiveOver:      10000,
	}
}

// TierFor derives the approval tier from the invoice amount. An unknown
// amount routes to the lowest tier.
func (c Config) TierFor(totalAmount *float64) Tier {
	if totalAmount == nil {
		return TierManager
	}
	switch {
	case *totalAmount > c.ExecutiveOver:
		return TierExecutive
	case *totalAmount > c.FinanceManagerOver:
		return TierFinanceManager
	default:
		return TierManager
	}
}

// FormatAmount renders a dollar amount with thousands separators, e.g.
// "$5,000.00", matching the wording used in reason templates.
func FormatAmount(amount float64) string {
	s := strconv.FormatFloat(amount, 'f', 2, 64)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}

	return fmt.Sprintf("%s$%s.%s", sign, b.String(), frac)
}
