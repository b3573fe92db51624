package entity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the approval lifecycle status. approval_inprogress is the only
// non-terminal status; approved and declined are terminal.
type Status string

const (
	StatusInProgress Status = "approval_inprogress"
	StatusApproved   Status = "approved"
	StatusDeclined   Status = "declined"
)

var validStatuses = map[Status]bool{
	StatusInProgress: true,
	StatusApproved:   true,
	StatusDeclined:   true,
}

// IsValid returns true if the status is one of the three lifecycle statuses.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal returns true if no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDeclined
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// DeciderKind distinguishes who resolved an approval.
type DeciderKind string

const (
	DeciderAuto        DeciderKind = "auto"
	DeciderHuman       DeciderKind = "human"
	DeciderSystemError DeciderKind = "system_error"
)

// DecidedBy is a tagged decider identity. Human deciders carry the approver
// identity; auto and system_error do not.
type DecidedBy struct {
	Kind     DeciderKind
	Identity string
}

// AutoDecider tags a decision made by the policy engine.
func AutoDecider() DecidedBy {
	return DecidedBy{Kind: DeciderAuto}
}

// HumanDecider tags a decision made by a named approver.
func HumanDecider(identity string) DecidedBy {
	return DecidedBy{Kind: DeciderHuman, Identity: identity}
}

// SystemErrorDecider tags the fallback record written when a workflow run
// fails after the invoice was persisted.
func SystemErrorDecider() DecidedBy {
	return DecidedBy{Kind: DeciderSystemError}
}

// String renders the storage form: "auto", "human:<identity>" or
// "system_error".
func (d DecidedBy) String() string {
	if d.Kind == DeciderHuman {
		return fmt.Sprintf("human:%s", d.Identity)
	}
	return string(d.Kind)
}

// MarshalJSON renders the storage form as a JSON string.
func (d DecidedBy) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON parses the storage form from a JSON string.
func (d *DecidedBy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = ParseDecidedBy(s)
	return nil
}

// ParseDecidedBy parses the storage form back into the tagged variant.
func ParseDecidedBy(s string) DecidedBy {
	if rest, ok := strings.CutPrefix(s, "human:"); ok {
		return HumanDecider(rest)
	}
	if s == string(DeciderSystemError) {
		return SystemErrorDecider()
	}
	return AutoDecider()
}

// Approval is one decision record for an invoice. Rows are append-only
// audit entries; an invoice accumulates one row per workflow run and the
// invoice mirror always reflects the latest row by creation order.
type Approval struct {
	ID               int64      `json:"id"`
	InvoiceID        int64      `json:"invoice_id"`
	Status           Status     `json:"status"`
	Reason           string     `json:"reason"`
	DecidedBy        DecidedBy  `json:"decided_by"`
	ApproverEmail    string     `json:"approver_email"`
	ModelDecision    string     `json:"model_decision"`
	ModelConfidence  *float64   `json:"model_confidence"`
	PolicyCitations  []string   `json:"policy_citations"`
	PreviousCaseRefs []string   `json:"previous_case_refs"`
	LinkToken        string     `json:"link_token"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// RawProposal is the unaltered recommendation from the classifier. It is
// never persisted standalone: the gate and override stages consume it and
// the original fields are retained on the Approval for audit.
type RawProposal struct {
	Decision   Status   `json:"decision"`
	Reason     *string  `json:"reason"`
	Confidence *float64 `json:"confidence"`
	Citations  []string `json:"citations"`
}

// ReasonText returns the proposal reason or "" when absent.
func (p RawProposal) ReasonText() string {
	if p.Reason == nil {
		return ""
	}
	return *p.Reason
}

// PriorCase is a previously human-decided approval fed back into the
// classifier as precedent context.
type PriorCase struct {
	Reason       string   `json:"reason"`
	Status       Status   `json:"status"`
	SupplierName *string  `json:"supplier_name"`
	TotalAmount  *float64 `json:"total_amount"`
	Currency     string   `json:"currency"`
}
