package entity

import "time"

// Invoice is a submitted invoice snapshot. Rows are created once at
// ingestion and are immutable afterwards, with the exception of
// ApprovalStatus, which mirrors the status of the most recently created
// Approval for this invoice.
type Invoice struct {
	ID             int64      `json:"id"`
	Filename       string     `json:"filename"`
	SupplierName   *string    `json:"supplier_name"`
	InvoiceDate    *time.Time `json:"invoice_date"`
	TotalAmount    *float64   `json:"total_amount"`
	Currency       string     `json:"currency"`
	LineItems      []LineItem `json:"line_items"`
	SubmitterName  string     `json:"submitter_name"`
	SubmitterEmail string     `json:"submitter_email"`
	SubmitterTeam  string     `json:"submitter_team"`
	BusinessReason string     `json:"business_reason"`
	ContentHash    string     `json:"content_hash"`
	ApprovalStatus Status     `json:"approval_status"`
	CreatedAt      time.Time  `json:"created_at"`
}

// LineItem is a single invoice line. After reconciliation at least two of
// quantity, unit price and total are known and the third is derived.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// Reconcile derives the missing member of the quantity/unit-price/total
// triple. Quantity defaults to 1 when absent so a bare total still yields a
// priced line; a line with nothing derivable gets a zero total.
func (li *LineItem) Reconcile() {
	switch {
	case li.Quantity != 0 && li.UnitPrice != 0:
		li.Total = li.Quantity * li.UnitPrice
	case li.Total != 0 && li.UnitPrice != 0:
		li.Quantity = li.Total / li.UnitPrice
	case li.Total != 0 && li.Quantity != 0:
		li.UnitPrice = li.Total / li.Quantity
	default:
		if li.Quantity == 0 {
			li.Quantity = 1
		}
		li.Total = 0
	}
}

// ReconcileLineItems normalizes every line item in place.
func ReconcileLineItems(items []LineItem) {
	for i := range items {
		items[i].Reconcile()
	}
}
