package service

import "errors"

// Sentinel errors surfaced to the transport layer, which maps them onto
// HTTP statuses. They carry no mutation: a request that fails with any of
// these leaves the approval untouched.
var (
	ErrInvoiceNotFound    = errors.New("invoice not found")
	ErrApprovalNotFound   = errors.New("approval not found")
	ErrTokenMismatch      = errors.New("link token does not match")
	ErrAlreadyDecided     = errors.New("approval already decided")
	ErrInvalidAction      = errors.New("action must be approve or decline")
	ErrEmptyJustification = errors.New("justification must not be empty")
)
