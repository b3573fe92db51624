// Package email delivers approval-request notifications to the responsible
// approver. Delivery is best-effort: a failed or skipped send never fails
// the workflow that produced the approval.
package email

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kaladeofin/invoice-approvals/internal/application/port"
	"github.com/kaladeofin/invoice-approvals/internal/policy"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Config holds email sender configuration
type Config struct {
	APIKey    string
	FromName  string
	FromEmail string
	BaseURL   string
}

// Sender implements port.Notifier using SendGrid. When no API key is
// configured the sender logs the review link instead of delivering, which
// keeps local development working without credentials.
type Sender struct {
	cfg    Config
	client *sendgrid.Client
	logger *zap.Logger
}

// NewSender creates a new email sender
func NewSender(cfg Config, logger *zap.Logger) *Sender {
	var client *sendgrid.Client
	if cfg.APIKey != "" {
		client = sendgrid.NewSendClient(cfg.APIKey)
	}
	return &Sender{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// SendApprovalRequest emails the approver a review request containing the
// signed deep link.
func (s *Sender) SendApprovalRequest(ctx context.Context, n port.ApprovalNotification) error {
	reviewURL := s.reviewURL(n)

	if s.client == nil {
		s.logger.Info("Email delivery not configured, logging review link",
			zap.Int64("approval_id", n.ApprovalID),
			zap.String("approver", n.ApproverEmail),
			zap.String("review_url", reviewURL))
		return nil
	}

	s.logger.Info("Sending approval request email",
		zap.Int64("approval_id", n.ApprovalID),
		zap.String("approver_email", n.ApproverEmail))

	subject := fmt.Sprintf("Approval needed: invoice %s", s.invoiceLabel(n))

	from := mail.NewEmail(s.cfg.FromName, s.cfg.FromEmail)
	to := mail.NewEmail(n.ApproverName, n.ApproverEmail)
	message := mail.NewSingleEmail(from, subject, to, s.buildBody(n, reviewURL), s.buildHTMLBody(n, reviewURL))

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("Failed to send approval request email",
			zap.Int64("approval_id", n.ApprovalID),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		s.logger.Error("SendGrid rejected approval request email",
			zap.Int64("approval_id", n.ApprovalID),
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", resp.Body))
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}

	s.logger.Info("Approval request email sent",
		zap.Int64("approval_id", n.ApprovalID),
		zap.Int("status_code", resp.StatusCode))
	return nil
}

func (s *Sender) reviewURL(n port.ApprovalNotification) string {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	return fmt.Sprintf("%s/approvals/%d/review?token=%s", base, n.ApprovalID, n.Token)
}

func (s *Sender) invoiceLabel(n port.ApprovalNotification) string {
	if n.Invoice.SupplierName != nil {
		return fmt.Sprintf("from %s", *n.Invoice.SupplierName)
	}
	return n.Invoice.Filename
}

// buildBody builds the plain text email body
func (s *Sender) buildBody(n port.ApprovalNotification, reviewURL string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Hello %s,\n\n", n.ApproverName)
	fmt.Fprintf(&b, "An invoice needs your review.\n\n")

	fmt.Fprintf(&b, "Invoice details:\n")
	if n.Invoice.SupplierName != nil {
		fmt.Fprintf(&b, "- Supplier: %s\n", *n.Invoice.SupplierName)
	}
	if n.Invoice.TotalAmount != nil {
		fmt.Fprintf(&b, "- Amount: %s %s\n", policy.FormatAmount(*n.Invoice.TotalAmount), n.Invoice.Currency)
	}
	if n.Invoice.InvoiceDate != nil {
		fmt.Fprintf(&b, "- Invoice date: %s\n", n.Invoice.InvoiceDate.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "- Submitted by: %s (%s)\n", n.Invoice.SubmitterName, n.Invoice.SubmitterTeam)
	fmt.Fprintf(&b, "- Business reason: %s\n\n", n.Invoice.BusinessReason)

	fmt.Fprintf(&b, "Recommendation: %s\n", n.ModelDecision)
	if n.ModelConfidence != nil {
		fmt.Fprintf(&b, "Confidence: %.2f\n", *n.ModelConfidence)
	}
	fmt.Fprintf(&b, "Routing reason: %s\n", n.Reason)
	if len(n.Citations) > 0 {
		fmt.Fprintf(&b, "Policy references: %s\n", strings.Join(n.Citations, "; "))
	}

	fmt.Fprintf(&b, "\nReview and decide:\n%s\n", reviewURL)
	fmt.Fprintf(&b, "\nThis message was sent automatically by the invoice approval system.\n")

	return b.String()
}

// buildHTMLBody builds the HTML email body
func (s *Sender) buildHTMLBody(n port.ApprovalNotification, reviewURL string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<p>Hello %s,</p>", n.ApproverName)
	fmt.Fprintf(&b, "<p>An invoice needs your review.</p><ul>")
	if n.Invoice.SupplierName != nil {
		fmt.Fprintf(&b, "<li>Supplier: %s</li>", *n.Invoice.SupplierName)
	}
	if n.Invoice.TotalAmount != nil {
		fmt.Fprintf(&b, "<li>Amount: %s %s</li>", policy.FormatAmount(*n.Invoice.TotalAmount), n.Invoice.Currency)
	}
	fmt.Fprintf(&b, "<li>Submitted by: %s (%s)</li>", n.Invoice.SubmitterName, n.Invoice.SubmitterTeam)
	fmt.Fprintf(&b, "<li>Business reason: %s</li></ul>", n.Invoice.BusinessReason)
	fmt.Fprintf(&b, "<p>Routing reason: %s</p>", n.Reason)
	fmt.Fprintf(&b, `<p><a href="%s">Review and decide</a></p>`, reviewURL)
	fmt.Fprintf(&b, "<p>This message was sent automatically by the invoice approval system.</p>")

	return b.String()
}

// Verify interface compliance
var _ port.Notifier = (*Sender)(nil)
