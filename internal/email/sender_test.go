package email

import (
	"context"
	"testing"

	"github.com/kaladeofin/invoice-approvals/internal/application/port"
	"github.com/kaladeofin/invoice-approvals/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleNotification() port.ApprovalNotification {
	supplier := "Acme Corp"
	amount := 5000.0
	confidence := 0.82
	return port.ApprovalNotification{
		ApprovalID: 42,
		Invoice: &entity.Invoice{
			Filename:       "acme.pdf",
			SupplierName:   &supplier,
			TotalAmount:    &amount,
			Currency:       "USD",
			SubmitterName:  "Jane Doe",
			SubmitterTeam:  "Finance",
			BusinessReason: "annual license renewal",
		},
		EffectiveStatus: entity.StatusInProgress,
		Reason:          "Invoice amount ($5,000.00) requires finance manager approval per policy threshold.",
		ModelDecision:   entity.StatusDeclined,
		ModelConfidence: &confidence,
		Citations:       []string{"Section 2.1"},
		ApproverName:    "Sven Stevenon",
		ApproverEmail:   "sven@example.com",
		Token:           "deadbeef",
	}
}

func TestSender_ReviewURL(t *testing.T) {
	s := NewSender(Config{BaseURL: "https://approvals.example.com/"}, zap.NewNop())

	url := s.reviewURL(sampleNotification())
	assert.Equal(t, "https://approvals.example.com/approvals/42/review?token=deadbeef", url)
}

func TestSender_BuildBody(t *testing.T) {
	s := NewSender(Config{BaseURL: "https://approvals.example.com"}, zap.NewNop())
	n := sampleNotification()

	body := s.buildBody(n, s.reviewURL(n))

	require.Contains(t, body, "Hello Sven Stevenon")
	assert.Contains(t, body, "Acme Corp")
	assert.Contains(t, body, "$5,000.00 USD")
	assert.Contains(t, body, "Recommendation: declined")
	assert.Contains(t, body, "Confidence: 0.82")
	assert.Contains(t, body, "Section 2.1")
	assert.Contains(t, body, "https://approvals.example.com/approvals/42/review?token=deadbeef")
}

func TestSender_Unconfigured_LogsOnly(t *testing.T) {
	s := NewSender(Config{BaseURL: "https://approvals.example.com"}, zap.NewNop())

	// No API key: the send is skipped without error
	err := s.SendApprovalRequest(context.Background(), sampleNotification())
	require.NoError(t, err)
}
