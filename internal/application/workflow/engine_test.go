package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kaladeofin/invoice-approvals/internal/application/port"
	"github.com/kaladeofin/invoice-approvals/internal/domain/entity"
	"github.com/kaladeofin/invoice-approvals/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockClassifier struct {
	propose func(ctx context.Context, input port.ClassificationInput) (entity.RawProposal, error)
	lastIn  port.ClassificationInput
}

func (m *mockClassifier) Propose(ctx context.Context, input port.ClassificationInput) (entity.RawProposal, error) {
	m.lastIn = input
	return m.propose(ctx, input)
}

type mockPriorCases struct {
	cases []*entity.PriorCase
	err   error
}

func (m *mockPriorCases) ListPriorHumanCases(ctx context.Context, limit int) ([]*entity.PriorCase, error) {
	return m.cases, m.err
}

type mockCreator struct {
	created *entity.Approval
	err     error
}

func (m *mockCreator) Create(ctx context.Context, approval *entity.Approval) error {
	if m.err != nil {
		return m.err
	}
	approval.ID = 7
	approval.CreatedAt = time.Now().UTC()
	approval.LinkToken = "tok-7"
	m.created = approval
	return nil
}

type mockNotifier struct {
	sent []port.ApprovalNotification
	err  error
}

func (m *mockNotifier) SendApprovalRequest(ctx context.Context, n port.ApprovalNotification) error {
	m.sent = append(m.sent, n)
	return m.err
}

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }
func timePtr(t time.Time) *time.Time { return &t }

func cleanInvoice(amount float64) *entity.Invoice {
	return &entity.Invoice{
		ID:           1,
		Filename:     "acme.pdf",
		SupplierName: strPtr("Acme Corp"),
		InvoiceDate:  timePtr(time.Now().UTC().AddDate(0, 0, -10)),
		TotalAmount:  floatPtr(amount),
		Currency:     "USD",
		LineItems:    []entity.LineItem{{Description: "Paper", Quantity: 1, UnitPrice: amount, Total: amount}},
	}
}

func newTestEngine(classifier *mockClassifier, prior *mockPriorCases, creator *mockCreator, notifier *mockNotifier) *Engine {
	return NewEngine(classifier, prior, creator, notifier, policy.DefaultConfig(), policy.DefaultApprovers(), zap.NewNop())
}

func TestEngine_Run_AutoApproves(t *testing.T) {
	classifier := &mockClassifier{propose: func(ctx context.Context, input port.ClassificationInput) (entity.RawProposal, error) {
		conf := 0.95
		return entity.RawProposal{Decision: entity.StatusApproved, Reason: strPtr("All good"), Confidence: &conf}, nil
	}}
	creator := &mockCreator{}
	notifier := &mockNotifier{}
	engine := newTestEngine(classifier, &mockPriorCases{}, creator, notifier)

	approval, err := engine.Run(context.Background(), cleanInvoice(120))
	require.NoError(t, err)

	assert.Equal(t, entity.StatusApproved, approval.Status)
	assert.Contains(t, approval.Reason, "auto-approval threshold")
	assert.Equal(t, entity.AutoDecider(), approval.DecidedBy)
	assert.Empty(t, approval.ApproverEmail)
	assert.Empty(t, notifier.sent, "auto-approved invoices trigger no notification")
}

func TestEngine_Run_DeclineOverriddenAndNotified(t *testing.T) {
	classifier := &mockClassifier{propose: func(ctx context.Context, input port.ClassificationInput) (entity.RawProposal, error) {
		conf := 0.9
		return entity.RawProposal{Decision: entity.StatusDeclined, Reason: strPtr("Exceeds budget"), Confidence: &conf, Citations: []string{"Section 2.1"}}, nil
	}}
	creator := &mockCreator{}
	notifier := &mockNotifier{}
	engine := newTestEngine(classifier, &mockPriorCases{}, creator, notifier)

	approval, err := engine.Run(context.Background(), cleanInvoice(5000))
	require.NoError(t, err)

	assert.Equal(t, entity.StatusInProgress, approval.Status)
	assert.Contains(t, approval.Reason, "finance manager")
	assert.Equal(t, "declined", approval.ModelDecision)
	assert.Equal(t, []string{"Section 2.1"}, approval.PolicyCitations)
	assert.Equal(t, "sven.stevenon@example.com", approval.ApproverEmail)

	require.Len(t, notifier.sent, 1)
	n := notifier.sent[0]
	assert.Equal(t, int64(7), n.ApprovalID)
	assert.Equal(t, "tok-7", n.Token)
	assert.Equal(t, "Sven Stevenon", n.ApproverName)
	assert.Equal(t, entity.StatusDeclined, n.ModelDecision)
}

func TestEngine_Run_ClassifierFailureDegradesToPending(t *testing.T) {
	classifier := &mockClassifier{propose: func(ctx context.Context, input port.ClassificationInput) (entity.RawProposal, error) {
		return entity.RawProposal{}, errors.New("api timeout")
	}}
	creator := &mockCreator{}
	notifier := &mockNotifier{}
	engine := newTestEngine(classifier, &mockPriorCases{}, creator, notifier)

	approval, err := engine.Run(context.Background(), cleanInvoice(120))
	require.NoError(t, err, "classifier failure must not fail the run")

	assert.Equal(t, entity.StatusInProgress, approval.Status)
	assert.Contains(t, approval.Reason, "api timeout")
	require.Len(t, notifier.sent, 1)
}

func TestEngine_Run_PassesRoutingContextToClassifier(t *testing.T) {
	classifier := &mockClassifier{propose: func(ctx context.Context, input port.ClassificationInput) (entity.RawProposal, error) {
		return entity.RawProposal{Decision: entity.StatusApproved}, nil
	}}
	prior := &mockPriorCases{cases: []*entity.PriorCase{
		{Reason: "Verified", Status: entity.StatusApproved, SupplierName: strPtr("Acme Corp"), TotalAmount: floatPtr(90), Currency: "USD"},
	}}
	engine := newTestEngine(classifier, prior, &mockCreator{}, &mockNotifier{})

	approval, err := engine.Run(context.Background(), cleanInvoice(12500))
	require.NoError(t, err)

	assert.Equal(t, "executive", classifier.lastIn.ApprovalTier)
	assert.Equal(t, "Georly Daniel", classifier.lastIn.ApproverName)
	assert.False(t, classifier.lastIn.EvaluatedAt.IsZero())
	assert.Equal(t, time.UTC, classifier.lastIn.EvaluatedAt.Location())
	require.Len(t, classifier.lastIn.PriorCases, 1)
	assert.Equal(t, []string{"Acme Corp (90.00 USD): approved"}, approval.PreviousCaseRefs)
}

func TestEngine_Run_PriorCaseFailureIsNonFatal(t *testing.T) {
	classifier := &mockClassifier{propose: func(ctx context.Context, input port.ClassificationInput) (entity.RawProposal, error) {
		return entity.RawProposal{Decision: entity.StatusApproved}, nil
	}}
	prior := &mockPriorCases{err: errors.New("table locked")}
	engine := newTestEngine(classifier, prior, &mockCreator{}, &mockNotifier{})

	_, err := engine.Run(context.Background(), cleanInvoice(120))
	require.NoError(t, err)
	assert.Empty(t, classifier.lastIn.PriorCases)
}

func TestEngine_Run_PersistenceFailureSurfaces(t *testing.T) {
	classifier := &mockClassifier{propose: func(ctx context.Context, input port.ClassificationInput) (entity.RawProposal, error) {
		return entity.RawProposal{Decision: entity.StatusApproved}, nil
	}}
	boom := errors.New("disk full")
	engine := newTestEngine(classifier, &mockPriorCases{}, &mockCreator{err: boom}, &mockNotifier{})

	_, err := engine.Run(context.Background(), cleanInvoice(120))
	assert.ErrorIs(t, err, boom)
}

func TestEngine_Run_NotifierFailureIsSwallowed(t *testing.T) {
	classifier := &mockClassifier{propose: func(ctx context.Context, input port.ClassificationInput) (entity.RawProposal, error) {
		return entity.RawProposal{Decision: entity.StatusDeclined, Reason: strPtr("Too expensive")}, nil
	}}
	notifier := &mockNotifier{err: errors.New("smtp down")}
	engine := newTestEngine(classifier, &mockPriorCases{}, &mockCreator{}, notifier)

	approval, err := engine.Run(context.Background(), cleanInvoice(5000))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusInProgress, approval.Status)
}
