package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaladeofin/invoice-approvals/internal/application/port"
	"github.com/kaladeofin/invoice-approvals/internal/domain/entity"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// decisionResponse is the wire shape the model is asked to produce.
type decisionResponse struct {
	Decision        string   `json:"decision"`
	Reason          string   `json:"reason"`
	Confidence      *float64 `json:"confidence"`
	PolicyCitations []string `json:"policy_citations"`
}

// Classifier implements port.DecisionClassifier using OpenAI chat
// completions. Its recommendation is advisory: the deterministic policy
// stages downstream decide what actually happens.
type Classifier struct {
	client      *openai.Client
	policyText  string
	model       string
	temperature float32
	logger      *zap.Logger
}

// NewClassifier creates a new OpenAI classifier. policyText is the approval
// policy document injected verbatim into the prompt.
func NewClassifier(apiKey, model string, temperature float32, policyText string, logger *zap.Logger) *Classifier {
	return &Classifier{
		client:      openai.NewClient(apiKey),
		policyText:  policyText,
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

// Propose asks the model for an approve/decline recommendation on the
// invoice. Any transport or parse failure is returned as an error; callers
// convert it into a pending fallback, never a decline.
func (c *Classifier) Propose(ctx context.Context, input port.ClassificationInput) (entity.RawProposal, error) {
	c.logger.Debug("Requesting classification",
		zap.Int64("invoice_id", input.Invoice.ID),
		zap.String("tier", input.ApprovalTier))

	prompt := c.buildDecisionPrompt(input)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an accounts-payable reviewer. Evaluate submitted invoices against the company approval policy and recommend a decision. Always respond with valid JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		c.logger.Error("OpenAI API call failed", zap.Error(err))
		return entity.RawProposal{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return entity.RawProposal{}, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content

	var result decisionResponse
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		// Fallback: try to extract JSON from markdown code blocks
		jsonStr := extractJSON(content)
		if jsonStr == "" || json.Unmarshal([]byte(jsonStr), &result) != nil {
			c.logger.Error("Failed to parse OpenAI response",
				zap.Error(err),
				zap.String("content", content))
			return entity.RawProposal{}, fmt.Errorf("failed to parse response: %w", err)
		}
		c.logger.Info("Extracted JSON from response")
	}

	proposal := entity.RawProposal{
		Decision:   entity.Status(strings.ToLower(strings.TrimSpace(result.Decision))),
		Confidence: result.Confidence,
		Citations:  result.PolicyCitations,
	}
	if result.Reason != "" {
		reason := result.Reason
		proposal.Reason = &reason
	}

	c.logger.Info("Classification completed",
		zap.Int64("invoice_id", input.Invoice.ID),
		zap.String("decision", string(proposal.Decision)),
		zap.Float64p("confidence", proposal.Confidence))

	return proposal, nil
}

// buildDecisionPrompt builds the classification prompt
func (c *Classifier) buildDecisionPrompt(input port.ClassificationInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Evaluate this invoice against the company approval policy:\n\n")
	fmt.Fprintf(&b, "**Approval Policy:**\n%s\n\n", c.policyText)

	inv := input.Invoice
	fmt.Fprintf(&b, "**Invoice:**\n")
	fmt.Fprintf(&b, "- Filename: %s\n", inv.Filename)
	if inv.SupplierName != nil {
		fmt.Fprintf(&b, "- Supplier: %s\n", *inv.SupplierName)
	} else {
		fmt.Fprintf(&b, "- Supplier: unknown\n")
	}
	if inv.InvoiceDate != nil {
		fmt.Fprintf(&b, "- Invoice date: %s\n", inv.InvoiceDate.Format("2006-01-02"))
	} else {
		fmt.Fprintf(&b, "- Invoice date: unknown\n")
	}
	if !input.EvaluatedAt.IsZero() {
		fmt.Fprintf(&b, "- Current date: %s\n", input.EvaluatedAt.Format("2006-01-02"))
		if inv.InvoiceDate != nil {
			fmt.Fprintf(&b, "- Days since invoice: %d\n", daysBetween(*inv.InvoiceDate, input.EvaluatedAt))
		}
	}
	if inv.TotalAmount != nil {
		fmt.Fprintf(&b, "- Total amount: %.2f %s\n", *inv.TotalAmount, inv.Currency)
	} else {
		fmt.Fprintf(&b, "- Total amount: unknown\n")
	}
	if len(inv.LineItems) > 0 {
		fmt.Fprintf(&b, "- Line items:\n")
		for _, li := range inv.LineItems {
			fmt.Fprintf(&b, "  - %s (qty %.2f x %.2f = %.2f)\n", li.Description, li.Quantity, li.UnitPrice, li.Total)
		}
	}
	fmt.Fprintf(&b, "- Submitted by: %s <%s> (%s)\n", inv.SubmitterName, inv.SubmitterEmail, inv.SubmitterTeam)
	fmt.Fprintf(&b, "- Business reason: %s\n\n", inv.BusinessReason)

	if input.ApprovalTier != "" {
		fmt.Fprintf(&b, "**Routing:**\nIf declined or escalated, this invoice is routed to the %s (%s) based on its amount.\n\n",
			input.ApprovalTier, input.ApproverName)
	}

	if len(input.PriorCases) > 0 {
		fmt.Fprintf(&b, "**Previous human decisions on similar invoices:**\n")
		for _, pc := range input.PriorCases {
			supplier := "unknown supplier"
			if pc.SupplierName != nil {
				supplier = *pc.SupplierName
			}
			amount := "unknown amount"
			if pc.TotalAmount != nil {
				amount = fmt.Sprintf("%.2f %s", *pc.TotalAmount, pc.Currency)
			}
			fmt.Fprintf(&b, "- %s, %s: %s. Reviewer note: %s\n", supplier, amount, pc.Status, pc.Reason)
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, `Respond with ONLY a valid JSON object with this exact structure:
{
  "decision": "approved" or "declined",
  "reason": string explaining your recommendation,
  "confidence": number between 0.0 and 1.0,
  "policy_citations": [string array of policy sections relevant to the decision]
}

Cite the specific policy sections that drove your recommendation. Set confidence to reflect how certain you are.`)

	return b.String()
}

// daysBetween counts calendar days from the invoice date to the evaluation
// date, ignoring the time of day.
func daysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// extractJSON extracts JSON from markdown code blocks
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	end := findJSONEnd(content, start)
	if end <= start {
		return ""
	}
	return content[start:end]
}

// findJSONEnd finds the end of JSON content starting at a given position
func findJSONEnd(content string, start int) int {
	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(content); i++ {
		char := content[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if char == '{' {
			braceCount++
		} else if char == '}' {
			braceCount--
			if braceCount == 0 {
				return i + 1
			}
		}
	}

	return -1
}

// Verify interface compliance
var _ port.DecisionClassifier = (*Classifier)(nil)
