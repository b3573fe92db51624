package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kaladeofin/invoice-approvals/internal/application/service"
	"github.com/kaladeofin/invoice-approvals/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	ingestService   service.IngestService
	approvalService service.ApprovalService
	logger          Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	ingestService service.IngestService,
	approvalService service.ApprovalService,
	logger Logger,
) *Handlers {
	return &Handlers{
		ingestService:   ingestService,
		approvalService: approvalService,
		logger:          logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// SubmitInvoiceRequest is the ingestion payload
type SubmitInvoiceRequest struct {
	Filename       string            `json:"filename" binding:"required"`
	SupplierName   *string           `json:"supplier_name"`
	InvoiceDate    *string           `json:"invoice_date"`
	TotalAmount    *float64          `json:"total_amount"`
	Currency       string            `json:"currency"`
	LineItems      []entity.LineItem `json:"line_items"`
	SubmitterName  string            `json:"submitter_name"`
	SubmitterEmail string            `json:"submitter_email"`
	SubmitterTeam  string            `json:"submitter_team"`
	BusinessReason string            `json:"business_reason"`
}

// SubmitInvoiceResponse reports the ingestion outcome
type SubmitInvoiceResponse struct {
	Invoice   *entity.Invoice  `json:"invoice"`
	Approval  *entity.Approval `json:"approval,omitempty"`
	Duplicate bool             `json:"duplicate"`
}

// StartApprovalRequest names the invoice to rerun the pipeline on
type StartApprovalRequest struct {
	InvoiceID int64 `json:"invoice_id" binding:"required"`
}

// ReviewResponse is the review context rendered for an approver. The
// stored reason is surfaced as the model's reasoning only while the
// approval is still machine-decided; after a human decision it is the
// reviewer's justification and is not attributed to the model.
type ReviewResponse struct {
	Approval       *entity.Approval `json:"approval"`
	Invoice        *entity.Invoice  `json:"invoice"`
	ModelReasoning string           `json:"model_reasoning,omitempty"`
}

// DecideRequest is the human decision payload
type DecideRequest struct {
	Token         string `json:"token"`
	Action        string `json:"action"`
	Justification string `json:"justification"`
	ApproverEmail string `json:"approver_email"`
}

// ListRequest represents pagination query parameters
type ListRequest struct {
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
	Status string `form:"status"`
}

func (r *ListRequest) normalize() {
	if r.Limit <= 0 || r.Limit > 200 {
		r.Limit = 20
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// SubmitInvoice handles POST /invoices
func (h *Handlers) SubmitInvoice(c *gin.Context) {
	var req SubmitInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	sub := service.InvoiceSubmission{
		Filename:       req.Filename,
		SupplierName:   req.SupplierName,
		TotalAmount:    req.TotalAmount,
		Currency:       req.Currency,
		LineItems:      req.LineItems,
		SubmitterName:  req.SubmitterName,
		SubmitterEmail: req.SubmitterEmail,
		SubmitterTeam:  req.SubmitterTeam,
		BusinessReason: req.BusinessReason,
	}
	if req.InvoiceDate != nil && *req.InvoiceDate != "" {
		d, err := time.Parse("2006-01-02", *req.InvoiceDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invoice_date must be YYYY-MM-DD"})
			return
		}
		sub.InvoiceDate = &d
	}

	result, err := h.ingestService.Submit(c.Request.Context(), sub)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, Response{
		Success: true,
		Data: SubmitInvoiceResponse{
			Invoice:   result.Invoice,
			Approval:  sanitize(result.Approval),
			Duplicate: result.Duplicate,
		},
	})
}

// ListInvoices handles GET /invoices
func (h *Handlers) ListInvoices(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}
	req.normalize()

	invoices, err := h.ingestService.List(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: invoices})
}

// GetInvoice handles GET /invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	invoice, err := h.ingestService.Get(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: invoice})
}

// ListApprovals handles GET /approvals
func (h *Handlers) ListApprovals(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}
	req.normalize()

	var status *entity.Status
	if req.Status != "" {
		s := entity.Status(req.Status)
		if !s.IsValid() {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "unknown status filter"})
			return
		}
		status = &s
	}

	approvals, err := h.approvalService.List(c.Request.Context(), status, req.Limit, req.Offset)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	out := make([]*entity.Approval, 0, len(approvals))
	for _, a := range approvals {
		out = append(out, sanitize(a))
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: out})
}

// GetApproval handles GET /approvals/:id
func (h *Handlers) GetApproval(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	approval, err := h.approvalService.Get(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sanitize(approval)})
}

// ReviewApproval handles GET /approvals/:id/review
func (h *Handlers) ReviewApproval(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	rc, err := h.approvalService.Review(c.Request.Context(), id, c.Query("token"))
	if err != nil {
		h.serviceError(c, err)
		return
	}

	resp := ReviewResponse{Approval: sanitize(rc.Approval), Invoice: rc.Invoice}
	if rc.Approval.DecidedBy.Kind == entity.DeciderAuto {
		resp.ModelReasoning = rc.Approval.Reason
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// StartApproval handles POST /approvals/start
func (h *Handlers) StartApproval(c *gin.Context) {
	var req StartApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	approval, err := h.ingestService.StartApproval(c.Request.Context(), req.InvoiceID)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: sanitize(approval)})
}

// DecideApproval handles POST /approvals/:id/decide
func (h *Handlers) DecideApproval(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	// The query string token works too, so the emailed link can post back
	token := req.Token
	if token == "" {
		token = c.Query("token")
	}

	approver := req.ApproverEmail
	if approver == "" {
		approver = "unknown"
	}

	approval, err := h.approvalService.Decide(c.Request.Context(), id, token, req.Action, req.Justification, approver)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sanitize(approval)})
}

func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid id"})
		return 0, false
	}
	return id, true
}

// serviceError maps service sentinels onto HTTP statuses
func (h *Handlers) serviceError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, service.ErrInvoiceNotFound), errors.Is(err, service.ErrApprovalNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrTokenMismatch):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrAlreadyDecided):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidAction), errors.Is(err, service.ErrEmptyJustification):
		status = http.StatusBadRequest
	default:
		h.logger.Error("Request failed", "error", err)
		status = http.StatusInternalServerError
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// sanitize strips the link token before an approval leaves the API. The
// token is a bearer credential and only travels inside the emailed link.
func sanitize(a *entity.Approval) *entity.Approval {
	if a == nil {
		return nil
	}
	clean := *a
	clean.LinkToken = ""
	return &clean
}
