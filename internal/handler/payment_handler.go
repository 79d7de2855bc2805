package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"counselpay/internal/errors"
	"counselpay/internal/gateway"
	"counselpay/internal/model"
	"counselpay/internal/repository"
	"counselpay/internal/service"
)

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	paymentService service.PaymentService
	sweeper        *service.Sweeper
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(paymentService service.PaymentService, sweeper *service.Sweeper) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, sweeper: sweeper}
}

// CreatePaymentRequest represents a payment creation request.
type CreatePaymentRequest struct {
	OrderID        string `json:"order_id" validate:"required,max=128"`
	Amount         string `json:"amount" validate:"required"`
	Method         string `json:"method" validate:"required,oneof=CARD BANK_TRANSFER VIRTUAL_ACCOUNT MOBILE CASH"`
	Provider       string `json:"provider" validate:"omitempty,oneof=TOSS IAMPORT KAKAOPAY NONE"`
	PayerID        int64  `json:"payer_id" validate:"required"`
	RecipientID    int64  `json:"recipient_id" validate:"required"`
	BranchID       int64  `json:"branch_id" validate:"required"`
	Description    string `json:"description" validate:"max=255"`
	TimeoutMinutes int    `json:"timeout_minutes" validate:"omitempty,min=1,max=1440"`
	SuccessURL     string `json:"success_url" validate:"omitempty,url"`
	FailURL        string `json:"fail_url" validate:"omitempty,url"`
	CancelURL      string `json:"cancel_url" validate:"omitempty,url"`
}

// PaymentResponse is the payment projection returned to callers.
type PaymentResponse struct {
	PaymentID          string     `json:"payment_id"`
	OrderID            string     `json:"order_id"`
	Amount             string     `json:"amount"`
	RefundedAmount     string     `json:"refunded_amount"`
	Method             string     `json:"method"`
	Provider           string     `json:"provider"`
	Status             string     `json:"status"`
	PayerID            int64      `json:"payer_id"`
	RecipientID        int64      `json:"recipient_id"`
	BranchID           int64      `json:"branch_id"`
	Description        string     `json:"description,omitempty"`
	FailureReason      string     `json:"failure_reason,omitempty"`
	RedirectURL        string     `json:"redirect_url,omitempty"`
	VirtualAccount     string     `json:"virtual_account,omitempty"`
	VirtualAccountBank string     `json:"virtual_account_bank,omitempty"`
	ExpiresAt          time.Time  `json:"expires_at"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt         *time.Time `json:"refunded_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func toPaymentResponse(p *model.Payment, handle *gateway.Handle) PaymentResponse {
	resp := PaymentResponse{
		PaymentID:      p.PaymentID,
		OrderID:        p.OrderID,
		Amount:         p.Amount.String(),
		RefundedAmount: p.RefundedAmount.String(),
		Method:         string(p.Method),
		Provider:       string(p.Provider),
		Status:         string(p.Status),
		PayerID:        p.PayerID,
		RecipientID:    p.RecipientID,
		BranchID:       p.BranchID,
		Description:    p.Description,
		FailureReason:  p.FailureReason,
		ExpiresAt:      p.ExpiresAt,
		ApprovedAt:     p.ApprovedAt,
		CancelledAt:    p.CancelledAt,
		RefundedAt:     p.RefundedAt,
		CreatedAt:      p.CreatedAt,
	}
	if handle != nil {
		resp.RedirectURL = handle.RedirectURL
		resp.VirtualAccount = handle.VirtualAccount
		resp.VirtualAccountBank = handle.VirtualAccountBank
	}
	return resp
}

// CreatePayment godoc
// @Summary Create a payment
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreatePaymentRequest true "Payment data"
// @Success 201 {object} PaymentResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Failure 502 {object} errors.ErrorResponse
// @Router /payments [post]
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	var req CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid amount",
			Code:  "INVALID_AMOUNT",
		})
	}

	payment, handle, err := h.paymentService.CreatePayment(c.Request().Context(), service.CreatePaymentInput{
		OrderID:        req.OrderID,
		Amount:         amount,
		Method:         model.PaymentMethod(req.Method),
		Provider:       model.PaymentProvider(req.Provider),
		PayerID:        req.PayerID,
		RecipientID:    req.RecipientID,
		BranchID:       req.BranchID,
		Description:    req.Description,
		TimeoutMinutes: req.TimeoutMinutes,
		SuccessURL:     req.SuccessURL,
		FailURL:        req.FailURL,
		CancelURL:      req.CancelURL,
	})
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusCreated, toPaymentResponse(payment, handle))
}

// GetPayment godoc
// @Summary Get a payment by id
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param paymentId path string true "Payment ID"
// @Success 200 {object} PaymentResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /payments/{paymentId} [get]
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	payment, err := h.paymentService.GetPayment(c.Request().Context(), c.Param("paymentId"))
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, toPaymentResponse(payment, nil))
}

// ListPaymentsResponse wraps a payment page.
type ListPaymentsResponse struct {
	Payments []PaymentResponse `json:"payments"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ListPayments godoc
// @Summary List payments
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param method query string false "Method filter"
// @Param provider query string false "Provider filter"
// @Param payer_id query int false "Payer filter"
// @Param branch_id query int false "Branch filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} ListPaymentsResponse
// @Router /payments [get]
func (h *PaymentHandler) ListPayments(c echo.Context) error {
	filter := repository.PaymentFilter{
		Status:   model.PaymentStatus(c.QueryParam("status")),
		Method:   model.PaymentMethod(c.QueryParam("method")),
		Provider: model.PaymentProvider(c.QueryParam("provider")),
	}
	filter.PayerID, _ = strconv.ParseInt(c.QueryParam("payer_id"), 10, 64)
	filter.BranchID, _ = strconv.ParseInt(c.QueryParam("branch_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filter.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))

	payments, total, err := h.paymentService.ListPayments(c.Request().Context(), filter)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	resp := ListPaymentsResponse{
		Payments: make([]PaymentResponse, 0, len(payments)),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	for i := range payments {
		resp.Payments = append(resp.Payments, toPaymentResponse(&payments[i], nil))
	}
	return c.JSON(http.StatusOK, resp)
}

// ApprovePayment godoc
// @Summary Approve a desk payment
// @Description Settles a PENDING payment paid without a provider (cash at the desk). Provider-backed payments are approved by their webhook.
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param paymentId path string true "Payment ID"
// @Success 200 {object} PaymentResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /payments/{paymentId}/approve [post]
func (h *PaymentHandler) ApprovePayment(c echo.Context) error {
	payment, err := h.paymentService.ApprovePayment(c.Request().Context(), c.Param("paymentId"))
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, toPaymentResponse(payment, nil))
}

// CancelPaymentRequest carries the cancellation reason.
type CancelPaymentRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// CancelPayment godoc
// @Summary Cancel a payment
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param paymentId path string true "Payment ID"
// @Param request body CancelPaymentRequest true "Cancellation data"
// @Success 200 {object} PaymentResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Failure 502 {object} errors.ErrorResponse
// @Router /payments/{paymentId}/cancel [post]
func (h *PaymentHandler) CancelPayment(c echo.Context) error {
	var req CancelPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		})
	}

	payment, err := h.paymentService.CancelPayment(c.Request().Context(), c.Param("paymentId"), req.Reason)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, toPaymentResponse(payment, nil))
}

// RefundPaymentRequest carries the refund amount and reason. An empty
// amount refunds the full remaining balance.
type RefundPaymentRequest struct {
	Amount string `json:"amount" validate:"omitempty"`
	Reason string `json:"reason" validate:"required,max=255"`
}

// RefundPayment godoc
// @Summary Refund a payment, fully or partially
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param paymentId path string true "Payment ID"
// @Param request body RefundPaymentRequest true "Refund data"
// @Success 200 {object} PaymentResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Failure 502 {object} errors.ErrorResponse
// @Router /payments/{paymentId}/refund [post]
func (h *PaymentHandler) RefundPayment(c echo.Context) error {
	var req RefundPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		})
	}

	amount := decimal.Zero
	if req.Amount != "" {
		var err error
		amount, err = decimal.NewFromString(req.Amount)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
				Error: "invalid amount",
				Code:  "INVALID_AMOUNT",
			})
		}
	}

	payment, err := h.paymentService.RefundPayment(c.Request().Context(), c.Param("paymentId"), amount, req.Reason)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, toPaymentResponse(payment, nil))
}

// VerifyPaymentRequest carries the amount to verify against the record.
type VerifyPaymentRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// VerifyPaymentResponse reports whether the payment checks out.
type VerifyPaymentResponse struct {
	PaymentID string `json:"payment_id"`
	Valid     bool   `json:"valid"`
}

// VerifyPayment godoc
// @Summary Verify a payment amount against the stored record
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param paymentId path string true "Payment ID"
// @Param request body VerifyPaymentRequest true "Verification data"
// @Success 200 {object} VerifyPaymentResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /payments/{paymentId}/verify [post]
func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	var req VerifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid amount",
			Code:  "INVALID_AMOUNT",
		})
	}

	paymentID := c.Param("paymentId")
	valid, err := h.paymentService.VerifyPayment(c.Request().Context(), paymentID, amount)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, VerifyPaymentResponse{PaymentID: paymentID, Valid: valid})
}

// WebhookRequest is the provider callback payload. The HMAC signature and
// its timestamp travel as X-Payment-Signature / X-Payment-Timestamp
// headers, since the MAC covers the exact body bytes.
type WebhookRequest struct {
	EventID            string `json:"event_id"`
	PaymentID          string `json:"payment_id"`
	OrderID            string `json:"order_id"`
	Status             string `json:"status"`
	Amount             string `json:"amount"`
	Method             string `json:"method"`
	Provider           string `json:"provider"`
	ExternalPaymentKey string `json:"external_payment_key"`
	ApprovedAt         string `json:"approved_at"`
	FailureReason      string `json:"failure_reason"`
}

// HandleWebhook godoc
// @Summary Receive a provider payment webhook
// @Tags payments
// @Accept json
// @Produce json
// @Param X-Payment-Signature header string true "HMAC-SHA256 signature of the body"
// @Param X-Payment-Timestamp header int true "Unix timestamp the signature covers"
// @Param request body WebhookRequest true "Webhook payload"
// @Success 200 {object} PaymentResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /payments/webhook [post]
func (h *PaymentHandler) HandleWebhook(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "unreadable body",
			Code:  "INVALID_REQUEST",
		})
	}

	var req WebhookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid webhook payload",
			Code:  "INVALID_REQUEST",
		})
	}

	timestamp, err := strconv.ParseInt(c.Request().Header.Get("X-Payment-Timestamp"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "missing or invalid timestamp header",
			Code:  "INVALID_REQUEST",
		})
	}

	amount := decimal.Zero
	if req.Amount != "" {
		amount, err = decimal.NewFromString(req.Amount)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
				Error: "invalid amount",
				Code:  "INVALID_AMOUNT",
			})
		}
	}

	var approvedAt *time.Time
	if req.ApprovedAt != "" {
		if t, err := time.Parse(time.RFC3339, req.ApprovedAt); err == nil {
			approvedAt = &t
		}
	}

	payment, err := h.paymentService.ProcessWebhook(c.Request().Context(), service.WebhookInput{
		RawPayload:         raw,
		Signature:          c.Request().Header.Get("X-Payment-Signature"),
		Timestamp:          timestamp,
		EventID:            req.EventID,
		PaymentID:          req.PaymentID,
		OrderID:            req.OrderID,
		Status:             model.PaymentStatus(req.Status),
		Amount:             amount,
		Method:             model.PaymentMethod(req.Method),
		Provider:           model.PaymentProvider(req.Provider),
		ExternalPaymentKey: req.ExternalPaymentKey,
		ApprovedAt:         approvedAt,
		FailureReason:      req.FailureReason,
	})
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, toPaymentResponse(payment, nil))
}

// ProcessExpiredResponse reports one manual sweep run.
type ProcessExpiredResponse struct {
	Expired int `json:"expired"`
}

// ProcessExpired godoc
// @Summary Expire timed-out pending payments now
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ProcessExpiredResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /payments/process-expired [post]
func (h *PaymentHandler) ProcessExpired(c echo.Context) error {
	expired, err := h.sweeper.RunOnce(c.Request().Context())
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, ProcessExpiredResponse{Expired: expired})
}
