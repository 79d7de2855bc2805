package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrPaymentNotFound is returned when a payment is not found.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrDuplicateOrderID is returned when a payment with the same order ID already exists.
	ErrDuplicateOrderID = errors.New("duplicate order id")
	// ErrVersionConflict is returned when an optimistic-concurrency update loses the race.
	ErrVersionConflict = errors.New("payment version conflict")
	// ErrIllegalTransition is returned when a status change violates the transition table.
	ErrIllegalTransition = errors.New("illegal payment status transition")
	// ErrSignatureInvalid is returned when a webhook signature does not verify.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	// ErrStaleWebhook is returned when a webhook timestamp falls outside the replay window.
	ErrStaleWebhook = errors.New("webhook timestamp outside replay window")
	// ErrAmountMismatch is returned when a reported amount differs from the stored amount.
	ErrAmountMismatch = errors.New("payment amount mismatch")
	// ErrInvalidAmount is returned when an amount is out of the accepted range.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrRefundExceedsAmount is returned when a refund would exceed the paid amount.
	ErrRefundExceedsAmount = errors.New("refund exceeds payment amount")
	// ErrProviderUnavailable is returned when a provider call did not produce a definitive outcome.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrProviderRejected is returned when the provider definitively rejected an operation.
	ErrProviderRejected = errors.New("payment provider rejected the operation")
	// ErrUnknownProvider is returned when no gateway is registered for a payment method.
	ErrUnknownProvider = errors.New("unknown payment provider")
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors. Messages are our own
// sentinel texts, never raw provider output.
func MapErrorToHTTP(err error) *HTTPError {
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		return NewHTTPError(http.StatusNotFound, err.Error(), "PAYMENT_NOT_FOUND")
	case errors.Is(err, ErrDuplicateOrderID):
		return NewHTTPError(http.StatusConflict, err.Error(), "DUPLICATE_ORDER_ID")
	case errors.Is(err, ErrVersionConflict):
		return NewHTTPError(http.StatusConflict, err.Error(), "VERSION_CONFLICT")
	case errors.Is(err, ErrIllegalTransition):
		return NewHTTPError(http.StatusConflict, err.Error(), "ILLEGAL_TRANSITION")
	case errors.Is(err, ErrSignatureInvalid):
		return NewHTTPError(http.StatusUnauthorized, err.Error(), "SIGNATURE_INVALID")
	case errors.Is(err, ErrStaleWebhook):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "STALE_WEBHOOK")
	case errors.Is(err, ErrAmountMismatch):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "AMOUNT_MISMATCH")
	case errors.Is(err, ErrInvalidAmount):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "INVALID_AMOUNT")
	case errors.Is(err, ErrRefundExceedsAmount):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "REFUND_EXCEEDS_AMOUNT")
	case errors.Is(err, ErrProviderUnavailable):
		return NewHTTPError(http.StatusBadGateway, err.Error(), "PROVIDER_UNAVAILABLE")
	case errors.Is(err, ErrProviderRejected):
		return NewHTTPError(http.StatusBadGateway, err.Error(), "PROVIDER_REJECTED")
	case errors.Is(err, ErrUnknownProvider):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "UNKNOWN_PROVIDER")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// IsRetryable reports whether a webhook sender should retry the delivery.
// Signature, freshness and amount failures are permanent; conflicts and
// internal errors may resolve on a later attempt.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrStaleWebhook),
		errors.Is(err, ErrAmountMismatch),
		errors.Is(err, ErrIllegalTransition),
		errors.Is(err, ErrPaymentNotFound):
		return false
	default:
		return true
	}
}
