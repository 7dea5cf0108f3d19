package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"seatpay/internal/repository"
	"seatpay/internal/service"
)

// Error categories returned to clients.
const (
	categoryValidation = "validation"
	categoryAuth       = "auth"
	categoryNotFound   = "not_found"
	categoryConflict   = "conflict"
	categoryGateway    = "gateway"
	categoryServer     = "server"
)

// ErrorResponse represents an error response. Detail carries the raw error
// and is only filled in development.
type ErrorResponse struct {
	Error     string `json:"error"`
	Category  string `json:"category"`
	PaymentID string `json:"payment_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type errorClass struct {
	status   int
	category string
	message  string
}

// errorClasses is checked in order; the first sentinel in the chain wins.
var errorClasses = []struct {
	target error
	class  errorClass
}{
	{service.ErrUnauthenticated, errorClass{http.StatusUnauthorized, categoryAuth, "authentication required"}},

	{service.ErrInvalidBookingID, errorClass{http.StatusBadRequest, categoryValidation, "booking id is required"}},
	{service.ErrInvalidPaymentMethod, errorClass{http.StatusBadRequest, categoryValidation, "unsupported payment method"}},
	{service.ErrPhoneRequired, errorClass{http.StatusBadRequest, categoryValidation, "phone number is required for mobile money"}},
	{service.ErrInvalidPhone, errorClass{http.StatusBadRequest, categoryValidation, "phone number does not match the payment method"}},
	{service.ErrAmountMismatch, errorClass{http.StatusBadRequest, categoryValidation, "amount does not match booking total"}},
	{service.ErrInvalidBooking, errorClass{http.StatusBadRequest, categoryValidation, "booking cannot be paid"}},

	{service.ErrBookingNotFound, errorClass{http.StatusNotFound, categoryNotFound, "booking not found"}},
	{repository.ErrNotFound, errorClass{http.StatusNotFound, categoryNotFound, "not found"}},

	{service.ErrDuplicatePayment, errorClass{http.StatusConflict, categoryConflict, "a payment for this booking is already in progress"}},
	{service.ErrAlreadyCompleted, errorClass{http.StatusConflict, categoryConflict, "booking is already paid"}},
	{service.ErrAlreadyConfirmed, errorClass{http.StatusConflict, categoryConflict, "booking is already confirmed"}},
	{service.ErrBookingCancelled, errorClass{http.StatusConflict, categoryConflict, "booking is cancelled"}},

	{service.ErrMethodUnavailable, errorClass{http.StatusInternalServerError, categoryGateway, "payment method is currently unavailable for this number"}},
	{service.ErrGatewayRejected, errorClass{http.StatusInternalServerError, categoryGateway, "payment was declined by the provider"}},
	{service.ErrGatewayUnavailable, errorClass{http.StatusInternalServerError, categoryGateway, "payment provider is unavailable, try again later"}},
}

var serverError = errorClass{http.StatusInternalServerError, categoryServer, "internal server error"}

// classifyError maps service/repository errors to a status code and category.
func classifyError(err error) errorClass {
	for _, ec := range errorClasses {
		if errors.Is(err, ec.target) {
			return ec.class
		}
	}
	return serverError
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error, paymentID string, exposeDetail bool) {
	class := classifyError(err)
	if class.status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	resp := ErrorResponse{
		Error:     class.message,
		Category:  class.category,
		PaymentID: paymentID,
	}
	if exposeDetail {
		resp.Detail = err.Error()
	}
	c.JSON(class.status, resp)
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}
