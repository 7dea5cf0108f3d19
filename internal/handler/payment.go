package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"seatpay/internal/domain"
	"seatpay/internal/logger"
	"seatpay/internal/middleware"
	"seatpay/internal/service"
)

const maxWebhookBody = 64 << 10

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
	reconciler     *service.Reconciler
	exposeErrors   bool
}

// NewPaymentHandler creates a new PaymentHandler. exposeErrors adds raw
// error text to responses and must only be set in development.
func NewPaymentHandler(paymentService *service.PaymentService, reconciler *service.Reconciler, exposeErrors bool) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		reconciler:     reconciler,
		exposeErrors:   exposeErrors,
	}
}

// InitiatePaymentRequest is the HTTP request body for starting a payment.
type InitiatePaymentRequest struct {
	BookingID     string `json:"booking_id"`
	PaymentMethod string `json:"payment_method"`
	PhoneNumber   string `json:"phone_number"`
	Amount        *int64 `json:"amount"`
}

// PaymentResponse is the HTTP response for payment operations.
type PaymentResponse struct {
	PaymentID      string `json:"payment_id"`
	OrderReference string `json:"order_reference"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Message        string `json:"message,omitempty"`
}

// WebhookResponse acknowledges a gateway callback.
type WebhookResponse struct {
	Status string `json:"status"`
}

// InitiatePayment handles POST /v1/payments/initiate
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Category: categoryValidation})
		return
	}

	if req.BookingID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "booking_id is required", Category: categoryValidation})
		return
	}

	result, err := h.paymentService.Initiate(c.Request.Context(), service.InitiateRequest{
		BookingID:     req.BookingID,
		CallerID:      middleware.UserID(c),
		Method:        domain.PaymentMethod(req.PaymentMethod),
		Phone:         req.PhoneNumber,
		ClaimedAmount: req.Amount,
	})

	if errors.Is(err, service.ErrGatewayTimeout) && result != nil {
		resp := paymentResponse(result)
		resp.Message = "payment is being processed, confirm on your phone"
		respondJSON(c, http.StatusAccepted, resp)
		return
	}

	if err != nil {
		var paymentID string
		if result != nil {
			paymentID = result.PaymentID
		}
		respondError(c, err, paymentID, h.exposeErrors)
		return
	}

	respondJSON(c, http.StatusOK, paymentResponse(result))
}

// Webhook handles POST /v1/payments/webhook
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable body", Category: categoryValidation})
		return
	}

	ctx := c.Request.Context()
	outcome, err := h.reconciler.HandleWebhook(ctx, body, c.GetHeader(service.SignatureHeader))
	if errors.Is(err, service.ErrWebhookUnauthenticated) {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid signature", Category: categoryAuth})
		return
	}
	if err != nil {
		logger.WithContext(ctx).Info("Webhook handled with error", "outcome", outcome, "error", err)
	}

	respondJSON(c, http.StatusOK, WebhookResponse{Status: string(outcome)})
}

// GetBookingPayment handles GET /v1/bookings/:id/payment
func (h *PaymentHandler) GetBookingPayment(c *gin.Context) {
	snapshot, err := h.paymentService.GetPaymentStatus(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "", h.exposeErrors)
		return
	}

	respondJSON(c, http.StatusOK, snapshot)
}

func paymentResponse(r *service.InitiateResult) PaymentResponse {
	return PaymentResponse{
		PaymentID:      r.PaymentID,
		OrderReference: r.OrderReference,
		Status:         string(r.Status),
		Amount:         r.Amount,
		Currency:       r.Currency,
	}
}
