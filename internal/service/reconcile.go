package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"seatpay/internal/domain"
	"seatpay/internal/gateway"
	"seatpay/internal/logger"
	"seatpay/internal/metrics"
	"seatpay/internal/repository"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Gateway-Signature"

// Sources of status updates, used as a metric label.
const (
	SourceWebhook = "webhook"
	SourceSweep   = "sweep"
)

// Outcome is how a status update was handled.
type Outcome string

const (
	OutcomeAck      Outcome = "ack"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeRejected Outcome = "rejected"
)

var unresolvedStatuses = []domain.PaymentStatus{
	domain.PaymentStatusPending,
	domain.PaymentStatusProcessing,
}

// errAlreadyResolved aborts the confirm transaction when another update won.
var errAlreadyResolved = errors.New("payment already resolved")

// StatusUpdate is a gateway-reported payment status, from a webhook or a
// status query.
type StatusUpdate struct {
	OrderReference       string
	GatewayTransactionID string
	Status               gateway.Status
	CollectedAmount      int64
	CollectedCurrency    string
	Message              string
}

// Reconciler applies gateway status updates to payments and bookings.
// Applying the same update twice is a no-op.
type Reconciler struct {
	paymentRepo repository.PaymentRepository
	transactor  repository.Transactor
	notifier    BookingNotifier
	cache       StatusCache
	secret      []byte
	epsilon     int64
}

// NewReconciler creates a new Reconciler. cache may be nil.
func NewReconciler(
	paymentRepo repository.PaymentRepository,
	transactor repository.Transactor,
	notifier BookingNotifier,
	cache StatusCache,
	webhookSecret string,
	amountEpsilon int64,
) *Reconciler {
	return &Reconciler{
		paymentRepo: paymentRepo,
		transactor:  transactor,
		notifier:    notifier,
		cache:       cache,
		secret:      []byte(webhookSecret),
		epsilon:     amountEpsilon,
	}
}

// HandleWebhook authenticates and applies a gateway callback. Only
// ErrWebhookUnauthenticated should change the HTTP answer; every other
// result is acknowledged so the gateway does not retry.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte, signature string) (Outcome, error) {
	if err := r.VerifySignature(body, signature); err != nil {
		metrics.ReconcileOutcomes.WithLabelValues(SourceWebhook, string(OutcomeRejected)).Inc()
		logger.WithContext(ctx).Warn("Security: webhook signature rejected")
		return OutcomeRejected, err
	}

	update, err := ParseWebhookEvent(body)
	if err != nil {
		metrics.ReconcileOutcomes.WithLabelValues(SourceWebhook, string(OutcomeRejected)).Inc()
		logger.WithContext(ctx).Warn("Malformed webhook event", "error", err)
		return OutcomeRejected, err
	}

	return r.Apply(ctx, SourceWebhook, update)
}

// VerifySignature checks signature against the HMAC-SHA256 of body. An
// optional "sha256=" prefix is accepted.
func (r *Reconciler) VerifySignature(body []byte, signature string) error {
	if len(r.secret) == 0 {
		return fmt.Errorf("%w: no webhook secret configured", ErrWebhookUnauthenticated)
	}

	sig := strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(sig)
	if err != nil || len(got) == 0 {
		return ErrWebhookUnauthenticated
	}

	mac := hmac.New(sha256.New, r.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrWebhookUnauthenticated
	}
	return nil
}

// SignWebhook returns the hex HMAC-SHA256 of body under secret.
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type webhookPayload struct {
	ID                string         `json:"id"`
	TransactionID     string         `json:"transactionId"`
	Status            gateway.Status `json:"status"`
	OrderReference    string         `json:"orderReference"`
	CollectedAmount   gateway.Amount `json:"collectedAmount"`
	CollectedCurrency string         `json:"collectedCurrency"`
	Message           string         `json:"message"`
}

// webhookEnvelope accepts both a flat payload and one nested under "data".
type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  *webhookPayload `json:"data"`
	webhookPayload
}

// ParseWebhookEvent decodes a callback body into a StatusUpdate.
func ParseWebhookEvent(body []byte) (StatusUpdate, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return StatusUpdate{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	p := env.webhookPayload
	if env.Data != nil {
		p = *env.Data
	}

	if p.Status == "" {
		return StatusUpdate{}, fmt.Errorf("%w: missing status", ErrMalformedEvent)
	}

	gatewayID := p.ID
	if gatewayID == "" {
		gatewayID = p.TransactionID
	}
	if p.OrderReference == "" && gatewayID == "" {
		return StatusUpdate{}, fmt.Errorf("%w: missing order reference", ErrMalformedEvent)
	}

	return StatusUpdate{
		OrderReference:       p.OrderReference,
		GatewayTransactionID: gatewayID,
		Status:               p.Status,
		CollectedAmount:      int64(p.CollectedAmount),
		CollectedCurrency:    p.CollectedCurrency,
		Message:              p.Message,
	}, nil
}

// StatusUpdateFromQuery converts a status query response into a StatusUpdate.
func StatusUpdateFromQuery(res *gateway.StatusResult) StatusUpdate {
	return StatusUpdate{
		OrderReference:       res.OrderReference,
		GatewayTransactionID: res.ID,
		Status:               res.Status,
		CollectedAmount:      int64(res.CollectedAmount),
		CollectedCurrency:    res.CollectedCurrency,
		Message:              res.Message,
	}
}

// Apply moves the matching payment according to update. Infrastructure
// failures are returned with OutcomeIgnored and leave state untouched.
func (r *Reconciler) Apply(ctx context.Context, source string, update StatusUpdate) (outcome Outcome, err error) {
	defer func() {
		label := string(outcome)
		if err != nil && outcome == OutcomeIgnored {
			label = "error"
		}
		metrics.ReconcileOutcomes.WithLabelValues(source, label).Inc()
	}()

	log := logger.WithContext(ctx).With(
		"source", source,
		"order_reference", update.OrderReference,
		"gateway_status", update.Status,
	)

	payment, err := r.findPayment(ctx, update)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("No payment matches status update")
		return OutcomeIgnored, nil
	}
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("load payment: %w", err)
	}
	log = log.With("payment_id", payment.ID, "booking_id", payment.BookingID)

	if payment.Status.IsTerminal() {
		log.Debug("Payment already resolved", "status", payment.Status)
		return OutcomeIgnored, nil
	}

	switch {
	case update.Status == gateway.StatusProcessing:
		ok, err := r.paymentRepo.MarkProcessing(ctx, payment.ID, update.GatewayTransactionID)
		if err != nil {
			return OutcomeIgnored, fmt.Errorf("mark processing: %w", err)
		}
		if !ok {
			return OutcomeIgnored, nil
		}
		r.invalidate(ctx, payment.BookingID)
		return OutcomeAck, nil

	case update.Status.Succeeded():
		return r.complete(ctx, log, payment, update)

	case update.Status == gateway.StatusFailed:
		reason := "gateway reported FAILED"
		if update.Message != "" {
			reason += ": " + update.Message
		}
		ok, err := r.paymentRepo.Transition(ctx, payment.ID, unresolvedStatuses, domain.PaymentStatusFailed, reason)
		if err != nil {
			return OutcomeIgnored, fmt.Errorf("mark failed: %w", err)
		}
		if !ok {
			return OutcomeIgnored, nil
		}
		r.invalidate(ctx, payment.BookingID)
		log.Info("Payment failed")
		if err := r.notifier.PaymentFailed(ctx, payment, reason); err != nil {
			log.Warn("Failure notification not sent", "error", err)
		}
		return OutcomeAck, nil
	}

	return OutcomeRejected, fmt.Errorf("%w: unexpected status %q", ErrMalformedEvent, update.Status)
}

// complete confirms the booking and completes the payment in one transaction.
func (r *Reconciler) complete(ctx context.Context, log *slog.Logger, payment *domain.Payment, update StatusUpdate) (Outcome, error) {
	amountErr := VerifyAmount(update.CollectedAmount, payment.Amount, r.epsilon)
	if amountErr != nil || !strings.EqualFold(update.CollectedCurrency, payment.Currency) {
		metrics.AmountMismatches.WithLabelValues("reconcile").Inc()
		log.Warn("Security: collected amount does not match payment, not confirming",
			"expected_amount", payment.Amount,
			"collected_amount", update.CollectedAmount,
			"expected_currency", payment.Currency,
			"collected_currency", update.CollectedCurrency,
		)
		return OutcomeRejected, ErrAmountMismatch
	}

	err := r.transactor.WithinTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		ok, err := repos.Payments.Transition(ctx, payment.ID, unresolvedStatuses, domain.PaymentStatusCompleted, "")
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadyResolved
		}

		confirmed, err := repos.Bookings.Confirm(ctx, payment.BookingID)
		if err != nil {
			return err
		}
		if confirmed {
			return nil
		}

		booking, err := repos.Bookings.GetByID(ctx, payment.BookingID)
		if err != nil {
			return err
		}
		if booking.Status == domain.BookingStatusConfirmed {
			return nil
		}
		return fmt.Errorf("%w: booking is %s", ErrBookingCancelled, booking.Status)
	})

	switch {
	case errors.Is(err, errAlreadyResolved):
		return OutcomeIgnored, nil
	case errors.Is(err, ErrBookingCancelled):
		return r.refundRequired(ctx, log, payment)
	case err != nil:
		return OutcomeIgnored, fmt.Errorf("confirm payment: %w", err)
	}

	payment.Status = domain.PaymentStatusCompleted
	r.invalidate(ctx, payment.BookingID)
	log.Info("Payment completed, booking confirmed")

	if err := r.notifier.BookingConfirmed(ctx, payment); err != nil {
		log.Warn("Confirmation notification not sent", "error", err)
	}
	return OutcomeAck, nil
}

// refundRequired closes a payment whose money arrived after its booking was
// cancelled. The booking stays cancelled and the refund is left to operators.
func (r *Reconciler) refundRequired(ctx context.Context, log *slog.Logger, payment *domain.Payment) (Outcome, error) {
	const reason = "collected for cancelled booking, refund required"

	log.Error("Money collected for cancelled booking", "amount", payment.Amount, "currency", payment.Currency)

	ok, err := r.paymentRepo.Transition(ctx, payment.ID, unresolvedStatuses, domain.PaymentStatusFailed, reason)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("mark refund required: %w", err)
	}
	if !ok {
		return OutcomeIgnored, nil
	}
	r.invalidate(ctx, payment.BookingID)

	if err := r.notifier.RefundRequired(ctx, payment, reason); err != nil {
		log.Warn("Refund notification not sent", "error", err)
	}
	return OutcomeRejected, ErrBookingCancelled
}

func (r *Reconciler) findPayment(ctx context.Context, update StatusUpdate) (*domain.Payment, error) {
	if update.OrderReference != "" {
		payment, err := r.paymentRepo.GetByOrderReference(ctx, update.OrderReference)
		if err == nil || !errors.Is(err, repository.ErrNotFound) {
			return payment, err
		}
	}
	if update.GatewayTransactionID != "" {
		return r.paymentRepo.GetByGatewayTransactionID(ctx, update.GatewayTransactionID)
	}
	return nil, repository.ErrNotFound
}

func (r *Reconciler) invalidate(ctx context.Context, bookingID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateSnapshot(ctx, bookingID); err != nil {
		logger.WithContext(ctx).Warn("Status cache invalidation failed", "booking_id", bookingID, "error", err)
	}
}
