package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"seatpay/internal/domain"
	"seatpay/internal/gateway"
	"seatpay/internal/logger"
	"seatpay/internal/metrics"
	"seatpay/internal/repository"
)

// stateWriteTimeout bounds the status writes that follow a gateway call.
// They run detached from the request so a disconnected client cannot leave
// a payment pending.
const stateWriteTimeout = 5 * time.Second

// Gateway is the subset of the collection API the payment flow uses.
type Gateway interface {
	PreviewCollection(ctx context.Context, in gateway.CollectionRequest) (*gateway.PreviewResult, error)
	PushCollection(ctx context.Context, in gateway.CollectionRequest) (*gateway.PushResult, error)
	QueryStatus(ctx context.Context, orderReference string) (*gateway.StatusResult, error)
}

// StatusCache caches payment snapshots for the status read path.
type StatusCache interface {
	GetSnapshot(ctx context.Context, bookingID string) (*domain.PaymentSnapshot, error)
	SetSnapshot(ctx context.Context, snapshot *domain.PaymentSnapshot) error
	InvalidateSnapshot(ctx context.Context, bookingID string) error
}

// PaymentService starts payments and serves their status.
type PaymentService struct {
	bookingRepo repository.BookingRepository
	paymentRepo repository.PaymentRepository
	authority   *AmountAuthority
	gateway     Gateway
	cache       StatusCache
	epsilon     int64

	now         func() time.Time
	newOrderRef func() string
}

// NewPaymentService creates a new PaymentService. cache may be nil.
func NewPaymentService(
	bookingRepo repository.BookingRepository,
	paymentRepo repository.PaymentRepository,
	authority *AmountAuthority,
	gw Gateway,
	cache StatusCache,
	amountEpsilon int64,
) *PaymentService {
	return &PaymentService{
		bookingRepo: bookingRepo,
		paymentRepo: paymentRepo,
		authority:   authority,
		gateway:     gw,
		cache:       cache,
		epsilon:     amountEpsilon,
		now:         time.Now,
		newOrderRef: NewOrderReference,
	}
}

// NewOrderReference returns "ORD" followed by 32 hex characters.
func NewOrderReference() string {
	return "ORD" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// InitiateRequest contains the parameters for starting a payment.
type InitiateRequest struct {
	BookingID     string
	CallerID      string
	Method        domain.PaymentMethod
	Phone         string
	ClaimedAmount *int64 // optional client total, only ever compared
}

// InitiateResult describes the payment an Initiate call created.
type InitiateResult struct {
	PaymentID            string
	OrderReference       string
	Status               domain.PaymentStatus
	Amount               int64
	Currency             string
	GatewayTransactionID string
}

// Initiate validates the booking, creates a pending payment and, for mobile
// money, asks the gateway to push a PIN prompt to the payer.
//
// Once the payment row exists a result is returned even when err is non-nil,
// so the caller keeps the payment id. ErrGatewayTimeout means the push
// outcome is unknown and the payment is processing.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.BookingID == "" {
		return nil, ErrInvalidBookingID
	}
	if req.CallerID == "" {
		return nil, ErrUnauthenticated
	}

	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.Method))))
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	booking, err := s.bookingRepo.GetForOwner(ctx, req.BookingID, req.CallerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}

	completed, err := s.paymentRepo.HasCompleted(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("check completed payment: %w", err)
	}
	if completed {
		return nil, ErrAlreadyCompleted
	}

	switch booking.Status {
	case domain.BookingStatusConfirmed:
		return nil, ErrAlreadyConfirmed
	case domain.BookingStatusCancelled:
		return nil, ErrBookingCancelled
	}

	charge, err := s.authority.ComputeAuthoritativeAmount(ctx, booking)
	if err != nil {
		return nil, err
	}

	if req.ClaimedAmount != nil {
		if err := VerifyAmount(*req.ClaimedAmount, charge.Amount, s.epsilon); err != nil {
			metrics.AmountMismatches.WithLabelValues("initiate").Inc()
			logger.WithContext(ctx).Warn("Security: claimed amount does not match booking total",
				"booking_id", booking.ID,
				"claimed", *req.ClaimedAmount,
				"authoritative", charge.Amount,
			)
			return nil, err
		}
	}

	var phone string
	if method.IsMobileMoney() {
		if strings.TrimSpace(req.Phone) == "" {
			return nil, ErrPhoneRequired
		}
		phone = gateway.NormalizePhone(req.Phone)
		if err := gateway.ValidatePhone(method, phone); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPhone, err)
		}
	}

	now := s.now()
	payment := &domain.Payment{
		ID:             uuid.New().String(),
		BookingID:      booking.ID,
		Amount:         charge.Amount,
		Currency:       charge.Currency,
		Method:         method,
		Status:         domain.PaymentStatusPending,
		Phone:          phone,
		OrderReference: s.newOrderRef(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			metrics.PaymentInitiations.WithLabelValues(string(method), "duplicate").Inc()
			return nil, ErrDuplicatePayment
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}
	s.invalidate(ctx, booking.ID)

	if !method.IsMobileMoney() {
		// Card collection is handled outside this service.
		metrics.PaymentInitiations.WithLabelValues(string(method), "pending").Inc()
		return resultFor(payment), nil
	}

	result, err := s.collect(ctx, payment)
	metrics.PaymentInitiations.WithLabelValues(string(method), initiationOutcome(result, err)).Inc()
	return result, err
}

// collect runs preview then push for a freshly inserted mobile-money payment.
func (s *PaymentService) collect(ctx context.Context, payment *domain.Payment) (*InitiateResult, error) {
	log := logger.WithContext(ctx).With("payment_id", payment.ID, "order_reference", payment.OrderReference)

	in := gateway.CollectionRequest{
		PhoneNumber:    payment.Phone,
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		OrderReference: payment.OrderReference,
	}

	preview, err := s.gateway.PreviewCollection(ctx, in)
	if err != nil {
		log.Warn("Gateway preview failed", "error", err)
		s.fail(ctx, payment, "preview failed: "+failureKind(err))
		return resultFor(payment), mapGatewayError(err)
	}
	if len(preview.Available()) == 0 {
		log.Info("No active collection method for phone")
		s.fail(ctx, payment, "no active collection method")
		return resultFor(payment), ErrMethodUnavailable
	}

	push, err := s.gateway.PushCollection(ctx, in)
	if err != nil {
		if errors.Is(err, gateway.ErrTimeout) {
			// The prompt may have reached the payer; only a webhook or a
			// status query can tell.
			log.Warn("Gateway push timed out, outcome unknown", "error", err)
			s.markProcessing(ctx, payment, "")
			return resultFor(payment), fmt.Errorf("%w: %w", ErrGatewayTimeout, err)
		}
		log.Warn("Gateway push failed", "error", err)
		s.fail(ctx, payment, "push failed: "+failureKind(err))
		return resultFor(payment), mapGatewayError(err)
	}

	if push.Status == gateway.StatusFailed {
		log.Info("Gateway rejected push")
		s.fail(ctx, payment, "gateway reported FAILED")
		return resultFor(payment), ErrGatewayRejected
	}

	gatewayID := push.ID
	if gatewayID == "" {
		gatewayID = push.TransactionID
	}
	s.markProcessing(ctx, payment, gatewayID)
	return resultFor(payment), nil
}

// fail moves a pending payment to failed. A losing update means the
// payment was already resolved, which is left as is.
func (s *PaymentService) fail(ctx context.Context, payment *domain.Payment, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateWriteTimeout)
	defer cancel()

	ok, err := s.paymentRepo.Transition(ctx, payment.ID,
		[]domain.PaymentStatus{domain.PaymentStatusPending}, domain.PaymentStatusFailed, reason)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to mark payment failed",
			"payment_id", payment.ID, "error", err)
		return
	}
	if ok {
		payment.Status = domain.PaymentStatusFailed
		payment.FailureReason = reason
	}
	s.invalidate(ctx, payment.BookingID)
}

func (s *PaymentService) markProcessing(ctx context.Context, payment *domain.Payment, gatewayID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateWriteTimeout)
	defer cancel()

	ok, err := s.paymentRepo.MarkProcessing(ctx, payment.ID, gatewayID)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to mark payment processing",
			"payment_id", payment.ID, "error", err)
		return
	}
	if ok {
		payment.Status = domain.PaymentStatusProcessing
		if gatewayID != "" {
			payment.GatewayTransactionID = gatewayID
		}
	}
	s.invalidate(ctx, payment.BookingID)
}

// GetPaymentStatus returns the caller's view of a booking's latest payment.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, bookingID, callerID string) (*domain.PaymentSnapshot, error) {
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}
	if callerID == "" {
		return nil, ErrUnauthenticated
	}

	if s.cache != nil {
		cached, err := s.cache.GetSnapshot(ctx, bookingID)
		if err != nil {
			logger.WithContext(ctx).Warn("Status cache read failed", "booking_id", bookingID, "error", err)
		} else if cached != nil && cached.UserID == callerID {
			return cached, nil
		}
	}

	booking, err := s.bookingRepo.GetForOwner(ctx, bookingID, callerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}

	snapshot := &domain.PaymentSnapshot{
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		BookingStatus: booking.Status,
		UpdatedAt:     booking.UpdatedAt,
	}

	payment, err := s.paymentRepo.GetLatestByBookingID(ctx, booking.ID)
	switch {
	case err == nil:
		snapshot.PaymentID = payment.ID
		snapshot.PaymentStatus = payment.Status
		snapshot.OrderReference = payment.OrderReference
		snapshot.Amount = payment.Amount
		snapshot.Currency = payment.Currency
		if payment.UpdatedAt.After(snapshot.UpdatedAt) {
			snapshot.UpdatedAt = payment.UpdatedAt
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		return nil, fmt.Errorf("load payment: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetSnapshot(ctx, snapshot); err != nil {
			logger.WithContext(ctx).Warn("Status cache write failed", "booking_id", bookingID, "error", err)
		}
	}
	return snapshot, nil
}

func (s *PaymentService) invalidate(ctx context.Context, bookingID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSnapshot(ctx, bookingID); err != nil {
		logger.WithContext(ctx).Warn("Status cache invalidation failed", "booking_id", bookingID, "error", err)
	}
}

func resultFor(p *domain.Payment) *InitiateResult {
	return &InitiateResult{
		PaymentID:            p.ID,
		OrderReference:       p.OrderReference,
		Status:               p.Status,
		Amount:               p.Amount,
		Currency:             p.Currency,
		GatewayTransactionID: p.GatewayTransactionID,
	}
}

// mapGatewayError converts a gateway failure into the service error the
// handler reports, keeping the original in the chain.
func mapGatewayError(err error) error {
	if errors.Is(err, gateway.ErrRejected) {
		return fmt.Errorf("%w: %w", ErrGatewayRejected, err)
	}
	return fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
}

func failureKind(err error) string {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind.Error()
	}
	return "gateway error"
}

func initiationOutcome(result *InitiateResult, err error) string {
	switch {
	case errors.Is(err, ErrGatewayTimeout):
		return "unknown"
	case err != nil:
		return "failed"
	case result != nil:
		return string(result.Status)
	default:
		return "failed"
	}
}
