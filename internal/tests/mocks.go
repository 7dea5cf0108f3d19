package tests

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"seatpay/internal/domain"
	"seatpay/internal/gateway"
	"seatpay/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK BOOKING REPOSITORY
// ──────────────────────────────────────────────

// MockBookingRepository is a mock implementation of BookingRepository.
type MockBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*domain.Booking

	// Counters for verification
	ConfirmCallCount int32

	// Error injection
	GetError     error
	ConfirmError error
}

// NewMockBookingRepository creates a new mock booking repository.
func NewMockBookingRepository() *MockBookingRepository {
	return &MockBookingRepository{
		bookings: make(map[string]*domain.Booking),
	}
}

// AddBooking adds a booking to the mock repository.
func (m *MockBookingRepository) AddBooking(booking *domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *booking
	m.bookings[booking.ID] = &copy
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	booking, ok := m.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *booking
	return &copy, nil
}

func (m *MockBookingRepository) GetForOwner(ctx context.Context, id, userID string) (*domain.Booking, error) {
	booking, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return booking, nil
}

func (m *MockBookingRepository) Confirm(ctx context.Context, id string) (bool, error) {
	atomic.AddInt32(&m.ConfirmCallCount, 1)
	if m.ConfirmError != nil {
		return false, m.ConfirmError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[id]
	if !ok || booking.Status != domain.BookingStatusPending {
		return false, nil
	}
	booking.Status = domain.BookingStatusConfirmed
	booking.UpdatedAt = time.Now()
	return true, nil
}

// SetStatus changes a booking's status, as an external cancel would.
func (m *MockBookingRepository) SetStatus(id string, status domain.BookingStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bookings[id]; ok {
		b.Status = status
	}
}

// Status returns booking status for test assertions.
func (m *MockBookingRepository) Status(id string) domain.BookingStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.bookings[id]; ok {
		return b.Status
	}
	return ""
}

func (m *MockBookingRepository) snapshot() map[string]domain.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.Booking, len(m.bookings))
	for id, b := range m.bookings {
		out[id] = *b
	}
	return out
}

func (m *MockBookingRepository) restore(state map[string]domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = make(map[string]*domain.Booking, len(state))
	for id, b := range state {
		b := b
		m.bookings[id] = &b
	}
}

// ──────────────────────────────────────────────
// MOCK SCHEDULE REPOSITORY
// ──────────────────────────────────────────────

// MockScheduleRepository is a mock implementation of ScheduleRepository.
type MockScheduleRepository struct {
	mu        sync.RWMutex
	schedules map[string]*domain.Schedule

	GetCallCount int32
}

// NewMockScheduleRepository creates a new mock schedule repository.
func NewMockScheduleRepository() *MockScheduleRepository {
	return &MockScheduleRepository{
		schedules: make(map[string]*domain.Schedule),
	}
}

// AddSchedule adds a schedule to the mock repository.
func (m *MockScheduleRepository) AddSchedule(schedule *domain.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *schedule
	m.schedules[schedule.ID] = &copy
}

func (m *MockScheduleRepository) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *s
	return &copy, nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentRepository is a mock implementation of PaymentRepository. It
// enforces the same uniqueness rules as the payments table: one order
// reference per payment and one pending, processing or completed payment
// per booking.
type MockPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
	order    []string

	// Counters for verification
	CreateCallCount         int32
	MarkProcessingCallCount int32
	TransitionCallCount     int32

	// Error injection
	CreateError     error
	TransitionError error
	ListError       error
}

// NewMockPaymentRepository creates a new mock payment repository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[string]*domain.Payment),
	}
}

// AddPayment adds a payment without constraint checks.
func (m *MockPaymentRepository) AddPayment(payment *domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *payment
	m.payments[payment.ID] = &copy
	m.order = append(m.order, payment.ID)
}

// blocksNewAttempt mirrors the partial unique index on payments: pending,
// processing and completed rows block another attempt for the booking.
func blocksNewAttempt(s domain.PaymentStatus) bool {
	return s == domain.PaymentStatusPending || s == domain.PaymentStatusProcessing || s == domain.PaymentStatusCompleted
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		if p.OrderReference == payment.OrderReference {
			return fmt.Errorf("%w: payments_order_reference_key", repository.ErrDuplicate)
		}
		if p.BookingID == payment.BookingID && blocksNewAttempt(p.Status) {
			return fmt.Errorf("%w: payments_one_active_per_booking", repository.ErrDuplicate)
		}
	}

	copy := *payment
	m.payments[payment.ID] = &copy
	m.order = append(m.order, payment.ID)
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return m.find(func(p *domain.Payment) bool { return p.ID == id })
}

func (m *MockPaymentRepository) GetByOrderReference(ctx context.Context, orderReference string) (*domain.Payment, error) {
	return m.find(func(p *domain.Payment) bool { return p.OrderReference == orderReference })
}

func (m *MockPaymentRepository) GetByGatewayTransactionID(ctx context.Context, gatewayID string) (*domain.Payment, error) {
	return m.find(func(p *domain.Payment) bool {
		return p.GatewayTransactionID != "" && p.GatewayTransactionID == gatewayID
	})
}

func (m *MockPaymentRepository) GetLatestByBookingID(ctx context.Context, bookingID string) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		p := m.payments[m.order[i]]
		if p.BookingID == bookingID {
			copy := *p
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockPaymentRepository) HasCompleted(ctx context.Context, bookingID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.BookingID == bookingID && p.Status == domain.PaymentStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockPaymentRepository) MarkProcessing(ctx context.Context, id, gatewayTransactionID string) (bool, error) {
	atomic.AddInt32(&m.MarkProcessingCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || (p.Status != domain.PaymentStatusPending && p.Status != domain.PaymentStatusProcessing) {
		return false, nil
	}
	p.Status = domain.PaymentStatusProcessing
	if gatewayTransactionID != "" {
		p.GatewayTransactionID = gatewayTransactionID
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockPaymentRepository) Transition(ctx context.Context, id string, from []domain.PaymentStatus, to domain.PaymentStatus, reason string) (bool, error) {
	atomic.AddInt32(&m.TransitionCallCount, 1)
	if m.TransitionError != nil {
		return false, m.TransitionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if p.Status == s {
			p.Status = to
			if reason != "" {
				p.FailureReason = reason
			}
			p.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (m *MockPaymentRepository) ListUnresolved(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.Payment, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Payment
	for _, p := range m.payments {
		if p.Method == domain.PaymentMethodCard || p.Status.IsTerminal() || !p.UpdatedAt.Before(updatedBefore) {
			continue
		}
		copy := *p
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Payment returns a copy of the payment for test assertions.
func (m *MockPaymentRepository) Payment(id string) *domain.Payment {
	p, _ := m.GetByID(context.Background(), id)
	return p
}

// ForBooking returns all payments for a booking in insertion order.
func (m *MockPaymentRepository) ForBooking(bookingID string) []*domain.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Payment
	for _, id := range m.order {
		if p := m.payments[id]; p.BookingID == bookingID {
			copy := *p
			out = append(out, &copy)
		}
	}
	return out
}

// Age moves a payment's UpdatedAt into the past.
func (m *MockPaymentRepository) Age(id string, by time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok {
		p.UpdatedAt = p.UpdatedAt.Add(-by)
	}
}

func (m *MockPaymentRepository) find(match func(*domain.Payment) bool) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if match(p) {
			copy := *p
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockPaymentRepository) snapshot() map[string]domain.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.Payment, len(m.payments))
	for id, p := range m.payments {
		out[id] = *p
	}
	return out
}

func (m *MockPaymentRepository) restore(state map[string]domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range state {
		p := p
		m.payments[id] = &p
	}
}

// ──────────────────────────────────────────────
// MOCK TRANSACTOR
// ──────────────────────────────────────────────

// MockTransactor serializes transactions and restores both repositories
// when fn fails.
type MockTransactor struct {
	mu       sync.Mutex
	payments *MockPaymentRepository
	bookings *MockBookingRepository

	CommitCount   int32
	RollbackCount int32
}

// NewMockTransactor creates a transactor over the given mocks.
func NewMockTransactor(payments *MockPaymentRepository, bookings *MockBookingRepository) *MockTransactor {
	return &MockTransactor{payments: payments, bookings: bookings}
}

func (t *MockTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.TxRepositories) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	payments := t.payments.snapshot()
	bookings := t.bookings.snapshot()

	if err := fn(ctx, repository.TxRepositories{Payments: t.payments, Bookings: t.bookings}); err != nil {
		t.payments.restore(payments)
		t.bookings.restore(bookings)
		atomic.AddInt32(&t.RollbackCount, 1)
		return err
	}
	atomic.AddInt32(&t.CommitCount, 1)
	return nil
}

// ──────────────────────────────────────────────
// MOCK GATEWAY
// ──────────────────────────────────────────────

// MockGateway is a scriptable gateway. By default preview reports one
// available method, push answers PROCESSING and status queries fail.
type MockGateway struct {
	PreviewFunc func(ctx context.Context, in gateway.CollectionRequest) (*gateway.PreviewResult, error)
	PushFunc    func(ctx context.Context, in gateway.CollectionRequest) (*gateway.PushResult, error)
	QueryFunc   func(ctx context.Context, orderReference string) (*gateway.StatusResult, error)

	PreviewCallCount int32
	PushCallCount    int32
	QueryCallCount   int32
}

// NewMockGateway creates a new mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		PreviewFunc: func(ctx context.Context, in gateway.CollectionRequest) (*gateway.PreviewResult, error) {
			return &gateway.PreviewResult{
				ActiveMethods: []gateway.ActiveMethod{{Name: "Mpesa", Status: "AVAILABLE"}},
			}, nil
		},
		PushFunc: func(ctx context.Context, in gateway.CollectionRequest) (*gateway.PushResult, error) {
			return &gateway.PushResult{
				ID:             "gw-" + in.OrderReference,
				Status:         gateway.StatusProcessing,
				OrderReference: in.OrderReference,
			}, nil
		},
		QueryFunc: func(ctx context.Context, orderReference string) (*gateway.StatusResult, error) {
			return nil, &gateway.Error{Op: "status", Kind: gateway.ErrUnavailable, StatusCode: 503}
		},
	}
}

func (g *MockGateway) PreviewCollection(ctx context.Context, in gateway.CollectionRequest) (*gateway.PreviewResult, error) {
	atomic.AddInt32(&g.PreviewCallCount, 1)
	return g.PreviewFunc(ctx, in)
}

func (g *MockGateway) PushCollection(ctx context.Context, in gateway.CollectionRequest) (*gateway.PushResult, error) {
	atomic.AddInt32(&g.PushCallCount, 1)
	return g.PushFunc(ctx, in)
}

func (g *MockGateway) QueryStatus(ctx context.Context, orderReference string) (*gateway.StatusResult, error) {
	atomic.AddInt32(&g.QueryCallCount, 1)
	return g.QueryFunc(ctx, orderReference)
}

// ──────────────────────────────────────────────
// MOCK STATUS CACHE
// ──────────────────────────────────────────────

// MockStatusCache is an in-memory StatusCache.
type MockStatusCache struct {
	mu        sync.Mutex
	snapshots map[string]*domain.PaymentSnapshot

	GetCallCount        int32
	InvalidateCallCount int32
}

// NewMockStatusCache creates a new mock status cache.
func NewMockStatusCache() *MockStatusCache {
	return &MockStatusCache{snapshots: make(map[string]*domain.PaymentSnapshot)}
}

func (c *MockStatusCache) GetSnapshot(ctx context.Context, bookingID string) (*domain.PaymentSnapshot, error) {
	atomic.AddInt32(&c.GetCallCount, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.snapshots[bookingID]
	if !ok {
		return nil, nil
	}
	copy := *s
	return &copy, nil
}

func (c *MockStatusCache) SetSnapshot(ctx context.Context, snapshot *domain.PaymentSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy := *snapshot
	c.snapshots[snapshot.BookingID] = &copy
	return nil
}

func (c *MockStatusCache) InvalidateSnapshot(ctx context.Context, bookingID string) error {
	atomic.AddInt32(&c.InvalidateCallCount, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, bookingID)
	return nil
}

// Has reports whether a snapshot is cached for the booking.
func (c *MockStatusCache) Has(bookingID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.snapshots[bookingID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK NOTIFIER
// ──────────────────────────────────────────────

// MockNotifier records notifications by payment id.
type MockNotifier struct {
	mu        sync.Mutex
	Confirmed []string
	Failed    []string
	Refunds   []string
}

// NewMockNotifier creates a new mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (n *MockNotifier) BookingConfirmed(ctx context.Context, payment *domain.Payment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Confirmed = append(n.Confirmed, payment.ID)
	return nil
}

func (n *MockNotifier) PaymentFailed(ctx context.Context, payment *domain.Payment, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Failed = append(n.Failed, payment.ID)
	return nil
}

func (n *MockNotifier) RefundRequired(ctx context.Context, payment *domain.Payment, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Refunds = append(n.Refunds, payment.ID)
	return nil
}

// Counts returns the number of confirmed, failed and refund notifications.
func (n *MockNotifier) Counts() (confirmed, failed, refunds int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Confirmed), len(n.Failed), len(n.Refunds)
}

// ──────────────────────────────────────────────
// MOCK LEASER
// ──────────────────────────────────────────────

// MockLeaser grants a lease unless HeldElsewhere is set.
type MockLeaser struct {
	HeldElsewhere bool

	AcquireCallCount int32
	ReleaseCallCount int32
}

func (l *MockLeaser) AcquireLease(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&l.AcquireCallCount, 1)
	return !l.HeldElsewhere, nil
}

func (l *MockLeaser) ReleaseLease(ctx context.Context, name string) error {
	atomic.AddInt32(&l.ReleaseCallCount, 1)
	return nil
}
