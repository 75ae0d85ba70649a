package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/Domenick1991/ticketbari/internal/kafka"
	"github.com/Domenick1991/ticketbari/internal/pagination"
	"github.com/Domenick1991/ticketbari/internal/repository"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) List(ctx context.Context, filter domain.BookingFilter, page pagination.Page) ([]domain.Booking, error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) Count(ctx context.Context, filter domain.BookingFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *MockBookingRepository) Stats(ctx context.Context, filter domain.BookingFilter) (domain.BookingStats, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(domain.BookingStats), args.Error(1)
}

func (m *MockBookingRepository) UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus) (*domain.Booking, error) {
	args := m.Called(ctx, id, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) DeletePending(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) MarkPaid(ctx context.Context, id, paymentReference string, now time.Time) (*domain.Booking, *domain.Payment, error) {
	args := m.Called(ctx, id, paymentReference, now)
	var b *domain.Booking
	var p *domain.Payment
	if args.Get(0) != nil {
		b = args.Get(0).(*domain.Booking)
	}
	if args.Get(1) != nil {
		p = args.Get(1).(*domain.Payment)
	}
	return b, p, args.Error(2)
}

func (m *MockBookingRepository) ListPayments(ctx context.Context, buyerEmail string) ([]domain.Payment, error) {
	args := m.Called(ctx, buyerEmail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Payment), args.Error(1)
}

func (m *MockBookingRepository) ListApprovedDepartedBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, deadline)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

type MockTicketRepository struct {
	mock.Mock
}

func (m *MockTicketRepository) List(ctx context.Context) ([]domain.Ticket, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	args := m.Called(ctx, ticket)
	return args.Error(0)
}

func (m *MockTicketRepository) ListByVendor(ctx context.Context, vendorEmail string) ([]domain.Ticket, error) {
	args := m.Called(ctx, vendorEmail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, bookingID, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockCache) ReleaseBookingLock(ctx context.Context, bookingID, token string) error {
	args := m.Called(ctx, bookingID, token)
	return args.Error(0)
}

func (m *MockCache) InvalidateTicket(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCache) MarkTripExpiredReported(ctx context.Context, bookingID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, bookingID, ttl)
	return args.Bool(0), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

var (
	now      = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	future   = now.Add(72 * time.Hour)
	departed = now.Add(-time.Hour)

	buyer  = domain.Actor{Email: "buyer@example.com", Role: domain.RoleUser}
	vendor = domain.Actor{Email: "vendor@example.com", Role: domain.RoleVendor}
	admin  = domain.Actor{Email: "admin@example.com", Role: domain.RoleAdmin}
)

const lockTTL = 10 * time.Second

type fixture struct {
	bookings *MockBookingRepository
	tickets  *MockTicketRepository
	cache    *MockCache
	producer *MockProducer
	service  *BookingService
}

func newFixture() *fixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		bookings: &MockBookingRepository{},
		tickets:  &MockTicketRepository{},
		cache:    &MockCache{},
		producer: &MockProducer{},
	}
	f.service = NewBookingService(f.bookings, f.tickets, f.cache, f.producer, "booking_topic", lockTTL,
		WithNotificationsTopic("notifications_topic"),
		WithFlagTTL(24*time.Hour),
		WithClock(clockwork.NewFakeClockAt(now)),
		WithLogger(logrus.NewEntry(logger)),
	)
	return f
}

func (f *fixture) expectLock(id string) {
	f.cache.On("AcquireBookingLock", mock.Anything, id, lockTTL).Return("tok-"+id, true, nil).Once()
	f.cache.On("ReleaseBookingLock", mock.Anything, id, "tok-"+id).Return(nil).Once()
}

func (f *fixture) expectPublish(id, eventType string) {
	match := mock.MatchedBy(func(e kafka.BookingEvent) bool { return e.Type == eventType && e.BookingID == id })
	f.producer.On("Publish", mock.Anything, "booking_topic", id, match).Return(nil).Once()
	f.producer.On("Publish", mock.Anything, "notifications_topic", id, match).Return(nil).Once()
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.bookings.AssertExpectations(t)
	f.tickets.AssertExpectations(t)
	f.cache.AssertExpectations(t)
	f.producer.AssertExpectations(t)
}

func booking(status domain.BookingStatus) *domain.Booking {
	return &domain.Booking{
		ID:          "b1",
		TicketID:    "t1",
		BuyerEmail:  buyer.Email,
		VendorEmail: vendor.Email,
		Quantity:    2,
		UnitPrice:   1200,
		TotalPrice:  2400,
		DepartureAt: future,
		Status:      status,
		CreatedAt:   now.Add(-time.Hour),
	}
}

func withStatus(b *domain.Booking, status domain.BookingStatus) *domain.Booking {
	out := *b
	out.Status = status
	return &out
}

func ticket(available int) *domain.Ticket {
	return &domain.Ticket{
		ID:                "t1",
		Title:             "Dhaka to Chattogram",
		VendorEmail:       vendor.Email,
		UnitPrice:         1200,
		AvailableQuantity: available,
		DepartureAt:       future,
		Status:            domain.TicketStatusApproved,
	}
}

func TestBookingService_CreateBooking_Success(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.tickets.On("GetByID", ctx, "t1").Return(ticket(5), nil).Once()
	f.bookings.On("Create", ctx, mock.MatchedBy(func(b *domain.Booking) bool {
		return b.ID != "" && b.BuyerEmail == buyer.Email && b.VendorEmail == vendor.Email &&
			b.Quantity == 2 && b.UnitPrice == 1200 && b.TotalPrice == 2400 && b.DepartureAt.Equal(future)
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Booking).Status = domain.BookingStatusPending
	}).Return(nil).Once()
	f.cache.On("InvalidateTicket", ctx, "t1").Return(nil).Once()
	f.producer.On("Publish", ctx, "booking_topic", mock.AnythingOfType("string"), mock.AnythingOfType("kafka.BookingEvent")).Return(nil).Once()
	f.producer.On("Publish", ctx, "notifications_topic", mock.AnythingOfType("string"), mock.AnythingOfType("kafka.BookingEvent")).Return(nil).Once()

	result, err := f.service.CreateBooking(ctx, buyer, CreateBookingInput{TicketID: "t1", Quantity: 2})

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, result.Status)
	assert.Equal(t, int64(2400), result.TotalPrice)
	f.assertExpectations(t)
}

func TestBookingService_CreateBooking_InsufficientInventory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.tickets.On("GetByID", ctx, "t1").Return(ticket(5), nil).Once()

	result, err := f.service.CreateBooking(ctx, buyer, CreateBookingInput{TicketID: "t1", Quantity: 6})

	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
	assert.Nil(t, result)
	f.bookings.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_CreateBooking_ExactInventory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.tickets.On("GetByID", ctx, "t1").Return(ticket(5), nil).Once()
	f.bookings.On("Create", ctx, mock.MatchedBy(func(b *domain.Booking) bool { return b.TotalPrice == 6000 })).Return(nil).Once()
	f.cache.On("InvalidateTicket", ctx, "t1").Return(nil).Once()
	f.producer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.CreateBooking(ctx, buyer, CreateBookingInput{TicketID: "t1", Quantity: 5})

	assert.NoError(t, err)
	f.bookings.AssertExpectations(t)
}

func TestBookingService_CreateBooking_LostInventoryRace(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.tickets.On("GetByID", ctx, "t1").Return(ticket(5), nil).Once()
	f.bookings.On("Create", ctx, mock.Anything).Return(domain.ErrInsufficientInventory).Once()

	_, err := f.service.CreateBooking(ctx, buyer, CreateBookingInput{TicketID: "t1", Quantity: 3})

	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
	f.cache.AssertNotCalled(t, "InvalidateTicket", mock.Anything, mock.Anything)
}

func TestBookingService_CreateBooking_Rejects(t *testing.T) {
	departedTicket := ticket(5)
	departedTicket.DepartureAt = departed
	pendingTicket := ticket(5)
	pendingTicket.Status = domain.TicketStatusPending
	rejectedTicket := ticket(5)
	rejectedTicket.Status = domain.TicketStatusRejected

	tests := []struct {
		name   string
		actor  domain.Actor
		input  CreateBookingInput
		ticket *domain.Ticket
		want   error
	}{
		{"vendor cannot book", vendor, CreateBookingInput{TicketID: "t1", Quantity: 1}, nil, domain.ErrForbidden},
		{"zero quantity", buyer, CreateBookingInput{TicketID: "t1", Quantity: 0}, nil, domain.ErrValidation},
		{"missing ticket id", buyer, CreateBookingInput{Quantity: 1}, nil, domain.ErrValidation},
		{"departed ticket", buyer, CreateBookingInput{TicketID: "t1", Quantity: 1}, departedTicket, domain.ErrExpired},
		{"ticket awaiting moderation", buyer, CreateBookingInput{TicketID: "t1", Quantity: 1}, pendingTicket, domain.ErrNotEligible},
		{"rejected ticket", buyer, CreateBookingInput{TicketID: "t1", Quantity: 1}, rejectedTicket, domain.ErrNotEligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			if tt.ticket != nil {
				f.tickets.On("GetByID", ctx, "t1").Return(tt.ticket, nil).Once()
			}

			_, err := f.service.CreateBooking(ctx, tt.actor, tt.input)

			assert.ErrorIs(t, err, tt.want)
			f.bookings.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestBookingService_CreateBooking_TicketRejectedMeanwhile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.tickets.On("GetByID", ctx, "t1").Return(ticket(5), nil).Once()
	f.bookings.On("Create", ctx, mock.Anything).Return(fmt.Errorf("%w: ticket t1 is rejected", domain.ErrNotEligible)).Once()

	_, err := f.service.CreateBooking(ctx, buyer, CreateBookingInput{TicketID: "t1", Quantity: 1})

	assert.ErrorIs(t, err, domain.ErrNotEligible)
	f.cache.AssertNotCalled(t, "InvalidateTicket", mock.Anything, mock.Anything)
	f.producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_CreateBooking_TicketNotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.tickets.On("GetByID", ctx, "nope").Return(nil, domain.ErrNotFound).Once()

	_, err := f.service.CreateBooking(ctx, buyer, CreateBookingInput{TicketID: "nope", Quantity: 1})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookingService_GetBooking(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.bookings.On("GetByID", ctx, "b1").Return(booking(domain.BookingStatusPending), nil)

	for _, actor := range []domain.Actor{buyer, vendor, admin} {
		got, err := f.service.GetBooking(ctx, actor, "b1")
		require.NoError(t, err, actor.Email)
		assert.Equal(t, "b1", got.ID)
	}

	_, err := f.service.GetBooking(ctx, domain.Actor{Email: "stranger@example.com", Role: domain.RoleUser}, "b1")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestBookingService_SetStatus_Approve(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pending := booking(domain.BookingStatusPending)
	approved := withStatus(pending, domain.BookingStatusApproved)

	f.expectLock("b1")
	f.bookings.On("GetByID", ctx, "b1").Return(pending, nil).Once()
	f.bookings.On("UpdateStatus", ctx, "b1", domain.BookingStatusPending, domain.BookingStatusApproved).Return(approved, nil).Once()
	f.expectPublish("b1", kafka.EventBookingApproved)

	result, err := f.service.SetStatus(ctx, vendor, "b1", domain.BookingStatusApproved)

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusApproved, result.Status)
	f.cache.AssertNotCalled(t, "InvalidateTicket", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestBookingService_SetStatus_ApproveTwiceIsNoOp(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	approved := booking(domain.BookingStatusApproved)

	f.expectLock("b1")
	f.bookings.On("GetByID", ctx, "b1").Return(approved, nil).Once()

	result, err := f.service.SetStatus(ctx, admin, "b1", domain.BookingStatusApproved)

	require.NoError(t, err)
	assert.Equal(t, approved, result)
	f.bookings.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestBookingService_SetStatus_RejectReturnsSeats(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pending := booking(domain.BookingStatusPending)
	rejected := withStatus(pending, domain.BookingStatusRejected)

	f.expectLock("b1")
	f.bookings.On("GetByID", ctx, "b1").Return(pending, nil).Once()
	f.bookings.On("UpdateStatus", ctx, "b1", domain.BookingStatusPending, domain.BookingStatusRejected).Return(rejected, nil).Once()
	f.cache.On("InvalidateTicket", ctx, "t1").Return(nil).Once()
	f.expectPublish("b1", kafka.EventBookingRejected)

	result, err := f.service.SetStatus(ctx, vendor, "b1", domain.BookingStatusRejected)

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusRejected, result.Status)
	f.assertExpectations(t)
}

func TestBookingService_SetStatus_TerminalIsImmutable(t *testing.T) {
	for _, status := range []domain.BookingStatus{domain.BookingStatusRejected, domain.BookingStatusPaid} {
		for _, target := range []domain.BookingStatus{domain.BookingStatusApproved, domain.BookingStatusRejected} {
			t.Run(status.String()+"->"+target.String(), func(t *testing.T) {
				f := newFixture()
				ctx := context.Background()

				f.expectLock("b1")
				f.bookings.On("GetByID", ctx, "b1").Return(booking(status), nil).Once()

				_, err := f.service.SetStatus(ctx, admin, "b1", target)

				var te *domain.TransitionError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, status, te.From)
				f.bookings.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			})
		}
	}
}

func TestBookingService_SetStatus_UnsettableTarget(t *testing.T) {
	f := newFixture()

	_, err := f.service.SetStatus(context.Background(), admin, "b1", domain.BookingStatusPaid)

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	f.cache.AssertNotCalled(t, "AcquireBookingLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_SetStatus_OtherVendorForbidden(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.expectLock("b1")
	f.bookings.On("GetByID", ctx, "b1").Return(booking(domain.BookingStatusPending), nil).Once()

	_, err := f.service.SetStatus(ctx, domain.Actor{Email: "other@example.com", Role: domain.RoleVendor}, "b1", domain.BookingStatusApproved)

	assert.ErrorIs(t, err, domain.ErrForbidden)
	f.assertExpectations(t)
}

func TestBookingService_SetStatus_LockHeld(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.cache.On("AcquireBookingLock", ctx, "b1", lockTTL).Return("", false, nil).Once()

	_, err := f.service.SetStatus(ctx, vendor, "b1", domain.BookingStatusApproved)

	assert.ErrorIs(t, err, domain.ErrMutationInFlight)
	f.bookings.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	f.cache.AssertNotCalled(t, "ReleaseBookingLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_SetStatus_LockError(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	redisErr := errors.New("redis unavailable")

	f.cache.On("AcquireBookingLock", ctx, "b1", lockTTL).Return("", false, redisErr).Once()

	_, err := f.service.SetStatus(ctx, vendor, "b1", domain.BookingStatusApproved)

	assert.ErrorIs(t, err, redisErr)
}

func TestBookingService_SetStatus_ConcurrentWriteWins(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pending := booking(domain.BookingStatusPending)

	f.expectLock("b1")
	f.bookings.On("GetByID", ctx, "b1").Return(pending, nil).Once()
	f.bookings.On("UpdateStatus", ctx, "b1", domain.BookingStatusPending, domain.BookingStatusApproved).Return(nil, repository.ErrConflict).Once()
	f.bookings.On("GetByID", ctx, "b1").Return(withStatus(pending, domain.BookingStatusRejected), nil).Once()

	_, err := f.service.SetStatus(ctx, admin, "b1", domain.BookingStatusApproved)

	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.BookingStatusRejected, te.From)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	f.producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestBookingService_CancelBooking_Pending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pending := booking(domain.BookingStatusPending)

	f.expectLock("b1")
	f.bookings.On("GetByID", ctx, "b1").Return(pending, nil).Once()
	f.bookings.On("DeletePending", ctx, "b1").Return(pending, nil).Once()
	f.cache.On("InvalidateTicket", ctx, "t1").Return(nil).Once()
	match := mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.EventBookingCancelled && e.Status == "cancelled"
	})
	f.producer.On("Publish", ctx, "booking_topic", "b1", match).Return(nil).Once()
	f.producer.On("Publish", ctx, "notifications_topic", "b1", match).Return(nil).Once()

	result, err := f.service.CancelBooking(ctx, buyer, "b1")

	require.NoError(t, err)
	assert.Equal(t, pending, result)
	f.assertExpectations(t)
}

func TestBookingService_CancelBooking_NotPending(t *testing.T) {
	for _, status := range []domain.BookingStatus{domain.BookingStatusApproved, domain.BookingStatusRejected, domain.BookingStatusPaid} {
		t.Run(status.String(), func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()

			f.expectLock("b1")
			f.bookings.On("GetByID", ctx, "b1").Return(booking(status), nil).Once()

			_, err := f.service.CancelBooking(ctx, buyer, "b1")

			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			f.bookings.AssertNotCalled(t, "DeletePending", mock.Anything, mock.Anything)
		})
	}
}

func TestBookingService_CancelBooking_AlreadyGone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.expectLock("b1")
	f.bookings.On("GetByID", ctx, "b1").Return(nil, domain.ErrNotFound).Once()

	_, err := f.service.CancelBooking(ctx, buyer, "b1")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookingService_MarkPaid_Success(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	approved := booking(domain.BookingStatusApproved)
	paid := withStatus(approved, domain.BookingStatusPaid)
	payment := &domain.Payment{ID: "p1", BookingID: "b1", BuyerEmail: buyer.Email, Amount: 2400, PaymentReference: "pi_123", PaidAt: now}

	f.expectLock("b1")
	f.bookings.On("GetByID", ctx, "b1").Return(approved, nil).Once()
	f.bookings.On("MarkPaid", ctx, "b1", "pi_123", now).Return(paid, payment, nil).Once()
	f.expectPublish("b1", kafka.EventBookingPaid)

	result, gotPayment, err := f.service.MarkPaid(ctx, buyer, "b1", " pi_123 ")

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPaid, result.Status)
	assert.Equal(t, payment, gotPayment)
	f.assertExpectations(t)
}

func TestBookingService_MarkPaid_AfterDeparture(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	approved := booking(domain.BookingStatusApproved)
	approved.DepartureAt = departed

	f.expectLock("b1")
	f.bookings.On("GetByID", ctx, "b1").Return(approved, nil).Once()

	_, _, err := f.service.MarkPaid(ctx, buyer, "b1", "pi_123")

	assert.ErrorIs(t, err, domain.ErrExpired)
	f.bookings.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_MarkPaid_DepartsDuringWrite(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.expectLock("b1")
	f.bookings.On("GetByID", ctx, "b1").Return(booking(domain.BookingStatusApproved), nil).Once()
	f.bookings.On("MarkPaid", ctx, "b1", "pi_123", now).Return(nil, nil, domain.ErrExpired).Once()

	_, _, err := f.service.MarkPaid(ctx, buyer, "b1", "pi_123")

	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestBookingService_MarkPaid_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		actor  domain.Actor
		status domain.BookingStatus
		ref    string
		want   error
	}{
		{"missing reference", buyer, domain.BookingStatusApproved, "  ", domain.ErrValidation},
		{"pending booking", buyer, domain.BookingStatusPending, "pi_1", domain.ErrInvalidTransition},
		{"rejected booking", buyer, domain.BookingStatusRejected, "pi_1", domain.ErrInvalidTransition},
		{"paid twice", buyer, domain.BookingStatusPaid, "pi_1", domain.ErrInvalidTransition},
		{"vendor pays", vendor, domain.BookingStatusApproved, "pi_1", domain.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			f.cache.On("AcquireBookingLock", mock.Anything, "b1", lockTTL).Return("tok-b1", true, nil).Maybe()
			f.cache.On("ReleaseBookingLock", mock.Anything, "b1", "tok-b1").Return(nil).Maybe()
			f.bookings.On("GetByID", ctx, "b1").Return(booking(tt.status), nil).Maybe()

			_, _, err := f.service.MarkPaid(ctx, tt.actor, "b1", tt.ref)

			assert.ErrorIs(t, err, tt.want)
			f.bookings.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestBookingService_PublishFailureDoesNotFailChange(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pending := booking(domain.BookingStatusPending)

	f.expectLock("b1")
	f.bookings.On("GetByID", ctx, "b1").Return(pending, nil).Once()
	f.bookings.On("UpdateStatus", ctx, "b1", domain.BookingStatusPending, domain.BookingStatusApproved).
		Return(withStatus(pending, domain.BookingStatusApproved), nil).Once()
	f.producer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("kafka down"))

	result, err := f.service.SetStatus(ctx, vendor, "b1", domain.BookingStatusApproved)

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusApproved, result.Status)
}

func TestBookingService_WithoutCacheOrProducer(t *testing.T) {
	bookings := &MockBookingRepository{}
	service := NewBookingService(bookings, &MockTicketRepository{}, nil, nil, "", lockTTL,
		WithClock(clockwork.NewFakeClockAt(now)))
	ctx := context.Background()
	pending := booking(domain.BookingStatusPending)

	bookings.On("GetByID", ctx, "b1").Return(pending, nil).Once()
	bookings.On("DeletePending", ctx, "b1").Return(pending, nil).Once()

	_, err := service.CancelBooking(ctx, admin, "b1")

	assert.NoError(t, err)
	bookings.AssertExpectations(t)
}

func TestBookingService_ListBookings_Scoping(t *testing.T) {
	tests := []struct {
		name   string
		actor  domain.Actor
		query  ListQuery
		filter domain.BookingFilter
	}{
		{"buyer sees own", buyer, ListQuery{BuyerEmail: "someone@example.com"}, domain.BookingFilter{BuyerEmail: buyer.Email}},
		{"vendor sees own tickets", vendor, ListQuery{Status: domain.BookingStatusPending}, domain.BookingFilter{VendorEmail: vendor.Email, Status: domain.BookingStatusPending}},
		{"admin filters by buyer", admin, ListQuery{BuyerEmail: buyer.Email}, domain.BookingFilter{BuyerEmail: buyer.Email}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			rows := []domain.Booking{*booking(domain.BookingStatusPending)}

			f.bookings.On("Count", ctx, tt.filter).Return(8, nil).Once()
			f.bookings.On("List", ctx, tt.filter, pagination.Paginate(8, 1, 6)).Return(rows, nil).Once()

			page, err := f.service.ListBookings(ctx, tt.actor, tt.query)

			require.NoError(t, err)
			assert.Equal(t, rows, page.Bookings)
			assert.Equal(t, 2, page.Page.TotalPages)
			f.bookings.AssertExpectations(t)
		})
	}
}

func TestBookingService_ListBookings_ClampsPage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	filter := domain.BookingFilter{BuyerEmail: buyer.Email}

	f.bookings.On("Count", ctx, filter).Return(13, nil).Once()
	f.bookings.On("List", ctx, filter, pagination.Page{Page: 3, PerPage: 6, Total: 13, TotalPages: 3}).Return([]domain.Booking{}, nil).Once()

	page, err := f.service.ListBookings(ctx, buyer, ListQuery{Page: 9})

	require.NoError(t, err)
	assert.Equal(t, 3, page.Page.Page)
}

func TestBookingService_ListBookings_Empty(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("Count", ctx, domain.BookingFilter{BuyerEmail: buyer.Email}).Return(0, nil).Once()

	page, err := f.service.ListBookings(ctx, buyer, ListQuery{})

	require.NoError(t, err)
	assert.NotNil(t, page.Bookings)
	assert.Empty(t, page.Bookings)
	f.bookings.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_Stats(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	stats := domain.BookingStats{Pending: 1, Paid: 2, Total: 3, Revenue: 4800}

	f.bookings.On("Stats", ctx, domain.BookingFilter{VendorEmail: vendor.Email}).Return(stats, nil).Once()
	f.bookings.On("Stats", ctx, domain.BookingFilter{}).Return(stats, nil).Once()

	got, err := f.service.Stats(ctx, vendor)
	require.NoError(t, err)
	assert.Equal(t, stats, got)

	_, err = f.service.Stats(ctx, admin)
	require.NoError(t, err)
	f.bookings.AssertExpectations(t)
}

func TestBookingService_ListPayments(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	payments := []domain.Payment{{ID: "p1", BookingID: "b1", Amount: 2400}}

	f.bookings.On("ListPayments", ctx, buyer.Email).Return(payments, nil).Once()
	f.bookings.On("ListPayments", ctx, "").Return(payments, nil).Once()

	got, err := f.service.ListPayments(ctx, buyer, "")
	require.NoError(t, err)
	assert.Equal(t, payments, got)

	_, err = f.service.ListPayments(ctx, admin, "")
	require.NoError(t, err)

	_, err = f.service.ListPayments(ctx, buyer, "someone@example.com")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.service.ListPayments(ctx, vendor, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	f.bookings.AssertExpectations(t)
}

func TestBookingService_FlagExpiredApproved(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first := *booking(domain.BookingStatusApproved)
	first.DepartureAt = departed
	second := first
	second.ID = "b2"

	f.bookings.On("ListApprovedDepartedBefore", ctx, now).Return([]domain.Booking{first, second}, nil).Once()
	f.cache.On("MarkTripExpiredReported", ctx, "b1", 24*time.Hour).Return(true, nil).Once()
	f.cache.On("MarkTripExpiredReported", ctx, "b2", 24*time.Hour).Return(false, nil).Once()
	f.expectPublish("b1", kafka.EventBookingTripExpired)

	flagged, err := f.service.FlagExpiredApproved(ctx)

	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "b1", flagged[0].ID)
	assert.Equal(t, domain.BookingStatusApproved, flagged[0].Status)
	f.bookings.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestBookingService_FlagExpiredApproved_RepoError(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("ListApprovedDepartedBefore", ctx, now).Return(nil, errors.New("db error")).Once()

	flagged, err := f.service.FlagExpiredApproved(ctx)

	assert.Error(t, err)
	assert.Nil(t, flagged)
}

func TestBookingService_MutationTimeoutBoundsWrite(t *testing.T) {
	f := newFixture()
	WithMutationTimeout(time.Second)(f.service)
	pending := booking(domain.BookingStatusPending)
	approved := withStatus(pending, domain.BookingStatusApproved)
	hasDeadline := mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})

	f.expectLock("b1")
	f.bookings.On("GetByID", hasDeadline, "b1").Return(pending, nil).Once()
	f.bookings.On("UpdateStatus", hasDeadline, "b1", domain.BookingStatusPending, domain.BookingStatusApproved).Return(approved, nil).Once()
	f.expectPublish("b1", kafka.EventBookingApproved)

	_, err := f.service.SetStatus(context.Background(), vendor, "b1", domain.BookingStatusApproved)

	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestBookingService_LostLockOnReleaseKeepsCommittedChange(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pending := booking(domain.BookingStatusPending)
	approved := withStatus(pending, domain.BookingStatusApproved)

	f.cache.On("AcquireBookingLock", mock.Anything, "b1", lockTTL).Return("tok-b1", true, nil).Once()
	f.cache.On("ReleaseBookingLock", mock.Anything, "b1", "tok-b1").Return(errors.New("booking lock no longer held")).Once()
	f.bookings.On("GetByID", ctx, "b1").Return(pending, nil).Once()
	f.bookings.On("UpdateStatus", ctx, "b1", domain.BookingStatusPending, domain.BookingStatusApproved).Return(approved, nil).Once()
	f.expectPublish("b1", kafka.EventBookingApproved)

	result, err := f.service.SetStatus(ctx, vendor, "b1", domain.BookingStatusApproved)

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusApproved, result.Status)
	f.assertExpectations(t)
}
