package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/Domenick1991/ticketbari/internal/kafka"
	"github.com/Domenick1991/ticketbari/internal/lifecycle"
	"github.com/Domenick1991/ticketbari/internal/pagination"
	"github.com/Domenick1991/ticketbari/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, actor domain.Actor, input CreateBookingInput) (*domain.Booking, error)
	GetBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	ListBookings(ctx context.Context, actor domain.Actor, query ListQuery) (*BookingPage, error)
	Stats(ctx context.Context, actor domain.Actor) (domain.BookingStats, error)
	SetStatus(ctx context.Context, actor domain.Actor, id string, target domain.BookingStatus) (*domain.Booking, error)
	CancelBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	MarkPaid(ctx context.Context, actor domain.Actor, id, paymentReference string) (*domain.Booking, *domain.Payment, error)
	ListPayments(ctx context.Context, actor domain.Actor, buyerEmail string) ([]domain.Payment, error)
	FlagExpiredApproved(ctx context.Context) ([]domain.Booking, error)
}

type Cache interface {
	AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseBookingLock(ctx context.Context, bookingID, token string) error
	InvalidateTicket(ctx context.Context, id string) error
	MarkTripExpiredReported(ctx context.Context, bookingID string, ttl time.Duration) (bool, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type CreateBookingInput struct {
	TicketID string `json:"ticket_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

// ListQuery selects a page of bookings. BuyerEmail is honoured for admins
// only; everyone else sees their own bookings.
type ListQuery struct {
	BuyerEmail string
	Status     domain.BookingStatus
	Page       int
	PerPage    int
}

type BookingPage struct {
	Bookings []domain.Booking `json:"bookings"`
	Page     pagination.Page  `json:"page"`
}

type BookingService struct {
	bookings           repository.BookingRepository
	tickets            repository.TicketRepository
	cache              Cache
	producer           Producer
	bookingTopic       string
	notificationsTopic string
	lockTTL            time.Duration
	mutationTimeout    time.Duration
	flagTTL            time.Duration
	pageSize           int
	validate           *validator.Validate
	clock              clockwork.Clock
	logger             *logrus.Entry
}

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

// WithFlagTTL sets how long a departed approved booking stays marked as
// reported by FlagExpiredApproved.
func WithFlagTTL(ttl time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.flagTTL = ttl
	}
}

// WithMutationTimeout bounds each status change, payment or cancellation,
// lock included.
func WithMutationTimeout(timeout time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.mutationTimeout = timeout
	}
}

func WithPageSize(n int) BookingServiceOption {
	return func(s *BookingService) {
		s.pageSize = n
	}
}

func WithClock(clock clockwork.Clock) BookingServiceOption {
	return func(s *BookingService) {
		s.clock = clock
	}
}

func WithLogger(logger *logrus.Entry) BookingServiceOption {
	return func(s *BookingService) {
		s.logger = logger
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	tickets repository.TicketRepository,
	cache Cache,
	producer Producer,
	bookingTopic string,
	lockTTL time.Duration,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:     bookings,
		tickets:      tickets,
		cache:        cache,
		producer:     producer,
		bookingTopic: bookingTopic,
		lockTTL:      lockTTL,
		flagTTL:      72 * time.Hour,
		pageSize:     pagination.DefaultPerPage,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		clock:        clockwork.NewRealClock(),
		logger:       logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateBooking prices the request against the ticket as it is now and
// stores a pending booking. Seats are taken from the ticket in the same
// write.
func (s *BookingService) CreateBooking(ctx context.Context, actor domain.Actor, input CreateBookingInput) (*domain.Booking, error) {
	if actor.Role != domain.RoleUser {
		return nil, fmt.Errorf("%w: only buyers book tickets", domain.ErrForbidden)
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	ticket, err := s.tickets.GetByID(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Bookable() {
		return nil, fmt.Errorf("%w: ticket %s is %s", domain.ErrNotEligible, ticket.ID, ticket.Status)
	}
	if lifecycle.IsExpired(ticket.DepartureAt, s.clock.Now()) {
		return nil, fmt.Errorf("%w: ticket %s has departed", domain.ErrExpired, ticket.ID)
	}
	quote, err := lifecycle.NewQuote(*ticket, input.Quantity)
	if err != nil {
		return nil, err
	}

	draft := quote.Draft(actor.Email)
	if err := s.validate.Struct(draft); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	booking := &domain.Booking{
		ID:          uuid.NewString(),
		TicketID:    draft.TicketID,
		BuyerEmail:  draft.BuyerEmail,
		VendorEmail: draft.VendorEmail,
		Quantity:    draft.Quantity,
		UnitPrice:   draft.UnitPrice,
		TotalPrice:  quote.TotalPrice,
		DepartureAt: draft.DepartureAt,
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, err
	}

	s.invalidateTicket(ctx, booking.TicketID)
	s.publish(ctx, kafka.EventBookingCreated, booking)
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lifecycle.CanView(actor, *booking) {
		return nil, fmt.Errorf("%w: booking %s", domain.ErrForbidden, id)
	}
	return booking, nil
}

func (s *BookingService) ListBookings(ctx context.Context, actor domain.Actor, query ListQuery) (*BookingPage, error) {
	filter := scopeFilter(actor)
	if actor.Role == domain.RoleAdmin {
		filter.BuyerEmail = query.BuyerEmail
	}
	filter.Status = query.Status

	total, err := s.bookings.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	perPage := query.PerPage
	if perPage <= 0 {
		perPage = s.pageSize
	}
	page := pagination.Paginate(total, query.Page, perPage)
	if total == 0 {
		return &BookingPage{Bookings: []domain.Booking{}, Page: page}, nil
	}

	bookings, err := s.bookings.List(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	return &BookingPage{Bookings: bookings, Page: page}, nil
}

// Stats counts the bookings the actor can see by status. Revenue is the sum
// over paid bookings.
func (s *BookingService) Stats(ctx context.Context, actor domain.Actor) (domain.BookingStats, error) {
	return s.bookings.Stats(ctx, scopeFilter(actor))
}

// SetStatus approves or rejects a booking on behalf of its vendor or an
// admin.
func (s *BookingService) SetStatus(ctx context.Context, actor domain.Actor, id string, target domain.BookingStatus) (*domain.Booking, error) {
	event, err := lifecycle.EventForStatus(target)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, id, event, func(ctx context.Context, current *domain.Booking, outcome lifecycle.Outcome) (*domain.Booking, error) {
		return s.bookings.UpdateStatus(ctx, id, current.Status, outcome.Status)
	})
}

// CancelBooking deletes a pending booking and returns its seats. The
// returned booking is the record as it was before deletion.
func (s *BookingService) CancelBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return s.mutate(ctx, actor, id, lifecycle.EventCancel, func(ctx context.Context, _ *domain.Booking, _ lifecycle.Outcome) (*domain.Booking, error) {
		return s.bookings.DeletePending(ctx, id)
	})
}

func (s *BookingService) MarkPaid(ctx context.Context, actor domain.Actor, id, paymentReference string) (*domain.Booking, *domain.Payment, error) {
	paymentReference = strings.TrimSpace(paymentReference)
	if paymentReference == "" {
		return nil, nil, fmt.Errorf("%w: payment reference is required", domain.ErrValidation)
	}

	var payment *domain.Payment
	booking, err := s.mutate(ctx, actor, id, lifecycle.EventPay, func(ctx context.Context, _ *domain.Booking, _ lifecycle.Outcome) (*domain.Booking, error) {
		b, p, err := s.bookings.MarkPaid(ctx, id, paymentReference, s.clock.Now())
		payment = p
		return b, err
	})
	if err != nil {
		return nil, nil, err
	}
	return booking, payment, nil
}

func (s *BookingService) ListPayments(ctx context.Context, actor domain.Actor, buyerEmail string) ([]domain.Payment, error) {
	switch actor.Role {
	case domain.RoleAdmin:
	case domain.RoleUser:
		if buyerEmail != "" && !strings.EqualFold(buyerEmail, actor.Email) {
			return nil, fmt.Errorf("%w: payments of %s", domain.ErrForbidden, buyerEmail)
		}
		buyerEmail = actor.Email
	default:
		return nil, fmt.Errorf("%w: %s cannot list payments", domain.ErrForbidden, actor.Role)
	}
	return s.bookings.ListPayments(ctx, buyerEmail)
}

// FlagExpiredApproved reports approved bookings whose trip departed without
// payment. Their status is left as it is; each one is reported once per
// flag TTL.
func (s *BookingService) FlagExpiredApproved(ctx context.Context) ([]domain.Booking, error) {
	departed, err := s.bookings.ListApprovedDepartedBefore(ctx, s.clock.Now())
	if err != nil {
		return nil, err
	}

	flagged := make([]domain.Booking, 0, len(departed))
	for i := range departed {
		b := &departed[i]
		if s.cache != nil {
			first, err := s.cache.MarkTripExpiredReported(ctx, b.ID, s.flagTTL)
			if err != nil {
				return flagged, err
			}
			if !first {
				continue
			}
		}
		s.publish(ctx, kafka.EventBookingTripExpired, b)
		flagged = append(flagged, *b)
	}
	return flagged, nil
}

type writeFunc func(ctx context.Context, current *domain.Booking, outcome lifecycle.Outcome) (*domain.Booking, error)

// mutate serialises changes per booking, checks the change against the
// booking's current row and then writes it conditionally.
func (s *BookingService) mutate(ctx context.Context, actor domain.Actor, id string, event lifecycle.Event, write writeFunc) (*domain.Booking, error) {
	log := s.logger.WithFields(logrus.Fields{"booking_id": id, "event": event.String()})

	if s.mutationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.mutationTimeout)
		defer cancel()
	}

	if s.cache != nil {
		token, ok, err := s.cache.AcquireBookingLock(ctx, id, s.lockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: booking %s", domain.ErrMutationInFlight, id)
		}
		defer func() {
			if err := s.cache.ReleaseBookingLock(context.WithoutCancel(ctx), id, token); err != nil {
				log.WithError(err).Warn("release booking lock")
			}
		}()
	}

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Authorize(actor, event, *current); err != nil {
		return nil, err
	}
	outcome, err := lifecycle.Transition(current.Status, event, current.DepartureAt, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if outcome.NoOp {
		return current, nil
	}

	updated, err := write(ctx, current, outcome)
	if errors.Is(err, repository.ErrConflict) {
		// Someone else moved the booking between our read and write.
		fresh, getErr := s.bookings.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &domain.TransitionError{From: fresh.Status, Event: event.String()}
	}
	if err != nil {
		return nil, err
	}

	log.WithField("status", outcome.Status.String()).Info("booking changed")
	if event == lifecycle.EventCancel || event == lifecycle.EventReject {
		s.invalidateTicket(ctx, updated.TicketID)
	}
	s.publish(ctx, eventType(event), updated)
	if outcome.Deleted {
		return current, nil
	}
	return updated, nil
}

func (s *BookingService) invalidateTicket(ctx context.Context, ticketID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTicket(ctx, ticketID); err != nil {
		s.logger.WithError(err).WithField("ticket_id", ticketID).Warn("invalidate ticket cache")
	}
}

// publish is best effort: the booking change is already committed.
func (s *BookingService) publish(ctx context.Context, eventType string, booking *domain.Booking) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.BookingEvent{
		Type:        eventType,
		BookingID:   booking.ID,
		TicketID:    booking.TicketID,
		BuyerEmail:  booking.BuyerEmail,
		VendorEmail: booking.VendorEmail,
		Status:      booking.Status.String(),
		Quantity:    booking.Quantity,
		TotalPrice:  booking.TotalPrice,
		DepartureAt: booking.DepartureAt,
		OccurredAt:  s.clock.Now(),
	}
	if eventType == kafka.EventBookingCancelled {
		event.Status = "cancelled"
	}

	log := s.logger.WithFields(logrus.Fields{"booking_id": booking.ID, "event": eventType})
	if err := s.producer.Publish(ctx, s.bookingTopic, booking.ID, event); err != nil {
		log.WithError(err).Warn("failed to publish booking event")
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, booking.ID, event); err != nil {
			log.WithError(err).Warn("failed to publish notification")
		}
	}
}

func eventType(event lifecycle.Event) string {
	switch event {
	case lifecycle.EventAccept:
		return kafka.EventBookingApproved
	case lifecycle.EventReject:
		return kafka.EventBookingRejected
	case lifecycle.EventCancel:
		return kafka.EventBookingCancelled
	case lifecycle.EventPay:
		return kafka.EventBookingPaid
	}
	return "booking_" + event.String()
}

// scopeFilter limits listings to what the actor owns.
func scopeFilter(actor domain.Actor) domain.BookingFilter {
	switch actor.Role {
	case domain.RoleAdmin:
		return domain.BookingFilter{}
	case domain.RoleVendor:
		return domain.BookingFilter{VendorEmail: actor.Email}
	}
	return domain.BookingFilter{BuyerEmail: actor.Email}
}

var _ BookingUseCase = (*BookingService)(nil)
