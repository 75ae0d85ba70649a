package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Catalog is the read-only source of ticket metadata.
type Catalog interface {
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
}

// Store is the remote, authoritative booking service.
type Store interface {
	CreateBooking(ctx context.Context, draft domain.BookingDraft) (*domain.Booking, error)
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	SetStatus(ctx context.Context, id string, target domain.BookingStatus) (*domain.Booking, error)
	CancelBooking(ctx context.Context, id string) error
	MarkPaid(ctx context.Context, id, paymentReference string) (*domain.Booking, error)
}

// PendingChange is a mutation that has been sent and not yet answered.
type PendingChange struct {
	Event     Event
	StartedAt time.Time
}

// View is the local picture of one booking: the last state the store
// confirmed, plus any change still in flight.
type View struct {
	Booking domain.Booking
	Pending *PendingChange
	// Stale is set when a mutation ended with an unknown outcome. The
	// next operation re-reads the booking before doing anything else.
	Stale bool
}

type ManagerOption func(*Manager)

func WithClock(clock clockwork.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithTimeout bounds every store call. Zero means only the caller's
// context applies.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

func WithLogger(logger *logrus.Entry) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Manager drives bookings through their lifecycle from the client side. It
// checks eligibility locally so doomed requests are never sent, allows one
// mutation per booking at a time and never records a change as done until
// the store confirms it.
type Manager struct {
	catalog Catalog
	store   Store
	clock   clockwork.Clock
	timeout time.Duration
	logger  *logrus.Entry

	mu    sync.Mutex
	views map[string]*View
}

func NewManager(catalog Catalog, store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		catalog: catalog,
		store:   store,
		clock:   clockwork.NewRealClock(),
		logger:  logrus.NewEntry(logrus.StandardLogger()),
		views:   make(map[string]*View),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Book prices the request against the catalog, refuses it locally when the
// catalog already shows too few seats, and creates the booking in the store.
func (m *Manager) Book(ctx context.Context, actor domain.Actor, ticketID string, quantity int) (*domain.Booking, error) {
	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	ticket, err := m.catalog.GetTicket(callCtx, ticketID)
	if err != nil {
		return nil, unreachableOnTimeout(err)
	}
	quote, err := NewQuote(*ticket, quantity)
	if err != nil {
		return nil, err
	}

	created, err := m.store.CreateBooking(callCtx, quote.Draft(actor.Email))
	if err != nil {
		return nil, unreachableOnTimeout(err)
	}

	m.mu.Lock()
	m.views[created.ID] = &View{Booking: *created}
	m.mu.Unlock()
	return created, nil
}

// Refresh replaces the local view with the store's current state.
func (m *Manager) Refresh(ctx context.Context, id string) (View, error) {
	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	current, err := m.store.GetBooking(callCtx, id)
	if err != nil {
		err = unreachableOnTimeout(err)
		m.mu.Lock()
		defer m.mu.Unlock()
		if errors.Is(err, domain.ErrNotFound) {
			delete(m.views, id)
		} else if v, ok := m.views[id]; ok {
			v.Stale = true
		}
		return View{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.views[id]
	if !ok {
		v = &View{}
		m.views[id] = v
	}
	v.Booking = *current
	v.Stale = false
	return copyView(v), nil
}

// View returns the local view of a booking.
func (m *Manager) View(id string) (View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.views[id]
	if !ok {
		return View{}, false
	}
	return copyView(v), true
}

// Eligibility is the advice for a tracked booking at the current time.
// While a change is in flight, or the outcome of the last change is
// unknown, nothing is offered.
func (m *Manager) Eligibility(id string) Eligibility {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.views[id]
	if !ok || v.Pending != nil || v.Stale {
		return Eligibility{Actions: []Action{}}
	}
	return EligibleAt(v.Booking, m.clock.Now())
}

func (m *Manager) Accept(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return m.mutate(ctx, actor, id, EventAccept, func(ctx context.Context) (*domain.Booking, error) {
		return m.store.SetStatus(ctx, id, domain.BookingStatusApproved)
	})
}

func (m *Manager) Reject(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return m.mutate(ctx, actor, id, EventReject, func(ctx context.Context) (*domain.Booking, error) {
		return m.store.SetStatus(ctx, id, domain.BookingStatusRejected)
	})
}

// Cancel removes a pending booking. The returned booking is the last
// confirmed state before deletion.
func (m *Manager) Cancel(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return m.mutate(ctx, actor, id, EventCancel, func(ctx context.Context) (*domain.Booking, error) {
		return nil, m.store.CancelBooking(ctx, id)
	})
}

func (m *Manager) Pay(ctx context.Context, actor domain.Actor, id, paymentReference string) (*domain.Booking, error) {
	if paymentReference == "" {
		return nil, fmt.Errorf("%w: payment reference is required", domain.ErrValidation)
	}
	return m.mutate(ctx, actor, id, EventPay, func(ctx context.Context) (*domain.Booking, error) {
		return m.store.MarkPaid(ctx, id, paymentReference)
	})
}

// Watch runs the countdown for a tracked booking until it expires or ctx
// ends.
func (m *Manager) Watch(ctx context.Context, id string, interval time.Duration, emit func(Remaining)) error {
	v, ok := m.View(id)
	if !ok {
		return fmt.Errorf("%w: booking %s is not loaded", domain.ErrNotFound, id)
	}
	return RunCountdown(ctx, m.clock, v.Booking.DepartureAt, interval, emit)
}

func (m *Manager) mutate(ctx context.Context, actor domain.Actor, id string, event Event, call func(context.Context) (*domain.Booking, error)) (*domain.Booking, error) {
	if err := m.ensureFresh(ctx, id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	v, ok := m.views[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
	}
	if v.Pending != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s already sent for booking %s", domain.ErrMutationInFlight, v.Pending.Event, id)
	}
	confirmed := v.Booking
	if err := Authorize(actor, event, confirmed); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	outcome, err := Transition(confirmed.Status, event, confirmed.DepartureAt, m.clock.Now())
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if outcome.NoOp {
		m.mu.Unlock()
		return &confirmed, nil
	}
	v.Pending = &PendingChange{Event: event, StartedAt: m.clock.Now()}
	m.mu.Unlock()

	callCtx, cancel := m.callContext(ctx)
	updated, err := call(callCtx)
	cancel()

	log := m.logger.WithFields(logrus.Fields{"booking_id": id, "event": event.String()})

	m.mu.Lock()
	v.Pending = nil
	if err == nil {
		if outcome.Deleted {
			delete(m.views, id)
			m.mu.Unlock()
			return &confirmed, nil
		}
		v.Booking = *updated
		m.mu.Unlock()
		return updated, nil
	}

	err = unreachableOnTimeout(err)
	if errors.Is(err, domain.ErrUnreachable) {
		v.Stale = true
		m.mu.Unlock()
		log.WithError(err).Warn("booking change outcome unknown, re-read required")
		return nil, err
	}
	if errors.Is(err, domain.ErrNotFound) {
		// Deleted by a concurrent cancel; the confirmed view no longer exists.
		delete(m.views, id)
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	// The store disagreed with our picture of the booking; show its state
	// instead of retrying.
	if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrExpired) || errors.Is(err, domain.ErrMutationInFlight) {
		if _, refreshErr := m.Refresh(ctx, id); refreshErr != nil {
			log.WithError(refreshErr).Warn("re-read after rejected change failed")
		}
	}
	return nil, err
}

func (m *Manager) ensureFresh(ctx context.Context, id string) error {
	m.mu.Lock()
	v, ok := m.views[id]
	fresh := ok && !v.Stale
	m.mu.Unlock()
	if fresh {
		return nil
	}
	_, err := m.Refresh(ctx, id)
	return err
}

func (m *Manager) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout > 0 {
		return context.WithTimeout(ctx, m.timeout)
	}
	return context.WithCancel(ctx)
}

func unreachableOnTimeout(err error) error {
	if errors.Is(err, domain.ErrUnreachable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", domain.ErrUnreachable, err)
	}
	return err
}

func copyView(v *View) View {
	out := View{Booking: v.Booking, Stale: v.Stale}
	if v.Pending != nil {
		p := *v.Pending
		out.Pending = &p
	}
	return out
}
