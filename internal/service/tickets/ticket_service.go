package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/Domenick1991/ticketbari/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

type TicketUseCase interface {
	List(ctx context.Context) ([]domain.Ticket, error)
	ListMine(ctx context.Context, actor domain.Actor) ([]domain.Ticket, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Create(ctx context.Context, actor domain.Actor, input CreateTicketInput) (*domain.Ticket, error)
	SetStatus(ctx context.Context, actor domain.Actor, id string, status domain.TicketStatus) (*domain.Ticket, error)
}

type Cache interface {
	GetTickets(ctx context.Context) ([]domain.Ticket, error)
	SetTickets(ctx context.Context, tickets []domain.Ticket) error
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	SetTicket(ctx context.Context, ticket domain.Ticket) error
	InvalidateTicket(ctx context.Context, id string) error
}

type CreateTicketInput struct {
	Title             string    `json:"title" validate:"required"`
	From              string    `json:"from" validate:"required"`
	To                string    `json:"to" validate:"required,nefield=From"`
	Transport         string    `json:"transport" validate:"required,oneof=bus train launch flight"`
	UnitPrice         int64     `json:"unit_price" validate:"gt=0"`
	AvailableQuantity int       `json:"available_quantity" validate:"gte=0"`
	DepartureAt       time.Time `json:"departure_at" validate:"required"`
}

type TicketService struct {
	repo     repository.TicketRepository
	cache    Cache
	validate *validator.Validate
	clock    clockwork.Clock
	logger   *logrus.Entry
}

type TicketServiceOption func(*TicketService)

func WithClock(clock clockwork.Clock) TicketServiceOption {
	return func(s *TicketService) {
		s.clock = clock
	}
}

func WithLogger(logger *logrus.Entry) TicketServiceOption {
	return func(s *TicketService) {
		s.logger = logger
	}
}

func NewTicketService(repo repository.TicketRepository, cache Cache, opts ...TicketServiceOption) *TicketService {
	s := &TicketService{
		repo:     repo,
		cache:    cache,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		clock:    clockwork.NewRealClock(),
		logger:   logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the public catalog: approved tickets only.
func (s *TicketService) List(ctx context.Context) ([]domain.Ticket, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetTickets(ctx); err == nil && cached != nil {
			return cached, nil
		} else if err != nil {
			s.logger.WithError(err).Warn("tickets cache read failed")
		}
	}

	tickets, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	tickets = approvedOnly(tickets)
	if s.cache != nil {
		_ = s.cache.SetTickets(ctx, tickets)
	}
	return tickets, nil
}

// ListMine returns every ticket the vendor listed, whatever its moderation
// state.
func (s *TicketService) ListMine(ctx context.Context, actor domain.Actor) ([]domain.Ticket, error) {
	if actor.Role != domain.RoleVendor && actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: only vendors have listed tickets", domain.ErrForbidden)
	}
	return s.repo.ListByVendor(ctx, actor.Email)
}

func approvedOnly(tickets []domain.Ticket) []domain.Ticket {
	out := make([]domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.Bookable() {
			out = append(out, t)
		}
	}
	return out
}

// GetByID serves the catalog entry the booking lifecycle prices against.
func (s *TicketService) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetTicket(ctx, id); err == nil && cached != nil {
			return cached, nil
		}
	}

	ticket, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetTicket(ctx, *ticket)
	}
	return ticket, nil
}

func (s *TicketService) Create(ctx context.Context, actor domain.Actor, input CreateTicketInput) (*domain.Ticket, error) {
	if actor.Role != domain.RoleVendor && actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: only vendors list tickets", domain.ErrForbidden)
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if !input.DepartureAt.After(s.clock.Now()) {
		return nil, fmt.Errorf("%w: departure must be in the future", domain.ErrValidation)
	}

	ticket := &domain.Ticket{
		ID:                uuid.NewString(),
		Title:             input.Title,
		From:              input.From,
		To:                input.To,
		Transport:         domain.TransportType(input.Transport),
		VendorEmail:       actor.Email,
		UnitPrice:         input.UnitPrice,
		AvailableQuantity: input.AvailableQuantity,
		DepartureAt:       input.DepartureAt.UTC(),
		Status:            domain.TicketStatusPending,
	}
	if err := s.repo.Create(ctx, ticket); err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.InvalidateTicket(ctx, ticket.ID)
	}
	s.logger.WithFields(logrus.Fields{"ticket_id": ticket.ID, "vendor": actor.Email}).Info("ticket listed")
	return ticket, nil
}

// SetStatus records an admin's moderation decision. A ticket can be moved
// between approved and rejected any number of times; it never returns to
// pending.
func (s *TicketService) SetStatus(ctx context.Context, actor domain.Actor, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins moderate tickets", domain.ErrForbidden)
	}
	if status != domain.TicketStatusApproved && status != domain.TicketStatusRejected {
		return nil, fmt.Errorf("%w: ticket status must be approved or rejected, got %q", domain.ErrValidation, status)
	}

	ticket, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.InvalidateTicket(ctx, id); err != nil {
			s.logger.WithError(err).WithField("ticket_id", id).Warn("ticket cache invalidation failed")
		}
	}
	s.logger.WithFields(logrus.Fields{"ticket_id": id, "status": status, "admin": actor.Email}).Info("ticket moderated")
	return ticket, nil
}

var _ TicketUseCase = (*TicketService)(nil)
