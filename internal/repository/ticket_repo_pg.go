package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TicketRepository interface {
	// List returns the approved catalog.
	List(ctx context.Context) ([]domain.Ticket, error)
	ListByVendor(ctx context.Context, vendorEmail string) ([]domain.Ticket, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Create(ctx context.Context, ticket *domain.Ticket) error
	UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) (*domain.Ticket, error)
}

type PGTicketRepository struct {
	db *pgxpool.Pool
}

func NewTicketRepository(db *pgxpool.Pool) TicketRepository {
	return &PGTicketRepository{db: db}
}

const ticketColumns = `id, title, from_city, to_city, transport, vendor_email, unit_price, available_quantity, departure_at, status, created_at, updated_at`

func (r *PGTicketRepository) List(ctx context.Context) ([]domain.Ticket, error) {
	return r.query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE status=$1 ORDER BY departure_at`, string(domain.TicketStatusApproved))
}

func (r *PGTicketRepository) ListByVendor(ctx context.Context, vendorEmail string) ([]domain.Ticket, error) {
	return r.query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE vendor_email=$1 ORDER BY created_at DESC`, vendorEmail)
}

func (r *PGTicketRepository) query(ctx context.Context, sql string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]domain.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func (r *PGTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	t, err := scanTicket(r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: ticket %s", domain.ErrNotFound, id)
	}
	return t, err
}

func (r *PGTicketRepository) Create(ctx context.Context, t *domain.Ticket) error {
	if t.Status == "" {
		t.Status = domain.TicketStatusPending
	}
	return r.db.QueryRow(ctx, `INSERT INTO tickets (id, title, from_city, to_city, transport, vendor_email, unit_price, available_quantity, departure_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		t.ID, t.Title, t.From, t.To, string(t.Transport), t.VendorEmail, t.UnitPrice, t.AvailableQuantity, t.DepartureAt, string(t.Status)).
		Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *PGTicketRepository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	t, err := scanTicket(r.db.QueryRow(ctx, `UPDATE tickets SET status=$2, updated_at = now() WHERE id=$1 RETURNING `+ticketColumns, id, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: ticket %s", domain.ErrNotFound, id)
	}
	return t, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*domain.Ticket, error) {
	var t domain.Ticket
	var transport, status string
	if err := row.Scan(&t.ID, &t.Title, &t.From, &t.To, &transport, &t.VendorEmail, &t.UnitPrice, &t.AvailableQuantity, &t.DepartureAt, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Transport = domain.TransportType(transport)
	t.Status = domain.TicketStatus(status)
	return &t, nil
}

var _ TicketRepository = (*PGTicketRepository)(nil)
