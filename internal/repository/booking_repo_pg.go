package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/Domenick1991/ticketbari/internal/pagination"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	List(ctx context.Context, filter domain.BookingFilter, page pagination.Page) ([]domain.Booking, error)
	Count(ctx context.Context, filter domain.BookingFilter) (int, error)
	Stats(ctx context.Context, filter domain.BookingFilter) (domain.BookingStats, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus) (*domain.Booking, error)
	DeletePending(ctx context.Context, id string) (*domain.Booking, error)
	MarkPaid(ctx context.Context, id, paymentReference string, now time.Time) (*domain.Booking, *domain.Payment, error)
	ListPayments(ctx context.Context, buyerEmail string) ([]domain.Payment, error)
	ListApprovedDepartedBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, ticket_id, buyer_email, vendor_email, quantity, unit_price, total_price, departure_at, status, created_at, updated_at`

// Create takes the requested seats from the ticket and inserts the booking
// as pending, in one transaction. The seats are only taken when enough
// remain.
func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var available int
	err = tx.QueryRow(ctx, `UPDATE tickets SET available_quantity = available_quantity - $2, updated_at = now()
		WHERE id=$1 AND available_quantity >= $2 AND status=$3 RETURNING available_quantity`,
		booking.TicketID, booking.Quantity, string(domain.TicketStatusApproved)).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		var left int
		var status string
		if err := tx.QueryRow(ctx, `SELECT available_quantity, status FROM tickets WHERE id=$1`, booking.TicketID).Scan(&left, &status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: ticket %s", domain.ErrNotFound, booking.TicketID)
			}
			return err
		}
		return unbookable(booking, domain.TicketStatus(status), left)
	}
	if err != nil {
		return err
	}

	booking.Status = domain.BookingStatusPending
	if err := tx.QueryRow(ctx, `INSERT INTO bookings (id, ticket_id, buyer_email, vendor_email, quantity, unit_price, total_price, departure_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		booking.ID, booking.TicketID, booking.BuyerEmail, booking.VendorEmail, booking.Quantity, booking.UnitPrice, booking.TotalPrice, booking.DepartureAt, booking.Status.String()).
		Scan(&booking.CreatedAt, &booking.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// unbookable explains why the seat decrement for booking matched no row.
func unbookable(booking *domain.Booking, status domain.TicketStatus, left int) error {
	if status != domain.TicketStatusApproved {
		return fmt.Errorf("%w: ticket %s is %s", domain.ErrNotEligible, booking.TicketID, status)
	}
	return fmt.Errorf("%w: requested %d, available %d", domain.ErrInsufficientInventory, booking.Quantity, left)
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.getByID(ctx, r.db, id)
}

func (r *PGBookingRepository) List(ctx context.Context, filter domain.BookingFilter, page pagination.Page) ([]domain.Booking, error) {
	where, args := filterClause(filter)
	args = append(args, page.Limit(), page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM bookings%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, bookingColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (r *PGBookingRepository) Count(ctx context.Context, filter domain.BookingFilter) (int, error) {
	where, args := filterClause(filter)
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM bookings`+where, args...).Scan(&n)
	return n, err
}

func (r *PGBookingRepository) Stats(ctx context.Context, filter domain.BookingFilter) (domain.BookingStats, error) {
	filter.Status = domain.BookingStatusUnknown
	where, args := filterClause(filter)

	rows, err := r.db.Query(ctx, `SELECT status, count(*), coalesce(sum(total_price), 0) FROM bookings`+where+` GROUP BY status`, args...)
	if err != nil {
		return domain.BookingStats{}, err
	}
	defer rows.Close()

	var stats domain.BookingStats
	for rows.Next() {
		var raw string
		var n int
		var sum int64
		if err := rows.Scan(&raw, &n, &sum); err != nil {
			return domain.BookingStats{}, err
		}
		status, err := domain.ParseBookingStatus(raw)
		if err != nil {
			return domain.BookingStats{}, err
		}
		stats.Add(status, n, sum)
	}
	return stats, rows.Err()
}

// UpdateStatus moves the booking from one status to another only if it is
// still in from. Rejecting returns the seats to the ticket.
func (r *PGBookingRepository) UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := scanBooking(tx.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2 AND status=$3 RETURNING `+bookingColumns,
		to.String(), id, from.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrConflict(ctx, tx, id)
	}
	if err != nil {
		return nil, err
	}

	if to == domain.BookingStatusRejected {
		if err := restock(ctx, tx, b.TicketID, b.Quantity); err != nil {
			return nil, err
		}
	}
	return b, tx.Commit(ctx)
}

// DeletePending removes a booking that is still pending and returns its
// seats to the ticket.
func (r *PGBookingRepository) DeletePending(ctx context.Context, id string) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := scanBooking(tx.QueryRow(ctx, `DELETE FROM bookings WHERE id=$1 AND status=$2 RETURNING `+bookingColumns,
		id, domain.BookingStatusPending.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrConflict(ctx, tx, id)
	}
	if err != nil {
		return nil, err
	}

	if err := restock(ctx, tx, b.TicketID, b.Quantity); err != nil {
		return nil, err
	}
	return b, tx.Commit(ctx)
}

// MarkPaid records the payment and moves an approved booking to paid as long
// as the trip has not departed at now.
func (r *PGBookingRepository) MarkPaid(ctx context.Context, id, paymentReference string, now time.Time) (*domain.Booking, *domain.Payment, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	b, err := scanBooking(tx.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now()
		WHERE id=$2 AND status=$3 AND departure_at > $4 RETURNING `+bookingColumns,
		domain.BookingStatusPaid.String(), id, domain.BookingStatusApproved.String(), now))
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.getByID(ctx, tx, id)
		if getErr != nil {
			return nil, nil, getErr
		}
		if current.Status == domain.BookingStatusApproved {
			return nil, nil, fmt.Errorf("%w: booking %s departed at %s", domain.ErrExpired, id, current.DepartureAt.UTC().Format(time.RFC3339))
		}
		return nil, nil, ErrConflict
	}
	if err != nil {
		return nil, nil, err
	}

	p := &domain.Payment{
		ID:               uuid.NewString(),
		BookingID:        b.ID,
		BuyerEmail:       b.BuyerEmail,
		Amount:           b.TotalPrice,
		PaymentReference: paymentReference,
	}
	if err := tx.QueryRow(ctx, `INSERT INTO payments (id, booking_id, buyer_email, amount, payment_reference)
		VALUES ($1, $2, $3, $4, $5) RETURNING paid_at`,
		p.ID, p.BookingID, p.BuyerEmail, p.Amount, p.PaymentReference).Scan(&p.PaidAt); err != nil {
		return nil, nil, duplicateAs(err, "payment reference")
	}

	return b, p, tx.Commit(ctx)
}

func (r *PGBookingRepository) ListPayments(ctx context.Context, buyerEmail string) ([]domain.Payment, error) {
	query := `SELECT id, booking_id, buyer_email, amount, payment_reference, paid_at FROM payments`
	var args []any
	if buyerEmail != "" {
		query += ` WHERE lower(buyer_email) = lower($1)`
		args = append(args, buyerEmail)
	}
	rows, err := r.db.Query(ctx, query+` ORDER BY paid_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.BookingID, &p.BuyerEmail, &p.Amount, &p.PaymentReference, &p.PaidAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ListApprovedDepartedBefore finds approved bookings whose trip left without
// payment. It does not change them.
func (r *PGBookingRepository) ListApprovedDepartedBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE status=$1 AND departure_at <= $2 ORDER BY departure_at`,
		domain.BookingStatusApproved.String(), deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var departed []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		departed = append(departed, *b)
	}
	return departed, rows.Err()
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PGBookingRepository) getByID(ctx context.Context, q querier, id string) (*domain.Booking, error) {
	b, err := scanBooking(q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
	}
	return b, err
}

func (r *PGBookingRepository) missOrConflict(ctx context.Context, q querier, id string) error {
	if _, err := r.getByID(ctx, q, id); err != nil {
		return err
	}
	return ErrConflict
}

func restock(ctx context.Context, tx pgx.Tx, ticketID string, quantity int) error {
	cmd, err := tx.Exec(ctx, `UPDATE tickets SET available_quantity = available_quantity + $2, updated_at = now() WHERE id = $1`, ticketID, quantity)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: ticket %s", domain.ErrNotFound, ticketID)
	}
	return nil
}

func filterClause(filter domain.BookingFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.BuyerEmail != "" {
		args = append(args, filter.BuyerEmail)
		conds = append(conds, fmt.Sprintf("lower(buyer_email) = lower($%d)", len(args)))
	}
	if filter.VendorEmail != "" {
		args = append(args, filter.VendorEmail)
		conds = append(conds, fmt.Sprintf("lower(vendor_email) = lower($%d)", len(args)))
	}
	if filter.Status.Valid() {
		args = append(args, filter.Status.String())
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanBooking(row scanner) (*domain.Booking, error) {
	var b domain.Booking
	var status string
	if err := row.Scan(&b.ID, &b.TicketID, &b.BuyerEmail, &b.VendorEmail, &b.Quantity, &b.UnitPrice, &b.TotalPrice, &b.DepartureAt, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := domain.ParseBookingStatus(status)
	if err != nil {
		return nil, err
	}
	b.Status = parsed
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
