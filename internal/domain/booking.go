package domain

import (
	"fmt"
	"time"
)

// BookingStatus is the closed set of states a booking can be in. The zero
// value is not a valid status.
type BookingStatus uint8

const (
	BookingStatusUnknown BookingStatus = iota
	BookingStatusPending
	BookingStatusApproved
	BookingStatusRejected
	BookingStatusPaid
)

// BookingStatuses lists every valid status in lifecycle order.
var BookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusApproved,
	BookingStatusRejected,
	BookingStatusPaid,
}

var bookingStatusNames = map[BookingStatus]string{
	BookingStatusPending:  "pending",
	BookingStatusApproved: "approved",
	BookingStatusRejected: "rejected",
	BookingStatusPaid:     "paid",
}

func (s BookingStatus) String() string {
	if name, ok := bookingStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s BookingStatus) Valid() bool {
	_, ok := bookingStatusNames[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusRejected || s == BookingStatusPaid
}

func ParseBookingStatus(raw string) (BookingStatus, error) {
	for status, name := range bookingStatusNames {
		if name == raw {
			return status, nil
		}
	}
	return BookingStatusUnknown, fmt.Errorf("%w: unknown booking status %q", ErrValidation, raw)
}

func (s BookingStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: invalid booking status %d", ErrValidation, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *BookingStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseBookingStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Booking is one buyer's reservation against a ticket. Everything except
// Status and UpdatedAt is fixed at creation.
type Booking struct {
	ID          string        `json:"id"`
	TicketID    string        `json:"ticket_id"`
	BuyerEmail  string        `json:"buyer_email"`
	VendorEmail string        `json:"vendor_email"`
	Quantity    int           `json:"quantity"`
	UnitPrice   int64         `json:"unit_price"`
	TotalPrice  int64         `json:"total_price"`
	DepartureAt time.Time     `json:"departure_at"`
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// BookingDraft is what the store needs to create a booking. Prices and
// departure are captured from the catalog at the moment of creation.
type BookingDraft struct {
	TicketID    string    `json:"ticket_id" validate:"required"`
	BuyerEmail  string    `json:"buyer_email" validate:"required,email"`
	VendorEmail string    `json:"vendor_email"`
	Quantity    int       `json:"quantity" validate:"min=1"`
	UnitPrice   int64     `json:"unit_price" validate:"gte=0"`
	DepartureAt time.Time `json:"departure_at"`
}

// BookingFilter narrows a booking listing. Zero values match everything.
type BookingFilter struct {
	BuyerEmail  string
	VendorEmail string
	Status      BookingStatus
}

type BookingStats struct {
	Pending  int   `json:"pending"`
	Approved int   `json:"approved"`
	Rejected int   `json:"rejected"`
	Paid     int   `json:"paid"`
	Total    int   `json:"total"`
	Revenue  int64 `json:"revenue"`
}

// Payment records a completed payment for a booking.
type Payment struct {
	ID               string    `json:"id"`
	BookingID        string    `json:"booking_id"`
	BuyerEmail       string    `json:"buyer_email"`
	Amount           int64     `json:"amount"`
	PaymentReference string    `json:"payment_reference"`
	PaidAt           time.Time `json:"paid_at"`
}

// Add folds n bookings in status, worth sum in total, into the stats.
// Only paid bookings count towards revenue.
func (s *BookingStats) Add(status BookingStatus, n int, sum int64) {
	switch status {
	case BookingStatusPending:
		s.Pending += n
	case BookingStatusApproved:
		s.Approved += n
	case BookingStatusRejected:
		s.Rejected += n
	case BookingStatusPaid:
		s.Paid += n
		s.Revenue += sum
	default:
		return
	}
	s.Total += n
}
