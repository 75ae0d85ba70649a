package lifecycle

import (
	"fmt"
	"time"

	"github.com/Domenick1991/ticketbari/internal/domain"
)

// Quote is the price of a booking frozen at the moment it is requested.
type Quote struct {
	TicketID    string
	VendorEmail string
	Quantity    int
	UnitPrice   int64
	TotalPrice  int64
	DepartureAt time.Time
}

func TotalPrice(quantity int, unitPrice int64) int64 {
	return int64(quantity) * unitPrice
}

// NewQuote prices quantity units of ticket using the catalog values it holds
// right now.
func NewQuote(ticket domain.Ticket, quantity int) (Quote, error) {
	if quantity < 1 {
		return Quote{}, fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation)
	}
	if quantity > ticket.AvailableQuantity {
		return Quote{}, fmt.Errorf("%w: requested %d, available %d", domain.ErrInsufficientInventory, quantity, ticket.AvailableQuantity)
	}
	return Quote{
		TicketID:    ticket.ID,
		VendorEmail: ticket.VendorEmail,
		Quantity:    quantity,
		UnitPrice:   ticket.UnitPrice,
		TotalPrice:  TotalPrice(quantity, ticket.UnitPrice),
		DepartureAt: ticket.DepartureAt,
	}, nil
}

// Draft turns the quote into a store request on behalf of buyerEmail.
func (q Quote) Draft(buyerEmail string) domain.BookingDraft {
	return domain.BookingDraft{
		TicketID:    q.TicketID,
		BuyerEmail:  buyerEmail,
		VendorEmail: q.VendorEmail,
		Quantity:    q.Quantity,
		UnitPrice:   q.UnitPrice,
		DepartureAt: q.DepartureAt,
	}
}
