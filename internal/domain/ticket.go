package domain

import (
	"fmt"
	"time"
)

type TransportType string

const (
	TransportBus    TransportType = "bus"
	TransportTrain  TransportType = "train"
	TransportLaunch TransportType = "launch"
	TransportFlight TransportType = "flight"
)

// TicketStatus is the moderation state of a listed ticket. New tickets are
// pending; only approved ones are shown in the catalog and can be booked.
type TicketStatus string

const (
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusApproved TicketStatus = "approved"
	TicketStatusRejected TicketStatus = "rejected"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusPending, TicketStatusApproved, TicketStatusRejected:
		return true
	}
	return false
}

func ParseTicketStatus(raw string) (TicketStatus, error) {
	s := TicketStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown ticket status %q", ErrValidation, raw)
	}
	return s, nil
}

// Ticket is a vendor-listed travel offering. The booking lifecycle only
// reads it.
type Ticket struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	From              string        `json:"from"`
	To                string        `json:"to"`
	Transport         TransportType `json:"transport"`
	VendorEmail       string        `json:"vendor_email"`
	UnitPrice         int64         `json:"unit_price"`
	AvailableQuantity int           `json:"available_quantity"`
	DepartureAt       time.Time     `json:"departure_at"`
	Status            TicketStatus  `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Bookable reports whether buyers may book the ticket.
func (t Ticket) Bookable() bool {
	return t.Status == TicketStatusApproved
}
