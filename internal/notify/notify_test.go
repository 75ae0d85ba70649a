package notify

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/ticketbari/internal/kafka"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(eventType string) kafka.BookingEvent {
	return kafka.BookingEvent{
		Type:        eventType,
		BookingID:   "b1",
		TicketID:    "t1",
		BuyerEmail:  "buyer@example.com",
		VendorEmail: "vendor@example.com",
		Quantity:    2,
		TotalPrice:  2400,
		DepartureAt: time.Date(2026, 12, 1, 18, 0, 0, 0, time.UTC),
	}
}

func TestCompose(t *testing.T) {
	tests := []struct {
		eventType string
		to        []string
		subject   string
	}{
		{kafka.EventBookingCreated, []string{"buyer@example.com", "vendor@example.com"}, "Booking received"},
		{kafka.EventBookingApproved, []string{"buyer@example.com"}, "Booking approved"},
		{kafka.EventBookingRejected, []string{"buyer@example.com"}, "Booking rejected"},
		{kafka.EventBookingCancelled, []string{"vendor@example.com"}, "Booking cancelled"},
		{kafka.EventBookingPaid, []string{"buyer@example.com"}, "Payment complete"},
		{kafka.EventBookingTripExpired, []string{"buyer@example.com"}, "Trip expired"},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			msgs := Compose(event(tt.eventType))
			require.Len(t, msgs, len(tt.to))
			for i, to := range tt.to {
				assert.Equal(t, to, msgs[i].To)
			}
			assert.Equal(t, tt.subject, msgs[0].Subject)
			assert.Contains(t, msgs[0].Body, "booking b1")
		})
	}
}

func TestCompose_Unknown(t *testing.T) {
	assert.Empty(t, Compose(event("booking_teleported")))
}

func TestSender_Send(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sender := NewSender(logrus.NewEntry(logger))

	require.NoError(t, sender.Send(context.Background(), event(kafka.EventBookingApproved)))

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, "buyer@example.com", entry.Data["to"])
	assert.Equal(t, "b1", entry.Data["booking_id"])
	assert.Contains(t, entry.Message, "pay 2400 before departure")
}
