package notify

import (
	"context"
	"fmt"

	"github.com/Domenick1991/ticketbari/internal/kafka"
	"github.com/sirupsen/logrus"
)

// Message is an email the worker would send.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender logs the emails a booking event produces. Delivery through a mail
// provider is outside this service.
type Sender struct {
	logger *logrus.Entry
}

func NewSender(logger *logrus.Entry) *Sender {
	return &Sender{logger: logger.WithField("component", "notify")}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	for _, msg := range Compose(event) {
		s.logger.WithFields(logrus.Fields{
			"to":         msg.To,
			"subject":    msg.Subject,
			"booking_id": event.BookingID,
			"event":      event.Type,
		}).Info(msg.Body)
	}
	return nil
}

// Compose turns an event into the emails it should trigger. Unknown events
// produce none.
func Compose(event kafka.BookingEvent) []Message {
	ref := fmt.Sprintf("booking %s (%d x ticket %s)", event.BookingID, event.Quantity, event.TicketID)
	departure := event.DepartureAt.UTC().Format("2006-01-02 15:04 MST")

	switch event.Type {
	case kafka.EventBookingCreated:
		msgs := []Message{{To: event.BuyerEmail, Subject: "Booking received", Body: ref + " is awaiting approval"}}
		if event.VendorEmail != "" {
			msgs = append(msgs, Message{To: event.VendorEmail, Subject: "New booking request", Body: ref + " needs your review"})
		}
		return msgs
	case kafka.EventBookingApproved:
		return []Message{{To: event.BuyerEmail, Subject: "Booking approved", Body: fmt.Sprintf("%s was approved, pay %d before departure at %s", ref, event.TotalPrice, departure)}}
	case kafka.EventBookingRejected:
		return []Message{{To: event.BuyerEmail, Subject: "Booking rejected", Body: ref + " was rejected"}}
	case kafka.EventBookingCancelled:
		if event.VendorEmail == "" {
			return nil
		}
		return []Message{{To: event.VendorEmail, Subject: "Booking cancelled", Body: ref + " was cancelled by the buyer"}}
	case kafka.EventBookingPaid:
		return []Message{{To: event.BuyerEmail, Subject: "Payment complete", Body: fmt.Sprintf("%s is paid, your pass is ready to download", ref)}}
	case kafka.EventBookingTripExpired:
		return []Message{{To: event.BuyerEmail, Subject: "Trip expired", Body: fmt.Sprintf("%s departed at %s without payment", ref, departure)}}
	}
	return nil
}
