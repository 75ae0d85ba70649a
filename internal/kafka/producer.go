package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// BookingEvent is published on every confirmed booking change and on
// notifications the worker fans out to buyers and vendors.
type BookingEvent struct {
	Type        string    `json:"type"`
	BookingID   string    `json:"booking_id"`
	TicketID    string    `json:"ticket_id"`
	BuyerEmail  string    `json:"buyer_email"`
	VendorEmail string    `json:"vendor_email,omitempty"`
	Status      string    `json:"status"`
	Quantity    int       `json:"quantity"`
	TotalPrice  int64     `json:"total_price"`
	DepartureAt time.Time `json:"departure_at"`
	OccurredAt  time.Time `json:"occurred_at"`
}

const (
	EventBookingCreated     = "booking_created"
	EventBookingApproved    = "booking_approved"
	EventBookingRejected    = "booking_rejected"
	EventBookingCancelled   = "booking_cancelled"
	EventBookingPaid        = "booking_paid"
	EventBookingTripExpired = "booking_trip_expired"
)

type Producer struct {
	brokers []string
	writer  *kafka.Writer
	logger  *logrus.Entry
}

func NewProducer(brokers []string, logger *logrus.Entry) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{
		brokers: brokers,
		writer:  writer,
		logger:  logger.WithField("component", "kafka_producer"),
	}
}

// Publish writes payload as JSON. Messages for one booking share a key so
// they keep their order within a partition.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.logger.WithFields(logrus.Fields{"topic": topic, "key": key}).Debug("published")
	return nil
}

func (p *Producer) PublishWithRetry(ctx context.Context, topic, key string, payload interface{}, maxRetries int) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := p.Publish(ctx, topic, key, payload)
		if err == nil {
			return nil
		}

		lastErr = err
		p.logger.WithError(err).WithField("attempt", i+1).Warn("publish failed")

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 500 * time.Millisecond):
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// CheckConnection dials the first broker and reads its partitions.
func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("failed to read partitions: %w", err)
	}

	p.logger.WithField("partitions", len(partitions)).Info("connected to kafka")
	return nil
}
