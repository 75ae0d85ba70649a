package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Consumer struct {
	reader *kafka.Reader
	logger *logrus.Entry
}

func NewConsumer(brokers []string, groupID, topic string, logger *logrus.Entry) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		logger: logger.WithFields(logrus.Fields{"component": "kafka_consumer", "topic": topic}),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
}

// BookingEventHandler decodes BookingEvent messages for handle. Messages that
// do not decode are logged and skipped so one bad payload cannot stall the
// group.
func (c *Consumer) BookingEventHandler(handle func(context.Context, BookingEvent) error) func(context.Context, kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var event BookingEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.WithError(err).WithField("offset", msg.Offset).Warn("skipping undecodable event")
			return nil
		}
		return handle(ctx, event)
	}
}
