package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"atlas-air/internal/logger"
	"atlas-air/internal/models"

	"github.com/segmentio/kafka-go"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	Reader MessageReader
	Logger *logger.Logger
}

// NewConsumer reads topic as member of groupID. Every API instance uses its
// own group so that each one sees every seat event.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{Reader: reader, Logger: log}
}

// ConsumeSeatStatus hands every decoded seat event to handler until ctx is
// cancelled.
func (c *Consumer) ConsumeSeatStatus(ctx context.Context, handler func(models.SeatStatusEvent)) error {
	c.Logger.LogKafka("CONSUME", "seat-status", "Kafka consumer started")

	for {
		msg, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			return err
		}

		var ev models.SeatStatusEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal seat event at offset %d: %v", msg.Offset, err))
			continue
		}

		c.Logger.Debug("KAFKA", fmt.Sprintf("Received seat event: flight=%d seat=%d status=%s", ev.FlightID, ev.SeatID, ev.Status))
		handler(ev)
	}
}

func (c *Consumer) Close() error {
	return c.Reader.Close()
}
