package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"atlas-air/internal/config"
	"atlas-air/internal/logger"
	"atlas-air/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Topics config.TopicConfig
	Logger *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log}
}

// Publish JSON-encodes value and writes it to topic under key.
func (p *Producer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	msgBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	p.Logger.LogKafka("PUBLISH", topic, string(msgBytes))

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		return fmt.Errorf("write %s event: %w", topic, err)
	}
	return nil
}

// PublishReservationCreated streams the reservation creation event to Kafka
func (p *Producer) PublishReservationCreated(ctx context.Context, r models.Reservation) error {
	return p.Publish(ctx, p.Topics.ReservationCreated, r.ReservationCode, models.NewReservationEvent(r))
}

// PublishReservationCancelled streams the reservation cancellation event to Kafka
func (p *Producer) PublishReservationCancelled(ctx context.Context, r models.Reservation) error {
	return p.Publish(ctx, p.Topics.ReservationCancelled, r.ReservationCode, models.NewReservationEvent(r))
}

// PublishSeatStatus is keyed by flight so one flight's seat events stay ordered.
func (p *Producer) PublishSeatStatus(ctx context.Context, ev models.SeatStatusEvent) error {
	return p.Publish(ctx, p.Topics.SeatStatus, strconv.FormatInt(ev.FlightID, 10), ev)
}

func (p *Producer) Close() error {
	if p.Writer == nil {
		return nil
	}
	return p.Writer.Close()
}
