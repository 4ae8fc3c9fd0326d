// Package events publishes invite lifecycle changes for downstream
// consumers (analytics, support tooling).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(ctx context.Context, ev domain.InviteEvent) error
	Close() error
}

// LogPublisher writes events to the log. Used when no brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "events")}
}

func (p *LogPublisher) Publish(ctx context.Context, ev domain.InviteEvent) error {
	p.logger.DebugContext(ctx, "invite event",
		"session_id", ev.SessionID,
		"user_id", ev.UserID,
		"flow", ev.Flow,
		"state", ev.State,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Writer is the subset of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher keys messages by user id so a user's events stay ordered
// within one partition.
type KafkaPublisher struct {
	writer Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	})
}

func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev domain.InviteEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.UserID, 10)),
		Value: b,
		Headers: []kafka.Header{
			{Key: "state", Value: []byte(ev.State)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// New returns a KafkaPublisher when brokers are configured, LogPublisher otherwise.
func New(brokers []string, topic string, logger *slog.Logger) Publisher {
	if len(brokers) == 0 {
		return NewLogPublisher(logger)
	}
	return NewKafkaPublisher(brokers, topic)
}
