// Package kafka publishes completion events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/streamline/pkg/eventstream"
	"github.com/papercomputeco/streamline/pkg/logger"
)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "streamline.completions"

// Config configures a Publisher.
type Config struct {
	// Brokers lists the bootstrap broker addresses, e.g. "localhost:9092".
	Brokers []string

	// Topic receives the events. Defaults to DefaultTopic.
	Topic string

	// WriteTimeout bounds a single publish. Defaults to 10s.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes one message per event, keyed by conversation id so that
// a conversation's events stay ordered within a partition.
type Publisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher creates a publisher backed by a kafka-go Writer.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	log := logger.OrNop(c.Logger)

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...any) {
			log.Error(fmt.Sprintf(msg, args...), "component", "kafka")
		}),
	}
	return newPublisher(w, c, log), nil
}

func newPublisher(w messageWriter, c Config, log *slog.Logger) *Publisher {
	timeout := c.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Publisher{
		writer:  w,
		topic:   c.Topic,
		timeout: timeout,
		logger:  log,
	}
}

// Topic returns the destination topic.
func (p *Publisher) Topic() string {
	return p.topic
}

// PublishCompletion marshals event to JSON and writes it synchronously.
func (p *Publisher) PublishCompletion(ctx context.Context, event *eventstream.CompletionRecordedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding completion event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafkago.Message{
		Key:   []byte(event.ConversationID),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(fmt.Sprint(event.SchemaVersion))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing completion event: %w", err)
	}

	p.logger.Debug("completion event published",
		"topic", p.topic,
		"event_id", event.EventID,
		"conversation_id", event.ConversationID,
	)
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
