package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CloudEvent is the CloudEvents v1.0 envelope every published event uses.
type CloudEvent struct {
	SpecVersion     string    `json:"specversion"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Subject         *string   `json:"subject,omitempty"`
	ID              string    `json:"id"`
	Time            time.Time `json:"time"`
	DataContentType *string   `json:"datacontenttype,omitempty"`
	Data            any       `json:"data,omitempty"`
}

// EventType names a published event kind.
type EventType string

const (
	EventAccountLoggedIn  EventType = "auth.account.logged_in"
	EventAccountCreated   EventType = "auth.account.created"
	EventMFAEnabled       EventType = "auth.mfa.enabled"
	EventMFADisabled      EventType = "auth.mfa.disabled"
	EventSessionRevoked   EventType = "auth.session.revoked"
	EventLockoutTriggered EventType = "auth.ratelimit.lockout"
)

const (
	cloudEventSpecVersion     = "1.0"
	cloudEventDataContentType = "application/json"
)

// Publisher is the event-publishing surface the services depend on. The nop
// implementation is used when Kafka is not configured.
type Publisher interface {
	Publish(ctx context.Context, eventType EventType, subject string, payload any) error
	Close() error
}

// Producer publishes CloudEvents to a single Kafka topic via a synchronous,
// idempotent sarama producer.
type Producer struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
	topic    string
	source   string
}

// NewProducer connects to the brokers. source identifies this service in the
// CloudEvent envelope, e.g. "/auth-service".
func NewProducer(brokers []string, topic string, source string, logger *zap.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &Producer{
		producer: producer,
		logger:   logger,
		topic:    topic,
		source:   source,
	}, nil
}

// Publish wraps the payload in a CloudEvent and sends it. The subject (account
// id) doubles as the partition key so one account's events stay ordered.
func (p *Producer) Publish(_ context.Context, eventType EventType, subject string, payload any) error {
	contentType := cloudEventDataContentType
	event := CloudEvent{
		SpecVersion:     cloudEventSpecVersion,
		Type:            string(eventType),
		Source:          p.source,
		ID:              uuid.NewString(),
		Time:            time.Now().UTC(),
		DataContentType: &contentType,
		Data:            payload,
	}
	if subject != "" {
		event.Subject = &subject
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal CloudEvent: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(eventJSON),
	}
	if subject != "" {
		msg.Key = sarama.StringEncoder(subject)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send CloudEvent to Kafka: %w", err)
	}

	p.logger.Debug("CloudEvent sent",
		zap.String("type", string(eventType)),
		zap.String("event_id", event.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

var _ Publisher = (*Producer)(nil)

// NopPublisher discards events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, EventType, string, any) error { return nil }
func (NopPublisher) Close() error                                          { return nil }

var _ Publisher = NopPublisher{}
