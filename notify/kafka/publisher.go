package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	identity "github.com/allocar/identity"
	"go.uber.org/zap"
)

const DefaultTopic = "identity.notifications"

// Message is the JSON payload consumed by the delivery service. Code is the
// plaintext one-time code; the topic must be treated as secret.
type Message struct {
	Kind      string    `json:"kind"`
	TenantID  string    `json:"tenant_id,omitempty"`
	AccountID string    `json:"account_id"`
	Recipient string    `json:"recipient"`
	Code      string    `json:"code"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Publisher is an identity.NotificationSender that writes each notification
// to a Kafka topic, keyed by recipient so a recipient's codes stay ordered.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
	now      func() time.Time
}

// NewProducerConfig returns the producer settings the publisher expects.
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// Dial connects a sync producer to brokers.
func Dial(brokers []string, topic string, logger *zap.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return NewPublisher(producer, topic, logger), nil
}

func NewPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) Send(ctx context.Context, n identity.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(Message{
		Kind:      string(n.Kind),
		TenantID:  n.TenantID,
		AccountID: n.AccountID,
		Recipient: n.Recipient,
		Code:      n.Code,
		IssuedAt:  p.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(n.Recipient),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(n.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	p.logger.Debug("notification published",
		zap.String("kind", string(n.Kind)),
		zap.String("account_id", n.AccountID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
