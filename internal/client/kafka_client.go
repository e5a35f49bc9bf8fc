package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"club-ledger/internal/config"
	"club-ledger/internal/util"
)

// Audit event types published to the club event topic.
const (
	EventMemberAdmitted  = "member.admitted"
	EventMemberPromoted  = "member.promoted"
	EventMemberDeleted   = "member.deleted"
	EventPermitChanged   = "permit.changed"
	EventDuesRecorded    = "dues.recorded"
	EventConfigUpdated   = "management.updated"
	EventPasswordChanged = "password.changed"
)

// ClubEvent is the envelope written to Kafka for every auditable mutation.
type ClubEvent struct {
	Type       string                 `json:"type"`
	MemberID   string                 `json:"member_id,omitempty"`
	Username   string                 `json:"username,omitempty"`
	Actor      string                 `json:"actor,omitempty"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

type KafkaProducer struct {
	Writer *kafka.Writer
	config *config.KafkaConfig
	logger *zap.Logger
}

func NewKafkaProducer(cfg *config.Config, logger *zap.Logger) (*KafkaProducer, error) {
	kafkaConfig := cfg.Kafka

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkaConfig.Brokers...),
		Topic:        kafkaConfig.EventTopic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to write kafka messages",
					zap.Error(err),
					zap.Int("message_count", len(messages)),
				)
			}
		},
	}

	util.Info("Kafka producer initialized",
		zap.Strings("brokers", kafkaConfig.Brokers),
		zap.String("topic", kafkaConfig.EventTopic),
	)

	return &KafkaProducer{
		Writer: writer,
		config: &kafkaConfig,
		logger: logger,
	}, nil
}

func (p *KafkaProducer) Close() error {
	if p.Writer != nil {
		if err := p.Writer.Close(); err != nil {
			util.Error("failed to close Kafka producer", zap.Error(err))
			return err
		}
		util.Info("Kafka producer closed")
	}
	return nil
}

// PublishEvent writes one club event, keyed by the member username so events
// for a member stay ordered within a partition.
func (p *KafkaProducer) PublishEvent(ctx context.Context, event *ClubEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode club event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Username),
		Value: value,
	}

	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	util.Debug("Published club event",
		zap.String("type", event.Type),
		zap.String("username", event.Username),
	)

	return nil
}

func (p *KafkaProducer) HealthCheck(ctx context.Context) error {
	dialer := &kafka.Dialer{
		Timeout:   5 * time.Second,
		DualStack: true,
	}

	conn, err := dialer.DialContext(ctx, "tcp", p.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(); err != nil {
		return fmt.Errorf("failed to read kafka partitions: %w", err)
	}
	return nil
}
