package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	brokers     []string
	writer      messageWriter
	eventsTopic string
	log         *zap.Logger
}

func NewProducer(brokers []string, eventsTopic string, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{
		brokers:     brokers,
		writer:      writer,
		eventsTopic: eventsTopic,
		log:         log,
	}
}

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

	p.log.Debug("published", zap.String("topic", topic), zap.String("key", key))
	return nil
}

// PublishSyncCompleted announces a finished job keyed by route so that events
// for one route stay ordered within a partition.
func (p *Producer) PublishSyncCompleted(ctx context.Context, res domain.SyncResult) error {
	key := res.Route.String() + "@" + res.Date
	if res.Route == (domain.Route{}) {
		key = "reference"
	}
	return p.Publish(ctx, p.eventsTopic, key, SyncEvent{
		Type:       EventSyncCompleted,
		OccurredAt: time.Now(),
		Result:     res,
	})
}

func (p *Producer) PublishSyncRequest(ctx context.Context, topic string, req SyncRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	key := req.Kind
	if req.Kind != RequestKindReference {
		key = req.Route().String()
	}
	return p.Publish(ctx, topic, key, req)
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(); err != nil {
		return fmt.Errorf("failed to read partitions: %w", err)
	}
	return nil
}
