package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"giftbox-rest-api/internal/logger"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher writes events to a topic keyed by fid, so one player's
// events stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates an asynchronous writer for topic.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	if topic == "" {
		return nil, errors.New("no kafka topic configured")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("failed to deliver ledger events",
					zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}

	logger.Info("kafka ledger publisher configured",
		zap.Strings("brokers", brokers), zap.String("topic", topic))
	return &KafkaPublisher{writer: writer}, nil
}

// Publish queues the event for delivery.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.FID, 10)),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	}
	return errors.Wrap(p.writer.WriteMessages(ctx, msg), "failed to publish event")
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = NopPublisher{}
	_ Publisher = (*MemoryPublisher)(nil)
)
