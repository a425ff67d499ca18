package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/wolfeidau/tsrunner/internal/models"
)

const writeTimeout = 5 * time.Second

// KafkaPublisher writes result events to a Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher creates a publisher for the given brokers. It returns nil
// when no brokers are configured; a nil publisher drops events.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if len(brokers) == 0 {
		return nil
	}
	if topic == "" {
		topic = DefaultResultsTopic
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: writer, topic: topic}
}

// PublishResult implements Publisher. The write is bounded by a short
// timeout so a slow broker cannot hold up the job that produced the result.
func (p *KafkaPublisher) PublishResult(ctx context.Context, result *models.Result) error {
	if p == nil || p.writer == nil || result == nil {
		return nil
	}

	key, value, err := encode(result)
	if err != nil {
		return fmt.Errorf("failed to encode result event: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   key,
		Value: value,
		Time:  result.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to write result event: %w", err)
	}

	log.Debug().
		Str("topic", p.topic).
		Str("result_id", result.ResultID.String()).
		Msg("Published result event")

	return nil
}

// Close flushes and closes the writer. Safe on a nil publisher.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
