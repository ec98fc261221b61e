package hive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Notifier announces successfully stored images to other services.
type Notifier interface {
	ImageIngested(ctx context.Context, meta *ImageMetadata) error
	Close() error
}

type noopNotifier struct{}

func (noopNotifier) ImageIngested(context.Context, *ImageMetadata) error { return nil }
func (noopNotifier) Close() error { return nil }

// KafkaNotifier publishes one message per ingested image, keyed by the
// asset key.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// NewNotifier returns a Kafka notifier when brokers are configured.
func NewNotifier(config Config) Notifier {
	if len(config.KafkaBrokers) == 0 {
		return noopNotifier{}
	}
	return NewKafkaNotifier(config.KafkaBrokers, config.KafkaTopic)
}

type ingestedEvent struct {
	Event string         `json:"event"`
	Image *ImageMetadata `json:"image"`
}

func ingestedMessage(meta *ImageMetadata) (kafka.Message, error) {
	value, err := json.Marshal(ingestedEvent{Event: "image.ingested", Image: meta})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal ingest event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(meta.Key),
		Value: value,
		Time:  meta.UploadedAt,
	}, nil
}

func (n *KafkaNotifier) ImageIngested(ctx context.Context, meta *ImageMetadata) error {
	msg, err := ingestedMessage(meta)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, msg)
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
