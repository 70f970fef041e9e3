package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
)

// KafkaMirror duplicates bus publishes onto a Kafka topic for
// cross-process consumers, fire-and-forget. It never blocks or fails the
// in-process publish: grounded on backendService/kafka.ConsumerManager's
// "don't fail completely" posture, inverted for the producer side.
type KafkaMirror struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaMirror builds a mirror sink writing to the given brokers/topic.
// Returns nil if brokers is empty, the convention callers use to disable
// mirroring without a separate feature flag.
func NewKafkaMirror(log *zap.Logger, brokers []string, topic string) *KafkaMirror {
	if len(brokers) == 0 {
		return nil
	}
	return &KafkaMirror{
		log: log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
		},
	}
}

// Mirror implements notify.MirrorSink.
func (m *KafkaMirror) Mirror(topic string, payload model.NotifyPayload) {
	body, err := json.Marshal(payload.Data)
	if err != nil {
		m.log.Warn("kafka mirror: marshal failed", zap.String("topic", topic), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(topic),
		Value: body,
		Time:  time.Now(),
	}); err != nil {
		m.log.Warn("kafka mirror: write failed", zap.String("topic", topic), zap.Error(err))
	}
}

// Close releases the underlying writer's resources.
func (m *KafkaMirror) Close() error {
	if m == nil || m.writer == nil {
		return nil
	}
	return m.writer.Close()
}
