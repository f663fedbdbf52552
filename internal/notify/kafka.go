package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes notices as JSON to a topic, keyed by case id so that
// all notices of one case land on the same partition. Writes are async and
// failures are only logged.
type KafkaSink struct {
	writer  messageWriter
	log     *zap.Logger
	timeout time.Duration
}

func NewKafkaSink(brokers []string, topic string, log *zap.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("kafka notice delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return newKafkaSink(writer, log)
}

func newKafkaSink(w messageWriter, log *zap.Logger) *KafkaSink {
	return &KafkaSink{writer: w, log: log, timeout: 5 * time.Second}
}

func (s *KafkaSink) Notify(ctx context.Context, n surgical.Notice) {
	value, err := json.Marshal(n)
	if err != nil {
		s.log.Error("failed to encode notice", zap.Error(err))
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(n.CaseID),
		Value: value,
		Time:  n.At,
	}
	if err := s.writer.WriteMessages(writeCtx, msg); err != nil {
		s.log.Warn("failed to publish notice", zap.String("case_id", n.CaseID), zap.Error(err))
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
