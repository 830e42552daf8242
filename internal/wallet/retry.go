package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RetryQueue takes settlement credits that failed and must be applied
// later, outside the round.
type RetryQueue interface {
	Enqueue(ctx context.Context, credit Credit) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewCreditWriter returns a producer for the credit retry topic.
func NewCreditWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewCreditReader returns a consumer group reader for the credit retry topic.
// Offsets are committed explicitly by RetryWorker.
func NewCreditReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

type KafkaRetryQueue struct {
	writer messageWriter
}

func NewKafkaRetryQueue(w *kafka.Writer) *KafkaRetryQueue {
	return &KafkaRetryQueue{writer: w}
}

func (q *KafkaRetryQueue) Enqueue(ctx context.Context, c Credit) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(c.Key()),
		Value: b,
		Time:  time.Now(),
	})
}

// LogRetryQueue only records the failed credit. It is used when no broker
// is configured and an operator replays credits by hand.
type LogRetryQueue struct {
	log *zap.Logger
}

func NewLogRetryQueue(log *zap.Logger) *LogRetryQueue {
	return &LogRetryQueue{log: log}
}

func (q *LogRetryQueue) Enqueue(_ context.Context, c Credit) error {
	q.log.Warn("credit pending manual retry",
		zap.String("round_id", c.RoundID),
		zap.String("user_id", c.UserID),
		zap.Float64("amount", c.Amount),
	)
	return nil
}

// RetryWorker consumes queued credits and applies them to the gateway.
// A message is committed only once its credit is applied or found
// undeliverable, so a crash in between replays it; Credit is idempotent.
type RetryWorker struct {
	reader  messageReader
	gateway Gateway
	log     *zap.Logger
	backoff time.Duration
}

func NewRetryWorker(r *kafka.Reader, gateway Gateway, log *zap.Logger) *RetryWorker {
	return newRetryWorker(r, gateway, log, 2*time.Second)
}

func newRetryWorker(r messageReader, gateway Gateway, log *zap.Logger, backoff time.Duration) *RetryWorker {
	return &RetryWorker{reader: r, gateway: gateway, log: log, backoff: backoff}
}

func (w *RetryWorker) Run(ctx context.Context) error {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch credit: %w", err)
		}

		if err := w.apply(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit credit: %w", err)
		}
	}
}

func (w *RetryWorker) apply(ctx context.Context, msg kafka.Message) error {
	var c Credit
	if err := json.Unmarshal(msg.Value, &c); err != nil {
		w.log.Error("dropping malformed credit", zap.ByteString("key", msg.Key), zap.Error(err))
		return nil
	}

	for {
		bal, err := w.gateway.Credit(ctx, c)
		if err == nil {
			w.log.Info("credit applied",
				zap.String("round_id", c.RoundID),
				zap.String("user_id", c.UserID),
				zap.Float64("balance", bal),
			)
			return nil
		}
		if errors.Is(err, ErrAccountNotFound) {
			w.log.Error("dropping credit for unknown account", zap.String("user_id", c.UserID))
			return nil
		}

		w.log.Warn("credit retry failed", zap.String("key", c.Key()), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.backoff):
		}
	}
}
