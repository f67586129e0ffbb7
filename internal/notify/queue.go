package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jjudge-oj/identity/internal/mq"
	"go.uber.org/zap"
)

// Publisher is the part of mq.MQ used to relay notifications.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Subscriber is the part of mq.MQ the worker consumes from.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// QueueSink hands notifications to a message queue instead of mailing them
// from the API process.
type QueueSink struct {
	publisher Publisher
	channel   string
}

func NewQueueSink(publisher Publisher, channel string) *QueueSink {
	return &QueueSink{publisher: publisher, channel: channel}
}

func (q *QueueSink) Deliver(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = q.publisher.Publish(ctx, q.channel, data, map[string]string{"kind": string(n.Kind)})
	return err
}

// Worker consumes relayed notifications and delivers them to a sink. Every
// message is acknowledged after a single attempt, whatever the outcome.
type Worker struct {
	subscriber Subscriber
	channel    string
	sink       Sink
	logger     *zap.Logger
}

func NewWorker(subscriber Subscriber, channel string, sink Sink, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		subscriber: subscriber,
		channel:    channel,
		sink:       sink,
		logger:     logger.Named("worker"),
	}
}

// Run blocks consuming messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("consuming notifications", zap.String("channel", w.channel))
	err := w.subscriber.Subscribe(ctx, w.channel, w.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle decodes and delivers one message. It never returns an error so the
// broker does not redeliver.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	var n Notification
	if err := json.Unmarshal(msg.Data, &n); err != nil {
		w.logger.Error("discarding malformed notification", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	if err := w.sink.Deliver(ctx, n); err != nil {
		w.logger.Error("notification delivery failed",
			zap.String("message_id", msg.ID),
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
		return nil
	}
	w.logger.Debug("notification delivered", zap.String("message_id", msg.ID))
	return nil
}
