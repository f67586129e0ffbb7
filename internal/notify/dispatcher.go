package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultWorkers     = 2
	defaultQueueSize   = 128
	defaultSendTimeout = 30 * time.Second
)

type job struct {
	ctx context.Context
	n   Notification
}

// Dispatcher schedules notifications on a bounded in-process queue drained
// by a fixed pool of workers. Scheduling never blocks: when the queue is
// full the notification is dropped and logged. Each notification is handed
// to the sink exactly once.
type Dispatcher struct {
	sink    Sink
	queue   chan job
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts workers goroutines feeding sink.
func NewDispatcher(sink Sink, workers, queueSize int, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan job, queueSize),
		timeout: timeout,
		logger:  logger.Named("notify"),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.run()
	}
	return d
}

// SendVerification schedules a verification-code email.
func (d *Dispatcher) SendVerification(ctx context.Context, email, username, code string) {
	d.Schedule(ctx, Notification{Kind: KindVerification, Email: email, Username: username, Code: code})
}

// SendReset schedules a password-reset-code email.
func (d *Dispatcher) SendReset(ctx context.Context, email, username, code string) {
	d.Schedule(ctx, Notification{Kind: KindPasswordReset, Email: email, Username: username, Code: code})
}

// Schedule enqueues n and reports whether it was accepted. The caller's
// context contributes values only; its cancellation does not abort delivery.
func (d *Dispatcher) Schedule(ctx context.Context, n Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dispatcher closed, dropping notification", zap.String("kind", string(n.Kind)))
		return false
	}

	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), n: n}:
		return true
	default:
		d.logger.Warn("notification queue full, dropping notification",
			zap.String("kind", string(n.Kind)),
			zap.Int("queue_size", cap(d.queue)),
		)
		return false
	}
}

// Close stops accepting notifications and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification sink panicked", zap.Any("panic", r), zap.String("kind", string(j.n.Kind)))
		}
	}()

	if err := d.sink.Deliver(ctx, j.n); err != nil {
		d.logger.Error("notification delivery failed",
			zap.Error(err),
			zap.String("kind", string(j.n.Kind)),
			zap.String("email", j.n.Email),
		)
		return
	}
	d.logger.Debug("notification delivered", zap.String("kind", string(j.n.Kind)))
}
