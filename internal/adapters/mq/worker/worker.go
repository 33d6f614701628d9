// Package worker consumes the change feed and publishes notifications
// for rows that newly reach pass or out_of_stock.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/zxkane/contest-checker/internal/domain/dedupe"
	"github.com/zxkane/contest-checker/internal/domain/model"
	"github.com/zxkane/contest-checker/pkg/logger"
	"github.com/zxkane/contest-checker/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Notification is the published message shape.
type Notification struct {
	Subject string
	Message string
}

// Notifier publishes a notification to the outside world.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Queue defines how workers receive change records.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Change
}

// LogNotifier is the default Notifier; it logs instead of publishing.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier creates a notifier that writes to the service log.
func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the notification.
func (n *LogNotifier) Notify(ctx context.Context, note Notification) error {
	n.log.Info(ctx, "notification",
		logger.String("subject", note.Subject),
		logger.String("message", note.Message),
	)
	return nil
}

// Pool runs a fixed set of workers over the change feed. Delivery from
// the feed is at-least-once, so publishes are deduped per row transition.
type Pool struct {
	queue    Queue
	notifier Notifier
	deduper  dedupe.Deduper
	count    int

	wg     sync.WaitGroup
	cancel context.CancelFunc
	log    logger.Logger
}

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithWorkerCount sets the number of consuming goroutines.
func WithWorkerCount(count int) Option {
	return func(p *Pool) {
		if count > 0 {
			p.count = count
		}
	}
}

// WithLogger sets the pool logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}

// NewPool creates a notification worker pool.
func NewPool(queue Queue, notifier Notifier, deduper dedupe.Deduper, opts ...Option) *Pool {
	p := &Pool{
		queue:    queue,
		notifier: notifier,
		deduper:  deduper,
		count:    2,
		log:      logger.Get().Named("notify"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	metrics.UpdateWorkerCount(p.count)

	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go func(name string) {
			defer p.wg.Done()
			p.run(runCtx, name)
		}(("notify-" + strconv.Itoa(i)))
	}
}

// Stop cancels the workers and waits for them to drain.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(poolShutdownTimeout):
		p.log.Warn(context.Background(), "worker pool shutdown timed out")
	}
	metrics.UpdateWorkerCount(0)
}

func (p *Pool) run(ctx context.Context, name string) {
	changes := p.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			metrics.RecordFeedDequeue()
			if err := p.handle(ctx, change); err != nil {
				p.log.Error(ctx, "notification failed",
					logger.String("worker", name),
					logger.String("key", change.Key),
					logger.Error(err),
				)
			}
		}
	}
}

// handle publishes at most one notification per (row, status) transition.
func (p *Pool) handle(ctx context.Context, change model.Change) error {
	switch change.Status {
	case model.StatusPass, model.StatusOutOfStock:
	default:
		// Failures and bans do not fan out.
		return nil
	}

	deliveryKey := change.Key + "|" + string(change.Status)
	if p.deduper.SeenAndRecord(ctx, deliveryKey) {
		metrics.RecordNotifierDuplicate()
		return nil
	}

	note := Notification{
		Subject: fmt.Sprintf("received submission with result %s from %s", change.Status, change.Nickname),
		Message: fmt.Sprintf("the submission is %s at %s", change.Content, change.UpdatedAt.Format(time.RFC3339)),
	}
	if err := p.notifier.Notify(ctx, note); err != nil {
		// Forget the delivery so a redelivered record can retry it.
		p.deduper.Unrecord(ctx, deliveryKey)
		metrics.RecordNotifierError()
		return err
	}
	metrics.RecordNotifierDelivery()
	return nil
}
