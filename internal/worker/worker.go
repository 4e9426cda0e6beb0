package worker

import (
	"context"
	"fmt"
	"log/slog"

	"bankledger/internal/repository"

	"github.com/nats-io/nats.go"
)

// cashbackQueue names both the queue group and the durable consumer.
const cashbackQueue = "cashback-workers"

// delivery is the acknowledgement surface of a JetStream message.
type delivery interface {
	Ack(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// CashbackWorker consumes cashback requests from JetStream.
type CashbackWorker struct {
	js   nats.JetStreamContext
	proc *Processor
}

func NewCashbackWorker(js nats.JetStreamContext, proc *Processor) *CashbackWorker {
	return &CashbackWorker{js: js, proc: proc}
}

// Start subscribes to the cashback topic and blocks until ctx is cancelled.
func (w *CashbackWorker) Start(ctx context.Context) error {
	// In-flight messages keep running while the subscription drains.
	handleCtx := context.WithoutCancel(ctx)

	// A durable queue group means each request reaches exactly one worker
	// replica, and unacked messages survive a restart.
	sub, err := w.js.QueueSubscribe(repository.TopicCashbackRequested, cashbackQueue, func(m *nats.Msg) {
		w.deliver(handleCtx, m.Data, m)
	},
		nats.Durable(cashbackQueue),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to %s: %w", repository.TopicCashbackRequested, err)
	}

	slog.Info("Cashback worker is running", "subject", repository.TopicCashbackRequested)

	<-ctx.Done()

	slog.Info("Cashback worker received shutdown signal, draining subscription...")
	return sub.Drain()
}

// Stop is a no-op; shutdown happens through ctx.
func (w *CashbackWorker) Stop(ctx context.Context) error {
	return nil
}

func (w *CashbackWorker) deliver(ctx context.Context, data []byte, d delivery) {
	if err := w.proc.Handle(ctx, data); err != nil {
		slog.Error("worker: cashback failed, terminating message", "error", err)
		if termErr := d.Term(); termErr != nil {
			slog.Warn("worker: failed to terminate message", "error", termErr)
		}
		return
	}
	if err := d.Ack(); err != nil {
		slog.Warn("worker: failed to ack message", "error", err)
	}
}
