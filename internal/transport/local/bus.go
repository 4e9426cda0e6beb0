package local

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"bankledger/internal/repository"
)

var ErrBusClosed = errors.New("local bus is closed")

// Handler consumes one message payload.
type Handler func(ctx context.Context, data []byte) error

// Bus is an in-process MessageBus backed by a buffered channel. Start runs
// the consumer loop until Stop closes the bus; messages still buffered at
// that point are handled before Start returns.
type Bus struct {
	ch      chan repository.Message
	done    chan struct{}
	once    sync.Once
	handler Handler

	mu     sync.RWMutex
	closed bool
}

func NewBus(bufferSize int, handler Handler) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Bus{
		ch:      make(chan repository.Message, bufferSize),
		done:    make(chan struct{}),
		handler: handler,
	}
}

// Publish blocks while the buffer is full, until ctx is done.
func (b *Bus) Publish(ctx context.Context, msg repository.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.ch <- msg:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) Start(ctx context.Context) error {
	handleCtx := context.WithoutCancel(ctx)
	slog.Info("Local bus consumer is running", "buffer", cap(b.ch))

	for msg := range b.ch {
		b.handle(handleCtx, msg)
	}
	slog.Info("Local bus consumer stopped")
	return nil
}

func (b *Bus) Stop(ctx context.Context) error {
	b.close()
	return nil
}

// close wakes blocked publishers before taking the write lock they hold.
func (b *Bus) close() {
	b.once.Do(func() { close(b.done) })

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

func (b *Bus) handle(ctx context.Context, msg repository.Message) {
	if err := b.handler(ctx, msg.Data); err != nil {
		slog.Error("local bus: message handling failed", "topic", msg.Topic, "key", msg.Key, "error", err)
	}
}
