package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bankledger/internal/repository"

	"github.com/nats-io/nats.go"
)

const (
	StreamName = "LEDGER"

	// duplicateWindow bounds how long JetStream remembers message ids.
	duplicateWindow = 2 * time.Minute
)

// Bus publishes ledger events to JetStream. Message keys become JetStream
// message ids, so a repeated publish inside the duplicate window is dropped.
type Bus struct {
	js nats.JetStreamContext
}

func NewBus(js nats.JetStreamContext) *Bus {
	return &Bus{js: js}
}

func (b *Bus) Publish(ctx context.Context, msg repository.Message) error {
	opts := []nats.PubOpt{nats.Context(ctx)}
	if msg.Key != "" {
		opts = append(opts, nats.MsgId(msg.Key))
	}
	if _, err := b.js.Publish(msg.Topic, msg.Data, opts...); err != nil {
		return fmt.Errorf("nats: publish %s: %w", msg.Topic, err)
	}
	return nil
}

// EnsureStream creates the ledger event stream unless it already exists.
func EnsureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("nats: stream info: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{repository.TopicCashbackRequested},
		Storage:    nats.FileStorage,
		Retention:  nats.WorkQueuePolicy,
		Duplicates: duplicateWindow,
	})
	if err != nil {
		return fmt.Errorf("nats: add stream %s: %w", StreamName, err)
	}
	return nil
}
