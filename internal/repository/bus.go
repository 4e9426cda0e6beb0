package repository

import "context"

// TopicCashbackRequested carries one message per committed transaction.
const TopicCashbackRequested = "ledger.cashback.requested"

// Message is a single outbound event. Key identifies the logical event so
// brokers that support it can drop duplicate publishes.
type Message struct {
	Topic string
	Key   string
	Data  []byte
}

type MessageBus interface {
	Publish(ctx context.Context, msg Message) error
}
