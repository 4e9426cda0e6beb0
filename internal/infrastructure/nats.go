package infrastructure

import (
	"fmt"

	transportNATS "bankledger/internal/transport/nats"

	"github.com/nats-io/nats.go"
)

// connectNats dials NATS and prepares the JetStream stream that carries
// ledger events.
func connectNats(url, name string) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := transportNATS.EnsureStream(js); err != nil {
		nc.Close()
		return nil, nil, err
	}

	return nc, js, nil
}
