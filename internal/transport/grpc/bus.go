package grpc

import (
	"context"
	"fmt"

	"bankledger/internal/repository"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// GrpcBus publishes events to a remote EventService over gRPC.
// Used when BusProvider == "grpc" in config.
type GrpcBus struct {
	conn *grpc.ClientConn
}

// NewGrpcBusFromAddr dials the remote EventService and returns a GrpcBus and a cleanup function.
func NewGrpcBusFromAddr(addr string) (*GrpcBus, func(), error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = conn.Close() }
	return &GrpcBus{conn: conn}, cleanup, nil
}

// Publish sends an event to the remote EventService.
func (b *GrpcBus) Publish(ctx context.Context, msg repository.Message) error {
	reply := new(EventReply)
	req := &EventRequest{Topic: msg.Topic, Key: msg.Key, Payload: msg.Data}
	if err := b.conn.Invoke(ctx, MethodPublish, req, reply); err != nil {
		return fmt.Errorf("grpc: publish %s: %w", msg.Topic, err)
	}
	if !reply.Success {
		return fmt.Errorf("grpc: publish %s rejected: %s", msg.Topic, reply.ErrorMessage)
	}
	return nil
}
