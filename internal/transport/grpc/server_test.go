package grpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"bankledger/internal/model"
	"bankledger/internal/repository"
	"bankledger/internal/service"
	"bankledger/internal/transport/local"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// startServer serves s over an in-memory listener and returns a client connection.
func startServer(t *testing.T, s *Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.srv.Serve(lis) }()
	t.Cleanup(s.srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServer_LedgerService(t *testing.T) {
	ctx := context.Background()
	svc := service.NewLedger(repository.NewMemoryStore(), nil)
	conn := startServer(t, NewServer("", svc, nil))

	reply := new(AccountReply)
	err := conn.Invoke(ctx, MethodCreateAccount, &CreateAccountRequest{AccountID: 1, InitialBalance: decimal.NewFromInt(500)}, reply)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reply.AccountID)

	err = conn.Invoke(ctx, MethodCreateAccount, &CreateAccountRequest{AccountID: 1, InitialBalance: decimal.NewFromInt(5)}, reply)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	err = conn.Invoke(ctx, MethodSubmitTransaction, &SubmitTransactionRequest{AccountID: 1, PaymentMethod: "C", Value: decimal.NewFromInt(100)}, reply)
	require.NoError(t, err)
	assert.True(t, reply.Balance.Equal(decimal.NewFromInt(395)))

	err = conn.Invoke(ctx, MethodSubmitTransaction, &SubmitTransactionRequest{AccountID: 1, PaymentMethod: "PIX", Value: decimal.NewFromInt(1000)}, reply)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	err = conn.Invoke(ctx, MethodSubmitTransaction, &SubmitTransactionRequest{AccountID: 1, PaymentMethod: "boleto", Value: decimal.NewFromInt(1)}, reply)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	got := new(AccountReply)
	require.NoError(t, conn.Invoke(ctx, MethodGetAccount, &GetAccountRequest{AccountID: 1}, got))
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(395)))

	err = conn.Invoke(ctx, MethodGetAccount, &GetAccountRequest{AccountID: 2}, got)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServer_EventServiceNotRegisteredWithoutHandler(t *testing.T) {
	svc := service.NewLedger(repository.NewMemoryStore(), nil)
	conn := startServer(t, NewServer("", svc, nil))

	bus := &GrpcBus{conn: conn}
	err := bus.Publish(context.Background(), repository.Message{Topic: repository.TopicCashbackRequested})
	assert.Equal(t, codes.Unimplemented, status.Code(errors.Unwrap(err)))
}

// startQueue runs a local bus that feeds handler, as the grpc worker does.
func startQueue(t *testing.T, handler local.Handler) *local.Bus {
	t.Helper()
	queue := local.NewBus(8, handler)
	done := make(chan error, 1)
	go func() { done <- queue.Start(context.Background()) }()
	t.Cleanup(func() {
		_ = queue.Stop(context.Background())
		<-done
	})
	return queue
}

func TestGrpcBus_PublishReachesHandler(t *testing.T) {
	ctx := context.Background()
	var (
		mu       sync.Mutex
		received [][]byte
	)
	handler := func(_ context.Context, data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, data)
		return nil
	}
	svc := service.NewLedger(repository.NewMemoryStore(), nil)
	conn := startServer(t, NewServer("", svc, startQueue(t, handler)))
	bus := &GrpcBus{conn: conn}

	msg, err := repository.NewCashbackMessage(model.Transaction{ID: 3, AccountID: 1, Type: model.Pix, Value: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, msg))

	err = bus.Publish(ctx, repository.Message{Topic: "other.topic", Data: []byte("{}")})
	assert.ErrorContains(t, err, "unknown topic")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, msg.Data, received[0])
	mu.Unlock()
}

func TestGrpcBus_PublishDoesNotWaitForHandler(t *testing.T) {
	release := make(chan struct{})
	handled := make(chan struct{})
	handler := func(context.Context, []byte) error {
		<-release
		close(handled)
		return nil
	}
	svc := service.NewLedger(repository.NewMemoryStore(), nil)
	conn := startServer(t, NewServer("", svc, startQueue(t, handler)))
	bus := &GrpcBus{conn: conn}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Publish(ctx, repository.Message{Topic: repository.TopicCashbackRequested, Data: []byte("{}")}))

	select {
	case <-handled:
		t.Fatal("handler finished before publish returned")
	default:
	}
	close(release)
	<-handled
}

func TestServer_PublishRejectedWhenQueueClosed(t *testing.T) {
	queue := local.NewBus(1, func(context.Context, []byte) error { return nil })
	require.NoError(t, queue.Stop(context.Background()))
	s := &Server{events: queue}

	res, err := s.Publish(context.Background(), &EventRequest{Topic: repository.TopicCashbackRequested, Payload: []byte("{}")})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, local.ErrBusClosed.Error())
}
