package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"bankledger/internal/model"
	"bankledger/internal/repository"
	"bankledger/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Server struct {
	svc    service.LedgerService
	events repository.MessageBus
	srv    *grpc.Server
	addr   string
}

// NewServer serves ledger.LedgerService on addr. When events is non-nil the
// server also accepts cashback requests through ledger.EventService and
// forwards them to events, usually an in-process queue drained by a worker.
func NewServer(addr string, svc service.LedgerService, events repository.MessageBus) *Server {
	s := &Server{svc: svc, events: events, addr: addr, srv: grpc.NewServer()}
	s.srv.RegisterService(&ledgerServiceDesc, s)
	if events != nil {
		s.srv.RegisterService(&eventServiceDesc, s)
	}
	return s
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	slog.Info("gRPC server listening", "addr", s.addr)
	return s.srv.Serve(lis)
}

func (s *Server) Stop(ctx context.Context) error {
	s.srv.GracefulStop()
	return nil
}

func (s *Server) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*AccountReply, error) {
	acc, err := s.svc.CreateAccount(ctx, model.CreateAccountRequest{
		AccountID:      req.AccountID,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return accountReply(acc), nil
}

func (s *Server) GetAccount(ctx context.Context, req *GetAccountRequest) (*AccountReply, error) {
	acc, err := s.svc.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return accountReply(acc), nil
}

func (s *Server) SubmitTransaction(ctx context.Context, req *SubmitTransactionRequest) (*AccountReply, error) {
	method, err := model.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, toStatus(err)
	}
	acc, err := s.svc.SubmitTransaction(ctx, model.TransactionRequest{
		AccountID: req.AccountID,
		Method:    method,
		Value:     req.Value,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return accountReply(acc), nil
}

// Publish queues a bus event for the local consumer and replies once it is
// accepted, not once it is handled. Unknown topics are rejected.
func (s *Server) Publish(ctx context.Context, req *EventRequest) (*EventReply, error) {
	if req.Topic != repository.TopicCashbackRequested {
		return &EventReply{Success: false, ErrorMessage: fmt.Sprintf("unknown topic %q", req.Topic)}, nil
	}
	if s.events == nil {
		return nil, status.Error(codes.Unimplemented, "event consumption is disabled")
	}
	msg := repository.Message{Topic: req.Topic, Key: req.Key, Data: req.Payload}
	if err := s.events.Publish(ctx, msg); err != nil {
		slog.Error("grpc: event not accepted", "topic", req.Topic, "key", req.Key, "error", err)
		return &EventReply{Success: false, ErrorMessage: err.Error()}, nil
	}
	return &EventReply{Success: true}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, model.ErrAccountExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, model.ErrAccountNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, model.ErrInsufficientFunds):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, model.ErrInvalidPaymentMethod), errors.Is(err, model.ErrInvalidAmount):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
