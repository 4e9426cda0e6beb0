package grpc

import (
	"context"

	"bankledger/internal/model"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
)

type CreateAccountRequest struct {
	AccountID      int64           `json:"conta_id"`
	InitialBalance decimal.Decimal `json:"valor"`
}

type GetAccountRequest struct {
	AccountID int64 `json:"conta_id"`
}

type SubmitTransactionRequest struct {
	AccountID     int64           `json:"conta_id"`
	PaymentMethod string          `json:"forma_pagamento"`
	Value         decimal.Decimal `json:"valor"`
}

type AccountReply struct {
	AccountID int64           `json:"conta_id"`
	Balance   decimal.Decimal `json:"saldo"`
}

func accountReply(acc *model.Account) *AccountReply {
	return &AccountReply{AccountID: acc.ID, Balance: acc.Balance}
}

type EventRequest struct {
	Topic   string `json:"topic"`
	Key     string `json:"key,omitempty"`
	Payload []byte `json:"payload"`
}

type EventReply struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// LedgerServiceServer is the server API for ledger.LedgerService.
type LedgerServiceServer interface {
	CreateAccount(context.Context, *CreateAccountRequest) (*AccountReply, error)
	GetAccount(context.Context, *GetAccountRequest) (*AccountReply, error)
	SubmitTransaction(context.Context, *SubmitTransactionRequest) (*AccountReply, error)
}

// EventServiceServer is the server API for ledger.EventService.
type EventServiceServer interface {
	Publish(context.Context, *EventRequest) (*EventReply, error)
}

const (
	ledgerServiceName = "ledger.LedgerService"
	eventServiceName  = "ledger.EventService"

	MethodCreateAccount     = "/" + ledgerServiceName + "/CreateAccount"
	MethodGetAccount        = "/" + ledgerServiceName + "/GetAccount"
	MethodSubmitTransaction = "/" + ledgerServiceName + "/SubmitTransaction"
	MethodPublish           = "/" + eventServiceName + "/Publish"
)

// unary adapts a typed method into a grpc.MethodDesc handler.
func unary[Req any, Resp any](fullMethod string, call func(srv any, ctx context.Context, req *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateAccount",
			Handler: unary(MethodCreateAccount, func(srv any, ctx context.Context, req *CreateAccountRequest) (*AccountReply, error) {
				return srv.(LedgerServiceServer).CreateAccount(ctx, req)
			}),
		},
		{
			MethodName: "GetAccount",
			Handler: unary(MethodGetAccount, func(srv any, ctx context.Context, req *GetAccountRequest) (*AccountReply, error) {
				return srv.(LedgerServiceServer).GetAccount(ctx, req)
			}),
		},
		{
			MethodName: "SubmitTransaction",
			Handler: unary(MethodSubmitTransaction, func(srv any, ctx context.Context, req *SubmitTransactionRequest) (*AccountReply, error) {
				return srv.(LedgerServiceServer).SubmitTransaction(ctx, req)
			}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

var eventServiceDesc = grpc.ServiceDesc{
	ServiceName: eventServiceName,
	HandlerType: (*EventServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Publish",
			Handler: unary(MethodPublish, func(srv any, ctx context.Context, req *EventRequest) (*EventReply, error) {
				return srv.(EventServiceServer).Publish(ctx, req)
			}),
		},
	},
	Streams: []grpc.StreamDesc{},
}
