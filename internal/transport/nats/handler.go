package nats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"bankledger/internal/model"
	"bankledger/internal/service"

	"github.com/nats-io/nats.go"
)

const (
	SubjectCreateAccount     = "ledger.commands.account.create"
	SubjectSubmitTransaction = "ledger.commands.transaction.submit"

	commandQueue = "ledger_group"
)

// Reply is the response body for every command subject.
type Reply struct {
	Account *model.Account `json:"account,omitempty"`
	Error   *ReplyError    `json:"error,omitempty"`
}

type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler subscribes to NATS command subjects and delegates to the ledger service.
// Commands are request/reply: the caller receives a Reply when it set a reply subject.
type Handler struct {
	svc  service.LedgerService
	nc   *nats.Conn
	subs []*nats.Subscription
}

func NewHandler(svc service.LedgerService, nc *nats.Conn) *Handler {
	return &Handler{svc: svc, nc: nc}
}

// Start subscribes to command subjects and blocks until ctx is cancelled (graceful shutdown).
func (h *Handler) Start(ctx context.Context) error {
	handleCtx := context.WithoutCancel(ctx)

	routes := map[string]func(context.Context, []byte) Reply{
		SubjectCreateAccount:     h.createAccount,
		SubjectSubmitTransaction: h.submitTransaction,
	}
	for subject, fn := range routes {
		sub, err := h.nc.QueueSubscribe(subject, commandQueue, func(m *nats.Msg) {
			h.respond(m, fn(handleCtx, m.Data))
		})
		if err != nil {
			return err
		}
		h.subs = append(h.subs, sub)
	}

	slog.Info("NATS command handler is running")

	<-ctx.Done()
	slog.Info("NATS command handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}

func (h *Handler) createAccount(ctx context.Context, data []byte) Reply {
	var req model.CreateAccountRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Error("nats: failed to unmarshal create account command", "error", err)
		return errorReply("invalid_json", err)
	}
	acc, err := h.svc.CreateAccount(ctx, req)
	if err != nil {
		slog.Warn("nats: create account failed", "error", err, "account_id", req.AccountID)
		return errorReply(errorCode(err), err)
	}
	return Reply{Account: acc}
}

func (h *Handler) submitTransaction(ctx context.Context, data []byte) Reply {
	var req model.TransactionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Error("nats: failed to unmarshal transaction command", "error", err)
		return errorReply("invalid_json", err)
	}
	method, err := model.ParsePaymentMethod(string(req.Method))
	if err != nil {
		return errorReply(errorCode(err), err)
	}
	req.Method = method

	acc, err := h.svc.SubmitTransaction(ctx, req)
	if err != nil {
		if !errors.Is(err, model.ErrInsufficientFunds) {
			slog.Warn("nats: transaction failed", "error", err, "account_id", req.AccountID)
		}
		return errorReply(errorCode(err), err)
	}
	return Reply{Account: acc}
}

func (h *Handler) respond(m *nats.Msg, reply Reply) {
	if m.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		slog.Error("nats: failed to marshal reply", "error", err)
		return
	}
	if err := m.Respond(data); err != nil {
		slog.Error("nats: failed to send reply", "error", err, "subject", m.Subject)
	}
}

func errorReply(code string, err error) Reply {
	return Reply{Error: &ReplyError{Code: code, Message: err.Error()}}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, model.ErrAccountExists):
		return "account_exists"
	case errors.Is(err, model.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, model.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, model.ErrInvalidPaymentMethod):
		return "invalid_payment_method"
	case errors.Is(err, model.ErrInvalidAmount):
		return "invalid_amount"
	}
	return "internal"
}
