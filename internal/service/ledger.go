package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bankledger/internal/model"
	"bankledger/internal/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "bankledger/internal/service"

	// publishTimeout bounds a cashback publish once the submitting request
	// has already committed.
	publishTimeout = 5 * time.Second
)

// LedgerService defines the business operations for the ledger.
// All transport layers (HTTP, gRPC, NATS) depend on this interface, not on the concrete store.
type LedgerService interface {
	CreateAccount(ctx context.Context, req model.CreateAccountRequest) (*model.Account, error)
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context, filter model.AccountFilter) ([]model.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	SubmitTransaction(ctx context.Context, req model.TransactionRequest) (*model.Account, error)
	ApplyCashback(ctx context.Context, transactionID int64) (*model.Cashback, error)
}

// Store is implemented by repository.LedgerRepo and repository.MemoryStore.
type Store interface {
	CreateAccount(ctx context.Context, id int64, balance decimal.Decimal) (*model.Account, error)
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context, id *int64) ([]model.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

// AccountCache holds account snapshots for GetAccount.
type AccountCache interface {
	Get(ctx context.Context, id int64) (*model.Account, error)
	Set(ctx context.Context, acc *model.Account) error
	Delete(ctx context.Context, id int64) error
}

type Option func(*Ledger)

// WithCache enables the read cache. Every committed balance change evicts
// the affected account.
func WithCache(c AccountCache) Option {
	return func(l *Ledger) { l.cache = c }
}

// Ledger is the transaction engine and cashback processor.
type Ledger struct {
	store Store
	bus   repository.MessageBus
	cache AccountCache

	// cacheGens counts evictions per account. GetAccount only fills the cache
	// when no eviction happened while it was reading the store.
	cacheMu   sync.Mutex
	cacheGens map[int64]uint64

	tracer          trace.Tracer
	submitted       metric.Int64Counter
	cashbackApplied metric.Int64Counter
	publishFailures metric.Int64Counter
}

var _ LedgerService = (*Ledger)(nil)

func NewLedger(store Store, bus repository.MessageBus, opts ...Option) *Ledger {
	meter := otel.Meter(instrumentationName)
	l := &Ledger{
		store:           store,
		bus:             bus,
		cacheGens:       make(map[int64]uint64),
		tracer:          otel.Tracer(instrumentationName),
		submitted:       counter(meter, "ledger.transactions.submitted", "Transactions submitted, by type and outcome"),
		cashbackApplied: counter(meter, "ledger.cashback.applied", "Cashback applications, by type and outcome"),
		publishFailures: counter(meter, "ledger.cashback.publish_failures", "Cashback messages that could not be published"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		slog.Warn("failed to create counter, using noop", "counter", name, "error", err)
		return noop.Int64Counter{}
	}
	return c
}

func (l *Ledger) CreateAccount(ctx context.Context, req model.CreateAccountRequest) (*model.Account, error) {
	if req.AccountID <= 0 || req.InitialBalance.IsNegative() || !model.IsMoney(req.InitialBalance) {
		return nil, model.ErrInvalidAmount
	}

	acc, err := l.store.CreateAccount(ctx, req.AccountID, req.InitialBalance)
	if err != nil {
		return nil, err
	}
	slog.Info("account created", "account_id", acc.ID, "balance", acc.Balance.String())
	return acc, nil
}

func (l *Ledger) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	if l.cache != nil {
		acc, err := l.cache.Get(ctx, id)
		if err == nil {
			return acc, nil
		}
		if !errors.Is(err, repository.ErrCacheMiss) {
			slog.Warn("account cache read failed", "account_id", id, "error", err)
		}
	}

	gen := l.generation(id)
	acc, err := l.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		l.fill(ctx, acc, gen)
	}
	return acc, nil
}

// ListAccounts ignores the cache; listings always come from the store.
func (l *Ledger) ListAccounts(ctx context.Context, filter model.AccountFilter) ([]model.Account, error) {
	id, ok := filter.Resolve()
	if !ok {
		return []model.Account{}, nil
	}
	return l.store.ListAccounts(ctx, id)
}

func (l *Ledger) DeleteAccount(ctx context.Context, id int64) error {
	if err := l.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	l.evict(ctx, id)
	slog.Info("account deleted", "account_id", id)
	return nil
}

// SubmitTransaction debits value plus the method's fee from the account and
// records the transaction. The account row stays locked from the balance
// read until commit. On success a cashback request is published.
func (l *Ledger) SubmitTransaction(ctx context.Context, req model.TransactionRequest) (*model.Account, error) {
	ctx, span := l.tracer.Start(ctx, "Ledger.SubmitTransaction", trace.WithAttributes(
		attribute.Int64("account_id", req.AccountID),
		attribute.String("type", req.Method.String()),
	))
	defer span.End()

	acc, txn, err := l.submit(ctx, req)
	l.submitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", req.Method.String()),
		attribute.String("outcome", outcome(err)),
	))

	switch {
	case err == nil:
	case errors.Is(err, model.ErrInsufficientFunds):
		slog.Info("transaction rejected: insufficient funds",
			"account_id", req.AccountID,
			"type", req.Method.String(),
			"value", req.Value.String(),
		)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	l.evict(ctx, acc.ID)
	l.publishCashback(ctx, *txn)

	slog.Info("transaction committed",
		"transaction_id", txn.ID,
		"account_id", acc.ID,
		"type", txn.Type.String(),
		"value", txn.Value.String(),
		"tax", txn.Tax.String(),
		"balance", acc.Balance.String(),
	)
	return acc, nil
}

func (l *Ledger) submit(ctx context.Context, req model.TransactionRequest) (*model.Account, *model.Transaction, error) {
	if req.AccountID <= 0 || !req.Value.IsPositive() || !model.IsMoney(req.Value) {
		return nil, nil, model.ErrInvalidAmount
	}

	var (
		updated *model.Account
		txn     model.Transaction
	)
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		acc, err := tx.LockAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		rate, err := model.FeeRate(req.Method)
		if err != nil {
			return err
		}
		gross := model.GrossDebit(req.Value, rate)
		if acc.Balance.LessThan(gross) {
			return model.ErrInsufficientFunds
		}

		updated, err = tx.UpdateBalance(ctx, acc.ID, acc.Balance.Sub(gross))
		if err != nil {
			return err
		}

		txn = model.Transaction{
			AccountID: acc.ID,
			Type:      req.Method,
			Value:     req.Value.Round(model.MoneyScale),
			Tax:       model.Tax(req.Value, rate),
		}
		return tx.InsertTransaction(ctx, &txn)
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, &txn, nil
}

// publishCashback is fire-and-forget: the transaction is already committed,
// so the publish outlives a cancelled request.
func (l *Ledger) publishCashback(ctx context.Context, txn model.Transaction) {
	if l.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	msg, err := repository.NewCashbackMessage(txn)
	if err == nil {
		err = l.bus.Publish(ctx, msg)
	}
	if err != nil {
		l.publishFailures.Add(ctx, 1)
		slog.Error("failed to publish cashback request",
			"transaction_id", txn.ID,
			"account_id", txn.AccountID,
			"error", err,
		)
	}
}

// ApplyCashback adjusts the balance of the account that owns the transaction.
// It returns model.ErrCashbackAlreadyApplied when the transaction was already
// handled, so redelivered messages leave the balance untouched.
func (l *Ledger) ApplyCashback(ctx context.Context, transactionID int64) (*model.Cashback, error) {
	ctx, span := l.tracer.Start(ctx, "Ledger.ApplyCashback", trace.WithAttributes(
		attribute.Int64("transaction_id", transactionID),
	))
	defer span.End()

	var cb model.Cashback
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		txn, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		cb.Type = txn.Type

		acc, err := tx.LockAccount(ctx, txn.AccountID)
		if err != nil {
			return err
		}
		applied, err := tx.CashbackApplied(ctx, txn.ID)
		if err != nil {
			return err
		}
		if applied {
			return model.ErrCashbackAlreadyApplied
		}
		next, err := model.CashbackBalance(*txn, acc.Balance)
		if err != nil {
			return fmt.Errorf("transaction %d: %w", txn.ID, err)
		}
		if _, err := tx.UpdateBalance(ctx, acc.ID, next); err != nil {
			return err
		}

		cb = model.Cashback{
			TransactionID: txn.ID,
			AccountID:     acc.ID,
			Type:          txn.Type,
			BalanceBefore: acc.Balance,
			BalanceAfter:  next,
		}
		return tx.RecordCashback(ctx, &cb)
	})

	l.cashbackApplied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", cb.Type.String()),
		attribute.String("outcome", outcome(err)),
	))
	if err != nil {
		if !errors.Is(err, model.ErrCashbackAlreadyApplied) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	l.evict(ctx, cb.AccountID)
	slog.Info("cashback applied",
		"transaction_id", cb.TransactionID,
		"account_id", cb.AccountID,
		"type", cb.Type.String(),
		"balance_before", cb.BalanceBefore.String(),
		"balance_after", cb.BalanceAfter.String(),
	)
	return &cb, nil
}

func (l *Ledger) generation(id int64) uint64 {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	return l.cacheGens[id]
}

// fill caches acc unless the account was evicted after gen was taken.
func (l *Ledger) fill(ctx context.Context, acc *model.Account, gen uint64) {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	if l.cacheGens[acc.ID] != gen {
		return
	}
	if err := l.cache.Set(ctx, acc); err != nil {
		slog.Warn("account cache write failed", "account_id", acc.ID, "error", err)
	}
}

func (l *Ledger) evict(ctx context.Context, id int64) {
	if l.cache == nil {
		return
	}
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	l.cacheGens[id]++
	if err := l.cache.Delete(ctx, id); err != nil {
		slog.Warn("account cache eviction failed", "account_id", id, "error", err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, model.ErrAccountNotFound), errors.Is(err, model.ErrTransactionNotFound):
		return "not_found"
	case errors.Is(err, model.ErrCashbackAlreadyApplied):
		return "duplicate"
	case errors.Is(err, model.ErrInvalidAmount), errors.Is(err, model.ErrInvalidPaymentMethod):
		return "invalid"
	}
	return "error"
}
