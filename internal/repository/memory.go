package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"bankledger/internal/model"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process implementation of the ledger store. A single
// mutex is held for the whole of WithinTx, so transactions are serialized
// store-wide. Callbacks must not call back into the store itself.
type MemoryStore struct {
	mu        sync.Mutex
	accounts  map[int64]model.Account
	txns      map[int64]model.Transaction
	cashbacks map[int64]model.Cashback
	lastTxnID int64
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[int64]model.Account),
		txns:      make(map[int64]model.Transaction),
		cashbacks: make(map[int64]model.Cashback),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, id int64, balance decimal.Decimal) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; ok {
		return nil, model.ErrAccountExists
	}
	now := s.now()
	acc := model.Account{ID: id, Balance: balance.Round(model.MoneyScale), CreatedAt: now, UpdatedAt: now}
	s.accounts[id] = acc
	return &acc, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id int64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return &acc, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context, id *int64) ([]model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make([]model.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		if id != nil && acc.ID != *id {
			continue
		}
		accounts = append(accounts, acc)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (s *MemoryStore) DeleteAccount(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return model.ErrAccountNotFound
	}
	for _, txn := range s.txns {
		if txn.AccountID == id {
			return model.ErrAccountInUse
		}
	}
	delete(s.accounts, id)
	return nil
}

// TransactionCount reports how many transactions are stored.
func (s *MemoryStore) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txns)
}

// Transactions returns the stored transactions of an account ordered by id.
func (s *MemoryStore) Transactions(accountID int64) []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Transaction
	for _, txn := range s.txns {
		if txn.AccountID == accountID {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:     s,
		accounts:  make(map[int64]model.Account),
		cashbacks: make(map[int64]model.Cashback),
		lastTxnID: s.lastTxnID,
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for id, acc := range tx.accounts {
		s.accounts[id] = acc
	}
	for _, txn := range tx.txns {
		s.txns[txn.ID] = txn
	}
	for id, c := range tx.cashbacks {
		s.cashbacks[id] = c
	}
	s.lastTxnID = tx.lastTxnID
	return nil
}

// memoryTx stages writes until WithinTx commits them.
type memoryTx struct {
	store     *MemoryStore
	accounts  map[int64]model.Account
	txns      []model.Transaction
	cashbacks map[int64]model.Cashback
	lastTxnID int64
}

func (t *memoryTx) account(id int64) (model.Account, bool) {
	if acc, ok := t.accounts[id]; ok {
		return acc, true
	}
	acc, ok := t.store.accounts[id]
	return acc, ok
}

func (t *memoryTx) LockAccount(_ context.Context, id int64) (*model.Account, error) {
	acc, ok := t.account(id)
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return &acc, nil
}

func (t *memoryTx) UpdateBalance(_ context.Context, id int64, balance decimal.Decimal) (*model.Account, error) {
	acc, ok := t.account(id)
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	acc.Balance = balance.Round(model.MoneyScale)
	acc.UpdatedAt = t.store.now()
	t.accounts[id] = acc
	return &acc, nil
}

func (t *memoryTx) InsertTransaction(_ context.Context, txn *model.Transaction) error {
	if _, ok := t.account(txn.AccountID); !ok {
		return model.ErrAccountNotFound
	}
	t.lastTxnID++
	now := t.store.now()
	txn.ID = t.lastTxnID
	txn.CreatedAt = now
	txn.UpdatedAt = now
	t.txns = append(t.txns, *txn)
	return nil
}

func (t *memoryTx) GetTransaction(_ context.Context, id int64) (*model.Transaction, error) {
	for _, txn := range t.txns {
		if txn.ID == id {
			return &txn, nil
		}
	}
	txn, ok := t.store.txns[id]
	if !ok {
		return nil, model.ErrTransactionNotFound
	}
	return &txn, nil
}

func (t *memoryTx) CashbackApplied(_ context.Context, transactionID int64) (bool, error) {
	if _, ok := t.cashbacks[transactionID]; ok {
		return true, nil
	}
	_, ok := t.store.cashbacks[transactionID]
	return ok, nil
}

func (t *memoryTx) RecordCashback(ctx context.Context, c *model.Cashback) error {
	applied, _ := t.CashbackApplied(ctx, c.TransactionID)
	if applied {
		return model.ErrCashbackAlreadyApplied
	}
	c.AppliedAt = t.store.now()
	t.cashbacks[c.TransactionID] = *c
	return nil
}
