package repository

import (
	"context"
	"errors"
	"fmt"

	"bankledger/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DB is the subset of *pgxpool.Pool used by LedgerRepo.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Tx is the unit of work handed to WithinTx callbacks. Every read through
// LockAccount holds a row lock until the surrounding transaction ends.
type Tx interface {
	LockAccount(ctx context.Context, id int64) (*model.Account, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) (*model.Account, error)
	InsertTransaction(ctx context.Context, t *model.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	CashbackApplied(ctx context.Context, transactionID int64) (bool, error)
	RecordCashback(ctx context.Context, c *model.Cashback) error
}

// LedgerRepo persists accounts and transactions in PostgreSQL.
type LedgerRepo struct {
	db DB
}

func NewLedgerRepo(db DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

const accountColumns = `id, balance, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	if err := row.Scan(&a.ID, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (r *LedgerRepo) CreateAccount(ctx context.Context, id int64, balance decimal.Decimal) (*model.Account, error) {
	query := `
		INSERT INTO accounts (id, balance, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.db.QueryRow(ctx, query, id, balance.Round(model.MoneyScale)))
	if errors.Is(err, model.ErrAccountNotFound) {
		return nil, model.ErrAccountExists
	}
	if err != nil {
		return nil, translate(err)
	}
	return acc, nil
}

func (r *LedgerRepo) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, id))
}

// ListAccounts returns accounts ordered by id. A nil id lists everything.
func (r *LedgerRepo) ListAccounts(ctx context.Context, id *int64) ([]model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ($1::bigint IS NULL OR id = $1) ORDER BY id`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]model.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// DeleteAccount removes an account that no transaction references.
func (r *LedgerRepo) DeleteAccount(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

// WithinTx runs fn inside a database transaction. The transaction commits
// only if fn returns nil.
func (r *LedgerRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgTx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if err := fn(ctx, &ledgerTx{tx: pgTx}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", translate(err))
	}
	return nil
}

type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) LockAccount(ctx context.Context, id int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return scanAccount(t.tx.QueryRow(ctx, query, id))
}

func (t *ledgerTx) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + accountColumns
	return scanAccount(t.tx.QueryRow(ctx, query, balance.Round(model.MoneyScale), id))
}

func (t *ledgerTx) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	query := `
		INSERT INTO transactions (account_id, type, value, tax, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := t.tx.QueryRow(ctx, query, txn.AccountID, string(txn.Type), txn.Value, txn.Tax).
		Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", translate(err))
	}
	return nil
}

func (t *ledgerTx) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	query := `
		SELECT id, account_id, type, value, tax, created_at, updated_at
		FROM transactions WHERE id = $1`

	var (
		txn    model.Transaction
		method string
	)
	err := t.tx.QueryRow(ctx, query, id).
		Scan(&txn.ID, &txn.AccountID, &method, &txn.Value, &txn.Tax, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	txn.Type = model.PaymentMethod(method)
	return &txn, nil
}

func (t *ledgerTx) CashbackApplied(ctx context.Context, transactionID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM cashback_applications WHERE transaction_id = $1)`,
		transactionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check cashback: %w", err)
	}
	return exists, nil
}

func (t *ledgerTx) RecordCashback(ctx context.Context, c *model.Cashback) error {
	query := `
		INSERT INTO cashback_applications (transaction_id, balance_before, balance_after, applied_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING applied_at`

	err := t.tx.QueryRow(ctx, query, c.TransactionID, c.BalanceBefore, c.BalanceAfter).Scan(&c.AppliedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrCashbackAlreadyApplied
		}
		return fmt.Errorf("record cashback: %w", translate(err))
	}
	return nil
}

// translate maps integrity violations onto domain errors.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s", model.ErrAccountExists, pgErr.ConstraintName)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", model.ErrAccountInUse, pgErr.ConstraintName)
	}
	return err
}
