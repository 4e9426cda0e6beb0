package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"bankledger/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountCols = []string{"id", "balance", "created_at", "updated_at"}

// decimalArg matches a decimal query argument by value, ignoring exponent.
type decimalArg struct {
	want decimal.Decimal
}

func (a decimalArg) Match(v interface{}) bool {
	d, ok := v.(decimal.Decimal)
	return ok && d.Equal(a.want)
}

func amount(s string) decimalArg {
	return decimalArg{want: decimal.RequireFromString(s)}
}

func newMockRepo(t *testing.T) (*LedgerRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewLedgerRepo(mock), mock
}

func TestLedgerRepo_CreateAccount(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("inserts new account", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs(int64(1), amount("500")).
			WillReturnRows(pgxmock.NewRows(accountCols).AddRow(int64(1), decimal.RequireFromString("500.00"), now, now))

		acc, err := repo.CreateAccount(ctx, 1, decimal.RequireFromString("500"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), acc.ID)
		assert.True(t, acc.Balance.Equal(decimal.NewFromInt(500)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict reports existing account", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs(int64(1), amount("100")).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.CreateAccount(ctx, 1, decimal.NewFromInt(100))
		assert.ErrorIs(t, err, model.ErrAccountExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerRepo_GetAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("missing account", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT id, balance, created_at, updated_at FROM accounts WHERE id = \\$1").
			WithArgs(int64(9)).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetAccount(ctx, 9)
		assert.ErrorIs(t, err, model.ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure is wrapped", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT id, balance, created_at, updated_at FROM accounts").
			WithArgs(int64(9)).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.GetAccount(ctx, 9)
		require.Error(t, err)
		assert.NotErrorIs(t, err, model.ErrAccountNotFound)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestLedgerRepo_ListAccounts(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery("SELECT id, balance, created_at, updated_at FROM accounts WHERE .* ORDER BY id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(accountCols).
			AddRow(int64(1), decimal.RequireFromString("10.00"), now, now).
			AddRow(int64(2), decimal.RequireFromString("20.50"), now, now))

	accounts, err := repo.ListAccounts(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, int64(1), accounts[0].ID)
	assert.Equal(t, int64(2), accounts[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_DeleteAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("DELETE FROM accounts WHERE id = \\$1").
			WithArgs(int64(3)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		assert.NoError(t, repo.DeleteAccount(ctx, 3))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("DELETE FROM accounts").
			WithArgs(int64(3)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		assert.ErrorIs(t, repo.DeleteAccount(ctx, 3), model.ErrAccountNotFound)
	})

	t.Run("referenced by transactions", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("DELETE FROM accounts").
			WithArgs(int64(3)).
			WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation, ConstraintName: "transactions_account_id_fkey"})

		assert.ErrorIs(t, repo.DeleteAccount(ctx, 3), model.ErrAccountInUse)
	})
}

func TestLedgerRepo_WithinTx(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("locks, updates and inserts in one transaction", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, balance, created_at, updated_at FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(int64(1)).
			WillReturnRows(pgxmock.NewRows(accountCols).AddRow(int64(1), decimal.RequireFromString("500.00"), now, now))
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(amount("448.5"), int64(1)).
			WillReturnRows(pgxmock.NewRows(accountCols).AddRow(int64(1), decimal.RequireFromString("448.50"), now, now))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "D", amount("50"), amount("1.5")).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(42), now, now))
		mock.ExpectCommit()

		var txn model.Transaction
		err := repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			acc, err := tx.LockAccount(ctx, 1)
			if err != nil {
				return err
			}
			if _, err := tx.UpdateBalance(ctx, acc.ID, acc.Balance.Sub(decimal.RequireFromString("51.5"))); err != nil {
				return err
			}
			txn = model.Transaction{
				AccountID: 1,
				Type:      model.Debit,
				Value:     decimal.NewFromInt(50),
				Tax:       decimal.RequireFromString("1.5"),
			}
			return tx.InsertTransaction(ctx, &txn)
		})
		require.NoError(t, err)
		assert.Equal(t, int64(42), txn.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("callback error rolls back", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(int64(1)).
			WillReturnRows(pgxmock.NewRows(accountCols).AddRow(int64(1), decimal.RequireFromString("100.00"), now, now))
		mock.ExpectRollback()

		err := repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := tx.LockAccount(ctx, 1); err != nil {
				return err
			}
			return model.ErrInsufficientFunds
		})
		assert.ErrorIs(t, err, model.ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account inside transaction", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs(int64(5)).WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		err := repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.LockAccount(ctx, 5)
			return err
		})
		assert.ErrorIs(t, err, model.ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerTx_Cashback(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("loads transaction and records marker", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, account_id, type, value, tax, created_at, updated_at").
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows([]string{"id", "account_id", "type", "value", "tax", "created_at", "updated_at"}).
				AddRow(int64(7), int64(1), "P", decimal.RequireFromString("100.00"), decimal.RequireFromString("0.00"), now, now))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery("INSERT INTO cashback_applications").
			WithArgs(int64(7), amount("200"), amount("201")).
			WillReturnRows(pgxmock.NewRows([]string{"applied_at"}).AddRow(now))
		mock.ExpectCommit()

		err := repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			txn, err := tx.GetTransaction(ctx, 7)
			if err != nil {
				return err
			}
			assert.Equal(t, model.Pix, txn.Type)

			applied, err := tx.CashbackApplied(ctx, txn.ID)
			if err != nil {
				return err
			}
			assert.False(t, applied)

			return tx.RecordCashback(ctx, &model.Cashback{
				TransactionID: 7,
				BalanceBefore: decimal.NewFromInt(200),
				BalanceAfter:  decimal.NewFromInt(201),
			})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate marker", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO cashback_applications").
			WithArgs(int64(7), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		err := repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.RecordCashback(ctx, &model.Cashback{TransactionID: 7})
		})
		assert.ErrorIs(t, err, model.ErrCashbackAlreadyApplied)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM transactions WHERE id = \\$1").
			WithArgs(int64(404)).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		err := repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.GetTransaction(ctx, 404)
			return err
		})
		assert.ErrorIs(t, err, model.ErrTransactionNotFound)
	})
}
