package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"minibank/internal/domain/account"
	"minibank/internal/domain/transaction"
)

// Repository implements the ledger.Repository interface for PostgreSQL.
// Transfers and mirror appends are committed inside a single SQL
// transaction, so readers never observe a half-applied transfer.
type Repository struct {
	db *DB
}

// NewRepository creates a new PostgreSQL ledger repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the ledger tables when they do not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			account_type TEXT NOT NULL,
			balance DOUBLE PRECISION NOT NULL DEFAULT 0,
			withdrawals_this_month INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts (owner_id)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			transaction_type TEXT NOT NULL,
			direction TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			source_account_id TEXT NOT NULL,
			target_account_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_source ON transactions (source_account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_target ON transactions (target_account_id)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*account.Account, error) {
	query := `
		SELECT id, owner_id, account_type, balance, withdrawals_this_month
		FROM accounts
		WHERE id = $1
	`

	var acc account.Account
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&acc.ID, &acc.OwnerID, &acc.Type, &acc.Balance, &acc.WithdrawalsThisMonth,
	)
	if err == sql.ErrNoRows {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acc, nil
}

func (r *Repository) FindByOwnerID(ctx context.Context, ownerID string) ([]*account.Account, error) {
	query := `
		SELECT id, owner_id, account_type, balance, withdrawals_this_month
		FROM accounts
		WHERE owner_id = $1
	`
	return r.queryAccounts(ctx, query, ownerID)
}

func (r *Repository) AllAccounts(ctx context.Context) ([]*account.Account, error) {
	query := `
		SELECT id, owner_id, account_type, balance, withdrawals_this_month
		FROM accounts
	`
	return r.queryAccounts(ctx, query)
}

func (r *Repository) queryAccounts(ctx context.Context, query string, args ...any) ([]*account.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		var acc account.Account
		if err := rows.Scan(&acc.ID, &acc.OwnerID, &acc.Type, &acc.Balance, &acc.WithdrawalsThisMonth); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

const upsertAccount = `
	INSERT INTO accounts (id, owner_id, account_type, balance, withdrawals_this_month)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE
	SET owner_id = EXCLUDED.owner_id,
	    account_type = EXCLUDED.account_type,
	    balance = EXCLUDED.balance,
	    withdrawals_this_month = EXCLUDED.withdrawals_this_month
`

func (r *Repository) Save(ctx context.Context, acc *account.Account) error {
	_, err := r.db.ExecContext(ctx, upsertAccount,
		acc.ID, acc.OwnerID, string(acc.Type), acc.Balance, acc.WithdrawalsThisMonth,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

const insertTransaction = `
	INSERT INTO transactions (id, ts, transaction_type, direction, amount, source_account_id, target_account_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

func (r *Repository) SaveTransaction(ctx context.Context, entry *transaction.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertEntries(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) SaveTransfer(ctx context.Context, source, target *account.Account, entry *transaction.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, acc := range []*account.Account{source, target} {
		if acc == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, upsertAccount,
			acc.ID, acc.OwnerID, string(acc.Type), acc.Balance, acc.WithdrawalsThisMonth,
		); err != nil {
			return fmt.Errorf("failed to save account: %w", err)
		}
	}
	if err := insertEntries(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	return nil
}

// insertEntries appends the entry and, for transfers, its synthesized
// mirror inside the caller's SQL transaction.
func insertEntries(ctx context.Context, tx *sql.Tx, entry *transaction.Transaction) error {
	entries := []*transaction.Transaction{entry}
	if entry.IsTransfer() {
		entries = append(entries, entry.Mirror())
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, insertTransaction,
			e.ID, e.Timestamp, string(e.Type), string(e.Direction), e.Amount, e.SourceAccountID, e.TargetAccountID,
		); err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
	}
	return nil
}

func (r *Repository) FindTransactionsByAccountID(ctx context.Context, id string) ([]*transaction.Transaction, error) {
	query := `
		SELECT id, ts, transaction_type, direction, amount, source_account_id, target_account_id
		FROM transactions
		WHERE source_account_id = $1
		ORDER BY ts
	`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var entries []*transaction.Transaction
	for rows.Next() {
		var entry transaction.Transaction
		if err := rows.Scan(
			&entry.ID, &entry.Timestamp, &entry.Type, &entry.Direction,
			&entry.Amount, &entry.SourceAccountID, &entry.TargetAccountID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return entries, nil
}

func (r *Repository) DeleteAccountByID(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteAccount(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func (r *Repository) DeleteAccountsByOwnerID(ctx context.Context, ownerID string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM accounts WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating account ids: %w", err)
	}

	for _, id := range ids {
		if err := deleteAccount(ctx, tx, id); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch delete: %w", err)
	}
	return len(ids), nil
}

// deleteAccount removes the account row plus every entry that references
// the id from either side, inside the caller's SQL transaction.
func deleteAccount(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return account.ErrAccountNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE source_account_id = $1 OR target_account_id = $1`, id,
	); err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}
	return nil
}
