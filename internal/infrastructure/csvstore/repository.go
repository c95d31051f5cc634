// Package csvstore implements the ledger repository on two flat CSV
// files, the durable store of the reference system. The accounts file is
// rewritten in full on every save; the transactions file is appended per
// entry and rewritten (filtered) on cascade delete. Rewrites go through a
// temp file and rename, so a crash mid-write never corrupts the previous
// state, and every write is fsynced before the call returns.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"minibank/internal/domain/account"
	"minibank/internal/domain/transaction"
)

var (
	accountsHeader     = []string{"accountId", "ownerId", "accountType", "balance"}
	transactionsHeader = []string{"transactionId", "timestamp", "transactionType", "direction", "amount", "sourceAccountId", "targetAccountId"}
)

// Repository is a CSV-file ledger store with a write-through cache. The
// cache only changes after the corresponding file write succeeded, so the
// in-memory and on-disk views cannot drift apart.
type Repository struct {
	mu               sync.Mutex
	accountsPath     string
	transactionsPath string
	accounts         map[string]*account.Account
	transactions     map[string][]*transaction.Transaction // keyed by anchor account id
}

// Open loads (or creates) the two store files and returns a ready
// repository.
func Open(accountsPath, transactionsPath string) (*Repository, error) {
	r := &Repository{
		accountsPath:     accountsPath,
		transactionsPath: transactionsPath,
		accounts:         make(map[string]*account.Account),
		transactions:     make(map[string][]*transaction.Transaction),
	}
	for _, path := range []string{accountsPath, transactionsPath} {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create store directory: %w", err)
			}
		}
	}
	if err := r.loadAccounts(); err != nil {
		return nil, err
	}
	if err := r.loadTransactions(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (r *Repository) FindByOwnerID(ctx context.Context, ownerID string) ([]*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*account.Account
	for _, acc := range r.accounts {
		if acc.OwnerID == ownerID {
			out = append(out, acc.Clone())
		}
	}
	return out, nil
}

func (r *Repository) AllAccounts(ctx context.Context) ([]*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*account.Account, 0, len(r.accounts))
	for _, acc := range r.accounts {
		out = append(out, acc.Clone())
	}
	return out, nil
}

func (r *Repository) Save(ctx context.Context, acc *account.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.accounts[acc.ID]
	r.accounts[acc.ID] = acc.Clone()
	if err := r.writeAccounts(); err != nil {
		if existed {
			r.accounts[acc.ID] = prev
		} else {
			delete(r.accounts, acc.ID)
		}
		return fmt.Errorf("failed to write accounts file: %w", err)
	}
	return nil
}

func (r *Repository) SaveTransaction(ctx context.Context, entry *transaction.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := []*transaction.Transaction{entry}
	if entry.IsTransfer() {
		entries = append(entries, entry.Mirror())
	}
	if err := r.appendTransactions(entries); err != nil {
		return fmt.Errorf("failed to append transactions file: %w", err)
	}
	for _, e := range entries {
		r.transactions[e.SourceAccountID] = append(r.transactions[e.SourceAccountID], e)
	}
	return nil
}

func (r *Repository) SaveTransfer(ctx context.Context, source, target *account.Account, entry *transaction.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prevSource, hadSource := r.accounts[source.ID]
	r.accounts[source.ID] = source.Clone()
	var prevTarget *account.Account
	hadTarget := false
	if target != nil {
		prevTarget, hadTarget = r.accounts[target.ID]
		r.accounts[target.ID] = target.Clone()
	}

	restore := func() {
		if hadSource {
			r.accounts[source.ID] = prevSource
		} else {
			delete(r.accounts, source.ID)
		}
		if target != nil {
			if hadTarget {
				r.accounts[target.ID] = prevTarget
			} else {
				delete(r.accounts, target.ID)
			}
		}
	}

	if err := r.writeAccounts(); err != nil {
		restore()
		return fmt.Errorf("failed to write accounts file: %w", err)
	}

	entries := []*transaction.Transaction{entry}
	if entry.IsTransfer() {
		entries = append(entries, entry.Mirror())
	}
	if err := r.appendTransactions(entries); err != nil {
		// Compensate: put the previous balances back on disk so the
		// transfer is not half applied.
		restore()
		if werr := r.writeAccounts(); werr != nil {
			return errors.Join(
				fmt.Errorf("failed to append transactions file: %w", err),
				fmt.Errorf("failed to restore accounts file: %w", werr),
			)
		}
		return fmt.Errorf("failed to append transactions file: %w", err)
	}
	for _, e := range entries {
		r.transactions[e.SourceAccountID] = append(r.transactions[e.SourceAccountID], e)
	}
	return nil
}

func (r *Repository) FindTransactionsByAccountID(ctx context.Context, id string) ([]*transaction.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.transactions[id]
	out := make([]*transaction.Transaction, len(entries))
	copy(out, entries)
	return out, nil
}

func (r *Repository) DeleteAccountByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.deleteAccount(id)
}

func (r *Repository) DeleteAccountsByOwnerID(ctx context.Context, ownerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, acc := range r.accounts {
		if acc.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	// Deleted one account at a time: a failure partway leaves prior
	// deletes applied, but each single delete is internally consistent.
	for i, id := range ids {
		if err := r.deleteAccount(id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// deleteAccount removes the account row and every entry that references
// the id from either side, then persists both reduced files. Callers hold
// the lock.
func (r *Repository) deleteAccount(id string) error {
	prev, ok := r.accounts[id]
	if !ok {
		return account.ErrAccountNotFound
	}

	kept := make(map[string][]*transaction.Transaction, len(r.transactions))
	for anchor, entries := range r.transactions {
		if anchor == id {
			continue
		}
		var keep []*transaction.Transaction
		for _, entry := range entries {
			if entry.SourceAccountID == id || entry.TargetAccountID == id {
				continue
			}
			keep = append(keep, entry)
		}
		if len(keep) > 0 {
			kept[anchor] = keep
		}
	}

	delete(r.accounts, id)
	if err := r.writeAccounts(); err != nil {
		r.accounts[id] = prev
		return fmt.Errorf("failed to write accounts file: %w", err)
	}

	prevEntries := r.transactions
	r.transactions = kept
	if err := r.rewriteTransactions(); err != nil {
		r.transactions = prevEntries
		r.accounts[id] = prev
		if werr := r.writeAccounts(); werr != nil {
			return errors.Join(
				fmt.Errorf("failed to rewrite transactions file: %w", err),
				fmt.Errorf("failed to restore accounts file: %w", werr),
			)
		}
		return fmt.Errorf("failed to rewrite transactions file: %w", err)
	}
	return nil
}

// --- file I/O ---

func (r *Repository) loadAccounts() error {
	rows, created, err := readOrCreate(r.accountsPath, accountsHeader)
	if err != nil {
		return err
	}
	if created {
		return nil
	}
	for _, row := range rows {
		if len(row) != len(accountsHeader) {
			return fmt.Errorf("malformed account row %v", row)
		}
		balance, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return fmt.Errorf("failed to parse account balance %q: %w", row[3], err)
		}
		acc := account.Restore(row[0], row[1], account.Type(row[2]), balance)
		r.accounts[acc.ID] = acc
	}
	return nil
}

func (r *Repository) loadTransactions() error {
	rows, created, err := readOrCreate(r.transactionsPath, transactionsHeader)
	if err != nil {
		return err
	}
	if created {
		return nil
	}
	for _, row := range rows {
		if len(row) != len(transactionsHeader) {
			return fmt.Errorf("malformed transaction row %v", row)
		}
		ts, err := time.Parse(time.RFC3339Nano, row[1])
		if err != nil {
			return fmt.Errorf("failed to parse transaction timestamp %q: %w", row[1], err)
		}
		typ, err := transaction.ParseType(row[2])
		if err != nil {
			return err
		}
		dir, err := transaction.ParseDirection(row[3])
		if err != nil {
			return err
		}
		amount, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return fmt.Errorf("failed to parse transaction amount %q: %w", row[4], err)
		}
		entry := transaction.Restore(row[0], typ, dir, amount, ts, row[5], row[6])
		r.transactions[entry.SourceAccountID] = append(r.transactions[entry.SourceAccountID], entry)
	}
	return nil
}

// readOrCreate reads all data rows of a CSV file, creating it with just
// the header when it does not exist yet.
func readOrCreate(path string, header []string) (rows [][]string, created bool, err error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		if err := writeAtomic(path, header, nil); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if _, err := reader.Read(); err != nil && err != io.EOF { // header
		return nil, false, fmt.Errorf("failed to read %s header: %w", path, err)
	}
	rows, err = reader.ReadAll()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, false, nil
}

// writeAtomic writes header+rows to a temp file, fsyncs it and renames it
// over path.
func writeAtomic(path string, header []string, rows [][]string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", tmp, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// writeAccounts rewrites the accounts file from the cache, ordered by id
// so an unchanged cache always produces an identical file.
func (r *Repository) writeAccounts() error {
	ids := make([]string, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, accountRow(r.accounts[id]))
	}
	return writeAtomic(r.accountsPath, accountsHeader, rows)
}

func (r *Repository) appendTransactions(entries []*transaction.Transaction) error {
	f, err := os.OpenFile(r.transactionsPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	for _, entry := range entries {
		if err := w.Write(entryRow(entry)); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (r *Repository) rewriteTransactions() error {
	anchors := make([]string, 0, len(r.transactions))
	for anchor := range r.transactions {
		anchors = append(anchors, anchor)
	}
	sort.Strings(anchors)

	var rows [][]string
	for _, anchor := range anchors {
		for _, entry := range r.transactions[anchor] {
			rows = append(rows, entryRow(entry))
		}
	}
	return writeAtomic(r.transactionsPath, transactionsHeader, rows)
}

func accountRow(acc *account.Account) []string {
	return []string{
		acc.ID,
		acc.OwnerID,
		string(acc.Type),
		strconv.FormatFloat(acc.Balance, 'f', 2, 64),
	}
}

func entryRow(entry *transaction.Transaction) []string {
	return []string{
		entry.ID,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		string(entry.Type),
		string(entry.Direction),
		strconv.FormatFloat(entry.Amount, 'f', -1, 64),
		entry.SourceAccountID,
		entry.TargetAccountID,
	}
}
