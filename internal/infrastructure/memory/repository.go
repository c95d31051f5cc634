// Package memory implements the ledger repository on plain maps. It backs
// tests and ephemeral runs; durability is process lifetime.
package memory

import (
	"context"
	"sort"
	"sync"

	"minibank/internal/domain/account"
	"minibank/internal/domain/transaction"
)

// Repository is an in-memory ledger store. Accounts are stored as copies,
// so callers can only change stored state through Save.
type Repository struct {
	mu           sync.RWMutex
	accounts     map[string]*account.Account
	transactions map[string][]*transaction.Transaction // keyed by anchor account id
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		accounts:     make(map[string]*account.Account),
		transactions: make(map[string][]*transaction.Transaction),
	}
}

func (r *Repository) FindByID(ctx context.Context, id string) (*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (r *Repository) FindByOwnerID(ctx context.Context, ownerID string) ([]*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*account.Account
	for _, acc := range r.accounts {
		if acc.OwnerID == ownerID {
			out = append(out, acc.Clone())
		}
	}
	return out, nil
}

func (r *Repository) AllAccounts(ctx context.Context) ([]*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*account.Account, 0, len(r.accounts))
	for _, acc := range r.accounts {
		out = append(out, acc.Clone())
	}
	return out, nil
}

func (r *Repository) Save(ctx context.Context, acc *account.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts[acc.ID] = acc.Clone()
	return nil
}

func (r *Repository) SaveTransaction(ctx context.Context, entry *transaction.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.appendEntry(entry)
	return nil
}

func (r *Repository) SaveTransfer(ctx context.Context, source, target *account.Account, entry *transaction.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts[source.ID] = source.Clone()
	if target != nil {
		r.accounts[target.ID] = target.Clone()
	}
	r.appendEntry(entry)
	return nil
}

// appendEntry stores the entry under its anchor and synthesizes the mirror
// for transfer entries. Callers hold the write lock.
func (r *Repository) appendEntry(entry *transaction.Transaction) {
	r.transactions[entry.SourceAccountID] = append(r.transactions[entry.SourceAccountID], entry)
	if entry.IsTransfer() {
		mirror := entry.Mirror()
		r.transactions[mirror.SourceAccountID] = append(r.transactions[mirror.SourceAccountID], mirror)
	}
}

func (r *Repository) FindTransactionsByAccountID(ctx context.Context, id string) ([]*transaction.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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

	for i, id := range ids {
		if err := r.deleteAccount(id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// deleteAccount removes the account and every entry referencing it as
// source or target, across all anchors. Callers hold the write lock.
func (r *Repository) deleteAccount(id string) error {
	if _, ok := r.accounts[id]; !ok {
		return account.ErrAccountNotFound
	}
	delete(r.accounts, id)
	delete(r.transactions, id)

	for anchor, entries := range r.transactions {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.SourceAccountID == id || entry.TargetAccountID == id {
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == 0 {
			delete(r.transactions, anchor)
			continue
		}
		r.transactions[anchor] = kept
	}
	return nil
}
