package ledger

import (
	"context"

	"minibank/internal/domain/account"
	"minibank/internal/domain/transaction"
)

// Repository defines the durable store for accounts and their ledger
// entries. The interface lives in the domain layer and is implemented by
// the memory, csvstore and postgres backends in the infrastructure layer.
//
// Every mutating call must be durable before it returns: a crash
// immediately after a successful return must not lose the write.
type Repository interface {
	// FindByID returns the account or account.ErrAccountNotFound.
	FindByID(ctx context.Context, id string) (*account.Account, error)

	// FindByOwnerID returns all accounts for an owner, unordered.
	FindByOwnerID(ctx context.Context, ownerID string) ([]*account.Account, error)

	// AllAccounts returns every stored account, unordered.
	AllAccounts(ctx context.Context) ([]*account.Account, error)

	// Save upserts the account's current state, keyed by id. Idempotent.
	Save(ctx context.Context, acc *account.Account) error

	// SaveTransaction appends the entry under its source account. If the
	// entry has a counterparty, the implementation synthesizes the mirror
	// record and appends it under the target account. Both appends are
	// durable before the call returns.
	SaveTransaction(ctx context.Context, entry *transaction.Transaction) error

	// SaveTransfer persists both account states and the transfer entry
	// (plus its mirror) as one staged commit, so no reader observes a
	// partially applied transfer.
	SaveTransfer(ctx context.Context, source, target *account.Account, entry *transaction.Transaction) error

	// FindTransactionsByAccountID returns every entry anchored to the
	// account, originals and mirrors alike.
	FindTransactionsByAccountID(ctx context.Context, id string) ([]*transaction.Transaction, error)

	// DeleteAccountByID removes the account and every entry in which it
	// appears as source or target, including mirrors anchored to other
	// accounts. Returns account.ErrAccountNotFound for unknown ids.
	DeleteAccountByID(ctx context.Context, id string) error

	// DeleteAccountsByOwnerID applies the single-account delete to each of
	// the owner's accounts and returns how many were removed.
	DeleteAccountsByOwnerID(ctx context.Context, ownerID string) (int, error)
}
