package history

import (
	"context"
	"sort"
	"time"

	"minibank/internal/domain/transaction"
)

// Reader is the slice of the ledger repository the history projections
// need. They never mutate the store.
type Reader interface {
	FindTransactionsByAccountID(ctx context.Context, id string) ([]*transaction.Transaction, error)
}

// BalanceSnapshot is the balance right after one ledger entry was applied.
type BalanceSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Balance   float64   `json:"balance"`
}

// Service computes read-only derived views over an account's ledger.
type Service struct {
	repo Reader
}

// NewService creates a history service.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// Transactions returns every entry anchored to the account.
func (s *Service) Transactions(ctx context.Context, accountID string) ([]*transaction.Transaction, error) {
	return s.repo.FindTransactionsByAccountID(ctx, accountID)
}

// FilteredHistory returns the account's entries with timestamp strictly
// inside (start, end), restricted to typ when non-nil.
func (s *Service) FilteredHistory(ctx context.Context, accountID string, start, end time.Time, typ *transaction.Type) ([]*transaction.Transaction, error) {
	entries, err := s.repo.FindTransactionsByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var out []*transaction.Transaction
	for _, entry := range entries {
		if !entry.Timestamp.After(start) || !entry.Timestamp.Before(end) {
			continue
		}
		if typ != nil && entry.Type != *typ {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// RunningBalance replays the account's entries in ascending timestamp
// order, starting from initialBalance. Each entry is applied once, by its
// direction from the anchor account's perspective: deposits and incoming
// transfer mirrors credit, withdrawals and outgoing transfers debit.
func (s *Service) RunningBalance(ctx context.Context, accountID string, initialBalance float64) ([]BalanceSnapshot, error) {
	entries, err := s.repo.FindTransactionsByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	sorted := make([]*transaction.Transaction, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	snapshots := make([]BalanceSnapshot, 0, len(sorted))
	balance := initialBalance
	for _, entry := range sorted {
		balance += entry.Signed()
		snapshots = append(snapshots, BalanceSnapshot{
			Timestamp: entry.Timestamp,
			Balance:   balance,
		})
	}
	return snapshots, nil
}

// SummaryByType sums the account's entry amounts per transaction type.
func (s *Service) SummaryByType(ctx context.Context, accountID string) (map[transaction.Type]float64, error) {
	entries, err := s.repo.FindTransactionsByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	summary := make(map[transaction.Type]float64)
	for _, entry := range entries {
		summary[entry.Type] += entry.Amount
	}
	return summary, nil
}
