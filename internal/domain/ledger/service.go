package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"minibank/internal/domain/account"
	"minibank/internal/domain/transaction"
)

var (
	ledgerMeter    = otel.Meter("minibank/ledger")
	opsTotal, _    = ledgerMeter.Int64Counter("ledger.operations.total", metric.WithDescription("Ledger operations by kind"))
	amountMoved, _ = ledgerMeter.Float64Counter("ledger.amount.moved", metric.WithDescription("Total amount moved through the ledger"))
)

// ErrSameAccount rejects transfers where sender and recipient coincide.
var ErrSameAccount = errors.New("cannot transfer to the same account")

// Notifier receives observability events from the ledger. Overdraft entry
// is an event, not an error: the withdrawal that caused it succeeded.
type Notifier interface {
	OverdraftEntered(accountID string, balance float64)
}

// logNotifier is the default Notifier; it only writes to the process log.
type logNotifier struct{}

func (logNotifier) OverdraftEntered(accountID string, balance float64) {
	log.Printf("ALERT: checking account %s is in overdraft (balance %.2f)", accountID, balance)
}

// Service owns all balance mutation. It serializes operations per account
// id, drives every durable write through the injected Repository, and
// guarantees that a failed business check leaves no state behind.
type Service struct {
	repo     Repository
	notifier Notifier
	locks    *accountLocks
}

// NewService creates a ledger service. A nil notifier falls back to
// logging overdraft alerts.
func NewService(repo Repository, notifier Notifier) *Service {
	if notifier == nil {
		notifier = logNotifier{}
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		locks:    newAccountLocks(),
	}
}

// OpenAccount creates and persists a new account of the given type.
func (s *Service) OpenAccount(ctx context.Context, ownerID string, typ account.Type, initialBalance float64) (*account.Account, error) {
	acc, err := account.New(ownerID, typ, initialBalance)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, acc); err != nil {
		return nil, fmt.Errorf("failed to save new account: %w", err)
	}
	s.count(ctx, "open")
	return acc, nil
}

// Account retrieves an account by id.
func (s *Service) Account(ctx context.Context, accountID string) (*account.Account, error) {
	return s.repo.FindByID(ctx, accountID)
}

// AccountsByOwner retrieves all accounts belonging to an owner.
func (s *Service) AccountsByOwner(ctx context.Context, ownerID string) ([]*account.Account, error) {
	if ownerID == "" {
		return nil, errors.New("owner ID is required")
	}
	return s.repo.FindByOwnerID(ctx, ownerID)
}

// CloseAccount removes the account and purges every ledger entry that
// references it from either side.
func (s *Service) CloseAccount(ctx context.Context, accountID string) error {
	unlock := s.locks.lock(accountID)
	defer unlock()

	if err := s.repo.DeleteAccountByID(ctx, accountID); err != nil {
		return err
	}
	s.count(ctx, "close")
	return nil
}

// CloseAccountsByOwner closes every account of an owner as one logical
// batch. The owner's account ids are resolved first and all of their locks
// acquired in lexicographic order, so an in-flight deposit or withdrawal
// on any of them completes before the batch delete runs. The count of
// removed accounts is reported even when a later delete fails.
func (s *Service) CloseAccountsByOwner(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, errors.New("owner ID is required")
	}

	accounts, err := s.repo.FindByOwnerID(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		return 0, nil
	}
	ids := make([]string, len(accounts))
	for i, acc := range accounts {
		ids[i] = acc.ID
	}

	unlock := s.locks.lockAll(ids)
	defer unlock()

	n, err := s.repo.DeleteAccountsByOwnerID(ctx, ownerID)
	if err != nil {
		return n, err
	}
	s.count(ctx, "close")
	return n, nil
}

// Deposit credits the account and appends one DEPOSIT entry. The account's
// new balance is durably saved before the entry is appended.
func (s *Service) Deposit(ctx context.Context, accountID string, amount float64) error {
	if amount <= 0 {
		return account.ErrInvalidAmount
	}

	unlock := s.locks.lock(accountID)
	defer unlock()

	acc, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if err := acc.Credit(amount); err != nil {
		return err
	}

	entry := transaction.New(transaction.TypeDeposit, transaction.DirectionCredit, amount, acc.ID, "")
	if err := s.persist(ctx, acc, entry); err != nil {
		return err
	}
	s.count(ctx, "deposit")
	amountMoved.Add(ctx, amount)
	return nil
}

// Withdraw debits the account under its variant rules and appends one
// WITHDRAWAL entry. A Checking account that ends up below zero triggers an
// overdraft notification after the withdrawal has been persisted.
func (s *Service) Withdraw(ctx context.Context, accountID string, amount float64) error {
	if amount <= 0 {
		return account.ErrInvalidAmount
	}

	unlock := s.locks.lock(accountID)
	defer unlock()

	acc, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if err := acc.Debit(amount); err != nil {
		return err
	}

	entry := transaction.New(transaction.TypeWithdrawal, transaction.DirectionDebit, amount, acc.ID, "")
	if err := s.persist(ctx, acc, entry); err != nil {
		return err
	}
	if acc.InOverdraft() {
		s.notifier.OverdraftEntered(acc.ID, acc.Balance)
	}
	s.count(ctx, "withdraw")
	amountMoved.Add(ctx, amount)
	return nil
}

// Transfer moves amount from one account to another. The withdrawal-side
// variant rules apply; any withdrawal failure aborts the transfer before
// the recipient is touched. On success exactly one transfer entry is
// recorded on the sender and the repository mirrors it onto the recipient,
// both within one staged commit. Same-owner transfers are typed
// INTERNAL_TRANSFER, cross-owner ones EXTERNAL_TRANSFER.
func (s *Service) Transfer(ctx context.Context, fromAccountID, toAccountID string, amount float64) error {
	if amount <= 0 {
		return account.ErrInvalidAmount
	}
	if fromAccountID == toAccountID {
		return ErrSameAccount
	}

	unlock := s.locks.lockPair(fromAccountID, toAccountID)
	defer unlock()

	from, err := s.repo.FindByID(ctx, fromAccountID)
	if err != nil {
		return err
	}
	to, err := s.repo.FindByID(ctx, toAccountID)
	if err != nil {
		return err
	}

	if err := from.Debit(amount); err != nil {
		return err
	}
	if err := to.Credit(amount); err != nil {
		return err
	}

	typ := transaction.TypeExternalTransfer
	if from.OwnerID == to.OwnerID {
		typ = transaction.TypeInternalTransfer
	}
	entry := transaction.New(typ, transaction.DirectionDebit, amount, from.ID, to.ID)

	if err := s.repo.SaveTransfer(ctx, from, to, entry); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	if from.InOverdraft() {
		s.notifier.OverdraftEntered(from.ID, from.Balance)
	}
	s.count(ctx, "transfer")
	amountMoved.Add(ctx, amount)
	return nil
}

// BuySecurity withdraws the total cost from an Investment account and adds
// the shares to its mock portfolio.
func (s *Service) BuySecurity(ctx context.Context, accountID, symbol string, shares int, pricePerShare float64) error {
	if symbol == "" {
		return errors.New("security symbol is required")
	}
	if shares <= 0 || pricePerShare <= 0 {
		return account.ErrInvalidAmount
	}

	unlock := s.locks.lock(accountID)
	defer unlock()

	acc, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.Type != account.TypeInvestment {
		return fmt.Errorf("%w: %s is not an investment account", account.ErrInvalidAccountType, accountID)
	}

	cost := float64(shares) * pricePerShare
	if acc.Balance < cost {
		return account.ErrInsufficientFunds
	}
	if err := acc.Debit(cost); err != nil {
		return err
	}
	if acc.Holdings == nil {
		acc.Holdings = make(map[string]int)
	}
	acc.Holdings[symbol] += shares

	entry := transaction.New(transaction.TypeWithdrawal, transaction.DirectionDebit, cost, acc.ID, "")
	if err := s.persist(ctx, acc, entry); err != nil {
		return err
	}
	log.Printf("Purchased %d shares of %s for %.2f on account %s", shares, symbol, cost, acc.ID)
	s.count(ctx, "buy_security")
	return nil
}

// ApplyMonthlyInterest credits one month of interest to a Savings account
// and resets its withdrawal counter. The caller is an external scheduler;
// this method uses the same per-account serialization as withdrawals, so
// it is safe to invoke concurrently with ordinary operations.
func (s *Service) ApplyMonthlyInterest(ctx context.Context, accountID string) error {
	unlock := s.locks.lock(accountID)
	defer unlock()

	acc, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.Type != account.TypeSavings {
		return fmt.Errorf("%w: %s is not a savings account", account.ErrInvalidAccountType, accountID)
	}

	interest := acc.Balance * account.SavingsAnnualRate / 12
	credited := false
	if interest > 0 {
		if err := acc.Credit(interest); err != nil {
			return err
		}
		credited = true
	}
	// The counter resets on the period boundary whether or not any
	// interest was due.
	acc.WithdrawalsThisMonth = 0

	if !credited {
		if err := s.repo.Save(ctx, acc); err != nil {
			return fmt.Errorf("failed to save account: %w", err)
		}
		return nil
	}

	entry := transaction.New(transaction.TypeDeposit, transaction.DirectionCredit, interest, acc.ID, "")
	if err := s.persist(ctx, acc, entry); err != nil {
		return err
	}
	log.Printf("Interest of %.2f credited to savings account %s", interest, acc.ID)
	s.count(ctx, "monthly_interest")
	return nil
}

// ApplyQuarterlyFee withdraws the management fee from an Investment
// account. A fee that cannot be taken (zero balance) is skipped with a
// warning rather than surfaced as an error.
func (s *Service) ApplyQuarterlyFee(ctx context.Context, accountID string) error {
	unlock := s.locks.lock(accountID)
	defer unlock()

	acc, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.Type != account.TypeInvestment {
		return fmt.Errorf("%w: %s is not an investment account", account.ErrInvalidAccountType, accountID)
	}

	fee := acc.Balance * account.ManagementFeeRate
	if err := acc.Debit(fee); err != nil {
		log.Printf("WARNING: cannot apply management fee to account %s: %v", acc.ID, err)
		return nil
	}

	entry := transaction.New(transaction.TypeWithdrawal, transaction.DirectionDebit, fee, acc.ID, "")
	if err := s.persist(ctx, acc, entry); err != nil {
		return err
	}
	log.Printf("Applied management fee of %.2f to investment account %s", fee, acc.ID)
	s.count(ctx, "quarterly_fee")
	return nil
}

// persist saves the account's new balance and then appends the ledger
// entry, in that order, wrapping storage failures.
func (s *Service) persist(ctx context.Context, acc *account.Account, entry *transaction.Transaction) error {
	if err := s.repo.Save(ctx, acc); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	if err := s.repo.SaveTransaction(ctx, entry); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

func (s *Service) count(ctx context.Context, op string) {
	opsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}
