package account

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Type identifies the account variant. Fixed at creation.
type Type string

const (
	TypeBasic      Type = "Basic"
	TypeChecking   Type = "Checking"
	TypeSavings    Type = "Savings"
	TypeInvestment Type = "Investment"
)

var accountTypes = map[Type]struct{}{
	TypeBasic:      {},
	TypeChecking:   {},
	TypeSavings:    {},
	TypeInvestment: {},
}

// Variant constants. Flat rates, no compounding.
const (
	// OverdraftLimit is how far below zero a Checking balance may go.
	OverdraftLimit = 500.00
	// SavingsAnnualRate is the annual interest rate for Savings accounts;
	// one twelfth is credited per monthly maintenance run.
	SavingsAnnualRate = 0.025
	// MaxMonthlyWithdrawals caps Savings withdrawals per period.
	MaxMonthlyWithdrawals = 4
	// ManagementFeeRate is the quarterly fee rate for Investment accounts.
	ManagementFeeRate = 0.005
)

// Domain errors
var (
	ErrInvalidAccountType     = errors.New("invalid account type")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrOverdraftExceeded      = errors.New("withdrawal exceeds overdraft limit")
	ErrWithdrawalLimitReached = errors.New("monthly withdrawal limit reached")
	ErrAccountNotFound        = errors.New("account not found")
)

// Account is a plain value object: it holds no repository reference and
// performs no persistence. All durable mutation goes through the ledger
// service, which persists the account after calling Credit/Debit.
type Account struct {
	ID      string  `json:"id"`
	OwnerID string  `json:"ownerId"`
	Type    Type    `json:"accountType"`
	Balance float64 `json:"balance"`

	// WithdrawalsThisMonth counts Savings withdrawals in the current period.
	// Reset by the monthly maintenance run.
	WithdrawalsThisMonth int `json:"withdrawalsThisMonth,omitempty"`

	// Holdings is the Investment mock portfolio (symbol -> shares). Derived
	// local state; it is not required to survive a restart.
	Holdings map[string]int `json:"holdings,omitempty"`
}

// New creates an account with a freshly generated id.
func New(ownerID string, typ Type, initialBalance float64) (*Account, error) {
	if ownerID == "" {
		return nil, errors.New("owner ID is required")
	}
	if !IsValidType(typ) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAccountType, typ)
	}
	if initialBalance < 0 {
		return nil, ErrInvalidAmount
	}
	return &Account{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Type:    typ,
		Balance: initialBalance,
	}, nil
}

// Restore rebuilds an account from persisted state, reusing its id.
// Unknown type strings fall back to Basic, matching how rows written by
// older revisions of the store are treated.
func Restore(id, ownerID string, typ Type, balance float64) *Account {
	if !IsValidType(typ) {
		typ = TypeBasic
	}
	return &Account{
		ID:      id,
		OwnerID: ownerID,
		Type:    typ,
		Balance: balance,
	}
}

// IsValidType checks if the provided account type is valid.
func IsValidType(t Type) bool {
	_, ok := accountTypes[t]
	return ok
}

// Credit increases the balance. Shared by every variant.
func (a *Account) Credit(amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	a.Balance += amount
	return nil
}

// Debit decreases the balance, applying the variant's withdrawal rules.
// The Savings limit is checked before funds, so the fifth withdrawal of a
// period fails even when the balance would cover it.
func (a *Account) Debit(amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	switch a.Type {
	case TypeChecking:
		if a.Balance+OverdraftLimit < amount {
			return ErrOverdraftExceeded
		}
	case TypeSavings:
		if a.WithdrawalsThisMonth >= MaxMonthlyWithdrawals {
			return ErrWithdrawalLimitReached
		}
		if a.Balance < amount {
			return ErrInsufficientFunds
		}
	default:
		if a.Balance < amount {
			return ErrInsufficientFunds
		}
	}

	a.Balance -= amount
	if a.Type == TypeSavings {
		a.WithdrawalsThisMonth++
	}
	return nil
}

// InOverdraft reports whether a Checking balance has gone negative.
func (a *Account) InOverdraft() bool {
	return a.Type == TypeChecking && a.Balance < 0
}

// Clone returns an independent copy, including the holdings map.
func (a *Account) Clone() *Account {
	out := *a
	if a.Holdings != nil {
		out.Holdings = make(map[string]int, len(a.Holdings))
		for sym, shares := range a.Holdings {
			out.Holdings[sym] = shares
		}
	}
	return &out
}
