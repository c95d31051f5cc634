package transaction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type classifies a ledger entry.
type Type string

const (
	TypeDeposit          Type = "DEPOSIT"
	TypeWithdrawal       Type = "WITHDRAWAL"
	TypeInternalTransfer Type = "INTERNAL_TRANSFER"
	TypeExternalTransfer Type = "EXTERNAL_TRANSFER"
)

// Direction records the entry's effect on the anchor account's balance.
// A transfer is stored with the sender's original type on both sides; the
// direction is what tells a mirror record apart from the original when the
// history is replayed from the anchor's perspective.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

var transactionTypes = map[Type]struct{}{
	TypeDeposit:          {},
	TypeWithdrawal:       {},
	TypeInternalTransfer: {},
	TypeExternalTransfer: {},
}

// Transaction is one immutable ledger entry, anchored to SourceAccountID.
// TargetAccountID is the counterparty and is set only for transfer types.
type Transaction struct {
	ID              string    `json:"id"`
	Type            Type      `json:"type"`
	Direction       Direction `json:"direction"`
	Amount          float64   `json:"amount"`
	Timestamp       time.Time `json:"timestamp"`
	SourceAccountID string    `json:"sourceAccountId"`
	TargetAccountID string    `json:"targetAccountId,omitempty"`
}

// New creates a ledger entry with a generated id and the current time.
func New(typ Type, dir Direction, amount float64, sourceAccountID, targetAccountID string) *Transaction {
	return &Transaction{
		ID:              uuid.NewString(),
		Type:            typ,
		Direction:       dir,
		Amount:          amount,
		Timestamp:       time.Now(),
		SourceAccountID: sourceAccountID,
		TargetAccountID: targetAccountID,
	}
}

// Restore rebuilds a persisted entry, reusing its id and timestamp.
func Restore(id string, typ Type, dir Direction, amount float64, ts time.Time, sourceAccountID, targetAccountID string) *Transaction {
	return &Transaction{
		ID:              id,
		Type:            typ,
		Direction:       dir,
		Amount:          amount,
		Timestamp:       ts,
		SourceAccountID: sourceAccountID,
		TargetAccountID: targetAccountID,
	}
}

// Mirror synthesizes the counterparty record of a transfer: source and
// target swapped, direction flipped, same type, amount and timestamp.
// Only repository SaveTransaction implementations call this; mirroring is
// never done in the domain layer.
func (t *Transaction) Mirror() *Transaction {
	dir := DirectionCredit
	if t.Direction == DirectionCredit {
		dir = DirectionDebit
	}
	return &Transaction{
		ID:              uuid.NewString(),
		Type:            t.Type,
		Direction:       dir,
		Amount:          t.Amount,
		Timestamp:       t.Timestamp,
		SourceAccountID: t.TargetAccountID,
		TargetAccountID: t.SourceAccountID,
	}
}

// IsTransfer reports whether the entry has a counterparty.
func (t *Transaction) IsTransfer() bool {
	return t.TargetAccountID != ""
}

// Signed returns the amount with the sign of its balance effect on the
// anchor account: positive for credits, negative for debits.
func (t *Transaction) Signed() float64 {
	if t.Direction == DirectionDebit {
		return -t.Amount
	}
	return t.Amount
}

// ParseType validates a stored type string.
func ParseType(s string) (Type, error) {
	typ := Type(s)
	if _, ok := transactionTypes[typ]; !ok {
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
	return typ, nil
}

// ParseDirection validates a stored direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionCredit:
		return DirectionCredit, nil
	case DirectionDebit:
		return DirectionDebit, nil
	}
	return "", fmt.Errorf("unknown transaction direction %q", s)
}
