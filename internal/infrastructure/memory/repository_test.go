package memory

import (
	"context"
	"errors"
	"testing"

	"minibank/internal/domain/account"
	"minibank/internal/domain/transaction"
)

func mustAccount(t *testing.T, ownerID string, typ account.Type) *account.Account {
	t.Helper()
	acc, err := account.New(ownerID, typ, 0)
	if err != nil {
		t.Fatalf("account.New() failed: %v", err)
	}
	return acc
}

func TestSaveAndFindByID(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	acc := mustAccount(t, "owner-1", account.TypeBasic)
	acc.Balance = 75

	if err := repo.Save(ctx, acc); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := repo.FindByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("FindByID() failed: %v", err)
	}
	if got.Balance != 75 || got.OwnerID != "owner-1" {
		t.Errorf("got %+v, want balance 75 owned by owner-1", got)
	}
}

func TestFindByID_NotFound(t *testing.T) {
	repo := NewRepository()

	_, err := repo.FindByID(context.Background(), "missing")
	if !errors.Is(err, account.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestStoredAccountIsIsolated(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	acc := mustAccount(t, "owner-1", account.TypeInvestment)
	acc.Holdings = map[string]int{"ACME": 2}
	if err := repo.Save(ctx, acc); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	// Mutating either the saved original or a fetched copy must not leak
	// into the store.
	acc.Balance = 999
	acc.Holdings["ACME"] = 100

	first, err := repo.FindByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("FindByID() failed: %v", err)
	}
	first.Balance = -1
	first.Holdings["ACME"] = 0

	got, err := repo.FindByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("FindByID() failed: %v", err)
	}
	if got.Balance != 0 || got.Holdings["ACME"] != 2 {
		t.Errorf("stored account mutated through aliases: %+v", got)
	}
}

func TestSaveTransaction_TransferMirrors(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	entry := transaction.New(transaction.TypeExternalTransfer, transaction.DirectionDebit, 40, "acc-a", "acc-b")
	if err := repo.SaveTransaction(ctx, entry); err != nil {
		t.Fatalf("SaveTransaction() failed: %v", err)
	}

	sent, err := repo.FindTransactionsByAccountID(ctx, "acc-a")
	if err != nil {
		t.Fatalf("FindTransactionsByAccountID() failed: %v", err)
	}
	if len(sent) != 1 || sent[0].ID != entry.ID {
		t.Fatalf("sender entries = %v, want the original entry", sent)
	}

	received, err := repo.FindTransactionsByAccountID(ctx, "acc-b")
	if err != nil {
		t.Fatalf("FindTransactionsByAccountID() failed: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("recipient entries = %d, want exactly one mirror", len(received))
	}
	mirror := received[0]
	if mirror.ID == entry.ID {
		t.Error("mirror reused the original entry id")
	}
	if mirror.SourceAccountID != "acc-b" || mirror.TargetAccountID != "acc-a" {
		t.Errorf("mirror sides = %s -> %s, want acc-b -> acc-a", mirror.SourceAccountID, mirror.TargetAccountID)
	}
	if mirror.Direction != transaction.DirectionCredit {
		t.Errorf("mirror direction = %s, want CREDIT", mirror.Direction)
	}
	if mirror.Type != entry.Type || mirror.Amount != entry.Amount || !mirror.Timestamp.Equal(entry.Timestamp) {
		t.Errorf("mirror diverged from original: %+v vs %+v", mirror, entry)
	}
}

func TestSaveTransaction_NonTransferHasNoMirror(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	entry := transaction.New(transaction.TypeDeposit, transaction.DirectionCredit, 10, "acc-a", "")
	if err := repo.SaveTransaction(ctx, entry); err != nil {
		t.Fatalf("SaveTransaction() failed: %v", err)
	}

	for _, id := range []string{"acc-a", ""} {
		entries, err := repo.FindTransactionsByAccountID(ctx, id)
		if err != nil {
			t.Fatalf("FindTransactionsByAccountID(%q) failed: %v", id, err)
		}
		if id == "acc-a" && len(entries) != 1 {
			t.Errorf("anchor entries = %d, want 1", len(entries))
		}
		if id == "" && len(entries) != 0 {
			t.Errorf("empty anchor entries = %d, want 0", len(entries))
		}
	}
}

func TestDeleteAccountByID_Cascades(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	a := mustAccount(t, "owner-1", account.TypeBasic)
	b := mustAccount(t, "owner-2", account.TypeBasic)
	for _, acc := range []*account.Account{a, b} {
		if err := repo.Save(ctx, acc); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}

	deposit := transaction.New(transaction.TypeDeposit, transaction.DirectionCredit, 100, b.ID, "")
	outgoing := transaction.New(transaction.TypeExternalTransfer, transaction.DirectionDebit, 25, a.ID, b.ID)
	for _, entry := range []*transaction.Transaction{deposit, outgoing} {
		if err := repo.SaveTransaction(ctx, entry); err != nil {
			t.Fatalf("SaveTransaction() failed: %v", err)
		}
	}

	if err := repo.DeleteAccountByID(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAccountByID() failed: %v", err)
	}

	if _, err := repo.FindByID(ctx, a.ID); !errors.Is(err, account.ErrAccountNotFound) {
		t.Errorf("deleted account still found, err = %v", err)
	}

	// b keeps only its own deposit: the mirror of a's transfer references
	// the deleted account and must go with it.
	remaining, err := repo.FindTransactionsByAccountID(ctx, b.ID)
	if err != nil {
		t.Fatalf("FindTransactionsByAccountID() failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != deposit.ID {
		t.Errorf("surviving entries = %v, want only the deposit", remaining)
	}
}

func TestDeleteAccountByID_NotFound(t *testing.T) {
	repo := NewRepository()

	err := repo.DeleteAccountByID(context.Background(), "missing")
	if !errors.Is(err, account.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestDeleteAccountsByOwnerID(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	mine1 := mustAccount(t, "owner-1", account.TypeBasic)
	mine2 := mustAccount(t, "owner-1", account.TypeSavings)
	other := mustAccount(t, "owner-2", account.TypeBasic)
	for _, acc := range []*account.Account{mine1, mine2, other} {
		if err := repo.Save(ctx, acc); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}

	n, err := repo.DeleteAccountsByOwnerID(ctx, "owner-1")
	if err != nil {
		t.Fatalf("DeleteAccountsByOwnerID() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d accounts, want 2", n)
	}

	if _, err := repo.FindByID(ctx, other.ID); err != nil {
		t.Errorf("unrelated account was removed: %v", err)
	}
	left, err := repo.FindByOwnerID(ctx, "owner-1")
	if err != nil {
		t.Fatalf("FindByOwnerID() failed: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("owner still has %d accounts, want 0", len(left))
	}
}

func TestSaveTransfer_UpdatesBothAccounts(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	source := mustAccount(t, "owner-1", account.TypeBasic)
	target := mustAccount(t, "owner-2", account.TypeBasic)
	source.Balance = 60
	target.Balance = 40

	entry := transaction.New(transaction.TypeExternalTransfer, transaction.DirectionDebit, 40, source.ID, target.ID)
	if err := repo.SaveTransfer(ctx, source, target, entry); err != nil {
		t.Fatalf("SaveTransfer() failed: %v", err)
	}

	gotSource, err := repo.FindByID(ctx, source.ID)
	if err != nil {
		t.Fatalf("FindByID(source) failed: %v", err)
	}
	gotTarget, err := repo.FindByID(ctx, target.ID)
	if err != nil {
		t.Fatalf("FindByID(target) failed: %v", err)
	}
	if gotSource.Balance != 60 || gotTarget.Balance != 40 {
		t.Errorf("balances = %v/%v, want 60/40", gotSource.Balance, gotTarget.Balance)
	}

	targetEntries, err := repo.FindTransactionsByAccountID(ctx, target.ID)
	if err != nil {
		t.Fatalf("FindTransactionsByAccountID() failed: %v", err)
	}
	if len(targetEntries) != 1 {
		t.Errorf("target entries = %d, want 1 mirror", len(targetEntries))
	}
}
