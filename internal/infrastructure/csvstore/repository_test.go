package csvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"minibank/internal/domain/account"
	"minibank/internal/domain/transaction"
)

func openTestRepo(t *testing.T) (*Repository, string, string) {
	t.Helper()
	dir := t.TempDir()
	accountsPath := filepath.Join(dir, "accounts.csv")
	transactionsPath := filepath.Join(dir, "transactions.csv")
	repo, err := Open(accountsPath, transactionsPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return repo, accountsPath, transactionsPath
}

func newTestAccount(t *testing.T, ownerID string, typ account.Type, balance float64) *account.Account {
	t.Helper()
	acc, err := account.New(ownerID, typ, balance)
	if err != nil {
		t.Fatalf("account.New() failed: %v", err)
	}
	return acc
}

func TestOpen_CreatesHeaderOnlyFiles(t *testing.T) {
	_, accountsPath, transactionsPath := openTestRepo(t)

	got, err := os.ReadFile(accountsPath)
	if err != nil {
		t.Fatalf("failed to read accounts file: %v", err)
	}
	if string(got) != "accountId,ownerId,accountType,balance\n" {
		t.Errorf("accounts file = %q, want header only", got)
	}

	got, err = os.ReadFile(transactionsPath)
	if err != nil {
		t.Fatalf("failed to read transactions file: %v", err)
	}
	if string(got) != "transactionId,timestamp,transactionType,direction,amount,sourceAccountId,targetAccountId\n" {
		t.Errorf("transactions file = %q, want header only", got)
	}
}

func TestRoundTrip_Reopen(t *testing.T) {
	repo, accountsPath, transactionsPath := openTestRepo(t)
	ctx := context.Background()

	acc := newTestAccount(t, "owner-1", account.TypeChecking, 120.5)
	other := newTestAccount(t, "owner-2", account.TypeBasic, 10)
	if err := repo.Save(ctx, acc); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := repo.Save(ctx, other); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	deposit := transaction.New(transaction.TypeDeposit, transaction.DirectionCredit, 120.5, acc.ID, "")
	outgoing := transaction.New(transaction.TypeExternalTransfer, transaction.DirectionDebit, 20, acc.ID, other.ID)
	for _, entry := range []*transaction.Transaction{deposit, outgoing} {
		if err := repo.SaveTransaction(ctx, entry); err != nil {
			t.Fatalf("SaveTransaction() failed: %v", err)
		}
	}

	// A fresh repository over the same files must reproduce the state.
	reopened, err := Open(accountsPath, transactionsPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	gotAcc, err := reopened.FindByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("FindByID() after reopen failed: %v", err)
	}
	if gotAcc.Balance != 120.5 || gotAcc.Type != account.TypeChecking || gotAcc.OwnerID != "owner-1" {
		t.Errorf("reloaded account = %+v", gotAcc)
	}

	sent, err := reopened.FindTransactionsByAccountID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("FindTransactionsByAccountID() failed: %v", err)
	}
	if len(sent) != 2 {
		t.Fatalf("sender entries after reopen = %d, want 2", len(sent))
	}

	received, err := reopened.FindTransactionsByAccountID(ctx, other.ID)
	if err != nil {
		t.Fatalf("FindTransactionsByAccountID() failed: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("recipient entries after reopen = %d, want the mirror", len(received))
	}
	mirror := received[0]
	if mirror.Direction != transaction.DirectionCredit || mirror.SourceAccountID != other.ID || mirror.TargetAccountID != acc.ID {
		t.Errorf("reloaded mirror = %+v", mirror)
	}
	if !mirror.Timestamp.Equal(outgoing.Timestamp) {
		t.Errorf("mirror timestamp = %v, want %v", mirror.Timestamp, outgoing.Timestamp)
	}
}

func TestSave_IsIdempotentOnDisk(t *testing.T) {
	repo, accountsPath, _ := openTestRepo(t)
	ctx := context.Background()

	a := newTestAccount(t, "owner-1", account.TypeBasic, 50)
	b := newTestAccount(t, "owner-1", account.TypeSavings, 75)
	for _, acc := range []*account.Account{a, b} {
		if err := repo.Save(ctx, acc); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}

	first, err := os.ReadFile(accountsPath)
	if err != nil {
		t.Fatalf("failed to read accounts file: %v", err)
	}

	// Re-saving unchanged accounts must reproduce the file byte for byte.
	if err := repo.Save(ctx, b); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := repo.Save(ctx, a); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	second, err := os.ReadFile(accountsPath)
	if err != nil {
		t.Fatalf("failed to read accounts file: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("accounts file changed on unchanged re-save:\n%s\nvs\n%s", first, second)
	}
}

func TestBalanceFormat(t *testing.T) {
	repo, accountsPath, _ := openTestRepo(t)
	ctx := context.Background()

	acc := newTestAccount(t, "owner-1", account.TypeBasic, 12.5)
	if err := repo.Save(ctx, acc); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	data, err := os.ReadFile(accountsPath)
	if err != nil {
		t.Fatalf("failed to read accounts file: %v", err)
	}
	if !strings.Contains(string(data), ",12.50\n") {
		t.Errorf("balance not written with two decimals: %q", data)
	}
}

func TestDeleteAccount_CascadesAndRewrites(t *testing.T) {
	repo, accountsPath, transactionsPath := openTestRepo(t)
	ctx := context.Background()

	a := newTestAccount(t, "owner-1", account.TypeBasic, 100)
	b := newTestAccount(t, "owner-2", account.TypeBasic, 100)
	for _, acc := range []*account.Account{a, b} {
		if err := repo.Save(ctx, acc); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}

	keep := transaction.New(transaction.TypeDeposit, transaction.DirectionCredit, 100, b.ID, "")
	doomed := transaction.New(transaction.TypeExternalTransfer, transaction.DirectionDebit, 30, a.ID, b.ID)
	for _, entry := range []*transaction.Transaction{keep, doomed} {
		if err := repo.SaveTransaction(ctx, entry); err != nil {
			t.Fatalf("SaveTransaction() failed: %v", err)
		}
	}

	if err := repo.DeleteAccountByID(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAccountByID() failed: %v", err)
	}

	// Both files on disk must have lost every trace of the deleted id.
	for _, path := range []string{accountsPath, transactionsPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read %s: %v", path, err)
		}
		if strings.Contains(string(data), a.ID) {
			t.Errorf("%s still references deleted account:\n%s", path, data)
		}
	}

	reopened, err := Open(accountsPath, transactionsPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	remaining, err := reopened.FindTransactionsByAccountID(ctx, b.ID)
	if err != nil {
		t.Fatalf("FindTransactionsByAccountID() failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != keep.ID {
		t.Errorf("surviving entries = %v, want only the deposit", remaining)
	}
}

func TestDeleteAccountsByOwnerID(t *testing.T) {
	repo, _, _ := openTestRepo(t)
	ctx := context.Background()

	mine1 := newTestAccount(t, "owner-1", account.TypeBasic, 10)
	mine2 := newTestAccount(t, "owner-1", account.TypeChecking, 20)
	other := newTestAccount(t, "owner-2", account.TypeBasic, 30)
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
}

func TestDeleteAccount_NotFound(t *testing.T) {
	repo, _, _ := openTestRepo(t)

	err := repo.DeleteAccountByID(context.Background(), "missing")
	if !errors.Is(err, account.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestOpen_RejectsMalformedRow(t *testing.T) {
	dir := t.TempDir()
	accountsPath := filepath.Join(dir, "accounts.csv")
	transactionsPath := filepath.Join(dir, "transactions.csv")

	content := "accountId,ownerId,accountType,balance\nacc-1,owner-1,Basic,not-a-number\n"
	if err := os.WriteFile(accountsPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to seed accounts file: %v", err)
	}

	if _, err := Open(accountsPath, transactionsPath); err == nil {
		t.Error("Open() accepted an unparseable balance")
	}
}
