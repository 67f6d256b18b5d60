package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/paisavault/ledger-service/internal/domain"
	"github.com/paisavault/ledger-service/internal/store"
)

func TestDebitCredit_RejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, wallet := seedUser(t, svc, "asha", 10_000)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"zero debit", func() error {
			_, err := svc.Debit(ctx, wallet.ID, 0, domain.EntryExpense)
			return err
		}},
		{"negative debit", func() error {
			_, err := svc.Debit(ctx, wallet.ID, -500, domain.EntryExpense)
			return err
		}},
		{"credit kind on debit", func() error {
			_, err := svc.Debit(ctx, wallet.ID, 100, domain.EntryIncome)
			return err
		}},
		{"debit kind on credit", func() error {
			_, err := svc.Credit(ctx, wallet.ID, 100, domain.EntryExpense)
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var vErr *domain.ValidationError
			if err := tc.run(); !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if got := walletBalance(t, svcRepo(t, svc), wallet.ID); got != 10_000 {
		t.Fatalf("balance changed by rejected operations: %d", got)
	}
}

// svcRepo digs the memory repository back out for balance assertions.
func svcRepo(t *testing.T, svc *Service) *store.MemoryRepository {
	t.Helper()
	repo, ok := svc.repo.(*store.MemoryRepository)
	if !ok {
		t.Fatalf("test service not backed by memory repository")
	}
	return repo
}

func TestDebit_InsufficientFundsLeavesStateUntouched(t *testing.T) {
	svc, repo, _ := newTestService(t)
	_, wallet := seedUser(t, svc, "asha", 500)
	ctx := context.Background()

	_, err := svc.Debit(ctx, wallet.ID, 501, domain.EntryExpense)
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if got := walletBalance(t, repo, wallet.ID); got != 500 {
		t.Fatalf("balance changed after failed debit: %d", got)
	}
	entries, err := repo.ListEntriesByAccount(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("ListEntriesByAccount: %v", err)
	}
	if len(entries) != 1 { // the opening income entry only
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestLedger_BalanceEqualsEntrySum(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user, wallet := seedUser(t, svc, "asha", 100_000)
	ctx := context.Background()

	if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 12_345, Category: "food"}); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if _, err := svc.RecordIncome(ctx, IncomeInput{UserID: user.ID, Amount: 7_000, Source: "salary"}); err != nil {
		t.Fatalf("RecordIncome: %v", err)
	}
	if _, err := svc.Debit(ctx, wallet.ID, 2_655, domain.EntryExpense); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	svc.FlushSideEffects()

	entries, err := repo.ListEntriesByAccount(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("ListEntriesByAccount: %v", err)
	}
	var sum int64
	for _, e := range entries {
		sum += e.Amount
		if e.BalanceAfter != sum {
			t.Fatalf("entry %s snapshot %d disagrees with running sum %d", e.ID, e.BalanceAfter, sum)
		}
	}
	if got := walletBalance(t, repo, wallet.ID); got != sum {
		t.Fatalf("balance %d != entry sum %d", got, sum)
	}
	if sum != 100_000-12_345+7_000-2_655 {
		t.Fatalf("unexpected final balance %d", sum)
	}
}

func TestRecordExpense_SignsAndReferences(t *testing.T) {
	svc, _, _ := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 10_000)

	result, err := svc.RecordExpense(context.Background(), ExpenseInput{
		UserID:   user.ID,
		Amount:   1_200,
		Category: "transport",
	})
	if err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	svc.FlushSideEffects()

	if result.Entry.Amount != -1_200 {
		t.Fatalf("expected signed amount -1200, got %d", result.Entry.Amount)
	}
	if result.Entry.Kind != domain.EntryExpense {
		t.Fatalf("expected EXPENSE kind, got %s", result.Entry.Kind)
	}
	if result.Entry.BalanceAfter != 8_800 {
		t.Fatalf("expected balance snapshot 8800, got %d", result.Entry.BalanceAfter)
	}
	if result.Entry.ReferenceID == nil || *result.Entry.ReferenceID != result.Expense.ID {
		t.Fatalf("entry does not reference its expense")
	}
}

func TestConcurrentDebits_NeverOverdraw(t *testing.T) {
	svc, repo, _ := newTestService(t)
	_, wallet := seedUser(t, svc, "asha", 1_000)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Debit(ctx, wallet.ID, 100, domain.EntryExpense)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientFunds):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 10 {
		t.Fatalf("expected exactly 10 debits to succeed, got %d", succeeded)
	}
	if got := walletBalance(t, repo, wallet.ID); got != 0 {
		t.Fatalf("expected zero balance, got %d", got)
	}
}
