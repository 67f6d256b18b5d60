package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paisavault/ledger-service/internal/domain"
	"github.com/paisavault/ledger-service/internal/store"
)

func TestNetWorth_AggregatesAllSources(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 50_000)
	asset := seedAsset(t, repo, "NIFTYBEES", "100", 2.0)
	ctx := context.Background()

	bank, err := svc.LinkBankAccount(ctx, user.ID, "HDFC Savings")
	if err != nil {
		t.Fatalf("LinkBankAccount: %v", err)
	}
	if _, err := svc.Credit(ctx, bank.ID, 30_000, domain.EntryIncome); err != nil {
		t.Fatalf("Credit bank: %v", err)
	}

	if _, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: asset.ID, Amount: 10_000}); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	// Price rises 20%: the 100 units are now worth 12000.
	if err := svc.OverridePrice(ctx, uuid.Nil, asset.ID, decimal.RequireFromString("120")); err != nil {
		t.Fatalf("OverridePrice: %v", err)
	}

	snapshot, err := svc.NetWorth(ctx, user.ID)
	if err != nil {
		t.Fatalf("NetWorth: %v", err)
	}
	if snapshot.Wallet != 40_000 {
		t.Fatalf("wallet component: got %d, want 40000", snapshot.Wallet)
	}
	if snapshot.BankAccounts != 30_000 {
		t.Fatalf("bank component: got %d, want 30000", snapshot.BankAccounts)
	}
	if snapshot.Investments != 12_000 {
		t.Fatalf("investment component: got %d, want 12000", snapshot.Investments)
	}
	if snapshot.NetWorth != 82_000 {
		t.Fatalf("net worth: got %d, want 82000", snapshot.NetWorth)
	}

	// The computation refreshed the cache as a by-product.
	cached, err := repo.GetValuationSnapshot(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetValuationSnapshot: %v", err)
	}
	if cached.NetWorth != snapshot.NetWorth {
		t.Fatalf("cache disagrees with computation: %d vs %d", cached.NetWorth, snapshot.NetWorth)
	}
}

func TestCachedNetWorth_ServesStaleSnapshot(t *testing.T) {
	svc, _, _ := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 10_000)
	ctx := context.Background()

	// No snapshot yet: falls back to a fresh computation.
	first, err := svc.CachedNetWorth(ctx, user.ID)
	if err != nil {
		t.Fatalf("CachedNetWorth: %v", err)
	}
	if first.NetWorth != 10_000 {
		t.Fatalf("net worth: got %d, want 10000", first.NetWorth)
	}

	// Spend without recomputing: the cached read stays stale by design.
	if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 4_000, Category: "misc"}); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	svc.FlushSideEffects()

	stale, err := svc.CachedNetWorth(ctx, user.ID)
	if err != nil {
		t.Fatalf("CachedNetWorth: %v", err)
	}
	if stale.NetWorth != 10_000 {
		t.Fatalf("cached read recomputed: got %d", stale.NetWorth)
	}

	fresh, err := svc.NetWorth(ctx, user.ID)
	if err != nil {
		t.Fatalf("NetWorth: %v", err)
	}
	if fresh.NetWorth != 6_000 {
		t.Fatalf("fresh net worth: got %d, want 6000", fresh.NetWorth)
	}
}

func TestNetWorth_UnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.NetWorth(context.Background(), uuid.New()); !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
