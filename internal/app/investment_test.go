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

func TestBuySell_BlendedAverageLifecycle(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user, wallet := seedUser(t, svc, "asha", 10_000)
	asset := seedAsset(t, repo, "NIFTYBEES", "100", 2.0)
	ctx := context.Background()

	// First buy: 5000 paise at 100/unit -> 50 units at avg 100.
	buy1, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: asset.ID, Amount: 5_000})
	if err != nil {
		t.Fatalf("first Buy: %v", err)
	}
	if !buy1.Holding.UnitsOwned.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("units after first buy: got %s, want 50", buy1.Holding.UnitsOwned)
	}
	if !buy1.Holding.AvgBuyPrice.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("avg after first buy: got %s, want 100", buy1.Holding.AvgBuyPrice)
	}
	if got := walletBalance(t, repo, wallet.ID); got != 5_000 {
		t.Fatalf("wallet after first buy: got %d, want 5000", got)
	}

	// Price rises to 125; second buy of 2500 adds 20 units.
	if err := svc.OverridePrice(ctx, uuid.Nil, asset.ID, decimal.RequireFromString("125")); err != nil {
		t.Fatalf("OverridePrice: %v", err)
	}
	buy2, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: asset.ID, Amount: 2_500})
	if err != nil {
		t.Fatalf("second Buy: %v", err)
	}
	if !buy2.Holding.UnitsOwned.Equal(decimal.RequireFromString("70")) {
		t.Fatalf("units after second buy: got %s, want 70", buy2.Holding.UnitsOwned)
	}
	if buy2.Holding.InvestedAmount != 7_500 {
		t.Fatalf("invested after second buy: got %d, want 7500", buy2.Holding.InvestedAmount)
	}
	// Blended average: 7500 / 70 at 4 decimal places.
	if !buy2.Holding.AvgBuyPrice.Equal(decimal.RequireFromString("107.1429")) {
		t.Fatalf("blended avg: got %s, want 107.1429", buy2.Holding.AvgBuyPrice)
	}

	// Price rises to 150; selling everything realizes the gain.
	if err := svc.OverridePrice(ctx, uuid.Nil, asset.ID, decimal.RequireFromString("150")); err != nil {
		t.Fatalf("OverridePrice: %v", err)
	}
	sell, err := svc.Sell(ctx, SellInput{UserID: user.ID, AssetID: asset.ID, Units: decimal.RequireFromString("70")})
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if sell.Proceeds != 10_500 {
		t.Fatalf("proceeds: got %d, want 10500", sell.Proceeds)
	}
	if sell.CostBasis != 7_500 {
		t.Fatalf("cost basis: got %d, want 7500", sell.CostBasis)
	}
	if sell.ProfitLoss != 3_000 {
		t.Fatalf("profit: got %d, want 3000", sell.ProfitLoss)
	}

	// Holding is gone; all cash is back in the wallet.
	if _, err := repo.GetHolding(ctx, user.ID, asset.ID); !errors.Is(err, store.ErrHoldingNotFound) {
		t.Fatalf("expected holding deleted, got %v", err)
	}
	if got := walletBalance(t, repo, wallet.ID); got != 13_000 {
		t.Fatalf("final wallet: got %d, want 13000", got)
	}
}

func TestSell_PartialKeepsAverage(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 10_000)
	asset := seedAsset(t, repo, "GOLDBEES", "200", 1.0)
	ctx := context.Background()

	if _, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: asset.ID, Amount: 8_000}); err != nil {
		t.Fatalf("Buy: %v", err)
	}

	// Sell 10 of the 40 units; the average price must not move.
	if _, err := svc.Sell(ctx, SellInput{UserID: user.ID, AssetID: asset.ID, Units: decimal.RequireFromString("10")}); err != nil {
		t.Fatalf("Sell: %v", err)
	}

	holding, err := repo.GetHolding(ctx, user.ID, asset.ID)
	if err != nil {
		t.Fatalf("GetHolding: %v", err)
	}
	if !holding.UnitsOwned.Equal(decimal.RequireFromString("30")) {
		t.Fatalf("remaining units: got %s, want 30", holding.UnitsOwned)
	}
	if !holding.AvgBuyPrice.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("avg changed on partial sell: %s", holding.AvgBuyPrice)
	}
	if holding.InvestedAmount != 6_000 { // 30 units at avg 200
		t.Fatalf("invested: got %d, want 6000", holding.InvestedAmount)
	}
}

func TestBuy_Rejections(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 1_000)
	asset := seedAsset(t, repo, "NIFTYBEES", "100", 2.0)
	ctx := context.Background()

	if _, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: asset.ID, Amount: 1_001}); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: uuid.New(), Amount: 100}); !errors.Is(err, store.ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}

	inactive := seedAsset(t, repo, "DELISTED", "50", 2.0)
	inactive.Active = false
	if err := repo.CreateAsset(ctx, inactive); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if _, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: inactive.ID, Amount: 100}); !errors.Is(err, ErrAssetInactive) {
		t.Fatalf("expected ErrAssetInactive, got %v", err)
	}
}

func TestSell_InsufficientUnits(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 5_000)
	asset := seedAsset(t, repo, "NIFTYBEES", "100", 2.0)
	ctx := context.Background()

	if _, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: asset.ID, Amount: 2_000}); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if _, err := svc.Sell(ctx, SellInput{UserID: user.ID, AssetID: asset.ID, Units: decimal.RequireFromString("20.0001")}); !errors.Is(err, ErrInsufficientUnits) {
		t.Fatalf("expected ErrInsufficientUnits, got %v", err)
	}
	if _, err := svc.Sell(ctx, SellInput{UserID: uuid.New(), AssetID: asset.ID, Units: decimal.RequireFromString("1")}); !errors.Is(err, store.ErrHoldingNotFound) {
		t.Fatalf("expected ErrHoldingNotFound, got %v", err)
	}
}

func TestBuySell_UsesNamedCashAccount(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user, wallet := seedUser(t, svc, "asha", 10_000)
	asset := seedAsset(t, repo, "NIFTYBEES", "100", 2.0)
	ctx := context.Background()

	bank, err := svc.LinkBankAccount(ctx, user.ID, "HDFC Savings")
	if err != nil {
		t.Fatalf("LinkBankAccount: %v", err)
	}
	if _, err := svc.Credit(ctx, bank.ID, 5_000, domain.EntryIncome); err != nil {
		t.Fatalf("Credit bank: %v", err)
	}

	// Buy against the bank account: its balance pays, the wallet does not.
	if _, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: asset.ID, AccountID: bank.ID, Amount: 3_000}); err != nil {
		t.Fatalf("Buy from bank: %v", err)
	}
	if got := walletBalance(t, repo, bank.ID); got != 2_000 {
		t.Fatalf("bank balance: got %d, want 2000", got)
	}
	if got := walletBalance(t, repo, wallet.ID); got != 10_000 {
		t.Fatalf("wallet was debited instead of the bank account: %d", got)
	}

	// Sell back into the bank account.
	if _, err := svc.Sell(ctx, SellInput{UserID: user.ID, AssetID: asset.ID, AccountID: bank.ID, Units: decimal.RequireFromString("30")}); err != nil {
		t.Fatalf("Sell into bank: %v", err)
	}
	if got := walletBalance(t, repo, bank.ID); got != 5_000 {
		t.Fatalf("bank balance after sell: got %d, want 5000", got)
	}

	// Someone else's account is off limits in either direction.
	intruder, _ := seedUser(t, svc, "ravi", 1_000)
	if _, err := svc.Buy(ctx, BuyInput{UserID: intruder.ID, AssetID: asset.ID, AccountID: bank.ID, Amount: 100}); !errors.Is(err, ErrForbiddenAccount) {
		t.Fatalf("expected ErrForbiddenAccount, got %v", err)
	}
}

func TestBuySell_MarketBusyWhileAssetHeld(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 10_000)
	asset := seedAsset(t, repo, "NIFTYBEES", "100", 2.0)
	ctx := context.Background()

	if _, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: asset.ID, Amount: 2_000}); err != nil {
		t.Fatalf("Buy: %v", err)
	}

	// While a tick holds the asset, buys and sells exhaust their bounded
	// retries and surface the busy error instead of queueing.
	unlock := svc.assetLocks.lock(asset.ID)
	if _, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: asset.ID, Amount: 1_000}); !errors.Is(err, ErrMarketBusy) {
		t.Fatalf("Buy under held asset: expected ErrMarketBusy, got %v", err)
	}
	if _, err := svc.Sell(ctx, SellInput{UserID: user.ID, AssetID: asset.ID, Units: decimal.RequireFromString("5")}); !errors.Is(err, ErrMarketBusy) {
		t.Fatalf("Sell under held asset: expected ErrMarketBusy, got %v", err)
	}
	unlock()

	// Once the asset is released the same buy goes through.
	if _, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: asset.ID, Amount: 1_000}); err != nil {
		t.Fatalf("Buy after release: %v", err)
	}
}

func TestPortfolio_AggregatesPositions(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 20_000)
	stock := seedAsset(t, repo, "NIFTYBEES", "100", 2.0)
	gold := seedAsset(t, repo, "GOLDBEES", "500", 1.0)
	ctx := context.Background()

	if _, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: stock.ID, Amount: 10_000}); err != nil {
		t.Fatalf("Buy stock: %v", err)
	}
	if _, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: gold.ID, Amount: 5_000}); err != nil {
		t.Fatalf("Buy gold: %v", err)
	}

	// Stock doubles; gold is flat.
	if err := svc.OverridePrice(ctx, uuid.Nil, stock.ID, decimal.RequireFromString("200")); err != nil {
		t.Fatalf("OverridePrice: %v", err)
	}

	portfolio, err := svc.Portfolio(ctx, user.ID)
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	if len(portfolio.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(portfolio.Positions))
	}
	if portfolio.TotalInvested != 15_000 {
		t.Fatalf("total invested: got %d, want 15000", portfolio.TotalInvested)
	}
	if portfolio.CurrentValue != 25_000 { // 100 units at 200 + 10 units at 500
		t.Fatalf("current value: got %d, want 25000", portfolio.CurrentValue)
	}
	if portfolio.TotalProfitLoss != 10_000 {
		t.Fatalf("profit: got %d, want 10000", portfolio.TotalProfitLoss)
	}
}
