package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paisavault/ledger-service/internal/domain"
	"github.com/paisavault/ledger-service/internal/store"
)

func TestTick_MovesPricesWithinVolatilityBounds(t *testing.T) {
	svc, repo, _ := newTestService(t)
	asset := seedAsset(t, repo, "NIFTYBEES", "100", 2.0)
	svc.SetRandSeed(42)
	ctx := context.Background()

	previous := asset.CurrentPrice
	for i := 0; i < 50; i++ {
		result, err := svc.Tick(ctx)
		if err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
		if result.AssetsMoved != 1 {
			t.Fatalf("Tick %d moved %d assets, want 1", i, result.AssetsMoved)
		}

		current, err := repo.GetAsset(ctx, asset.ID)
		if err != nil {
			t.Fatalf("GetAsset: %v", err)
		}

		// Each step is bounded by the asset's volatility. A small slack
		// covers the 4-decimal rounding of the stored price.
		ratio, _ := current.CurrentPrice.Sub(previous).Div(previous).Float64()
		if ratio > 0.0201 || ratio < -0.0201 {
			t.Fatalf("Tick %d moved price by %.4f%%, beyond 2%% volatility", i, ratio*100)
		}
		if !current.PreviousPrice.Equal(previous) {
			t.Fatalf("Tick %d: previous price not carried, got %s want %s", i, current.PreviousPrice, previous)
		}
		previous = current.CurrentPrice
	}
}

func TestTick_ReproducibleWithSameSeed(t *testing.T) {
	run := func() []string {
		svc, repo, _ := newTestService(t)
		asset := seedAsset(t, repo, "NIFTYBEES", "100", 2.0)
		svc.SetRandSeed(7)
		ctx := context.Background()

		var prices []string
		for i := 0; i < 10; i++ {
			if _, err := svc.Tick(ctx); err != nil {
				t.Fatalf("Tick: %v", err)
			}
			current, err := repo.GetAsset(ctx, asset.ID)
			if err != nil {
				t.Fatalf("GetAsset: %v", err)
			}
			prices = append(prices, current.CurrentPrice.String())
		}
		return prices
	}

	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("tick %d diverged: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestTick_PriceNeverFallsBelowFloor(t *testing.T) {
	svc, repo, _ := newTestService(t)
	asset := seedAsset(t, repo, "PENNY", "0.01", 50.0)
	svc.SetRandSeed(99)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if _, err := svc.Tick(ctx); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		current, err := repo.GetAsset(ctx, asset.ID)
		if err != nil {
			t.Fatalf("GetAsset: %v", err)
		}
		if current.CurrentPrice.LessThan(decimal.RequireFromString("0.01")) {
			t.Fatalf("price fell below floor: %s", current.CurrentPrice)
		}
	}
}

func TestTick_RevaluesHoldings(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 10_000)
	asset := seedAsset(t, repo, "NIFTYBEES", "100", 2.0)
	ctx := context.Background()

	if _, err := svc.Buy(ctx, BuyInput{UserID: user.ID, AssetID: asset.ID, Amount: 5_000}); err != nil {
		t.Fatalf("Buy: %v", err)
	}

	if err := svc.OverridePrice(ctx, uuid.Nil, asset.ID, decimal.RequireFromString("120")); err != nil {
		t.Fatalf("OverridePrice: %v", err)
	}

	holding, err := repo.GetHolding(ctx, user.ID, asset.ID)
	if err != nil {
		t.Fatalf("GetHolding: %v", err)
	}
	if holding.CurrentValue != 6_000 { // 50 units at 120
		t.Fatalf("cached holding value: got %d, want 6000", holding.CurrentValue)
	}
}

func TestTick_RecordsPriceHistory(t *testing.T) {
	svc, repo, _ := newTestService(t)
	asset := seedAsset(t, repo, "NIFTYBEES", "100", 2.0)
	svc.SetRandSeed(1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Tick(ctx); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}

	history, err := svc.PriceHistory(ctx, asset.ID, 3)
	if err != nil {
		t.Fatalf("PriceHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(history))
	}
	for _, sample := range history {
		if sample.AssetID != asset.ID {
			t.Fatalf("sample for wrong asset: %s", sample.AssetID)
		}
	}
}

// raceListRepo lands an out-of-band price write right after the tick has
// taken its asset listing, simulating an admin override arriving while
// the tick is mid-flight.
type raceListRepo struct {
	*store.MemoryRepository
	assetID  uuid.UUID
	override decimal.Decimal
	once     sync.Once
}

func (r *raceListRepo) ListActiveAssets(ctx context.Context) ([]domain.MarketAsset, error) {
	assets, err := r.MemoryRepository.ListActiveAssets(ctx)
	if err != nil {
		return nil, err
	}
	r.once.Do(func() {
		_ = r.MemoryRepository.ApplyPriceTick(ctx, r.assetID, r.override, 0, time.Now())
	})
	return assets, nil
}

func TestTick_StepsFromFreshPriceNotListingSnapshot(t *testing.T) {
	inner := store.NewMemoryRepository()
	asset := seedAsset(t, inner, "NIFTYBEES", "100", 2.0)
	repo := &raceListRepo{
		MemoryRepository: inner,
		assetID:          asset.ID,
		override:         decimal.RequireFromString("1000"),
	}
	svc := NewService(repo, &capturePublisher{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(svc.Close)
	ctx := context.Background()

	if _, err := svc.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got, err := inner.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	// The step must be taken from the price the tick found under the
	// asset lock (1000), never from the stale listing snapshot (100).
	if !got.PreviousPrice.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("tick stepped from stale snapshot: previous=%s", got.PreviousPrice)
	}
	base := decimal.RequireFromString("1000")
	ratio, _ := got.CurrentPrice.Sub(base).Div(base).Float64()
	if ratio > 0.0201 || ratio < -0.0201 {
		t.Fatalf("tick moved price by %.4f%% off the fresh price", ratio*100)
	}
}

func TestOverridePrice_RejectsNonPositive(t *testing.T) {
	svc, repo, _ := newTestService(t)
	asset := seedAsset(t, repo, "NIFTYBEES", "100", 2.0)

	if err := svc.OverridePrice(context.Background(), uuid.Nil, asset.ID, decimal.Zero); err == nil {
		t.Fatalf("expected rejection of zero price")
	}
}
