/**
 * @description
 * This file implements the market simulator: the global price tick, the
 * admin price override and read access to assets and price history. Each
 * tick moves every active asset by a random step biased 60/40 upward, with
 * magnitude bounded by the asset's volatility, then revalues all holdings
 * against the new prices.
 */

package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paisavault/ledger-service/internal/domain"
)

// priceFloor is the minimum simulated price. Assets never go to zero, so a
// holding is never wiped out by the simulator alone.
var priceFloor = decimal.RequireFromString("0.01")

// TickResult summarizes one completed market tick.
type TickResult struct {
	AssetsMoved int
	Advanced    int
	Declined    int
	StartedAt   time.Time
	Duration    time.Duration
}

// Tick advances every active asset by one simulated price step and then
// refreshes cached holding values. Per-asset work holds that asset's lock
// exclusively, so buys and sells observe either the old price with the old
// holding value or the new price with the new one, never a mix.
func (s *Service) Tick(ctx context.Context) (*TickResult, error) {
	start := s.now()
	assets, err := s.repo.ListActiveAssets(ctx)
	if err != nil {
		return nil, err
	}

	result := TickResult{StartedAt: start}
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// The listing above is only an iteration order. The step itself is
		// computed from a fresh read inside the asset's critical section, so
		// a price written while the tick is mid-flight (an admin override,
		// another tick) is never clobbered by a step off a stale snapshot.
		unlock := s.assetLocks.lock(asset.ID)
		changePercent, err := s.stepAssetLocked(ctx, asset.ID, start)
		unlock()
		if err != nil {
			s.logger.Error("price tick failed for asset", "asset_id", asset.ID, "symbol", asset.Symbol, "error", err)
			continue
		}

		result.AssetsMoved++
		if changePercent >= 0 {
			result.Advanced++
		} else {
			result.Declined++
		}
	}

	if err := s.repo.RevalueHoldings(ctx); err != nil {
		s.logger.Error("holding revaluation failed", "error", err)
	}

	result.Duration = s.now().Sub(start)
	s.logger.Info("market tick complete",
		"assets_moved", result.AssetsMoved,
		"advanced", result.Advanced,
		"declined", result.Declined,
		"duration", result.Duration,
	)
	return &result, nil
}

// stepAssetLocked re-reads the asset and applies one simulated price step.
// Callers must hold the asset's lock.
func (s *Service) stepAssetLocked(ctx context.Context, assetID uuid.UUID, at time.Time) (float64, error) {
	asset, err := s.repo.GetAsset(ctx, assetID)
	if err != nil {
		return 0, err
	}
	newPrice, changePercent := s.nextPrice(*asset)
	if err := s.repo.ApplyPriceTick(ctx, assetID, newPrice, changePercent, at); err != nil {
		return 0, err
	}
	return changePercent, nil
}

// nextPrice computes one simulated step: direction is up with probability
// 0.6, magnitude is uniform in [0, volatility%], and the result is floored
// at 0.01 and rounded to 4 decimal places.
func (s *Service) nextPrice(asset domain.MarketAsset) (decimal.Decimal, float64) {
	direction := 1.0
	if s.randFloat() >= 0.6 {
		direction = -1.0
	}
	changePercent := direction * s.randFloat() * asset.VolatilityPercent

	factor := decimal.NewFromFloat(1 + changePercent/100)
	newPrice := asset.CurrentPrice.Mul(factor).Round(domain.UnitPrecision)
	if newPrice.LessThan(priceFloor) {
		newPrice = priceFloor
	}
	return newPrice, changePercent
}

// OverridePrice sets an asset's price directly, bypassing the simulator.
// Used by operators to seed prices or correct a runaway asset. The same
// revaluation pass as a tick follows, so cached holding values stay
// consistent with the forced price.
func (s *Service) OverridePrice(ctx context.Context, actorID uuid.UUID, assetID uuid.UUID, price decimal.Decimal) error {
	if !price.IsPositive() {
		return domain.Validationf("price", "must be positive, got %s", price)
	}

	asset, err := s.repo.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}

	price = price.Round(domain.UnitPrecision)
	if price.LessThan(priceFloor) {
		price = priceFloor
	}

	var changePercent float64
	if asset.CurrentPrice.IsPositive() {
		delta, _ := price.Sub(asset.CurrentPrice).Div(asset.CurrentPrice).Float64()
		changePercent = delta * 100
	}

	unlock := s.assetLocks.lock(assetID)
	err = s.repo.ApplyPriceTick(ctx, assetID, price, changePercent, s.now())
	unlock()
	if err != nil {
		return err
	}

	if err := s.repo.RevalueHoldings(ctx); err != nil {
		s.logger.Error("holding revaluation failed after override", "asset_id", assetID, "error", err)
	}

	s.audit(ctx, "ADMIN", &actorID, "overrode price of "+asset.Symbol+" to "+price.String(), "market_asset", &assetID)
	return nil
}

// AssetInput describes a new simulated asset to list on the market.
type AssetInput struct {
	Symbol            string
	Name              string
	Type              domain.AssetType
	InitialPrice      decimal.Decimal // paise per unit
	VolatilityPercent float64
}

// CreateAsset lists a new asset on the simulated market.
func (s *Service) CreateAsset(ctx context.Context, actorID uuid.UUID, in AssetInput) (*domain.MarketAsset, error) {
	if in.Symbol == "" {
		return nil, domain.Validationf("symbol", "must not be empty")
	}
	if !in.InitialPrice.IsPositive() {
		return nil, domain.Validationf("initial_price", "must be positive, got %s", in.InitialPrice)
	}
	if in.VolatilityPercent <= 0 || in.VolatilityPercent > 50 {
		return nil, domain.Validationf("volatility_percent", "must be in (0, 50], got %f", in.VolatilityPercent)
	}
	switch in.Type {
	case domain.AssetStock, domain.AssetCrypto, domain.AssetFund, domain.AssetGold:
	default:
		return nil, domain.Validationf("type", "unknown asset type %s", in.Type)
	}

	price := in.InitialPrice.Round(domain.UnitPrecision)
	asset := domain.MarketAsset{
		ID:                uuid.New(),
		Symbol:            in.Symbol,
		Name:              in.Name,
		Type:              in.Type,
		CurrentPrice:      price,
		PreviousPrice:     price,
		VolatilityPercent: in.VolatilityPercent,
		Active:            true,
		LastUpdated:       s.now(),
	}
	if err := s.repo.CreateAsset(ctx, &asset); err != nil {
		return nil, err
	}

	s.audit(ctx, "ADMIN", &actorID, "listed market asset "+asset.Symbol, "market_asset", &asset.ID)
	return &asset, nil
}

// MarketOverview returns every active asset with its live price fields.
func (s *Service) MarketOverview(ctx context.Context) ([]domain.MarketAsset, error) {
	return s.repo.ListActiveAssets(ctx)
}

// PriceHistory returns the most recent price samples for an asset, newest
// first, capped at limit.
func (s *Service) PriceHistory(ctx context.Context, assetID uuid.UUID, limit int) ([]domain.PriceSample, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if _, err := s.repo.GetAsset(ctx, assetID); err != nil {
		return nil, err
	}
	return s.repo.ListPriceHistory(ctx, assetID, limit)
}
