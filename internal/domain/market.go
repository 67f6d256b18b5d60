/**
 * @description
 * This file defines the market and investment domain models: simulated
 * market assets, per-user holdings, the append-only investment transaction
 * log and immutable price-history samples.
 *
 * @notes
 * - Asset prices and unit counts use shopspring/decimal at 4-decimal
 *   precision. Currency totals (invested amount, sale proceeds) remain
 *   `int64` paise like every other amount crossing the service boundary.
 * - Holding.CurrentValue is a read-optimization cache refreshed by the
 *   market revaluation pass; units and invested amount are the source of
 *   truth.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnitPrecision is the fixed number of decimal places for holding units
// and simulated asset prices.
const UnitPrecision = 4

// HoldingDustEpsilon is the unit count below which a holding is treated as
// empty and deleted after a sell, guarding against floating-point dust.
var HoldingDustEpsilon = decimal.New(1, -6) // 1e-6

// AssetType groups market assets by class.
type AssetType string

const (
	AssetStock  AssetType = "STOCK"
	AssetCrypto AssetType = "CRYPTO"
	AssetFund   AssetType = "FUND"
	AssetGold   AssetType = "GOLD"
)

// MarketAsset is one simulated market instrument. Its price fields are
// mutated only by the market simulator tick or an explicit admin override.
type MarketAsset struct {
	ID                uuid.UUID       `json:"id"`
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	Type              AssetType       `json:"type"`
	CurrentPrice      decimal.Decimal `json:"current_price"`  // paise per unit
	PreviousPrice     decimal.Decimal `json:"previous_price"` // paise per unit
	DayChangePercent  float64         `json:"day_change_percent"`
	VolatilityPercent float64         `json:"volatility_percent"`
	Active            bool            `json:"active"`
	LastUpdated       time.Time       `json:"last_updated"`
}

// PriceSample is one immutable price-history row written on every tick.
type PriceSample struct {
	ID         uuid.UUID       `json:"id"`
	AssetID    uuid.UUID       `json:"asset_id"`
	Price      decimal.Decimal `json:"price"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Holding is one user's position in one asset. AvgBuyPrice is the running
// blended average purchase price; partial sells leave it unchanged.
type Holding struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	AssetID        uuid.UUID       `json:"asset_id"`
	UnitsOwned     decimal.Decimal `json:"units_owned"`
	AvgBuyPrice    decimal.Decimal `json:"avg_buy_price"`   // paise per unit
	InvestedAmount int64           `json:"invested_amount"` // in paise
	CurrentValue   int64           `json:"current_value"`   // cache, in paise
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// InvestmentKind classifies investment transactions.
type InvestmentKind string

const (
	InvestmentBuy  InvestmentKind = "BUY"
	InvestmentSell InvestmentKind = "SELL"
)

// InvestmentTransaction is one append-only buy or sell record, the
// investment analogue of a ledger entry.
type InvestmentTransaction struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	AssetID      uuid.UUID       `json:"asset_id"`
	Kind         InvestmentKind  `json:"kind"`
	Units        decimal.Decimal `json:"units"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"` // paise per unit
	TotalAmount  int64           `json:"total_amount"`   // in paise
	CreatedAt    time.Time       `json:"created_at"`
}

// PortfolioPosition is one holding joined with its asset's live price.
type PortfolioPosition struct {
	Holding      Holding         `json:"holding"`
	Asset        MarketAsset     `json:"asset"`
	CurrentValue int64           `json:"current_value"` // units × price, in paise
	ProfitLoss   int64           `json:"profit_loss"`   // current value − invested
	Units        decimal.Decimal `json:"units"`
}

// Portfolio aggregates all of a user's positions.
type Portfolio struct {
	Positions         []PortfolioPosition `json:"positions"`
	TotalInvested     int64               `json:"total_invested"`
	CurrentValue      int64               `json:"current_value"`
	TotalProfitLoss   int64               `json:"total_profit_loss"`
	ProfitLossPercent float64             `json:"profit_loss_percent"`
}

// ValuationSnapshot is the cached net-worth breakdown for one user. It is
// refreshed opportunistically and is never the source of truth.
type ValuationSnapshot struct {
	UserID       uuid.UUID `json:"user_id"`
	Wallet       int64     `json:"wallet"`
	BankAccounts int64     `json:"bank_accounts"`
	Investments  int64     `json:"investments"`
	NetWorth     int64     `json:"net_worth"`
	CalculatedAt time.Time `json:"calculated_at"`
}
