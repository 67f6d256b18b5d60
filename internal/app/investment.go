/**
 * @description
 * This file implements the investment engine: buying and selling units of
 * simulated market assets against the user's cash accounts (the wallet by
 * default, or a named linked account). Unit counts are fixed
 * at 4 decimal places; the average buy price is the blended
 * total-invested / total-units and is left unchanged by partial sells.
 *
 * Buys and sells contend with the market tick on a per-asset lock. The
 * tick holds the lock exclusively; a buy or sell tries a bounded number of
 * times and surfaces ErrMarketBusy rather than queueing behind a long
 * revaluation pass.
 */

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paisavault/ledger-service/internal/domain"
	"github.com/paisavault/ledger-service/internal/store"
)

// BuyInput describes one requested asset purchase, denominated in money:
// the engine converts the amount to units at the asset's current price.
// AccountID selects the cash account to debit; zero means the wallet.
type BuyInput struct {
	UserID    uuid.UUID
	AssetID   uuid.UUID
	AccountID uuid.UUID
	Amount    int64 // in paise
}

// SellInput describes one requested sale of a unit quantity. AccountID
// selects the account credited with the proceeds; zero means the wallet.
type SellInput struct {
	UserID    uuid.UUID
	AssetID   uuid.UUID
	AccountID uuid.UUID
	Units     decimal.Decimal
}

// BuyResult reports a committed purchase.
type BuyResult struct {
	Txn     domain.InvestmentTransaction
	Holding domain.Holding
	Entry   domain.LedgerEntry
}

// SellResult reports a committed sale, including realized profit or loss
// against the blended cost basis of the units sold.
type SellResult struct {
	Txn        domain.InvestmentTransaction
	Proceeds   int64 // in paise
	CostBasis  int64 // in paise
	ProfitLoss int64 // in paise
	Entry      domain.LedgerEntry
}

// Buy purchases Amount worth of the asset at its current price. Units
// bought are rounded to 4 decimal places; the holding's average price is
// recomputed as total invested over total units.
func (s *Service) Buy(ctx context.Context, in BuyInput) (*BuyResult, error) {
	if in.Amount <= 0 {
		return nil, domain.Validationf("amount", "must be positive, got %d", in.Amount)
	}

	unlockAsset, ok := s.assetLocks.tryLock(in.AssetID, assetLockAttempts, assetLockBackoff)
	if !ok {
		return nil, ErrMarketBusy
	}
	defer unlockAsset()

	asset, err := s.repo.GetAsset(ctx, in.AssetID)
	if err != nil {
		return nil, err
	}
	if !asset.Active {
		return nil, ErrAssetInactive
	}
	if !asset.CurrentPrice.IsPositive() {
		return nil, domain.Validationf("asset", "%s has no positive price", asset.Symbol)
	}

	account, err := s.resolveCashAccount(ctx, in.UserID, in.AccountID)
	if err != nil {
		return nil, err
	}

	amount := decimal.NewFromInt(in.Amount)
	units := amount.DivRound(asset.CurrentPrice, domain.UnitPrecision)
	if units.IsZero() {
		return nil, domain.Validationf("amount", "too small to buy any units at current price")
	}

	now := s.now()
	holding, err := s.repo.GetHolding(ctx, in.UserID, in.AssetID)
	create := false
	switch {
	case errors.Is(err, store.ErrHoldingNotFound):
		create = true
		holding = &domain.Holding{
			ID:        uuid.New(),
			UserID:    in.UserID,
			AssetID:   in.AssetID,
			CreatedAt: now,
		}
	case err != nil:
		return nil, err
	}

	unitsAfter := holding.UnitsOwned.Add(units)
	investedAfter := holding.InvestedAmount + in.Amount
	avgAfter := decimal.NewFromInt(investedAfter).DivRound(unitsAfter, domain.UnitPrecision)

	txn := domain.InvestmentTransaction{
		ID:           uuid.New(),
		UserID:       in.UserID,
		AssetID:      in.AssetID,
		Kind:         domain.InvestmentBuy,
		Units:        units,
		PricePerUnit: asset.CurrentPrice,
		TotalAmount:  in.Amount,
		CreatedAt:    now,
	}

	unlockAccount := s.accountLocks.lock(account.ID)
	entry, err := s.repo.ApplyInvestmentBuy(ctx, store.BuyMutation{
		SourceAccountID: account.ID,
		Amount:          in.Amount,
		HoldingID:       holding.ID,
		UserID:          in.UserID,
		AssetID:         in.AssetID,
		UnitsAfter:      unitsAfter,
		AvgPriceAfter:   avgAfter,
		InvestedAfter:   investedAfter,
		CreateHolding:   create,
		Txn:             txn,
		At:              now,
	})
	unlockAccount()
	if err != nil {
		return nil, err
	}

	holding.UnitsOwned = unitsAfter
	holding.AvgBuyPrice = avgAfter
	holding.InvestedAmount = investedAfter
	holding.UpdatedAt = now

	s.audit(ctx, "USER", &in.UserID, fmt.Sprintf("bought %s units of %s for %d paise", units, asset.Symbol, in.Amount), "investment", &txn.ID)

	return &BuyResult{Txn: txn, Holding: *holding, Entry: *entry}, nil
}

// Sell disposes of the given unit quantity at the asset's current price,
// crediting the proceeds to the chosen cash account (the wallet unless an
// account is named). If the remaining units fall at or
// below the dust epsilon the holding is deleted entirely; otherwise the
// invested amount shrinks by the sold units at the unchanged average
// price.
func (s *Service) Sell(ctx context.Context, in SellInput) (*SellResult, error) {
	if !in.Units.IsPositive() {
		return nil, domain.Validationf("units", "must be positive, got %s", in.Units)
	}

	unlockAsset, ok := s.assetLocks.tryLock(in.AssetID, assetLockAttempts, assetLockBackoff)
	if !ok {
		return nil, ErrMarketBusy
	}
	defer unlockAsset()

	asset, err := s.repo.GetAsset(ctx, in.AssetID)
	if err != nil {
		return nil, err
	}

	holding, err := s.repo.GetHolding(ctx, in.UserID, in.AssetID)
	if err != nil {
		return nil, err
	}
	if in.Units.GreaterThan(holding.UnitsOwned) {
		return nil, ErrInsufficientUnits
	}

	account, err := s.resolveCashAccount(ctx, in.UserID, in.AccountID)
	if err != nil {
		return nil, err
	}

	units := in.Units.Round(domain.UnitPrecision)
	proceeds := units.Mul(asset.CurrentPrice).Round(0).IntPart()
	costBasis := units.Mul(holding.AvgBuyPrice).Round(0).IntPart()

	remaining := holding.UnitsOwned.Sub(units)
	remove := remaining.LessThanOrEqual(domain.HoldingDustEpsilon)

	var investedAfter int64
	if !remove {
		investedAfter = remaining.Mul(holding.AvgBuyPrice).Round(0).IntPart()
	}

	now := s.now()
	txn := domain.InvestmentTransaction{
		ID:           uuid.New(),
		UserID:       in.UserID,
		AssetID:      in.AssetID,
		Kind:         domain.InvestmentSell,
		Units:        units,
		PricePerUnit: asset.CurrentPrice,
		TotalAmount:  proceeds,
		CreatedAt:    now,
	}

	unlockAccount := s.accountLocks.lock(account.ID)
	entry, err := s.repo.ApplyInvestmentSell(ctx, store.SellMutation{
		TargetAccountID: account.ID,
		Amount:          proceeds,
		UserID:          in.UserID,
		AssetID:         in.AssetID,
		UnitsAfter:      remaining,
		InvestedAfter:   investedAfter,
		RemoveHolding:   remove,
		Txn:             txn,
		At:              now,
	})
	unlockAccount()
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "USER", &in.UserID, fmt.Sprintf("sold %s units of %s for %d paise", units, asset.Symbol, proceeds), "investment", &txn.ID)

	return &SellResult{
		Txn:        txn,
		Proceeds:   proceeds,
		CostBasis:  costBasis,
		ProfitLoss: proceeds - costBasis,
		Entry:      *entry,
	}, nil
}

// resolveCashAccount picks the money side of a buy or sell: the user's
// wallet by default, or an explicitly named account they own (e.g. a
// linked bank account).
func (s *Service) resolveCashAccount(ctx context.Context, userID, accountID uuid.UUID) (*domain.Account, error) {
	if accountID == uuid.Nil {
		account, err := s.repo.FindWalletByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve wallet: %w", err)
		}
		return account, nil
	}
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, ErrForbiddenAccount
	}
	return account, nil
}

// InvestmentHistory lists the user's buy and sell records, newest first.
func (s *Service) InvestmentHistory(ctx context.Context, userID uuid.UUID) ([]domain.InvestmentTransaction, error) {
	return s.repo.ListInvestmentTransactionsByUser(ctx, userID)
}

// Portfolio assembles every holding of the user joined with live asset
// prices, plus aggregate invested / current-value / profit-loss totals.
func (s *Service) Portfolio(ctx context.Context, userID uuid.UUID) (*domain.Portfolio, error) {
	holdings, err := s.repo.ListHoldingsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	portfolio := domain.Portfolio{Positions: make([]domain.PortfolioPosition, 0, len(holdings))}
	for _, holding := range holdings {
		asset, err := s.repo.GetAsset(ctx, holding.AssetID)
		if err != nil {
			return nil, err
		}
		value := holding.UnitsOwned.Mul(asset.CurrentPrice).Round(0).IntPart()
		portfolio.Positions = append(portfolio.Positions, domain.PortfolioPosition{
			Holding:      holding,
			Asset:        *asset,
			CurrentValue: value,
			ProfitLoss:   value - holding.InvestedAmount,
			Units:        holding.UnitsOwned,
		})
		portfolio.TotalInvested += holding.InvestedAmount
		portfolio.CurrentValue += value
	}
	portfolio.TotalProfitLoss = portfolio.CurrentValue - portfolio.TotalInvested
	if portfolio.TotalInvested > 0 {
		portfolio.ProfitLossPercent = float64(portfolio.TotalProfitLoss) / float64(portfolio.TotalInvested) * 100
	}
	return &portfolio, nil
}
