/**
 * @description
 * This file implements the valuation service: net-worth aggregation across
 * the wallet, linked bank accounts and investment holdings at live market
 * prices. Every call recomputes from the authoritative tables; the cached
 * snapshot is refreshed as a by-product and only served when explicitly
 * requested as a cached read.
 */

package app

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/paisavault/ledger-service/internal/domain"
	"github.com/paisavault/ledger-service/internal/store"
)

// NetWorth computes the user's current net worth from source-of-truth
// balances and live prices, then upserts the valuation cache. A cache
// write failure is logged and does not fail the read.
func (s *Service) NetWorth(ctx context.Context, userID uuid.UUID) (*domain.ValuationSnapshot, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	accounts, err := s.repo.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var wallet, banks int64
	for _, account := range accounts {
		switch account.Type {
		case domain.AccountWallet:
			wallet += account.Balance
		case domain.AccountBank:
			banks += account.Balance
		}
	}

	holdings, err := s.repo.ListHoldingsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var investments int64
	for _, holding := range holdings {
		asset, err := s.repo.GetAsset(ctx, holding.AssetID)
		if err != nil {
			return nil, err
		}
		investments += holding.UnitsOwned.Mul(asset.CurrentPrice).Round(0).IntPart()
	}

	snapshot := domain.ValuationSnapshot{
		UserID:       userID,
		Wallet:       wallet,
		BankAccounts: banks,
		Investments:  investments,
		NetWorth:     wallet + banks + investments,
		CalculatedAt: s.now(),
	}

	if err := s.repo.UpsertValuationSnapshot(ctx, &snapshot); err != nil {
		s.logger.Warn("valuation cache write failed", "user_id", userID, "error", err)
	}

	return &snapshot, nil
}

// CachedNetWorth serves the last computed snapshot without touching the
// authoritative tables. It falls back to a fresh computation when no
// snapshot exists yet.
func (s *Service) CachedNetWorth(ctx context.Context, userID uuid.UUID) (*domain.ValuationSnapshot, error) {
	snapshot, err := s.repo.GetValuationSnapshot(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrSnapshotNotFound) {
			return s.NetWorth(ctx, userID)
		}
		return nil, err
	}
	return snapshot, nil
}
