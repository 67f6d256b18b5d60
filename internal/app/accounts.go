/**
 * @description
 * This file covers account provisioning and ledger reads: registering a
 * user with their wallet, linking bank accounts, and listing accounts and
 * ledger entries with ownership enforced.
 */

package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/paisavault/ledger-service/internal/domain"
)

// RegisterInput describes a new user to provision. OpeningBalance seeds
// the wallet through a regular INCOME entry, so even the first paisa is on
// the ledger.
type RegisterInput struct {
	Username       string
	Email          string
	Mobile         string
	OpeningBalance int64 // in paise
}

// RegisterUser creates the user and their wallet account. Every user has
// exactly one wallet; it is created here and never elsewhere.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (*domain.User, *domain.Account, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, nil, domain.Validationf("username", "must not be empty")
	}
	if in.OpeningBalance < 0 {
		return nil, nil, domain.Validationf("opening_balance", "must not be negative, got %d", in.OpeningBalance)
	}

	now := s.now()
	user := domain.User{
		ID:        uuid.New(),
		Username:  username,
		Email:     strings.TrimSpace(in.Email),
		Mobile:    strings.TrimSpace(in.Mobile),
		Active:    true,
		CreatedAt: now,
	}
	if err := s.repo.CreateUser(ctx, &user); err != nil {
		return nil, nil, err
	}

	wallet := domain.Account{
		ID:        uuid.New(),
		UserID:    user.ID,
		Type:      domain.AccountWallet,
		Name:      "Wallet",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateAccount(ctx, &wallet); err != nil {
		return nil, nil, err
	}

	if in.OpeningBalance > 0 {
		result, err := s.RecordIncome(ctx, IncomeInput{
			UserID:    user.ID,
			AccountID: wallet.ID,
			Amount:    in.OpeningBalance,
			Source:    "OPENING_BALANCE",
			Category:  "opening",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to seed opening balance: %w", err)
		}
		wallet.Balance = result.Entry.BalanceAfter
	}

	return &user, &wallet, nil
}

// LinkBankAccount creates an additional BANK account for the user.
func (s *Service) LinkBankAccount(ctx context.Context, userID uuid.UUID, name string) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Validationf("name", "must not be empty")
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	now := s.now()
	account := domain.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      domain.AccountBank,
		Name:      name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateAccount(ctx, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Accounts lists every account the user owns.
func (s *Service) Accounts(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	return s.repo.ListAccountsByUser(ctx, userID)
}

// AccountEntries returns the account's ledger, enforcing that the caller
// owns the account.
func (s *Service) AccountEntries(ctx context.Context, userID, accountID uuid.UUID) ([]domain.LedgerEntry, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, ErrForbiddenAccount
	}
	return s.repo.ListEntriesByAccount(ctx, accountID)
}
