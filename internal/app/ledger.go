/**
 * @description
 * This file implements the ledger engine: atomic debit/credit of a single
 * account plus the income/expense operations built on top of it. Every
 * mutation validates before touching state, runs under the account's lock
 * and commits the balance change together with its append-only ledger
 * entry, so an observer can never see an entry whose balance snapshot
 * disagrees with the stored balance.
 */

package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/paisavault/ledger-service/internal/domain"
	"github.com/paisavault/ledger-service/internal/store"
)

// ExpenseInput describes one expense to record against an account.
type ExpenseInput struct {
	UserID      uuid.UUID
	AccountID   uuid.UUID
	Amount      int64 // in paise
	Category    string
	Subcategory *string
	Merchant    *string
	PaymentMode string
	Description string
}

// IncomeInput describes one income addition to an account.
type IncomeInput struct {
	UserID    uuid.UUID
	AccountID uuid.UUID
	Amount    int64 // in paise
	Source    string
	Category  string
}

// ExpenseResult reports a committed expense.
type ExpenseResult struct {
	Expense domain.Expense
	Entry   domain.LedgerEntry
}

// IncomeResult reports a committed income addition.
type IncomeResult struct {
	Income domain.Income
	Entry  domain.LedgerEntry
}

// Debit removes amount from the account and appends the matching ledger
// entry. It rejects non-positive amounts before any mutation and surfaces
// store.ErrInsufficientFunds when the balance cannot cover the amount.
func (s *Service) Debit(ctx context.Context, accountID uuid.UUID, amount int64, kind domain.EntryKind) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, domain.Validationf("amount", "must be positive, got %d", amount)
	}
	if !kind.Debit() {
		return nil, domain.Validationf("kind", "%s is not a debit kind", kind)
	}

	unlock := s.accountLocks.lock(accountID)
	defer unlock()

	entry, err := s.repo.ApplyLedgerEntry(ctx, store.EntryMutation{
		AccountID: accountID,
		Kind:      kind,
		Amount:    amount,
		At:        s.now(),
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Credit adds amount to the account. Symmetric to Debit without the
// sufficiency check.
func (s *Service) Credit(ctx context.Context, accountID uuid.UUID, amount int64, kind domain.EntryKind) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, domain.Validationf("amount", "must be positive, got %d", amount)
	}
	if kind.Debit() {
		return nil, domain.Validationf("kind", "%s is not a credit kind", kind)
	}

	unlock := s.accountLocks.lock(accountID)
	defer unlock()

	entry, err := s.repo.ApplyLedgerEntry(ctx, store.EntryMutation{
		AccountID: accountID,
		Kind:      kind,
		Amount:    amount,
		At:        s.now(),
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordExpense debits the account, writes the paired Expense record in
// the same atomic unit and, once committed, hands the expense to the
// side-effect pipeline for budget and fraud evaluation.
func (s *Service) RecordExpense(ctx context.Context, in ExpenseInput) (*ExpenseResult, error) {
	if in.Amount <= 0 {
		return nil, domain.Validationf("amount", "must be positive, got %d", in.Amount)
	}
	if in.Category == "" {
		return nil, domain.Validationf("category", "must not be empty")
	}
	if in.PaymentMode == "" {
		in.PaymentMode = "UPI"
	}

	accountID := in.AccountID
	if accountID == uuid.Nil {
		wallet, err := s.repo.FindWalletByUserID(ctx, in.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve wallet: %w", err)
		}
		accountID = wallet.ID
	}

	expense := domain.Expense{
		ID:          uuid.New(),
		UserID:      in.UserID,
		AccountID:   accountID,
		Amount:      in.Amount,
		Category:    in.Category,
		Subcategory: in.Subcategory,
		Merchant:    in.Merchant,
		PaymentMode: in.PaymentMode,
		Description: in.Description,
		OccurredAt:  s.now(),
	}

	unlock := s.accountLocks.lock(accountID)
	entry, err := s.repo.ApplyExpense(ctx, &expense)
	unlock()
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "USER", &in.UserID, fmt.Sprintf("recorded expense of %d paise for %s", in.Amount, in.Category), "expense", &expense.ID)

	// Budget and fraud checks are advisory: they run after the expense has
	// committed and never affect its outcome.
	s.enqueueSideEffects(expense)

	return &ExpenseResult{Expense: expense, Entry: *entry}, nil
}

// RecordIncome credits the account and writes the paired Income record in
// the same atomic unit.
func (s *Service) RecordIncome(ctx context.Context, in IncomeInput) (*IncomeResult, error) {
	if in.Amount <= 0 {
		return nil, domain.Validationf("amount", "must be positive, got %d", in.Amount)
	}
	if in.Source == "" {
		return nil, domain.Validationf("source", "must not be empty")
	}

	accountID := in.AccountID
	if accountID == uuid.Nil {
		wallet, err := s.repo.FindWalletByUserID(ctx, in.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve wallet: %w", err)
		}
		accountID = wallet.ID
	}

	income := domain.Income{
		ID:         uuid.New(),
		UserID:     in.UserID,
		AccountID:  accountID,
		Amount:     in.Amount,
		Source:     in.Source,
		Category:   in.Category,
		OccurredAt: s.now(),
	}

	unlock := s.accountLocks.lock(accountID)
	entry, err := s.repo.ApplyIncome(ctx, &income)
	unlock()
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "USER", &in.UserID, fmt.Sprintf("added income of %d paise from %s", in.Amount, in.Source), "income", &income.ID)

	return &IncomeResult{Income: income, Entry: *entry}, nil
}

// audit appends an append-only action record. Audit failures are logged
// and never fail the operation that produced them.
func (s *Service) audit(ctx context.Context, actorType string, actorID *uuid.UUID, action, refType string, refID *uuid.UUID) {
	entry := domain.AuditEntry{
		ID:            uuid.New(),
		ActorType:     actorType,
		ActorID:       actorID,
		Action:        action,
		ReferenceType: &refType,
		ReferenceID:   refID,
		CreatedAt:     s.now(),
	}
	if err := s.repo.AppendAuditEntry(ctx, &entry); err != nil {
		s.logger.Warn("audit append failed", "action", action, "error", err)
	}
}
