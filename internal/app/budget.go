/**
 * @description
 * This file covers budget configuration and the on-demand budget status
 * read. The stored budget is pure configuration; spend-to-date is always
 * recomputed from expense rows at read time.
 */

package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/paisavault/ledger-service/internal/domain"
)

// BudgetInput describes one monthly category limit to create or replace.
type BudgetInput struct {
	UserID                uuid.UUID
	Category              string
	Year                  int
	Month                 time.Month
	LimitAmount           int64 // in paise
	AlertThresholdPercent int
}

// BudgetReport is the budget joined with recomputed spend-to-date.
type BudgetReport struct {
	Budget      domain.Budget       `json:"budget"`
	Spent       int64               `json:"spent"` // in paise
	Status      domain.BudgetStatus `json:"status"`
	UsedPercent float64             `json:"used_percent"`
}

// SetBudget creates or replaces the limit for (user, category, month).
func (s *Service) SetBudget(ctx context.Context, in BudgetInput) (*domain.Budget, error) {
	if in.Category == "" {
		return nil, domain.Validationf("category", "must not be empty")
	}
	if in.LimitAmount <= 0 {
		return nil, domain.Validationf("limit_amount", "must be positive, got %d", in.LimitAmount)
	}
	if in.AlertThresholdPercent <= 0 || in.AlertThresholdPercent > 100 {
		in.AlertThresholdPercent = 80
	}
	if in.Month < time.January || in.Month > time.December {
		return nil, domain.Validationf("month", "must be 1-12, got %d", in.Month)
	}

	now := s.now()
	if in.Year == 0 {
		in.Year = now.Year()
	}

	budget := domain.Budget{
		ID:                    uuid.New(),
		UserID:                in.UserID,
		Category:              in.Category,
		Year:                  in.Year,
		Month:                 in.Month,
		LimitAmount:           in.LimitAmount,
		AlertThresholdPercent: in.AlertThresholdPercent,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.UpsertBudget(ctx, &budget); err != nil {
		return nil, err
	}
	return &budget, nil
}

// BudgetStatus recomputes spend-to-date for one category budget. A zero
// year or month defaults to the current period.
func (s *Service) BudgetStatus(ctx context.Context, userID uuid.UUID, category string, year int, month time.Month) (*BudgetReport, error) {
	if year == 0 || month == 0 {
		now := s.now()
		year, month = now.Year(), now.Month()
	}

	budget, err := s.repo.GetBudget(ctx, userID, category, year, month)
	if err != nil {
		return nil, err
	}

	spent, err := s.repo.SumExpenses(ctx, userID, category, year, month)
	if err != nil {
		return nil, err
	}

	report := BudgetReport{
		Budget: *budget,
		Spent:  spent,
		Status: budgetStatus(spent, budget.LimitAmount, budget.AlertThresholdPercent),
	}
	if budget.LimitAmount > 0 {
		report.UsedPercent = float64(spent) / float64(budget.LimitAmount) * 100
	}
	return &report, nil
}
