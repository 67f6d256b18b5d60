/**
 * @description
 * This file implements the post-commit side-effect pipeline. Every
 * committed expense is handed to a background worker that runs two
 * advisory checks: the category budget check and the fraud-rule scan.
 * Both are strictly observational. They raise alerts and flags but can
 * never fail, delay or undo the expense that triggered them.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paisavault/ledger-service/internal/domain"
	"github.com/paisavault/ledger-service/internal/store"
)

type sideEffectJob struct {
	expense domain.Expense
}

// enqueueSideEffects hands a committed expense to the pipeline worker.
// If the queue is full or the service is shutting down, the checks run
// synchronously instead of being dropped: delivery is at-least-once.
// Holding the read lock across the send keeps Close from closing the
// queue between the check and the send.
func (s *Service) enqueueSideEffects(expense domain.Expense) {
	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		s.runSideEffects(sideEffectJob{expense: expense})
		return
	}

	s.pending.Add(1)
	select {
	case s.jobs <- sideEffectJob{expense: expense}:
		s.closeMu.RUnlock()
	default:
		s.closeMu.RUnlock()
		s.logger.Warn("side-effect queue full, running inline", "expense_id", expense.ID)
		s.runSideEffects(sideEffectJob{expense: expense})
		s.pending.Done()
	}
}

func (s *Service) runSideEffects(job sideEffectJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.retrySideEffect(func() error { return s.checkBudget(ctx, job.expense) }); err != nil {
		s.logger.Error("budget check failed after retries", "expense_id", job.expense.ID, "error", err)
	}
	if err := s.retrySideEffect(func() error { return s.checkFraud(ctx, job.expense) }); err != nil {
		s.logger.Error("fraud check failed after retries", "expense_id", job.expense.ID, "error", err)
	}
}

func (s *Service) retrySideEffect(fn func() error) error {
	var err error
	for attempt := 0; attempt < sideEffectAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		time.Sleep(sideEffectBackoff * time.Duration(attempt+1))
	}
	return err
}

// checkBudget recomputes spend-to-date for the expense's category and
// month from the expense rows themselves and publishes an alert when the
// total crosses the configured threshold or limit. No budget configured
// means no check.
func (s *Service) checkBudget(ctx context.Context, expense domain.Expense) error {
	year, month := expense.OccurredAt.Year(), expense.OccurredAt.Month()
	budget, err := s.repo.GetBudget(ctx, expense.UserID, expense.Category, year, month)
	if err != nil {
		if errors.Is(err, store.ErrBudgetNotFound) {
			return nil
		}
		return err
	}

	spent, err := s.repo.SumExpenses(ctx, expense.UserID, expense.Category, year, month)
	if err != nil {
		return err
	}

	status := budgetStatus(spent, budget.LimitAmount, budget.AlertThresholdPercent)
	if status == domain.BudgetOK {
		return nil
	}

	usedPercent := 0.0
	if budget.LimitAmount > 0 {
		usedPercent = float64(spent) / float64(budget.LimitAmount) * 100
	}

	s.logger.Info("budget alert",
		"user_id", expense.UserID,
		"category", expense.Category,
		"status", status,
		"spent", spent,
		"limit", budget.LimitAmount,
	)

	event := domain.BudgetAlertEvent{
		UserID:      expense.UserID,
		Category:    expense.Category,
		Status:      status,
		Spent:       spent,
		Limit:       budget.LimitAmount,
		UsedPercent: usedPercent,
		OccurredAt:  s.now(),
	}
	if err := s.publisher.Publish(ctx, "notifications_exchange", domain.RouteBudgetAlert, event); err != nil {
		s.logger.Error("failed to publish budget alert", "user_id", expense.UserID, "error", err)
	}
	return nil
}

// budgetStatus classifies spend-to-date against a limit. EXCEEDED wins
// over WARNING when both conditions hold.
func budgetStatus(spent, limit int64, thresholdPercent int) domain.BudgetStatus {
	if limit <= 0 {
		return domain.BudgetOK
	}
	if spent >= limit {
		return domain.BudgetExceeded
	}
	threshold := limit * int64(thresholdPercent) / 100
	if spent >= threshold {
		return domain.BudgetWarning
	}
	return domain.BudgetOK
}

// checkFraud evaluates every active rule against the expense. Each match
// raises one PENDING flag; HIGH and CRITICAL matches also publish an
// immediate alert. Multiple rules may match the same expense.
func (s *Service) checkFraud(ctx context.Context, expense domain.Expense) error {
	rules, err := s.repo.ListActiveFraudRules(ctx)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		matched, description, err := s.evaluateRule(ctx, rule, expense)
		if err != nil {
			s.logger.Error("fraud rule evaluation failed", "rule", rule.Name, "expense_id", expense.ID, "error", err)
			continue
		}
		if !matched {
			continue
		}

		flag := domain.FraudFlag{
			ID:          uuid.New(),
			RuleID:      rule.ID,
			UserID:      expense.UserID,
			ExpenseID:   expense.ID,
			Amount:      expense.Amount,
			Severity:    rule.Severity,
			Description: description,
			Status:      domain.FlagPending,
			CreatedAt:   s.now(),
		}
		if err := s.repo.CreateFraudFlag(ctx, &flag); err != nil {
			return err
		}

		s.logger.Warn("fraud flag raised",
			"rule", rule.Name,
			"severity", rule.Severity,
			"user_id", expense.UserID,
			"expense_id", expense.ID,
			"amount", expense.Amount,
		)

		if rule.Severity.Urgent() {
			event := domain.FraudAlertEvent{
				FlagID:      flag.ID,
				UserID:      expense.UserID,
				RuleName:    rule.Name,
				Severity:    rule.Severity,
				Amount:      expense.Amount,
				Description: description,
				OccurredAt:  flag.CreatedAt,
			}
			if err := s.publisher.Publish(ctx, "notifications_exchange", domain.RouteFraudAlert, event); err != nil {
				s.logger.Error("failed to publish fraud alert", "flag_id", flag.ID, "error", err)
			}
		}
	}
	return nil
}

// evaluateRule dispatches on the rule's condition variant. The match
// description becomes the flag's human-readable reason.
func (s *Service) evaluateRule(ctx context.Context, rule domain.FraudRule, expense domain.Expense) (bool, string, error) {
	switch kind := rule.Kind.(type) {
	case domain.AbsoluteRule:
		if expense.Amount >= kind.Threshold {
			return true, fmt.Sprintf("amount %d paise meets absolute threshold %d", expense.Amount, kind.Threshold), nil
		}
		return false, "", nil

	case domain.MultiplierRule:
		avg, err := s.repo.AverageExpenseAmount(ctx, expense.UserID)
		if err != nil {
			return false, "", err
		}
		// A user with no spending history has no baseline to deviate from.
		if avg <= 0 {
			return false, "", nil
		}
		if float64(expense.Amount) >= kind.Factor*avg {
			return true, fmt.Sprintf("amount %d paise is %.1fx the user's average of %.0f", expense.Amount, float64(expense.Amount)/avg, avg), nil
		}
		return false, "", nil

	case domain.FrequencyRule:
		since := expense.OccurredAt.Add(-kind.Window)
		count, err := s.repo.CountUserTransactionsSince(ctx, expense.UserID, since)
		if err != nil {
			return false, "", err
		}
		if count >= kind.Count {
			return true, fmt.Sprintf("%d transactions within %s, threshold %d", count, kind.Window, kind.Count), nil
		}
		return false, "", nil

	default:
		return false, "", fmt.Errorf("unknown rule kind %T", rule.Kind)
	}
}

// FraudFlags lists every flag raised against the user's expenses.
func (s *Service) FraudFlags(ctx context.Context, userID uuid.UUID) ([]domain.FraudFlag, error) {
	return s.repo.ListFraudFlagsByUser(ctx, userID)
}

// ReviewFraudFlag moves a flag to CLEARED or CONFIRMED after human review.
func (s *Service) ReviewFraudFlag(ctx context.Context, actorID, flagID uuid.UUID, status domain.FlagStatus) error {
	if status != domain.FlagCleared && status != domain.FlagConfirmed {
		return domain.Validationf("status", "must be CLEARED or CONFIRMED, got %s", status)
	}
	if err := s.repo.UpdateFraudFlagStatus(ctx, flagID, status); err != nil {
		return err
	}
	s.audit(ctx, "ADMIN", &actorID, "reviewed fraud flag as "+string(status), "fraud_flag", &flagID)
	return nil
}
