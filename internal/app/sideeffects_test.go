package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/paisavault/ledger-service/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestBudgetCheck_WarningThenExceeded(t *testing.T) {
	svc, _, pub := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 10_000)
	ctx := context.Background()

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc.SetClock(fixedClock(now))

	if _, err := svc.SetBudget(ctx, BudgetInput{
		UserID:                user.ID,
		Category:              "food",
		Year:                  2026,
		Month:                 time.March,
		LimitAmount:           1_000,
		AlertThresholdPercent: 80,
	}); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}

	// 850 of 1000 is past the 80% threshold but under the limit.
	if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 850, Category: "food"}); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	svc.FlushSideEffects()

	alerts := pub.byRoutingKey(domain.RouteBudgetAlert)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 budget alert, got %d", len(alerts))
	}
	warning := alerts[0].Body.(domain.BudgetAlertEvent)
	if warning.Status != domain.BudgetWarning {
		t.Fatalf("expected WARNING, got %s", warning.Status)
	}
	if warning.Spent != 850 || warning.Limit != 1_000 {
		t.Fatalf("unexpected alert figures: %+v", warning)
	}

	// Another 200 pushes the recomputed total past the limit.
	if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 200, Category: "food"}); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	svc.FlushSideEffects()

	alerts = pub.byRoutingKey(domain.RouteBudgetAlert)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 budget alerts, got %d", len(alerts))
	}
	exceeded := alerts[1].Body.(domain.BudgetAlertEvent)
	if exceeded.Status != domain.BudgetExceeded {
		t.Fatalf("expected EXCEEDED, got %s", exceeded.Status)
	}
	if exceeded.Spent != 1_050 {
		t.Fatalf("expected recomputed spend 1050, got %d", exceeded.Spent)
	}
}

func TestBudgetCheck_IgnoresOtherCategoriesAndMonths(t *testing.T) {
	svc, _, pub := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 10_000)
	ctx := context.Background()

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc.SetClock(fixedClock(now))

	if _, err := svc.SetBudget(ctx, BudgetInput{
		UserID: user.ID, Category: "food", Year: 2026, Month: time.March,
		LimitAmount: 1_000, AlertThresholdPercent: 80,
	}); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}

	// Different category: no alert even though the amount is large.
	if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 5_000, Category: "travel"}); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	svc.FlushSideEffects()

	if alerts := pub.byRoutingKey(domain.RouteBudgetAlert); len(alerts) != 0 {
		t.Fatalf("expected no budget alerts, got %d", len(alerts))
	}
}

func TestBudgetStatus_DefaultsPeriodFromClock(t *testing.T) {
	svc, _, _ := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 10_000)
	ctx := context.Background()

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc.SetClock(fixedClock(now))

	if _, err := svc.SetBudget(ctx, BudgetInput{
		UserID: user.ID, Category: "food", Year: 2026, Month: time.March,
		LimitAmount: 1_000, AlertThresholdPercent: 80,
	}); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 400, Category: "food"}); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	svc.FlushSideEffects()

	// Zero year/month resolves against the injected clock, not wall time.
	report, err := svc.BudgetStatus(ctx, user.ID, "food", 0, 0)
	if err != nil {
		t.Fatalf("BudgetStatus: %v", err)
	}
	if report.Budget.Year != 2026 || report.Budget.Month != time.March {
		t.Fatalf("resolved wrong period: %d-%d", report.Budget.Year, report.Budget.Month)
	}
	if report.Spent != 400 {
		t.Fatalf("spent: got %d, want 400", report.Spent)
	}
}

func TestFraudCheck_AbsoluteRule(t *testing.T) {
	svc, repo, pub := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 100_000)
	ctx := context.Background()

	rule := &domain.FraudRule{
		ID:       uuid.New(),
		Name:     "large-expense",
		Kind:     domain.AbsoluteRule{Threshold: 50_000},
		Severity: domain.SeverityHigh,
		Active:   true,
	}
	if err := repo.CreateFraudRule(ctx, rule); err != nil {
		t.Fatalf("CreateFraudRule: %v", err)
	}

	// Below threshold: no flag.
	if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 49_999, Category: "misc"}); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	svc.FlushSideEffects()
	flags, _ := svc.FraudFlags(ctx, user.ID)
	if len(flags) != 0 {
		t.Fatalf("expected no flags below threshold, got %d", len(flags))
	}

	// At threshold: flag plus an urgent alert for HIGH severity.
	if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 50_000, Category: "misc"}); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	svc.FlushSideEffects()
	flags, _ = svc.FraudFlags(ctx, user.ID)
	if len(flags) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(flags))
	}
	if flags[0].Status != domain.FlagPending {
		t.Fatalf("new flag should be PENDING, got %s", flags[0].Status)
	}
	if flags[0].Severity != domain.SeverityHigh {
		t.Fatalf("flag severity: got %s", flags[0].Severity)
	}
	if alerts := pub.byRoutingKey(domain.RouteFraudAlert); len(alerts) != 1 {
		t.Fatalf("expected 1 fraud alert for HIGH severity, got %d", len(alerts))
	}
}

func TestFraudCheck_MultiplierRuleNeedsHistory(t *testing.T) {
	svc, repo, pub := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 100_000)
	ctx := context.Background()

	rule := &domain.FraudRule{
		ID:       uuid.New(),
		Name:     "spike-vs-average",
		Kind:     domain.MultiplierRule{Factor: 5},
		Severity: domain.SeverityMedium,
		Active:   true,
	}
	if err := repo.CreateFraudRule(ctx, rule); err != nil {
		t.Fatalf("CreateFraudRule: %v", err)
	}

	// A lone expense is its own average, so a factor above 1 can never
	// match it.
	if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 10_000, Category: "misc"}); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	svc.FlushSideEffects()
	flags, _ := svc.FraudFlags(ctx, user.ID)
	if len(flags) != 0 {
		t.Fatalf("expected no flags without history, got %d", len(flags))
	}

	// Build a baseline of small spends.
	for i := 0; i < 4; i++ {
		if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 100, Category: "misc"}); err != nil {
			t.Fatalf("RecordExpense: %v", err)
		}
	}
	svc.FlushSideEffects()

	// The check runs after the spike has committed, so the average
	// includes it: (10400+60000)/6 = 11733 and 5x is 58667, which the
	// 60000 spike clears.
	if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 60_000, Category: "misc"}); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	svc.FlushSideEffects()

	flags, _ = svc.FraudFlags(ctx, user.ID)
	if len(flags) != 1 {
		t.Fatalf("expected 1 flag for the spike, got %d", len(flags))
	}
	// MEDIUM severity is not urgent: no immediate alert.
	if alerts := pub.byRoutingKey(domain.RouteFraudAlert); len(alerts) != 0 {
		t.Fatalf("expected no fraud alerts for MEDIUM severity, got %d", len(alerts))
	}
}

func TestFraudCheck_FrequencyRule(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	// Seed well before the detection window so the opening-balance income
	// does not count toward the frequency.
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc.SetClock(fixedClock(base.Add(-2 * time.Hour)))
	user, _ := seedUser(t, svc, "asha", 100_000)

	rule := &domain.FraudRule{
		ID:       uuid.New(),
		Name:     "rapid-fire",
		Kind:     domain.FrequencyRule{Count: 5, Window: time.Hour},
		Severity: domain.SeverityCritical,
		Active:   true,
	}
	if err := repo.CreateFraudRule(ctx, rule); err != nil {
		t.Fatalf("CreateFraudRule: %v", err)
	}

	for i := 0; i < 5; i++ {
		svc.SetClock(fixedClock(base.Add(time.Duration(i) * time.Minute)))
		if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 100, Category: "misc"}); err != nil {
			t.Fatalf("RecordExpense %d: %v", i, err)
		}
		// Drain the pipeline per expense so each check sees exactly the
		// records committed so far.
		svc.FlushSideEffects()
	}

	flags, _ := svc.FraudFlags(ctx, user.ID)
	if len(flags) != 1 {
		t.Fatalf("expected the 5th expense in the window to raise 1 flag, got %d", len(flags))
	}
	if flags[0].Severity != domain.SeverityCritical {
		t.Fatalf("flag severity: got %s", flags[0].Severity)
	}
}

func TestSideEffects_NeverFailTheExpense(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user, wallet := seedUser(t, svc, "asha", 10_000)
	ctx := context.Background()

	// A rule the dispatcher cannot evaluate must not affect the commit.
	rule := &domain.FraudRule{
		ID:       uuid.New(),
		Name:     "broken",
		Kind:     nil,
		Severity: domain.SeverityLow,
		Active:   true,
	}
	if err := repo.CreateFraudRule(ctx, rule); err != nil {
		t.Fatalf("CreateFraudRule: %v", err)
	}

	if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 500, Category: "misc"}); err != nil {
		t.Fatalf("RecordExpense failed because of a side effect: %v", err)
	}
	svc.FlushSideEffects()

	if got := walletBalance(t, repo, wallet.ID); got != 9_500 {
		t.Fatalf("expense not committed: balance %d", got)
	}
}

func TestReviewFraudFlag(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user, _ := seedUser(t, svc, "asha", 100_000)
	ctx := context.Background()

	rule := &domain.FraudRule{
		ID:       uuid.New(),
		Name:     "large-expense",
		Kind:     domain.AbsoluteRule{Threshold: 1_000},
		Severity: domain.SeverityLow,
		Active:   true,
	}
	if err := repo.CreateFraudRule(ctx, rule); err != nil {
		t.Fatalf("CreateFraudRule: %v", err)
	}
	if _, err := svc.RecordExpense(ctx, ExpenseInput{UserID: user.ID, Amount: 2_000, Category: "misc"}); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	svc.FlushSideEffects()

	flags, _ := svc.FraudFlags(ctx, user.ID)
	if len(flags) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(flags))
	}

	if err := svc.ReviewFraudFlag(ctx, uuid.Nil, flags[0].ID, domain.FlagCleared); err != nil {
		t.Fatalf("ReviewFraudFlag: %v", err)
	}
	flags, _ = svc.FraudFlags(ctx, user.ID)
	if flags[0].Status != domain.FlagCleared {
		t.Fatalf("expected CLEARED, got %s", flags[0].Status)
	}

	if err := svc.ReviewFraudFlag(ctx, uuid.Nil, flags[0].ID, domain.FlagPending); err == nil {
		t.Fatalf("expected rejection of PENDING as review outcome")
	}
}
