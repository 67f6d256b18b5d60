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

// capturePublisher records published events so tests can assert on the
// notifications a flow emitted.
type capturePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	Exchange   string
	RoutingKey string
	Body       interface{}
}

func (p *capturePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return nil
}

func (p *capturePublisher) Close() {}

func (p *capturePublisher) byRoutingKey(key string) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []capturedEvent
	for _, e := range p.events {
		if e.RoutingKey == key {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *store.MemoryRepository, *capturePublisher) {
	t.Helper()
	repo := store.NewMemoryRepository()
	pub := &capturePublisher{}
	svc := NewService(repo, pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(svc.Close)
	return svc, repo, pub
}

// seedUser registers a user and funds the wallet through a regular income
// entry, so seeded balances obey the ledger invariant too.
func seedUser(t *testing.T, svc *Service, username string, balance int64) (*domain.User, *domain.Account) {
	t.Helper()
	user, wallet, err := svc.RegisterUser(context.Background(), RegisterInput{
		Username:       username,
		Email:          username + "@example.com",
		OpeningBalance: balance,
	})
	if err != nil {
		t.Fatalf("RegisterUser(%s): %v", username, err)
	}
	return user, wallet
}

func seedAsset(t *testing.T, repo *store.MemoryRepository, symbol string, price string, volatility float64) *domain.MarketAsset {
	t.Helper()
	asset := &domain.MarketAsset{
		ID:                uuid.New(),
		Symbol:            symbol,
		Name:              symbol,
		Type:              domain.AssetStock,
		CurrentPrice:      decimal.RequireFromString(price),
		PreviousPrice:     decimal.RequireFromString(price),
		VolatilityPercent: volatility,
		Active:            true,
		LastUpdated:       time.Now(),
	}
	if err := repo.CreateAsset(context.Background(), asset); err != nil {
		t.Fatalf("CreateAsset(%s): %v", symbol, err)
	}
	return asset
}

func walletBalance(t *testing.T, repo *store.MemoryRepository, accountID uuid.UUID) int64 {
	t.Helper()
	account, err := repo.GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	return account.Balance
}
