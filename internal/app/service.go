/**
 * @description
 * This file contains the core Service struct for the ledger-service. The
 * Service orchestrates every money movement: direct debits and credits,
 * peer-to-peer transfers, investment buys and sells, market ticks, the
 * post-commit side-effect pipeline and net-worth valuation. It coordinates
 * between the store repository and the message broker.
 *
 * Key invariants it upholds:
 * - Mutations on one account are serialized through a per-account lock, so
 *   two concurrent spends observe a strictly ordered sequence of balances.
 * - A market tick for an asset is exclusive against buys and sells of that
 *   asset; contended buys retry a bounded number of times before failing.
 * - Side effects (budget and fraud checks) run after the triggering
 *   expense commits and can never undo it.
 *
 * @dependencies
 * - context, log/slog, math/rand, sync, time: Standard Go libraries.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Event publishing for notifications.
 */

package app

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/paisavault/ledger-service/internal/store"
	"github.com/paisavault/ledger-service/pkg/rabbitmq"
)

var (
	ErrSelfTransfer        = errors.New("cannot transfer to yourself")
	ErrRecipientNotFound   = errors.New("recipient not found")
	ErrRecipientInactive   = errors.New("recipient account is inactive")
	ErrInsufficientUnits   = errors.New("insufficient units held")
	ErrAssetInactive       = errors.New("market asset is inactive")
	ErrMarketBusy          = errors.New("market is busy, try again")
	ErrTransferRateLimited = errors.New("transfer rate limit reached")
	ErrForbiddenAccount    = errors.New("account belongs to another user")
)

const (
	// assetLockAttempts bounds how often a buy/sell retries acquiring an
	// asset that a tick currently holds before surfacing ErrMarketBusy.
	assetLockAttempts = 3
	assetLockBackoff  = 25 * time.Millisecond

	sideEffectAttempts = 3
	sideEffectBackoff  = 50 * time.Millisecond

	sideEffectQueueSize = 256
)

// RateLimiter is the advisory limiter consulted before a transfer.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the ledger-service.
type Service struct {
	repo      store.Repository
	publisher rabbitmq.Publisher
	logger    *slog.Logger

	now func() time.Time

	accountLocks *lockTable
	assetLocks   *lockTable

	rngMu sync.Mutex
	rng   *rand.Rand

	jobs       chan sideEffectJob
	pending    sync.WaitGroup
	workerDone chan struct{}
	closeOnce  sync.Once
	closeMu    sync.RWMutex
	closed     bool

	transferLimiter RateLimiter
	transferLimit   int
	transferWindow  time.Duration
}

// NewService creates a new ledger service instance and starts its
// side-effect worker. Callers must Close the service when done.
func NewService(repo store.Repository, publisher rabbitmq.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = &rabbitmq.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:         repo,
		publisher:    publisher,
		logger:       logger,
		now:          time.Now,
		accountLocks: newLockTable(),
		assetLocks:   newLockTable(),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		jobs:         make(chan sideEffectJob, sideEffectQueueSize),
		workerDone:   make(chan struct{}),
	}
	go s.runSideEffectWorker()
	return s
}

// SetClock injects a deterministic time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetRandSeed reseeds the price-simulation random source so market
// movements are reproducible.
func (s *Service) SetRandSeed(seed int64) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	s.rng = rand.New(rand.NewSource(seed))
}

// SetTransferRateLimiter wires an advisory limiter for outgoing transfers.
// A nil limiter or non-positive limit disables the check.
func (s *Service) SetTransferRateLimiter(limiter RateLimiter, limit int, window time.Duration) {
	s.transferLimiter = limiter
	s.transferLimit = limit
	s.transferWindow = window
}

// Close drains the side-effect queue and stops the worker.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		s.closeMu.Unlock()
		s.pending.Wait()
		close(s.jobs)
		<-s.workerDone
	})
}

// FlushSideEffects blocks until every queued side-effect job has run.
// Intended for tests that assert on pipeline outcomes.
func (s *Service) FlushSideEffects() {
	s.pending.Wait()
}

func (s *Service) randFloat() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}
