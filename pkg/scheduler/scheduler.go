// Package scheduler drives the recurring tick loop that selects eligible
// DCA orders and dispatches them to the Swap Executor, grounded on the
// ticker/poll shape of fundbot's tracker package.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/blackhole-dca/dcaengine/pkg/orders"
	"github.com/blackhole-dca/dcaengine/pkg/priceoracle"
	"github.com/blackhole-dca/dcaengine/pkg/swap"
)

const (
	defaultTickInterval   = 60 * time.Second
	defaultHealthInterval = 5 * time.Minute
	defaultWorkerPoolSize = 5
	priceStaleAfter       = 10 * time.Minute
)

// SpotReader is the subset of priceoracle.Oracle the Scheduler needs.
type SpotReader interface {
	GetSpot(ctx context.Context, coinID string) priceoracle.Quote
}

// Executor is the subset of swap.Executor the Scheduler dispatches through.
type Executor interface {
	Execute(ctx context.Context, req swap.Request) swap.Result
}

// Config configures a Scheduler.
type Config struct {
	TickInterval   time.Duration
	HealthInterval time.Duration
	WorkerPoolSize int
	// CoinID resolves a from-symbol to the Price Oracle's coin identifier.
	CoinID func(fromSymbol string) (string, bool)
}

// Stats is the tick-statistics half of scheduler-status().
type Stats struct {
	TotalTicks   int64
	ExecutedCount int64
	ErrorCount   int64
	LastPrice    decimal.Decimal
	LastTickAt   time.Time
}

// Scheduler is the Execution Scheduler: a single cooperative loop over the
// Order Store, claiming eligible orders once per tick and dispatching them
// to the Swap Executor.
type Scheduler struct {
	cfg      Config
	store    orders.Store
	oracle   SpotReader
	executor Executor
	log      zerolog.Logger

	startedAt time.Time

	mu            sync.Mutex
	stats         Stats
	running       bool
	lastPriceAt   time.Time
	suspended     bool

	health *healthMonitor
}

// New builds a Scheduler. cfg zero values are replaced with defaults.
func New(cfg Config, store orders.Store, oracle SpotReader, executor Executor, log zerolog.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = defaultWorkerPoolSize
	}

	s := &Scheduler{
		cfg:      cfg,
		store:    store,
		oracle:   oracle,
		executor: executor,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
	s.health = newHealthMonitor(s)
	return s
}

// Run blocks, driving the tick loop and the health loop until ctx is
// cancelled. The tick loop is not re-entrant: time.Ticker drops ticks that
// arrive while the previous one is still being processed, so a slow tick
// simply defers the next one rather than overlapping it.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.running = true
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	healthTicker := time.NewTicker(s.cfg.HealthInterval)
	defer healthTicker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-healthTicker.C:
			s.health.check(ctx)
		}
	}
}

// tick runs one full iteration: claim, evaluate, dispatch, sweep, record.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if s.suspended {
		s.mu.Unlock()
		s.log.Warn().Msg("tick skipped, scheduler suspended")
		return
	}
	s.mu.Unlock()

	claimed, err := s.store.ClaimForTick(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("claim_for_tick failed")
		s.recordTick(decimal.Zero, 0, 1)
		return
	}

	prices := make(map[string]decimal.Decimal)
	var executedCount, errCount int64
	var lastPrice decimal.Decimal

	sem := make(chan struct{}, s.cfg.WorkerPoolSize)
	var wg sync.WaitGroup
	var resultMu sync.Mutex

	for _, order := range claimed {
		price, ok := prices[order.FromSymbol]
		if !ok {
			price, ok = s.resolvePrice(ctx, order.FromSymbol)
			if ok {
				prices[order.FromSymbol] = price
			}
		}
		if !ok {
			continue
		}
		if price.Sign() <= 0 {
			continue
		}
		lastPrice = price

		eligible, primeNow := orders.Eligible(order, price)
		if primeNow {
			if err := s.store.MarkPrimed(ctx, order.ID); err != nil {
				s.log.Error().Err(err).Str("order_id", order.ID.String()).Msg("mark_primed failed")
			}
		}
		if !eligible {
			continue
		}

		order := order
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			ok := s.dispatch(ctx, order)
			resultMu.Lock()
			if ok {
				executedCount++
			} else {
				errCount++
			}
			resultMu.Unlock()
		}()
	}
	wg.Wait()

	swept, err := s.store.SweepExpired(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("sweep_expired failed")
	} else if swept > 0 {
		s.log.Info().Int64("count", swept).Msg("swept expired orders")
	}

	s.recordTick(lastPrice, executedCount, errCount)
}

// dispatch runs the Executor for one eligible order and applies its
// result to the Order Store. It reports whether the attempt succeeded.
func (s *Scheduler) dispatch(ctx context.Context, order orders.Order) bool {
	fromAmount, ok := order.FromAmount()
	if !ok {
		s.markFailed(ctx, order.ID, "stored from-amount-raw is not a valid integer")
		return false
	}

	result := s.executor.Execute(ctx, swap.Request{
		OwnerKey:    order.Owner,
		FromSymbol:  order.FromSymbol,
		ToSymbol:    order.ToSymbol,
		FromAmount:  decimal.NewFromBigInt(fromAmount, 0),
		SlippageBps: order.MaxSlippageBps,
	})

	if !result.Success {
		reason := "execution failed"
		if result.Err != nil {
			reason = result.Err.Error()
		}
		s.markFailed(ctx, order.ID, reason)
		return false
	}

	if err := s.store.MarkExecuted(ctx, order.ID, result.SwapTxHash.Hex(), time.Now()); err != nil {
		s.log.Error().Err(err).Str("order_id", order.ID.String()).Msg("mark_executed failed")
		return false
	}

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("tx_hash", result.SwapTxHash.Hex()).
		Msg("order executed")
	return true
}

func (s *Scheduler) markFailed(ctx context.Context, id uuid.UUID, reason string) {
	if err := s.store.MarkFailed(ctx, id, reason); err != nil {
		s.log.Error().Err(err).Str("order_id", id.String()).Msg("mark_failed failed")
	}
}

// resolvePrice reads the spot price driving fromSymbol's trigger, skipping
// the order (rather than failing the tick) when no price or coin mapping
// is available, per §4.8 step 1: a non-positive or unresolved price skips
// the tick for that price, it is never treated as a failure.
func (s *Scheduler) resolvePrice(ctx context.Context, fromSymbol string) (decimal.Decimal, bool) {
	if s.cfg.CoinID == nil {
		return decimal.Zero, false
	}
	coinID, ok := s.cfg.CoinID(fromSymbol)
	if !ok {
		return decimal.Zero, false
	}
	quote := s.oracle.GetSpot(ctx, coinID)
	s.mu.Lock()
	s.lastPriceAt = time.Now()
	s.mu.Unlock()
	return quote.Price, true
}

func (s *Scheduler) recordTick(lastPrice decimal.Decimal, executed, errs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalTicks++
	s.stats.ExecutedCount += executed
	s.stats.ErrorCount += errs
	s.stats.LastTickAt = time.Now()
	if lastPrice.Sign() > 0 {
		s.stats.LastPrice = lastPrice
	}
}
