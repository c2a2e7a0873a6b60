package scheduler

import (
	"context"
	"time"
)

// circuitOpenThreshold mirrors the oracle monitor's "5 consecutive failures
// opens the circuit" rule, applied here to consecutive Order Store
// unreachability observations instead of token-price deviations.
const circuitOpenThreshold = 5

// StoreHealth is the liveness check the health monitor needs from the Order
// Store, independent of any particular tick's claimed batch.
type StoreHealth interface {
	CountActive(ctx context.Context, ownerKey string) (int64, error)
}

// healthMonitor runs on its own, slower ticker and verifies the two
// conditions §4.8 names: the price oracle produced a finite value recently,
// and the Order Store is reachable. Repeated store-unreachable
// observations suspend the Scheduler; a later successful check un-suspends
// it, acting as a simple auto-restart.
type healthMonitor struct {
	s              *Scheduler
	consecutiveErr int
	lastHealthy    time.Time
}

func newHealthMonitor(s *Scheduler) *healthMonitor {
	return &healthMonitor{s: s, lastHealthy: time.Now()}
}

func (h *healthMonitor) check(ctx context.Context) {
	s := h.s

	s.mu.Lock()
	staleSince := s.lastPriceAt
	s.mu.Unlock()

	priceFresh := staleSince.IsZero() || time.Since(staleSince) < priceStaleAfter
	if !priceFresh {
		s.log.Warn().Time("last_price_at", staleSince).Msg("health: price oracle stale")
	}

	storeOK := h.probeStore(ctx)

	if storeOK {
		h.consecutiveErr = 0
		h.lastHealthy = time.Now()
		s.mu.Lock()
		if s.suspended {
			s.log.Info().Msg("health: order store reachable again, resuming scheduler")
		}
		s.suspended = false
		s.mu.Unlock()
		return
	}

	h.consecutiveErr++
	s.log.Error().Int("consecutive_failures", h.consecutiveErr).Msg("health: order store unreachable")

	if h.consecutiveErr >= circuitOpenThreshold {
		s.mu.Lock()
		s.suspended = true
		s.mu.Unlock()
		s.log.Error().Msg("health: circuit open, suspending scheduler")
	}
}

// probeStore exercises the store with a bounded, side-effect-free query.
func (h *healthMonitor) probeStore(ctx context.Context) bool {
	storeHealth, ok := h.s.store.(StoreHealth)
	if !ok {
		return true
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := storeHealth.CountActive(probeCtx, "__health_probe__")
	return err == nil
}
