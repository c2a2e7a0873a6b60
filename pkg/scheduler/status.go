package scheduler

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the scheduler-status() external contract from spec §6.
type Status struct {
	Running      bool
	Uptime       time.Duration
	LastPrice    decimal.Decimal
	LastTickAt   time.Time
	Suspended    bool
	TotalTicks   int64
	ExecutedCount int64
	ErrorCount   int64
}

// Status reports the Scheduler's current running state and tick totals.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	var uptime time.Duration
	if s.running {
		uptime = time.Since(s.startedAt)
	}

	return Status{
		Running:       s.running,
		Uptime:        uptime,
		LastPrice:     s.stats.LastPrice,
		LastTickAt:    s.stats.LastTickAt,
		Suspended:     s.suspended,
		TotalTicks:    s.stats.TotalTicks,
		ExecutedCount: s.stats.ExecutedCount,
		ErrorCount:    s.stats.ErrorCount,
	}
}
