package priceoracle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// TTL is how long a fetched spot price is considered fresh, per spec §4.3.
const TTL = 30 * time.Minute

const chartTTL = 10 * time.Minute

// fallbackSpot is the deterministic sample returned for a coin id that has
// never been fetched successfully, so the scheduler can still make progress
// on a cold start against a dead upstream.
var fallbackSpot = decimal.NewFromInt(1)

// Oracle is the Price Oracle Cache of spec §4.3: a TTL cache in front of an
// external price API, with single-flight de-duplication per key and
// stale-fallback semantics on upstream failure.
type Oracle struct {
	source *httpSource
	spot   *cache[decimal.Decimal]
	chart  *cache[[]ChartPoint]
	group  singleflight.Group
	log    zerolog.Logger
}

// Config configures the Oracle's upstream HTTP source.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPTimeout time.Duration
}

// New builds an Oracle backed by a CoinGecko-shaped HTTP API.
func New(cfg Config, log zerolog.Logger) *Oracle {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Oracle{
		source: newHTTPSource(cfg.BaseURL, cfg.APIKey, timeout),
		spot:   newCache[decimal.Decimal](TTL),
		chart:  newCache[[]ChartPoint](chartTTL),
		log:    log.With().Str("component", "priceoracle").Logger(),
	}
}

// Quote is a spot price together with its staleness markers.
type Quote struct {
	Price     decimal.Decimal
	FetchedAt time.Time
	Degraded  bool
}

// GetSpot returns the current spot price for coinID, fetching from upstream
// on a cache miss. On upstream failure it returns the most recently stored
// value (even if stale) with Degraded=true; if nothing was ever fetched it
// returns a deterministic fallback sample so callers never stall.
func (o *Oracle) GetSpot(ctx context.Context, coinID string) Quote {
	now := time.Now()

	if entry, found, fresh := o.spot.get(coinID, now); found && fresh {
		return Quote{Price: entry.Value, FetchedAt: entry.FetchedAt}
	}

	v, err, _ := o.group.Do("spot:"+coinID, func() (interface{}, error) {
		return o.source.fetchSpot(ctx, coinID)
	})

	if err == nil {
		price := v.(decimal.Decimal)
		entry := o.spot.set(coinID, price, now)
		return Quote{Price: entry.Value, FetchedAt: entry.FetchedAt}
	}

	o.log.Warn().Err(err).Str("coin_id", coinID).Msg("spot price fetch failed, falling back to cache")

	if entry, found, _ := o.spot.get(coinID, now); found {
		return Quote{Price: entry.Value, FetchedAt: entry.FetchedAt, Degraded: true}
	}

	o.log.Error().Str("coin_id", coinID).Msg("no cached spot price available, using deterministic fallback")
	return Quote{Price: fallbackSpot, FetchedAt: now, Degraded: true}
}

// GetChart returns a market-chart series for coinID over horizonDays,
// applying the same cache/fallback discipline as GetSpot.
func (o *Oracle) GetChart(ctx context.Context, coinID string, horizonDays int) ([]ChartPoint, bool) {
	now := time.Now()
	key := fmt.Sprintf("%s:%d", coinID, horizonDays)

	if entry, found, fresh := o.chart.get(key, now); found && fresh {
		return entry.Value, false
	}

	v, err, _ := o.group.Do("chart:"+key, func() (interface{}, error) {
		return o.source.fetchChart(ctx, coinID, horizonDays)
	})

	if err == nil {
		points := v.([]ChartPoint)
		o.chart.set(key, points, now)
		return points, false
	}

	o.log.Warn().Err(err).Str("coin_id", coinID).Msg("chart fetch failed, falling back to cache")

	if entry, found, _ := o.chart.get(key, now); found {
		return entry.Value, true
	}

	return nil, true
}
