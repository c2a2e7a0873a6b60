package scheduler

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackhole-dca/dcaengine/pkg/dcaerr"
	"github.com/blackhole-dca/dcaengine/pkg/orders"
	"github.com/blackhole-dca/dcaengine/pkg/priceoracle"
	"github.com/blackhole-dca/dcaengine/pkg/swap"
)

type fakeStore struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]*orders.Order
	countErr    error
	claimErr    error
	sweepCalled int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[uuid.UUID]*orders.Order)}
}

func (f *fakeStore) add(o orders.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := o
	f.byID[o.ID] = &cp
}

func (f *fakeStore) Create(ctx context.Context, req orders.CreateRequest) (orders.Order, error) {
	return orders.Order{}, nil
}

func (f *fakeStore) List(ctx context.Context, ownerKey string, filter orders.Filter) ([]orders.Order, error) {
	return nil, nil
}

func (f *fakeStore) Get(ctx context.Context, ownerKey string, id uuid.UUID) (orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return orders.Order{}, dcaerr.New(dcaerr.NotFound, "not found")
	}
	return *o, nil
}

func (f *fakeStore) ClaimForTick(ctx context.Context) ([]orders.Order, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []orders.Order
	for _, o := range f.byID {
		if o.Status == orders.StatusActive && o.RetryCount < orders.MaxRetries {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkPrimed(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Primed = true
	return nil
}

func (f *fakeStore) MarkExecuted(ctx context.Context, id uuid.UUID, txHash string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Status = orders.StatusExecuted
	f.byID[id].ExecutionTxHash = txHash
	f.byID[id].ExecutedAt = &at
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.byID[id]
	o.RetryCount++
	o.LastFailureReason = reason
	if o.RetryCount >= orders.MaxRetries {
		o.Status = orders.StatusFailed
	}
	return nil
}

func (f *fakeStore) MarkCancelled(ctx context.Context, ownerKey string, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Status = orders.StatusCancelled
	return nil
}

func (f *fakeStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweepCalled++
	var count int64
	for _, o := range f.byID {
		if o.Status == orders.StatusActive && !o.ExpiresAt.After(now) {
			o.Status = orders.StatusExpired
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CountActive(ctx context.Context, ownerKey string) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return 0, nil
}

type fakeOracle struct {
	price decimal.Decimal
}

func (o *fakeOracle) GetSpot(ctx context.Context, coinID string) priceoracle.Quote {
	return priceoracle.Quote{Price: o.price, FetchedAt: time.Now()}
}

type fakeExecutor struct {
	result swap.Result
}

func (e *fakeExecutor) Execute(ctx context.Context, req swap.Request) swap.Result {
	return e.result
}

func testOrder(status orders.Status, condition orders.Condition, trigger string, primed bool) orders.Order {
	return orders.Order{
		ID:               uuid.New(),
		Owner:            "owner-1",
		Status:           status,
		FromSymbol:       "USDC",
		ToSymbol:         "XFI",
		FromAmountRaw:    big.NewInt(1_000_000).String(),
		TriggerPrice:     trigger,
		TriggerCondition: condition,
		Primed:           primed,
		MaxSlippageBps:   100,
		ExpiresAt:        time.Now().Add(time.Hour),
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
}

func coinIDFor(symbol string) (string, bool) {
	if symbol == "USDC" {
		return "usd-coin", true
	}
	return "", false
}

func TestScheduler_Tick_PrimesUnprimedOrder(t *testing.T) {
	store := newFakeStore()
	order := testOrder(orders.StatusActive, orders.ConditionAbove, "10", false)
	store.add(order)

	oracle := &fakeOracle{price: decimal.RequireFromString("9")}
	exec := &fakeExecutor{result: swap.Result{Success: true, SwapTxHash: common.HexToHash("0xswap")}}

	s := New(Config{TickInterval: time.Hour, HealthInterval: time.Hour, CoinID: coinIDFor}, store, oracle, exec, zerolog.Nop())
	s.tick(t.Context())

	got, err := store.Get(t.Context(), "owner-1", order.ID)
	require.NoError(t, err)
	assert.True(t, got.Primed)
	assert.Equal(t, orders.StatusActive, got.Status, "priming alone must not execute the order")
}

func TestScheduler_Tick_ExecutesPrimedEligibleOrder(t *testing.T) {
	store := newFakeStore()
	order := testOrder(orders.StatusActive, orders.ConditionAbove, "10", true)
	store.add(order)

	oracle := &fakeOracle{price: decimal.RequireFromString("11")}
	exec := &fakeExecutor{result: swap.Result{Success: true, SwapTxHash: common.HexToHash("0xswap")}}

	s := New(Config{TickInterval: time.Hour, HealthInterval: time.Hour, CoinID: coinIDFor}, store, oracle, exec, zerolog.Nop())
	s.tick(t.Context())

	got, err := store.Get(t.Context(), "owner-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusExecuted, got.Status)
	assert.Equal(t, common.HexToHash("0xswap").Hex(), got.ExecutionTxHash)

	status := s.Status()
	assert.Equal(t, int64(1), status.ExecutedCount)
}

func TestScheduler_Tick_FailedExecutionIncrementsRetry(t *testing.T) {
	store := newFakeStore()
	order := testOrder(orders.StatusActive, orders.ConditionAbove, "10", true)
	store.add(order)

	oracle := &fakeOracle{price: decimal.RequireFromString("11")}
	exec := &fakeExecutor{result: swap.Result{Success: false, Err: dcaerr.New(dcaerr.SlippageExceeded, "reverted")}}

	s := New(Config{TickInterval: time.Hour, HealthInterval: time.Hour, CoinID: coinIDFor}, store, oracle, exec, zerolog.Nop())
	s.tick(t.Context())

	got, err := store.Get(t.Context(), "owner-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusActive, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func TestScheduler_Tick_NonPositivePriceSkipsWithoutError(t *testing.T) {
	store := newFakeStore()
	order := testOrder(orders.StatusActive, orders.ConditionAbove, "10", true)
	store.add(order)

	oracle := &fakeOracle{price: decimal.Zero}
	exec := &fakeExecutor{result: swap.Result{Success: true}}

	s := New(Config{TickInterval: time.Hour, HealthInterval: time.Hour, CoinID: coinIDFor}, store, oracle, exec, zerolog.Nop())
	s.tick(t.Context())

	got, err := store.Get(t.Context(), "owner-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusActive, got.Status)

	status := s.Status()
	assert.Equal(t, int64(0), status.ExecutedCount)
	assert.Equal(t, int64(0), status.ErrorCount)
}

func TestScheduler_Tick_SweepsExpired(t *testing.T) {
	store := newFakeStore()
	order := testOrder(orders.StatusActive, orders.ConditionAbove, "10", true)
	order.ExpiresAt = time.Now().Add(-time.Minute)
	store.add(order)

	oracle := &fakeOracle{price: decimal.RequireFromString("11")}
	exec := &fakeExecutor{}

	s := New(Config{TickInterval: time.Hour, HealthInterval: time.Hour, CoinID: coinIDFor}, store, oracle, exec, zerolog.Nop())
	s.tick(t.Context())

	assert.Equal(t, 1, store.sweepCalled)
}

func TestHealthMonitor_SuspendsAfterRepeatedFailures(t *testing.T) {
	store := newFakeStore()
	store.countErr = assertErr{}
	oracle := &fakeOracle{price: decimal.RequireFromString("1")}
	exec := &fakeExecutor{}

	s := New(Config{TickInterval: time.Hour, HealthInterval: time.Hour, CoinID: coinIDFor}, store, oracle, exec, zerolog.Nop())

	for i := 0; i < circuitOpenThreshold; i++ {
		s.health.check(t.Context())
	}

	assert.True(t, s.Status().Suspended)
}

func TestHealthMonitor_ResumesOnceStoreRecovers(t *testing.T) {
	store := newFakeStore()
	store.countErr = assertErr{}
	oracle := &fakeOracle{price: decimal.RequireFromString("1")}
	exec := &fakeExecutor{}

	s := New(Config{TickInterval: time.Hour, HealthInterval: time.Hour, CoinID: coinIDFor}, store, oracle, exec, zerolog.Nop())
	for i := 0; i < circuitOpenThreshold; i++ {
		s.health.check(t.Context())
	}
	require.True(t, s.Status().Suspended)

	store.countErr = nil
	s.health.check(t.Context())
	assert.False(t, s.Status().Suspended)
}

type assertErr struct{}

func (assertErr) Error() string { return "store unreachable" }
