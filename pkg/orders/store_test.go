package orders

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewGormStore(db)
	require.NoError(t, err)
	return store
}

func TestGormStore_TableName(t *testing.T) {
	assert.Equal(t, "orders", Order{}.TableName())
}

func TestGormStore_CreateEnforcesActiveCap(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	for i := 0; i < MaxActivePerOwner; i++ {
		_, err := store.Create(ctx, CreateRequest{
			OwnerKey:         "owner-1",
			FromSymbol:       "USDC",
			ToSymbol:         "XFI",
			FromAmountRaw:    big.NewInt(1_000_000),
			TriggerPrice:     "1.5",
			TriggerCondition: ConditionAbove,
			MaxSlippageBps:   100,
		})
		require.NoError(t, err)
	}

	_, err := store.Create(ctx, CreateRequest{
		OwnerKey:         "owner-1",
		FromSymbol:       "USDC",
		ToSymbol:         "XFI",
		FromAmountRaw:    big.NewInt(1_000_000),
		TriggerPrice:     "1.5",
		TriggerCondition: ConditionAbove,
		MaxSlippageBps:   100,
	})
	require.Error(t, err)
}

func TestGormStore_ClaimForTick_ExcludesTerminalAndExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	active, err := store.Create(ctx, CreateRequest{
		OwnerKey:         "owner-1",
		FromSymbol:       "USDC",
		ToSymbol:         "XFI",
		FromAmountRaw:    big.NewInt(1_000_000),
		TriggerPrice:     "1.5",
		TriggerCondition: ConditionAbove,
		MaxSlippageBps:   100,
	})
	require.NoError(t, err)

	expiresSoon := time.Now().Add(-time.Minute)
	_, err = store.Create(ctx, CreateRequest{
		OwnerKey:         "owner-2",
		FromSymbol:       "USDC",
		ToSymbol:         "XFI",
		FromAmountRaw:    big.NewInt(1_000_000),
		TriggerPrice:     "1.5",
		TriggerCondition: ConditionAbove,
		MaxSlippageBps:   100,
		ExpiresAt:        &expiresSoon,
	})
	require.NoError(t, err)

	cancelled, err := store.Create(ctx, CreateRequest{
		OwnerKey:         "owner-3",
		FromSymbol:       "USDC",
		ToSymbol:         "XFI",
		FromAmountRaw:    big.NewInt(1_000_000),
		TriggerPrice:     "1.5",
		TriggerCondition: ConditionAbove,
		MaxSlippageBps:   100,
	})
	require.NoError(t, err)
	require.NoError(t, store.MarkCancelled(ctx, "owner-3", cancelled.ID))

	claimed, err := store.ClaimForTick(ctx)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, active.ID, claimed[0].ID)
}

func TestGormStore_MarkFailed_BecomesTerminalAtMaxRetries(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	order, err := store.Create(ctx, CreateRequest{
		OwnerKey:         "owner-1",
		FromSymbol:       "USDC",
		ToSymbol:         "XFI",
		FromAmountRaw:    big.NewInt(1_000_000),
		TriggerPrice:     "1.5",
		TriggerCondition: ConditionAbove,
		MaxSlippageBps:   100,
	})
	require.NoError(t, err)

	for i := 0; i < MaxRetries-1; i++ {
		require.NoError(t, store.MarkFailed(ctx, order.ID, "transient"))
	}

	got, err := store.Get(ctx, "owner-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, MaxRetries-1, got.RetryCount)

	require.NoError(t, store.MarkFailed(ctx, order.ID, "final failure"))

	got, err = store.Get(ctx, "owner-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, MaxRetries, got.RetryCount)
	assert.Equal(t, "final failure", got.LastFailureReason)
}

func TestGormStore_MarkCancelled_OnlyFromActive(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	order, err := store.Create(ctx, CreateRequest{
		OwnerKey:         "owner-1",
		FromSymbol:       "USDC",
		ToSymbol:         "XFI",
		FromAmountRaw:    big.NewInt(1_000_000),
		TriggerPrice:     "1.5",
		TriggerCondition: ConditionAbove,
		MaxSlippageBps:   100,
	})
	require.NoError(t, err)

	require.NoError(t, store.MarkCancelled(ctx, "owner-1", order.ID))

	err = store.MarkCancelled(ctx, "owner-1", order.ID)
	require.Error(t, err)
}

func TestGormStore_MarkCancelled_WrongOwnerNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	order, err := store.Create(ctx, CreateRequest{
		OwnerKey:         "owner-1",
		FromSymbol:       "USDC",
		ToSymbol:         "XFI",
		FromAmountRaw:    big.NewInt(1_000_000),
		TriggerPrice:     "1.5",
		TriggerCondition: ConditionAbove,
		MaxSlippageBps:   100,
	})
	require.NoError(t, err)

	err = store.MarkCancelled(ctx, "someone-else", order.ID)
	require.Error(t, err)
}

func TestGormStore_SweepExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	expired := time.Now().Add(-time.Hour)
	_, err := store.Create(ctx, CreateRequest{
		OwnerKey:         "owner-1",
		FromSymbol:       "USDC",
		ToSymbol:         "XFI",
		FromAmountRaw:    big.NewInt(1_000_000),
		TriggerPrice:     "1.5",
		TriggerCondition: ConditionAbove,
		MaxSlippageBps:   100,
		ExpiresAt:        &expired,
	})
	require.NoError(t, err)

	count, err := store.SweepExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	orders, err := store.List(ctx, "owner-1", Filter{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, StatusExpired, orders[0].Status)
}

func TestGormStore_MarkExecuted(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	order, err := store.Create(ctx, CreateRequest{
		OwnerKey:         "owner-1",
		FromSymbol:       "USDC",
		ToSymbol:         "XFI",
		FromAmountRaw:    big.NewInt(1_000_000),
		TriggerPrice:     "1.5",
		TriggerCondition: ConditionAbove,
		MaxSlippageBps:   100,
	})
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, store.MarkExecuted(ctx, order.ID, "0xdeadbeef", now))

	got, err := store.Get(ctx, "owner-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, got.Status)
	assert.Equal(t, "0xdeadbeef", got.ExecutionTxHash)
	require.NotNil(t, got.ExecutedAt)
}
