package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum"
)

// ErrWaitTimeout is returned when a transaction's receipt does not appear
// within the configured poll timeout.
var ErrWaitTimeout = errors.New("chain: timed out waiting for transaction receipt")

// Waiter polls for a transaction receipt at a fixed interval, up to a timeout.
type Waiter struct {
	client       ContractBackend
	pollInterval time.Duration
	timeout      time.Duration
}

// WaiterOption configures a Waiter.
type WaiterOption func(*Waiter)

// WithPollInterval overrides the default receipt-poll interval.
func WithPollInterval(d time.Duration) WaiterOption {
	return func(w *Waiter) { w.pollInterval = d }
}

// WithTimeout overrides the default receipt-wait timeout.
func WithTimeout(d time.Duration) WaiterOption {
	return func(w *Waiter) { w.timeout = d }
}

// NewWaiter builds a Waiter with sane defaults, overridable via opts.
func NewWaiter(client ContractBackend, opts ...WaiterOption) *Waiter {
	w := &Waiter{
		client:       client,
		pollInterval: 3 * time.Second,
		timeout:      5 * time.Minute,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WaitForTransaction blocks until txHash is mined or the configured timeout
// elapses, returning the normalized TxReceipt.
func (w *Waiter) WaitForTransaction(ctx context.Context, txHash common.Hash) (TxReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return toTxReceipt(receipt), nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return TxReceipt{}, fmt.Errorf("chain: fetching receipt for %s: %w", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return TxReceipt{}, fmt.Errorf("%w: %s", ErrWaitTimeout, txHash.Hex())
		case <-ticker.C:
		}
	}
}

func toTxReceipt(r *types.Receipt) TxReceipt {
	return TxReceipt{
		TxHash:            r.TxHash,
		BlockNumber:       r.BlockNumber.Uint64(),
		GasUsed:           r.GasUsed,
		EffectiveGasPrice: r.EffectiveGasPrice,
		Status:            r.Status,
	}
}
