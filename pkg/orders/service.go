package orders

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blackhole-dca/dcaengine/pkg/dcaerr"
	"github.com/blackhole-dca/dcaengine/pkg/token"
)

// minTriggerPrice/maxTriggerPrice bound a trigger-price at create time.
var (
	minTriggerPrice = decimal.Zero
	maxTriggerPrice = decimal.New(1, 9)
)

// BalanceReader is the live-balance check the Service needs at create time,
// satisfied by a signer-bound chain.GatewayAPI.
type BalanceReader interface {
	NativeBalance(ctx context.Context) (*big.Int, error)
	ERC20Balance(ctx context.Context, token common.Address) (*big.Int, error)
}

// Service is the DCA Service: validation, trigger predicates, and CRUD
// layered over the Order Store.
type Service struct {
	store    Store
	registry *token.Registry
}

// New builds a Service.
func New(store Store, registry *token.Registry) *Service {
	return &Service{store: store, registry: registry}
}

// Create validates req and, if valid, persists a new active order.
func (s *Service) Create(ctx context.Context, req CreateRequest, balance BalanceReader) (Order, error) {
	if err := s.validateCreate(ctx, req, balance); err != nil {
		return Order{}, err
	}
	return s.store.Create(ctx, req)
}

func (s *Service) validateCreate(ctx context.Context, req CreateRequest, balance BalanceReader) error {
	from, ok := s.registry.BySymbol(req.FromSymbol)
	if !ok {
		return dcaerr.Newf(dcaerr.InvalidArgument, "unknown from-symbol %q", req.FromSymbol)
	}
	if _, ok := s.registry.BySymbol(req.ToSymbol); !ok {
		return dcaerr.Newf(dcaerr.InvalidArgument, "unknown to-symbol %q", req.ToSymbol)
	}

	trigger, err := decimal.NewFromString(req.TriggerPrice)
	if err != nil {
		return dcaerr.Newf(dcaerr.InvalidArgument, "trigger-price %q is not a decimal", req.TriggerPrice)
	}
	if trigger.Cmp(minTriggerPrice) <= 0 || trigger.Cmp(maxTriggerPrice) > 0 {
		return dcaerr.Newf(dcaerr.InvalidArgument, "trigger-price %s out of range (%s, %s]", trigger, minTriggerPrice, maxTriggerPrice)
	}

	if req.TriggerCondition != ConditionAbove && req.TriggerCondition != ConditionBelow {
		return dcaerr.Newf(dcaerr.InvalidArgument, "unknown trigger-condition %q", req.TriggerCondition)
	}

	if req.MaxSlippageBps < 1 || req.MaxSlippageBps > 5000 {
		return dcaerr.Newf(dcaerr.InvalidArgument, "max-slippage-bps %d out of range [1, 5000]", req.MaxSlippageBps)
	}

	if req.FromAmountRaw == nil || req.FromAmountRaw.Sign() <= 0 {
		return dcaerr.New(dcaerr.InvalidArgument, "from-amount must resolve to a positive smallest-unit integer")
	}

	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return dcaerr.New(dcaerr.InvalidArgument, "expires-at must be in the future")
	}

	active, err := s.store.CountActive(ctx, req.OwnerKey)
	if err != nil {
		return err
	}
	if active >= MaxActivePerOwner {
		return dcaerr.New(dcaerr.QuotaExceeded, "owner has reached the active-order cap")
	}

	var bal *big.Int
	if from.Native {
		bal, err = balance.NativeBalance(ctx)
	} else {
		bal, err = balance.ERC20Balance(ctx, from.Address)
	}
	if err != nil {
		return dcaerr.Wrap(dcaerr.UpstreamError, "reading owner balance at order creation", err)
	}
	if bal.Cmp(req.FromAmountRaw) < 0 {
		return dcaerr.Newf(dcaerr.InsufficientBalance, "balance %s below declared from-amount %s", bal, req.FromAmountRaw)
	}

	return nil
}

// List returns ownerKey's orders.
func (s *Service) List(ctx context.Context, ownerKey string, filter Filter) ([]Order, error) {
	return s.store.List(ctx, ownerKey, filter)
}

// Get fetches one order scoped to ownerKey.
func (s *Service) Get(ctx context.Context, ownerKey string, id uuid.UUID) (Order, error) {
	return s.store.Get(ctx, ownerKey, id)
}

// Cancel cancels ownerKey's order id, only from StatusActive.
func (s *Service) Cancel(ctx context.Context, ownerKey string, id uuid.UUID) error {
	return s.store.MarkCancelled(ctx, ownerKey, id)
}

// ShouldExecute reports whether order's trigger condition is currently
// satisfied by price.
func ShouldExecute(order Order, price decimal.Decimal) bool {
	trigger, err := decimal.NewFromString(order.TriggerPrice)
	if err != nil {
		return false
	}
	switch order.TriggerCondition {
	case ConditionAbove:
		return price.Cmp(trigger) >= 0
	case ConditionBelow:
		return price.Cmp(trigger) <= 0
	default:
		return false
	}
}

// IsReady reports whether order's trigger is not already satisfied by
// price, the precondition for priming: an order must cross into its
// trigger from the other side before it is ever eligible for execution.
func IsReady(order Order, price decimal.Decimal) bool {
	trigger, err := decimal.NewFromString(order.TriggerPrice)
	if err != nil {
		return false
	}
	switch order.TriggerCondition {
	case ConditionAbove:
		return price.Cmp(trigger) < 0
	case ConditionBelow:
		return price.Cmp(trigger) > 0
	default:
		return false
	}
}

// Eligible reports whether order should be dispatched this tick: it must
// already be primed (or become primed now, via IsReady) and ShouldExecute
// must hold now.
func Eligible(order Order, price decimal.Decimal) (eligible bool, primeNow bool) {
	if !order.Primed {
		if !IsReady(order, price) {
			return false, false
		}
		primeNow = true
	}
	return ShouldExecute(order, price), primeNow
}
