// Package swap implements the Swap Executor: the ordered validate →
// approve → wrap → swap → unwrap pipeline that turns one eligible DCA order
// into on-chain transactions, grounded on the same approve-then-act
// structure used for every state-mutating flow in the Chain Gateway.
package swap

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/blackhole-dca/dcaengine/internal/vault"
	"github.com/blackhole-dca/dcaengine/pkg/chain"
	"github.com/blackhole-dca/dcaengine/pkg/dcaerr"
	"github.com/blackhole-dca/dcaengine/pkg/quote"
	"github.com/blackhole-dca/dcaengine/pkg/token"
)

// approvalBufferNumerator/Denominator express the 10% buffer added to an
// approval amount to tolerate fee-on-transfer tokens and later retries.
const (
	approvalBufferNumerator   = 110
	approvalBufferDenominator = 100

	allowancePollAttempts = 5
	allowancePollInterval = 3 * time.Second
)

// Result is the Swap Executor's public contract.
type Result struct {
	Success             bool
	SwapTxHash          common.Hash
	WrapTxHash          *common.Hash
	UnwrapTxHash        *common.Hash
	FinalReceivedSymbol string
	FinalReceivedAmount *big.Int
	UnwrapWarning       string
	Err                 error
}

// Request is one execution attempt's input.
type Request struct {
	OwnerKey    string
	FromSymbol  string
	ToSymbol    string
	FromAmount  decimal.Decimal
	SlippageBps int
}

// GatewayFactory binds a decrypted signer to a chain.GatewayAPI, scoped to
// one Executor call. Production wiring supplies (*chain.Gateway).Bind;
// tests can supply a closure returning a fake.
type GatewayFactory func(signer *ecdsa.PrivateKey, addr common.Address) chain.GatewayAPI

// Executor runs the Phase A-E pipeline described by the engine's swap
// execution design.
type Executor struct {
	bind     GatewayFactory
	quoter   *quote.Quoter
	registry *token.Registry
	vault    vault.Vault
	router   common.Address
	log      zerolog.Logger
}

// New builds an Executor.
func New(bind GatewayFactory, quoter *quote.Quoter, registry *token.Registry, v vault.Vault, router common.Address, log zerolog.Logger) *Executor {
	return &Executor{
		bind:     bind,
		quoter:   quoter,
		registry: registry,
		vault:    v,
		router:   router,
		log:      log.With().Str("component", "swap.executor").Logger(),
	}
}

// Execute runs one full attempt of req and returns a Result. Result.Err is
// set (and Success false) whenever any phase fails; Result.Err always
// carries a *dcaerr.Error.
func (e *Executor) Execute(ctx context.Context, req Request) Result {
	q, err := e.quoter.Quote(ctx, req.FromSymbol, req.ToSymbol, req.FromAmount, req.SlippageBps)
	if err != nil {
		return Result{Err: err}
	}

	signer, err := e.vault.Resolve(ctx, req.OwnerKey)
	if err != nil {
		return Result{Err: dcaerr.Wrap(dcaerr.UpstreamError, "resolving signer", err)}
	}
	defer signer.Zero()

	gw := e.bind(signer.Key, signer.Address)

	from, _ := e.registry.BySymbol(req.FromSymbol)
	to, _ := e.registry.BySymbol(req.ToSymbol)
	wrapped := e.registry.WrappedNative()

	routedFromWrapped := from.Native && q.Path[0] == wrapped.Address
	routedToWrapped := to.Native && q.Path[len(q.Path)-1] == wrapped.Address

	needsApproval, err := e.validate(ctx, gw, from, q, routedFromWrapped)
	if err != nil {
		return Result{Err: err}
	}

	var result Result

	if needsApproval {
		if err := e.approve(ctx, gw, q.Path[0], q.FromAmountRaw); err != nil {
			return Result{Err: err}
		}
	}

	if routedFromWrapped {
		wrapHash, err := e.wrap(ctx, gw, q.FromAmountRaw)
		if err != nil {
			return Result{Err: err}
		}
		result.WrapTxHash = &wrapHash
	}

	swapHash, err := e.swap(ctx, gw, q)
	if err != nil {
		return Result{Err: err}
	}
	result.SwapTxHash = swapHash
	result.Success = true
	result.FinalReceivedSymbol = to.Symbol
	result.FinalReceivedAmount = q.ToAmountRaw

	if routedToWrapped {
		unwrapHash, receivedAmount, warning := e.unwrap(ctx, gw, wrapped.Address, signer.Address)
		if unwrapHash != nil {
			result.UnwrapTxHash = unwrapHash
			result.FinalReceivedAmount = receivedAmount
		}
		if warning != "" {
			result.UnwrapWarning = warning
		}
	}

	return result
}

// validate is Phase A. The balance check targets the token the caller
// actually holds right now (native, when Phase C will wrap it); the
// allowance check always targets path[0], the token Phase D's router call
// will pull from the signer — which is the wrapped-native token itself once
// Phase C has run, since every native leg is wrapped before the router ever
// sees it.
func (e *Executor) validate(ctx context.Context, gw chain.GatewayAPI, from token.Token, q *quote.Quote, routedFromWrapped bool) (needsApproval bool, err error) {
	if routedFromWrapped || from.Native {
		balance, err := gw.NativeBalance(ctx)
		if err != nil {
			return false, dcaerr.Wrap(dcaerr.UpstreamError, "reading native balance", err)
		}
		if balance.Cmp(q.FromAmountRaw) < 0 {
			return false, dcaerr.Newf(dcaerr.InsufficientBalance, "native balance %s below required %s", balance, q.FromAmountRaw)
		}
	} else {
		balance, err := gw.ERC20Balance(ctx, q.Path[0])
		if err != nil {
			return false, dcaerr.Wrap(dcaerr.UpstreamError, "reading erc20 balance", err)
		}
		if balance.Cmp(q.FromAmountRaw) < 0 {
			return false, dcaerr.Newf(dcaerr.InsufficientBalance, "balance %s below required %s", balance, q.FromAmountRaw)
		}
	}

	allowance, err := gw.ERC20Allowance(ctx, q.Path[0], e.router)
	if err != nil {
		return false, dcaerr.Wrap(dcaerr.UpstreamError, "reading allowance", err)
	}
	return allowance.Cmp(q.FromAmountRaw) < 0, nil
}

// approve is Phase B.
func (e *Executor) approve(ctx context.Context, gw chain.GatewayAPI, fromToken common.Address, amount *big.Int) error {
	buffered := new(big.Int).Div(new(big.Int).Mul(amount, big.NewInt(approvalBufferNumerator)), big.NewInt(approvalBufferDenominator))

	if _, err := gw.ERC20Approve(ctx, fromToken, e.router, buffered); err != nil {
		return dcaerr.Wrap(dcaerr.InsufficientAllowance, "submitting approval", err)
	}

	for attempt := 0; attempt < allowancePollAttempts; attempt++ {
		allowance, err := gw.ERC20Allowance(ctx, fromToken, e.router)
		if err != nil {
			return dcaerr.Wrap(dcaerr.UpstreamError, "polling allowance", err)
		}
		if allowance.Cmp(amount) >= 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return dcaerr.Wrap(dcaerr.InsufficientAllowance, "context cancelled while polling allowance", ctx.Err())
		case <-time.After(allowancePollInterval):
		}
	}

	return dcaerr.New(dcaerr.InsufficientAllowance, "allowance did not become sufficient within poll window")
}

// wrap is Phase C.
func (e *Executor) wrap(ctx context.Context, gw chain.GatewayAPI, amount *big.Int) (common.Hash, error) {
	receipt, err := gw.WrapNative(ctx, e.registry.WrappedNative().Address, amount)
	if err != nil {
		if chain.IsTransient(err) {
			return common.Hash{}, dcaerr.Wrap(dcaerr.WrapFailed, "wrap transaction timed out", err)
		}
		return common.Hash{}, dcaerr.Wrap(dcaerr.WrapFailed, "wrap transaction reverted", err)
	}
	return receipt.TxHash, nil
}

// swap is Phase D.
func (e *Executor) swap(ctx context.Context, gw chain.GatewayAPI, q *quote.Quote) (common.Hash, error) {
	deadline := big.NewInt(q.Deadline.Unix())
	recipient := gw.Address()

	// Every native leg is wrapped (Phase C) or will be unwrapped (Phase E)
	// around this call, so by the time Phase D runs, path is entirely
	// ERC-20 and swapExactTokensForTokens is always the right entry point;
	// the router's native-denominated entry points are never reached.
	receipt, err := gw.WriteContract(ctx, e.router, nil, "swapExactTokensForTokens",
		q.FromAmountRaw, q.MinimumReceivedRaw, q.Path, recipient, deadline)

	if err != nil {
		if time.Now().After(q.Deadline) {
			return common.Hash{}, dcaerr.Wrap(dcaerr.DeadlineExpired, "swap not included before deadline", err)
		}
		if chain.IsReverted(err) {
			return common.Hash{}, dcaerr.Wrap(dcaerr.SlippageExceeded, "router reverted, likely minimum-received not met", err)
		}
		return common.Hash{}, dcaerr.Wrap(dcaerr.TransactionFailed, "swap transaction failed", err)
	}

	return receipt.TxHash, nil
}

// unwrap is Phase E: best-effort, never fails the overall Result.
func (e *Executor) unwrap(ctx context.Context, gw chain.GatewayAPI, wrapped, recipient common.Address) (*common.Hash, *big.Int, string) {
	balance, err := gw.ERC20Balance(ctx, wrapped)
	if err != nil {
		e.log.Warn().Err(err).Msg("unwrap: failed to read wrapped-native balance")
		return nil, nil, "unwrap_failed: could not read post-swap wrapped-native balance"
	}

	receipt, err := gw.UnwrapNative(ctx, wrapped, balance)
	if err != nil {
		e.log.Warn().Err(err).Msg("unwrap: withdraw failed, leaving recipient holding wrapped-native")
		return nil, balance, "unwrap_failed: withdraw reverted or timed out"
	}

	return &receipt.TxHash, balance, ""
}
