package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// erc20ABIJSON is the minimal ERC-20 surface the Gateway needs: balance,
// allowance and approve. WETH-family wrap/unwrap (deposit/withdraw)
// is appended since every wrapped-native token exposes it alongside ERC-20.
const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[],"name":"deposit","outputs":[],"payable":true,"stateMutability":"payable","type":"function"},
	{"constant":false,"inputs":[{"name":"amount","type":"uint256"}],"name":"withdraw","outputs":[],"type":"function"}
]`

// GatewayAPI is the domain-level surface a signer-bound Gateway exposes to
// the rest of the engine. *Gateway implements it; tests can supply a fake.
type GatewayAPI interface {
	Address() common.Address
	NativeBalance(ctx context.Context) (*big.Int, error)
	ERC20Balance(ctx context.Context, token common.Address) (*big.Int, error)
	ERC20Allowance(ctx context.Context, token, spender common.Address) (*big.Int, error)
	ERC20Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (TxReceipt, error)
	WrapNative(ctx context.Context, wrapped common.Address, amount *big.Int) (TxReceipt, error)
	UnwrapNative(ctx context.Context, wrapped common.Address, amount *big.Int) (TxReceipt, error)
	WriteContract(ctx context.Context, address common.Address, value *big.Int, method string, args ...interface{}) (TxReceipt, error)
}

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: parsing embedded ERC-20 ABI: %v", err))
	}
	erc20ABI = parsed
}

// contractCache is the Contract-binding table shared between a Gateway and
// every Gateway derived from it via Bind, so re-binding to a different
// signer never duplicates or races the underlying bindings.
type contractCache struct {
	mu        sync.Mutex
	contracts map[common.Address]*Contract
}

// Gateway is the Chain Gateway of the DCA engine: it owns the signer's
// account, caches one Contract binding per address, and exposes the
// domain-level read/write operations the rest of the engine needs without
// callers ever touching go-ethereum's ABI machinery directly.
type Gateway struct {
	client ContractBackend
	waiter *Waiter
	signer *ecdsa.PrivateKey
	myAddr common.Address

	cache *contractCache

	log zerolog.Logger
}

// NewGateway builds a Gateway bound to signer's account.
func NewGateway(client ContractBackend, signer *ecdsa.PrivateKey, myAddr common.Address, log zerolog.Logger, waiterOpts ...WaiterOption) *Gateway {
	return &Gateway{
		client: client,
		waiter: NewWaiter(client, waiterOpts...),
		signer: signer,
		myAddr: myAddr,
		cache:  &contractCache{contracts: make(map[common.Address]*Contract)},
		log:    log.With().Str("component", "chain.gateway").Logger(),
	}
}

// Address returns the signer's address.
func (g *Gateway) Address() common.Address {
	return g.myAddr
}

// Bind returns a Gateway sharing this one's RPC client, contract bindings
// and waiter, but scoped to a different decrypted signer. Callers that
// resolve a key from an external vault should use the bound Gateway for the
// duration of one call and then drop it, per the Gateway's rule that
// decrypted signing material is never held longer than that.
func (g *Gateway) Bind(signer *ecdsa.PrivateKey, addr common.Address) *Gateway {
	return &Gateway{
		client: g.client,
		waiter: g.waiter,
		signer: signer,
		myAddr: addr,
		cache:  g.cache,
		log:    g.log,
	}
}

// WaitForReceipt blocks until txHash is mined, per the Gateway's waiter config.
func (g *Gateway) WaitForReceipt(ctx context.Context, txHash common.Hash) (TxReceipt, error) {
	return g.waiter.WaitForTransaction(ctx, txHash)
}

// contractFor returns the cached ERC-20-ABI Contract binding for address,
// constructing it on first use.
func (g *Gateway) contractFor(address common.Address) *Contract {
	g.cache.mu.Lock()
	defer g.cache.mu.Unlock()
	if c, ok := g.cache.contracts[address]; ok {
		return c
	}
	c := NewContract(g.client, address, erc20ABI)
	g.cache.contracts[address] = c
	return c
}

// BindContract registers a Contract for address using a caller-supplied ABI,
// for contracts whose surface (router, quoter) extends beyond ERC-20.
func (g *Gateway) BindContract(address common.Address, contractABI abi.ABI) *Contract {
	c := NewContract(g.client, address, contractABI)
	g.cache.mu.Lock()
	g.cache.contracts[address] = c
	g.cache.mu.Unlock()
	return c
}

// NativeBalance returns the signer's native-coin balance.
func (g *Gateway) NativeBalance(ctx context.Context) (*big.Int, error) {
	bal, err := g.client.BalanceAt(ctx, g.myAddr, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: reading native balance: %w", err)
	}
	return bal, nil
}

// ERC20Balance returns the signer's balance of token.
func (g *Gateway) ERC20Balance(ctx context.Context, token common.Address) (*big.Int, error) {
	out, err := g.contractFor(token).Call(ctx, &g.myAddr, "balanceOf", g.myAddr)
	if err != nil {
		return nil, fmt.Errorf("chain: reading erc20 balance of %s: %w", token.Hex(), err)
	}
	return out[0].(*big.Int), nil
}

// ERC20Allowance returns the allowance spender has over the signer's token balance.
func (g *Gateway) ERC20Allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	out, err := g.contractFor(token).Call(ctx, &g.myAddr, "allowance", g.myAddr, spender)
	if err != nil {
		return nil, fmt.Errorf("chain: reading allowance of %s over %s: %w", spender.Hex(), token.Hex(), err)
	}
	return out[0].(*big.Int), nil
}

// ERC20Approve sets spender's allowance over token to amount and waits for
// the approval transaction to be mined.
func (g *Gateway) ERC20Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (TxReceipt, error) {
	txHash, err := g.contractFor(token).Send(ctx, Standard, nil, &g.myAddr, g.signer, nil, "approve", spender, amount)
	if err != nil {
		return TxReceipt{}, fmt.Errorf("chain: approving %s over %s: %w", spender.Hex(), token.Hex(), err)
	}
	receipt, err := g.WaitForReceipt(ctx, txHash)
	if err != nil {
		return TxReceipt{}, err
	}
	if !receipt.Succeeded() {
		return receipt, fmt.Errorf("chain: approve transaction %s reverted", txHash.Hex())
	}
	return receipt, nil
}

// EnsureApproval approves spender for amount over token only if the current
// allowance is insufficient, mirroring the reuse-existing-allowance pattern
// of approve-before-swap flows.
func (g *Gateway) EnsureApproval(ctx context.Context, token, spender common.Address, amount *big.Int) (*TxReceipt, error) {
	current, err := g.ERC20Allowance(ctx, token, spender)
	if err != nil {
		return nil, err
	}
	if current.Cmp(amount) >= 0 {
		return nil, nil
	}
	receipt, err := g.ERC20Approve(ctx, token, spender, amount)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// WrapNative deposits amount of native coin into the wrapped-native token
// contract (WETH-style deposit()), returning the mined receipt.
func (g *Gateway) WrapNative(ctx context.Context, wrapped common.Address, amount *big.Int) (TxReceipt, error) {
	txHash, err := g.contractFor(wrapped).Send(ctx, Standard, nil, &g.myAddr, g.signer, amount, "deposit")
	if err != nil {
		return TxReceipt{}, fmt.Errorf("chain: wrapping native into %s: %w", wrapped.Hex(), err)
	}
	receipt, err := g.WaitForReceipt(ctx, txHash)
	if err != nil {
		return TxReceipt{}, err
	}
	if !receipt.Succeeded() {
		return receipt, fmt.Errorf("chain: wrap transaction %s reverted", txHash.Hex())
	}
	return receipt, nil
}

// UnwrapNative withdraws amount of the wrapped-native token back into the
// native coin (WETH-style withdraw(uint256)).
func (g *Gateway) UnwrapNative(ctx context.Context, wrapped common.Address, amount *big.Int) (TxReceipt, error) {
	txHash, err := g.contractFor(wrapped).Send(ctx, Standard, nil, &g.myAddr, g.signer, nil, "withdraw", amount)
	if err != nil {
		return TxReceipt{}, fmt.Errorf("chain: unwrapping %s: %w", wrapped.Hex(), err)
	}
	receipt, err := g.WaitForReceipt(ctx, txHash)
	if err != nil {
		return TxReceipt{}, err
	}
	if !receipt.Succeeded() {
		return receipt, fmt.Errorf("chain: unwrap transaction %s reverted", txHash.Hex())
	}
	return receipt, nil
}

// ReadContract performs a read-only call against a previously bound contract.
func (g *Gateway) ReadContract(ctx context.Context, address common.Address, method string, args ...interface{}) ([]interface{}, error) {
	g.cache.mu.Lock()
	c, ok := g.cache.contracts[address]
	g.cache.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("chain: no contract bound for %s", address.Hex())
	}
	return c.Call(ctx, &g.myAddr, method, args...)
}

// WriteContract signs and sends a state-mutating call against a previously
// bound contract, waiting for and returning its receipt.
func (g *Gateway) WriteContract(ctx context.Context, address common.Address, value *big.Int, method string, args ...interface{}) (TxReceipt, error) {
	g.cache.mu.Lock()
	c, ok := g.cache.contracts[address]
	g.cache.mu.Unlock()
	if !ok {
		return TxReceipt{}, fmt.Errorf("chain: no contract bound for %s", address.Hex())
	}
	txHash, err := c.Send(ctx, Standard, nil, &g.myAddr, g.signer, value, method, args...)
	if err != nil {
		return TxReceipt{}, err
	}
	receipt, err := g.WaitForReceipt(ctx, txHash)
	if err != nil {
		return TxReceipt{}, err
	}
	if !receipt.Succeeded() {
		return receipt, fmt.Errorf("chain: transaction %s (%s) reverted", txHash.Hex(), method)
	}
	return receipt, nil
}
