// Package engine wires the Chain Gateway, Token Registry, Price Oracle
// Cache, Quoter, Swap Executor, Order Store, DCA Service and Execution
// Scheduler into one running process, the same role the teacher's
// Blackhole struct plays for its own strategy loop.
package engine

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/blackhole-dca/dcaengine/internal/config"
	"github.com/blackhole-dca/dcaengine/internal/vault"
	"github.com/blackhole-dca/dcaengine/pkg/chain"
	"github.com/blackhole-dca/dcaengine/pkg/orders"
	"github.com/blackhole-dca/dcaengine/pkg/priceoracle"
	"github.com/blackhole-dca/dcaengine/pkg/quote"
	"github.com/blackhole-dca/dcaengine/pkg/scheduler"
	"github.com/blackhole-dca/dcaengine/pkg/swap"
	"github.com/blackhole-dca/dcaengine/pkg/token"
)

// routerABIJSON is the Uniswap-V2-family router surface named in spec §6:
// getAmountsOut for quoting, plus the three swapExact... entry points the
// Chain Gateway can dispatch through (the Executor always reaches
// swapExactTokensForTokens today; the ETH-denominated entry points are
// kept here since they are part of the router's real surface).
const routerABIJSON = `[
	{"constant":true,"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactETHForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"payable":true,"stateMutability":"payable","type":"function"},
	{"constant":false,"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForETH","outputs":[{"name":"amounts","type":"uint256[]"}],"type":"function"}
]`

// Engine is the fully wired DCA core: every collaborator in §2 of the
// system overview, constructed once at start-up and shared for the life
// of the process.
type Engine struct {
	Registry  *token.Registry
	Oracle    *priceoracle.Oracle
	Vault     *vault.LocalVault
	Quoter    *quote.Quoter
	Executor  *swap.Executor
	Store     orders.Store
	Service   *orders.Service
	Scheduler *scheduler.Scheduler

	client *ethclient.Client
	log    zerolog.Logger
}

// New dials cfg.RPC, opens the configured MySQL DSN, and wires every
// collaborator together. coinIDBySymbol resolves a Token Registry symbol to
// the Price Oracle's coin identifier for the orders trading against it.
func New(ctx context.Context, cfg *config.Config, coinIDBySymbol func(symbol string) (string, bool), log zerolog.Logger) (*Engine, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("engine: dialing RPC %s: %w", cfg.RPC, err)
	}

	entries := make([]token.Entry, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		entries = append(entries, token.Entry{
			Symbol:        t.Symbol,
			Address:       t.Address,
			Decimals:      t.Decimals,
			Native:        t.Native,
			WrappedNative: t.WrappedNative,
		})
	}
	registry, err := token.NewRegistry(entries)
	if err != nil {
		return nil, fmt.Errorf("engine: building token registry: %w", err)
	}

	httpTimeoutSec := cfg.PriceOracle.HTTPTimeoutSec
	if httpTimeoutSec <= 0 {
		httpTimeoutSec = 5
	}
	oracle := priceoracle.New(priceoracle.Config{
		BaseURL:     cfg.PriceOracle.BaseURL,
		APIKey:      cfg.PriceOracleAPIKey,
		HTTPTimeout: time.Duration(httpTimeoutSec) * time.Second,
	}, log)

	kv := vault.NewLocalVault(cfg.VaultMasterPassphrase)

	routerAddr := common.HexToAddress(cfg.Router)
	routerABI, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		return nil, fmt.Errorf("engine: parsing router ABI: %w", err)
	}

	root := chain.NewGateway(client, nil, common.Address{}, log)
	root.BindContract(routerAddr, routerABI)

	quoter := quote.New(root, routerAddr, registry, cfg.DirectPairs)

	bind := func(signer *ecdsa.PrivateKey, addr common.Address) chain.GatewayAPI {
		return root.Bind(signer, addr)
	}
	executor := swap.New(bind, quoter, registry, kv, routerAddr, log)

	db, err := gorm.Open(mysql.Open(cfg.MySQLDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("engine: connecting to MySQL: %w", err)
	}
	store, err := orders.NewGormStore(db)
	if err != nil {
		return nil, fmt.Errorf("engine: migrating order store: %w", err)
	}

	service := orders.New(store, registry)

	sched := scheduler.New(scheduler.Config{
		TickInterval:   cfg.TickInterval(),
		HealthInterval: cfg.HealthInterval(),
		WorkerPoolSize: cfg.Scheduler.WorkerPoolSize,
		CoinID:         coinIDBySymbol,
	}, store, oracle, executor, log)

	return &Engine{
		Registry:  registry,
		Oracle:    oracle,
		Vault:     kv,
		Quoter:    quoter,
		Executor:  executor,
		Store:     store,
		Service:   service,
		Scheduler: sched,
		client:    client,
		log:       log,
	}, nil
}

// RegisterSigner loads an owner's signing key into the Key Vault. This is
// the only place outside tests a raw private key hex string is accepted.
func (e *Engine) RegisterSigner(ownerKey, privateKeyHex string) error {
	return e.Vault.Register(ownerKey, privateKeyHex)
}

// Run blocks, driving the Execution Scheduler until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.Scheduler.Run(ctx)
}

// Close releases the underlying RPC client.
func (e *Engine) Close() {
	e.client.Close()
}
