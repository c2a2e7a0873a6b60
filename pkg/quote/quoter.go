// Package quote implements the Quoter: given a symbol pair and an amount,
// it builds a router path, calls getAmountsOut, and returns a slippage-
// bounded quote, grounded on the same Call/path conventions the Chain
// Gateway uses for every other router interaction.
package quote

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/blackhole-dca/dcaengine/pkg/dcaerr"
	"github.com/blackhole-dca/dcaengine/pkg/token"
)

// deadlineWindow is how far in the future a swap's deadline is set, per spec.
const deadlineWindow = 15 * time.Minute

// slippageBpsDenominator is the scale slippage-bps is expressed against.
const slippageBpsDenominator = 10_000

// deniedSymbols lists symbols with no supported route, regardless of the
// other leg: USDT's pool on this AMM is documented as mispriced.
var deniedSymbols = map[string]bool{
	"USDT": true,
}

// Reader is the read-only subset of the Chain Gateway the Quoter needs.
type Reader interface {
	ReadContract(ctx context.Context, address common.Address, method string, args ...interface{}) ([]interface{}, error)
}

// Quote is the Quoter's output: a priced, slippage-bounded route.
type Quote struct {
	Path               []common.Address
	FromAmountRaw      *big.Int
	ToAmountRaw        *big.Int
	MinimumReceivedRaw *big.Int
	Price              decimal.Decimal
	Deadline           time.Time
	SlippageBps        int
}

// Quoter resolves symbols via the Token Registry and prices routes through a
// single Uniswap-V2-family router.
type Quoter struct {
	reader     Reader
	router     common.Address
	registry   *token.Registry
	directPool map[string]bool
}

// New builds a Quoter. directPairs lists symbol pairs ("USDC-USDT" style,
// order-insensitive) known to have a direct pool, so the path builder can
// skip the wrapped-native bridge for them.
func New(reader Reader, router common.Address, registry *token.Registry, directPairs []string) *Quoter {
	direct := make(map[string]bool, len(directPairs))
	for _, pair := range directPairs {
		direct[normalizePairKey(pair)] = true
	}
	return &Quoter{reader: reader, router: router, registry: registry, directPool: direct}
}

func normalizePairKey(pair string) string {
	parts := strings.SplitN(strings.ToUpper(pair), "-", 2)
	if len(parts) != 2 {
		return strings.ToUpper(pair)
	}
	a, b := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if a > b {
		a, b = b, a
	}
	return a + "-" + b
}

func (q *Quoter) hasDirectPool(a, b string) bool {
	return q.directPool[normalizePairKey(a+"-"+b)]
}

// Quote prices a swap of fromAmount units of fromSymbol into toSymbol,
// bounding acceptable output by slippageBps (hundredths of a percent).
func (q *Quoter) Quote(ctx context.Context, fromSymbol, toSymbol string, fromAmount decimal.Decimal, slippageBps int) (*Quote, error) {
	if slippageBps <= 0 || slippageBps > 5000 {
		return nil, dcaerr.Newf(dcaerr.InvalidArgument, "slippage_bps %d out of range [1, 5000]", slippageBps)
	}
	if fromAmount.Sign() <= 0 {
		return nil, dcaerr.New(dcaerr.InvalidArgument, "from_amount must be positive")
	}

	fromUpper := strings.ToUpper(strings.TrimSpace(fromSymbol))
	toUpper := strings.ToUpper(strings.TrimSpace(toSymbol))
	if fromUpper == toUpper {
		return nil, dcaerr.New(dcaerr.PairUnsupported, "from and to symbols are identical")
	}
	if deniedSymbols[fromUpper] || deniedSymbols[toUpper] {
		return nil, dcaerr.Newf(dcaerr.PairUnsupported, "symbol pair %s/%s is on the deny-list", fromUpper, toUpper)
	}

	from, ok := q.registry.BySymbol(fromUpper)
	if !ok {
		return nil, dcaerr.Newf(dcaerr.PairUnsupported, "unknown symbol %q", fromUpper)
	}
	to, ok := q.registry.BySymbol(toUpper)
	if !ok {
		return nil, dcaerr.Newf(dcaerr.PairUnsupported, "unknown symbol %q", toUpper)
	}

	path, err := q.buildPath(from, to)
	if err != nil {
		return nil, err
	}

	fromAmountRaw, err := toSmallestUnit(fromAmount, from.Decimals)
	if err != nil {
		return nil, dcaerr.Wrap(dcaerr.InvalidArgument, "converting from_amount to smallest unit", err)
	}

	out, err := q.reader.ReadContract(ctx, q.router, "getAmountsOut", fromAmountRaw, path)
	if err != nil {
		return nil, dcaerr.Wrap(dcaerr.UpstreamError, "getAmountsOut", err)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, dcaerr.New(dcaerr.UpstreamError, "getAmountsOut returned no amounts")
	}

	toAmountRaw := amounts[len(amounts)-1]
	minReceived := minimumReceived(toAmountRaw, slippageBps)

	price := rawToDecimal(toAmountRaw, to.Decimals).Div(rawToDecimal(fromAmountRaw, from.Decimals))

	return &Quote{
		Path:               path,
		FromAmountRaw:      fromAmountRaw,
		ToAmountRaw:        toAmountRaw,
		MinimumReceivedRaw: minReceived,
		Price:              price,
		Deadline:           time.Now().Add(deadlineWindow),
		SlippageBps:        slippageBps,
	}, nil
}

// buildPath implements §4.4 step 2's path construction rules.
func (q *Quoter) buildPath(from, to token.Token) ([]common.Address, error) {
	wrapped := q.registry.WrappedNative()

	if from.Native && to.Native {
		return nil, dcaerr.New(dcaerr.PairUnsupported, "native-to-native swap has no route")
	}

	routedFrom, routedTo := from, to
	if from.Native {
		routedFrom = wrapped
	}
	if to.Native {
		routedTo = wrapped
	}

	if routedFrom.Address == routedTo.Address {
		return nil, dcaerr.New(dcaerr.PairUnsupported, "native-to-native swap has no route")
	}

	if q.hasDirectPool(routedFrom.Symbol, routedTo.Symbol) ||
		routedFrom.Address == wrapped.Address || routedTo.Address == wrapped.Address {
		return []common.Address{routedFrom.Address, routedTo.Address}, nil
	}

	return []common.Address{routedFrom.Address, wrapped.Address, routedTo.Address}, nil
}

func toSmallestUnit(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	scaled := amount.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount has more precision than %d decimals", decimals)
	}
	raw := scaled.Truncate(0).BigInt()
	if raw.Sign() <= 0 {
		return nil, fmt.Errorf("amount resolves to a non-positive smallest-unit integer")
	}
	return raw, nil
}

func rawToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(raw, 0).Shift(-int32(decimals))
}

// minimumReceived computes floor(toAmountRaw * (10000 - slippageBps) / 10000).
func minimumReceived(toAmountRaw *big.Int, slippageBps int) *big.Int {
	factor := big.NewInt(int64(slippageBpsDenominator - slippageBps))
	num := new(big.Int).Mul(toAmountRaw, factor)
	return num.Div(num, big.NewInt(slippageBpsDenominator))
}
