// Package token holds the static, process-lifetime mapping of token symbols
// to on-chain addresses.
package token

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token is a value object describing one ERC-20 (or the chain's native coin).
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
	Native   bool
}

// Registry is a static, read-only-after-construction symbol table.
// Exactly one entry is designated the wrapped form of the native coin.
type Registry struct {
	bySymbol      map[string]Token
	wrappedNative string
}

// Entry describes one token as loaded from configuration.
type Entry struct {
	Symbol         string
	Address        string
	Decimals       uint8
	Native         bool
	WrappedNative  bool
}

// NewRegistry builds a Registry from a list of entries, validating that
// symbols and addresses are unique and that exactly one wrapped-native
// token is designated.
func NewRegistry(entries []Entry) (*Registry, error) {
	r := &Registry{bySymbol: make(map[string]Token, len(entries))}

	seenAddr := make(map[common.Address]string, len(entries))
	for _, e := range entries {
		symbol := strings.ToUpper(strings.TrimSpace(e.Symbol))
		if symbol == "" {
			return nil, fmt.Errorf("token registry: entry with empty symbol")
		}
		if _, exists := r.bySymbol[symbol]; exists {
			return nil, fmt.Errorf("token registry: duplicate symbol %q", symbol)
		}

		addr := common.HexToAddress(e.Address)
		if owner, exists := seenAddr[addr]; exists {
			return nil, fmt.Errorf("token registry: address %s used by both %q and %q", addr.Hex(), owner, symbol)
		}
		seenAddr[addr] = symbol

		r.bySymbol[symbol] = Token{
			Symbol:   symbol,
			Address:  addr,
			Decimals: e.Decimals,
			Native:   e.Native,
		}

		if e.WrappedNative {
			if r.wrappedNative != "" {
				return nil, fmt.Errorf("token registry: multiple wrapped-native entries (%q and %q)", r.wrappedNative, symbol)
			}
			r.wrappedNative = symbol
		}
	}

	if r.wrappedNative == "" {
		return nil, fmt.Errorf("token registry: no wrapped-native token designated")
	}

	return r, nil
}

// BySymbol resolves a symbol to its Token. ok is false when the symbol is unknown.
func (r *Registry) BySymbol(symbol string) (Token, bool) {
	t, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return t, ok
}

// WrappedNative returns the registry's designated wrapped-native token.
func (r *Registry) WrappedNative() Token {
	return r.bySymbol[r.wrappedNative]
}

// IsNative reports whether symbol names the chain's native coin (not its wrapped form).
func (r *Registry) IsNative(symbol string) bool {
	t, ok := r.BySymbol(symbol)
	return ok && t.Native
}

// IsWrappedNative reports whether symbol is the registry's wrapped-native token.
func (r *Registry) IsWrappedNative(symbol string) bool {
	return strings.EqualFold(symbol, r.wrappedNative)
}
