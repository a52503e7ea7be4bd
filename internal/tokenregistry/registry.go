// Package tokenregistry is the process-wide symbol -> address/decimals map
// for assets the Chain Client and the exchange adapters reason about. It is
// initialized once at startup and passed by reference, per the "global
// token registry" design note: a sub-order's symbol names an exchange pair,
// but the chain only ever deals in a fixed, narrow set of EVM assets.
package tokenregistry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token is a single EVM asset entry: its on-chain address and base-unit
// decimals. The native asset (ETH) carries the zero address.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
	Native   bool
}

// Validate checks a Token's invariants before it is admitted to a Registry.
func (t Token) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	if t.Symbol != strings.ToUpper(t.Symbol) {
		return fmt.Errorf("token symbol %q must be uppercase", t.Symbol)
	}
	if !t.Native && t.Address == (common.Address{}) {
		return fmt.Errorf("token %s: non-native asset must have a non-zero address", t.Symbol)
	}
	return nil
}

// Registry is the broker's EVM-only asset map. It is built once at startup
// and is read-only thereafter, so lookups need no locking.
type Registry struct {
	tokens      []Token
	symbolIndex map[string]int
	feeAsset    string
}

// New builds a Registry from the given tokens plus the fixed ORN fee asset
// entry, which every signed order references regardless of the sub-order's
// own symbol. feeAssetAddress is read from configuration since it differs
// between mainnet and the test network.
func New(tokens []Token, feeAssetAddress common.Address) (*Registry, error) {
	r := &Registry{
		tokens:      make([]Token, 0, len(tokens)+1),
		symbolIndex: make(map[string]int),
		feeAsset:    "ORN",
	}

	all := append([]Token{}, tokens...)
	if _, exists := findSymbol(all, "ORN"); !exists {
		all = append(all, Token{Symbol: "ORN", Address: feeAssetAddress, Decimals: 8})
	}

	for _, t := range all {
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(t Token) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, exists := r.symbolIndex[t.Symbol]; exists {
		return fmt.Errorf("token %s already registered", t.Symbol)
	}
	r.symbolIndex[t.Symbol] = len(r.tokens)
	r.tokens = append(r.tokens, t)
	return nil
}

func findSymbol(tokens []Token, symbol string) (Token, bool) {
	for _, t := range tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return Token{}, false
}

// Get returns the token registered under symbol.
func (r *Registry) Get(symbol string) (Token, bool) {
	idx, ok := r.symbolIndex[strings.ToUpper(symbol)]
	if !ok {
		return Token{}, false
	}
	return r.tokens[idx], true
}

// Address returns the asset's on-chain address, or an error wrapping
// UnknownAsset-style behavior the chain client surfaces to callers.
func (r *Registry) Address(symbol string) (common.Address, error) {
	t, ok := r.Get(symbol)
	if !ok {
		return common.Address{}, fmt.Errorf("unknown asset %q", symbol)
	}
	return t.Address, nil
}

// FeeAsset returns the symbol always used as matcherFeeAsset in signed
// orders.
func (r *Registry) FeeAsset() string {
	return r.feeAsset
}

// FeeAssetAddress returns the address of the fixed fee asset.
func (r *Registry) FeeAssetAddress() common.Address {
	t, _ := r.Get(r.feeAsset)
	return t.Address
}
