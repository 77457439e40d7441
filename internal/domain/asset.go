package domain

import (
	"strings"

	"github.com/pkg/errors"
)

// Default symbol universe.
var (
	DefaultSymbols    = []string{"BTC", "ETH", "BNB", "SOL", "XRP", "ADA", "DOGE", "DOT"}
	DefaultSettlement = "ETH"
	DefaultBenchmark  = "BTC"
	DefaultQuote      = "USDT"
)

// Route tells where an asset's balance is authoritative.
type Route string

const (
	// RouteOnChain asset is registered in the ledger contract.
	RouteOnChain Route = "onchain"
	// RouteOffChain asset lives in the journal only.
	RouteOffChain Route = "offchain"
)

// AssetSet is the fixed set of supported symbols and their routing.
type AssetSet struct {
	symbols    []string
	index      map[string]struct{}
	settlement string
	benchmark  string
	quote      string
}

// NewAssetSet validates the universe. Settlement and benchmark must be part of it.
func NewAssetSet(symbols []string, settlement, benchmark, quote string) (*AssetSet, error) {
	if len(symbols) == 0 {
		return nil, errors.New("asset set is empty")
	}
	s := &AssetSet{
		index:      make(map[string]struct{}, len(symbols)),
		settlement: strings.ToUpper(settlement),
		benchmark:  strings.ToUpper(benchmark),
		quote:      strings.ToUpper(quote),
	}
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			return nil, errors.New("empty symbol in asset set")
		}
		if _, dup := s.index[sym]; dup {
			return nil, errors.Errorf("duplicate symbol %s", sym)
		}
		s.index[sym] = struct{}{}
		s.symbols = append(s.symbols, sym)
	}
	if _, ok := s.index[s.settlement]; !ok {
		return nil, errors.Errorf("settlement asset %s is not in the asset set", settlement)
	}
	if _, ok := s.index[s.benchmark]; !ok {
		return nil, errors.Errorf("benchmark asset %s is not in the asset set", benchmark)
	}
	if s.quote == "" {
		s.quote = DefaultQuote
	}

	return s, nil
}

// DefaultAssetSet returns the stock eight-symbol universe.
func DefaultAssetSet() *AssetSet {
	s, err := NewAssetSet(DefaultSymbols, DefaultSettlement, DefaultBenchmark, DefaultQuote)
	if err != nil {
		panic(err)
	}
	return s
}

// Symbols returns supported symbols in configured order.
func (s *AssetSet) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// Tracked returns symbols that settle through the ledger contract.
func (s *AssetSet) Tracked() []string {
	out := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		if !s.IsOffChainOnly(sym) {
			out = append(out, sym)
		}
	}
	return out
}

// Normalize upper-cases the symbol and checks support.
func (s *AssetSet) Normalize(symbol string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := s.index[sym]; !ok {
		return "", errors.Wrapf(ErrUnsupportedAsset, "symbol %q", symbol)
	}
	return sym, nil
}

// IsSupported reports whether the symbol is part of the universe.
func (s *AssetSet) IsSupported(symbol string) bool {
	_, err := s.Normalize(symbol)
	return err == nil
}

// IsOffChainOnly reports whether the symbol is the settlement or benchmark asset.
func (s *AssetSet) IsOffChainOnly(symbol string) bool {
	sym := strings.ToUpper(symbol)
	return sym == s.settlement || sym == s.benchmark
}

// RouteOf returns where the symbol's balance is authoritative.
func (s *AssetSet) RouteOf(symbol string) Route {
	if s.IsOffChainOnly(symbol) {
		return RouteOffChain
	}
	return RouteOnChain
}

// Settlement returns the settlement asset symbol.
func (s *AssetSet) Settlement() string { return s.settlement }

// Benchmark returns the benchmark asset symbol.
func (s *AssetSet) Benchmark() string { return s.benchmark }

// Quote returns the upstream quote currency.
func (s *AssetSet) Quote() string { return s.quote }

// Pair returns the upstream pair for the symbol.
func (s *AssetSet) Pair(symbol string) Pair {
	return NewPair(strings.ToUpper(symbol), s.quote)
}
