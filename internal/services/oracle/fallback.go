package oracle

import "github.com/shopspring/decimal"

// placeholderPrice is used for a configured symbol that has no table entry.
var placeholderPrice = decimal.NewFromInt(1)

var defaultFallback = map[string]decimal.Decimal{
	"BTC":  decimal.NewFromInt(65000),
	"ETH":  decimal.NewFromInt(3500),
	"BNB":  decimal.NewFromInt(580),
	"SOL":  decimal.NewFromInt(150),
	"XRP":  decimal.RequireFromString("0.52"),
	"ADA":  decimal.RequireFromString("0.45"),
	"DOGE": decimal.RequireFromString("0.15"),
	"DOT":  decimal.RequireFromString("7.2"),
}

// FallbackPrices returns a copy of the built-in fallback table.
func FallbackPrices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(defaultFallback))
	for k, v := range defaultFallback {
		out[k] = v
	}
	return out
}
