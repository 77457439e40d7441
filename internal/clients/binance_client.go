package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient returns a client for the public market data endpoints.
// Keys may be empty.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}
