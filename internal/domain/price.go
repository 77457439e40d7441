package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provenance tells where a price came from.
type Provenance string

const (
	ProvenanceLive     Provenance = "live"
	ProvenanceCached   Provenance = "cached"
	ProvenanceFallback Provenance = "fallback"
)

// String returns the string representation.
func (p Provenance) String() string {
	return string(p)
}

// PriceQuote price of one symbol in the quote currency.
type PriceQuote struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  time.Time       `json:"ts"`
	Provenance Provenance      `json:"provenance"`
}

// Stats24h rolling 24h market statistics.
type Stats24h struct {
	Symbol             string          `json:"symbol"`
	LastPrice          decimal.Decimal `json:"last_price"`
	PriceChange        decimal.Decimal `json:"price_change"`
	PriceChangePercent decimal.Decimal `json:"price_change_percent"`
	High               decimal.Decimal `json:"high"`
	Low                decimal.Decimal `json:"low"`
	Volume             decimal.Decimal `json:"volume"`
	QuoteVolume        decimal.Decimal `json:"quote_volume"`
	Timestamp          time.Time       `json:"ts"`
	Provenance         Provenance      `json:"provenance"`
}

// PriceUpdate pushed ticker event.
type PriceUpdate struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"ts"`
}

// ConnState push channel connection state.
type ConnState string

const (
	ConnOpen   ConnState = "open"
	ConnError  ConnState = "error"
	ConnClosed ConnState = "closed"
)

// StateChange connection state transition with the error that caused it, if any.
type StateChange struct {
	State ConnState
	Err   error
}
