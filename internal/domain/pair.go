// Package domain defines core data structures shared by the settlement engine.
package domain

import "fmt"

// Pair market pair used to address an upstream ticker.
type Pair struct {
	// From base asset symbol.
	From string
	// To quote currency symbol.
	To string
}

// NewPair builds a pair for the base symbol against the quote currency.
func NewPair(symbol, quote string) Pair {
	return Pair{From: symbol, To: quote}
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated exchange symbol, e.g. BTCUSDT.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}
