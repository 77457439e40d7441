package domain

import (
	"github.com/shopspring/decimal"
)

// Holding one asset position valued in the quote currency.
type Holding struct {
	Symbol     string          `json:"symbol"`
	Amount     decimal.Decimal `json:"amount"`
	Price      decimal.Decimal `json:"price"`
	Value      decimal.Decimal `json:"value"`
	Percentage decimal.Decimal `json:"percentage"`
	Provenance Provenance      `json:"provenance"`
}

// Portfolio account holdings with their share of the total value.
type Portfolio struct {
	UserID     string          `json:"user_id"`
	Holdings   []Holding       `json:"holdings"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// HistoryItem journal entry annotated with chain data and live price.
type HistoryItem struct {
	Entry        JournalEntry    `json:"entry"`
	OnChain      *OnChainTx      `json:"on_chain,omitempty"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	// ChangePercent price change since execution, in percent.
	ChangePercent decimal.Decimal `json:"change_percent"`
	Provenance    Provenance      `json:"provenance"`
}
