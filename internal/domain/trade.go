package domain

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TradeType side of a trade.
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

// String returns the string representation.
func (t TradeType) String() string {
	return string(t)
}

// IsValid checks if the TradeType value is valid.
func (t TradeType) IsValid() bool {
	return t == TradeTypeBuy || t == TradeTypeSell
}

// Account identifies a trader in both ledgers.
type Account struct {
	// UserID journal owner id.
	UserID string
	// Address on-chain identity.
	Address common.Address
	// Key signs contract calls. Optional for read paths.
	Key *ecdsa.PrivateKey
}

// String returns the string representation.
func (a Account) String() string {
	return fmt.Sprintf("%s(%s)", a.UserID, a.Address.Hex())
}

// Order pending buy or sell request.
type Order struct {
	Account Account
	Symbol  string
	// Amount quantity of the asset.
	Amount decimal.Decimal
	// Value counter-value offered for a buy, in settlement units.
	// Zero means pay the exact quoted cost.
	Value decimal.Decimal
}

// String returns a human-readable string representation.
func (o *Order) String() string {
	return fmt.Sprintf("%s %s amount: %s value: %s", o.Account.UserID, o.Symbol, o.Amount.String(), o.Value.String())
}

// JournalEntry append-only off-chain trade record.
type JournalEntry struct {
	ID     string          `json:"id"`
	UserID string          `json:"user_id"`
	Symbol string          `json:"asset_symbol"`
	Amount decimal.Decimal `json:"amount"`
	// Price quote-currency unit price at execution.
	Price decimal.Decimal `json:"price"`
	Type  TradeType       `json:"type"`
	// TxRef chain transaction hash, empty for off-chain-only assets.
	TxRef     string    `json:"external_tx_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasChainRef reports whether the entry points at a contract transaction.
func (e JournalEntry) HasChainRef() bool {
	return e.TxRef != ""
}

// SignedAmount returns +amount for buys and -amount for sells.
func (e JournalEntry) SignedAmount() decimal.Decimal {
	if e.Type == TradeTypeSell {
		return e.Amount.Neg()
	}
	return e.Amount
}

// OnChainTx transaction record kept by the ledger contract.
type OnChainTx struct {
	ID      uint64          `json:"id"`
	Account common.Address  `json:"account"`
	Symbol  string          `json:"symbol"`
	Amount  decimal.Decimal `json:"amount"`
	// Price unit price in settlement units.
	Price     decimal.Decimal `json:"price"`
	Type      TradeType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Completed bool            `json:"completed"`
}

// OrderResult outcome of a successful order.
type OrderResult struct {
	IntentID string        `json:"intent_id"`
	Route    Route         `json:"route"`
	Entry    *JournalEntry `json:"entry,omitempty"`
	Chain    *ChainReceipt `json:"chain,omitempty"`
	// Alert is set when the chain confirmed but the journal write failed.
	Alert *ConsistencyAlert `json:"alert,omitempty"`
}

// ChainReceipt confirmed contract call data.
type ChainReceipt struct {
	TxHash  common.Hash     `json:"tx_hash"`
	Block   uint64          `json:"block"`
	TxID    uint64          `json:"tx_id"`
	Price   decimal.Decimal `json:"price"`
	Settled decimal.Decimal `json:"settled"`
}
