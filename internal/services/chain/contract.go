package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/ledger"
)

// Record on-chain transaction record as returned by the contract.
type Record struct {
	ID        uint64
	Account   common.Address
	Symbol    string
	Amount    *big.Int
	Price     *big.Int
	IsBuy     bool
	Timestamp uint64
	Completed bool
}

// ToDomain converts fixed-point fields into decimals.
func (r Record) ToDomain() domain.OnChainTx {
	tt := domain.TradeTypeSell
	if r.IsBuy {
		tt = domain.TradeTypeBuy
	}
	return domain.OnChainTx{
		ID:        r.ID,
		Account:   r.Account,
		Symbol:    r.Symbol,
		Amount:    domain.FromUnits(r.Amount),
		Price:     domain.FromUnits(r.Price),
		Type:      tt,
		Timestamp: time.Unix(int64(r.Timestamp), 0).UTC(),
		Completed: r.Completed,
	}
}

// AssetInfo registered asset.
type AssetInfo struct {
	Symbol string
	Price  *big.Int
	Active bool
}

// Trade confirmed buy or sell decoded from the contract event.
type Trade struct {
	TxHash common.Hash
	Block  uint64
	TxID   uint64
	Amount *big.Int
	Price  *big.Int
	// Settled is the cost of a buy or the proceeds of a sell.
	Settled *big.Int
}

// Buy purchases amount of symbol paying value. The returned Trade carries the
// hash whenever the transaction reached the node, even if err is set.
func (c *Client) Buy(ctx context.Context, key *ecdsa.PrivateKey, symbol string, amount, value *big.Int) (*Trade, error) {
	out, err := c.Transact(ctx, key, value, ledger.MethodBuy, symbol, amount)
	return c.trade(out, err, ledger.EventBought)
}

// Sell sells amount of symbol back to the contract reserve.
func (c *Client) Sell(ctx context.Context, key *ecdsa.PrivateKey, symbol string, amount *big.Int) (*Trade, error) {
	out, err := c.Transact(ctx, key, nil, ledger.MethodSell, symbol, amount)
	return c.trade(out, err, ledger.EventSold)
}

// AddAsset registers symbol at price. Privileged.
func (c *Client) AddAsset(ctx context.Context, key *ecdsa.PrivateKey, symbol string, price *big.Int) (*Outcome, error) {
	return c.Transact(ctx, key, nil, ledger.MethodAddAsset, symbol, price)
}

// UpdatePrice sets a new price for symbol. Privileged.
func (c *Client) UpdatePrice(ctx context.Context, key *ecdsa.PrivateKey, symbol string, price *big.Int) (*Outcome, error) {
	return c.Transact(ctx, key, nil, ledger.MethodUpdatePrice, symbol, price)
}

// DepositReserve funds the settlement reserve. Privileged.
func (c *Client) DepositReserve(ctx context.Context, key *ecdsa.PrivateKey, value *big.Int) (*Outcome, error) {
	return c.Transact(ctx, key, value, ledger.MethodDepositReserve)
}

// WithdrawReserve takes amount out of the settlement reserve. Privileged.
func (c *Client) WithdrawReserve(ctx context.Context, key *ecdsa.PrivateKey, amount *big.Int) (*Outcome, error) {
	return c.Transact(ctx, key, nil, ledger.MethodWithdrawReserve, amount)
}

func (c *Client) trade(out *Outcome, err error, event string) (*Trade, error) {
	if out == nil {
		return nil, err
	}
	t := &Trade{TxHash: out.TxHash}
	if err != nil {
		return t, err
	}

	t.Block = out.Receipt.BlockNumber.Uint64()
	if decodeErr := c.decodeTrade(out.Receipt, event, t); decodeErr != nil {
		return t, errors.Wrap(decodeErr, "decode trade event")
	}
	return t, nil
}

func (c *Client) decodeTrade(receipt *types.Receipt, event string, t *Trade) error {
	ev := c.abi.Events[event]
	for _, lg := range receipt.Logs {
		if lg.Address != c.contract || len(lg.Topics) < 2 || lg.Topics[0] != ev.ID {
			continue
		}
		values, err := c.abi.Unpack(event, lg.Data)
		if err != nil {
			return err
		}
		if len(values) != 4 {
			return errors.Errorf("unexpected %s payload size %d", event, len(values))
		}
		t.TxID = new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64()
		t.Amount, _ = values[1].(*big.Int)
		t.Price, _ = values[2].(*big.Int)
		t.Settled, _ = values[3].(*big.Int)
		return nil
	}
	return errors.Errorf("no %s event in receipt %s", event, receipt.TxHash.Hex())
}

// BalanceOf returns the recorded balance of account in symbol.
func (c *Client) BalanceOf(ctx context.Context, account common.Address, symbol string) (*big.Int, error) {
	out, err := c.read(ctx, ledger.MethodBalanceOf, account, symbol)
	if err != nil {
		return nil, err
	}
	return bigAt(out, 0)
}

// PriceOf returns the unit price of symbol in settlement units, zero if unregistered.
func (c *Client) PriceOf(ctx context.Context, symbol string) (*big.Int, error) {
	out, err := c.read(ctx, ledger.MethodPriceOf, symbol)
	if err != nil {
		return nil, err
	}
	return bigAt(out, 0)
}

// Reserve returns the settlement reserve.
func (c *Client) Reserve(ctx context.Context) (*big.Int, error) {
	out, err := c.read(ctx, ledger.MethodReserve)
	if err != nil {
		return nil, err
	}
	return bigAt(out, 0)
}

// Owner returns the privileged principal.
func (c *Client) Owner(ctx context.Context) (common.Address, error) {
	out, err := c.read(ctx, ledger.MethodOwner)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, errors.Errorf("unexpected owner type %T", out[0])
	}
	return addr, nil
}

// TransactionByID returns the record with id. Unknown ids give a zero record.
func (c *Client) TransactionByID(ctx context.Context, id uint64) (*Record, error) {
	out, err := c.read(ctx, ledger.MethodTransactionByID, new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	if len(out) != 8 {
		return nil, errors.Errorf("unexpected transaction payload size %d", len(out))
	}
	r := &Record{}
	idv, err := bigAt(out, 0)
	if err != nil {
		return nil, err
	}
	r.ID = idv.Uint64()
	r.Account, _ = out[1].(common.Address)
	r.Symbol, _ = out[2].(string)
	if r.Amount, err = bigAt(out, 3); err != nil {
		return nil, err
	}
	if r.Price, err = bigAt(out, 4); err != nil {
		return nil, err
	}
	r.IsBuy, _ = out[5].(bool)
	ts, err := bigAt(out, 6)
	if err != nil {
		return nil, err
	}
	r.Timestamp = ts.Uint64()
	r.Completed, _ = out[7].(bool)
	return r, nil
}

// TransactionsByAccount returns record ids of account in execution order.
func (c *Client) TransactionsByAccount(ctx context.Context, account common.Address) ([]uint64, error) {
	out, err := c.read(ctx, ledger.MethodTransactionsByAccount, account)
	if err != nil {
		return nil, err
	}
	list, ok := out[0].([]*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected id list type %T", out[0])
	}
	ids := make([]uint64, len(list))
	for i, v := range list {
		ids[i] = v.Uint64()
	}
	return ids, nil
}

// ListAssets returns registered assets in registration order.
func (c *Client) ListAssets(ctx context.Context) ([]AssetInfo, error) {
	out, err := c.read(ctx, ledger.MethodListAssets)
	if err != nil {
		return nil, err
	}
	symbols, ok1 := out[0].([]string)
	prices, ok2 := out[1].([]*big.Int)
	active, ok3 := out[2].([]bool)
	if !ok1 || !ok2 || !ok3 || len(symbols) != len(prices) || len(symbols) != len(active) {
		return nil, errors.New("unexpected listAssets payload")
	}
	assets := make([]AssetInfo, len(symbols))
	for i := range symbols {
		assets[i] = AssetInfo{Symbol: symbols[i], Price: prices[i], Active: active[i]}
	}
	return assets, nil
}

// TradeByHash resolves the contract record created by a transaction.
// It returns nil when the transaction is unknown or did not trade.
func (c *Client) TradeByHash(ctx context.Context, hash common.Hash) (*Record, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("receipt", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, nil
	}

	bought, sold := c.abi.Events[ledger.EventBought].ID, c.abi.Events[ledger.EventSold].ID
	for _, lg := range receipt.Logs {
		if lg.Address != c.contract || len(lg.Topics) < 2 {
			continue
		}
		if lg.Topics[0] != bought && lg.Topics[0] != sold {
			continue
		}
		return c.TransactionByID(ctx, new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64())
	}
	return nil, nil
}

// Receipt returns the receipt of hash, or nil if it is not mined.
func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("receipt", err)
	}
	return receipt, nil
}

// NativeBalance returns the settlement-asset balance of an address.
func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, classify("balance", err)
	}
	return bal, nil
}

func (c *Client) read(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, classify("call "+method, err)
	}
	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}
	if len(out) == 0 {
		return nil, errors.Errorf("empty %s result", method)
	}
	return out, nil
}

func bigAt(values []any, i int) (*big.Int, error) {
	if i >= len(values) {
		return nil, errors.Errorf("missing output %d", i)
	}
	v, ok := values[i].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected output %d type %T", i, values[i])
	}
	return v, nil
}
