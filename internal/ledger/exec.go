package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Execute decodes ABI calldata and runs the matching contract method.
// The returned bytes are the ABI-encoded outputs.
func (c *Contract) Execute(call *Call, input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, ErrUnknownMethod
	}
	method, err := parsedABI.MethodById(input[:4])
	if err != nil {
		return nil, ErrUnknownMethod
	}
	if !method.IsPayable() && !call.Value.IsZero() {
		return nil, ErrNonPayable
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, ErrBadCalldata
	}

	var out []any
	switch method.Name {
	case MethodAddAsset:
		price, err := uintArg(args[1])
		if err != nil {
			return nil, err
		}
		if err := c.AddAsset(call, args[0].(string), price); err != nil {
			return nil, err
		}
	case MethodUpdatePrice:
		price, err := uintArg(args[1])
		if err != nil {
			return nil, err
		}
		if err := c.UpdatePrice(call, args[0].(string), price); err != nil {
			return nil, err
		}
	case MethodBuy:
		amount, err := uintArg(args[1])
		if err != nil {
			return nil, err
		}
		id, err := c.Buy(call, args[0].(string), amount)
		if err != nil {
			return nil, err
		}
		out = []any{new(big.Int).SetUint64(id)}
	case MethodSell:
		amount, err := uintArg(args[1])
		if err != nil {
			return nil, err
		}
		id, err := c.Sell(call, args[0].(string), amount)
		if err != nil {
			return nil, err
		}
		out = []any{new(big.Int).SetUint64(id)}
	case MethodDepositReserve:
		if err := c.DepositReserve(call); err != nil {
			return nil, err
		}
	case MethodWithdrawReserve:
		amount, err := uintArg(args[0])
		if err != nil {
			return nil, err
		}
		if err := c.WithdrawReserve(call, amount); err != nil {
			return nil, err
		}
	case MethodBalanceOf:
		out = []any{c.BalanceOf(args[0].(common.Address), args[1].(string)).ToBig()}
	case MethodPriceOf:
		out = []any{c.PriceOf(args[0].(string)).ToBig()}
	case MethodTransactionByID:
		id := args[0].(*big.Int)
		rec := Record{Amount: new(uint256.Int), Price: new(uint256.Int)}
		if id.IsUint64() {
			rec = c.TransactionByID(id.Uint64())
		}
		out = []any{
			new(big.Int).SetUint64(rec.ID), rec.Account, rec.Symbol, rec.Amount.ToBig(), rec.Price.ToBig(),
			rec.IsBuy, new(big.Int).SetUint64(rec.Timestamp), rec.Completed,
		}
	case MethodTransactionsByAccount:
		ids := c.TransactionsByAccount(args[0].(common.Address))
		list := make([]*big.Int, len(ids))
		for i, id := range ids {
			list[i] = new(big.Int).SetUint64(id)
		}
		out = []any{list}
	case MethodTransactionCount:
		out = []any{new(big.Int).SetUint64(c.TransactionCount())}
	case MethodListAssets:
		assets := c.ListAssets()
		symbols := make([]string, len(assets))
		prices := make([]*big.Int, len(assets))
		active := make([]bool, len(assets))
		for i, a := range assets {
			symbols[i], prices[i], active[i] = a.Symbol, a.Price.ToBig(), a.Active
		}
		out = []any{symbols, prices, active}
	case MethodReserve:
		out = []any{c.Reserve().ToBig()}
	case MethodOwner:
		out = []any{c.owner}
	default:
		return nil, ErrUnknownMethod
	}

	return method.Outputs.Pack(out...)
}

// IsView reports whether the calldata targets a read-only method.
func IsView(input []byte) bool {
	if len(input) < 4 {
		return false
	}
	method, err := parsedABI.MethodById(input[:4])
	if err != nil {
		return false
	}
	return method.IsConstant()
}

func uintArg(v any) (*uint256.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, ErrBadCalldata
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrOverflow
	}
	return u, nil
}
