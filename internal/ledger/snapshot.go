package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/tradeledger/internal/storage/chainstate"
)

func (n *Node) snapshot() chainstate.State {
	c := n.state.contract
	state := chainstate.State{
		ChainID:  n.chainID.String(),
		Head:     n.head.Number.Uint64(),
		HeadTime: n.head.Time,
		Accounts: make(map[string]chainstate.AccountState, len(n.state.accounts)),
		Contract: chainstate.ContractState{
			Address:  c.address.Hex(),
			Owner:    c.owner.Hex(),
			Reserve:  c.reserve.Dec(),
			Balances: make(map[string]map[string]string, len(c.balances)),
		},
		Receipts: make([]*types.Receipt, 0, len(n.receipts)),
	}
	for addr, acc := range n.state.accounts {
		state.Accounts[addr.Hex()] = chainstate.AccountState{Balance: acc.balance.Dec(), Nonce: acc.nonce}
	}
	for _, a := range c.ListAssets() {
		state.Contract.Assets = append(state.Contract.Assets, chainstate.AssetState{
			Symbol: a.Symbol, Price: a.Price.Dec(), Active: a.Active,
		})
	}
	for _, acc := range c.sortedAccounts() {
		bals := make(map[string]string, len(c.balances[acc]))
		for sym, v := range c.balances[acc] {
			bals[sym] = v.Dec()
		}
		state.Contract.Balances[acc.Hex()] = bals
	}
	for _, r := range c.records {
		state.Contract.Records = append(state.Contract.Records, chainstate.RecordState{
			ID:        r.ID,
			Account:   r.Account.Hex(),
			Symbol:    r.Symbol,
			Amount:    r.Amount.Dec(),
			Price:     r.Price.Dec(),
			IsBuy:     r.IsBuy,
			Timestamp: r.Timestamp,
			Completed: r.Completed,
		})
	}
	for _, r := range n.receipts {
		state.Receipts = append(state.Receipts, r)
	}

	return state
}

func (n *Node) restore() (bool, error) {
	if n.store == nil {
		return false, nil
	}
	state, err := n.store.Load()
	if err != nil {
		return false, err
	}
	if state == nil {
		return false, nil
	}
	if state.ChainID != n.chainID.String() {
		return false, errors.Errorf("stored chain id %s does not match %s", state.ChainID, n.chainID)
	}

	c := NewContract(common.HexToAddress(state.Contract.Address), common.HexToAddress(state.Contract.Owner))
	if c.reserve, err = parseUint(state.Contract.Reserve); err != nil {
		return false, errors.Wrap(err, "reserve")
	}
	for _, a := range state.Contract.Assets {
		price, err := parseUint(a.Price)
		if err != nil {
			return false, errors.Wrapf(err, "price of %s", a.Symbol)
		}
		c.assets[a.Symbol] = &Asset{Symbol: a.Symbol, Price: price, Active: a.Active}
		c.order = append(c.order, a.Symbol)
	}
	for acc, bals := range state.Contract.Balances {
		for sym, raw := range bals {
			v, err := parseUint(raw)
			if err != nil {
				return false, errors.Wrapf(err, "balance of %s in %s", acc, sym)
			}
			c.setBalance(common.HexToAddress(acc), sym, v)
		}
	}
	for _, r := range state.Contract.Records {
		amount, err := parseUint(r.Amount)
		if err != nil {
			return false, errors.Wrapf(err, "amount of record %d", r.ID)
		}
		price, err := parseUint(r.Price)
		if err != nil {
			return false, errors.Wrapf(err, "price of record %d", r.ID)
		}
		account := common.HexToAddress(r.Account)
		c.records = append(c.records, Record{
			ID: r.ID, Account: account, Symbol: r.Symbol, Amount: amount, Price: price,
			IsBuy: r.IsBuy, Timestamp: r.Timestamp, Completed: r.Completed,
		})
		c.byAccount[account] = append(c.byAccount[account], r.ID)
	}

	w := &world{contract: c, accounts: make(map[common.Address]*account, len(state.Accounts))}
	for addr, acc := range state.Accounts {
		bal, err := parseUint(acc.Balance)
		if err != nil {
			return false, errors.Wrapf(err, "balance of %s", addr)
		}
		w.accounts[common.HexToAddress(addr)] = &account{balance: bal, nonce: acc.Nonce}
	}
	for _, r := range state.Receipts {
		n.receipts[r.TxHash] = r
	}

	n.state = w
	n.head = &types.Header{
		Number:   new(big.Int).SetUint64(state.Head),
		Time:     state.HeadTime,
		GasLimit: blockGasLimit,
		BaseFee:  new(big.Int).Set(n.baseFee),
	}
	return true, nil
}

func parseUint(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(s)
}
