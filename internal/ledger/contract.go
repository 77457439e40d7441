package ledger

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Scale is one whole unit in 18-decimal fixed point.
var Scale = uint256.NewInt(1_000_000_000_000_000_000)

// Asset registered tradable asset.
type Asset struct {
	Symbol string
	Price  *uint256.Int
	Active bool
}

// Record on-chain transaction record.
type Record struct {
	ID        uint64
	Account   common.Address
	Symbol    string
	Amount    *uint256.Int
	Price     *uint256.Int
	IsBuy     bool
	Timestamp uint64
	Completed bool
}

// Call carries the execution context of one contract invocation.
type Call struct {
	Caller common.Address
	Value  *uint256.Int
	Time   uint64

	logs   []*types.Log
	payout *uint256.Int
}

// NewCall creates an execution context. A nil value means no native transfer.
func NewCall(caller common.Address, value *uint256.Int, now uint64) *Call {
	if value == nil {
		value = new(uint256.Int)
	}
	return &Call{Caller: caller, Value: value, Time: now, payout: new(uint256.Int)}
}

// Logs returns the events emitted during the call.
func (c *Call) Logs() []*types.Log { return c.logs }

// Payout returns the native amount owed back to the caller.
func (c *Call) Payout() *uint256.Int { return c.payout }

// Contract is the ledger state machine. It is not safe for concurrent use;
// the Node serializes every call.
//
// All stored *uint256.Int values are treated as immutable: updates replace
// the pointer, so a shallow clone never observes later writes.
type Contract struct {
	address   common.Address
	owner     common.Address
	assets    map[string]*Asset
	order     []string
	balances  map[common.Address]map[string]*uint256.Int
	records   []Record
	byAccount map[common.Address][]uint64
	reserve   *uint256.Int
}

// NewContract deploys an empty ledger at address with owner as the privileged principal.
func NewContract(address, owner common.Address) *Contract {
	return &Contract{
		address:   address,
		owner:     owner,
		assets:    make(map[string]*Asset),
		balances:  make(map[common.Address]map[string]*uint256.Int),
		byAccount: make(map[common.Address][]uint64),
		reserve:   new(uint256.Int),
	}
}

// Address returns the contract address.
func (c *Contract) Address() common.Address { return c.address }

// Owner returns the privileged principal.
func (c *Contract) Owner() common.Address { return c.owner }

func (c *Contract) clone() *Contract {
	cp := &Contract{
		address:   c.address,
		owner:     c.owner,
		assets:    make(map[string]*Asset, len(c.assets)),
		order:     c.order[:len(c.order):len(c.order)],
		balances:  make(map[common.Address]map[string]*uint256.Int, len(c.balances)),
		records:   c.records[:len(c.records):len(c.records)],
		byAccount: make(map[common.Address][]uint64, len(c.byAccount)),
		reserve:   c.reserve,
	}
	for sym, a := range c.assets {
		asset := *a
		cp.assets[sym] = &asset
	}
	for acc, bals := range c.balances {
		m := make(map[string]*uint256.Int, len(bals))
		for sym, v := range bals {
			m[sym] = v
		}
		cp.balances[acc] = m
	}
	for acc, ids := range c.byAccount {
		cp.byAccount[acc] = ids[:len(ids):len(ids)]
	}
	return cp
}

func (c *Contract) authorize(call *Call) error {
	if call.Caller != c.owner {
		return ErrUnauthorized
	}
	return nil
}

// AddAsset registers a new asset. Privileged.
func (c *Contract) AddAsset(call *Call, symbol string, price *uint256.Int) error {
	if err := c.authorize(call); err != nil {
		return err
	}
	if symbol == "" {
		return ErrInvalidSymbol
	}
	if _, ok := c.assets[symbol]; ok {
		return ErrAlreadyRegistered
	}
	if price == nil || price.IsZero() {
		return ErrInvalidPrice
	}

	c.assets[symbol] = &Asset{Symbol: symbol, Price: price.Clone(), Active: true}
	c.order = append(c.order, symbol)
	c.emit(call, EventAssetAdded, nil, symbol, price.ToBig())
	return nil
}

// UpdatePrice replaces the unit price of a registered asset. Privileged.
// There is no bound on the size of the change.
func (c *Contract) UpdatePrice(call *Call, symbol string, price *uint256.Int) error {
	if err := c.authorize(call); err != nil {
		return err
	}
	asset, ok := c.assets[symbol]
	if !ok {
		return ErrNotRegistered
	}
	if price == nil || price.IsZero() {
		return ErrInvalidPrice
	}

	old := asset.Price
	asset.Price = price.Clone()
	c.emit(call, EventPriceUpdated, nil, symbol, old.ToBig(), price.ToBig())
	return nil
}

// Buy credits amount of symbol to the caller against call.Value.
// Overpayment is returned through the call payout.
func (c *Contract) Buy(call *Call, symbol string, amount *uint256.Int) (uint64, error) {
	asset, ok := c.assets[symbol]
	if !ok || !asset.Active {
		return 0, ErrNotRegistered
	}
	if amount == nil || amount.IsZero() {
		return 0, ErrInvalidAmount
	}
	cost, overflow := new(uint256.Int).MulDivOverflow(amount, asset.Price, Scale)
	if overflow {
		return 0, ErrOverflow
	}
	if call.Value.Lt(cost) {
		return 0, ErrInsufficientPayment
	}
	balance := c.balanceOf(call.Caller, symbol)
	credited, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return 0, ErrOverflow
	}

	c.setBalance(call.Caller, symbol, credited)
	c.reserve = new(uint256.Int).Add(c.reserve, cost)
	call.payout = new(uint256.Int).Add(call.payout, new(uint256.Int).Sub(call.Value, cost))

	id := c.record(call, symbol, amount, asset.Price, true)
	c.emit(call, EventBought,
		[]common.Hash{idTopic(id), common.BytesToHash(call.Caller.Bytes())},
		symbol, amount.ToBig(), asset.Price.ToBig(), cost.ToBig())
	return id, nil
}

// Sell debits amount of symbol from the caller and pays proceeds from the reserve.
func (c *Contract) Sell(call *Call, symbol string, amount *uint256.Int) (uint64, error) {
	asset, ok := c.assets[symbol]
	if !ok || !asset.Active {
		return 0, ErrNotRegistered
	}
	if amount == nil || amount.IsZero() {
		return 0, ErrInvalidAmount
	}
	balance := c.balanceOf(call.Caller, symbol)
	if balance.Lt(amount) {
		return 0, ErrInsufficientBalance
	}
	proceeds, overflow := new(uint256.Int).MulDivOverflow(amount, asset.Price, Scale)
	if overflow {
		return 0, ErrOverflow
	}
	if c.reserve.Lt(proceeds) {
		return 0, ErrInsufficientReserve
	}

	c.setBalance(call.Caller, symbol, new(uint256.Int).Sub(balance, amount))
	c.reserve = new(uint256.Int).Sub(c.reserve, proceeds)
	call.payout = new(uint256.Int).Add(call.payout, proceeds)

	id := c.record(call, symbol, amount, asset.Price, false)
	c.emit(call, EventSold,
		[]common.Hash{idTopic(id), common.BytesToHash(call.Caller.Bytes())},
		symbol, amount.ToBig(), asset.Price.ToBig(), proceeds.ToBig())
	return id, nil
}

// DepositReserve adds call.Value to the settlement reserve. Privileged.
func (c *Contract) DepositReserve(call *Call) error {
	if err := c.authorize(call); err != nil {
		return err
	}
	if call.Value.IsZero() {
		return ErrInvalidAmount
	}
	c.reserve = new(uint256.Int).Add(c.reserve, call.Value)
	c.emit(call, EventReserveChanged, nil, c.reserve.ToBig())
	return nil
}

// WithdrawReserve pays amount from the reserve to the owner. Privileged.
func (c *Contract) WithdrawReserve(call *Call, amount *uint256.Int) error {
	if err := c.authorize(call); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if c.reserve.Lt(amount) {
		return ErrInsufficientReserve
	}
	c.reserve = new(uint256.Int).Sub(c.reserve, amount)
	call.payout = new(uint256.Int).Add(call.payout, amount)
	c.emit(call, EventReserveChanged, nil, c.reserve.ToBig())
	return nil
}

// BalanceOf returns the recorded balance, zero when unknown.
func (c *Contract) BalanceOf(account common.Address, symbol string) *uint256.Int {
	return c.balanceOf(account, symbol).Clone()
}

// PriceOf returns the asset unit price, zero when unregistered.
func (c *Contract) PriceOf(symbol string) *uint256.Int {
	if a, ok := c.assets[symbol]; ok {
		return a.Price.Clone()
	}
	return new(uint256.Int)
}

// TransactionByID returns the record with the given id, or a zero record.
func (c *Contract) TransactionByID(id uint64) Record {
	if id == 0 || id > uint64(len(c.records)) {
		return Record{Amount: new(uint256.Int), Price: new(uint256.Int)}
	}
	return c.records[id-1]
}

// TransactionsByAccount returns the account's record ids in execution order.
func (c *Contract) TransactionsByAccount(account common.Address) []uint64 {
	ids := c.byAccount[account]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

// TransactionCount returns the id of the last record.
func (c *Contract) TransactionCount() uint64 {
	return uint64(len(c.records))
}

// ListAssets returns registered assets in registration order.
func (c *Contract) ListAssets() []Asset {
	out := make([]Asset, 0, len(c.order))
	for _, sym := range c.order {
		a := c.assets[sym]
		out = append(out, Asset{Symbol: a.Symbol, Price: a.Price.Clone(), Active: a.Active})
	}
	return out
}

// Reserve returns the settlement reserve held by the contract.
func (c *Contract) Reserve() *uint256.Int {
	return c.reserve.Clone()
}

func (c *Contract) balanceOf(account common.Address, symbol string) *uint256.Int {
	if bals, ok := c.balances[account]; ok {
		if v, ok := bals[symbol]; ok {
			return v
		}
	}
	return new(uint256.Int)
}

func (c *Contract) setBalance(account common.Address, symbol string, v *uint256.Int) {
	bals, ok := c.balances[account]
	if !ok {
		bals = make(map[string]*uint256.Int)
		c.balances[account] = bals
	}
	bals[symbol] = v
}

func (c *Contract) record(call *Call, symbol string, amount, price *uint256.Int, isBuy bool) uint64 {
	id := uint64(len(c.records)) + 1
	c.records = append(c.records, Record{
		ID:        id,
		Account:   call.Caller,
		Symbol:    symbol,
		Amount:    amount.Clone(),
		Price:     price,
		IsBuy:     isBuy,
		Timestamp: call.Time,
		Completed: true,
	})
	c.byAccount[call.Caller] = append(c.byAccount[call.Caller], id)
	return id
}

func (c *Contract) emit(call *Call, name string, indexed []common.Hash, args ...any) {
	event := parsedABI.Events[name]
	data, err := event.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		// arguments are built from the ABI above; a mismatch is a programming error
		panic(err)
	}
	topics := append([]common.Hash{event.ID}, indexed...)
	call.logs = append(call.logs, &types.Log{Address: c.address, Topics: topics, Data: data})
}

func idTopic(id uint64) common.Hash {
	return common.BigToHash(new(uint256.Int).SetUint64(id).ToBig())
}

// sortedAccounts returns balance holders in a stable order.
func (c *Contract) sortedAccounts() []common.Address {
	out := make([]common.Address, 0, len(c.balances))
	for acc := range c.balances {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}
