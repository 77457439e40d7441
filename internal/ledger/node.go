package ledger

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeledger/internal/storage/chainstate"
)

const (
	// DefaultChainID is the chain id of a fresh node.
	DefaultChainID = 1337
	intrinsicGas   = 21_000
	blockGasLimit  = 30_000_000
)

// execution cost per contract method on top of the intrinsic gas
var methodGas = map[string]uint64{
	MethodAddAsset:        60_000,
	MethodUpdatePrice:     30_000,
	MethodBuy:             110_000,
	MethodSell:            100_000,
	MethodDepositReserve:  25_000,
	MethodWithdrawReserve: 35_000,
}

var errOutOfGas = errors.New("out of gas")

type stateStore interface {
	Load() (*chainstate.State, error)
	Save(state chainstate.State) error
}

type account struct {
	balance *uint256.Int
	nonce   uint64
}

// world is the full mutable state; transactions run on a clone that replaces
// the original only on success.
type world struct {
	contract *Contract
	accounts map[common.Address]*account
}

func (w *world) clone() *world {
	cp := &world{contract: w.contract.clone(), accounts: make(map[common.Address]*account, len(w.accounts))}
	for addr, acc := range w.accounts {
		a := *acc
		cp.accounts[addr] = &a
	}
	return cp
}

func (w *world) account(addr common.Address) *account {
	acc, ok := w.accounts[addr]
	if !ok {
		acc = &account{balance: new(uint256.Int)}
		w.accounts[addr] = acc
	}
	return acc
}

// Node is a single-node chain with instant mining that hosts one ledger contract.
// Every state transition holds one lock, which is the only serialization point
// for contract mutations.
type Node struct {
	mu       sync.Mutex
	chainID  *big.Int
	signer   types.Signer
	baseFee  *big.Int
	tipCap   *big.Int
	now      func() time.Time
	store    stateStore
	genesis  map[common.Address]*big.Int
	l        *zap.Logger
	state    *world
	head     *types.Header
	headers  map[uint64]*types.Header
	receipts map[common.Hash]*types.Receipt
}

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithChainID sets the chain id transactions must be signed for.
func WithChainID(id int64) NodeOption {
	return func(n *Node) {
		n.chainID = big.NewInt(id)
	}
}

// WithBaseFee sets the base fee charged per unit of gas.
func WithBaseFee(fee *big.Int) NodeOption {
	return func(n *Node) {
		n.baseFee = new(big.Int).Set(fee)
	}
}

// WithClock overrides the block timestamp source.
func WithClock(now func() time.Time) NodeOption {
	return func(n *Node) {
		n.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) NodeOption {
	return func(n *Node) {
		n.l = l
	}
}

// WithStateStore persists the chain after every block and restores it on start.
func WithStateStore(store stateStore) NodeOption {
	return func(n *Node) {
		n.store = store
	}
}

// WithGenesis funds accounts when the chain starts empty.
func WithGenesis(alloc map[common.Address]*big.Int) NodeOption {
	return func(n *Node) {
		n.genesis = alloc
	}
}

// NewNode starts a chain with the ledger contract deployed by owner.
func NewNode(owner common.Address, opts ...NodeOption) (*Node, error) {
	n := &Node{
		chainID:  big.NewInt(DefaultChainID),
		baseFee:  new(big.Int),
		tipCap:   new(big.Int),
		now:      time.Now,
		l:        zap.NewNop(),
		headers:  make(map[uint64]*types.Header),
		receipts: make(map[common.Hash]*types.Receipt),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.l == nil {
		n.l = zap.NewNop()
	}
	n.signer = types.LatestSignerForChainID(n.chainID)

	restored, err := n.restore()
	if err != nil {
		return nil, errors.Wrap(err, "restore chain state")
	}
	if !restored {
		n.state = &world{
			contract: NewContract(crypto.CreateAddress(owner, 0), owner),
			accounts: make(map[common.Address]*account),
		}
		for addr, amount := range n.genesis {
			v, overflow := uint256.FromBig(amount)
			if overflow {
				return nil, errors.Errorf("genesis balance of %s overflows", addr.Hex())
			}
			n.state.account(addr).balance = v
		}
		n.head = &types.Header{
			Number:   new(big.Int),
			Time:     uint64(n.now().Unix()),
			GasLimit: blockGasLimit,
			BaseFee:  new(big.Int).Set(n.baseFee),
		}
	}
	n.headers[n.head.Number.Uint64()] = n.head

	n.l.Info("ledger node started",
		zap.String("chain_id", n.chainID.String()),
		zap.String("contract", n.state.contract.Address().Hex()),
		zap.String("owner", n.state.contract.Owner().Hex()),
		zap.Uint64("head", n.head.Number.Uint64()))

	return n, nil
}

// ContractAddress returns the address of the ledger contract.
func (n *Node) ContractAddress() common.Address {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.contract.Address()
}

// Fund credits native balance to an account. Development faucet.
func (n *Node) Fund(addr common.Address, amount *big.Int) error {
	v, overflow := uint256.FromBig(amount)
	if overflow || amount.Sign() < 0 {
		return errors.Errorf("invalid fund amount %s", amount)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	acc := n.state.account(addr)
	acc.balance = new(uint256.Int).Add(acc.balance, v)
	n.persist()
	return nil
}

// ChainID returns the chain id.
func (n *Node) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(n.chainID), nil
}

// BlockNumber returns the head block number.
func (n *Node) BlockNumber(ctx context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.head.Number.Uint64(), nil
}

// HeaderByNumber returns the header at number, or the head when number is nil.
func (n *Node) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if number == nil {
		return types.CopyHeader(n.head), nil
	}
	if !number.IsUint64() {
		return nil, ethereum.NotFound
	}
	h, ok := n.headers[number.Uint64()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return types.CopyHeader(h), nil
}

// SuggestGasTipCap returns the priority fee the node expects.
func (n *Node) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(n.tipCap), nil
}

// PendingNonceAt returns the next nonce for the account.
func (n *Node) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if acc, ok := n.state.accounts[addr]; ok {
		return acc.nonce, nil
	}
	return 0, nil
}

// BalanceAt returns the native balance. Only the latest state is kept, so block is ignored.
func (n *Node) BalanceAt(ctx context.Context, addr common.Address, block *big.Int) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if addr == n.state.contract.Address() {
		return n.state.contract.Reserve().ToBig(), nil
	}
	if acc, ok := n.state.accounts[addr]; ok {
		return acc.balance.ToBig(), nil
	}
	return new(big.Int), nil
}

// CallContract executes a call against the latest state without committing it.
func (n *Node) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if msg.To == nil || *msg.To != n.state.contract.Address() {
		return nil, nil
	}

	contract := n.state.contract
	if !IsView(msg.Data) {
		contract = contract.clone()
	}
	value, err := msgValue(msg.Value)
	if err != nil {
		return nil, err
	}
	out, err := contract.Execute(NewCall(msg.From, value, n.head.Time), msg.Data)
	if err != nil {
		return nil, toRPCError(err)
	}
	return out, nil
}

// EstimateGas dry-runs the call and returns the gas it needs. A call that
// would revert fails with the revert reason.
func (n *Node) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if msg.To == nil {
		return 0, rejected("contract creation is not supported")
	}
	value, err := msgValue(msg.Value)
	if err != nil {
		return 0, err
	}
	if *msg.To != n.state.contract.Address() {
		return intrinsicGas, nil
	}

	next := n.state.clone()
	sender := next.account(msg.From)
	if sender.balance.Lt(value) {
		return 0, rejected("insufficient funds for transfer")
	}
	sender.balance = new(uint256.Int).Sub(sender.balance, value)
	if _, err := next.contract.Execute(NewCall(msg.From, value, n.head.Time), msg.Data); err != nil {
		return 0, toRPCError(err)
	}

	return gasFor(msg.To, n.state.contract.Address(), msg.Data), nil
}

// SendTransaction validates, executes and mines a signed transaction in its own block.
func (n *Node) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, known := n.receipts[tx.Hash()]; known {
		return rejected("already known")
	}
	from, err := types.Sender(n.signer, tx)
	if err != nil {
		return rejected("invalid sender: " + err.Error())
	}
	if tx.To() == nil {
		return rejected("contract creation is not supported")
	}

	acc := n.state.account(from)
	switch {
	case tx.Nonce() < acc.nonce:
		return rejected("nonce too low")
	case tx.Nonce() > acc.nonce:
		return rejected("nonce too high")
	}
	if tx.GasFeeCap().Cmp(n.baseFee) < 0 {
		return rejected("max fee per gas less than block base fee")
	}
	if tx.Gas() < intrinsicGas {
		return rejected("intrinsic gas too low")
	}
	if tx.Gas() > blockGasLimit {
		return rejected("exceeds block gas limit")
	}
	maxCost := new(big.Int).Mul(new(big.Int).SetUint64(tx.Gas()), tx.GasFeeCap())
	maxCost.Add(maxCost, tx.Value())
	if acc.balance.ToBig().Cmp(maxCost) < 0 {
		return rejected("insufficient funds for gas * price + value")
	}

	header := n.nextHeader()
	gasUsed, logs, execErr := n.apply(from, tx, header.Time)

	gasPrice := n.effectiveGasPrice(tx)
	fee := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), gasPrice)
	sender := n.state.account(from)
	sender.balance = new(uint256.Int).Sub(sender.balance, uint256.MustFromBig(fee))
	sender.nonce++

	n.head = header
	n.headers[header.Number.Uint64()] = header
	blockHash := header.Hash()

	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: gasUsed,
		GasUsed:           gasUsed,
		EffectiveGasPrice: gasPrice,
		TxHash:            tx.Hash(),
		BlockHash:         blockHash,
		BlockNumber:       new(big.Int).Set(header.Number),
		Logs:              []*types.Log{},
	}
	if execErr != nil {
		receipt.Status = types.ReceiptStatusFailed
		n.l.Debug("transaction reverted",
			zap.String("tx", tx.Hash().Hex()),
			zap.String("from", from.Hex()),
			zap.Error(execErr))
	}
	for i, lg := range logs {
		lg.BlockNumber = header.Number.Uint64()
		lg.BlockHash = blockHash
		lg.TxHash = tx.Hash()
		lg.Index = uint(i)
		receipt.Logs = append(receipt.Logs, lg)
	}
	n.receipts[tx.Hash()] = receipt

	n.persist()
	return nil
}

// TransactionReceipt returns the receipt of a mined transaction.
func (n *Node) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	r, ok := n.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// apply runs the transaction against a clone of the world and commits it on success.
func (n *Node) apply(from common.Address, tx *types.Transaction, now uint64) (uint64, []*types.Log, error) {
	contractAddr := n.state.contract.Address()
	required := gasFor(tx.To(), contractAddr, tx.Data())
	if tx.Gas() < required {
		return tx.Gas(), nil, errOutOfGas
	}

	value := uint256.MustFromBig(tx.Value())
	next := n.state.clone()
	sender := next.account(from)
	sender.balance = new(uint256.Int).Sub(sender.balance, value)

	var logs []*types.Log
	if *tx.To() == contractAddr {
		call := NewCall(from, value, now)
		if _, err := next.contract.Execute(call, tx.Data()); err != nil {
			return required, nil, err
		}
		sender.balance = new(uint256.Int).Add(sender.balance, call.Payout())
		logs = call.Logs()
	} else {
		recipient := next.account(*tx.To())
		recipient.balance = new(uint256.Int).Add(recipient.balance, value)
	}

	n.state = next
	return required, logs, nil
}

func (n *Node) nextHeader() *types.Header {
	ts := uint64(n.now().Unix())
	if ts <= n.head.Time {
		ts = n.head.Time + 1
	}
	return &types.Header{
		ParentHash: n.head.Hash(),
		Number:     new(big.Int).Add(n.head.Number, big.NewInt(1)),
		Time:       ts,
		GasLimit:   blockGasLimit,
		BaseFee:    new(big.Int).Set(n.baseFee),
	}
}

func (n *Node) effectiveGasPrice(tx *types.Transaction) *big.Int {
	price := new(big.Int).Add(n.baseFee, tx.GasTipCap())
	if price.Cmp(tx.GasFeeCap()) > 0 {
		price.Set(tx.GasFeeCap())
	}
	return price
}

func (n *Node) persist() {
	if n.store == nil {
		return
	}
	if err := n.store.Save(n.snapshot()); err != nil {
		n.l.Error("failed to persist chain state", zap.Error(err))
	}
}

func gasFor(to *common.Address, contract common.Address, data []byte) uint64 {
	if to == nil || *to != contract || len(data) < 4 {
		return intrinsicGas
	}
	method, err := parsedABI.MethodById(data[:4])
	if err != nil {
		return intrinsicGas
	}
	return intrinsicGas + methodGas[method.Name]
}

func msgValue(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	u, overflow := uint256.FromBig(v)
	if overflow || v.Sign() < 0 {
		return nil, rejected("invalid value")
	}
	return u, nil
}
