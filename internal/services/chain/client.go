// Package chain drives the ledger contract: it encodes calls, signs and submits
// transactions, waits for receipts and decodes reverts.
package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/ledger"
	"github.com/vadiminshakov/tradeledger/pkg/retrier"
)

const (
	defaultPollInterval = 200 * time.Millisecond
	maxPollInterval     = 2 * time.Second
	// gas limit headroom over the estimate, in percent
	gasHeadroom = 20
)

var errNotMined = errors.New("transaction not mined yet")

// Backend is the node surface the client needs. *ethclient.Client and
// *ledger.Node both satisfy it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client talks to one deployed ledger contract.
type Client struct {
	backend  Backend
	contract common.Address
	abi      abi.ABI
	chainID  *big.Int
	l        *zap.Logger

	pollInterval time.Duration
	pollAttempts int

	mu      sync.Mutex
	senders map[common.Address]*sender
}

// sender serializes nonce assignment and submission for one signing address.
type sender struct {
	mu    sync.Mutex
	next  uint64
	known bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.l = l
	}
}

// WithReceiptPolling sets the receipt poll interval and the number of polls.
// Zero attempts polls until the context ends.
func WithReceiptPolling(interval time.Duration, attempts int) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		c.pollAttempts = attempts
	}
}

// NewClient binds the client to the contract at address.
func NewClient(ctx context.Context, backend Backend, contract common.Address, opts ...Option) (*Client, error) {
	if backend == nil {
		return nil, errors.New("chain backend is required")
	}

	c := &Client{
		backend:      backend,
		contract:     contract,
		abi:          ledger.ABI(),
		l:            zap.NewNop(),
		pollInterval: defaultPollInterval,
		senders:      make(map[common.Address]*sender),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.l == nil {
		c.l = zap.NewNop()
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, classify("chain id", err)
	}
	c.chainID = chainID

	return c, nil
}

// Contract returns the bound contract address.
func (c *Client) Contract() common.Address {
	return c.contract
}

// Outcome is a submitted transaction. Receipt is nil when the outcome is unknown.
type Outcome struct {
	TxHash  common.Hash
	Receipt *types.Receipt
}

// Transact estimates, signs, submits and waits for a contract call.
// A revert fails with *domain.RejectionError; a transport failure fails with
// domain.ErrInfrastructureUnavailable. When a signed transaction may have
// reached the node but its receipt could not be obtained, the returned Outcome
// still carries the hash.
func (c *Client) Transact(ctx context.Context, key *ecdsa.PrivateKey, value *big.Int, method string, args ...any) (*Outcome, error) {
	if key == nil {
		return nil, errors.New("signing key is required")
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	if value == nil {
		value = new(big.Int)
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	msg := ethereum.CallMsg{From: from, To: &c.contract, Value: value, Data: data}

	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, classify("estimate "+method, err)
	}
	gas += gas * gasHeadroom / 100

	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, classify("gas tip", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, classify("head", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx, err := c.submit(ctx, key, from, &types.DynamicFeeTx{
		ChainID:   c.chainID,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &c.contract,
		Value:     value,
		Data:      data,
	})
	if err != nil {
		if tx != nil {
			// the node may have accepted it before the transport failed
			c.l.Warn("transaction submission outcome unknown",
				zap.String("method", method),
				zap.String("tx", tx.Hash().Hex()),
				zap.Error(err))
			return &Outcome{TxHash: tx.Hash()}, err
		}
		return nil, err
	}

	c.l.Debug("transaction submitted",
		zap.String("method", method),
		zap.String("tx", tx.Hash().Hex()),
		zap.String("from", from.Hex()),
		zap.Uint64("nonce", tx.Nonce()))

	outcome := &Outcome{TxHash: tx.Hash()}
	receipt, err := c.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return outcome, domain.Unavailable("await "+method, err)
	}
	outcome.Receipt = receipt

	if receipt.Status != types.ReceiptStatusSuccessful {
		return outcome, c.failureReason(ctx, msg, receipt)
	}

	return outcome, nil
}

func (c *Client) submit(ctx context.Context, key *ecdsa.PrivateKey, from common.Address, inner *types.DynamicFeeTx) (*types.Transaction, error) {
	s := c.sender(from)
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, classify("nonce", err)
	}
	if s.known && s.next > pending {
		pending = s.next
	}
	inner.Nonce = pending

	tx, err := types.SignTx(types.NewTx(inner), types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return nil, errors.Wrap(err, "sign transaction")
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		s.known = false
		err = classify("submit", err)
		if errors.Is(err, domain.ErrOrderRejected) {
			return nil, err
		}
		return tx, err
	}
	s.next, s.known = pending+1, true

	return tx, nil
}

func (c *Client) sender(addr common.Address) *sender {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.senders[addr]
	if !ok {
		s = &sender{}
		c.senders[addr] = s
	}
	return s
}

func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	attempts := c.pollAttempts
	if attempts <= 0 {
		attempts = retrier.Unlimited
	}
	r := retrier.New(
		retrier.WithInitialInterval(c.pollInterval),
		retrier.WithMaxInterval(maxPollInterval),
		retrier.WithMultiplier(1.5),
		retrier.WithMaxRetries(attempts),
	)

	return retrier.DoWithData(r, ctx, func(ctx context.Context) (*types.Receipt, error) {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, errNotMined
		}
		if err != nil {
			c.l.Debug("receipt poll failed", zap.String("tx", hash.Hex()), zap.Error(err))
			return nil, err
		}
		return receipt, nil
	})
}

// failureReason replays a failed call one block earlier to recover the revert reason.
func (c *Client) failureReason(ctx context.Context, msg ethereum.CallMsg, receipt *types.Receipt) error {
	var block *big.Int
	if receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		block = new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	}
	_, err := c.backend.CallContract(ctx, msg, block)
	if reason, ok := revertReason(err); ok {
		return domain.NewRejection(reason)
	}
	return domain.NewRejection("execution reverted")
}
