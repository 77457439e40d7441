package app

import (
	"context"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeledger/config"
	"github.com/vadiminshakov/tradeledger/internal/clients"
	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/events"
	"github.com/vadiminshakov/tradeledger/internal/ledger"
	"github.com/vadiminshakov/tradeledger/internal/services/chain"
	"github.com/vadiminshakov/tradeledger/internal/services/oracle"
	"github.com/vadiminshakov/tradeledger/internal/services/orchestrator"
	"github.com/vadiminshakov/tradeledger/internal/services/pricesync"
	"github.com/vadiminshakov/tradeledger/internal/services/reconciler"
	"github.com/vadiminshakov/tradeledger/internal/storage/chainstate"
	"github.com/vadiminshakov/tradeledger/internal/storage/intents"
	"github.com/vadiminshakov/tradeledger/internal/storage/journal"
	"github.com/vadiminshakov/tradeledger/internal/storage/pricecache"
)

const tickBuffer = 256

type priceCache interface {
	Set(ctx context.Context, symbol string, e pricecache.Entry) error
	Get(ctx context.Context, symbol string) (pricecache.Entry, bool, error)
}

// Option adjusts how Open assembles the engine.
type Option func(*Engine)

// WithPriceUpstream replaces the configured exchange. A nil stream means the
// feed is polled.
func WithPriceUpstream(up priceService, stream streamService) Option {
	return func(e *Engine) {
		e.upstream = up
		e.stream = stream
	}
}

// Open builds every component from cfg. The caller owns the Engine and must Close it.
func Open(ctx context.Context, cfg config.Config, l *zap.Logger, opts ...Option) (_ *Engine, err error) {
	if l == nil {
		l = zap.NewNop()
	}
	e := &Engine{
		cfg:      cfg,
		assets:   cfg.Assets,
		ticks:    events.NewPriceBroadcaster(tickBuffer),
		registry: prometheus.NewRegistry(),
		l:        l,
	}
	for _, opt := range opts {
		opt(e)
	}
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()
	e.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.Secrets.AdminKey != "" {
		if e.admin, err = clients.ParseKey(cfg.Secrets.AdminKey); err != nil {
			return nil, errors.Wrap(err, "TRADELEDGER_ADMIN_KEY")
		}
	}

	if err := e.openOracle(ctx); err != nil {
		return nil, err
	}
	if err := e.openChain(ctx); err != nil {
		return nil, err
	}
	if err := e.openStores(ctx); err != nil {
		return nil, err
	}
	if err := e.openPublisher(); err != nil {
		return nil, err
	}

	e.balances = reconciler.New(e.assets, e.chain, e.journal, e.oracle, l.Named("reconciler"))
	e.orders = orchestrator.New(e.assets, e.oracle, e.chain, e.balances, e.journal, e.intents,
		orchestrator.WithLogger(l.Named("orchestrator")),
		orchestrator.WithMetrics(orchestrator.NewMetrics(e.registry)),
		orchestrator.WithPublisher(e.pub))

	if e.admin != nil {
		e.syncer, err = pricesync.New(e.assets, e.oracle, e.chain, e.admin, l.Named("pricesync"))
		if err != nil {
			return nil, err
		}
	}

	return e, nil
}

func (e *Engine) openOracle(ctx context.Context) error {
	if e.upstream == nil {
		provider, err := newPriceProvider(e.cfg.Oracle, e.cfg.Secrets)
		if err != nil {
			return err
		}
		if e.upstream, err = provider.Pricer(); err != nil {
			return errors.Wrap(err, "create price upstream")
		}
		e.stream = provider.Stream()
	}

	var cache priceCache
	switch e.cfg.Oracle.Cache {
	case config.CacheRedis:
		rc := e.cfg.Oracle.Redis
		rdb, err := pricecache.Connect(ctx, rc.Addr, rc.Password, rc.DB)
		if err != nil {
			return errors.Wrap(err, "connect price cache")
		}
		r := pricecache.NewRedis(rdb, rc.Prefix, e.l.Named("pricecache"))
		e.closers = append(e.closers, r.Close)
		cache = r
	default:
		cache = pricecache.NewMemory()
	}

	opts := []oracle.Option{
		oracle.WithLogger(e.l.Named("oracle")),
		oracle.WithMetrics(oracle.NewMetrics(e.registry)),
		oracle.WithFallback(e.cfg.Oracle.Fallback),
	}
	if e.stream != nil {
		opts = append(opts, oracle.WithStream(e.stream))
	}
	e.oracle = oracle.New(e.assets, e.upstream, cache, opts...)
	return nil
}

func (e *Engine) openChain(ctx context.Context) error {
	cc := e.cfg.Chain
	var (
		backend  chain.Backend
		contract common.Address
	)

	switch cc.Mode {
	case config.ChainSimulated:
		if e.admin == nil {
			return errors.Wrap(ErrNoAdminKey, "simulated chain needs an owner")
		}
		store, err := chainstate.NewStore(cc.StateDir)
		if err != nil {
			return errors.Wrap(err, "open chain state")
		}
		genesis := make(map[common.Address]*big.Int, len(cc.Genesis))
		for addr, amount := range cc.Genesis {
			if genesis[addr], err = domain.ToUnits(amount); err != nil {
				return errors.Wrapf(err, "genesis balance of %s", addr.Hex())
			}
		}
		node, err := ledger.NewNode(clients.AddressOf(e.admin),
			ledger.WithChainID(cc.ChainID),
			ledger.WithStateStore(store),
			ledger.WithGenesis(genesis),
			ledger.WithLogger(e.l.Named("node")))
		if err != nil {
			return err
		}
		e.node = node
		backend, contract = node, node.ContractAddress()
		if cc.Contract != (common.Address{}) && cc.Contract != contract {
			e.l.Warn("configured contract address ignored on the simulated chain",
				zap.String("configured", cc.Contract.Hex()), zap.String("actual", contract.Hex()))
		}

	case config.ChainRPC:
		rpc, err := clients.NewEthClient(ctx, cc.RPCURL)
		if err != nil {
			return errors.Wrap(err, "dial chain rpc")
		}
		e.closers = append(e.closers, func() error { rpc.Close(); return nil })
		backend, contract = rpc, cc.Contract

	default:
		return errors.Errorf("unsupported chain mode: %s", cc.Mode)
	}

	client, err := chain.NewClient(ctx, backend, contract,
		chain.WithReceiptPolling(cc.ReceiptInterval, cc.ReceiptAttempts),
		chain.WithLogger(e.l.Named("chain")))
	if err != nil {
		return err
	}
	e.chain = client
	return nil
}

func (e *Engine) openStores(ctx context.Context) error {
	jc := e.cfg.Journal
	if jc.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(jc.DSN), 0o755); err != nil {
			return errors.Wrap(err, "create journal dir")
		}
	}
	j, err := journal.Open(ctx, jc.Driver, jc.DSN)
	if err != nil {
		return errors.Wrap(err, "open journal")
	}
	e.journal = j
	e.closers = append(e.closers, j.Close)

	log, err := intents.Open(e.cfg.Intents.Dir, e.l.Named("intents"))
	if err != nil {
		return errors.Wrap(err, "open intent log")
	}
	e.intents = log
	e.closers = append(e.closers, log.Close)
	return nil
}

func (e *Engine) openPublisher() error {
	if len(e.cfg.Events.Brokers) == 0 {
		e.pub = events.NewLogPublisher(e.l.Named("audit"))
		return nil
	}
	p, err := events.NewKafkaPublisher(e.cfg.Events.Brokers, e.cfg.Events.Topic,
		e.l.Named("audit"), events.NewPublisherMetrics(e.registry))
	if err != nil {
		return err
	}
	e.pub = p
	e.closers = append(e.closers, p.Close)
	return nil
}
