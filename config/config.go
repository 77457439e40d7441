// Package config loads the engine configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

// Supported values.
const (
	PlatformBinance     = "binance"
	PlatformBybit       = "bybit"
	PlatformHyperliquid = "hyperliquid"

	CacheMemory = "memory"
	CacheRedis  = "redis"

	ChainSimulated = "simulated"
	ChainRPC       = "rpc"
)

type Config struct {
	Assets   *domain.AssetSet
	LogLevel string
	Oracle   OracleConfig
	Chain    ChainConfig
	Journal  JournalConfig
	Intents  IntentsConfig
	Events   EventsConfig
	Ops      OpsConfig
	Sync     PriceSyncConfig
	Secrets  Secrets
}

type OracleConfig struct {
	Platform  string
	Stream    bool
	StreamURL string
	Cache     string
	Redis     RedisConfig
	// Fallback overrides entries of the built-in fallback table.
	Fallback map[string]decimal.Decimal
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type ChainConfig struct {
	Mode     string
	RPCURL   string
	Contract common.Address
	ChainID  int64
	StateDir string
	// Genesis funds simulated accounts, in settlement units.
	Genesis         map[common.Address]decimal.Decimal
	ReceiptInterval time.Duration
	ReceiptAttempts int
}

type JournalConfig struct {
	Driver string
	DSN    string
}

type IntentsConfig struct {
	Dir string
}

type EventsConfig struct {
	Brokers []string
	Topic   string
}

type OpsConfig struct {
	Addr string
	// TLSDomains enables HTTPS with ACME certificates for these hosts.
	TLSDomains  []string
	TLSCacheDir string
}

type PriceSyncConfig struct {
	Enabled  bool
	Interval time.Duration
}

// Secrets come from the environment only.
type Secrets struct {
	AdminKey         string
	BinanceAPIKey    string
	BinanceAPISecret string
	BybitAPIKey      string
	BybitAPISecret   string
	HyperliquidKey   string
}

type ConfigTmp struct {
	Assets     []string         `yaml:"assets,omitempty"`
	Settlement string           `yaml:"settlement,omitempty"`
	Benchmark  string           `yaml:"benchmark,omitempty"`
	Quote      string           `yaml:"quote,omitempty"`
	LogLevel   string           `yaml:"log_level,omitempty"`
	Oracle     OracleTmp        `yaml:"oracle"`
	Chain      ChainTmp         `yaml:"chain"`
	Journal    JournalConfigTmp `yaml:"journal"`
	Intents    IntentsConfigTmp `yaml:"intents,omitempty"`
	Events     EventsConfigTmp  `yaml:"events,omitempty"`
	Ops        OpsConfigTmp     `yaml:"ops"`
	PriceSync  PriceSyncTmp     `yaml:"price_sync"`
}

type OracleTmp struct {
	Platform  string            `yaml:"platform"`
	Stream    *bool             `yaml:"stream,omitempty"`
	StreamURL string            `yaml:"stream_url,omitempty"`
	Cache     string            `yaml:"cache,omitempty"`
	Redis     RedisTmp          `yaml:"redis,omitempty"`
	Fallback  map[string]string `yaml:"fallback,omitempty"`
}

type RedisTmp struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type ChainTmp struct {
	Mode            string            `yaml:"mode"`
	RPCURL          string            `yaml:"rpc_url,omitempty"`
	Contract        string            `yaml:"contract,omitempty"`
	ChainID         int64             `yaml:"chain_id,omitempty"`
	StateDir        string            `yaml:"state_dir,omitempty"`
	Genesis         map[string]string `yaml:"genesis,omitempty"`
	ReceiptInterval time.Duration     `yaml:"receipt_poll_interval,omitempty"`
	ReceiptAttempts int               `yaml:"receipt_attempts,omitempty"`
}

type JournalConfigTmp struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
}

type IntentsConfigTmp struct {
	Dir string `yaml:"dir,omitempty"`
}

type EventsConfigTmp struct {
	Brokers []string `yaml:"kafka_brokers,omitempty"`
	Topic   string   `yaml:"kafka_topic,omitempty"`
}

type OpsConfigTmp struct {
	Addr        string   `yaml:"addr"`
	TLSDomains  []string `yaml:"tls_domains,omitempty"`
	TLSCacheDir string   `yaml:"tls_cache_dir,omitempty"`
}

type PriceSyncTmp struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval,omitempty"`
}

// Load reads path, or returns the defaults when path is empty, and applies
// environment overrides.
func Load(path string) (Config, error) {
	var tmp ConfigTmp
	if path != "" {
		f, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(f, &tmp); err != nil {
			return Config{}, fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	}
	return Build(tmp)
}

// Build validates tmp and fills in defaults, reading secrets from the environment.
func Build(tmp ConfigTmp) (Config, error) {
	return build(tmp, os.Getenv)
}

func build(c ConfigTmp, getenv func(string) string) (Config, error) {
	cfg := Config{
		LogLevel: orDefault(c.LogLevel, "info"),
		Journal: JournalConfig{
			Driver: orDefault(c.Journal.Driver, "sqlite"),
			DSN:    c.Journal.DSN,
		},
		Intents: IntentsConfig{Dir: orDefault(c.Intents.Dir, "data/intents")},
		Events:  EventsConfig{Brokers: c.Events.Brokers, Topic: orDefault(c.Events.Topic, "tradeledger.audit")},
		Ops: OpsConfig{
			Addr:        orDefault(c.Ops.Addr, ":8090"),
			TLSDomains:  c.Ops.TLSDomains,
			TLSCacheDir: orDefault(c.Ops.TLSCacheDir, "data/cert-cache"),
		},
		Sync: PriceSyncConfig{
			Enabled:  c.PriceSync.Enabled,
			Interval: c.PriceSync.Interval,
		},
		Secrets: Secrets{
			AdminKey:         getenv("TRADELEDGER_ADMIN_KEY"),
			BinanceAPIKey:    getenv("BINANCE_API_KEY"),
			BinanceAPISecret: getenv("BINANCE_API_SECRET"),
			BybitAPIKey:      getenv("BYBIT_API_KEY"),
			BybitAPISecret:   getenv("BYBIT_API_SECRET"),
			HyperliquidKey:   getenv("HYPERLIQUID_PRIVATE_KEY"),
		},
	}
	if cfg.Sync.Interval <= 0 {
		cfg.Sync.Interval = time.Minute
	}

	symbols := c.Assets
	if len(symbols) == 0 {
		symbols = domain.DefaultSymbols
	}
	assets, err := domain.NewAssetSet(symbols,
		orDefault(c.Settlement, domain.DefaultSettlement),
		orDefault(c.Benchmark, domain.DefaultBenchmark),
		orDefault(c.Quote, domain.DefaultQuote))
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'assets' param in yaml config: %w", err)
	}
	cfg.Assets = assets

	if cfg.Oracle, err = buildOracle(c.Oracle); err != nil {
		return Config{}, err
	}
	if cfg.Chain, err = buildChain(c.Chain); err != nil {
		return Config{}, err
	}

	if dsn := getenv("TRADELEDGER_JOURNAL_DSN"); dsn != "" {
		cfg.Journal.DSN = dsn
	}
	switch cfg.Journal.Driver {
	case "memory":
	case "sqlite":
		cfg.Journal.DSN = orDefault(cfg.Journal.DSN, "data/journal.db")
	case "postgres":
		if cfg.Journal.DSN == "" {
			return Config{}, fmt.Errorf("'journal.dsn' or TRADELEDGER_JOURNAL_DSN is required for postgres")
		}
	default:
		return Config{}, fmt.Errorf("incorrect 'journal.driver' param in yaml config: %s", cfg.Journal.Driver)
	}

	return cfg, nil
}

func buildOracle(c OracleTmp) (OracleConfig, error) {
	out := OracleConfig{
		Platform:  strings.ToLower(orDefault(c.Platform, PlatformBinance)),
		Stream:    c.Stream == nil || *c.Stream,
		StreamURL: c.StreamURL,
		Cache:     strings.ToLower(orDefault(c.Cache, CacheMemory)),
		Redis: RedisConfig{
			Addr:     orDefault(c.Redis.Addr, "localhost:6379"),
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
		},
	}

	switch out.Platform {
	case PlatformBinance, PlatformBybit, PlatformHyperliquid:
	default:
		return OracleConfig{}, fmt.Errorf("incorrect 'oracle.platform' param in yaml config: %s", c.Platform)
	}
	switch out.Cache {
	case CacheMemory, CacheRedis:
	default:
		return OracleConfig{}, fmt.Errorf("incorrect 'oracle.cache' param in yaml config: %s", c.Cache)
	}

	if len(c.Fallback) > 0 {
		out.Fallback = make(map[string]decimal.Decimal, len(c.Fallback))
		for sym, v := range c.Fallback {
			price, err := decimal.NewFromString(v)
			if err != nil || !price.IsPositive() {
				return OracleConfig{}, fmt.Errorf("incorrect 'oracle.fallback.%s' param in yaml config (must be a positive decimal): %s", sym, v)
			}
			out.Fallback[strings.ToUpper(sym)] = price
		}
	}
	return out, nil
}

func buildChain(c ChainTmp) (ChainConfig, error) {
	out := ChainConfig{
		Mode:            strings.ToLower(orDefault(c.Mode, ChainSimulated)),
		RPCURL:          c.RPCURL,
		ChainID:         c.ChainID,
		StateDir:        orDefault(c.StateDir, "data/chain"),
		ReceiptInterval: c.ReceiptInterval,
		ReceiptAttempts: c.ReceiptAttempts,
	}
	if out.ReceiptInterval <= 0 {
		out.ReceiptInterval = 500 * time.Millisecond
	}
	if out.ReceiptAttempts <= 0 {
		out.ReceiptAttempts = 20
	}

	switch out.Mode {
	case ChainSimulated:
		if out.ChainID == 0 {
			out.ChainID = 1337
		}
	case ChainRPC:
		if out.RPCURL == "" {
			return ChainConfig{}, fmt.Errorf("'chain.rpc_url' is required in rpc mode")
		}
		if !common.IsHexAddress(c.Contract) {
			return ChainConfig{}, fmt.Errorf("incorrect 'chain.contract' param in yaml config: %q", c.Contract)
		}
	default:
		return ChainConfig{}, fmt.Errorf("incorrect 'chain.mode' param in yaml config: %s", c.Mode)
	}
	if c.Contract != "" {
		if !common.IsHexAddress(c.Contract) {
			return ChainConfig{}, fmt.Errorf("incorrect 'chain.contract' param in yaml config: %q", c.Contract)
		}
		out.Contract = common.HexToAddress(c.Contract)
	}

	if len(c.Genesis) > 0 {
		out.Genesis = make(map[common.Address]decimal.Decimal, len(c.Genesis))
		for addr, v := range c.Genesis {
			if !common.IsHexAddress(addr) {
				return ChainConfig{}, fmt.Errorf("incorrect 'chain.genesis' address: %q", addr)
			}
			amount, err := decimal.NewFromString(v)
			if err != nil || amount.IsNegative() {
				return ChainConfig{}, fmt.Errorf("incorrect 'chain.genesis.%s' param in yaml config (must be a decimal): %s", addr, v)
			}
			out.Genesis[common.HexToAddress(addr)] = amount
		}
	}
	return out, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
