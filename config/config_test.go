package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := build(ConfigTmp{}, env(nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC", "ETH", "BNB", "SOL", "XRP", "ADA", "DOGE", "DOT"}, cfg.Assets.Symbols())
	assert.Equal(t, "ETH", cfg.Assets.Settlement())
	assert.Equal(t, PlatformBinance, cfg.Oracle.Platform)
	assert.True(t, cfg.Oracle.Stream)
	assert.Equal(t, CacheMemory, cfg.Oracle.Cache)
	assert.Equal(t, ChainSimulated, cfg.Chain.Mode)
	assert.Equal(t, int64(1337), cfg.Chain.ChainID)
	assert.Equal(t, "sqlite", cfg.Journal.Driver)
	assert.Equal(t, "data/journal.db", cfg.Journal.DSN)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.False(t, cfg.Sync.Enabled)
	assert.Equal(t, ":8090", cfg.Ops.Addr)
	assert.Empty(t, cfg.Ops.TLSDomains)
}

func TestLoadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
assets: [btc, eth, sol, ada]
log_level: debug
oracle:
  platform: bybit
  stream: false
  cache: redis
  redis:
    addr: redis:6379
    db: 2
  fallback:
    sol: "151.5"
chain:
  mode: simulated
  state_dir: /var/lib/tradeledger
  receipt_poll_interval: 50ms
  genesis:
    "0x00000000000000000000000000000000000000aa": "100"
journal:
  driver: postgres
  dsn: postgres://localhost/ledger
events:
  kafka_brokers: [kafka:9092]
ops:
  addr: ":8443"
  tls_domains: [ops.example.com]
price_sync:
  enabled: true
  interval: 30s
`), 0o600))

	t.Setenv("TRADELEDGER_ADMIN_KEY", "0xabc")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC", "ETH", "SOL", "ADA"}, cfg.Assets.Symbols())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, PlatformBybit, cfg.Oracle.Platform)
	assert.False(t, cfg.Oracle.Stream)
	assert.Equal(t, "redis:6379", cfg.Oracle.Redis.Addr)
	assert.Equal(t, 2, cfg.Oracle.Redis.DB)
	assert.True(t, decimal.RequireFromString("151.5").Equal(cfg.Oracle.Fallback["SOL"]))
	assert.Equal(t, 50*time.Millisecond, cfg.Chain.ReceiptInterval)
	assert.Equal(t, 20, cfg.Chain.ReceiptAttempts)
	assert.True(t, decimal.NewFromInt(100).Equal(cfg.Chain.Genesis[common.HexToAddress("0xaa")]))
	assert.Equal(t, "postgres://localhost/ledger", cfg.Journal.DSN)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Events.Brokers)
	assert.Equal(t, "tradeledger.audit", cfg.Events.Topic)
	assert.Equal(t, ":8443", cfg.Ops.Addr)
	assert.Equal(t, []string{"ops.example.com"}, cfg.Ops.TLSDomains)
	assert.Equal(t, "data/cert-cache", cfg.Ops.TLSCacheDir)
	assert.True(t, cfg.Sync.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, "0xabc", cfg.Secrets.AdminKey)
}

func TestJournalDSNFromEnvironment(t *testing.T) {
	cfg, err := build(ConfigTmp{Journal: JournalConfigTmp{Driver: "postgres"}},
		env(map[string]string{"TRADELEDGER_JOURNAL_DSN": "postgres://env/ledger"}))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/ledger", cfg.Journal.DSN)

	_, err = build(ConfigTmp{Journal: JournalConfigTmp{Driver: "postgres"}}, env(nil))
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	cases := map[string]ConfigTmp{
		"settlement outside assets": {Assets: []string{"BTC", "SOL"}},
		"duplicate asset":           {Assets: []string{"BTC", "ETH", "btc"}},
		"platform":                  {Oracle: OracleTmp{Platform: "kraken"}},
		"cache":                     {Oracle: OracleTmp{Cache: "memcached"}},
		"fallback":                  {Oracle: OracleTmp{Fallback: map[string]string{"SOL": "-1"}}},
		"chain mode":                {Chain: ChainTmp{Mode: "testnet"}},
		"rpc without url":           {Chain: ChainTmp{Mode: "rpc", Contract: "0x00000000000000000000000000000000000000aa"}},
		"rpc without contract":      {Chain: ChainTmp{Mode: "rpc", RPCURL: "http://localhost:8545"}},
		"genesis address":           {Chain: ChainTmp{Genesis: map[string]string{"alice": "1"}}},
		"journal driver":            {Journal: JournalConfigTmp{Driver: "mysql"}},
	}
	for name, tmp := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := build(tmp, env(nil))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
