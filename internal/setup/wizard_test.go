package setup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tradeledger/config"
)

func TestSaveDefaultsLoadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, DefaultAnswers()))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.PlatformBinance, cfg.Oracle.Platform)
	assert.True(t, cfg.Oracle.Stream)
	assert.Equal(t, config.ChainSimulated, cfg.Chain.Mode)
	assert.Equal(t, "data/journal.db", cfg.Journal.DSN)
	assert.False(t, cfg.Sync.Enabled)
}

func TestSaveRPCWithRedisAndSync(t *testing.T) {
	a := DefaultAnswers()
	a.Platform = config.PlatformBybit
	a.Stream = false
	a.Cache = config.CacheRedis
	a.RedisAddr = "redis:6379"
	a.ChainMode = config.ChainRPC
	a.RPCURL = "http://localhost:8545"
	a.Contract = "0x00000000000000000000000000000000000000aa"
	a.SyncEnabled = true
	a.SyncInterval = "30s"

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, a))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.PlatformBybit, cfg.Oracle.Platform)
	assert.False(t, cfg.Oracle.Stream)
	assert.Equal(t, "redis:6379", cfg.Oracle.Redis.Addr)
	assert.Equal(t, "http://localhost:8545", cfg.Chain.RPCURL)
	assert.True(t, cfg.Sync.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
}

func TestSaveRejectsInvalidAnswers(t *testing.T) {
	t.Setenv("TRADELEDGER_JOURNAL_DSN", "")
	path := filepath.Join(t.TempDir(), "config.yaml")

	a := DefaultAnswers()
	a.ChainMode = config.ChainRPC
	require.Error(t, Save(path, a), "rpc mode without url")

	a = DefaultAnswers()
	a.JournalDriver = "postgres"
	a.JournalDSN = ""
	require.Error(t, Save(path, a), "postgres without dsn")

	a = DefaultAnswers()
	a.SyncEnabled = true
	a.SyncInterval = "soon"
	require.Error(t, Save(path, a))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSummaryMentionsSync(t *testing.T) {
	a := DefaultAnswers()
	assert.NotContains(t, summary(a), "Sync")
	a.SyncEnabled = true
	assert.Contains(t, summary(a), "every 1m")
}
