package pricecache

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPrefix = "tradeledger:price:"

// Redis stores entries as JSON under one key per symbol and mirrors every
// write into memory. Reads fall back to the mirror when Redis is unreachable.
type Redis struct {
	rdb    *redis.Client
	mem    *Memory
	prefix string
	logger *zap.Logger
}

// Connect opens a client and pings the server.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis ping %s", addr)
	}
	return rdb, nil
}

func NewRedis(rdb *redis.Client, prefix string, logger *zap.Logger) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{rdb: rdb, mem: NewMemory(), prefix: prefix, logger: logger}
}

func (r *Redis) key(symbol string) string { return r.prefix + symbol }

// Set always updates the mirror; a Redis error is returned but the entry stays readable.
func (r *Redis) Set(ctx context.Context, symbol string, e Entry) error {
	_ = r.mem.Set(ctx, symbol, e)

	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal price entry")
	}
	if err := r.rdb.Set(ctx, r.key(symbol), payload, 0).Err(); err != nil {
		r.logger.Warn("redis set failed, using memory cache", zap.String("symbol", symbol), zap.Error(err))
		return errors.Wrapf(err, "redis set %s", symbol)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, symbol string) (Entry, bool, error) {
	payload, err := r.rdb.Get(ctx, r.key(symbol)).Bytes()
	switch {
	case err == nil:
		var e Entry
		if err := json.Unmarshal(payload, &e); err != nil {
			r.logger.Warn("corrupt cached price", zap.String("symbol", symbol), zap.Error(err))
			return r.mem.Get(ctx, symbol)
		}
		return e, true, nil
	case errors.Is(err, redis.Nil):
		return r.mem.Get(ctx, symbol)
	default:
		r.logger.Warn("redis get failed, using memory cache", zap.String("symbol", symbol), zap.Error(err))
		return r.mem.Get(ctx, symbol)
	}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
