// Package pricer adapts exchange market data APIs to the price oracle.
package pricer

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

var (
	// ErrMalformedMessage a pushed message could not be decoded. The stream stays usable.
	ErrMalformedMessage = errors.New("malformed stream message")
	// ErrNotSupported the upstream does not provide the requested data.
	ErrNotSupported = errors.New("not supported by upstream")
)

// StreamConn is an open push channel of ticker updates.
type StreamConn interface {
	// Next blocks for the next update. Errors wrapping ErrMalformedMessage are
	// recoverable; any other error ends the stream.
	Next() (domain.PriceUpdate, error)
	Close() error
}

func pairIndex(pairs []domain.Pair) map[string]string {
	index := make(map[string]string, len(pairs))
	for _, p := range pairs {
		index[p.Symbol()] = p.From
	}
	return index
}

func parseDecimal(field, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s %q", field, v)
	}
	return d, nil
}
