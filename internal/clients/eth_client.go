package clients

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// NewEthClient dials a JSON-RPC endpoint of the chain hosting the ledger contract.
func NewEthClient(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if rpcURL == "" {
		return nil, errors.New("empty rpc url")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", rpcURL)
	}
	return client, nil
}
