package clients

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// HyperliquidMainnetURL is used when no base URL is configured.
const HyperliquidMainnetURL = "https://api.hyperliquid.xyz"

type HyperliquidClient struct {
	exchange    *hyperliquid.Exchange
	accountAddr string
}

// NewHyperliquidClient builds an exchange handle. Price reads need no account,
// so an empty key gets an ephemeral one.
func NewHyperliquidClient(privateKeyHex string, baseURL string) (*HyperliquidClient, error) {
	var (
		privateKey *ecdsa.PrivateKey
		err        error
	)
	if privateKeyHex == "" {
		privateKey, err = crypto.GenerateKey()
		if err != nil {
			return nil, errors.Wrap(err, "generate ephemeral key")
		}
	} else {
		privateKey, err = ParseKey(privateKeyHex)
		if err != nil {
			return nil, err
		}
	}
	accountAddr := AddressOf(privateKey).Hex()
	if baseURL == "" {
		baseURL = HyperliquidMainnetURL
	}

	// Info and SpotMeta are fetched lazily by the SDK
	ex := hyperliquid.NewExchange(
		context.Background(),
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return &HyperliquidClient{exchange: ex, accountAddr: accountAddr}, nil
}

func (c *HyperliquidClient) Info() *hyperliquid.Info { return c.exchange.Info() }

func (c *HyperliquidClient) AccountAddress() string { return c.accountAddr }
