package cli

import (
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/tradeledger/internal/clients"
	"github.com/vadiminshakov/tradeledger/internal/domain"
)

const userKeyEnv = "TRADELEDGER_USER_KEY"

// accountFlags identify the trader a command acts for.
type accountFlags struct {
	user    string
	key     string
	address string
}

func (f *accountFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "journal user id (required)")
	cmd.Flags().StringVar(&f.key, "key", "", "hex private key, defaults to $"+userKeyEnv)
	cmd.Flags().StringVar(&f.address, "address", "", "on-chain address for read-only commands")
	_ = cmd.MarkFlagRequired("user")
}

// account resolves the flags. Signing commands need a key; read commands
// accept a bare address instead.
func (f *accountFlags) account(needKey bool) (domain.Account, error) {
	acc := domain.Account{UserID: f.user}
	if acc.UserID == "" {
		return acc, errors.New("--user is required")
	}

	hexKey := f.key
	if hexKey == "" {
		hexKey = os.Getenv(userKeyEnv)
	}
	if hexKey != "" {
		key, err := clients.ParseKey(hexKey)
		if err != nil {
			return acc, err
		}
		acc.Key = key
		acc.Address = clients.AddressOf(key)
	}

	if f.address != "" {
		addr, err := parseAddress(f.address)
		if err != nil {
			return acc, err
		}
		if acc.Key != nil && addr != acc.Address {
			return acc, errors.Errorf("--address %s does not match the signing key (%s)", addr.Hex(), acc.Address.Hex())
		}
		acc.Address = addr
	}

	if needKey && acc.Key == nil {
		return acc, errors.Errorf("a signing key is required: pass --key or set %s", userKeyEnv)
	}
	return acc, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "invalid %s %q", name, s)
	}
	return d, nil
}
