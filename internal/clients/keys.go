package clients

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// ParseKey decodes a hex secp256k1 private key, with or without 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key := strings.TrimSpace(hexKey)
	if len(key) >= 2 && (key[:2] == "0x" || key[:2] == "0X") {
		key = key[2:]
	}
	if key == "" {
		return nil, errors.New("empty private key")
	}

	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	return privateKey, nil
}

// AddressOf derives the account address of a private key.
func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
