package clients

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	raw := common.Bytes2Hex(crypto.FromECDSA(key))

	for _, in := range []string{"0x" + raw, "0X" + raw, " " + raw + "\n"} {
		parsed, err := ParseKey(in)
		require.NoError(t, err)
		assert.Equal(t, AddressOf(key), AddressOf(parsed))
	}

	_, err = ParseKey("")
	assert.Error(t, err)
	_, err = ParseKey("0xzz")
	assert.Error(t, err)
}
