package chainstate

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadMissing(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	state, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestStore_SaveLoad(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	want := State{
		ChainID:  "1337",
		Head:     7,
		HeadTime: 1700000000,
		Accounts: map[string]AccountState{"0x01": {Balance: "100", Nonce: 2}},
		Contract: ContractState{
			Owner:    "0x01",
			Reserve:  "5",
			Assets:   []AssetState{{Symbol: "SOL", Price: "42", Active: true}},
			Balances: map[string]map[string]string{"0x02": {"SOL": "3"}},
			Records:  []RecordState{{ID: 1, Account: "0x02", Symbol: "SOL", Amount: "3", Price: "42", IsBuy: true, Completed: true}},
		},
	}
	require.NoError(t, s.Save(want))

	_, err = os.Stat(s.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	got, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestStore_Corrupted(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{"), 0o644))

	_, err = s.Load()
	assert.Error(t, err)
}
