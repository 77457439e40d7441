package chainstate

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

const (
	DefaultDir  = "./wal/chain"
	defaultName = "state.json"
)

// Store persists the simulated chain so restarts keep balances, records and receipts.
type Store struct {
	path string
}

// NewStore creates a state store under dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create chain state dir")
	}

	return &Store{path: filepath.Join(dir, defaultName)}, nil
}

// State represents all persisted chain data. Integers are decimal strings.
type State struct {
	ChainID  string                  `json:"chain_id"`
	Head     uint64                  `json:"head"`
	HeadTime uint64                  `json:"head_time"`
	Accounts map[string]AccountState `json:"accounts"`
	Contract ContractState           `json:"contract"`
	Receipts []*types.Receipt        `json:"receipts,omitempty"`
}

// AccountState native balance and nonce of an externally owned account.
type AccountState struct {
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// ContractState ledger contract storage.
type ContractState struct {
	Address  string                       `json:"address"`
	Owner    string                       `json:"owner"`
	Reserve  string                       `json:"reserve"`
	Assets   []AssetState                 `json:"assets"`
	Balances map[string]map[string]string `json:"balances"`
	Records  []RecordState                `json:"records"`
}

// AssetState registered asset.
type AssetState struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Active bool   `json:"active"`
}

// RecordState on-chain transaction record.
type RecordState struct {
	ID        uint64 `json:"id"`
	Account   string `json:"account"`
	Symbol    string `json:"symbol"`
	Amount    string `json:"amount"`
	Price     string `json:"price"`
	IsBuy     bool   `json:"is_buy"`
	Timestamp uint64 `json:"timestamp"`
	Completed bool   `json:"completed"`
}

// Load reads chain state from disk. A missing file yields nil state.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read chain state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode chain state")
	}

	return &state, nil
}

// Save writes chain state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "encode chain state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write chain state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist chain state")
	}

	return nil
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}
