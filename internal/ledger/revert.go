package ledger

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Revert is a contract failure. Effects of the reverted call are discarded.
type Revert struct {
	Reason string
}

func (r *Revert) Error() string {
	return "execution reverted: " + r.Reason
}

// Revert reasons raised by the contract.
var (
	ErrUnauthorized        = &Revert{Reason: "Unauthorized"}
	ErrAlreadyRegistered   = &Revert{Reason: "AlreadyRegistered"}
	ErrNotRegistered       = &Revert{Reason: "NotRegistered"}
	ErrInvalidSymbol       = &Revert{Reason: "InvalidSymbol"}
	ErrInvalidPrice        = &Revert{Reason: "InvalidPrice"}
	ErrInvalidAmount       = &Revert{Reason: "InvalidAmount"}
	ErrInsufficientPayment = &Revert{Reason: "InsufficientPayment"}
	ErrInsufficientBalance = &Revert{Reason: "InsufficientBalance"}
	ErrInsufficientReserve = &Revert{Reason: "InsufficientReserve"}
	ErrNonPayable          = &Revert{Reason: "NonPayable"}
	ErrUnknownMethod       = &Revert{Reason: "UnknownMethod"}
	ErrBadCalldata         = &Revert{Reason: "BadCalldata"}
	ErrOverflow            = &Revert{Reason: "Overflow"}
)

var (
	revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]
	revertArgs     = mustRevertArgs()
)

func mustRevertArgs() abi.Arguments {
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: stringType}}
}

// RevertData encodes the reason the way Solidity's Error(string) does.
func RevertData(reason string) []byte {
	packed, err := revertArgs.Pack(reason)
	if err != nil {
		return append([]byte{}, revertSelector...)
	}
	return append(append([]byte{}, revertSelector...), packed...)
}
