package ledger

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// JSON-RPC error codes used by execution clients.
const (
	codeRevert   = 3
	codeRejected = -32000
)

// rpcError mirrors the error a JSON-RPC node returns, so callers can treat the
// in-process node and a remote one the same way.
type rpcError struct {
	code    int
	message string
	data    string
}

func (e *rpcError) Error() string { return e.message }

// ErrorCode implements rpc.Error.
func (e *rpcError) ErrorCode() int { return e.code }

// ErrorData implements rpc.DataError.
func (e *rpcError) ErrorData() interface{} {
	if e.data == "" {
		return nil
	}
	return e.data
}

func rejected(msg string) error {
	return &rpcError{code: codeRejected, message: msg}
}

func toRPCError(err error) error {
	var r *Revert
	if errors.As(err, &r) {
		return &rpcError{code: codeRevert, message: r.Error(), data: hexutil.Encode(RevertData(r.Reason))}
	}
	return rejected(err.Error())
}
