package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

// JSON-RPC codes a node answers with when it refused the call itself.
const (
	codeRevert = 3
	codeServer = -32000
)

// refusals are the txpool and execution errors geth-style nodes report under
// codeServer. Other server errors say nothing about the call.
var refusals = []string{
	"execution reverted",
	"nonce too low",
	"nonce too high",
	"already known",
	"replacement transaction underpriced",
	"transaction underpriced",
	"insufficient funds",
	"intrinsic gas too low",
	"exceeds block gas limit",
	"gas required exceeds allowance",
	"max fee per gas less than block base fee",
	"max priority fee per gas higher than max fee per gas",
	"invalid sender",
	"contract creation is not supported",
	"invalid value",
}

// classify maps a node error onto the failure taxonomy. Reverts and refusals
// reject the call; anything else means no outcome is known.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if reason, ok := revertReason(err); ok {
		return domain.NewRejection(reason)
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && refused(rpcErr) {
		return domain.NewRejection(rpcErr.Error())
	}
	return domain.Unavailable(op, err)
}

func refused(err rpc.Error) bool {
	switch err.ErrorCode() {
	case codeRevert:
		return true
	case codeServer:
		msg := strings.ToLower(err.Error())
		for _, r := range refusals {
			if strings.Contains(msg, r) {
				return true
			}
		}
	}
	return false
}

// revertReason extracts the Error(string) payload of a reverted call.
func revertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return "", false
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return "", false
	}
	raw, err := hexutil.Decode(hexData)
	if err != nil {
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", false
	}
	return reason, true
}
