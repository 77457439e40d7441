// Package ledger implements the settlement ledger contract and a single-node
// chain that executes signed transactions against it.
package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Method names of the ledger contract.
const (
	MethodAddAsset              = "addAsset"
	MethodUpdatePrice           = "updatePrice"
	MethodBuy                   = "buy"
	MethodSell                  = "sell"
	MethodDepositReserve        = "depositReserve"
	MethodWithdrawReserve       = "withdrawReserve"
	MethodBalanceOf             = "balanceOf"
	MethodPriceOf               = "priceOf"
	MethodTransactionByID       = "transactionById"
	MethodTransactionsByAccount = "transactionsByAccount"
	MethodTransactionCount      = "transactionCount"
	MethodListAssets            = "listAssets"
	MethodReserve               = "reserve"
	MethodOwner                 = "owner"
)

// Event names of the ledger contract.
const (
	EventAssetAdded     = "AssetAdded"
	EventPriceUpdated   = "PriceUpdated"
	EventBought         = "Bought"
	EventSold           = "Sold"
	EventReserveChanged = "ReserveChanged"
)

// ABIJSON is the contract interface description.
const ABIJSON = `[
  {"type":"function","name":"addAsset","stateMutability":"nonpayable",
   "inputs":[{"name":"symbol","type":"string"},{"name":"price","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"updatePrice","stateMutability":"nonpayable",
   "inputs":[{"name":"symbol","type":"string"},{"name":"price","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"buy","stateMutability":"payable",
   "inputs":[{"name":"symbol","type":"string"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"txId","type":"uint256"}]},
  {"type":"function","name":"sell","stateMutability":"nonpayable",
   "inputs":[{"name":"symbol","type":"string"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"txId","type":"uint256"}]},
  {"type":"function","name":"depositReserve","stateMutability":"payable","inputs":[],"outputs":[]},
  {"type":"function","name":"withdrawReserve","stateMutability":"nonpayable",
   "inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"},{"name":"symbol","type":"string"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"priceOf","stateMutability":"view",
   "inputs":[{"name":"symbol","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"transactionById","stateMutability":"view",
   "inputs":[{"name":"id","type":"uint256"}],
   "outputs":[
     {"name":"id","type":"uint256"},{"name":"account","type":"address"},{"name":"symbol","type":"string"},
     {"name":"amount","type":"uint256"},{"name":"price","type":"uint256"},{"name":"isBuy","type":"bool"},
     {"name":"timestamp","type":"uint256"},{"name":"completed","type":"bool"}]},
  {"type":"function","name":"transactionsByAccount","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"transactionCount","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"listAssets","stateMutability":"view","inputs":[],
   "outputs":[{"name":"symbols","type":"string[]"},{"name":"prices","type":"uint256[]"},{"name":"active","type":"bool[]"}]},
  {"type":"function","name":"reserve","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},

  {"type":"event","name":"AssetAdded","anonymous":false,
   "inputs":[{"name":"symbol","type":"string","indexed":false},{"name":"price","type":"uint256","indexed":false}]},
  {"type":"event","name":"PriceUpdated","anonymous":false,
   "inputs":[{"name":"symbol","type":"string","indexed":false},{"name":"oldPrice","type":"uint256","indexed":false},
             {"name":"newPrice","type":"uint256","indexed":false}]},
  {"type":"event","name":"Bought","anonymous":false,
   "inputs":[{"name":"txId","type":"uint256","indexed":true},{"name":"account","type":"address","indexed":true},
             {"name":"symbol","type":"string","indexed":false},{"name":"amount","type":"uint256","indexed":false},
             {"name":"price","type":"uint256","indexed":false},{"name":"cost","type":"uint256","indexed":false}]},
  {"type":"event","name":"Sold","anonymous":false,
   "inputs":[{"name":"txId","type":"uint256","indexed":true},{"name":"account","type":"address","indexed":true},
             {"name":"symbol","type":"string","indexed":false},{"name":"amount","type":"uint256","indexed":false},
             {"name":"price","type":"uint256","indexed":false},{"name":"proceeds","type":"uint256","indexed":false}]},
  {"type":"event","name":"ReserveChanged","anonymous":false,
   "inputs":[{"name":"reserve","type":"uint256","indexed":false}]}
]`

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ABI returns the parsed contract interface.
func ABI() abi.ABI {
	return parsedABI
}
