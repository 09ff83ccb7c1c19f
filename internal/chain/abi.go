// Package chain talks to the per-user vault contracts and the bonding-curve
// router over JSON-RPC.
package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// vaultABIJSON covers the agent-callable subset of the vault contract.
const vaultABIJSON = `[
  {"type":"function","name":"executeBuy","stateMutability":"nonpayable",
   "inputs":[{"name":"token","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"minAmountOut","type":"uint256"},{"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amountOut","type":"uint256"}]},
  {"type":"function","name":"executeSell","stateMutability":"nonpayable",
   "inputs":[{"name":"token","type":"address"},{"name":"tokenAmount","type":"uint256"},{"name":"minAmountOut","type":"uint256"},{"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amountOut","type":"uint256"}]},
  {"type":"event","name":"TradeExecuted","anonymous":false,
   "inputs":[{"name":"token","type":"address","indexed":true},{"name":"isBuy","type":"bool","indexed":false},{"name":"amountIn","type":"uint256","indexed":false},{"name":"amountOut","type":"uint256","indexed":false}]}
]`

// routerABIJSON covers the quote view of the bonding-curve router.
const routerABIJSON = `[
  {"type":"function","name":"getAmountOut","stateMutability":"view",
   "inputs":[{"name":"token","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"isBuy","type":"bool"}],
   "outputs":[{"name":"amountOut","type":"uint256"}]}
]`

var (
	vaultABI  = mustParseABI("vault", vaultABIJSON)
	routerABI = mustParseABI("router", routerABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("chain: parse %s abi: %v", name, err))
	}
	return parsed
}
