package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// registryABIJSON is the on-chain interface of the agent registry. Agents
// register once per wallet and then post signals and predictions under
// that identity.
const registryABIJSON = `[
  {"type":"function","name":"registerAgent","stateMutability":"nonpayable",
   "inputs":[{"name":"name","type":"string"}],"outputs":[]},
  {"type":"function","name":"postSignal","stateMutability":"nonpayable",
   "inputs":[{"name":"signalType","type":"string"},{"name":"confidence","type":"uint256"},
             {"name":"price","type":"uint256"},{"name":"reason","type":"string"}],"outputs":[]},
  {"type":"function","name":"postPrediction","stateMutability":"nonpayable",
   "inputs":[{"name":"direction","type":"string"},{"name":"confidence","type":"uint256"},
             {"name":"referencePrice","type":"uint256"},{"name":"targetTime","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"verifyPrediction","stateMutability":"nonpayable",
   "inputs":[{"name":"index","type":"uint256"},{"name":"actualPrice","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"agents","stateMutability":"view",
   "inputs":[{"name":"","type":"address"}],
   "outputs":[{"name":"name","type":"string"},{"name":"totalSignals","type":"uint256"},
              {"name":"totalPredictions","type":"uint256"},{"name":"correctPredictions","type":"uint256"},
              {"name":"lastActive","type":"uint256"},{"name":"isRegistered","type":"bool"}]},
  {"type":"function","name":"getAgentAccuracy","stateMutability":"view",
   "inputs":[{"name":"agent","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

// quoterABIJSON is the swap-quote read used as the on-chain price fallback.
const quoterABIJSON = `[
  {"type":"function","name":"getAmountOut","stateMutability":"view",
   "inputs":[{"name":"amountIn","type":"uint256"},{"name":"tokenIn","type":"address"},
             {"name":"tokenOut","type":"address"}],
   "outputs":[{"name":"amountOut","type":"uint256"}]}
]`

// curveABIJSON is the bonding-curve read surface: launch progress toward
// graduation and the graduated flag.
const curveABIJSON = `[
  {"type":"function","name":"getProgress","stateMutability":"view",
   "inputs":[{"name":"token","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"isGraduated","stateMutability":"view",
   "inputs":[{"name":"token","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

// erc20ABIJSON covers the token reads the agents need for supply fractions
// and holder balances.
const erc20ABIJSON = `[
  {"type":"function","name":"totalSupply","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	registryABI = mustParseABI(registryABIJSON)
	quoterABI   = mustParseABI(quoterABIJSON)
	curveABI    = mustParseABI(curveABIJSON)
	erc20ABI    = mustParseABI(erc20ABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: bad ABI literal: " + err.Error())
	}
	return parsed
}
