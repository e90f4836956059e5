// Package testutil builds router calldata fixtures for tests.
//
// The encoders here are intentionally independent from core/router: they
// assemble head slots and tails by hand, so round-trip tests exercise two
// separate encoding paths instead of one package checking itself.
package testutil

import (
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/logger"
)

var (
	// TestUserAddress is the externally owned account used across fixtures.
	TestUserAddress = common.HexToAddress("0xa0Ee7A142d267C1f36714E4a8F75612F20a79720")

	// TestRouterAddress stands in for a deployed command router.
	TestRouterAddress = common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD")

	// TestProxyAddress stands in for a deployed balance proxy.
	TestProxyAddress = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")

	// TestTokenWETH and friends are mainnet token addresses reused as fixture
	// currencies so packed paths look like real ones.
	TestTokenWETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	TestTokenUSDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	TestTokenDAI  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

// GetLogger returns a quiet logger for tests. Set TEST_LOG=1 to see output.
func GetLogger() logger.Logger {
	if os.Getenv("TEST_LOG") != "" {
		l, err := logger.NewLogger(logger.Development)
		if err == nil {
			return l
		}
	}
	return logger.NewNoOpLogger()
}

// GetTestRPCURL returns an RPC endpoint for integration tests that talk to a
// live chain. Unit tests never dial it.
func GetTestRPCURL() string {
	if v := os.Getenv("RPC_URL"); v != "" {
		return v
	}
	return "https://sepolia.drpc.org"
}

func word(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

func boolWord(v bool) []byte {
	w := make([]byte, 32)
	if v {
		w[31] = 1
	}
	return w
}

// V3Path packs tokens and pool fees into the tightly packed path format used
// by concentrated-liquidity swaps: 20-byte token, 3-byte fee, repeating, with
// a trailing token. len(fees) must be len(tokens)-1.
func V3Path(tokens []common.Address, fees []uint32) []byte {
	path := make([]byte, 0, len(tokens)*20+len(fees)*3)
	for i, tok := range tokens {
		path = append(path, tok.Bytes()...)
		if i < len(fees) {
			fee := fees[i]
			path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
		}
	}
	return path
}

// V3SwapInput assembles the five head slots and length-prefixed path tail of
// a concentrated-liquidity swap input. The same shape serves exact-in and
// exact-out; only the meaning of the two amount slots differs.
func V3SwapInput(recipient common.Address, amount, amountBound *big.Int, path []byte, payerIsCaller bool) []byte {
	input := make([]byte, 0, 5*32+32+len(path)+32)
	input = append(input, addressWord(recipient)...)
	input = append(input, word(amount)...)
	input = append(input, word(amountBound)...)
	input = append(input, word(big.NewInt(5*32))...)
	input = append(input, boolWord(payerIsCaller)...)
	input = append(input, word(big.NewInt(int64(len(path))))...)
	input = append(input, common.RightPadBytes(path, (len(path)+31)/32*32)...)
	return input
}

// V2SwapInput assembles a pair-swap input whose tail is an address array
// instead of a packed path.
func V2SwapInput(recipient common.Address, amount, amountBound *big.Int, pathTokens []common.Address, payerIsCaller bool) []byte {
	input := make([]byte, 0, 5*32+32+len(pathTokens)*32)
	input = append(input, addressWord(recipient)...)
	input = append(input, word(amount)...)
	input = append(input, word(amountBound)...)
	input = append(input, word(big.NewInt(5*32))...)
	input = append(input, boolWord(payerIsCaller)...)
	input = append(input, word(big.NewInt(int64(len(pathTokens))))...)
	for _, tok := range pathTokens {
		input = append(input, addressWord(tok)...)
	}
	return input
}

var (
	planArguments   abi.Arguments
	settleArguments abi.Arguments
	executeSelector []byte
	executeArgs     abi.Arguments
)

func init() {
	bytesTy, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	bytesArrTy, err := abi.NewType("bytes[]", "", nil)
	if err != nil {
		panic(err)
	}
	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	boolTy, err := abi.NewType("bool", "", nil)
	if err != nil {
		panic(err)
	}
	planArguments = abi.Arguments{{Type: bytesTy}, {Type: bytesArrTy}}
	settleArguments = abi.Arguments{{Type: addressTy}, {Type: uint256Ty}, {Type: boolTy}}
	executeArgs = abi.Arguments{{Type: bytesTy}, {Type: bytesArrTy}, {Type: uint256Ty}}
	executeSelector = crypto.Keccak256([]byte("execute(bytes,bytes[],uint256)"))[:4]
}

// V4PlanInput ABI-encodes an action byte string and its parallel params into
// the (bytes, bytes[]) pair a nested-plan swap command carries.
func V4PlanInput(actions []byte, params [][]byte) []byte {
	packed, err := planArguments.Pack(actions, params)
	if err != nil {
		panic(err)
	}
	return packed
}

// SettleParams ABI-encodes the (currency, amount, payerIsUser) tuple of a
// settle action.
func SettleParams(currency common.Address, amount *big.Int, payerIsUser bool) []byte {
	packed, err := settleArguments.Pack(currency, amount, payerIsUser)
	if err != nil {
		panic(err)
	}
	return packed
}

// ExecuteCalldata builds full three-argument execute calldata, selector
// included, from a command byte string and its inputs.
func ExecuteCalldata(commands []byte, inputs [][]byte, deadline *big.Int) []byte {
	packed, err := executeArgs.Pack(commands, inputs, deadline)
	if err != nil {
		panic(err)
	}
	return append(append([]byte{}, executeSelector...), packed...)
}
