package router

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/testutil"
)

func wethUSDCPath() []byte {
	return testutil.V3Path(
		[]common.Address{testutil.TestTokenWETH, testutil.TestTokenUSDC},
		[]uint32{500},
	)
}

func TestRewriteExecuteSingleSwap(t *testing.T) {
	input := testutil.V3SwapInput(SenderSentinel, big.NewInt(1e18), big.NewInt(2500e6), wethUSDCPath(), true)
	data := testutil.ExecuteCalldata([]byte{byte(idV3SwapExactIn)}, [][]byte{input}, big.NewInt(1700000000))

	result, err := RewriteExecute(data, testutil.TestUserAddress, testutil.GetLogger())
	require.NoError(t, err)

	assert.False(t, result.KeepInRouter)
	assert.False(t, result.NativeInput)
	assert.Zero(t, result.PermitsRemoved)
	assert.Empty(t, result.Skipped)

	// Outputs go straight to the user and the proxy pre-funds the router.
	call, err := DecodeExecute(result.Data)
	require.NoError(t, err)
	params, err := DecodeSwap(OpV3SwapExactIn, call.Inputs[0])
	require.NoError(t, err)
	assert.Equal(t, testutil.TestUserAddress, params.Recipient)
	assert.False(t, params.PayerIsCaller)
	assert.Zero(t, call.Deadline.Cmp(big.NewInt(1700000000)))
}

func TestRewriteExecuteSwapThenUnwrap(t *testing.T) {
	swapInput := testutil.V3SwapInput(RouterSentinel, big.NewInt(2500e6), big.NewInt(9e17), testutil.V3Path(
		[]common.Address{testutil.TestTokenUSDC, testutil.TestTokenWETH},
		[]uint32{500},
	), true)
	unwrapInput := append(common.LeftPadBytes(testutil.TestUserAddress.Bytes(), 32), common.LeftPadBytes(big.NewInt(9e17).Bytes(), 32)...)
	data := testutil.ExecuteCalldata(
		[]byte{byte(idV3SwapExactIn), byte(idUnwrapNative)},
		[][]byte{swapInput, unwrapInput},
		big.NewInt(1700000000),
	)

	result, err := RewriteExecute(data, testutil.TestUserAddress, testutil.GetLogger())
	require.NoError(t, err)

	assert.True(t, result.KeepInRouter)
	assert.False(t, result.NativeInput, "wrapped output does not make the input native")
	assert.Empty(t, result.Skipped)

	call, err := DecodeExecute(result.Data)
	require.NoError(t, err)

	params, err := DecodeSwap(OpV3SwapExactIn, call.Inputs[0])
	require.NoError(t, err)
	assert.Equal(t, RouterSentinel, params.Recipient, "swap output must stay at the router for the unwrap")
	assert.False(t, params.PayerIsCaller)

	assert.Equal(t, unwrapInput, call.Inputs[1], "non-swap inputs keep their bytes")
}

func TestRewriteExecuteWrapFirstMeansNativeInput(t *testing.T) {
	wrapInput := append(common.LeftPadBytes(RouterSentinel.Bytes(), 32), common.LeftPadBytes(big.NewInt(1e18).Bytes(), 32)...)
	swapInput := testutil.V3SwapInput(SenderSentinel, big.NewInt(1e18), big.NewInt(2500e6), wethUSDCPath(), false)
	data := testutil.ExecuteCalldata(
		[]byte{byte(idWrapNative), byte(idV3SwapExactIn)},
		[][]byte{wrapInput, swapInput},
		big.NewInt(1700000000),
	)

	result, err := RewriteExecute(data, testutil.TestUserAddress, testutil.GetLogger())
	require.NoError(t, err)
	assert.True(t, result.NativeInput)
	assert.False(t, result.KeepInRouter)
}

func TestRewriteExecuteWrapAndUnwrapIsNotNativeInput(t *testing.T) {
	wrapInput := make([]byte, 64)
	swapInput := testutil.V3SwapInput(RouterSentinel, big.NewInt(1), big.NewInt(1), wethUSDCPath(), true)
	unwrapInput := make([]byte, 64)
	data := testutil.ExecuteCalldata(
		[]byte{byte(idWrapNative), byte(idV3SwapExactIn), byte(idUnwrapNative)},
		[][]byte{wrapInput, swapInput, unwrapInput},
		big.NewInt(1700000000),
	)

	result, err := RewriteExecute(data, testutil.TestUserAddress, testutil.GetLogger())
	require.NoError(t, err)
	assert.False(t, result.NativeInput)
	assert.True(t, result.KeepInRouter)
}

func TestRewriteExecuteStripsBatchPermit(t *testing.T) {
	permitInput := []byte{0x01, 0x02, 0x03}
	swapInput := testutil.V3SwapInput(SenderSentinel, big.NewInt(1e18), big.NewInt(1), wethUSDCPath(), true)
	data := testutil.ExecuteCalldata(
		[]byte{byte(idPermitBatch), byte(idV3SwapExactIn)},
		[][]byte{permitInput, swapInput},
		big.NewInt(1700000000),
	)

	result, err := RewriteExecute(data, testutil.TestUserAddress, testutil.GetLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, result.PermitsRemoved)
	require.Len(t, result.Commands, 1)
	assert.Equal(t, OpV3SwapExactIn, result.Commands[0].Op())

	call, err := DecodeExecute(result.Data)
	require.NoError(t, err)
	require.Len(t, call.Commands, 1)
	require.Len(t, call.Inputs, 1)
}

func TestRewriteExecuteSingleTokenPermitSurvives(t *testing.T) {
	// Only the batch variant is redundant under pre-funding; the single
	// permit command stays.
	permitInput := []byte{0xaa}
	swapInput := testutil.V3SwapInput(SenderSentinel, big.NewInt(1), big.NewInt(1), wethUSDCPath(), true)
	data := testutil.ExecuteCalldata(
		[]byte{byte(idPermit), byte(idV3SwapExactIn)},
		[][]byte{permitInput, swapInput},
		big.NewInt(1700000000),
	)

	result, err := RewriteExecute(data, testutil.TestUserAddress, testutil.GetLogger())
	require.NoError(t, err)
	assert.Zero(t, result.PermitsRemoved)
	require.Len(t, result.Commands, 2)
	assert.Equal(t, OpPermit, result.Commands[0].Op())
	assert.Equal(t, permitInput, result.Inputs[0])
}

func TestRewriteExecuteSkipsMalformedSwap(t *testing.T) {
	good := testutil.V3SwapInput(SenderSentinel, big.NewInt(1e18), big.NewInt(1), wethUSDCPath(), true)
	bad := append([]byte{}, good...)
	bad[0] = 0xff // dirty recipient padding

	data := testutil.ExecuteCalldata(
		[]byte{byte(idV3SwapExactIn), byte(idV3SwapExactIn)},
		[][]byte{bad, good},
		big.NewInt(1700000000),
	)

	result, err := RewriteExecute(data, testutil.TestUserAddress, testutil.GetLogger())
	require.NoError(t, err)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, 0, result.Skipped[0].Index)

	call, err := DecodeExecute(result.Data)
	require.NoError(t, err)
	assert.Equal(t, bad, call.Inputs[0], "skipped command keeps its original input")

	params, err := DecodeSwap(OpV3SwapExactIn, call.Inputs[1])
	require.NoError(t, err)
	assert.Equal(t, testutil.TestUserAddress, params.Recipient, "healthy sibling is still rewritten")
}

func TestRewriteExecuteV4NoSettle(t *testing.T) {
	planInput := testutil.V4PlanInput(
		[]byte{byte(V4SwapExactInSingle), byte(V4TakeAll)},
		[][]byte{{0x01}, {0x02}},
	)
	data := testutil.ExecuteCalldata([]byte{byte(idV4Swap)}, [][]byte{planInput}, big.NewInt(1700000000))

	result, err := RewriteExecute(data, testutil.TestUserAddress, testutil.GetLogger())
	require.NoError(t, err)
	require.Len(t, result.Skipped, 1)
	assert.ErrorIs(t, result.Skipped[0].Err, ErrNoSettleAction)

	call, err := DecodeExecute(result.Data)
	require.NoError(t, err)
	assert.Equal(t, planInput, call.Inputs[0])
}

func TestRewriteExecuteV4SettleRewritten(t *testing.T) {
	planInput := testutil.V4PlanInput(
		[]byte{byte(V4SwapExactInSingle), byte(V4Settle), byte(V4TakeAll)},
		[][]byte{
			{0x01},
			testutil.SettleParams(testutil.TestTokenWETH, big.NewInt(0), true),
			{0x03},
		},
	)
	data := testutil.ExecuteCalldata([]byte{byte(idV4Swap)}, [][]byte{planInput}, big.NewInt(1700000000))

	result, err := RewriteExecute(data, testutil.TestUserAddress, testutil.GetLogger())
	require.NoError(t, err)
	assert.Empty(t, result.Skipped)

	call, err := DecodeExecute(result.Data)
	require.NoError(t, err)
	plan, err := DecodePlan(call.Inputs[0])
	require.NoError(t, err)
	settle, err := DecodeSettle(plan.Params[1])
	require.NoError(t, err)
	assert.False(t, settle.PayerIsCaller)
}

func TestRewriteExecuteRejectsNonExecuteCalldata(t *testing.T) {
	_, err := RewriteExecute([]byte{0x01, 0x02, 0x03, 0x04}, testutil.TestUserAddress, nil)
	assert.Error(t, err)
}
