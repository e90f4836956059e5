package router

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/testutil"
)

func TestDecodePlan(t *testing.T) {
	swapParams := []byte{0xaa, 0xbb}
	settleParams := testutil.SettleParams(testutil.TestTokenUSDC, big.NewInt(0), true)
	input := testutil.V4PlanInput(
		[]byte{byte(V4SwapExactInSingle), byte(V4Settle), byte(V4TakeAll)},
		[][]byte{swapParams, settleParams, {0x01}},
	)

	plan, err := DecodePlan(input)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 3)

	assert.Equal(t, []V4Action{V4SwapExactInSingle, V4Settle, V4TakeAll}, plan.Actions)
	assert.Equal(t, swapParams, plan.Params[0])

	settle, err := DecodeSettle(plan.Params[1])
	require.NoError(t, err)
	assert.Equal(t, testutil.TestTokenUSDC, settle.Currency)
	assert.Zero(t, settle.Amount.Sign())
	assert.True(t, settle.PayerIsCaller)
}

func TestDecodePlanRejectsGarbage(t *testing.T) {
	_, err := DecodePlan([]byte{0x01, 0x02, 0x03})
	assert.Error(t, err)
}

func TestRewriteV4ForcesPayerFalse(t *testing.T) {
	swapParams := []byte{0xde, 0xad}
	input := testutil.V4PlanInput(
		[]byte{byte(V4SwapExactIn), byte(V4Settle), byte(V4Take)},
		[][]byte{
			swapParams,
			testutil.SettleParams(testutil.TestTokenWETH, big.NewInt(1e18), true),
			{0x02},
		},
	)

	rewritten, settles, err := RewriteV4(input)
	require.NoError(t, err)
	assert.Equal(t, 1, settles)

	plan, err := DecodePlan(rewritten)
	require.NoError(t, err)
	assert.Equal(t, swapParams, plan.Params[0], "non-settle params keep their bytes")
	assert.Equal(t, []byte{0x02}, plan.Params[2])

	settle, err := DecodeSettle(plan.Params[1])
	require.NoError(t, err)
	assert.False(t, settle.PayerIsCaller)
	assert.Equal(t, testutil.TestTokenWETH, settle.Currency)
	assert.Equal(t, big.NewInt(1e18), settle.Amount)
}

func TestRewriteV4MultipleSettles(t *testing.T) {
	input := testutil.V4PlanInput(
		[]byte{byte(V4Settle), byte(V4Settle)},
		[][]byte{
			testutil.SettleParams(testutil.TestTokenWETH, big.NewInt(1), true),
			testutil.SettleParams(testutil.TestTokenDAI, big.NewInt(2), true),
		},
	)

	rewritten, settles, err := RewriteV4(input)
	require.NoError(t, err)
	assert.Equal(t, 2, settles)

	plan, err := DecodePlan(rewritten)
	require.NoError(t, err)
	for i := range plan.Params {
		settle, err := DecodeSettle(plan.Params[i])
		require.NoError(t, err)
		assert.False(t, settle.PayerIsCaller, "settle %d", i)
	}
}

func TestRewriteV4NoSettleReturnsInputUnchanged(t *testing.T) {
	input := testutil.V4PlanInput(
		[]byte{byte(V4SwapExactInSingle), byte(V4TakeAll)},
		[][]byte{{0x01}, {0x02}},
	)

	rewritten, settles, err := RewriteV4(input)
	require.NoError(t, err)
	assert.Zero(t, settles)
	assert.Equal(t, input, rewritten)
}

func TestV4ActionString(t *testing.T) {
	assert.Equal(t, "SETTLE", V4Settle.String())
	assert.Equal(t, "V4Action(0x00)", V4Action(0).String())
}
