package simulation

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/testutil"
)

func TestGenerousBalanceOverride(t *testing.T) {
	overrides := GenerousBalanceOverride(testutil.TestUserAddress)
	require.Len(t, overrides, 1)

	hundredEth, _ := new(big.Int).SetString("100000000000000000000", 10)
	assert.Equal(t, hundredEth, overrides[testutil.TestUserAddress].Balance)
}

func TestBalancesSlotVariesByHolderAndSlot(t *testing.T) {
	a := BalancesSlot(testutil.TestUserAddress, 9)
	b := BalancesSlot(testutil.TestRouterAddress, 9)
	c := BalancesSlot(testutil.TestUserAddress, 2)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, BalancesSlot(testutil.TestUserAddress, 9), "slot derivation must be deterministic")
}

func TestWithTokenBalance(t *testing.T) {
	overrides := GenerousBalanceOverride(testutil.TestUserAddress).
		WithTokenBalance(testutil.TestTokenUSDC, testutil.TestUserAddress, 9, big.NewInt(1e15))

	tokenOverride, ok := overrides[testutil.TestTokenUSDC]
	require.True(t, ok)
	require.Len(t, tokenOverride.Storage, 1)

	slot := BalancesSlot(testutil.TestUserAddress, 9)
	assert.Equal(t, big.NewInt(1e15).Int64(), tokenOverride.Storage[slot].Big().Int64())

	// the balance override on the sender is still there
	assert.NotNil(t, overrides[testutil.TestUserAddress].Balance)
}

func TestMergeUnionsStorage(t *testing.T) {
	base := Overrides{}.
		WithTokenBalance(testutil.TestTokenUSDC, testutil.TestUserAddress, 9, big.NewInt(1))
	extra := GenerousBalanceOverride(testutil.TestUserAddress).
		WithTokenBalance(testutil.TestTokenUSDC, testutil.TestRouterAddress, 9, big.NewInt(2))

	merged := base.Merge(extra)

	assert.Len(t, merged[testutil.TestTokenUSDC].Storage, 2)
	assert.NotNil(t, merged[testutil.TestUserAddress].Balance)
}

func TestEncodeStateObjects(t *testing.T) {
	overrides := GenerousBalanceOverride(testutil.TestUserAddress).
		WithTokenBalance(testutil.TestTokenUSDC, testutil.TestUserAddress, 9, big.NewInt(5))

	objects := encodeStateObjects(overrides)
	require.Len(t, objects, 2)

	sender, ok := objects[strings.ToLower(testutil.TestUserAddress.Hex())].(map[string]interface{})
	require.True(t, ok, "addresses must be lowercased")
	assert.Equal(t, "0x56bc75e2d63100000", sender["balance"])

	token := objects[strings.ToLower(testutil.TestTokenUSDC.Hex())].(map[string]interface{})
	storage, ok := token["storage"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, storage, 1)
}

func TestEncodeRPCOverridesUsesStateDiff(t *testing.T) {
	overrides := Overrides{}.
		WithTokenBalance(testutil.TestTokenUSDC, testutil.TestUserAddress, 9, big.NewInt(5))

	objects := encodeRPCOverrides(overrides)
	token := objects[strings.ToLower(testutil.TestTokenUSDC.Hex())].(map[string]interface{})
	_, hasStateDiff := token["stateDiff"]
	assert.True(t, hasStateDiff)
}

func TestStripStorage(t *testing.T) {
	overrides := GenerousBalanceOverride(testutil.TestUserAddress).
		WithTokenBalance(testutil.TestTokenUSDC, testutil.TestUserAddress, 9, big.NewInt(5))

	stripped := stripStorage(overrides)
	require.Len(t, stripped, 1)
	assert.NotNil(t, stripped[testutil.TestUserAddress].Balance)
	_, tokenKept := stripped[testutil.TestTokenUSDC]
	assert.False(t, tokenKept)
}
