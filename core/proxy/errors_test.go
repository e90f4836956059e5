package proxy

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/testutil"
)

func packTypedRevert(t *testing.T, name string, args ...interface{}) []byte {
	t.Helper()
	def, ok := proxyABI.Errors[name]
	require.True(t, ok, "unknown proxy error %s", name)
	packed, err := def.Inputs.Pack(args...)
	require.NoError(t, err)
	return append(def.ID.Bytes()[:4], packed...)
}

func TestDecodeRevertTypedError(t *testing.T) {
	data := packTypedRevert(t, "BalanceCheckFailed",
		testutil.TestTokenUSDC, big.NewInt(100), big.NewInt(42))

	err := DecodeRevert(data)

	var revert *RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, "BalanceCheckFailed", revert.Name)
	require.Len(t, revert.Args, 3)
	assert.Equal(t, testutil.TestTokenUSDC, revert.Args[0])
	assert.Contains(t, revert.Error(), "BalanceCheckFailed(")
	assert.Contains(t, revert.Error(), "100")
	assert.Contains(t, revert.Error(), "42")
}

func TestDecodeRevertReasonString(t *testing.T) {
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	reason, err := abi.Arguments{{Type: stringType}}.Pack("TRANSFER_FROM_FAILED")
	require.NoError(t, err)
	// 0x08c379a0 is the Error(string) selector.
	data := append([]byte{0x08, 0xc3, 0x79, 0xa0}, reason...)

	decoded := DecodeRevert(data)

	var revert *RevertError
	require.ErrorAs(t, decoded, &revert)
	assert.Equal(t, "Error", revert.Name)
	assert.Contains(t, revert.Error(), "TRANSFER_FROM_FAILED")
}

func TestDecodeRevertUnrecognizedData(t *testing.T) {
	assert.ErrorIs(t, DecodeRevert(nil), ErrUnknownRevert)
	assert.ErrorIs(t, DecodeRevert([]byte{0xde, 0xad}), ErrUnknownRevert)
	assert.ErrorIs(t, DecodeRevert([]byte{0xde, 0xad, 0xbe, 0xef}), ErrUnknownRevert)
}
