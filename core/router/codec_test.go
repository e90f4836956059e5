package router

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/testutil"
)

func TestDecodeCommands(t *testing.T) {
	commands, err := DecodeCommands("0x0b000c")
	require.NoError(t, err)
	require.Len(t, commands, 3)

	assert.Equal(t, OpWrapNative, commands[0].Op())
	assert.Equal(t, OpV3SwapExactIn, commands[1].Op())
	assert.Equal(t, OpUnwrapNative, commands[2].Op())
	assert.False(t, commands[1].AllowRevert())
}

func TestDecodeCommandsAllowRevertFlag(t *testing.T) {
	commands, err := DecodeCommands("0x80")
	require.NoError(t, err)
	require.Len(t, commands, 1)

	assert.True(t, commands[0].AllowRevert())
	assert.Equal(t, OpV3SwapExactIn, commands[0].Op())
	assert.Equal(t, "V3_SWAP_EXACT_IN|ALLOW_REVERT(0x80)", commands[0].String())
}

func TestDecodeCommandsRejectsOddHex(t *testing.T) {
	_, err := DecodeCommands("0x0b0")
	assert.Error(t, err)
}

func TestCommandsRoundTrip(t *testing.T) {
	cases := []string{"0x", "0x00", "0x0b000c", "0x0a0009", "0x100421"}
	for _, encoded := range cases {
		commands, err := DecodeCommands(encoded)
		if err != nil {
			t.Fatalf("decode %s: %v", encoded, err)
		}
		if got := EncodeCommands(commands); got != encoded {
			t.Errorf("round trip %s: got %s", encoded, got)
		}
	}
}

func TestUnknownCommandKeepsByte(t *testing.T) {
	commands, err := DecodeCommands("0x3f")
	require.NoError(t, err)
	require.Len(t, commands, 1)

	assert.Equal(t, OpUnknown, commands[0].Op())
	assert.Equal(t, "0x3f", EncodeCommands(commands))
}

func TestDecodeExecuteWithDeadline(t *testing.T) {
	path := testutil.V3Path(
		[]common.Address{testutil.TestTokenWETH, testutil.TestTokenUSDC},
		[]uint32{500},
	)
	input := testutil.V3SwapInput(testutil.TestUserAddress, big.NewInt(1e18), big.NewInt(0), path, true)
	deadline := big.NewInt(1700000000)
	data := testutil.ExecuteCalldata([]byte{byte(idV3SwapExactIn)}, [][]byte{input}, deadline)

	call, err := DecodeExecute(data)
	require.NoError(t, err)
	require.Len(t, call.Commands, 1)
	require.Len(t, call.Inputs, 1)

	assert.Equal(t, OpV3SwapExactIn, call.Commands[0].Op())
	assert.Equal(t, input, call.Inputs[0])
	require.NotNil(t, call.Deadline)
	assert.Zero(t, deadline.Cmp(call.Deadline))
}

func TestExecuteEncodeRoundTrip(t *testing.T) {
	path := testutil.V3Path(
		[]common.Address{testutil.TestTokenWETH, testutil.TestTokenDAI},
		[]uint32{3000},
	)
	input := testutil.V3SwapInput(testutil.TestUserAddress, big.NewInt(5e17), big.NewInt(1), path, true)
	data := testutil.ExecuteCalldata([]byte{byte(idV3SwapExactIn)}, [][]byte{input}, big.NewInt(1800000000))

	call, err := DecodeExecute(data)
	require.NoError(t, err)

	reencoded, err := call.Encode()
	require.NoError(t, err)
	assert.Equal(t, hexutil.Encode(data), hexutil.Encode(reencoded))
}

func TestExecuteEncodeNoDeadlineUsesTwoArgOverload(t *testing.T) {
	call := &ExecuteCall{
		Commands: []Command{Command(idSweep)},
		Inputs:   [][]byte{make([]byte, 96)},
	}
	data, err := call.Encode()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 4)
	assert.Equal(t, executeNoDeadline.ID, data[:4])

	decoded, err := DecodeExecute(data)
	require.NoError(t, err)
	assert.Nil(t, decoded.Deadline)
	assert.Equal(t, call.Commands, decoded.Commands)
}

func TestDecodeExecuteRejectsUnknownSelector(t *testing.T) {
	_, err := DecodeExecute([]byte{0xde, 0xad, 0xbe, 0xef, 0x00})
	assert.Error(t, err)
}
