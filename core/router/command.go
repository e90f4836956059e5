// Package router decodes, rewrites, and re-encodes command-based router
// calldata. A router call carries a packed list of single-byte commands and a
// parallel array of per-command ABI-encoded inputs; executing through the
// balance proxy requires rewriting payer and recipient fields inside the swap
// commands while leaving everything else byte-identical.
package router

import "fmt"

// Command is one byte of the command list. The low six bits select the
// operation; bit 7 lets the command revert without aborting the batch.
type Command byte

const (
	opMask          = 0x3f
	allowRevertFlag = 0x80
)

// Op identifies a known operation. Anything not in the table decodes to
// OpUnknown and is never rewritten.
type Op uint8

const (
	OpUnknown Op = iota
	OpV3SwapExactIn
	OpV3SwapExactOut
	OpPermit2TransferFrom
	OpPermitBatch
	OpSweep
	OpTransfer
	OpPayPortion
	OpV2SwapExactIn
	OpV2SwapExactOut
	OpPermit
	OpWrapNative
	OpUnwrapNative
	OpV4Swap
	OpSubPlan
)

// Wire ids.
const (
	idV3SwapExactIn       = 0x00
	idV3SwapExactOut      = 0x01
	idPermit2TransferFrom = 0x02
	idPermitBatch         = 0x03
	idSweep               = 0x04
	idTransfer            = 0x05
	idPayPortion          = 0x06
	idV2SwapExactIn       = 0x08
	idV2SwapExactOut      = 0x09
	idPermit              = 0x0a
	idWrapNative          = 0x0b
	idUnwrapNative        = 0x0c
	idV4Swap              = 0x10
	idSubPlan             = 0x21
)

var opByID = map[byte]Op{
	idV3SwapExactIn:       OpV3SwapExactIn,
	idV3SwapExactOut:      OpV3SwapExactOut,
	idPermit2TransferFrom: OpPermit2TransferFrom,
	idPermitBatch:         OpPermitBatch,
	idSweep:               OpSweep,
	idTransfer:            OpTransfer,
	idPayPortion:          OpPayPortion,
	idV2SwapExactIn:       OpV2SwapExactIn,
	idV2SwapExactOut:      OpV2SwapExactOut,
	idPermit:              OpPermit,
	idWrapNative:          OpWrapNative,
	idUnwrapNative:        OpUnwrapNative,
	idV4Swap:              OpV4Swap,
	idSubPlan:             OpSubPlan,
}

var opNames = map[Op]string{
	OpUnknown:             "UNKNOWN",
	OpV3SwapExactIn:       "V3_SWAP_EXACT_IN",
	OpV3SwapExactOut:      "V3_SWAP_EXACT_OUT",
	OpPermit2TransferFrom: "PERMIT2_TRANSFER_FROM",
	OpPermitBatch:         "PERMIT2_PERMIT_BATCH",
	OpSweep:               "SWEEP",
	OpTransfer:            "TRANSFER",
	OpPayPortion:          "PAY_PORTION",
	OpV2SwapExactIn:       "V2_SWAP_EXACT_IN",
	OpV2SwapExactOut:      "V2_SWAP_EXACT_OUT",
	OpPermit:              "PERMIT2_PERMIT",
	OpWrapNative:          "WRAP_NATIVE",
	OpUnwrapNative:        "UNWRAP_NATIVE",
	OpV4Swap:              "V4_SWAP",
	OpSubPlan:             "EXECUTE_SUB_PLAN",
}

// ID returns the six-bit operation id with flag bits masked off.
func (c Command) ID() byte {
	return byte(c) & opMask
}

// AllowRevert reports whether the command may revert without failing the
// whole batch.
func (c Command) AllowRevert() bool {
	return byte(c)&allowRevertFlag != 0
}

// Op maps the command byte onto the closed operation enum.
func (c Command) Op() Op {
	if op, ok := opByID[c.ID()]; ok {
		return op
	}
	return OpUnknown
}

func (c Command) String() string {
	if c.AllowRevert() {
		return fmt.Sprintf("%s|ALLOW_REVERT(0x%02x)", c.Op(), byte(c))
	}
	return fmt.Sprintf("%s(0x%02x)", c.Op(), byte(c))
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// IsFlatSwap reports whether the operation is one of the four fixed-head swap
// variants whose inputs share the five-slot layout.
func (o Op) IsFlatSwap() bool {
	switch o {
	case OpV3SwapExactIn, OpV3SwapExactOut, OpV2SwapExactIn, OpV2SwapExactOut:
		return true
	}
	return false
}

// IsSwap reports whether the operation carries swap parameters of any shape.
func (o Op) IsSwap() bool {
	return o.IsFlatSwap() || o == OpV4Swap
}
