// Package checks turns simulated balance movements into the signed balance
// constraints the proxy enforces on-chain, and owns the constraint containers
// passed to the call encoder.
package checks

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/erc20"
)

// Mode selects which constraint semantics the proxy call enforces.
type Mode uint8

const (
	// ModeDiffs checks net balance change over the inner call.
	ModeDiffs Mode = iota
	// ModePrePost checks absolute final balances against precomputed floors.
	ModePrePost
)

func (m Mode) String() string {
	switch m {
	case ModeDiffs:
		return "diffs"
	case ModePrePost:
		return "pre/post"
	}
	return "unknown"
}

// BalanceConstraint is one signed balance requirement. Positive Amount means
// the target's balance must increase by at least Amount; negative means it
// must not decrease by more than its magnitude. The zero token address
// denotes the native currency.
type BalanceConstraint struct {
	Target common.Address
	Token  common.Address
	Amount *big.Int
}

// Native reports whether the constraint concerns the native currency.
func (b BalanceConstraint) Native() bool {
	return erc20.IsNative(b.Token)
}

// Approval is a funding requirement for the inner call's input token.
// DirectTransfer true means the proxy moves the tokens itself (pre-funding);
// false means a conventional allowance-based pull.
type Approval struct {
	BalanceConstraint
	DirectTransfer bool
}

// PermitSignature is an off-chain EIP-2612-style authorization, the gasless
// alternative to an approval transaction. One per token, cached for the
// lifetime of a user interaction.
type PermitSignature struct {
	Token    common.Address
	Amount   *big.Int
	Deadline *big.Int
	V        uint8
	R        [32]byte
	S        [32]byte
}

// CheckSet is every constraint derived for one transaction attempt. The four
// lists are independent; which ones the encoder consumes depends on Mode and
// funding strategy.
//
// A CheckSet is only valid for the exact (target, data, value) triple it was
// derived from. Mutating the transaction afterwards invalidates it; callers
// verify with Binds before encoding and re-derive on mismatch.
type CheckSet struct {
	Mode Mode

	Approvals    []Approval
	Withdrawals  []BalanceConstraint
	Diffs        []BalanceConstraint
	PostTransfer []BalanceConstraint

	target   common.Address
	dataHash common.Hash
	value    *big.Int
}

// NewCheckSet creates an empty set bound to the transaction it will
// constrain.
func NewCheckSet(mode Mode, target common.Address, data []byte, value *big.Int) *CheckSet {
	return &CheckSet{
		Mode:     mode,
		target:   target,
		dataHash: crypto.Keccak256Hash(data),
		value:    new(big.Int).Set(normalizeValue(value)),
	}
}

// Binds reports whether the set was derived for exactly this call.
func (cs *CheckSet) Binds(target common.Address, data []byte, value *big.Int) bool {
	return cs.target == target &&
		cs.dataHash == crypto.Keccak256Hash(data) &&
		cs.value.Cmp(normalizeValue(value)) == 0
}

// Target returns the call target the set is bound to.
func (cs *CheckSet) Target() common.Address {
	return cs.target
}

// Empty reports whether derivation produced no constraints at all.
func (cs *CheckSet) Empty() bool {
	return len(cs.Approvals) == 0 &&
		len(cs.Withdrawals) == 0 &&
		len(cs.Diffs) == 0 &&
		len(cs.PostTransfer) == 0
}

func normalizeValue(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
