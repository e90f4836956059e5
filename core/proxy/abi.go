// Package proxy encodes proxy-contract calls: it picks the entry point for a
// derived CheckSet and funding strategy, packs the constraint lists, and
// decodes the contract's typed revert errors.
package proxy

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/checks"
)

// The proxy grew one entry point per generation: the bare variant, the
// metadata-annotated one, the net-change checker, the allowance-pull
// variant, and the permit variant. All are payable so native input rides in
// as call value. Exactly one is used per attempt.
const proxyABIJSON = `[
	{"type":"function","name":"execute","stateMutability":"payable","inputs":[
		{"name":"target","type":"address"},
		{"name":"data","type":"bytes"},
		{"name":"approvals","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"directTransfer","type":"bool"}]},
		{"name":"checks","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"int256"}]},
		{"name":"withdrawals","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"int256"}]}
	],"outputs":[{"name":"result","type":"bytes"}]},
	{"type":"function","name":"executeWithMetadata","stateMutability":"payable","inputs":[
		{"name":"target","type":"address"},
		{"name":"data","type":"bytes"},
		{"name":"approvals","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"directTransfer","type":"bool"}]},
		{"name":"checks","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"int256"}]},
		{"name":"withdrawals","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"int256"}]},
		{"name":"metadataHash","type":"bytes32"}
	],"outputs":[{"name":"result","type":"bytes"}]},
	{"type":"function","name":"executeWithDiffs","stateMutability":"payable","inputs":[
		{"name":"target","type":"address"},
		{"name":"data","type":"bytes"},
		{"name":"approvals","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"directTransfer","type":"bool"}]},
		{"name":"diffs","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"int256"}]},
		{"name":"withdrawals","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"int256"}]}
	],"outputs":[{"name":"result","type":"bytes"}]},
	{"type":"function","name":"executeAndApproveRouter","stateMutability":"payable","inputs":[
		{"name":"target","type":"address"},
		{"name":"data","type":"bytes"},
		{"name":"approvals","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"directTransfer","type":"bool"}]},
		{"name":"checks","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"int256"}]},
		{"name":"withdrawals","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"int256"}]}
	],"outputs":[{"name":"result","type":"bytes"}]},
	{"type":"function","name":"executeWithPermit","stateMutability":"payable","inputs":[
		{"name":"target","type":"address"},
		{"name":"data","type":"bytes"},
		{"name":"approvals","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"directTransfer","type":"bool"}]},
		{"name":"diffs","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"int256"}]},
		{"name":"checks","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"int256"}]},
		{"name":"withdrawals","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"int256"}]},
		{"name":"permits","type":"tuple[]","components":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}]}
	],"outputs":[{"name":"result","type":"bytes"}]},
	{"type":"error","name":"BalanceCheckFailed","inputs":[{"name":"token","type":"address"},{"name":"expected","type":"int256"},{"name":"actual","type":"int256"}]},
	{"type":"error","name":"InnerCallFailed","inputs":[{"name":"reason","type":"bytes"}]},
	{"type":"error","name":"MetadataMismatch","inputs":[{"name":"expected","type":"bytes32"},{"name":"actual","type":"bytes32"}]}
]`

var proxyABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(proxyABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid proxy ABI: %v", err))
	}
	proxyABI = parsed
}

// Wire forms of the constraint tuples. Field order and names mirror the ABI
// components; the abi package matches them by name when packing.
type wireCheck struct {
	Target common.Address
	Token  common.Address
	Amount *big.Int
}

type wireApproval struct {
	Target         common.Address
	Token          common.Address
	Amount         *big.Int
	DirectTransfer bool
}

type wirePermit struct {
	Token    common.Address
	Amount   *big.Int
	Deadline *big.Int
	V        uint8
	R        [32]byte
	S        [32]byte
}

func toWireChecks(constraints []checks.BalanceConstraint) []wireCheck {
	out := make([]wireCheck, len(constraints))
	for i, c := range constraints {
		out[i] = wireCheck{Target: c.Target, Token: c.Token, Amount: c.Amount}
	}
	return out
}

func toWireApprovals(approvals []checks.Approval) []wireApproval {
	out := make([]wireApproval, len(approvals))
	for i, a := range approvals {
		out[i] = wireApproval{
			Target:         a.Target,
			Token:          a.Token,
			Amount:         a.Amount,
			DirectTransfer: a.DirectTransfer,
		}
	}
	return out
}

func toWirePermits(permits []checks.PermitSignature) []wirePermit {
	out := make([]wirePermit, len(permits))
	for i, p := range permits {
		out[i] = wirePermit{
			Token:    p.Token,
			Amount:   p.Amount,
			Deadline: p.Deadline,
			V:        p.V,
			R:        p.R,
			S:        p.S,
		}
	}
	return out
}
