package proxy

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/checks"
)

// Variant names one proxy entry point.
type Variant uint8

const (
	VariantPlain Variant = iota
	VariantMetadata
	VariantDiffs
	VariantApproveRouter
	VariantPermit
)

func (v Variant) String() string {
	switch v {
	case VariantPlain:
		return "execute"
	case VariantMetadata:
		return "executeWithMetadata"
	case VariantDiffs:
		return "executeWithDiffs"
	case VariantApproveRouter:
		return "executeAndApproveRouter"
	case VariantPermit:
		return "executeWithPermit"
	}
	return "unknown"
}

// EncodeParams is everything beyond the CheckSet that shapes the proxy call.
type EncodeParams struct {
	// Target and Data are the rewritten inner call; Value is forwarded as
	// call value (native input rides here).
	Target common.Address
	Data   []byte
	Value  *big.Int

	// Permits selects the permit variant when non-empty.
	Permits []checks.PermitSignature

	// AllowancePull selects the approve-router variant: the proxy grants
	// the router an allowance instead of moving tokens itself.
	AllowancePull bool

	// AnnotateMetadata adds the metadata hash so the contract can verify
	// the constraints shown to the user are the constraints enforced.
	AnnotateMetadata bool
}

// Call is a fully encoded, submittable proxy invocation.
type Call struct {
	To      common.Address
	Data    []byte
	Value   *big.Int
	Variant Variant
}

// Encoder builds proxy calls for one deployed proxy address.
type Encoder struct {
	proxy common.Address
}

func NewEncoder(proxy common.Address) *Encoder {
	return &Encoder{proxy: proxy}
}

// SelectVariant picks the single entry point for this attempt. Priority:
// permit funding, then net-change checking, then allowance-pull funding,
// then metadata annotation, then the bare variant.
func SelectVariant(cs *checks.CheckSet, params EncodeParams) Variant {
	switch {
	case len(params.Permits) > 0:
		return VariantPermit
	case cs.Mode == checks.ModeDiffs:
		return VariantDiffs
	case params.AllowancePull && len(cs.Approvals) > 0:
		return VariantApproveRouter
	case params.AnnotateMetadata:
		return VariantMetadata
	}
	return VariantPlain
}

// Encode packs the CheckSet into the selected entry point's argument list.
// The set must still bind to (Target, Data, Value); anything else means the
// transaction changed after derivation and the caller must re-derive.
func (e *Encoder) Encode(cs *checks.CheckSet, params EncodeParams) (*Call, error) {
	if !cs.Binds(params.Target, params.Data, params.Value) {
		return nil, fmt.Errorf("%s: %w", EncodeProxyCallError, ErrStaleConstraints)
	}

	variant := SelectVariant(cs, params)

	approvals := toWireApprovals(effectiveApprovals(cs, params))
	diffs := toWireChecks(cs.Diffs)
	post := toWireChecks(cs.PostTransfer)
	withdrawals := toWireChecks(cs.Withdrawals)

	var (
		packed []byte
		err    error
	)
	switch variant {
	case VariantPlain:
		packed, err = proxyABI.Pack("execute",
			params.Target, params.Data, approvals, post, withdrawals)
	case VariantMetadata:
		packed, err = proxyABI.Pack("executeWithMetadata",
			params.Target, params.Data, approvals, post, withdrawals, MetadataHash(cs))
	case VariantDiffs:
		packed, err = proxyABI.Pack("executeWithDiffs",
			params.Target, params.Data, approvals, diffs, withdrawals)
	case VariantApproveRouter:
		packed, err = proxyABI.Pack("executeAndApproveRouter",
			params.Target, params.Data, approvals, post, withdrawals)
	case VariantPermit:
		packed, err = proxyABI.Pack("executeWithPermit",
			params.Target, params.Data, approvals, diffs, post, withdrawals,
			toWirePermits(params.Permits))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", EncodeProxyCallError, variant, err)
	}

	value := params.Value
	if value == nil {
		value = big.NewInt(0)
	}
	return &Call{
		To:      e.proxy,
		Data:    packed,
		Value:   value,
		Variant: variant,
	}, nil
}

// MetadataHash commits to the constraint lists a host displayed before
// signing. The contract recomputes the same hash from its arguments and
// reverts with MetadataMismatch when they drift apart.
func MetadataHash(cs *checks.CheckSet) [32]byte {
	var buf []byte
	appendConstraint := func(c checks.BalanceConstraint) {
		buf = append(buf, c.Target.Bytes()...)
		buf = append(buf, c.Token.Bytes()...)
		buf = append(buf, common.BigToHash(normalizedAmount(c.Amount)).Bytes()...)
	}
	for _, a := range cs.Approvals {
		appendConstraint(a.BalanceConstraint)
		if a.DirectTransfer {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	for _, c := range cs.Withdrawals {
		appendConstraint(c)
	}
	for _, c := range cs.Diffs {
		appendConstraint(c)
	}
	for _, c := range cs.PostTransfer {
		appendConstraint(c)
	}

	var out [32]byte
	copy(out[:], crypto.Keccak256(buf))
	return out
}

// effectiveApprovals flips every approval to allowance-pull when that
// funding path was chosen, so the flag the contract sees matches the entry
// point semantics.
func effectiveApprovals(cs *checks.CheckSet, params EncodeParams) []checks.Approval {
	if !params.AllowancePull {
		return cs.Approvals
	}
	out := make([]checks.Approval, len(cs.Approvals))
	copy(out, cs.Approvals)
	for i := range out {
		out[i].DirectTransfer = false
	}
	return out
}

// normalizedAmount maps a signed amount onto its two's-complement word, the
// same representation the ABI encoding uses.
func normalizedAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	if v.Sign() >= 0 {
		return v
	}
	// two's complement within 256 bits
	mod := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Add(mod, v)
}
