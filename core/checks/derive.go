package checks

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/simulation"
)

// approvalBuffer pads the funding amount by 0.1% against integer-rounding
// loss when amounts travel through decimal formatting and back.
var approvalBuffer = decimal.RequireFromString("1.001")

// gasSafetyMultiplier pads the observed gas before it is priced into the
// native-currency floor.
var gasSafetyMultiplier = decimal.RequireFromString("1.5")

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// Call identifies the exact transaction the derived constraints bind to.
type Call struct {
	Target common.Address
	Data   []byte
	Value  *big.Int
}

// DeriveParams carries everything the derivation formulas need beyond the
// asset changes themselves.
type DeriveParams struct {
	Mode Mode

	// SlippagePercent widens both bounds, e.g. 1 for 1%.
	SlippagePercent decimal.Decimal

	// User is the account whose balances the constraints guard.
	User common.Address

	// Router receives the input-token funding; approvals target it.
	Router common.Address

	// GasUsed and MaxFeePerGas price the gas buffer subtracted from a
	// native-currency floor in pre/post mode.
	GasUsed      uint64
	MaxFeePerGas *big.Int

	// NativeInput suppresses approvals entirely: the input side is funded
	// through call value, not token transfers.
	NativeInput bool
}

// Derive converts the authoritative simulation's asset changes into a bound
// CheckSet.
//
// Exactly one spent and one received token are modeled. Multi-leg flows fail
// closed with ErrAmbiguousAssetChanges rather than guessing which leg the
// user cares about. A missing side is tolerated: a pure send has no received
// leg.
func Derive(call Call, changes []simulation.AssetChange, params DeriveParams) (*CheckSet, error) {
	spent, received, err := splitChanges(changes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", DeriveConstraintsError, err)
	}

	cs := NewCheckSet(params.Mode, call.Target, call.Data, call.Value)

	down := one.Sub(params.SlippagePercent.Div(hundred))
	up := one.Add(params.SlippagePercent.Div(hundred))

	switch params.Mode {
	case ModeDiffs:
		deriveDiffs(cs, spent, received, params, down, up)
	case ModePrePost:
		if err := derivePrePost(cs, spent, received, params, down, up); err != nil {
			return nil, fmt.Errorf("%s: %w", DeriveConstraintsError, err)
		}
	default:
		return nil, fmt.Errorf("%s: unknown mode %d", DeriveConstraintsError, params.Mode)
	}

	deriveApprovals(cs, spent, params)
	return cs, nil
}

func splitChanges(changes []simulation.AssetChange) (spent, received *simulation.AssetChange, err error) {
	if len(changes) == 0 {
		return nil, nil, ErrNoAssetChanges
	}
	for i := range changes {
		change := &changes[i]
		switch change.Diff.Sign() {
		case -1:
			if spent != nil {
				return nil, nil, ErrAmbiguousAssetChanges
			}
			spent = change
		case 1:
			if received != nil {
				return nil, nil, ErrAmbiguousAssetChanges
			}
			received = change
		}
	}
	if spent == nil && received == nil {
		return nil, nil, ErrNoAssetChanges
	}
	return spent, received, nil
}

// deriveDiffs populates the net-change constraints: a floor on what must
// arrive and a cap on what may leave.
func deriveDiffs(cs *CheckSet, spent, received *simulation.AssetChange, params DeriveParams, down, up decimal.Decimal) {
	if received != nil {
		minimum := decimal.NewFromBigInt(received.Diff, 0).Mul(down).Floor()
		cs.Withdrawals = append(cs.Withdrawals, BalanceConstraint{
			Target: params.User,
			Token:  received.Token,
			Amount: minimum.BigInt(),
		})
	}
	if spent != nil {
		bound := decimal.NewFromBigInt(spent.Diff, 0).Abs().Mul(up).Ceil()
		cs.Diffs = append(cs.Diffs, BalanceConstraint{
			Target: params.User,
			Token:  spent.Token,
			Amount: new(big.Int).Neg(bound.BigInt()),
		})
	}
}

// derivePrePost populates absolute minimum final balances. Native legs pay
// the transaction's own gas from the same balance outside the inner call, so
// their floor drops by a priced gas buffer.
func derivePrePost(cs *CheckSet, spent, received *simulation.AssetChange, params DeriveParams, down, up decimal.Decimal) error {
	gasBuffer := priceGasBuffer(params.GasUsed, params.MaxFeePerGas)

	appendFloor := func(change *simulation.AssetChange, factor decimal.Decimal) error {
		if change.Pre == nil {
			return ErrMissingPreBalances
		}
		floor := decimal.NewFromBigInt(change.Pre, 0).
			Add(decimal.NewFromBigInt(change.Diff, 0).Mul(factor)).
			Floor()
		if change.Native() {
			floor = floor.Sub(gasBuffer)
		}
		// An absolute minimum below zero cannot be violated; clamp so the
		// encoded uint stays meaningful.
		if floor.IsNegative() {
			floor = decimal.Zero
		}
		cs.PostTransfer = append(cs.PostTransfer, BalanceConstraint{
			Target: params.User,
			Token:  change.Token,
			Amount: floor.BigInt(),
		})
		return nil
	}

	if received != nil {
		if err := appendFloor(received, down); err != nil {
			return err
		}
	}
	if spent != nil {
		if err := appendFloor(spent, up); err != nil {
			return err
		}
	}
	return nil
}

// deriveApprovals adds the funding requirement for a non-native spent token.
// Native input needs no approval: funding rides in as call value.
func deriveApprovals(cs *CheckSet, spent *simulation.AssetChange, params DeriveParams) {
	if spent == nil || spent.Native() || params.NativeInput {
		return
	}
	amount := decimal.NewFromBigInt(spent.Diff, 0).Abs().Mul(approvalBuffer).Ceil()
	cs.Approvals = append(cs.Approvals, Approval{
		BalanceConstraint: BalanceConstraint{
			Target: params.Router,
			Token:  spent.Token,
			Amount: amount.BigInt(),
		},
		DirectTransfer: true,
	})
}

// priceGasBuffer converts observed gas into a native-currency amount with
// safety headroom.
func priceGasBuffer(gasUsed uint64, maxFeePerGas *big.Int) decimal.Decimal {
	if gasUsed == 0 || maxFeePerGas == nil {
		return decimal.Zero
	}
	gas := decimal.NewFromBigInt(new(big.Int).SetUint64(gasUsed), 0)
	fee := decimal.NewFromBigInt(maxFeePerGas, 0)
	return gas.Mul(gasSafetyMultiplier).Mul(fee).Ceil()
}
