package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// V4Action is one byte of a v4 plan's action list. Actions and params are
// parallel arrays, like commands and inputs one level up.
type V4Action byte

const (
	V4SwapExactInSingle  V4Action = 0x06
	V4SwapExactIn        V4Action = 0x07
	V4SwapExactOutSingle V4Action = 0x08
	V4SwapExactOut       V4Action = 0x09
	V4Settle             V4Action = 0x0b
	V4SettleAll          V4Action = 0x0c
	V4Take               V4Action = 0x0e
	V4TakeAll            V4Action = 0x0f
)

func (a V4Action) String() string {
	switch a {
	case V4SwapExactInSingle:
		return "SWAP_EXACT_IN_SINGLE"
	case V4SwapExactIn:
		return "SWAP_EXACT_IN"
	case V4SwapExactOutSingle:
		return "SWAP_EXACT_OUT_SINGLE"
	case V4SwapExactOut:
		return "SWAP_EXACT_OUT"
	case V4Settle:
		return "SETTLE"
	case V4SettleAll:
		return "SETTLE_ALL"
	case V4Take:
		return "TAKE"
	case V4TakeAll:
		return "TAKE_ALL"
	}
	return fmt.Sprintf("V4Action(0x%02x)", byte(a))
}

// SettleAction is the decoded parameter blob of a settle step: the action
// that pulls payment from whoever is designated payer. Amount zero means
// settle the open delta produced upstream.
type SettleAction struct {
	Currency      common.Address
	Amount        *big.Int
	PayerIsCaller bool
}

// Plan is a decoded v4 command input.
type Plan struct {
	Actions []V4Action
	Params  [][]byte
}

var (
	planArgs   abi.Arguments
	settleArgs abi.Arguments
)

func init() {
	bytesT, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	bytesArrayT, err := abi.NewType("bytes[]", "", nil)
	if err != nil {
		panic(err)
	}
	addressT, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uint256T, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	boolT, err := abi.NewType("bool", "", nil)
	if err != nil {
		panic(err)
	}

	planArgs = abi.Arguments{{Type: bytesT}, {Type: bytesArrayT}}
	settleArgs = abi.Arguments{{Type: addressT}, {Type: uint256T}, {Type: boolT}}
}

// DecodePlan unpacks a v4 command input into its action bytes and per-action
// params.
func DecodePlan(input []byte) (*Plan, error) {
	values, err := planArgs.Unpack(input)
	if err != nil {
		return nil, fmt.Errorf("%s: v4 plan: %w", LayoutMismatchError, err)
	}
	actionBytes, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("%s: v4 plan actions have type %T", LayoutMismatchError, values[0])
	}
	params, ok := values[1].([][]byte)
	if !ok {
		return nil, fmt.Errorf("%s: v4 plan params have type %T", LayoutMismatchError, values[1])
	}
	if len(actionBytes) != len(params) {
		return nil, fmt.Errorf("%s: v4 plan has %d actions but %d params", LayoutMismatchError, len(actionBytes), len(params))
	}

	actions := make([]V4Action, len(actionBytes))
	for i, b := range actionBytes {
		actions[i] = V4Action(b)
	}
	return &Plan{Actions: actions, Params: params}, nil
}

// Encode packs the plan back into a command input.
func (p *Plan) Encode() ([]byte, error) {
	actionBytes := make([]byte, len(p.Actions))
	for i, a := range p.Actions {
		actionBytes[i] = byte(a)
	}
	packed, err := planArgs.Pack(actionBytes, p.Params)
	if err != nil {
		return nil, fmt.Errorf("%s: v4 plan: %w", EncodeExecuteError, err)
	}
	return packed, nil
}

// DecodeSettle unpacks one settle action's params.
func DecodeSettle(params []byte) (*SettleAction, error) {
	values, err := settleArgs.Unpack(params)
	if err != nil {
		return nil, fmt.Errorf("%s: settle action: %w", LayoutMismatchError, err)
	}
	return &SettleAction{
		Currency:      values[0].(common.Address),
		Amount:        values[1].(*big.Int),
		PayerIsCaller: values[2].(bool),
	}, nil
}

func (s *SettleAction) encode() ([]byte, error) {
	return settleArgs.Pack(s.Currency, s.Amount, s.PayerIsCaller)
}

// RewriteV4 forces payer-is-caller false on every settle action in the plan
// and re-encodes it. Sibling actions (swaps, takes) keep their exact param
// bytes. The settle count is returned so the caller can warn when the plan
// pulls no payment at all.
func RewriteV4(input []byte) ([]byte, int, error) {
	plan, err := DecodePlan(input)
	if err != nil {
		return nil, 0, err
	}

	settles := 0
	for i, action := range plan.Actions {
		if action != V4Settle {
			continue
		}
		settle, err := DecodeSettle(plan.Params[i])
		if err != nil {
			return nil, 0, err
		}
		settle.PayerIsCaller = false
		encoded, err := settle.encode()
		if err != nil {
			return nil, 0, fmt.Errorf("%s: settle action: %w", EncodeExecuteError, err)
		}
		plan.Params[i] = encoded
		settles++
	}

	if settles == 0 {
		return input, 0, nil
	}

	encoded, err := plan.Encode()
	if err != nil {
		return nil, 0, err
	}
	return encoded, settles, nil
}
