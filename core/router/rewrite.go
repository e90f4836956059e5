package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/logger"
)

// SkippedCommand records a command left untouched because its input did not
// match the expected binary layout, or a v4 plan with no settle action. The
// transaction still proceeds; hosts decide whether to accept the risk.
type SkippedCommand struct {
	Index   int
	Command Command
	Err     error
}

// RewriteResult is the reassembled call plus everything the rest of the
// pipeline needs to know about what the rewrite saw and decided.
type RewriteResult struct {
	Data           []byte
	Commands       []Command
	Inputs         [][]byte
	Deadline       *big.Int
	KeepInRouter   bool
	NativeInput    bool
	PermitsRemoved int
	Skipped        []SkippedCommand
}

// StripPermitBatch removes every signature-batch-permit command together with
// its paired input. Pre-funding through the proxy makes the permit redundant:
// the router never pulls from the user.
func StripPermitBatch(commands []Command, inputs [][]byte) ([]Command, [][]byte, int) {
	outCommands := make([]Command, 0, len(commands))
	outInputs := make([][]byte, 0, len(inputs))
	removed := 0
	for i, c := range commands {
		if c.Op() == OpPermitBatch {
			removed++
			continue
		}
		outCommands = append(outCommands, c)
		outInputs = append(outInputs, inputs[i])
	}
	return outCommands, outInputs, removed
}

// RewriteExecute transforms router execute() calldata for execution through
// the balance proxy:
//
//  1. batch permits are stripped,
//  2. swap outputs are routed to the router when later commands still act on
//     them (unwrap, sweep, pay-portion present), to the user otherwise,
//  3. every swap's payer-is-caller flag is forced false, since the proxy
//     positions the input funds at the router up front.
//
// Commands whose inputs fail layout checks are kept unmodified and reported
// in Skipped.
func RewriteExecute(data []byte, user common.Address, log logger.Logger) (*RewriteResult, error) {
	log = logger.EnsureLogger(log)

	call, err := DecodeExecute(data)
	if err != nil {
		return nil, err
	}
	if len(call.Commands) != len(call.Inputs) {
		return nil, fmt.Errorf("%w: %d commands, %d inputs", ErrInputCountMismatch, len(call.Commands), len(call.Inputs))
	}

	commands, inputs, removed := StripPermitBatch(call.Commands, call.Inputs)
	if removed > 0 {
		log.Debug("stripped batch permit commands", "count", removed)
	}

	keepInRouter := lo.SomeBy(commands, func(c Command) bool {
		switch c.Op() {
		case OpUnwrapNative, OpSweep, OpPayPortion:
			return true
		}
		return false
	})
	hasWrap := lo.SomeBy(commands, func(c Command) bool {
		return c.Op() == OpWrapNative
	})
	// Wrap with no downstream unwrap/sweep/pay-portion means the input side
	// is native: the proxy funds it with call value and token approvals are
	// suppressed.
	nativeInput := hasWrap && !keepInRouter

	recipient := user
	if keepInRouter {
		recipient = RouterSentinel
	}

	result := &RewriteResult{
		Commands:       commands,
		Inputs:         make([][]byte, len(inputs)),
		Deadline:       call.Deadline,
		KeepInRouter:   keepInRouter,
		NativeInput:    nativeInput,
		PermitsRemoved: removed,
	}
	copy(result.Inputs, inputs)

	for i, c := range commands {
		op := c.Op()
		switch {
		case op.IsFlatSwap():
			rewritten, err := RewriteSwap(op, inputs[i], recipient)
			if err != nil {
				log.Warn("swap input did not match its layout, leaving command untouched",
					"index", i, "command", c.String(), "err", err)
				result.Skipped = append(result.Skipped, SkippedCommand{Index: i, Command: c, Err: err})
				continue
			}
			result.Inputs[i] = rewritten
		case op == OpV4Swap:
			rewritten, settles, err := RewriteV4(inputs[i])
			if err != nil {
				log.Warn("v4 plan did not match its layout, leaving command untouched",
					"index", i, "command", c.String(), "err", err)
				result.Skipped = append(result.Skipped, SkippedCommand{Index: i, Command: c, Err: err})
				continue
			}
			if settles == 0 {
				log.Warn("v4 plan pulls no payment from the payer, nothing to rewrite",
					"index", i, "command", c.String())
				result.Skipped = append(result.Skipped, SkippedCommand{Index: i, Command: c, Err: ErrNoSettleAction})
				continue
			}
			result.Inputs[i] = rewritten
		}
	}

	encoded, err := (&ExecuteCall{
		Commands: result.Commands,
		Inputs:   result.Inputs,
		Deadline: result.Deadline,
	}).Encode()
	if err != nil {
		return nil, err
	}
	result.Data = encoded

	log.Debug("rewrote router calldata",
		"commands", len(result.Commands),
		"permits_removed", removed,
		"keep_in_router", keepInRouter,
		"native_input", nativeInput,
		"skipped", len(result.Skipped))
	return result, nil
}
