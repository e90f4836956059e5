package router

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/byte4"
)

// The router exposes execute in two overloads; the deadline variant is what
// swap front-ends emit. Overloads are resolved by selector, never by name.
const routerABIJSON = `[
	{"inputs":[{"internalType":"bytes","name":"commands","type":"bytes"},{"internalType":"bytes[]","name":"inputs","type":"bytes[]"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"execute","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"internalType":"bytes","name":"commands","type":"bytes"},{"internalType":"bytes[]","name":"inputs","type":"bytes[]"}],"name":"execute","outputs":[],"stateMutability":"payable","type":"function"}
]`

var (
	routerABI         abi.ABI
	executeDeadline   abi.Method
	executeNoDeadline abi.Method
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid router ABI: %v", err))
	}
	routerABI = parsed

	for name := range routerABI.Methods {
		method := routerABI.Methods[name]
		if method.RawName != "execute" {
			continue
		}
		switch len(method.Inputs) {
		case 3:
			executeDeadline = method
		case 2:
			executeNoDeadline = method
		}
	}
	if executeDeadline.RawName == "" || executeNoDeadline.RawName == "" {
		panic("router ABI is missing an execute overload")
	}
}

// DecodeCommands parses a 0x-prefixed hex command string into commands, one
// byte each. Unknown command bytes pass through; no legality check happens
// here.
func DecodeCommands(hexCommands string) ([]Command, error) {
	raw, err := hexutil.Decode(hexCommands)
	if err != nil {
		return nil, fmt.Errorf("decode commands %q: %w", hexCommands, err)
	}
	return CommandsFromBytes(raw), nil
}

// EncodeCommands is the inverse of DecodeCommands: two lowercase hex digits
// per command, 0x-prefixed.
func EncodeCommands(commands []Command) string {
	return hexutil.Encode(CommandsToBytes(commands))
}

// CommandsFromBytes wraps raw command bytes.
func CommandsFromBytes(raw []byte) []Command {
	commands := make([]Command, len(raw))
	for i, b := range raw {
		commands[i] = Command(b)
	}
	return commands
}

// CommandsToBytes unwraps commands to raw bytes.
func CommandsToBytes(commands []Command) []byte {
	raw := make([]byte, len(commands))
	for i, c := range commands {
		raw[i] = byte(c)
	}
	return raw
}

// ExecuteCall is a decoded router execute() invocation. Deadline is nil when
// the two-argument overload was used.
type ExecuteCall struct {
	Commands []Command
	Inputs   [][]byte
	Deadline *big.Int
}

// DecodeExecute splits router calldata into its command list, input array,
// and optional deadline.
func DecodeExecute(data []byte) (*ExecuteCall, error) {
	method, err := byte4.GetMethodFromCalldata(routerABI, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", DecodeExecuteError, err)
	}

	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", DecodeExecuteError, err)
	}

	commandBytes, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("%s: commands argument has type %T", DecodeExecuteError, values[0])
	}
	inputs, ok := values[1].([][]byte)
	if !ok {
		return nil, fmt.Errorf("%s: inputs argument has type %T", DecodeExecuteError, values[1])
	}

	call := &ExecuteCall{
		Commands: CommandsFromBytes(commandBytes),
		Inputs:   inputs,
	}
	if len(values) == 3 {
		deadline, ok := values[2].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%s: deadline argument has type %T", DecodeExecuteError, values[2])
		}
		call.Deadline = deadline
	}
	return call, nil
}

// Encode reassembles the call, choosing the overload by deadline presence.
func (c *ExecuteCall) Encode() ([]byte, error) {
	if len(c.Commands) != len(c.Inputs) {
		return nil, ErrInputCountMismatch
	}

	method := executeNoDeadline
	args := []interface{}{CommandsToBytes(c.Commands), c.Inputs}
	if c.Deadline != nil {
		method = executeDeadline
		args = append(args, c.Deadline)
	}

	packed, err := method.Inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EncodeExecuteError, err)
	}
	return append(append([]byte{}, method.ID...), packed...), nil
}
