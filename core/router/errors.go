package router

import "errors"

const (
	DecodeExecuteError  = "cannot decode router execute calldata"
	EncodeExecuteError  = "cannot re-encode router execute calldata"
	LayoutMismatchError = "command input does not match the expected layout"
)

var (
	// ErrInputCountMismatch means the command list and input array disagree in
	// length; the calldata is malformed beyond repair.
	ErrInputCountMismatch = errors.New("command and input counts differ")

	// ErrNotSwapCommand is returned when a rewrite is requested for an
	// operation that carries no swap parameters.
	ErrNotSwapCommand = errors.New("operation carries no swap parameters")

	// ErrNoSettleAction means a v4 plan contains no action that pulls payment
	// from the payer; the rewrite is a no-op and the caller must surface the
	// risk to the user.
	ErrNoSettleAction = errors.New("v4 plan has no settle action")
)
