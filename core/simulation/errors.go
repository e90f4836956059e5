package simulation

import "errors"

const (
	SimulateCallError      = "simulation call failed"
	ParseSimulationError   = "failed to parse simulation response"
	MissingGatewayURLError = "no simulation gateway configured"
)

var (
	// ErrNotSuccessful means the dry run executed and reverted. Retryable:
	// transient state (nonces, balances mid-block) clears up.
	ErrNotSuccessful = errors.New("simulated call was not successful")

	// ErrNoAuthoritativeResult means the rewritten-call phase failed even
	// after retries, so no safe balance constraints can be derived.
	ErrNoAuthoritativeResult = errors.New("cannot determine safe balance constraints: rewritten-call simulation failed")
)
