package pipeline

import (
	"context"
	"errors"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/checks"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/funding"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/proxy"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/simulation"
)

// Outcome classifies how an attempt ended, so hosts can render each class
// differently. Aborted in particular must never be shown as an error: the
// user closed the dialog themselves.
type Outcome uint8

const (
	OutcomeOK Outcome = iota
	OutcomeAborted
	OutcomeRejected
	OutcomeInsufficientBalance
	OutcomeSimulationFailed
	OutcomeProxyReverted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeAborted:
		return "aborted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeInsufficientBalance:
		return "insufficient_balance"
	case OutcomeSimulationFailed:
		return "simulation_failed"
	case OutcomeProxyReverted:
		return "proxy_reverted"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Classify maps an attempt error onto the outcome taxonomy. Order matters:
// cancellation is checked first so a cancelled retry loop never counts as a
// simulation failure.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return OutcomeAborted
	case funding.IsRejection(err):
		return OutcomeRejected
	}

	var insufficient *checks.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		return OutcomeInsufficientBalance
	}
	if errors.Is(err, simulation.ErrNoAuthoritativeResult) {
		return OutcomeSimulationFailed
	}

	var revert *proxy.RevertError
	if errors.As(err, &revert) || errors.Is(err, proxy.ErrUnknownRevert) {
		return OutcomeProxyReverted
	}
	return OutcomeFailed
}
