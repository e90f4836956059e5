package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/logger"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/retry"
)

// Backend is the call surface the two-phase driver needs. *Client satisfies
// it; tests substitute fakes.
type Backend interface {
	SimulateTransaction(ctx context.Context, tx TransactionParams, overrides Overrides) (*Result, error)
}

// DefaultPolicy matches the cadence the host UI expects: many quick
// attempts, fixed spacing, no exponential growth.
var DefaultPolicy = retry.Policy{MaxAttempts: 100, Delay: 500 * time.Millisecond}

// Simulator runs the two-phase dry run for one attempt.
type Simulator struct {
	backend Backend
	policy  retry.Policy
	logger  logger.Logger
}

func NewSimulator(backend Backend, log logger.Logger) *Simulator {
	return &Simulator{
		backend: backend,
		policy:  DefaultPolicy,
		logger:  logger.EnsureLogger(log),
	}
}

// WithPolicy replaces the retry cadence for both phases.
func (s *Simulator) WithPolicy(policy retry.Policy) *Simulator {
	s.policy = policy
	return s
}

// TwoPhaseResult carries both phases' outcomes. Original is nil when that
// phase never succeeded; Rewritten is always set on success.
type TwoPhaseResult struct {
	Original  *Result
	Rewritten *Result
}

// Run simulates the untouched call first, then the rewritten call as it will
// actually execute.
//
// The first phase frequently fails: a signature-gated permit step inside the
// original calldata cannot be satisfied by a dry run. Its result is only a
// hint (an approximate input token and amount), so failure is logged and
// swallowed. The second phase is authoritative; if it fails after retries
// there is no safe way to derive balance constraints and the attempt aborts.
func (s *Simulator) Run(ctx context.Context, original, rewritten TransactionParams, overrides Overrides) (*TwoPhaseResult, error) {
	out := &TwoPhaseResult{}

	originalResult, err := s.SimulateOriginal(ctx, original)
	switch {
	case err == nil:
		out.Original = originalResult
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		s.logger.Info("original-call simulation failed, continuing without its hint", "err", err)
	}

	rewrittenResult, err := s.SimulateRewritten(ctx, rewritten, overrides)
	if err != nil {
		return nil, err
	}
	out.Rewritten = rewrittenResult

	s.logger.Debug("two-phase simulation complete",
		"original_ok", out.Original != nil,
		"gas_used", out.Rewritten.GasUsed,
		"changes", len(out.Rewritten.Changes))
	return out, nil
}

// SimulateOriginal runs the tolerant first phase on its own. Callers that
// need to look at the hint before shaping the rewritten call (the pipeline
// builds the probe proxy call from it) drive the phases separately; Run wires
// them together for everyone else.
func (s *Simulator) SimulateOriginal(ctx context.Context, tx TransactionParams) (*Result, error) {
	return s.simulateWithRetry(ctx, tx, nil)
}

// SimulateRewritten runs the authoritative second phase. Failure after
// retries means no safe balance constraints exist for this transaction.
func (s *Simulator) SimulateRewritten(ctx context.Context, tx TransactionParams, overrides Overrides) (*Result, error) {
	result, err := s.simulateWithRetry(ctx, tx, overrides)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNoAuthoritativeResult, err)
	}
	return result, nil
}

// simulateWithRetry treats both transport errors and a reverted run as
// retryable.
func (s *Simulator) simulateWithRetry(ctx context.Context, tx TransactionParams, overrides Overrides) (*Result, error) {
	var result *Result
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		r, simErr := s.backend.SimulateTransaction(ctx, tx, overrides)
		if simErr != nil {
			return simErr
		}
		if !r.Status {
			return ErrNotSuccessful
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BalanceSource reads live balances; EnrichBalances uses it to anchor
// simulated diffs to absolute pre/post values.
type BalanceSource interface {
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, holder common.Address) (*big.Int, error)
}

// EnrichBalances fills Pre and Post on every change from live reads: Pre is
// the holder's current balance, Post is Pre plus the simulated diff. Must
// run before the transaction is submitted, while "current" still means
// "pre-call".
func EnrichBalances(ctx context.Context, src BalanceSource, holder common.Address, changes []AssetChange) error {
	for i := range changes {
		var (
			pre *big.Int
			err error
		)
		if changes[i].Native() {
			pre, err = src.NativeBalance(ctx, holder)
		} else {
			pre, err = src.TokenBalance(ctx, changes[i].Token, holder)
		}
		if err != nil {
			return fmt.Errorf("read balance of %s: %w", changes[i].Symbol, err)
		}
		changes[i].Pre = pre
		changes[i].Post = new(big.Int).Add(pre, changes[i].Diff)
	}
	return nil
}
