// Package funding decides how the proxy gets spend authority over the input
// token and executes the chosen path: nothing when the current allowance
// already covers the requirement, an off-chain permit signature when the
// token supports one and the caller opted in, or a conventional on-chain
// approval otherwise. Native input never reaches this package; it is funded
// through call value.
package funding

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/checks"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/erc20"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/logger"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/retry"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/signer"
)

// Strategy is the terminal funding decision for one token.
type Strategy uint8

const (
	// StrategyNone: the existing allowance covers the requirement, or the
	// input is native. Zero signing or transaction steps.
	StrategyNone Strategy = iota
	// StrategyPermit: an off-chain EIP-2612 signature authorizes the spend.
	StrategyPermit
	// StrategyApprove: an on-chain approval transaction was submitted and
	// confirmed.
	StrategyApprove
)

func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyPermit:
		return "permit"
	case StrategyApprove:
		return "approve"
	}
	return "unknown"
}

// Request describes one token that must be spendable by Spender.
type Request struct {
	Token    common.Address
	Owner    common.Address
	Spender  common.Address
	Required *big.Int

	// PermitOptIn enables the signature path. Off by default: not every
	// host wants gasless approvals.
	PermitOptIn bool

	// CoSigning marks a multi-signature submission. Co-signed accounts are
	// contracts and cannot produce an EIP-2612 signature, so the permit
	// path is disabled.
	CoSigning bool
}

// Decision is the executed outcome of one Fund call.
type Decision struct {
	Strategy   Strategy
	Permit     *checks.PermitSignature
	ApprovalTx common.Hash
}

// TokenReader is the erc20 surface the orchestrator reads through.
// *erc20.Service satisfies it.
type TokenReader interface {
	Metadata(ctx context.Context, token common.Address) (*erc20.Metadata, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Nonces(ctx context.Context, token, owner common.Address) (*big.Int, error)
	SupportsPermit(ctx context.Context, token common.Address) (bool, error)
}

// ReceiptReader waits for transaction receipts. *ethclient.Client satisfies
// it.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// DefaultReceiptPolicy bounds the approval confirmation wait: a couple of
// minutes of fixed-interval polling, not forever.
var DefaultReceiptPolicy = retry.Policy{MaxAttempts: 60, Delay: 2 * time.Second}

// DefaultPermitTTL is how long a signed permit stays valid.
const DefaultPermitTTL = 30 * time.Minute

// Orchestrator runs the strategy machine. One instance serves one user
// interaction: the permit cache lives exactly that long, so retries within
// the interaction reuse signatures instead of re-prompting.
type Orchestrator struct {
	tokens   TokenReader
	signer   signer.Signer
	receipts ReceiptReader
	policy   retry.Policy
	ttl      time.Duration
	logger   logger.Logger

	permits map[common.Address]*checks.PermitSignature
}

func NewOrchestrator(tokens TokenReader, sig signer.Signer, receipts ReceiptReader, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		tokens:   tokens,
		signer:   sig,
		receipts: receipts,
		policy:   DefaultReceiptPolicy,
		ttl:      DefaultPermitTTL,
		logger:   logger.EnsureLogger(log),
		permits:  make(map[common.Address]*checks.PermitSignature),
	}
}

// WithReceiptPolicy replaces the confirmation-wait cadence.
func (o *Orchestrator) WithReceiptPolicy(policy retry.Policy) *Orchestrator {
	o.policy = policy
	return o
}

// WithPermitTTL replaces the permit deadline horizon.
func (o *Orchestrator) WithPermitTTL(ttl time.Duration) *Orchestrator {
	o.ttl = ttl
	return o
}

// Fund makes Spender able to move Required of Token and reports how. Steps
// run sequentially; each signing prompt must be acknowledged before the next
// can appear.
func (o *Orchestrator) Fund(ctx context.Context, req Request) (*Decision, error) {
	if erc20.IsNative(req.Token) {
		// Funded through call value; nothing to authorize.
		return &Decision{Strategy: StrategyNone}, nil
	}

	allowance, err := o.tokens.Allowance(ctx, req.Token, req.Owner, req.Spender)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FundInputTokenError, err)
	}
	if allowance.Cmp(req.Required) >= 0 {
		o.logger.Debug("existing allowance is sufficient",
			"token", req.Token.Hex(), "allowance", allowance, "required", req.Required)
		return &Decision{Strategy: StrategyNone}, nil
	}

	if o.permitEligible(ctx, req) {
		permit, err := o.obtainPermit(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Decision{Strategy: StrategyPermit, Permit: permit}, nil
	}

	hash, err := o.approve(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Decision{Strategy: StrategyApprove, ApprovalTx: hash}, nil
}

// permitEligible requires all three: caller opt-in, no co-signing, and a
// token that answers the domain-separator probe.
func (o *Orchestrator) permitEligible(ctx context.Context, req Request) bool {
	if !req.PermitOptIn || req.CoSigning {
		return false
	}
	supports, err := o.tokens.SupportsPermit(ctx, req.Token)
	if err != nil {
		o.logger.Warn("permit support probe failed, falling back to approval",
			"token", req.Token.Hex(), "err", err)
		return false
	}
	return supports
}

// approve submits approve(spender, amount) and waits for its receipt. The
// amount is capped to the owner's live balance: approving more than the user
// holds just burns gas on a doomed pull.
func (o *Orchestrator) approve(ctx context.Context, req Request) (common.Hash, error) {
	amount := new(big.Int).Set(req.Required)
	balance, err := o.tokens.BalanceOf(ctx, req.Token, req.Owner)
	if err == nil && balance.Cmp(amount) < 0 {
		o.logger.Warn("balance below required amount, capping approval",
			"token", req.Token.Hex(), "required", req.Required, "balance", balance)
		amount = balance
	}

	data, err := erc20.ApproveCalldata(req.Spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: %w", SubmitApprovalError, err)
	}

	hash, err := o.signer.SendTransaction(ctx, req.Token, nil, data)
	if err != nil {
		if IsRejection(err) {
			return common.Hash{}, fmt.Errorf("%s: %w", SubmitApprovalError, ErrPromptRejected)
		}
		return common.Hash{}, fmt.Errorf("%s: %w", SubmitApprovalError, err)
	}
	o.logger.Info("approval submitted, waiting for confirmation",
		"token", req.Token.Hex(), "tx", hash.Hex(), "amount", amount)

	if err := o.waitMined(ctx, hash); err != nil {
		return hash, err
	}
	return hash, nil
}

// waitMined polls for the receipt under the bounded policy. A mined-but-
// reverted approval stops immediately: resubmitting the same call would
// revert again.
func (o *Orchestrator) waitMined(ctx context.Context, hash common.Hash) error {
	err := o.policy.Do(ctx, func(ctx context.Context) error {
		receipt, err := o.receipts.TransactionReceipt(ctx, hash)
		if err != nil {
			return err
		}
		if receipt.Status != gethtypes.ReceiptStatusSuccessful {
			return retry.Stop(ErrApprovalReverted)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", ConfirmApprovalError, err)
	}
	return nil
}
