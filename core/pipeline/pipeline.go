// Package pipeline drives one proxy-execution attempt end to end: rewrite
// the router calldata, simulate both phases, derive balance constraints,
// gate on live balances, fund the input token, and encode the final proxy
// call. Everything an attempt needs travels in explicit arguments; there is
// no ambient store, and the same inputs against the same chain state produce
// the same call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/checks"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/funding"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/proxy"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/router"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/simulation"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/metrics"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/eip1559"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/erc20"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/logger"
)

// Transaction is the already-built router call the host hands in.
type Transaction struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// Options tune one attempt. The zero value is a usable default: diffs mode,
// no slippage headroom, no permit path.
type Options struct {
	Mode            checks.Mode
	SlippagePercent decimal.Decimal

	// PermitOptIn enables gasless approvals via EIP-2612 signatures.
	PermitOptIn bool

	// CoSigning marks a multi-signature submission path; it disables the
	// permit strategy, since co-signed accounts cannot sign permits.
	CoSigning bool

	// AllowancePull makes the proxy grant the router an allowance instead
	// of transferring tokens itself.
	AllowancePull bool

	// AnnotateMetadata binds the displayed constraints to the executed ones
	// via the metadata-hash entry point.
	AnnotateMetadata bool

	// TokenBalanceSlots maps token contracts to the storage slot of their
	// balances mapping, for simulation-time balance overrides. Optional;
	// wrong slots degrade to a simulation without storage overrides.
	TokenBalanceSlots map[common.Address]uint64
}

// Result is everything one successful attempt produced.
type Result struct {
	AttemptID string
	Rewrite   *router.RewriteResult
	Original  *simulation.Result // nil when the tolerant phase failed
	Rewritten *simulation.Result
	CheckSet  *checks.CheckSet
	Funding   *funding.Decision
	Call      *proxy.Call
}

// Simulator is the two-phase surface the pipeline drives.
// *simulation.Simulator satisfies it.
type Simulator interface {
	SimulateOriginal(ctx context.Context, tx simulation.TransactionParams) (*simulation.Result, error)
	SimulateRewritten(ctx context.Context, tx simulation.TransactionParams, overrides simulation.Overrides) (*simulation.Result, error)
}

// TokenService is the token read surface. *erc20.Service satisfies it.
type TokenService interface {
	Metadata(ctx context.Context, token common.Address) (*erc20.Metadata, error)
	NativeMetadata() *erc20.Metadata
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// ChainReader reads native balances. *ethclient.Client satisfies it.
type ChainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Funder executes the input-token funding strategy.
// *funding.Orchestrator satisfies it.
type Funder interface {
	Fund(ctx context.Context, req funding.Request) (*funding.Decision, error)
}

// Pipeline wires the components for one proxy deployment. Construct once,
// run many attempts; each Run call is independent.
type Pipeline struct {
	proxy   common.Address
	sim     Simulator
	tokens  TokenService
	chain   ChainReader
	funder  Funder
	fees    eip1559.FeeReader
	encoder *proxy.Encoder
	logger  logger.Logger
	metrics *metrics.Metrics
}

func New(proxyAddr common.Address, sim Simulator, tokens TokenService, chain ChainReader, funder Funder, log logger.Logger) *Pipeline {
	return &Pipeline{
		proxy:   proxyAddr,
		sim:     sim,
		tokens:  tokens,
		chain:   chain,
		funder:  funder,
		encoder: proxy.NewEncoder(proxyAddr),
		logger:  logger.EnsureLogger(log),
	}
}

// WithFeeReader enables the pre/post-mode gas buffer, priced from live fees.
func (p *Pipeline) WithFeeReader(fees eip1559.FeeReader) *Pipeline {
	p.fees = fees
	return p
}

// WithMetrics attaches instrumentation. Nil stays a no-op.
func (p *Pipeline) WithMetrics(m *metrics.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// Run executes one attempt. The returned error classifies through Classify;
// ctx cancellation surfaces as context.Canceled from whichever step was
// pending, never dressed up as a failure.
func (p *Pipeline) Run(ctx context.Context, tx Transaction, user common.Address, opts Options) (result *Result, err error) {
	start := time.Now()
	attemptID := ulid.Make().String()
	log := p.logger.With("attempt", attemptID)

	defer func() {
		p.metrics.IncAttempt(Classify(err).String())
		p.metrics.ObserveAttemptDuration(time.Since(start))
	}()

	value := valueOrZero(tx.Value)

	rewrite, err := router.RewriteExecute(tx.Data, user, log)
	if err != nil {
		return nil, err
	}
	p.metrics.AddSkippedRewrites(len(rewrite.Skipped))

	original, err := p.sim.SimulateOriginal(ctx, simulation.TransactionParams{
		From: user, To: tx.To, Data: tx.Data, Value: value,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// Expected for permit-gated calldata; the hint just comes from the
		// calldata instead.
		log.Info("original-call simulation gave no hint", "err", err)
		original = nil
		err = nil
	}

	spent := p.spentHint(original, rewrite)

	probe, err := p.encodeProbe(tx, rewrite, value, spent, opts)
	if err != nil {
		return nil, err
	}

	overrides := simulation.GenerousBalanceOverride(user)
	if spent != nil {
		if slot, ok := opts.TokenBalanceSlots[spent.Token]; ok {
			headroom := new(big.Int).Lsh(spent.Amount, 1)
			overrides = overrides.WithTokenBalance(spent.Token, user, slot, headroom)
		}
	}

	rewritten, err := p.sim.SimulateRewritten(ctx, simulation.TransactionParams{
		From: user, To: probe.To, Data: probe.Data, Value: value,
	}, overrides)
	if err != nil {
		return nil, err
	}

	if err = simulation.EnrichBalances(ctx, p.balanceSource(), user, rewritten.Changes); err != nil {
		return nil, err
	}

	var maxFee *big.Int
	if p.fees != nil && opts.Mode == checks.ModePrePost {
		fee, _, feeErr := eip1559.SuggestFee(ctx, p.fees)
		if feeErr != nil {
			log.Warn("fee suggestion failed, pre/post floors get no gas buffer", "err", feeErr)
		} else {
			maxFee = fee
		}
	}

	cs, err := checks.Derive(
		checks.Call{Target: tx.To, Data: rewrite.Data, Value: value},
		rewritten.Changes,
		checks.DeriveParams{
			Mode:            opts.Mode,
			SlippagePercent: opts.SlippagePercent,
			User:            user,
			Router:          tx.To,
			GasUsed:         rewritten.GasUsed,
			MaxFeePerGas:    maxFee,
			NativeInput:     rewrite.NativeInput,
		},
	)
	if err != nil {
		return nil, err
	}

	if err = p.gateBalances(ctx, user, cs, value, rewrite.NativeInput); err != nil {
		return nil, err
	}

	decision := &funding.Decision{Strategy: funding.StrategyNone}
	if !rewrite.NativeInput && len(cs.Approvals) > 0 {
		decision, err = p.funder.Fund(ctx, funding.Request{
			Token:       cs.Approvals[0].Token,
			Owner:       user,
			Spender:     p.proxy,
			Required:    cs.Approvals[0].Amount,
			PermitOptIn: opts.PermitOptIn,
			CoSigning:   opts.CoSigning,
		})
		if err != nil {
			return nil, err
		}
		switch decision.Strategy {
		case funding.StrategyPermit:
			p.metrics.IncPermitSigned()
		case funding.StrategyApprove:
			p.metrics.IncApprovalSubmitted()
		}
	}

	params := proxy.EncodeParams{
		Target:           tx.To,
		Data:             rewrite.Data,
		Value:            value,
		AllowancePull:    opts.AllowancePull,
		AnnotateMetadata: opts.AnnotateMetadata,
	}
	if decision.Permit != nil {
		params.Permits = []checks.PermitSignature{*decision.Permit}
	}
	call, err := p.encoder.Encode(cs, params)
	if err != nil {
		return nil, err
	}

	log.Info("attempt ready",
		"variant", call.Variant.String(),
		"strategy", decision.Strategy.String(),
		"keep_in_router", rewrite.KeepInRouter,
		"native_input", rewrite.NativeInput,
		"skipped_rewrites", len(rewrite.Skipped))

	return &Result{
		AttemptID: attemptID,
		Rewrite:   rewrite,
		Original:  original,
		Rewritten: rewritten,
		CheckSet:  cs,
		Funding:   decision,
		Call:      call,
	}, nil
}

// spentHintInfo is the approximate input side: which token leaves the user
// and roughly how much.
type spentHintInfo struct {
	Token  common.Address
	Amount *big.Int
}

// spentHint prefers the tolerant simulation's negative diff, and falls back
// to decoding the first swap command's input side from the calldata.
func (p *Pipeline) spentHint(original *simulation.Result, rewrite *router.RewriteResult) *spentHintInfo {
	if original != nil {
		for i := range original.Changes {
			if original.Changes[i].Diff.Sign() < 0 {
				return &spentHintInfo{
					Token:  original.Changes[i].Token,
					Amount: new(big.Int).Abs(original.Changes[i].Diff),
				}
			}
		}
	}

	for i, c := range rewrite.Commands {
		op := c.Op()
		switch {
		case op.IsFlatSwap():
			params, err := router.DecodeSwap(op, rewrite.Inputs[i])
			if err != nil {
				continue
			}
			tokens := params.Tokens()
			if len(tokens) == 0 {
				continue
			}
			in, amount := tokens[0], params.Amount
			switch op {
			case router.OpV3SwapExactOut:
				// Exact-out packed paths run output to input.
				in, amount = tokens[len(tokens)-1], params.AmountBound
			case router.OpV2SwapExactOut:
				amount = params.AmountBound
			}
			if amount == nil || amount.Sign() <= 0 {
				continue
			}
			return &spentHintInfo{Token: in, Amount: amount}
		case op == router.OpV4Swap:
			plan, err := router.DecodePlan(rewrite.Inputs[i])
			if err != nil {
				continue
			}
			for j, a := range plan.Actions {
				if a != router.V4Settle {
					continue
				}
				settle, err := router.DecodeSettle(plan.Params[j])
				if err != nil || settle.Amount == nil || settle.Amount.Sign() <= 0 {
					continue
				}
				return &spentHintInfo{Token: settle.Currency, Amount: settle.Amount}
			}
		}
	}
	return nil
}

// encodeProbe builds the proxy call the authoritative phase simulates: the
// rewritten calldata behind the real entry point, with the hinted input
// funding encoded so the router finds its tokens, and no constraints yet.
func (p *Pipeline) encodeProbe(tx Transaction, rewrite *router.RewriteResult, value *big.Int, spent *spentHintInfo, opts Options) (*proxy.Call, error) {
	probeSet := checks.NewCheckSet(opts.Mode, tx.To, rewrite.Data, value)
	if spent != nil && !rewrite.NativeInput && !erc20.IsNative(spent.Token) {
		probeSet.Approvals = append(probeSet.Approvals, checks.Approval{
			BalanceConstraint: checks.BalanceConstraint{
				Target: tx.To,
				Token:  spent.Token,
				Amount: spent.Amount,
			},
			DirectTransfer: true,
		})
	}
	return p.encoder.Encode(probeSet, proxy.EncodeParams{
		Target:        tx.To,
		Data:          rewrite.Data,
		Value:         value,
		AllowancePull: opts.AllowancePull,
	})
}

// gateBalances fails before any signing prompt when the user cannot cover
// the simulated requirement. Not retried: a short balance does not fix
// itself.
func (p *Pipeline) gateBalances(ctx context.Context, user common.Address, cs *checks.CheckSet, value *big.Int, nativeInput bool) error {
	for _, approval := range cs.Approvals {
		balance, err := p.tokens.BalanceOf(ctx, approval.Token, user)
		if err != nil {
			return fmt.Errorf("read balance for funding gate: %w", err)
		}
		if balance.Cmp(approval.Amount) < 0 {
			symbol := approval.Token.Hex()
			if meta, metaErr := p.tokens.Metadata(ctx, approval.Token); metaErr == nil {
				symbol = meta.Symbol
			}
			return &checks.InsufficientBalanceError{
				Symbol:    symbol,
				Required:  approval.Amount,
				Available: balance,
			}
		}
	}

	if nativeInput || value.Sign() > 0 {
		balance, err := p.chain.BalanceAt(ctx, user, nil)
		if err != nil {
			return fmt.Errorf("read native balance for funding gate: %w", err)
		}
		if balance.Cmp(value) < 0 {
			return &checks.InsufficientBalanceError{
				Symbol:    p.tokens.NativeMetadata().Symbol,
				Required:  value,
				Available: balance,
			}
		}
	}
	return nil
}

// balanceSource adapts the token service and chain reader onto the
// enrichment interface.
func (p *Pipeline) balanceSource() simulation.BalanceSource {
	return &balanceSource{tokens: p.tokens, chain: p.chain}
}

type balanceSource struct {
	tokens TokenService
	chain  ChainReader
}

func (b *balanceSource) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return b.tokens.BalanceOf(ctx, token, holder)
}

func (b *balanceSource) NativeBalance(ctx context.Context, holder common.Address) (*big.Int, error) {
	return b.chain.BalanceAt(ctx, holder, nil)
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
