package pipeline

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/checks"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/funding"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/proxy"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/router"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/simulation"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/testutil"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/erc20"
)

type fakeSim struct {
	originalResult  *simulation.Result
	originalErr     error
	rewrittenResult *simulation.Result
	rewrittenErr    error

	rewrittenTx        simulation.TransactionParams
	rewrittenOverrides simulation.Overrides
}

func (f *fakeSim) SimulateOriginal(ctx context.Context, tx simulation.TransactionParams) (*simulation.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.originalResult, f.originalErr
}

func (f *fakeSim) SimulateRewritten(ctx context.Context, tx simulation.TransactionParams, overrides simulation.Overrides) (*simulation.Result, error) {
	f.rewrittenTx = tx
	f.rewrittenOverrides = overrides
	return f.rewrittenResult, f.rewrittenErr
}

type fakeTokens struct {
	balances map[common.Address]*big.Int
}

func (f *fakeTokens) Metadata(ctx context.Context, token common.Address) (*erc20.Metadata, error) {
	return &erc20.Metadata{Address: token, Symbol: "USDC", Decimals: 6}, nil
}

func (f *fakeTokens) NativeMetadata() *erc20.Metadata {
	return &erc20.Metadata{Symbol: "ETH", Name: "ETH", Decimals: 18}
}

func (f *fakeTokens) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if b, ok := f.balances[token]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

type fakeChain struct {
	native *big.Int
}

func (f *fakeChain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return new(big.Int).Set(f.native), nil
}

type fakeFunder struct {
	decision *funding.Decision
	err      error
	requests []funding.Request
}

func (f *fakeFunder) Fund(ctx context.Context, req funding.Request) (*funding.Decision, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.decision, nil
}

func swapCalldata(t *testing.T) []byte {
	t.Helper()
	path := testutil.V3Path([]common.Address{testutil.TestTokenUSDC, testutil.TestTokenWETH}, []uint32{3000})
	input := testutil.V3SwapInput(testutil.TestUserAddress, big.NewInt(1_000_000), big.NewInt(1), path, true)
	return testutil.ExecuteCalldata([]byte{0x00}, [][]byte{input}, big.NewInt(1_900_000_000))
}

func swapChanges() []simulation.AssetChange {
	return []simulation.AssetChange{
		{Token: testutil.TestTokenUSDC, Symbol: "USDC", Decimals: 6, Diff: big.NewInt(-1_000_000)},
		{Token: testutil.TestTokenWETH, Symbol: "WETH", Decimals: 18, Diff: big.NewInt(1e15)},
	}
}

func newTestPipeline(sim *fakeSim, tokens *fakeTokens, chain *fakeChain, funder *fakeFunder) *Pipeline {
	return New(testutil.TestProxyAddress, sim, tokens, chain, funder, testutil.GetLogger())
}

func defaultOptions() Options {
	return Options{Mode: checks.ModeDiffs, SlippagePercent: decimal.NewFromInt(1)}
}

func TestRunHappyPath(t *testing.T) {
	sim := &fakeSim{
		originalErr:     errors.New("permit step cannot be satisfied"),
		rewrittenResult: &simulation.Result{Status: true, GasUsed: 210_000, Changes: swapChanges()},
	}
	tokens := &fakeTokens{balances: map[common.Address]*big.Int{testutil.TestTokenUSDC: big.NewInt(10_000_000)}}
	funder := &fakeFunder{decision: &funding.Decision{Strategy: funding.StrategyNone}}
	p := newTestPipeline(sim, tokens, &fakeChain{native: big.NewInt(1e18)}, funder)

	tx := Transaction{To: testutil.TestRouterAddress, Data: swapCalldata(t)}
	result, err := p.Run(context.Background(), tx, testutil.TestUserAddress, defaultOptions())
	require.NoError(t, err)

	assert.NotEmpty(t, result.AttemptID)
	assert.Nil(t, result.Original)

	// The single swap with no downstream commands routes output straight to
	// the user, payer flag forced off.
	require.Len(t, result.Rewrite.Commands, 1)
	params, err := router.DecodeSwap(router.OpV3SwapExactIn, result.Rewrite.Inputs[0])
	require.NoError(t, err)
	assert.Equal(t, testutil.TestUserAddress, params.Recipient)
	assert.False(t, params.PayerIsCaller)
	assert.False(t, result.Rewrite.KeepInRouter)
	assert.False(t, result.Rewrite.NativeInput)

	// Phase 2 ran through the proxy with the rewritten calldata.
	assert.Equal(t, testutil.TestProxyAddress, sim.rewrittenTx.To)
	assert.NotEqual(t, tx.Data, sim.rewrittenTx.Data)

	require.NotNil(t, result.CheckSet)
	assert.True(t, result.CheckSet.Binds(testutil.TestRouterAddress, result.Rewrite.Data, big.NewInt(0)))
	require.Len(t, result.CheckSet.Approvals, 1)
	assert.Equal(t, big.NewInt(1_001_000), result.CheckSet.Approvals[0].Amount)

	// Funding consulted once, for the spent token against the proxy.
	require.Len(t, funder.requests, 1)
	assert.Equal(t, testutil.TestTokenUSDC, funder.requests[0].Token)
	assert.Equal(t, testutil.TestProxyAddress, funder.requests[0].Spender)

	require.NotNil(t, result.Call)
	assert.Equal(t, testutil.TestProxyAddress, result.Call.To)
	assert.Equal(t, proxy.VariantDiffs, result.Call.Variant)
}

func TestRunUsesCalldataHintWhenOriginalFails(t *testing.T) {
	sim := &fakeSim{
		originalErr:     errors.New("always fails"),
		rewrittenResult: &simulation.Result{Status: true, GasUsed: 100_000, Changes: swapChanges()},
	}
	tokens := &fakeTokens{balances: map[common.Address]*big.Int{testutil.TestTokenUSDC: big.NewInt(10_000_000)}}
	p := newTestPipeline(sim, tokens, &fakeChain{native: big.NewInt(1e18)}, &fakeFunder{decision: &funding.Decision{Strategy: funding.StrategyNone}})
	opts := defaultOptions()
	opts.TokenBalanceSlots = map[common.Address]uint64{testutil.TestTokenUSDC: 9}

	tx := Transaction{To: testutil.TestRouterAddress, Data: swapCalldata(t)}
	_, err := p.Run(context.Background(), tx, testutil.TestUserAddress, opts)
	require.NoError(t, err)

	// The calldata hint (1_000_000 USDC in) drove a storage override with
	// 2x headroom next to the generous native balance.
	override, ok := sim.rewrittenOverrides[testutil.TestTokenUSDC]
	require.True(t, ok)
	require.Len(t, override.Storage, 1)
	for _, v := range override.Storage {
		assert.Equal(t, common.BigToHash(big.NewInt(2_000_000)), v)
	}
}

func TestRunInsufficientBalance(t *testing.T) {
	sim := &fakeSim{
		originalErr:     errors.New("no hint"),
		rewrittenResult: &simulation.Result{Status: true, GasUsed: 100_000, Changes: swapChanges()},
	}
	// User holds less than the 1_001_000 the approval requires.
	tokens := &fakeTokens{balances: map[common.Address]*big.Int{testutil.TestTokenUSDC: big.NewInt(500_000)}}
	p := newTestPipeline(sim, tokens, &fakeChain{native: big.NewInt(1e18)}, &fakeFunder{})

	tx := Transaction{To: testutil.TestRouterAddress, Data: swapCalldata(t)}
	_, err := p.Run(context.Background(), tx, testutil.TestUserAddress, defaultOptions())
	require.Error(t, err)

	var insufficient *checks.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "USDC", insufficient.Symbol)
	assert.Equal(t, big.NewInt(1_001_000), insufficient.Required)
	assert.Equal(t, big.NewInt(500_000), insufficient.Available)
	assert.Equal(t, big.NewInt(501_000), insufficient.Shortfall())
	assert.Equal(t, OutcomeInsufficientBalance, Classify(err))
}

func TestRunAuthoritativeFailureAborts(t *testing.T) {
	sim := &fakeSim{
		originalErr:  errors.New("no hint"),
		rewrittenErr: simulation.ErrNoAuthoritativeResult,
	}
	p := newTestPipeline(sim, &fakeTokens{}, &fakeChain{native: big.NewInt(0)}, &fakeFunder{})

	tx := Transaction{To: testutil.TestRouterAddress, Data: swapCalldata(t)}
	_, err := p.Run(context.Background(), tx, testutil.TestUserAddress, defaultOptions())
	require.Error(t, err)
	assert.Equal(t, OutcomeSimulationFailed, Classify(err))
}

func TestRunCancellationShortCircuits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim := &fakeSim{rewrittenResult: &simulation.Result{Status: true, Changes: swapChanges()}}
	p := newTestPipeline(sim, &fakeTokens{}, &fakeChain{native: big.NewInt(0)}, &fakeFunder{})

	tx := Transaction{To: testutil.TestRouterAddress, Data: swapCalldata(t)}
	_, err := p.Run(ctx, tx, testutil.TestUserAddress, defaultOptions())
	require.Error(t, err)
	assert.Equal(t, OutcomeAborted, Classify(err))
}

func TestRunPermitDecisionSelectsPermitVariant(t *testing.T) {
	permit := &checks.PermitSignature{
		Token:    testutil.TestTokenUSDC,
		Amount:   big.NewInt(1_001_000),
		Deadline: big.NewInt(2_000_000_000),
		V:        27,
	}
	sim := &fakeSim{
		originalErr:     errors.New("no hint"),
		rewrittenResult: &simulation.Result{Status: true, GasUsed: 150_000, Changes: swapChanges()},
	}
	tokens := &fakeTokens{balances: map[common.Address]*big.Int{testutil.TestTokenUSDC: big.NewInt(10_000_000)}}
	funder := &fakeFunder{decision: &funding.Decision{Strategy: funding.StrategyPermit, Permit: permit}}
	p := newTestPipeline(sim, tokens, &fakeChain{native: big.NewInt(1e18)}, funder)

	opts := defaultOptions()
	opts.PermitOptIn = true
	tx := Transaction{To: testutil.TestRouterAddress, Data: swapCalldata(t)}
	result, err := p.Run(context.Background(), tx, testutil.TestUserAddress, opts)
	require.NoError(t, err)

	assert.Equal(t, funding.StrategyPermit, result.Funding.Strategy)
	assert.Equal(t, proxy.VariantPermit, result.Call.Variant)
}

func TestSpentHintPrefersSimulation(t *testing.T) {
	p := newTestPipeline(&fakeSim{}, &fakeTokens{}, &fakeChain{native: big.NewInt(0)}, &fakeFunder{})

	rewrite, err := router.RewriteExecute(swapCalldata(t), testutil.TestUserAddress, testutil.GetLogger())
	require.NoError(t, err)

	original := &simulation.Result{Status: true, Changes: []simulation.AssetChange{
		{Token: testutil.TestTokenDAI, Symbol: "DAI", Decimals: 18, Diff: big.NewInt(-42)},
	}}
	hint := p.spentHint(original, rewrite)
	require.NotNil(t, hint)
	assert.Equal(t, testutil.TestTokenDAI, hint.Token)
	assert.Equal(t, big.NewInt(42), hint.Amount)

	// Without the simulation the hint comes from the swap input itself.
	hint = p.spentHint(nil, rewrite)
	require.NotNil(t, hint)
	assert.Equal(t, testutil.TestTokenUSDC, hint.Token)
	assert.Equal(t, big.NewInt(1_000_000), hint.Amount)
}
