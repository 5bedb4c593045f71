package funding

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/chainarb/chain"
	"github.com/web3guy0/chainarb/dex"
	"github.com/web3guy0/chainarb/types"
)

// fakeChainClient serves balances from a mutable map and counts fetches
type fakeChainClient struct {
	chain    types.Chain
	balances map[string]decimal.Decimal
	fetchErr error
	fetches  int
}

func (f *fakeChainClient) Chain() types.Chain { return f.chain }

func (f *fakeChainClient) NativeBalanceUSD(ctx context.Context, wallet common.Address) (decimal.Decimal, error) {
	return f.balances["NATIVE"], nil
}

func (f *fakeChainClient) AssetBalancesUSD(ctx context.Context, wallet common.Address) (map[string]decimal.Decimal, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make(map[string]decimal.Decimal, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

func (f *fakeChainClient) GasPriceGwei(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromFloat(0.05), nil
}

func (f *fakeChainClient) SubmitSignedTx(ctx context.Context, tx *ethtypes.Transaction) (common.Hash, error) {
	return common.Hash{}, nil
}

func (f *fakeChainClient) WaitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return &ethtypes.Receipt{}, nil
}

func (f *fakeChainClient) credit(asset string, usd float64) {
	f.balances[asset] = f.balances[asset].Add(decimal.NewFromFloat(usd))
}

func (f *fakeChainClient) debit(asset string, usd float64) {
	f.balances[asset] = f.balances[asset].Sub(decimal.NewFromFloat(usd))
}

// fakeRouter records swaps and applies a balance mutation on success
type fakeRouter struct {
	swapErr error
	onSwap  func(req dex.SwapRequest)
	swaps   []dex.SwapRequest
}

func (f *fakeRouter) Quote(ctx context.Context, req dex.SwapRequest) (dex.Quote, error) {
	return dex.Quote{AmountOutUSD: req.AmountInUSD}, nil
}

func (f *fakeRouter) Swap(ctx context.Context, req dex.SwapRequest) (types.Receipt, error) {
	f.swaps = append(f.swaps, req)
	if f.swapErr != nil {
		return types.Receipt{}, f.swapErr
	}
	if f.onSwap != nil {
		f.onSwap(req)
	}
	return types.Receipt{TxHash: "0xfund", AmountIn: req.AmountInUSD, AmountOut: req.AmountInUSD}, nil
}

func clients(c *fakeChainClient) map[types.Chain]chain.Client {
	return map[types.Chain]chain.Client{c.chain: c}
}

func usd(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestEnsureFundsSufficientBalance(t *testing.T) {
	client := &fakeChainClient{
		chain:    types.ChainPolygon,
		balances: map[string]decimal.Decimal{"USDC": usd(1000)},
	}
	router := &fakeRouter{}
	m := NewManager(DefaultConfig(), common.Address{}, clients(client), router)

	result, err := m.EnsureFunds(context.Background(), usd(100), types.ChainPolygon)
	require.NoError(t, err)
	assert.True(t, result.Sufficient)
	assert.False(t, result.ConversionExecuted)
	assert.Empty(t, router.swaps, "no conversion should run")
}

func TestEnsureFundsConvertsToCoverShortfall(t *testing.T) {
	client := &fakeChainClient{
		chain: types.ChainPolygon,
		balances: map[string]decimal.Decimal{
			"USDC": usd(50),
			"DAI":  usd(500),
		},
	}
	router := &fakeRouter{}
	router.onSwap = func(req dex.SwapRequest) {
		client.debit(req.FromAsset, 55)
		client.credit(req.ToAsset, 55)
	}
	m := NewManager(DefaultConfig(), common.Address{}, clients(client), router)

	// required 100 + gas reserve 5 = 105 needed, 50 held: shortfall 55
	result, err := m.EnsureFunds(context.Background(), usd(100), types.ChainPolygon)
	require.NoError(t, err)
	assert.True(t, result.Sufficient)
	assert.True(t, result.ConversionExecuted)

	require.Len(t, router.swaps, 1)
	swap := router.swaps[0]
	assert.Equal(t, "DAI", swap.FromAsset)
	assert.Equal(t, "USDC", swap.ToAsset)
	assert.True(t, swap.AmountInUSD.Equal(usd(55)), "swap amount = %s", swap.AmountInUSD)
}

func TestEnsureFundsConversionFailureIsAnError(t *testing.T) {
	client := &fakeChainClient{
		chain: types.ChainPolygon,
		balances: map[string]decimal.Decimal{
			"USDC": usd(50),
			"DAI":  usd(500),
		},
	}
	router := &fakeRouter{swapErr: errors.New("execution reverted")}
	m := NewManager(DefaultConfig(), common.Address{}, clients(client), router)

	result, err := m.EnsureFunds(context.Background(), usd(100), types.ChainPolygon)
	require.Error(t, err, "a failed conversion tx must surface as an error")
	assert.False(t, result.Sufficient)
	assert.Equal(t, "conversion transaction failed", result.Details)
}

func TestEnsureFundsInfeasibleReportsAggregate(t *testing.T) {
	client := &fakeChainClient{
		chain: types.ChainPolygon,
		balances: map[string]decimal.Decimal{
			"USDC": usd(10),
			"WETH": usd(30), // 5 above the 25 reserve
		},
	}
	router := &fakeRouter{}
	m := NewManager(DefaultConfig(), common.Address{}, clients(client), router)

	result, err := m.EnsureFunds(context.Background(), usd(100), types.ChainPolygon)
	require.NoError(t, err, "infeasibility is a decision, not an error")
	assert.False(t, result.Sufficient)
	assert.False(t, result.Plan.Viable)
	assert.True(t, result.Plan.TotalAvailable.Equal(usd(5)))
	assert.Empty(t, router.swaps)
}

func TestEnsureFundsStillShortAfterConversion(t *testing.T) {
	client := &fakeChainClient{
		chain: types.ChainPolygon,
		balances: map[string]decimal.Decimal{
			"USDC": usd(50),
			"DAI":  usd(500),
		},
	}
	router := &fakeRouter{}
	router.onSwap = func(req dex.SwapRequest) {
		// Swap lands but credits less than planned
		client.debit(req.FromAsset, 55)
		client.credit(req.ToAsset, 10)
	}
	m := NewManager(DefaultConfig(), common.Address{}, clients(client), router)

	result, err := m.EnsureFunds(context.Background(), usd(100), types.ChainPolygon)
	require.NoError(t, err)
	assert.False(t, result.Sufficient)
	assert.True(t, result.ConversionExecuted)
	assert.Equal(t, "still short after conversion", result.Details)
}

func TestSnapshotCachingAndInvalidation(t *testing.T) {
	client := &fakeChainClient{
		chain:    types.ChainPolygon,
		balances: map[string]decimal.Decimal{"USDC": usd(100)},
	}
	m := NewManager(DefaultConfig(), common.Address{}, clients(client), &fakeRouter{})

	_, err := m.Snapshot(context.Background(), types.ChainPolygon, false)
	require.NoError(t, err)
	_, err = m.Snapshot(context.Background(), types.ChainPolygon, false)
	require.NoError(t, err)
	assert.Equal(t, 1, client.fetches, "second read inside TTL must hit the cache")

	m.Invalidate(types.ChainPolygon)
	_, err = m.Snapshot(context.Background(), types.ChainPolygon, false)
	require.NoError(t, err)
	assert.Equal(t, 2, client.fetches)

	_, err = m.Snapshot(context.Background(), types.ChainPolygon, true)
	require.NoError(t, err)
	assert.Equal(t, 3, client.fetches, "force bypasses the cache")
}

func TestSnapshotUnknownChain(t *testing.T) {
	m := NewManager(DefaultConfig(), common.Address{}, map[types.Chain]chain.Client{}, &fakeRouter{})

	_, err := m.Snapshot(context.Background(), types.ChainBSC, false)
	require.Error(t, err)
}
