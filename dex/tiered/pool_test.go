package tiered

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/dex"
	bmath "github.com/michaelpento.lv/tierarb/utils/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token0 = common.HexToAddress("0x1000000000000000000000000000000000000001")
	token1 = common.HexToAddress("0x2000000000000000000000000000000000000002")
	hub    = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// sqrtAt returns Q96*num/den
func sqrtAt(num, den int64) *big.Int {
	return bmath.MulDiv(bmath.Q96, big.NewInt(num), big.NewInt(den))
}

// threeTierPool is priced at 1 inside the middle tier, with a gap between
// 0.90 and 0.95 below it
func threeTierPool(t *testing.T) *Pool {
	t.Helper()
	p, err := NewPool(hub, token0, token1, bmath.Q96, []Tier{
		{Liquidity: ether(1), SqrtPriceLowerX96: sqrtAt(8, 10), SqrtPriceUpperX96: sqrtAt(9, 10), FeePips: 500},
		{Liquidity: ether(2), SqrtPriceLowerX96: sqrtAt(95, 100), SqrtPriceUpperX96: sqrtAt(105, 100), FeePips: 3000},
		{Liquidity: ether(1), SqrtPriceLowerX96: sqrtAt(105, 100), SqrtPriceUpperX96: sqrtAt(12, 10), FeePips: 10000},
	})
	require.NoError(t, err)
	return p
}

func TestNewPool(t *testing.T) {
	tests := []struct {
		name  string
		price *big.Int
		tiers []Tier
	}{
		{"PriceBelowMin", big.NewInt(1), nil},
		{"InvertedBounds", bmath.Q96, []Tier{
			{Liquidity: ether(1), SqrtPriceLowerX96: sqrtAt(2, 1), SqrtPriceUpperX96: sqrtAt(1, 1)},
		}},
		{"Overlapping", bmath.Q96, []Tier{
			{Liquidity: ether(1), SqrtPriceLowerX96: sqrtAt(1, 2), SqrtPriceUpperX96: sqrtAt(3, 2)},
			{Liquidity: ether(1), SqrtPriceLowerX96: sqrtAt(1, 1), SqrtPriceUpperX96: sqrtAt(2, 1)},
		}},
		{"NegativeLiquidity", bmath.Q96, []Tier{
			{Liquidity: big.NewInt(-1), SqrtPriceLowerX96: sqrtAt(1, 2), SqrtPriceUpperX96: sqrtAt(3, 2)},
		}},
		{"FeeOutOfRange", bmath.Q96, []Tier{
			{Liquidity: ether(1), SqrtPriceLowerX96: sqrtAt(1, 2), SqrtPriceUpperX96: sqrtAt(3, 2), FeePips: 1_000_000},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPool(hub, token0, token1, tt.price, tt.tiers)
			assert.Error(t, err)
		})
	}

	t.Run("IdenticalTokens", func(t *testing.T) {
		_, err := NewPool(hub, token0, token0, bmath.Q96, nil)
		assert.Error(t, err)
	})
}

func TestBoundaryPolicy(t *testing.T) {
	p := threeTierPool(t)
	bps := p.Breakpoints(token0)
	require.Len(t, bps, 2)

	t.Run("BreakpointReachesBoundary", func(t *testing.T) {
		res, err := p.Swap(true, bps[0], true)
		require.NoError(t, err)
		assert.Equal(t, sqrtAt(95, 100), res.SqrtPriceAfterX96)
		assert.Equal(t, bps[0], res.AmountIn)
		assert.Equal(t, ether(1).Div(ether(1), big.NewInt(10)), res.AmountOut)
	})

	t.Run("BoundaryBelongsToNextTier", func(t *testing.T) {
		res, err := p.Swap(true, bps[0], true)
		require.NoError(t, err)
		moved := p.WithPrice(res.SqrtPriceAfterX96)

		// the exhausted tier is not revisited and the gap is jumped
		next := moved.Breakpoints(token0)
		require.Len(t, next, 1)
		assert.Equal(t, new(big.Int).Sub(bps[1], bps[0]), next[0])
	})

	t.Run("AllTiersConsumed", func(t *testing.T) {
		res, err := p.Swap(true, bps[1], true)
		require.NoError(t, err)
		assert.Equal(t, sqrtAt(8, 10), res.SqrtPriceAfterX96)
		assert.Empty(t, p.WithPrice(res.SqrtPriceAfterX96).Breakpoints(token0))
	})

	t.Run("BeyondLastTier", func(t *testing.T) {
		_, err := p.Swap(true, new(big.Int).Add(bps[1], big.NewInt(1)), true)
		assert.ErrorIs(t, err, dex.ErrInsufficientLiquidity)
		assert.Equal(t, bps[1], p.MaxAmountIn(token0))
	})

	t.Run("SwapDoesNotMutate", func(t *testing.T) {
		assert.Equal(t, bmath.Q96, p.SqrtPriceX96())
	})
}

func TestDepth(t *testing.T) {
	p := threeTierPool(t)

	depth := p.Depth(token1)
	assert.Equal(t, new(big.Int).Div(ether(2), big.NewInt(10)), depth)

	res, err := p.Swap(true, depth, false)
	require.NoError(t, err)
	assert.Equal(t, depth, res.AmountOut)
	assert.Equal(t, p.MaxAmountIn(token0), res.AmountIn)

	_, err = p.QuoteExactOut(token1, new(big.Int).Add(depth, big.NewInt(1)))
	assert.ErrorIs(t, err, dex.ErrInsufficientLiquidity)

	assert.Positive(t, p.Depth(token0).Sign())
}

func TestZeroLiquidityTier(t *testing.T) {
	p, err := NewPool(hub, token0, token1, bmath.Q96, []Tier{
		{Liquidity: ether(1), SqrtPriceLowerX96: sqrtAt(8, 10), SqrtPriceUpperX96: sqrtAt(9, 10), FeePips: 500},
		{Liquidity: new(big.Int), SqrtPriceLowerX96: sqrtAt(95, 100), SqrtPriceUpperX96: sqrtAt(105, 100), FeePips: 3000},
	})
	require.NoError(t, err)

	assert.Len(t, p.Breakpoints(token0), 1)
	assert.Empty(t, p.Breakpoints(token1))
	assert.Zero(t, p.Depth(token0).Sign())

	_, err = p.QuoteExactIn(token1, ether(1))
	assert.ErrorIs(t, err, dex.ErrInsufficientLiquidity)
}

func TestQuotes(t *testing.T) {
	p := threeTierPool(t)
	bps := p.Breakpoints(token0)

	t.Run("MonotonicAcrossTiers", func(t *testing.T) {
		prev := new(big.Int)
		for i := int64(1); i < 50; i++ {
			x := bmath.MulDiv(bps[1], big.NewInt(i), big.NewInt(50))
			out, err := p.QuoteExactIn(token0, x)
			require.NoError(t, err)
			assert.True(t, out.Cmp(prev) >= 0)
			prev = out

			back, err := p.QuoteExactOut(token1, out)
			require.NoError(t, err)
			assert.True(t, back.Cmp(x) <= 0, "exact out %s must not exceed exact in %s", back, x)
		}
	})

	t.Run("ZeroAmount", func(t *testing.T) {
		out, err := p.QuoteExactIn(token0, new(big.Int))
		require.NoError(t, err)
		assert.Zero(t, out.Sign())
	})

	t.Run("UnknownToken", func(t *testing.T) {
		_, err := p.QuoteExactIn(hub, ether(1))
		assert.ErrorIs(t, err, dex.ErrUnknownToken)
	})

	t.Run("SpotPrice", func(t *testing.T) {
		f, _ := p.SpotPrice().Float64()
		assert.InDelta(t, 1.0, f, 1e-12)
	})
}

func TestFullRangePool(t *testing.T) {
	p, err := NewFullRangePool(hub, token0, token1, ether(500), ether(6), 3000)
	require.NoError(t, err)
	assert.Equal(t, dex.KindTiered, p.Kind())
	assert.Equal(t, PoolID(token1, token0), p.ID())

	f, _ := p.SpotPrice().Float64()
	assert.InDelta(t, 0.012, f, 1e-9)

	_, err = NewFullRangePool(hub, token1, token0, ether(6), ether(500), 3000)
	assert.Error(t, err)
}
