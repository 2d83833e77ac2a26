package dex_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/dex"
	"github.com/michaelpento.lv/tierarb/dex/tiered"
	"github.com/michaelpento.lv/tierarb/dex/uniswap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticSource struct {
	name  string
	pool  dex.Pool
	err   error
	block *big.Int
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Fetch(ctx context.Context, blockNumber *big.Int) (dex.Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.block = blockNumber
	return s.pool, s.err
}

var (
	tokenA = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenB = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func pools(t *testing.T) (dex.Pool, dex.Pool) {
	t.Helper()
	cp, err := uniswap.NewPool(common.HexToAddress("0x03"), tokenA, tokenB, big.NewInt(1e18), big.NewInt(1e18), uniswap.DefaultFeePips)
	require.NoError(t, err)
	tp, err := tiered.NewFullRangePool(common.HexToAddress("0x04"), tokenA, tokenB, big.NewInt(1e18), big.NewInt(1e18), 3000)
	require.NoError(t, err)
	return cp, tp
}

func TestFetcher(t *testing.T) {
	cp, tp := pools(t)
	fetcher := dex.NewFetcher(nil, 2, zaptest.NewLogger(t))
	block := big.NewInt(42)

	good := &staticSource{name: "pair", pool: cp}
	markets := []dex.MarketSources{
		{Name: "ok", ConstantProduct: good, Tiered: &staticSource{name: "hub", pool: tp}},
		{Name: "broken", ConstantProduct: &staticSource{name: "pair", pool: cp}, Tiered: &staticSource{name: "hub", err: errors.New("call reverted")}},
		{Name: "ok2", ConstantProduct: &staticSource{name: "pair", pool: cp}, Tiered: &staticSource{name: "hub", pool: tp}},
		{Name: "unset", ConstantProduct: &staticSource{name: "pair", pool: cp}},
	}

	snaps, err := fetcher.Fetch(context.Background(), markets, block)
	require.NoError(t, err)
	require.Len(t, snaps, 4)

	assert.Equal(t, "ok", snaps[0].Name)
	assert.NoError(t, snaps[0].Err)
	assert.Same(t, cp, snaps[0].ConstantProduct)
	assert.Same(t, tp, snaps[0].Tiered)
	assert.Equal(t, block, good.block)

	var srcErr *dex.SourceError
	require.ErrorAs(t, snaps[1].Err, &srcErr)
	assert.Equal(t, "hub", srcErr.Source)

	assert.NoError(t, snaps[2].Err)
	assert.Error(t, snaps[3].Err)

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := fetcher.Fetch(ctx, markets, block)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
