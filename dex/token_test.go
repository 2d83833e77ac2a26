package dex_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/dex"
	"github.com/michaelpento.lv/tierarb/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// countingCaller counts contract reads
type countingCaller struct {
	*settlement.Caller
	calls int
}

func (c *countingCaller) CallContract(ctx context.Context, call ethereum.CallMsg, block *big.Int) ([]byte, error) {
	c.calls++
	return c.Caller.CallContract(ctx, call, block)
}

func TestTokenRegistry(t *testing.T) {
	env := settlement.NewEnv(common.Address{}, 1, zaptest.NewLogger(t))
	env.Deploy(settlement.NewToken(tokenA, "USDC", 6))
	env.Deploy(settlement.NewWETH(tokenB))

	caller := &countingCaller{Caller: settlement.NewCaller(env)}
	registry, err := dex.NewTokenRegistry(caller, 0)
	require.NoError(t, err)

	usdc, err := registry.Token(context.Background(), tokenA)
	require.NoError(t, err)
	assert.Equal(t, dex.Token{Address: tokenA, Symbol: "USDC", Decimals: 6}, usdc)
	assert.Equal(t, 2, caller.calls)

	t.Run("Cached", func(t *testing.T) {
		_, err := registry.Token(context.Background(), tokenA)
		require.NoError(t, err)
		assert.Equal(t, 2, caller.calls)
	})

	t.Run("Registered", func(t *testing.T) {
		other := common.HexToAddress("0x9000000000000000000000000000000000000009")
		registry.Register(dex.Token{Address: other, Symbol: "DAI", Decimals: 18})
		dai, err := registry.Token(context.Background(), other)
		require.NoError(t, err)
		assert.Equal(t, "DAI", dai.Symbol)
	})

	t.Run("MissingContract", func(t *testing.T) {
		_, err := registry.Token(context.Background(), common.HexToAddress("0xdead"))
		assert.Error(t, err)
	})
}

func TestTokenFormat(t *testing.T) {
	weth := dex.Token{Symbol: "WETH", Decimals: 18}
	assert.Equal(t, "0.0245 WETH", weth.Format(big.NewInt(24_500_000_000_000_000)))
	assert.Equal(t, "0 WETH", weth.Format(nil))

	usdc := dex.Token{Symbol: "USDC", Decimals: 6}
	assert.Equal(t, "1234.5 USDC", usdc.Format(big.NewInt(1_234_500_000)))
}
