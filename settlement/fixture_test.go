package settlement

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/michaelpento.lv/tierarb/contracts"
	"github.com/michaelpento.lv/tierarb/dex/tiered"
	"github.com/michaelpento.lv/tierarb/dex/uniswap"
	"github.com/michaelpento.lv/tierarb/strategies/arbitrage"
	"github.com/michaelpento.lv/tierarb/types"
	bmath "github.com/michaelpento.lv/tierarb/utils/math"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	tokenAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	wethAddr  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	pairAddr  = common.HexToAddress("0x3000000000000000000000000000000000000003")
	hubAddr   = common.HexToAddress("0x4000000000000000000000000000000000000004")
	arbAddr   = common.HexToAddress("0x5000000000000000000000000000000000000005")
	owner     = common.HexToAddress("0xa00000000000000000000000000000000000000a")
	executor  = common.HexToAddress("0xb00000000000000000000000000000000000000b")
	stranger  = common.HexToAddress("0xd00000000000000000000000000000000000000d")
	coinbase  = common.HexToAddress("0xc00000000000000000000000000000000000000c")

	gasPrice = big.NewInt(20_000_000_000)
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type fixture struct {
	env  *Env
	pair *Pair
	hub  *Hub
	arb  *Arbitrageur
	cp   *uniswap.Pool
	tp   *tiered.Pool
}

// newFixture deploys a TOKEN/WETH market. Reserves are in whole tokens.
func newFixture(t *testing.T, cpToken, cpWeth, tpToken, tpWeth int64) *fixture {
	t.Helper()
	tp, err := tiered.NewFullRangePool(hubAddr, tokenAddr, wethAddr, ether(tpToken), ether(tpWeth), 3000)
	require.NoError(t, err)
	return newFixtureWithPool(t, cpToken, cpWeth, tp)
}

// sqrtPrice returns the Q64.96 square root of num/den
func sqrtPrice(num, den int64) *big.Int {
	return bmath.Sqrt(new(big.Int).Quo(new(big.Int).Lsh(big.NewInt(num), 192), big.NewInt(den)))
}

// tieredPool prices TOKEN in WETH across three tiers with a gap between
// 0.0125 and 0.013
func tieredPool(t *testing.T, sqrtPriceX96 *big.Int) *tiered.Pool {
	t.Helper()
	tp, err := tiered.NewPool(hubAddr, tokenAddr, wethAddr, sqrtPriceX96, []tiered.Tier{
		{Liquidity: ether(20), SqrtPriceLowerX96: sqrtPrice(9, 1000), SqrtPriceUpperX96: sqrtPrice(115, 10000), FeePips: 500},
		{Liquidity: ether(50), SqrtPriceLowerX96: sqrtPrice(115, 10000), SqrtPriceUpperX96: sqrtPrice(125, 10000), FeePips: 3000},
		{Liquidity: ether(10), SqrtPriceLowerX96: sqrtPrice(13, 1000), SqrtPriceUpperX96: sqrtPrice(15, 1000), FeePips: 10000},
	})
	require.NoError(t, err)
	return tp
}

func newFixtureWithPool(t *testing.T, cpToken, cpWeth int64, tp *tiered.Pool) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	env := NewEnv(coinbase, 100, logger)
	env.Deploy(NewToken(tokenAddr, "TOKEN", 18))
	env.Deploy(NewWETH(wethAddr))

	cp, err := uniswap.NewPool(pairAddr, tokenAddr, wethAddr, ether(cpToken), ether(cpWeth), uniswap.DefaultFeePips)
	require.NoError(t, err)
	pair, err := DeployPair(env, cp)
	require.NoError(t, err)

	hub := DeployHub(env, hubAddr)
	require.NoError(t, hub.AddPool(env, tp))

	arb := NewArbitrageur(arbAddr, owner, executor, hubAddr, wethAddr, logger)
	env.Deploy(arb)

	return &fixture{env: env, pair: pair, hub: hub, arb: arb, cp: cp, tp: tp}
}

func (f *fixture) plan(t *testing.T, bribeBps uint32) *types.ExecutionPlan {
	t.Helper()
	evaluator := arbitrage.NewEvaluator(arbitrage.EvaluatorConfig{
		ProfitToken: wethAddr,
		BribeBps:    bribeBps,
	}, zaptest.NewLogger(t))
	opp, err := evaluator.EvaluatePair(f.cp, f.tp, gasPrice)
	require.NoError(t, err)

	plan, err := arbitrage.NewPlanner(arbAddr).Build(opp)
	require.NoError(t, err)
	return plan
}

func (f *fixture) balance(token, holder common.Address) *big.Int {
	return f.env.Ledger().BalanceOf(token, holder).ToBig()
}

func packWork(t *testing.T, minNet, bribe *big.Int, hubCall []byte) []byte {
	t.Helper()
	data, err := contracts.ArbitrageurABI.Pack("work", wethAddr, minNet, bribe, hubCall)
	require.NoError(t, err)
	return data
}

func u256(x *big.Int) *uint256.Int {
	return uint256.MustFromBig(x)
}

// state captures everything a reverted transaction must leave untouched
type state struct {
	ledger   *Ledger
	reserve0 *big.Int
	reserve1 *big.Int
	price    *big.Int
	logs     int
}

func (f *fixture) state() state {
	pool, _ := f.hub.Pool(f.tp.ID())
	return state{
		ledger:   f.env.Ledger().Copy(),
		reserve0: new(big.Int).Set(f.pair.reserve0),
		reserve1: new(big.Int).Set(f.pair.reserve1),
		price:    pool.SqrtPriceX96(),
		logs:     len(f.env.Logs()),
	}
}

func (f *fixture) requireUnchanged(t *testing.T, before state) {
	t.Helper()
	after := f.state()
	require.Equal(t, before.ledger, after.ledger)
	require.Equal(t, before.reserve0, after.reserve0)
	require.Equal(t, before.reserve1, after.reserve1)
	require.Equal(t, before.price, after.price)
	require.Equal(t, before.logs, after.logs)
}
