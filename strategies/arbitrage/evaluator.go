package arbitrage

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/dex"
	"github.com/michaelpento.lv/tierarb/types"
	bmath "github.com/michaelpento.lv/tierarb/utils/math"
	"go.uber.org/zap"
)

// ErrNoOpportunity is returned when no trade size makes a profit
var ErrNoOpportunity = errors.New("no opportunity")

// DefaultGasLimit is the gas one settlement transaction is budgeted for
const DefaultGasLimit = 190_000

// DefaultTolerance is the search resolution relative to the domain size
const DefaultTolerance = 1e-6

// EvaluatorConfig holds evaluator parameters
type EvaluatorConfig struct {
	ProfitToken common.Address
	GasLimit    uint64
	BribeBps    uint32
	Tolerance   float64
}

// Evaluator finds the optimal trade size between two pools of the same pair.
// It holds no state between calls.
type Evaluator struct {
	cfg    EvaluatorConfig
	logger *zap.Logger
}

// NewEvaluator creates a new arbitrage evaluator
func NewEvaluator(cfg EvaluatorConfig, logger *zap.Logger) *Evaluator {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{cfg: cfg, logger: logger}
}

// sample is the profit of one trade size
type sample struct {
	amountIn     *big.Int
	amountBridge *big.Int
	amountOut    *big.Int
	profit       *big.Int
}

func (s *sample) beats(o *sample) bool {
	if s == nil {
		return false
	}
	if o == nil {
		return true
	}
	return s.profit.Cmp(o.profit) > 0
}

// EvaluatePair tries both directions between a constant-product and a tiered
// pool and returns the more profitable one
func (e *Evaluator) EvaluatePair(first, second dex.Pool, gasPrice *big.Int) (*types.Opportunity, error) {
	forward, errForward := e.Evaluate(first, second, gasPrice)
	backward, errBackward := e.Evaluate(second, first, gasPrice)

	switch {
	case errForward == nil && errBackward == nil:
		if Compare(forward, backward) <= 0 {
			return forward, nil
		}
		return backward, nil
	case errForward == nil:
		return forward, nil
	case errBackward == nil:
		return backward, nil
	case errors.Is(errForward, ErrNoOpportunity) && errors.Is(errBackward, ErrNoOpportunity):
		return nil, errForward
	case !errors.Is(errForward, ErrNoOpportunity):
		return nil, errForward
	default:
		return nil, errBackward
	}
}

// Evaluate maximizes quoteB(quoteA(x)) - x over input sizes x of the profit
// token entering pool a
func (e *Evaluator) Evaluate(a, b dex.Pool, gasPrice *big.Int) (*types.Opportunity, error) {
	profitToken := e.cfg.ProfitToken
	a0, a1 := a.Tokens()
	b0, b1 := b.Tokens()
	if a0 != b0 || a1 != b1 {
		return nil, fmt.Errorf("pools trade different pairs")
	}
	bridge, err := dex.Other(a, profitToken)
	if err != nil {
		return nil, fmt.Errorf("profit token %s not in pair: %w", profitToken.Hex(), err)
	}

	// Any input above what b can ever pay back loses money, so b's depth
	// bounds the search as tightly as a's quotable input does.
	hi := bmath.Min(a.MaxAmountIn(profitToken), b.Depth(profitToken))
	if hi.Sign() <= 0 {
		return nil, fmt.Errorf("%w: zero liquidity", ErrNoOpportunity)
	}

	eval := func(x *big.Int) *sample {
		mid, err := a.QuoteExactIn(profitToken, x)
		if err != nil || mid.Sign() <= 0 {
			return nil
		}
		out, err := b.QuoteExactIn(bridge, mid)
		if err != nil {
			return nil
		}
		return &sample{
			amountIn:     new(big.Int).Set(x),
			amountBridge: mid,
			amountOut:    out,
			profit:       new(big.Int).Sub(out, x),
		}
	}

	points := e.candidates(a, b, profitToken, bridge, hi)
	tol := e.tolerance(hi)

	var best *sample
	for _, x := range points {
		if s := eval(x); s.beats(best) {
			best = s
		}
	}
	for i := 0; i+1 < len(points); i++ {
		if s := refine(points[i], points[i+1], tol, eval); s.beats(best) {
			best = s
		}
	}

	if best == nil || best.profit.Sign() <= 0 {
		return nil, ErrNoOpportunity
	}

	opp := e.opportunity(a, b, profitToken, bridge, best, gasPrice)
	e.logger.Debug("Evaluated pool pair",
		zap.String("direction", opp.Direction()),
		zap.String("amount_in", opp.AmountIn.String()),
		zap.String("gross_profit", opp.GrossProfit.String()),
		zap.String("net_profit", opp.NetProfit.String()))

	if opp.NetProfit.Sign() <= 0 {
		return nil, fmt.Errorf("%w: net profit %s after gas and bribe", ErrNoOpportunity, opp.NetProfit)
	}
	return opp, nil
}

// candidates returns the sorted, de-duplicated trade sizes at which either
// pool crosses a tier boundary, bracketed by 1 and hi. Profit is unimodal
// between neighbours.
func (e *Evaluator) candidates(a, b dex.Pool, profitToken, bridge common.Address, hi *big.Int) []*big.Int {
	one := big.NewInt(1)
	raw := []*big.Int{one, hi}
	raw = append(raw, a.Breakpoints(profitToken)...)
	for _, y := range b.Breakpoints(bridge) {
		if x, err := a.QuoteExactOut(bridge, y); err == nil {
			raw = append(raw, x)
		}
	}

	sort.Slice(raw, func(i, j int) bool { return raw[i].Cmp(raw[j]) < 0 })

	out := make([]*big.Int, 0, len(raw))
	for _, x := range raw {
		if x.Cmp(one) < 0 || x.Cmp(hi) > 0 {
			continue
		}
		if len(out) > 0 && out[len(out)-1].Cmp(x) == 0 {
			continue
		}
		out = append(out, x)
	}
	return out
}

// tolerance returns the bracket width at which refinement stops
func (e *Evaluator) tolerance(hi *big.Int) *big.Int {
	tol, _ := new(big.Float).Mul(new(big.Float).SetInt(hi), big.NewFloat(e.cfg.Tolerance)).Int(nil)
	if tol.Cmp(big.NewInt(2)) < 0 {
		tol.SetInt64(2)
	}
	return tol
}

// refine runs an integer ternary search on [lo, hi] until the bracket is no
// wider than tol, then returns the best of the bracket's ends and middle
func refine(lo, hi, tol *big.Int, eval func(*big.Int) *sample) *sample {
	l, r := new(big.Int).Set(lo), new(big.Int).Set(hi)
	three := big.NewInt(3)
	var best *sample

	for new(big.Int).Sub(r, l).Cmp(tol) > 0 {
		third := new(big.Int).Sub(r, l)
		third.Quo(third, three)
		m1 := new(big.Int).Add(l, third)
		m2 := new(big.Int).Sub(r, third)

		s1, s2 := eval(m1), eval(m2)
		if s1.beats(best) {
			best = s1
		}
		if s2.beats(best) {
			best = s2
		}
		if s2.beats(s1) {
			l = m1
		} else {
			r = m2
		}
	}

	mid := new(big.Int).Add(l, r)
	mid.Rsh(mid, 1)
	for _, x := range []*big.Int{l, mid, r} {
		if s := eval(x); s.beats(best) {
			best = s
		}
	}
	return best
}

func (e *Evaluator) opportunity(a, b dex.Pool, profitToken, bridge common.Address, s *sample, gasPrice *big.Int) *types.Opportunity {
	gasCost := new(big.Int)
	if gasPrice != nil {
		gasCost.Mul(gasPrice, new(big.Int).SetUint64(e.cfg.GasLimit))
	}
	bribe := bmath.ApplyBps(new(big.Int).Sub(s.profit, gasCost), e.cfg.BribeBps)
	net := new(big.Int).Sub(s.profit, gasCost)
	net.Sub(net, bribe)

	token0, token1 := a.Tokens()
	return &types.Opportunity{
		Token0:       token0,
		Token1:       token1,
		ProfitToken:  profitToken,
		BridgeToken:  bridge,
		Source:       a,
		Destination:  b,
		TieredFirst:  a.Kind() == dex.KindTiered,
		AmountIn:     s.amountIn,
		AmountBridge: s.amountBridge,
		AmountOut:    s.amountOut,
		GrossProfit:  new(big.Int).Set(s.profit),
		GasLimit:     e.cfg.GasLimit,
		GasCost:      gasCost,
		Bribe:        bribe,
		NetProfit:    net,
	}
}
