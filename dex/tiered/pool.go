package tiered

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/tierarb/dex"
	bmath "github.com/michaelpento.lv/tierarb/utils/math"
)

// Tier is a bounded liquidity segment active only while the pool price is
// inside [SqrtPriceLowerX96, SqrtPriceUpperX96]
type Tier struct {
	Liquidity         *big.Int
	SqrtPriceLowerX96 *big.Int
	SqrtPriceUpperX96 *big.Int
	FeePips           uint32
}

// Pool is a tiered concentrated-liquidity snapshot. Tiers are sorted by
// price and never overlap.
type Pool struct {
	hub          common.Address
	id           common.Hash
	token0       common.Address
	token1       common.Address
	sqrtPriceX96 *big.Int
	tiers        []Tier
}

// SwapResult is the outcome of walking the tiers for one swap
type SwapResult struct {
	AmountIn          *big.Int
	AmountOut         *big.Int
	SqrtPriceAfterX96 *big.Int
}

// PoolID returns the hub's identifier for a token pair
func PoolID(tokenA, tokenB common.Address) common.Hash {
	token0, token1 := dex.SortTokens(tokenA, tokenB)
	return crypto.Keccak256Hash(common.LeftPadBytes(token0.Bytes(), 32), common.LeftPadBytes(token1.Bytes(), 32))
}

// NewPool validates and creates a tiered pool snapshot
func NewPool(hub, tokenA, tokenB common.Address, sqrtPriceX96 *big.Int, tiers []Tier) (*Pool, error) {
	if tokenA == tokenB {
		return nil, fmt.Errorf("identical tokens %s", tokenA.Hex())
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) > 0 {
		return nil, fmt.Errorf("sqrt price out of range")
	}

	copied := make([]Tier, len(tiers))
	for i, t := range tiers {
		if t.Liquidity == nil || t.Liquidity.Sign() < 0 {
			return nil, fmt.Errorf("tier %d: negative liquidity", i)
		}
		if t.SqrtPriceLowerX96 == nil || t.SqrtPriceUpperX96 == nil ||
			t.SqrtPriceLowerX96.Cmp(t.SqrtPriceUpperX96) >= 0 {
			return nil, fmt.Errorf("tier %d: lower bound must be below upper bound", i)
		}
		if t.SqrtPriceLowerX96.Cmp(MinSqrtRatio) < 0 || t.SqrtPriceUpperX96.Cmp(MaxSqrtRatio) > 0 {
			return nil, fmt.Errorf("tier %d: bounds outside sqrt price range", i)
		}
		if t.FeePips >= 1_000_000 {
			return nil, fmt.Errorf("tier %d: fee %d pips out of range", i, t.FeePips)
		}
		if i > 0 && tiers[i-1].SqrtPriceUpperX96.Cmp(t.SqrtPriceLowerX96) > 0 {
			return nil, fmt.Errorf("tier %d overlaps or is out of order", i)
		}
		copied[i] = Tier{
			Liquidity:         new(big.Int).Set(t.Liquidity),
			SqrtPriceLowerX96: new(big.Int).Set(t.SqrtPriceLowerX96),
			SqrtPriceUpperX96: new(big.Int).Set(t.SqrtPriceUpperX96),
			FeePips:           t.FeePips,
		}
	}

	token0, token1 := dex.SortTokens(tokenA, tokenB)
	return &Pool{
		hub:          hub,
		id:           PoolID(token0, token1),
		token0:       token0,
		token1:       token1,
		sqrtPriceX96: new(big.Int).Set(sqrtPriceX96),
		tiers:        copied,
	}, nil
}

// NewFullRangePool creates a single-tier pool spanning the whole price range
// whose real reserves approximate reserve0/reserve1, the way a constant
// product pool with the same reserves would price
func NewFullRangePool(hub, token0, token1 common.Address, reserve0, reserve1 *big.Int, feePips uint32) (*Pool, error) {
	if reserve0.Sign() <= 0 || reserve1.Sign() <= 0 {
		return nil, fmt.Errorf("reserves must be positive")
	}
	if t0, _ := dex.SortTokens(token0, token1); t0 != token0 {
		return nil, fmt.Errorf("tokens must be sorted")
	}

	liquidity := bmath.Sqrt(new(big.Int).Mul(reserve0, reserve1))
	sqrtPrice := bmath.Sqrt(new(big.Int).Quo(new(big.Int).Lsh(reserve1, 192), reserve0))

	return NewPool(hub, token0, token1, sqrtPrice, []Tier{{
		Liquidity:         liquidity,
		SqrtPriceLowerX96: MinSqrtRatio,
		SqrtPriceUpperX96: MaxSqrtRatio,
		FeePips:           feePips,
	}})
}

// Kind returns dex.KindTiered
func (p *Pool) Kind() dex.Kind {
	return dex.KindTiered
}

// Address returns the hub contract that executes swaps
func (p *Pool) Address() common.Address {
	return p.hub
}

// ID returns the pool identifier inside the hub
func (p *Pool) ID() common.Hash {
	return p.id
}

// Tokens returns the sorted pair
func (p *Pool) Tokens() (common.Address, common.Address) {
	return p.token0, p.token1
}

// SqrtPriceX96 returns a copy of the current sqrt price
func (p *Pool) SqrtPriceX96() *big.Int {
	return new(big.Int).Set(p.sqrtPriceX96)
}

// Tiers returns a copy of the tier list
func (p *Pool) Tiers() []Tier {
	out := make([]Tier, len(p.tiers))
	copy(out, p.tiers)
	return out
}

// WithPrice returns a copy of the pool moved to sqrtPriceX96
func (p *Pool) WithPrice(sqrtPriceX96 *big.Int) *Pool {
	next := *p
	next.sqrtPriceX96 = new(big.Int).Set(sqrtPriceX96)
	return &next
}

// QuoteExactIn returns the output for amountIn of tokenIn
func (p *Pool) QuoteExactIn(tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	zeroForOne, err := p.direction(tokenIn)
	if err != nil {
		return nil, err
	}
	res, err := p.Swap(zeroForOne, amountIn, true)
	if err != nil {
		return nil, err
	}
	return res.AmountOut, nil
}

// QuoteExactOut returns the input needed to receive amountOut of tokenOut
func (p *Pool) QuoteExactOut(tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	tokenIn, err := dex.Other(p, tokenOut)
	if err != nil {
		return nil, err
	}
	zeroForOne, _ := p.direction(tokenIn)
	res, err := p.Swap(zeroForOne, amountOut, false)
	if err != nil {
		return nil, err
	}
	return res.AmountIn, nil
}

// SpotPrice returns (sqrtPrice/2^96)^2
func (p *Pool) SpotPrice() *big.Float {
	f := new(big.Float).SetInt(p.sqrtPriceX96)
	f.Quo(f, new(big.Float).SetInt(bmath.Q96))
	return f.Mul(f, f)
}

// Depth returns the total amount of tokenOut held across the tiers reachable
// in the swap direction
func (p *Pool) Depth(tokenOut common.Address) *big.Int {
	tokenIn, err := dex.Other(p, tokenOut)
	if err != nil {
		return new(big.Int)
	}
	zeroForOne, _ := p.direction(tokenIn)

	total := new(big.Int)
	p.walk(zeroForOne, func(from, to *big.Int, t *Tier) bool {
		if zeroForOne {
			total.Add(total, amount1Delta(to, from, t.Liquidity, false))
		} else {
			total.Add(total, amount0Delta(from, to, t.Liquidity, false))
		}
		return true
	})
	return total
}

// MaxAmountIn returns the input, fees included, that drains every reachable
// tier
func (p *Pool) MaxAmountIn(tokenIn common.Address) *big.Int {
	bps := p.Breakpoints(tokenIn)
	if len(bps) == 0 {
		return new(big.Int)
	}
	return bps[len(bps)-1]
}

// Breakpoints returns the cumulative inputs, fees included, at which the
// swap reaches each tier boundary
func (p *Pool) Breakpoints(tokenIn common.Address) []*big.Int {
	zeroForOne, err := p.direction(tokenIn)
	if err != nil {
		return nil
	}

	var out []*big.Int
	total := new(big.Int)
	p.walk(zeroForOne, func(from, to *big.Int, t *Tier) bool {
		var in *big.Int
		if zeroForOne {
			in = amount0Delta(to, from, t.Liquidity, true)
		} else {
			in = amount1Delta(from, to, t.Liquidity, true)
		}
		fee := bmath.MulDivRoundingUp(in, big.NewInt(int64(t.FeePips)), big.NewInt(int64(1_000_000-t.FeePips)))
		total.Add(total, in)
		total.Add(total, fee)
		out = append(out, new(big.Int).Set(total))
		return true
	})
	return out
}

// Swap walks the tiers from the current price. zeroForOne swaps token0 in and
// moves the price down. amount is the exact input when exactIn, otherwise the
// exact output. The pool itself is not modified.
func (p *Pool) Swap(zeroForOne bool, amount *big.Int, exactIn bool) (*SwapResult, error) {
	res := &SwapResult{
		AmountIn:          new(big.Int),
		AmountOut:         new(big.Int),
		SqrtPriceAfterX96: new(big.Int).Set(p.sqrtPriceX96),
	}
	if amount == nil || amount.Sign() <= 0 {
		return res, nil
	}

	remaining := new(big.Int).Set(amount)
	var stepErr error

	p.walk(zeroForOne, func(from, to *big.Int, t *Tier) bool {
		st, err := computeStep(from, to, t.Liquidity, remaining, t.FeePips, exactIn)
		if err != nil {
			stepErr = err
			return false
		}

		res.SqrtPriceAfterX96 = st.sqrtNext
		if exactIn {
			remaining.Sub(remaining, st.amountIn)
			remaining.Sub(remaining, st.fee)
			res.AmountIn.Add(res.AmountIn, st.amountIn)
			res.AmountIn.Add(res.AmountIn, st.fee)
			res.AmountOut.Add(res.AmountOut, st.amountOut)
		} else {
			remaining.Sub(remaining, st.amountOut)
			res.AmountIn.Add(res.AmountIn, st.amountIn)
			res.AmountIn.Add(res.AmountIn, st.fee)
			res.AmountOut.Add(res.AmountOut, st.amountOut)
		}
		return remaining.Sign() > 0
	})

	if stepErr != nil {
		return nil, fmt.Errorf("swap step failed: %w", stepErr)
	}
	if remaining.Sign() > 0 {
		return nil, dex.ErrInsufficientLiquidity
	}
	return res, nil
}

// walk visits each tier reachable from the current price in the swap
// direction, passing the price range the swap would travel inside it. A
// price sitting exactly on a boundary belongs to the tier on the far side of
// it, so a tier whose boundary has been reached is never revisited. Gaps
// between tiers are jumped and empty tiers skipped.
func (p *Pool) walk(zeroForOne bool, visit func(from, to *big.Int, t *Tier) bool) {
	price := p.sqrtPriceX96
	if zeroForOne {
		for i := len(p.tiers) - 1; i >= 0; i-- {
			t := &p.tiers[i]
			if t.SqrtPriceLowerX96.Cmp(price) >= 0 {
				continue
			}
			from := price
			if from.Cmp(t.SqrtPriceUpperX96) > 0 {
				from = t.SqrtPriceUpperX96
			}
			price = t.SqrtPriceLowerX96
			if t.Liquidity.Sign() == 0 {
				continue
			}
			if !visit(from, t.SqrtPriceLowerX96, t) {
				return
			}
		}
		return
	}

	for i := range p.tiers {
		t := &p.tiers[i]
		if t.SqrtPriceUpperX96.Cmp(price) <= 0 {
			continue
		}
		from := price
		if from.Cmp(t.SqrtPriceLowerX96) < 0 {
			from = t.SqrtPriceLowerX96
		}
		price = t.SqrtPriceUpperX96
		if t.Liquidity.Sign() == 0 {
			continue
		}
		if !visit(from, t.SqrtPriceUpperX96, t) {
			return
		}
	}
}

func (p *Pool) direction(tokenIn common.Address) (bool, error) {
	switch tokenIn {
	case p.token0:
		return true, nil
	case p.token1:
		return false, nil
	default:
		return false, dex.ErrUnknownToken
	}
}
