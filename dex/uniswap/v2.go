package uniswap

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/tierarb/dex"
	bmath "github.com/michaelpento.lv/tierarb/utils/math"
)

// Mainnet UniswapV2 deployment
var (
	MainnetFactory  = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	MainnetInitCode = common.FromHex("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
	WETHAddress     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// DefaultFeePips is the 0.3% UniswapV2 swap fee
const DefaultFeePips = 3000

// Pool is a constant-product pair snapshot
type Pool struct {
	address  common.Address
	token0   common.Address
	token1   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
	feePips  uint32
}

// NewPool creates a constant-product pool snapshot. Tokens are sorted and
// reserves follow them.
func NewPool(address, tokenA, tokenB common.Address, reserveA, reserveB *big.Int, feePips uint32) (*Pool, error) {
	if reserveA == nil || reserveB == nil || reserveA.Sign() < 0 || reserveB.Sign() < 0 {
		return nil, fmt.Errorf("reserves must be non-negative")
	}
	if reserveA.Cmp(bmath.MaxUint112) > 0 || reserveB.Cmp(bmath.MaxUint112) > 0 {
		return nil, fmt.Errorf("reserves overflow uint112")
	}
	if feePips >= 1_000_000 {
		return nil, fmt.Errorf("fee %d pips out of range", feePips)
	}
	if tokenA == tokenB {
		return nil, fmt.Errorf("identical tokens %s", tokenA.Hex())
	}

	t0, t1 := dex.SortTokens(tokenA, tokenB)
	r0, r1 := reserveA, reserveB
	if t0 != tokenA {
		r0, r1 = reserveB, reserveA
	}

	return &Pool{
		address:  address,
		token0:   t0,
		token1:   t1,
		reserve0: new(big.Int).Set(r0),
		reserve1: new(big.Int).Set(r1),
		feePips:  feePips,
	}, nil
}

// Kind returns dex.KindConstantProduct
func (p *Pool) Kind() dex.Kind {
	return dex.KindConstantProduct
}

// Address returns the pair contract address
func (p *Pool) Address() common.Address {
	return p.address
}

// Tokens returns the sorted pair
func (p *Pool) Tokens() (common.Address, common.Address) {
	return p.token0, p.token1
}

// Reserves returns copies of the sorted reserves
func (p *Pool) Reserves() (*big.Int, *big.Int) {
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)
}

// FeePips returns the swap fee in pips
func (p *Pool) FeePips() uint32 {
	return p.feePips
}

// QuoteExactIn returns the output for amountIn of tokenIn
func (p *Pool) QuoteExactIn(tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	reserveIn, reserveOut, err := p.orient(tokenIn)
	if err != nil {
		return nil, err
	}
	if amountIn.Sign() <= 0 {
		return new(big.Int), nil
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, dex.ErrInsufficientLiquidity
	}
	if new(big.Int).Add(reserveIn, amountIn).Cmp(bmath.MaxUint112) > 0 {
		return nil, dex.ErrInsufficientLiquidity
	}
	return GetAmountOut(amountIn, reserveIn, reserveOut, p.feePips), nil
}

// QuoteExactOut returns the input of the other token needed to receive
// amountOut of tokenOut
func (p *Pool) QuoteExactOut(tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	tokenIn, err := dex.Other(p, tokenOut)
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut, _ := p.orient(tokenIn)
	if amountOut.Sign() <= 0 {
		return new(big.Int), nil
	}
	if amountOut.Cmp(reserveOut) >= 0 || reserveIn.Sign() == 0 {
		return nil, dex.ErrInsufficientLiquidity
	}
	return GetAmountIn(amountOut, reserveIn, reserveOut, p.feePips), nil
}

// SpotPrice returns reserve1/reserve0
func (p *Pool) SpotPrice() *big.Float {
	if p.reserve0.Sign() == 0 {
		return new(big.Float)
	}
	return new(big.Float).Quo(new(big.Float).SetInt(p.reserve1), new(big.Float).SetInt(p.reserve0))
}

// Depth returns the reserve of tokenOut minus the one unit the curve never
// releases
func (p *Pool) Depth(tokenOut common.Address) *big.Int {
	tokenIn, err := dex.Other(p, tokenOut)
	if err != nil {
		return new(big.Int)
	}
	reserveIn, reserveOut, _ := p.orient(tokenIn)
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(reserveOut, big.NewInt(1))
}

// MaxAmountIn returns the input that would fill the uint112 reserve of tokenIn
func (p *Pool) MaxAmountIn(tokenIn common.Address) *big.Int {
	reserveIn, reserveOut, err := p.orient(tokenIn)
	if err != nil || reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(bmath.MaxUint112, reserveIn)
}

// Breakpoints returns nil; the curve is smooth
func (p *Pool) Breakpoints(common.Address) []*big.Int {
	return nil
}

// AmountsOut returns the (amount0Out, amount1Out) argument pair of the pair
// contract's swap for an output of amount in tokenOut
func (p *Pool) AmountsOut(tokenOut common.Address, amount *big.Int) (*big.Int, *big.Int, error) {
	switch tokenOut {
	case p.token0:
		return new(big.Int).Set(amount), new(big.Int), nil
	case p.token1:
		return new(big.Int), new(big.Int).Set(amount), nil
	default:
		return nil, nil, dex.ErrUnknownToken
	}
}

func (p *Pool) orient(tokenIn common.Address) (reserveIn, reserveOut *big.Int, err error) {
	switch tokenIn {
	case p.token0:
		return p.reserve0, p.reserve1, nil
	case p.token1:
		return p.reserve1, p.reserve0, nil
	default:
		return nil, nil, dex.ErrUnknownToken
	}
}

// GetAmountOut calculates output amount for an input amount
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feePips uint32) *big.Int {
	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(1_000_000-feePips)))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(
		new(big.Int).Mul(reserveIn, bmath.PipsDenominator),
		amountInWithFee,
	)
	return numerator.Quo(numerator, denominator)
}

// GetAmountIn calculates input amount for a desired output amount
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int, feePips uint32) *big.Int {
	numerator := new(big.Int).Mul(
		new(big.Int).Mul(reserveIn, amountOut),
		bmath.PipsDenominator,
	)
	denominator := new(big.Int).Mul(
		new(big.Int).Sub(reserveOut, amountOut),
		big.NewInt(int64(1_000_000-feePips)),
	)
	return numerator.Quo(numerator, denominator).Add(numerator, big.NewInt(1))
}

// PairFor calculates the CREATE2 pair address for two tokens
func PairFor(factory common.Address, initCode []byte, tokenA, tokenB common.Address) common.Address {
	token0, token1 := dex.SortTokens(tokenA, tokenB)
	salt := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(crypto.Keccak256([]byte{
		0xff,
	}, factory.Bytes(), salt, initCode)[12:])
}
