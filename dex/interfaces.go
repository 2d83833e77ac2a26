package dex

import (
	"bytes"
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInsufficientLiquidity is returned when a quote asks for more than the
// pool can provide across all of its reserves or tiers
var ErrInsufficientLiquidity = errors.New("insufficient liquidity")

// ErrUnknownToken is returned when a token is not one of the pool's pair
var ErrUnknownToken = errors.New("token not in pool")

// Kind tags the pricing curve of a pool
type Kind uint8

const (
	KindConstantProduct Kind = iota + 1
	KindTiered
)

func (k Kind) String() string {
	switch k {
	case KindConstantProduct:
		return "constant-product"
	case KindTiered:
		return "tiered"
	default:
		return "unknown"
	}
}

// Pool is an immutable per-block snapshot of a liquidity venue for one token
// pair. Every variant exposes the same quoting capabilities.
type Pool interface {
	// Kind returns the curve variant
	Kind() Kind

	// Address returns the venue contract that executes swaps for this pool
	Address() common.Address

	// Tokens returns the pair sorted by address
	Tokens() (token0, token1 common.Address)

	// QuoteExactIn returns the output for an exact input amount
	QuoteExactIn(tokenIn common.Address, amountIn *big.Int) (*big.Int, error)

	// QuoteExactOut returns the input required for an exact output amount
	QuoteExactOut(tokenOut common.Address, amountOut *big.Int) (*big.Int, error)

	// SpotPrice returns the marginal price of token0 in token1 raw units
	SpotPrice() *big.Float

	// Depth returns the largest amount of tokenOut the pool can pay out
	Depth(tokenOut common.Address) *big.Int

	// MaxAmountIn returns the largest input the pool can quote
	MaxAmountIn(tokenIn common.Address) *big.Int

	// Breakpoints returns cumulative input amounts at which the swap
	// crosses a boundary of the curve, in ascending order
	Breakpoints(tokenIn common.Address) []*big.Int
}

// Source reads a pool snapshot at a given block
type Source interface {
	// Name identifies the source in logs and metrics
	Name() string

	// Fetch returns the pool state as of blockNumber, or latest if nil
	Fetch(ctx context.Context, blockNumber *big.Int) (Pool, error)
}

// Other returns the token of the pool's pair that is not token
func Other(p Pool, token common.Address) (common.Address, error) {
	t0, t1 := p.Tokens()
	switch token {
	case t0:
		return t1, nil
	case t1:
		return t0, nil
	default:
		return common.Address{}, ErrUnknownToken
	}
}

// SortTokens orders two token addresses the way pair contracts do
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(b[:], a[:]) < 0 {
		return b, a
	}
	return a, b
}
