package settlement

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/contracts"
	"github.com/michaelpento.lv/tierarb/dex"
	"github.com/michaelpento.lv/tierarb/dex/uniswap"
	bmath "github.com/michaelpento.lv/tierarb/utils/math"
	"go.uber.org/zap"
)

// Pair is a constant-product pair contract. Outputs are paid optimistically
// and the fee-adjusted product of the new balances must not shrink.
type Pair struct {
	address  common.Address
	token0   common.Address
	token1   common.Address
	feePips  uint32
	reserve0 *big.Int
	reserve1 *big.Int
}

type pairState struct {
	reserve0, reserve1 *big.Int
}

// DeployPair installs a pair mirroring pool and funds it with the pool's
// reserves
func DeployPair(env *Env, pool *uniswap.Pool) (*Pair, error) {
	token0, token1 := pool.Tokens()
	r0, r1 := pool.Reserves()
	p := &Pair{
		address:  pool.Address(),
		token0:   token0,
		token1:   token1,
		feePips:  pool.FeePips(),
		reserve0: new(big.Int).Set(r0),
		reserve1: new(big.Int).Set(r1),
	}
	env.Deploy(p)

	for _, seed := range []struct {
		token  common.Address
		amount *big.Int
	}{{token0, r0}, {token1, r1}} {
		amount, err := U256(seed.amount)
		if err != nil {
			return nil, err
		}
		if err := env.Mint(seed.token, p.address, amount); err != nil {
			return nil, fmt.Errorf("failed to fund pair: %w", err)
		}
	}
	return p, nil
}

// Address returns the pair address
func (p *Pair) Address() common.Address {
	return p.address
}

// Clone returns an independent copy of the pair
func (p *Pair) Clone() Contract {
	cpy := *p
	cpy.reserve0 = new(big.Int).Set(p.reserve0)
	cpy.reserve1 = new(big.Int).Set(p.reserve1)
	return &cpy
}

// Snapshot returns the pair's current state as a quoting snapshot
func (p *Pair) Snapshot() (*uniswap.Pool, error) {
	return uniswap.NewPool(p.address, p.token0, p.token1, p.reserve0, p.reserve1, p.feePips)
}

func (p *Pair) snapshotState() interface{} {
	return pairState{new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)}
}

func (p *Pair) restoreState(s interface{}) {
	st := s.(pairState)
	p.reserve0, p.reserve1 = st.reserve0, st.reserve1
}

// Call dispatches a pair method
func (p *Pair) Call(env *Env, msg Message) ([]byte, error) {
	method, args, err := contracts.DecodeCall(uniswap.PairABI, msg.Data)
	if err != nil {
		return nil, fmt.Errorf("pair: %w", err)
	}

	switch method.Name {
	case "getReserves":
		return method.Outputs.Pack(new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1), uint32(env.BlockNumber()))
	case "token0":
		return method.Outputs.Pack(p.token0)
	case "token1":
		return method.Outputs.Pack(p.token1)
	case "swap":
		data := args[3].([]byte)
		if len(data) > 0 {
			return nil, fmt.Errorf("pair: flash swap callbacks are not supported")
		}
		return nil, p.swap(env, args[0].(*big.Int), args[1].(*big.Int), args[2].(common.Address))
	}
	return nil, fmt.Errorf("pair: unsupported method %s", method.Name)
}

func (p *Pair) swap(env *Env, amount0Out, amount1Out *big.Int, to common.Address) error {
	if amount0Out.Sign() == 0 && amount1Out.Sign() == 0 {
		return fmt.Errorf("pair: %w: no output requested", ErrInvalidSwap)
	}
	if amount0Out.Cmp(p.reserve0) >= 0 || amount1Out.Cmp(p.reserve1) >= 0 {
		return dex.ErrInsufficientLiquidity
	}
	if to == p.token0 || to == p.token1 {
		return fmt.Errorf("pair: %w: recipient is a pool token", ErrInvalidSwap)
	}

	if amount0Out.Sign() > 0 {
		if err := transferToken(env, p.address, p.token0, to, amount0Out); err != nil {
			return err
		}
	}
	if amount1Out.Sign() > 0 {
		if err := transferToken(env, p.address, p.token1, to, amount1Out); err != nil {
			return err
		}
	}

	balance0 := env.Ledger().BalanceOf(p.token0, p.address).ToBig()
	balance1 := env.Ledger().BalanceOf(p.token1, p.address).ToBig()
	amount0In := amountIn(balance0, p.reserve0, amount0Out)
	amount1In := amountIn(balance1, p.reserve1, amount1Out)
	if amount0In.Sign() == 0 && amount1In.Sign() == 0 {
		return fmt.Errorf("pair: %w: no input received", ErrInvalidSwap)
	}

	fee := big.NewInt(int64(p.feePips))
	adjusted0 := new(big.Int).Sub(new(big.Int).Mul(balance0, bmath.PipsDenominator), new(big.Int).Mul(amount0In, fee))
	adjusted1 := new(big.Int).Sub(new(big.Int).Mul(balance1, bmath.PipsDenominator), new(big.Int).Mul(amount1In, fee))
	kBefore := new(big.Int).Mul(p.reserve0, p.reserve1)
	kBefore.Mul(kBefore, new(big.Int).Mul(bmath.PipsDenominator, bmath.PipsDenominator))
	if new(big.Int).Mul(adjusted0, adjusted1).Cmp(kBefore) < 0 {
		return ErrKInvariant
	}

	p.reserve0, p.reserve1 = balance0, balance1
	env.Emit(p.address, "Swap",
		zap.String("amount0In", amount0In.String()),
		zap.String("amount1In", amount1In.String()),
		zap.String("amount0Out", amount0Out.String()),
		zap.String("amount1Out", amount1Out.String()),
		zap.String("to", to.Hex()))
	return nil
}

// amountIn is whatever the balance holds beyond the reserve left after the
// output
func amountIn(balance, reserve, out *big.Int) *big.Int {
	left := new(big.Int).Sub(reserve, out)
	if balance.Cmp(left) > 0 {
		return new(big.Int).Sub(balance, left)
	}
	return new(big.Int)
}
