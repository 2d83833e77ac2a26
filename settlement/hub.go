package settlement

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/michaelpento.lv/tierarb/contracts"
	"github.com/michaelpento.lv/tierarb/dex/tiered"
	"go.uber.org/zap"
)

// Hub is the singleton contract holding every tiered pool. It pays the
// output first, calls back into the caller and then verifies it was paid.
type Hub struct {
	address common.Address
	pools   map[common.Hash]*tiered.Pool
}

// DeployHub installs an empty hub at address
func DeployHub(env *Env, address common.Address) *Hub {
	h := &Hub{address: address, pools: make(map[common.Hash]*tiered.Pool)}
	env.Deploy(h)
	return h
}

// Address returns the hub address
func (h *Hub) Address() common.Address {
	return h.address
}

// AddPool registers pool and funds the hub with enough of both tokens to
// serve its full depth
func (h *Hub) AddPool(env *Env, pool *tiered.Pool) error {
	if pool.Address() != h.address {
		return fmt.Errorf("pool belongs to hub %s", pool.Address().Hex())
	}
	token0, token1 := pool.Tokens()
	for _, token := range []common.Address{token0, token1} {
		amount, err := U256(pool.Depth(token))
		if err != nil {
			return err
		}
		if err := env.Mint(token, h.address, amount); err != nil {
			return fmt.Errorf("failed to fund hub: %w", err)
		}
	}
	h.pools[pool.ID()] = pool
	return nil
}

// Pool returns the current state of a registered pool
func (h *Hub) Pool(id common.Hash) (*tiered.Pool, bool) {
	p, ok := h.pools[id]
	return p, ok
}

// Clone returns an independent copy of the hub. Pools are immutable values.
func (h *Hub) Clone() Contract {
	return &Hub{address: h.address, pools: h.copyPools()}
}

func (h *Hub) copyPools() map[common.Hash]*tiered.Pool {
	cpy := make(map[common.Hash]*tiered.Pool, len(h.pools))
	for k, v := range h.pools {
		cpy[k] = v
	}
	return cpy
}

func (h *Hub) snapshotState() interface{} {
	return h.copyPools()
}

func (h *Hub) restoreState(s interface{}) {
	h.pools = s.(map[common.Hash]*tiered.Pool)
}

// Call dispatches a hub method
func (h *Hub) Call(env *Env, msg Message) ([]byte, error) {
	method, args, err := contracts.DecodeCall(tiered.HubABI, msg.Data)
	if err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}

	switch method.Name {
	case "getPool":
		id := common.Hash(args[0].([32]byte))
		pool, ok := h.pools[id]
		if !ok {
			return nil, ErrUnknownPool
		}
		return method.Outputs.Pack(pool.SqrtPriceX96(), tiered.ToABI(pool.Tiers()))
	case "swap":
		amountIn, amountOut, err := h.swap(env, msg.Caller,
			args[0].(common.Address),
			args[1].(common.Address),
			args[2].(*big.Int),
			args[3].(common.Address),
			args[4].([]byte))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(amountIn, amountOut)
	}
	return nil, fmt.Errorf("hub: unsupported method %s", method.Name)
}

// swap treats a positive amountDesired as exact input and a negative one as
// exact output
func (h *Hub) swap(env *Env, caller, tokenIn, tokenOut common.Address, amountDesired *big.Int, recipient common.Address, data []byte) (*big.Int, *big.Int, error) {
	if tokenIn == tokenOut || amountDesired.Sign() == 0 {
		return nil, nil, fmt.Errorf("hub: %w", ErrInvalidSwap)
	}
	id := tiered.PoolID(tokenIn, tokenOut)
	pool, ok := h.pools[id]
	if !ok {
		return nil, nil, ErrUnknownPool
	}
	token0, _ := pool.Tokens()
	zeroForOne := tokenIn == token0
	exactIn := amountDesired.Sign() > 0

	res, err := pool.Swap(zeroForOne, new(big.Int).Abs(amountDesired), exactIn)
	if err != nil {
		return nil, nil, fmt.Errorf("hub: %w", err)
	}
	h.pools[id] = pool.WithPrice(res.SqrtPriceAfterX96)

	if err := transferToken(env, h.address, tokenOut, recipient, res.AmountOut); err != nil {
		return nil, nil, err
	}

	before := env.Ledger().BalanceOf(tokenIn, h.address)
	callback, err := contracts.ArbitrageurABI.Pack("swapCallback", tokenIn, tokenOut, res.AmountIn, res.AmountOut, data)
	if err != nil {
		return nil, nil, err
	}
	if _, err := env.Call(h.address, caller, callback, nil); err != nil {
		return nil, nil, fmt.Errorf("swap callback: %w", err)
	}

	owed, err := U256(res.AmountIn)
	if err != nil {
		return nil, nil, err
	}
	required, overflow := new(uint256.Int).AddOverflow(before, owed)
	if overflow || env.Ledger().BalanceOf(tokenIn, h.address).Lt(required) {
		return nil, nil, fmt.Errorf("hub owed %s of %s: %w", res.AmountIn, tokenIn.Hex(), ErrVenueNotPaid)
	}

	env.Emit(h.address, "Swap",
		zap.String("poolId", id.Hex()),
		zap.String("tokenIn", tokenIn.Hex()),
		zap.String("amountIn", res.AmountIn.String()),
		zap.String("amountOut", res.AmountOut.String()),
		zap.String("sqrtPriceX96", res.SqrtPriceAfterX96.String()))
	return res.AmountIn, res.AmountOut, nil
}
