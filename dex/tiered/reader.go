package tiered

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/dex"
)

// Hub contract ABI
const HubABIJson = `[{
	"inputs": [{"name": "poolId", "type": "bytes32"}],
	"name": "getPool",
	"outputs": [
		{"name": "sqrtPriceX96", "type": "uint160"},
		{"name": "tiers", "type": "tuple[]", "components": [
			{"name": "liquidity", "type": "uint128"},
			{"name": "sqrtPriceLowerX96", "type": "uint160"},
			{"name": "sqrtPriceUpperX96", "type": "uint160"},
			{"name": "feePips", "type": "uint24"}
		]}
	],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [
		{"name": "tokenIn", "type": "address"},
		{"name": "tokenOut", "type": "address"},
		{"name": "amountDesired", "type": "int256"},
		{"name": "recipient", "type": "address"},
		{"name": "data", "type": "bytes"}
	],
	"name": "swap",
	"outputs": [
		{"name": "amountIn", "type": "uint256"},
		{"name": "amountOut", "type": "uint256"}
	],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// HubABI is the parsed hub contract ABI
var HubABI = mustParseABI(HubABIJson)

// TierABI mirrors the hub's tier tuple
type TierABI struct {
	Liquidity         *big.Int
	SqrtPriceLowerX96 *big.Int
	SqrtPriceUpperX96 *big.Int
	FeePips           *big.Int
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse hub ABI: %v", err))
	}
	return parsed
}

// ToABI converts tiers into the hub's tuple layout
func ToABI(tiers []Tier) []TierABI {
	out := make([]TierABI, len(tiers))
	for i, t := range tiers {
		out[i] = TierABI{
			Liquidity:         t.Liquidity,
			SqrtPriceLowerX96: t.SqrtPriceLowerX96,
			SqrtPriceUpperX96: t.SqrtPriceUpperX96,
			FeePips:           big.NewInt(int64(t.FeePips)),
		}
	}
	return out
}

// FromABI converts the hub's tuple layout into tiers
func FromABI(raw []TierABI) []Tier {
	out := make([]Tier, len(raw))
	for i, t := range raw {
		out[i] = Tier{
			Liquidity:         t.Liquidity,
			SqrtPriceLowerX96: t.SqrtPriceLowerX96,
			SqrtPriceUpperX96: t.SqrtPriceUpperX96,
			FeePips:           uint32(t.FeePips.Uint64()),
		}
	}
	return out
}

// HubReader reads one pair's tiered pool from the hub contract
type HubReader struct {
	contract *bind.BoundContract
	hub      common.Address
	token0   common.Address
	token1   common.Address
}

// NewHubReader creates a new HubReader for the tokenA/tokenB pool
func NewHubReader(hub, tokenA, tokenB common.Address, caller bind.ContractCaller) *HubReader {
	token0, token1 := dex.SortTokens(tokenA, tokenB)
	return &HubReader{
		contract: bind.NewBoundContract(hub, HubABI, caller, nil, nil),
		hub:      hub,
		token0:   token0,
		token1:   token1,
	}
}

// Name returns a label for logs and metrics
func (r *HubReader) Name() string {
	return fmt.Sprintf("tiered:%s:%s/%s", r.hub.Hex(), r.token0.Hex(), r.token1.Hex())
}

// Fetch returns the pool state at blockNumber
func (r *HubReader) Fetch(ctx context.Context, blockNumber *big.Int) (dex.Pool, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, BlockNumber: blockNumber}
	if err := r.contract.Call(opts, &out, "getPool", PoolID(r.token0, r.token1)); err != nil {
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("unexpected getPool output length %d", len(out))
	}

	sqrtPrice, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse sqrt price")
	}
	raw, ok := abi.ConvertType(out[1], new([]TierABI)).(*[]TierABI)
	if !ok {
		return nil, fmt.Errorf("failed to parse tiers")
	}

	return NewPool(r.hub, r.token0, r.token1, sqrtPrice, FromABI(*raw))
}
