package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/dex"
)

// Pair contract ABI
const PairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token0",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token1",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [
		{"name": "amount0Out", "type": "uint256"},
		{"name": "amount1Out", "type": "uint256"},
		{"name": "to", "type": "address"},
		{"name": "data", "type": "bytes"}
	],
	"name": "swap",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// PairABI is the parsed pair contract ABI
var PairABI = mustParseABI(PairABIJson)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse pair ABI: %v", err))
	}
	return parsed
}

// PairReader reads constant-product snapshots from a pair contract
type PairReader struct {
	contract *bind.BoundContract
	address  common.Address
	feePips  uint32

	mu     sync.Mutex
	token0 common.Address
	token1 common.Address
}

// NewPairReader creates a new PairReader instance
func NewPairReader(address common.Address, caller bind.ContractCaller, feePips uint32) *PairReader {
	return &PairReader{
		contract: bind.NewBoundContract(address, PairABI, caller, nil, nil),
		address:  address,
		feePips:  feePips,
	}
}

// Name returns a label for logs and metrics
func (r *PairReader) Name() string {
	return "uniswap-v2:" + r.address.Hex()
}

// Fetch returns the pair state at blockNumber
func (r *PairReader) Fetch(ctx context.Context, blockNumber *big.Int) (dex.Pool, error) {
	opts := &bind.CallOpts{Context: ctx, BlockNumber: blockNumber}

	token0, token1, err := r.tokens(opts)
	if err != nil {
		return nil, err
	}

	reserve0, reserve1, err := r.GetReserves(opts)
	if err != nil {
		return nil, err
	}

	return NewPool(r.address, token0, token1, reserve0, reserve1, r.feePips)
}

// GetReserves returns the current reserves of the pair
func (r *PairReader) GetReserves(opts *bind.CallOpts) (reserve0 *big.Int, reserve1 *big.Int, err error) {
	var out []interface{}
	err = r.contract.Call(opts, &out, "getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get reserves: %w", err)
	}

	reserve0, ok := out[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse reserve0")
	}
	reserve1, ok = out[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse reserve1")
	}

	return reserve0, reserve1, nil
}

// tokens reads token0/token1 once; they never change for a pair
func (r *PairReader) tokens(opts *bind.CallOpts) (common.Address, common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token0 != (common.Address{}) {
		return r.token0, r.token1, nil
	}

	token0, err := r.address0(opts, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := r.address0(opts, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}

	r.token0, r.token1 = token0, token1
	return token0, token1, nil
}

func (r *PairReader) address0(opts *bind.CallOpts, method string) (common.Address, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, method); err != nil {
		return common.Address{}, fmt.Errorf("failed to get %s: %w", method, err)
	}

	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse %s address", method)
	}

	return addr, nil
}
