package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Settlement contract ABI
const ArbitrageurABIJson = `[{
	"inputs": [
		{"name": "profitToken", "type": "address"},
		{"name": "minNet", "type": "uint256"},
		{"name": "bribe", "type": "uint256"},
		{"name": "data", "type": "bytes"}
	],
	"name": "work",
	"outputs": [{"name": "profit", "type": "uint256"}],
	"stateMutability": "nonpayable",
	"type": "function"
}, {
	"inputs": [
		{"name": "tokenToVenue", "type": "address"},
		{"name": "tokenFromVenue", "type": "address"},
		{"name": "amountToVenue", "type": "uint256"},
		{"name": "amountFromVenue", "type": "uint256"},
		{"name": "data", "type": "bytes"}
	],
	"name": "swapCallback",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}, {
	"inputs": [
		{"name": "executor", "type": "address"},
		{"name": "enabled", "type": "bool"}
	],
	"name": "setExecutor",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}, {
	"inputs": [{"name": "account", "type": "address"}],
	"name": "isExecutor",
	"outputs": [{"name": "", "type": "bool"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [
		{"name": "requireSuccess", "type": "bool"},
		{"name": "calls", "type": "tuple[]", "components": [
			{"name": "target", "type": "address"},
			{"name": "data", "type": "bytes"},
			{"name": "value", "type": "uint256"},
			{"name": "delegate", "type": "bool"}
		]}
	],
	"name": "multicall",
	"outputs": [
		{"name": "successes", "type": "bool[]"},
		{"name": "results", "type": "bytes[]"}
	],
	"stateMutability": "payable",
	"type": "function"
}]`

// ERC20 subset plus the WETH wrapping methods
const WETHABIJson = `[{
	"inputs": [
		{"name": "to", "type": "address"},
		{"name": "amount", "type": "uint256"}
	],
	"name": "transfer",
	"outputs": [{"name": "", "type": "bool"}],
	"stateMutability": "nonpayable",
	"type": "function"
}, {
	"inputs": [{"name": "account", "type": "address"}],
	"name": "balanceOf",
	"outputs": [{"name": "", "type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [],
	"name": "decimals",
	"outputs": [{"name": "", "type": "uint8"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [],
	"name": "symbol",
	"outputs": [{"name": "", "type": "string"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [],
	"name": "deposit",
	"outputs": [],
	"stateMutability": "payable",
	"type": "function"
}, {
	"inputs": [{"name": "amount", "type": "uint256"}],
	"name": "withdraw",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

var (
	// ArbitrageurABI is the parsed settlement contract ABI
	ArbitrageurABI = mustParse(ArbitrageurABIJson)

	// TokenABI covers plain ERC20 tokens and WETH
	TokenABI = mustParse(WETHABIJson)

	legDataArgs = mustArguments("address", "bytes", "uint256")
)

// Call is one entry of a multicall batch
type Call struct {
	Target   common.Address
	Data     []byte
	Value    *big.Int
	Delegate bool
}

// LegData is the payload the hub hands back to the settlement contract in
// its callback. A zero ForwardAmount selects the tiered-first flow.
type LegData struct {
	CounterPool   common.Address
	CounterCall   []byte
	ForwardAmount *big.Int
}

// EncodeLegData packs the callback payload
func EncodeLegData(d LegData) ([]byte, error) {
	forward := d.ForwardAmount
	if forward == nil {
		forward = new(big.Int)
	}
	data, err := legDataArgs.Pack(d.CounterPool, d.CounterCall, forward)
	if err != nil {
		return nil, fmt.Errorf("failed to pack leg data: %w", err)
	}
	return data, nil
}

// DecodeLegData unpacks the callback payload
func DecodeLegData(raw []byte) (*LegData, error) {
	out, err := legDataArgs.Unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack leg data: %w", err)
	}
	pool, ok := out[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("failed to parse counter pool")
	}
	call, ok := out[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("failed to parse counter call")
	}
	forward, ok := out[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse forward amount")
	}
	return &LegData{CounterPool: pool, CounterCall: call, ForwardAmount: forward}, nil
}

// DecodeCall resolves the method of an ABI call and unpacks its arguments
func DecodeCall(contract abi.ABI, data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	method, err := contract.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unpack %s arguments: %w", method.Name, err)
	}
	return method, args, nil
}

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ABI: %v", err))
	}
	return parsed
}

func mustArguments(kinds ...string) abi.Arguments {
	args := make(abi.Arguments, len(kinds))
	for i, k := range kinds {
		typ, err := abi.NewType(k, "", nil)
		if err != nil {
			panic(fmt.Sprintf("failed to build ABI type %s: %v", k, err))
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}
