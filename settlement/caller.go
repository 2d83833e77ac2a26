package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Caller serves read-only contract calls from an env so the on-chain pool
// readers can run against simulated state
type Caller struct {
	env *Env
}

// NewCaller creates a new bind.ContractCaller backed by env
func NewCaller(env *Env) *Caller {
	return &Caller{env: env}
}

// CodeAt returns a non-empty placeholder for addresses with a contract
func (c *Caller) CodeAt(_ context.Context, contract common.Address, _ *big.Int) ([]byte, error) {
	if _, ok := c.env.Contract(contract); ok {
		return []byte{0x01}, nil
	}
	return nil, nil
}

// CallContract executes call and discards every state change it made
func (c *Caller) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if call.To == nil {
		return nil, fmt.Errorf("contract creation is not supported")
	}
	value, err := U256(call.Value)
	if err != nil {
		return nil, err
	}

	f := c.env.begin()
	defer f.release()
	return c.env.Call(call.From, *call.To, call.Data, value)
}
