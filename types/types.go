package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/dex"
)

// Opportunity is the best trade found between two pools for one block
type Opportunity struct {
	Token0      common.Address
	Token1      common.Address
	ProfitToken common.Address
	BridgeToken common.Address

	// Source is entered first with the profit token, Destination returns it
	Source      dex.Pool
	Destination dex.Pool
	TieredFirst bool

	AmountIn     *big.Int
	AmountBridge *big.Int
	AmountOut    *big.Int
	GrossProfit  *big.Int
	GasLimit     uint64
	GasCost      *big.Int
	Bribe        *big.Int
	NetProfit    *big.Int
	BlockNumber  uint64
}

// Direction names the pool entered first
func (o *Opportunity) Direction() string {
	if o.TieredFirst {
		return "tiered-first"
	}
	return "counter-first"
}

// Leg is one sub-call of an execution plan
type Leg struct {
	Target common.Address
	Data   []byte
}

// ExecutionPlan is an opportunity encoded for the settlement contract
type ExecutionPlan struct {
	// Target is the settlement contract and Calldata its work call
	Target   common.Address
	Calldata []byte

	ProfitToken   common.Address
	MinNet        *big.Int
	Bribe         *big.Int
	TieredFirst   bool
	HubLeg        Leg
	CounterLeg    Leg
	ForwardAmount *big.Int
	GasLimit      uint64
	BlockNumber   uint64

	Opportunity *Opportunity
}

// Legs returns the sub-calls in the order tokens flow through them
func (p *ExecutionPlan) Legs() []Leg {
	if p.TieredFirst {
		return []Leg{p.HubLeg, p.CounterLeg}
	}
	return []Leg{p.CounterLeg, p.HubLeg}
}
