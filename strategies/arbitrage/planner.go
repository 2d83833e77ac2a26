package arbitrage

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/contracts"
	"github.com/michaelpento.lv/tierarb/dex"
	"github.com/michaelpento.lv/tierarb/dex/tiered"
	"github.com/michaelpento.lv/tierarb/dex/uniswap"
	"github.com/michaelpento.lv/tierarb/types"
)

// Planner encodes opportunities into settlement contract calls
type Planner struct {
	arbitrageur common.Address
}

// NewPlanner creates a new plan builder for the given settlement contract
func NewPlanner(arbitrageur common.Address) *Planner {
	return &Planner{arbitrageur: arbitrageur}
}

// Build encodes opp. The hub is always called first on-chain; the forward
// amount in its callback payload decides which pool receives tokens first:
//
//	tiered-first:  hub pays the bridge token to the contract, which forwards
//	               it to the pair; the pair pays the profit token back and
//	               the contract settles the hub (forward amount = 0)
//	counter-first: hub pays the profit token to the contract, which forwards
//	               amountIn to the pair; the pair pays the bridge token
//	               straight to the hub (forward amount = amountIn)
func (p *Planner) Build(opp *types.Opportunity) (*types.ExecutionPlan, error) {
	if opp == nil {
		return nil, fmt.Errorf("nil opportunity")
	}
	if opp.Bribe != nil && opp.Bribe.Cmp(opp.GrossProfit) >= 0 {
		return nil, fmt.Errorf("bribe %s does not fit in gross profit %s", opp.Bribe, opp.GrossProfit)
	}

	var (
		hub     *tiered.Pool
		counter *uniswap.Pool
	)
	for _, pool := range []dex.Pool{opp.Source, opp.Destination} {
		switch pool.Kind() {
		case dex.KindTiered:
			hub, _ = pool.(*tiered.Pool)
		case dex.KindConstantProduct:
			counter, _ = pool.(*uniswap.Pool)
		}
	}
	if hub == nil || counter == nil {
		return nil, fmt.Errorf("opportunity needs one tiered and one constant-product pool")
	}
	if opp.TieredFirst != (opp.Source.Kind() == dex.KindTiered) {
		return nil, fmt.Errorf("direction flag does not match source pool")
	}

	var (
		hubTokenIn, hubTokenOut common.Address
		hubAmount               *big.Int
		counterOutToken         common.Address
		counterOutAmount        *big.Int
		counterRecipient        common.Address
		forward                 *big.Int
	)
	if opp.TieredFirst {
		hubTokenIn, hubTokenOut, hubAmount = opp.ProfitToken, opp.BridgeToken, opp.AmountIn
		counterOutToken, counterOutAmount, counterRecipient = opp.ProfitToken, opp.AmountOut, p.arbitrageur
		forward = new(big.Int)
	} else {
		hubTokenIn, hubTokenOut, hubAmount = opp.BridgeToken, opp.ProfitToken, opp.AmountBridge
		counterOutToken, counterOutAmount, counterRecipient = opp.BridgeToken, opp.AmountBridge, hub.Address()
		forward = new(big.Int).Set(opp.AmountIn)
	}

	amount0Out, amount1Out, err := counter.AmountsOut(counterOutToken, counterOutAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to order pair outputs: %w", err)
	}
	counterCall, err := uniswap.PairABI.Pack("swap", amount0Out, amount1Out, counterRecipient, []byte{})
	if err != nil {
		return nil, fmt.Errorf("failed to pack pair swap: %w", err)
	}

	legData, err := contracts.EncodeLegData(contracts.LegData{
		CounterPool:   counter.Address(),
		CounterCall:   counterCall,
		ForwardAmount: forward,
	})
	if err != nil {
		return nil, err
	}

	hubCall, err := tiered.HubABI.Pack("swap", hubTokenIn, hubTokenOut, new(big.Int).Set(hubAmount), p.arbitrageur, legData)
	if err != nil {
		return nil, fmt.Errorf("failed to pack hub swap: %w", err)
	}

	bribe := new(big.Int)
	if opp.Bribe != nil {
		bribe.Set(opp.Bribe)
	}
	minNet := new(big.Int).Set(opp.GrossProfit)

	calldata, err := contracts.ArbitrageurABI.Pack("work", opp.ProfitToken, minNet, bribe, hubCall)
	if err != nil {
		return nil, fmt.Errorf("failed to pack work call: %w", err)
	}

	return &types.ExecutionPlan{
		Target:        p.arbitrageur,
		Calldata:      calldata,
		ProfitToken:   opp.ProfitToken,
		MinNet:        minNet,
		Bribe:         bribe,
		TieredFirst:   opp.TieredFirst,
		HubLeg:        types.Leg{Target: hub.Address(), Data: hubCall},
		CounterLeg:    types.Leg{Target: counter.Address(), Data: counterCall},
		ForwardAmount: forward,
		GasLimit:      opp.GasLimit,
		BlockNumber:   opp.BlockNumber,
		Opportunity:   opp,
	}, nil
}
