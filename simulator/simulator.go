package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/contracts"
	"github.com/michaelpento.lv/tierarb/dex"
	"github.com/michaelpento.lv/tierarb/dex/tiered"
	"github.com/michaelpento.lv/tierarb/dex/uniswap"
	"github.com/michaelpento.lv/tierarb/settlement"
	"github.com/michaelpento.lv/tierarb/types"
	"go.uber.org/zap"
)

// ErrProfitMismatch is returned when a plan settles but its realized profit
// is not the one the evaluator predicted
var ErrProfitMismatch = errors.New("realized profit differs from prediction")

// Deployment names the on-chain accounts a plan runs against
type Deployment struct {
	Arbitrageur common.Address
	Owner       common.Address
	Executor    common.Address
	WETH        common.Address
	Coinbase    common.Address
}

// SimulationResult represents the result of a plan dry run
type SimulationResult struct {
	Success bool
	Error   error

	// Profit is what work returned: the profit token gain after the bribe
	Profit   *big.Int
	Expected *big.Int
	// BribePaid is the native balance gained by the coinbase
	BribePaid *big.Int
	Logs      []settlement.Log
}

// Simulator dry-runs execution plans against the settlement contract
type Simulator struct {
	dep    Deployment
	logger *zap.Logger
}

// NewSimulator creates a new plan simulator
func NewSimulator(dep Deployment, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{dep: dep, logger: logger}
}

// Build deploys the plan's tokens, both venues and the settlement contract
// into a fresh environment holding exactly the snapshotted pool state
func (s *Simulator) Build(blockNumber uint64, opp *types.Opportunity) (*settlement.Env, error) {
	var (
		counter *uniswap.Pool
		hub     *tiered.Pool
	)
	for _, pool := range []dex.Pool{opp.Source, opp.Destination} {
		switch p := pool.(type) {
		case *uniswap.Pool:
			counter = p
		case *tiered.Pool:
			hub = p
		}
	}
	if counter == nil || hub == nil {
		return nil, fmt.Errorf("opportunity needs one tiered and one constant-product pool")
	}

	env := settlement.NewEnv(s.dep.Coinbase, blockNumber, s.logger)

	token0, token1 := counter.Tokens()
	for _, token := range []common.Address{token0, token1} {
		if token == s.dep.WETH {
			env.Deploy(settlement.NewWETH(token))
		} else {
			env.Deploy(settlement.NewToken(token, "TOKEN", 18))
		}
	}

	if _, err := settlement.DeployPair(env, counter); err != nil {
		return nil, fmt.Errorf("failed to deploy pair: %w", err)
	}
	h := settlement.DeployHub(env, hub.Address())
	if err := h.AddPool(env, hub); err != nil {
		return nil, fmt.Errorf("failed to deploy hub pool: %w", err)
	}

	env.Deploy(settlement.NewArbitrageur(s.dep.Arbitrageur, s.dep.Owner, s.dep.Executor, hub.Address(), s.dep.WETH, s.logger))
	return env, nil
}

// SimulatePlan builds an environment from the plan's snapshots and runs it
func (s *Simulator) SimulatePlan(ctx context.Context, plan *types.ExecutionPlan) (*SimulationResult, error) {
	if plan.Opportunity == nil {
		return nil, fmt.Errorf("plan carries no opportunity")
	}
	env, err := s.Build(plan.BlockNumber, plan.Opportunity)
	if err != nil {
		return nil, err
	}
	return s.SimulateOn(ctx, env, plan)
}

// SimulateOn runs plan from the executor against a fork of env, which is
// left untouched. A revert is reported in the result, not as an error; the
// error is set only when the simulation itself could not run.
func (s *Simulator) SimulateOn(ctx context.Context, env *settlement.Env, plan *types.ExecutionPlan) (*SimulationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fork, err := env.Fork()
	if err != nil {
		return nil, fmt.Errorf("failed to fork environment: %w", err)
	}

	expected := new(big.Int).Set(plan.MinNet)
	if plan.Bribe != nil {
		expected.Sub(expected, plan.Bribe)
	}
	result := &SimulationResult{Expected: expected}

	coinbaseBefore := fork.Ledger().NativeBalance(fork.Coinbase())
	receipt := fork.Transact(s.dep.Executor, plan.Target, plan.Calldata, nil)
	if !receipt.Success {
		result.Error = receipt.Err
		s.logger.Debug("Plan reverted in simulation",
			zap.Uint64("block", plan.BlockNumber),
			zap.Error(receipt.Err))
		return result, nil
	}
	result.Logs = receipt.Logs

	out, err := contracts.ArbitrageurABI.Unpack("work", receipt.ReturnData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode work result: %w", err)
	}
	profit, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse work result")
	}
	result.Profit = profit

	coinbaseAfter := fork.Ledger().NativeBalance(fork.Coinbase())
	result.BribePaid = new(big.Int).Sub(coinbaseAfter.ToBig(), coinbaseBefore.ToBig())

	if profit.Cmp(expected) != 0 {
		result.Error = fmt.Errorf("%w: realized %s, expected %s", ErrProfitMismatch, profit, expected)
		return result, nil
	}

	result.Success = true
	return result, nil
}
