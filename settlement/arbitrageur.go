package settlement

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/michaelpento.lv/tierarb/contracts"
	"go.uber.org/zap"
)

// Phase tracks how far an in-flight trade has progressed
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseLegADispatched
	PhaseCallbackReceived
	PhaseLegBDispatched
	PhaseProfitChecked
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLegADispatched:
		return "leg-a-dispatched"
	case PhaseCallbackReceived:
		return "callback-received"
	case PhaseLegBDispatched:
		return "leg-b-dispatched"
	case PhaseProfitChecked:
		return "profit-checked"
	case PhaseSettled:
		return "settled"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

var transitions = map[Phase][]Phase{
	PhaseIdle:             {PhaseLegADispatched},
	PhaseLegADispatched:   {PhaseCallbackReceived, PhaseProfitChecked},
	PhaseCallbackReceived: {PhaseLegBDispatched},
	PhaseLegBDispatched:   {PhaseProfitChecked},
	PhaseProfitChecked:    {PhaseSettled},
}

// inflight is the transient context of the trade being settled. It only
// exists for the duration of a work call.
type inflight struct {
	profitToken   common.Address
	balanceBefore *uint256.Int
	phase         Phase
}

type arbitrageurState struct {
	executors map[common.Address]bool
}

// Arbitrageur is the settlement contract. One work call drives both legs
// through the hub callback and reverts unless the profit token balance grew
// by at least the requested minimum.
type Arbitrageur struct {
	address common.Address
	hub     common.Address
	weth    common.Address
	policy  *Policy
	flight  *inflight
	logger  *zap.Logger
}

// NewArbitrageur creates a new settlement contract
func NewArbitrageur(address, owner, mainExecutor, hub, weth common.Address, logger *zap.Logger) *Arbitrageur {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Arbitrageur{
		address: address,
		hub:     hub,
		weth:    weth,
		policy:  NewPolicy(owner, mainExecutor),
		logger:  logger,
	}
}

// Address returns the contract address
func (a *Arbitrageur) Address() common.Address {
	return a.address
}

// Policy returns the contract's authorization policy
func (a *Arbitrageur) Policy() *Policy {
	return a.policy
}

// Clone returns an independent copy with the same executors
func (a *Arbitrageur) Clone() Contract {
	cpy := *a
	cpy.policy = &Policy{owner: a.policy.owner, mainExecutor: a.policy.mainExecutor, executors: a.policy.snapshot()}
	cpy.flight = nil
	return &cpy
}

func (a *Arbitrageur) snapshotState() interface{} {
	return arbitrageurState{executors: a.policy.snapshot()}
}

func (a *Arbitrageur) restoreState(s interface{}) {
	a.policy.restore(s.(arbitrageurState).executors)
}

// Call dispatches a settlement contract method. Empty calldata is a plain
// ETH transfer and is accepted.
func (a *Arbitrageur) Call(env *Env, msg Message) ([]byte, error) {
	if len(msg.Data) == 0 {
		return nil, nil
	}
	method, args, err := contracts.DecodeCall(contracts.ArbitrageurABI, msg.Data)
	if err != nil {
		return nil, fmt.Errorf("arbitrageur: %w", err)
	}
	if !msg.Value.IsZero() && method.Name != "multicall" {
		return nil, fmt.Errorf("arbitrageur: %s is not payable", method.Name)
	}

	switch method.Name {
	case "work":
		if err := a.policy.Authorize(msg.Caller, OpWork); err != nil {
			return nil, err
		}
		profit, err := a.work(env, msg.Self,
			args[0].(common.Address),
			args[1].(*big.Int),
			args[2].(*big.Int),
			args[3].([]byte))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(profit)

	case "swapCallback":
		return nil, a.swapCallback(env, msg,
			args[0].(common.Address),
			args[1].(common.Address),
			args[2].(*big.Int),
			args[3].(*big.Int),
			args[4].([]byte))

	case "setExecutor":
		executor, enabled := args[0].(common.Address), args[1].(bool)
		if err := a.policy.SetExecutor(msg.Caller, executor, enabled); err != nil {
			return nil, err
		}
		env.Emit(msg.Self, "ExecutorSet", zap.String("executor", executor.Hex()), zap.Bool("enabled", enabled))
		return nil, nil

	case "isExecutor":
		return method.Outputs.Pack(a.policy.IsExecutor(args[0].(common.Address)))

	case "multicall":
		if err := a.policy.Authorize(msg.Caller, OpMulticall); err != nil {
			return nil, err
		}
		calls := *abi.ConvertType(args[1], new([]contracts.Call)).(*[]contracts.Call)
		successes, results, err := a.multicall(env, msg, args[0].(bool), calls)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(successes, results)
	}
	return nil, fmt.Errorf("arbitrageur: unsupported method %s", method.Name)
}

func (a *Arbitrageur) advance(env *Env, self common.Address, to Phase) error {
	from := a.flight.phase
	for _, next := range transitions[from] {
		if next == to {
			a.flight.phase = to
			env.Emit(self, "Phase", zap.Stringer("phase", to))
			return nil
		}
	}
	return fmt.Errorf("invalid phase transition %s -> %s", from, to)
}

func (a *Arbitrageur) work(env *Env, self, profitToken common.Address, minNet, bribe *big.Int, data []byte) (*big.Int, error) {
	if a.flight != nil {
		return nil, ErrReentrantWork
	}
	minimum, err := U256(minNet)
	if err != nil {
		return nil, err
	}
	bribeAmount, err := U256(bribe)
	if err != nil {
		return nil, err
	}

	a.flight = &inflight{
		profitToken:   profitToken,
		balanceBefore: env.Ledger().BalanceOf(profitToken, self),
	}
	defer func() { a.flight = nil }()

	err = a.settle(env, self, minimum, bribeAmount, data)
	if err != nil {
		a.logger.Debug("Settlement reverted",
			zap.Stringer("phase", a.flight.phase),
			zap.Error(err))
		return nil, fmt.Errorf("reverted after %s: %w", a.flight.phase, err)
	}

	profit, underflow := new(uint256.Int).SubOverflow(env.Ledger().BalanceOf(profitToken, self), a.flight.balanceBefore)
	if underflow {
		// the bribe was unwrapped from the profit token itself
		return new(big.Int), nil
	}
	return profit.ToBig(), nil
}

func (a *Arbitrageur) settle(env *Env, self common.Address, minNet, bribe *uint256.Int, data []byte) error {
	if err := a.advance(env, self, PhaseLegADispatched); err != nil {
		return err
	}
	if _, err := env.Call(self, a.hub, data, nil); err != nil {
		return fmt.Errorf("hub call: %w", err)
	}

	after := env.Ledger().BalanceOf(a.flight.profitToken, self)
	required, overflow := new(uint256.Int).AddOverflow(a.flight.balanceBefore, minNet)
	if overflow || after.Lt(required) {
		return fmt.Errorf("balance %s below required %s: %w", after.Dec(), required.Dec(), ErrProfitInvariantViolated)
	}
	if err := a.advance(env, self, PhaseProfitChecked); err != nil {
		return err
	}

	if !bribe.IsZero() {
		if err := a.payBribe(env, self, bribe); err != nil {
			return fmt.Errorf("%w: %v", ErrBribeFundingFailed, err)
		}
	}
	return a.advance(env, self, PhaseSettled)
}

// payBribe pays the block builder in native ETH, unwrapping WETH for
// whatever the contract's ETH balance does not cover
func (a *Arbitrageur) payBribe(env *Env, self common.Address, bribe *uint256.Int) error {
	native := env.Ledger().NativeBalance(self)
	if native.Lt(bribe) {
		short := new(uint256.Int).Sub(bribe, native)
		data, err := contracts.TokenABI.Pack("withdraw", short.ToBig())
		if err != nil {
			return err
		}
		if _, err := env.Call(self, a.weth, data, nil); err != nil {
			return fmt.Errorf("unwrap %s: %w", short.Dec(), err)
		}
	}
	if _, err := env.Call(self, env.Coinbase(), nil, bribe); err != nil {
		return fmt.Errorf("pay coinbase: %w", err)
	}
	env.Emit(self, "Bribe", zap.String("coinbase", env.Coinbase().Hex()), zap.String("amount", bribe.Dec()))
	return nil
}

// swapCallback settles the hub. When the forward amount is zero the bridge
// token received from the hub is sent on to the pair, whose output repays
// the hub; otherwise the forward amount of the profit token buys the bridge
// token from the pair straight into the hub.
func (a *Arbitrageur) swapCallback(env *Env, msg Message, tokenToVenue, tokenFromVenue common.Address, amountToVenue, amountFromVenue *big.Int, data []byte) error {
	if msg.Caller != a.hub || a.flight == nil {
		return ErrUnauthorizedCallback
	}
	if err := a.advance(env, msg.Self, PhaseCallbackReceived); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorizedCallback, err)
	}

	leg, err := contracts.DecodeLegData(data)
	if err != nil {
		return err
	}

	if leg.ForwardAmount.Sign() == 0 {
		if err := transferToken(env, msg.Self, tokenFromVenue, leg.CounterPool, amountFromVenue); err != nil {
			return err
		}
		if err := a.advance(env, msg.Self, PhaseLegBDispatched); err != nil {
			return err
		}
		if _, err := env.Call(msg.Self, leg.CounterPool, leg.CounterCall, nil); err != nil {
			return fmt.Errorf("counter leg: %w", err)
		}
		return transferToken(env, msg.Self, tokenToVenue, a.hub, amountToVenue)
	}

	if err := transferToken(env, msg.Self, tokenFromVenue, leg.CounterPool, leg.ForwardAmount); err != nil {
		return err
	}
	if err := a.advance(env, msg.Self, PhaseLegBDispatched); err != nil {
		return err
	}
	if _, err := env.Call(msg.Self, leg.CounterPool, leg.CounterCall, nil); err != nil {
		return fmt.Errorf("counter leg: %w", err)
	}
	return nil
}

// multicall runs owner maintenance batches. Failed calls are reported in
// place unless requireSuccess is set, in which case the whole batch reverts.
func (a *Arbitrageur) multicall(env *Env, msg Message, requireSuccess bool, calls []contracts.Call) ([]bool, [][]byte, error) {
	successes := make([]bool, len(calls))
	results := make([][]byte, len(calls))

	for i, c := range calls {
		var (
			ret []byte
			err error
		)
		if c.Delegate {
			ret, err = env.DelegateCall(msg.Self, msg.Caller, c.Target, c.Data)
		} else {
			var value *uint256.Int
			value, err = U256(c.Value)
			if err == nil {
				ret, err = env.Call(msg.Self, c.Target, c.Data, value)
			}
		}
		if err != nil {
			if requireSuccess {
				return nil, nil, fmt.Errorf("call %d to %s: %w", i, c.Target.Hex(), err)
			}
			results[i] = []byte(err.Error())
			continue
		}
		successes[i] = true
		if ret == nil {
			ret = []byte{}
		}
		results[i] = ret
	}
	return successes, results, nil
}
