package settlement

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

const maxCallDepth = 64

// Message is a single contract invocation. Self is the account whose storage
// and balances the code acts on; it differs from the code address only
// under DelegateCall.
type Message struct {
	Caller common.Address
	Self   common.Address
	Data   []byte
	Value  *uint256.Int
}

// Contract is code deployed at an address of the simulated chain
type Contract interface {
	Address() common.Address
	Call(env *Env, msg Message) ([]byte, error)
}

// stateful contracts expose their storage to the env so a reverted frame
// can roll it back together with the ledger
type stateful interface {
	snapshotState() interface{}
	restoreState(interface{})
}

// Log is an event emitted by a contract during a call
type Log struct {
	Address common.Address
	Event   string
	Fields  []zap.Field
}

// Receipt is the outcome of a top-level transaction
type Receipt struct {
	Success    bool
	Err        error
	ReturnData []byte
	Logs       []Log
}

// Env is an in-memory chain state where every call is atomic: a call that
// returns an error leaves balances, contract storage and logs exactly as
// they were before it started
type Env struct {
	ledger    *Ledger
	contracts map[common.Address]Contract
	logs      []Log
	coinbase  common.Address
	block     uint64
	depth     int
	logger    *zap.Logger
}

// NewEnv creates a new empty chain state
func NewEnv(coinbase common.Address, blockNumber uint64, logger *zap.Logger) *Env {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Env{
		ledger:    NewLedger(),
		contracts: make(map[common.Address]Contract),
		coinbase:  coinbase,
		block:     blockNumber,
		logger:    logger,
	}
}

// Ledger exposes balances for seeding and inspection
func (e *Env) Ledger() *Ledger {
	return e.ledger
}

// Coinbase returns the block builder's fee recipient
func (e *Env) Coinbase() common.Address {
	return e.coinbase
}

// BlockNumber returns the block the env executes in
func (e *Env) BlockNumber() uint64 {
	return e.block
}

// Deploy installs c at its address, replacing any previous code
func (e *Env) Deploy(c Contract) {
	e.contracts[c.Address()] = c
}

// Contract returns the code at addr
func (e *Env) Contract(addr common.Address) (Contract, bool) {
	c, ok := e.contracts[addr]
	return c, ok
}

// Mint credits holder with amount of token. Wrapped tokens are backed by
// native ETH held at the token address so they stay withdrawable.
func (e *Env) Mint(token, holder common.Address, amount *uint256.Int) error {
	if t, ok := e.contracts[token].(*Token); ok && t.wrapped {
		if err := e.ledger.AddNative(token, amount); err != nil {
			return err
		}
	}
	return e.ledger.Mint(token, holder, amount)
}

// Logs returns every log committed so far
func (e *Env) Logs() []Log {
	return append([]Log(nil), e.logs...)
}

// Emit records a log for the current call frame
func (e *Env) Emit(addr common.Address, event string, fields ...zap.Field) {
	e.logs = append(e.logs, Log{Address: addr, Event: event, Fields: fields})
}

// Transact runs a top-level call from an externally owned account and
// reports its outcome. A failed transaction changes nothing.
func (e *Env) Transact(from, to common.Address, data []byte, value *uint256.Int) *Receipt {
	start := len(e.logs)
	ret, err := e.Call(from, to, data, value)
	if err != nil {
		e.logger.Debug("Transaction reverted",
			zap.String("from", from.Hex()),
			zap.String("to", to.Hex()),
			zap.Error(err))
		return &Receipt{Err: err}
	}
	return &Receipt{
		Success:    true,
		ReturnData: ret,
		Logs:       append([]Log(nil), e.logs[start:]...),
	}
}

// Call invokes the code at to with caller as msg.sender, moving value
// first. An address without code simply receives the value.
func (e *Env) Call(caller, to common.Address, data []byte, value *uint256.Int) ([]byte, error) {
	if value == nil {
		value = new(uint256.Int)
	}
	return e.run(to, Message{Caller: caller, Self: to, Data: data, Value: value}, true)
}

// DelegateCall runs the code at code against self's balances while keeping
// the original caller
func (e *Env) DelegateCall(self, caller, code common.Address, data []byte) ([]byte, error) {
	return e.run(code, Message{Caller: caller, Self: self, Data: data, Value: new(uint256.Int)}, false)
}

func (e *Env) run(code common.Address, msg Message, transferValue bool) ([]byte, error) {
	if e.depth >= maxCallDepth {
		return nil, ErrCallDepth
	}
	e.depth++
	defer func() { e.depth-- }()

	f := e.begin()
	defer f.release()

	if transferValue && !msg.Value.IsZero() {
		if err := e.ledger.TransferNative(msg.Caller, msg.Self, msg.Value); err != nil {
			return nil, err
		}
	}

	var ret []byte
	if c, ok := e.contracts[code]; ok {
		out, err := c.Call(e, msg)
		if err != nil {
			return nil, err
		}
		ret = out
	}

	f.commit()
	return ret, nil
}

type snapshot struct {
	ledger *Ledger
	logs   int
	states map[common.Address]interface{}
}

// frame guards one call. Unless committed, releasing it restores the state
// captured when it began.
type frame struct {
	env       *Env
	snap      *snapshot
	committed bool
}

func (e *Env) begin() *frame {
	snap := &snapshot{
		ledger: e.ledger.Copy(),
		logs:   len(e.logs),
		states: make(map[common.Address]interface{}),
	}
	for addr, c := range e.contracts {
		if s, ok := c.(stateful); ok {
			snap.states[addr] = s.snapshotState()
		}
	}
	return &frame{env: e, snap: snap}
}

func (f *frame) commit() {
	f.committed = true
}

func (f *frame) release() {
	if f.committed {
		return
	}
	e := f.env
	e.ledger = f.snap.ledger
	e.logs = e.logs[:f.snap.logs]
	for addr, state := range f.snap.states {
		if s, ok := e.contracts[addr].(stateful); ok {
			s.restoreState(state)
		}
	}
}

// Fork returns an independent copy of the env sharing no mutable state.
// Contracts must be stateless or implement Clone to be forked.
func (e *Env) Fork() (*Env, error) {
	fork := &Env{
		ledger:    e.ledger.Copy(),
		contracts: make(map[common.Address]Contract, len(e.contracts)),
		logs:      append([]Log(nil), e.logs...),
		coinbase:  e.coinbase,
		block:     e.block,
		logger:    e.logger,
	}
	for addr, c := range e.contracts {
		switch cc := c.(type) {
		case interface{ Clone() Contract }:
			fork.contracts[addr] = cc.Clone()
		case stateful:
			return nil, fmt.Errorf("contract at %s cannot be forked", addr.Hex())
		default:
			fork.contracts[addr] = c
		}
	}
	return fork, nil
}
