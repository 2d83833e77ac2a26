package settlement

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Operation is a privileged entry point of the settlement contract
type Operation uint8

const (
	OpWork Operation = iota
	OpSetExecutor
	OpMulticall
)

func (o Operation) String() string {
	switch o {
	case OpWork:
		return "work"
	case OpSetExecutor:
		return "setExecutor"
	case OpMulticall:
		return "multicall"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Policy decides who may call each operation. The owner manages executors
// and runs maintenance batches; executors, including the main executor that
// can never be disabled, run trades.
type Policy struct {
	owner        common.Address
	mainExecutor common.Address
	executors    map[common.Address]bool
}

// NewPolicy creates a new policy with a fixed owner and main executor
func NewPolicy(owner, mainExecutor common.Address) *Policy {
	return &Policy{
		owner:        owner,
		mainExecutor: mainExecutor,
		executors:    make(map[common.Address]bool),
	}
}

// Owner returns the contract owner
func (p *Policy) Owner() common.Address {
	return p.owner
}

// MainExecutor returns the permanent executor
func (p *Policy) MainExecutor() common.Address {
	return p.mainExecutor
}

// IsExecutor reports whether account may call work
func (p *Policy) IsExecutor(account common.Address) bool {
	return account == p.mainExecutor || p.executors[account]
}

// Authorize checks caller against op
func (p *Policy) Authorize(caller common.Address, op Operation) error {
	var ok bool
	switch op {
	case OpWork:
		ok = p.IsExecutor(caller)
	case OpSetExecutor, OpMulticall:
		ok = caller == p.owner
	}
	if !ok {
		return fmt.Errorf("%s by %s: %w", op, caller.Hex(), ErrUnauthorized)
	}
	return nil
}

// SetExecutor enables or disables a secondary executor
func (p *Policy) SetExecutor(caller, executor common.Address, enabled bool) error {
	if err := p.Authorize(caller, OpSetExecutor); err != nil {
		return err
	}
	if executor == p.mainExecutor {
		return ErrImmutableExecutor
	}
	if enabled {
		p.executors[executor] = true
	} else {
		delete(p.executors, executor)
	}
	return nil
}

func (p *Policy) snapshot() map[common.Address]bool {
	cpy := make(map[common.Address]bool, len(p.executors))
	for k, v := range p.executors {
		cpy[k] = v
	}
	return cpy
}

func (p *Policy) restore(executors map[common.Address]bool) {
	p.executors = executors
}
