package settlement

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ledger holds every token and native balance of the simulated chain
type Ledger struct {
	tokens map[common.Address]map[common.Address]*uint256.Int
	native map[common.Address]*uint256.Int
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		tokens: make(map[common.Address]map[common.Address]*uint256.Int),
		native: make(map[common.Address]*uint256.Int),
	}
}

// Copy returns a deep copy of the ledger
func (l *Ledger) Copy() *Ledger {
	cpy := NewLedger()
	for token, holders := range l.tokens {
		m := make(map[common.Address]*uint256.Int, len(holders))
		for holder, bal := range holders {
			m[holder] = new(uint256.Int).Set(bal)
		}
		cpy.tokens[token] = m
	}
	for holder, bal := range l.native {
		cpy.native[holder] = new(uint256.Int).Set(bal)
	}
	return cpy
}

// BalanceOf returns a copy of holder's balance of token
func (l *Ledger) BalanceOf(token, holder common.Address) *uint256.Int {
	if bal, ok := l.tokens[token][holder]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// Mint credits amount of token to holder
func (l *Ledger) Mint(token, holder common.Address, amount *uint256.Int) error {
	holders, ok := l.tokens[token]
	if !ok {
		holders = make(map[common.Address]*uint256.Int)
		l.tokens[token] = holders
	}
	return credit(holders, holder, amount)
}

// Burn debits amount of token from holder
func (l *Ledger) Burn(token, holder common.Address, amount *uint256.Int) error {
	return debit(l.tokens[token], holder, amount)
}

// Transfer moves amount of token between holders
func (l *Ledger) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if err := l.Burn(token, from, amount); err != nil {
		return fmt.Errorf("transfer of %s from %s: %w", token.Hex(), from.Hex(), err)
	}
	return l.Mint(token, to, amount)
}

// NativeBalance returns a copy of holder's ETH balance
func (l *Ledger) NativeBalance(holder common.Address) *uint256.Int {
	if bal, ok := l.native[holder]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// AddNative credits ETH to holder
func (l *Ledger) AddNative(holder common.Address, amount *uint256.Int) error {
	return credit(l.native, holder, amount)
}

// TransferNative moves ETH between holders
func (l *Ledger) TransferNative(from, to common.Address, amount *uint256.Int) error {
	if err := debit(l.native, from, amount); err != nil {
		return fmt.Errorf("native transfer from %s: %w", from.Hex(), err)
	}
	return credit(l.native, to, amount)
}

func credit(m map[common.Address]*uint256.Int, holder common.Address, amount *uint256.Int) error {
	bal, ok := m[holder]
	if !ok {
		bal = new(uint256.Int)
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	m[holder] = sum
	return nil
}

func debit(m map[common.Address]*uint256.Int, holder common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	bal, ok := m[holder]
	if !ok {
		return ErrInsufficientBalance
	}
	diff, underflow := new(uint256.Int).SubOverflow(bal, amount)
	if underflow {
		return ErrInsufficientBalance
	}
	m[holder] = diff
	return nil
}

// U256 converts a non-negative big.Int, failing on overflow
func U256(x *big.Int) (*uint256.Int, error) {
	if x == nil {
		return new(uint256.Int), nil
	}
	if x.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %s", x)
	}
	v, overflow := uint256.FromBig(x)
	if overflow {
		return nil, fmt.Errorf("amount %s overflows uint256", x)
	}
	return v, nil
}
