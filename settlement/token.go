package settlement

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/contracts"
	"go.uber.org/zap"
)

// Token is an ERC20 whose balances live in the env ledger. A wrapped token
// additionally converts native ETH through deposit and withdraw.
type Token struct {
	address  common.Address
	symbol   string
	decimals uint8
	wrapped  bool
}

// NewToken creates a new plain ERC20 token
func NewToken(address common.Address, symbol string, decimals uint8) *Token {
	return &Token{address: address, symbol: symbol, decimals: decimals}
}

// NewWETH creates a new wrapped native token
func NewWETH(address common.Address) *Token {
	return &Token{address: address, symbol: "WETH", decimals: 18, wrapped: true}
}

// Address returns the token contract address
func (t *Token) Address() common.Address {
	return t.address
}

// Clone returns t; tokens keep no storage outside the ledger
func (t *Token) Clone() Contract {
	return t
}

// Call dispatches an ERC20 or WETH method
func (t *Token) Call(env *Env, msg Message) ([]byte, error) {
	method, args, err := contracts.DecodeCall(contracts.TokenABI, msg.Data)
	if err != nil {
		return nil, fmt.Errorf("token %s: %w", t.symbol, err)
	}
	if !msg.Value.IsZero() && method.Name != "deposit" {
		return nil, fmt.Errorf("token %s: %s is not payable", t.symbol, method.Name)
	}

	switch method.Name {
	case "transfer":
		amount, err := U256(args[1].(*big.Int))
		if err != nil {
			return nil, err
		}
		to := args[0].(common.Address)
		if err := env.Ledger().Transfer(msg.Self, msg.Caller, to, amount); err != nil {
			return nil, err
		}
		env.Emit(msg.Self, "Transfer",
			zap.String("from", msg.Caller.Hex()),
			zap.String("to", to.Hex()),
			zap.String("amount", amount.Dec()))
		return method.Outputs.Pack(true)

	case "balanceOf":
		bal := env.Ledger().BalanceOf(msg.Self, args[0].(common.Address))
		return method.Outputs.Pack(bal.ToBig())

	case "decimals":
		return method.Outputs.Pack(t.decimals)

	case "symbol":
		return method.Outputs.Pack(t.symbol)

	case "deposit":
		if !t.wrapped {
			break
		}
		if err := env.Ledger().Mint(msg.Self, msg.Caller, msg.Value); err != nil {
			return nil, err
		}
		env.Emit(msg.Self, "Deposit", zap.String("to", msg.Caller.Hex()), zap.String("amount", msg.Value.Dec()))
		return nil, nil

	case "withdraw":
		if !t.wrapped {
			break
		}
		amount, err := U256(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if err := env.Ledger().Burn(msg.Self, msg.Caller, amount); err != nil {
			return nil, err
		}
		if _, err := env.Call(msg.Self, msg.Caller, nil, amount); err != nil {
			return nil, err
		}
		env.Emit(msg.Self, "Withdrawal", zap.String("from", msg.Caller.Hex()), zap.String("amount", amount.Dec()))
		return nil, nil
	}
	return nil, fmt.Errorf("token %s: unsupported method %s", t.symbol, method.Name)
}

// transferToken moves amount of token from the calling contract through the
// token's own transfer method
func transferToken(env *Env, from, token, to common.Address, amount *big.Int) error {
	data, err := contracts.TokenABI.Pack("transfer", to, amount)
	if err != nil {
		return err
	}
	if _, err := env.Call(from, token, data, nil); err != nil {
		return fmt.Errorf("transfer %s of %s to %s: %w", amount, token.Hex(), to.Hex(), err)
	}
	return nil
}
