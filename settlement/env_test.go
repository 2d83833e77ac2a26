package settlement

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errBoom = errors.New("boom")

// scripted runs fn for every call
type scripted struct {
	address common.Address
	fn      func(env *Env, msg Message) ([]byte, error)
}

func (s *scripted) Address() common.Address { return s.address }

func (s *scripted) Call(env *Env, msg Message) ([]byte, error) { return s.fn(env, msg) }

func TestLedger(t *testing.T) {
	token := common.HexToAddress("0x01")
	alice := common.HexToAddress("0xa1")
	bob := common.HexToAddress("0xb0")

	t.Run("Transfer", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Mint(token, alice, uint256.NewInt(100)))
		require.NoError(t, l.Transfer(token, alice, bob, uint256.NewInt(40)))
		assert.Equal(t, uint256.NewInt(60), l.BalanceOf(token, alice))
		assert.Equal(t, uint256.NewInt(40), l.BalanceOf(token, bob))

		err := l.Transfer(token, alice, bob, uint256.NewInt(61))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, uint256.NewInt(60), l.BalanceOf(token, alice))
	})

	t.Run("Overflow", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Mint(token, alice, new(uint256.Int).SetAllOne()))
		assert.ErrorIs(t, l.Mint(token, alice, uint256.NewInt(1)), ErrBalanceOverflow)
	})

	t.Run("CopyIsDeep", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.AddNative(alice, uint256.NewInt(5)))
		cpy := l.Copy()
		require.NoError(t, l.TransferNative(alice, bob, uint256.NewInt(5)))
		assert.Equal(t, uint256.NewInt(5), cpy.NativeBalance(alice))
		assert.True(t, cpy.NativeBalance(bob).IsZero())
	})
}

func TestEnv(t *testing.T) {
	alice := common.HexToAddress("0xa1")
	token := common.HexToAddress("0x01")

	t.Run("PlainTransfer", func(t *testing.T) {
		env := NewEnv(coinbase, 1, zaptest.NewLogger(t))
		require.NoError(t, env.Ledger().AddNative(alice, uint256.NewInt(10)))
		receipt := env.Transact(alice, stranger, nil, uint256.NewInt(4))
		require.True(t, receipt.Success)
		assert.Equal(t, uint256.NewInt(4), env.Ledger().NativeBalance(stranger))

		receipt = env.Transact(alice, stranger, nil, uint256.NewInt(7))
		assert.ErrorIs(t, receipt.Err, ErrInsufficientBalance)
	})

	t.Run("NestedRevert", func(t *testing.T) {
		env := NewEnv(coinbase, 1, zaptest.NewLogger(t))
		inner := &scripted{address: common.HexToAddress("0x1111"), fn: func(env *Env, msg Message) ([]byte, error) {
			if err := env.Ledger().Mint(token, msg.Self, uint256.NewInt(1)); err != nil {
				return nil, err
			}
			env.Emit(msg.Self, "Inner")
			return nil, errBoom
		}}
		outer := &scripted{address: common.HexToAddress("0x2222"), fn: func(env *Env, msg Message) ([]byte, error) {
			if err := env.Ledger().Mint(token, msg.Self, uint256.NewInt(1)); err != nil {
				return nil, err
			}
			env.Emit(msg.Self, "Outer")
			// a caught inner failure only undoes the inner frame
			_, err := env.Call(msg.Self, inner.address, nil, nil)
			assert.ErrorIs(t, err, errBoom)
			return []byte{0x01}, nil
		}}
		env.Deploy(inner)
		env.Deploy(outer)

		receipt := env.Transact(alice, outer.address, nil, nil)
		require.True(t, receipt.Success)
		assert.Equal(t, []byte{0x01}, receipt.ReturnData)
		require.Len(t, receipt.Logs, 1)
		assert.Equal(t, "Outer", receipt.Logs[0].Event)
		assert.Equal(t, uint256.NewInt(1), env.Ledger().BalanceOf(token, outer.address))
		assert.True(t, env.Ledger().BalanceOf(token, inner.address).IsZero())
	})

	t.Run("CallDepth", func(t *testing.T) {
		env := NewEnv(coinbase, 1, zaptest.NewLogger(t))
		self := common.HexToAddress("0x3333")
		env.Deploy(&scripted{address: self, fn: func(env *Env, msg Message) ([]byte, error) {
			return env.Call(msg.Self, msg.Self, nil, nil)
		}})
		receipt := env.Transact(alice, self, nil, nil)
		assert.ErrorIs(t, receipt.Err, ErrCallDepth)
	})

	t.Run("Fork", func(t *testing.T) {
		f := newFixture(t, 1000, 10, 500, 6)
		fork, err := f.env.Fork()
		require.NoError(t, err)

		plan := f.plan(t, 0)
		receipt := fork.Transact(executor, arbAddr, plan.Calldata, nil)
		require.True(t, receipt.Success, "%v", receipt.Err)

		assert.True(t, f.env.Ledger().BalanceOf(wethAddr, arbAddr).IsZero())
		assert.Equal(t, plan.Opportunity.GrossProfit, fork.Ledger().BalanceOf(wethAddr, arbAddr).ToBig())

		// the original still accepts the same plan
		receipt = f.env.Transact(executor, arbAddr, plan.Calldata, nil)
		assert.True(t, receipt.Success, "%v", receipt.Err)
	})

	t.Run("ForkRejectsUncloneableState", func(t *testing.T) {
		env := NewEnv(coinbase, 1, zaptest.NewLogger(t))
		env.Deploy(&opaque{address: common.HexToAddress("0x4444")})
		_, err := env.Fork()
		assert.Error(t, err)
	})
}

type opaque struct {
	address common.Address
}

func (o *opaque) Address() common.Address { return o.address }

func (o *opaque) Call(*Env, Message) ([]byte, error) { return nil, nil }

func (o *opaque) snapshotState() interface{} { return nil }

func (o *opaque) restoreState(interface{}) {}
