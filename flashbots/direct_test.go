package flashbots

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/tierarb/gas"
	"github.com/michaelpento.lv/tierarb/types"
	"github.com/michaelpento.lv/tierarb/utils/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingSender struct {
	sent []*ethtypes.Transaction
	err  error
}

func (r *recordingSender) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, tx)
	return nil
}

func TestDirectSubmitter(t *testing.T) {
	logger := zaptest.NewLogger(t)
	chainID := big.NewInt(11155111)
	signer := NewSigner(fixedNonce(3), testutils.NewKey(t), chainID)

	plan := &types.ExecutionPlan{
		Target:      common.HexToAddress("0x5000000000000000000000000000000000000005"),
		Calldata:    []byte{0xde, 0xad, 0xbe, 0xef},
		GasLimit:    190_000,
		BlockNumber: 42,
	}
	fees := gas.Fees{BaseFee: big.NewInt(10e9), Tip: big.NewInt(2e9)}

	t.Run("Sends", func(t *testing.T) {
		sender := &recordingSender{}
		sub, err := NewDirectSubmitter(sender, signer, logger).Submit(context.Background(), plan, fees)
		require.NoError(t, err)

		require.Len(t, sender.sent, 1)
		tx := sender.sent[0]
		assert.Equal(t, sub.TxHash, tx.Hash())
		assert.Equal(t, uint64(43), sub.TargetBlock)
		assert.Equal(t, common.Hash{}, sub.BundleHash)
		assert.Equal(t, uint64(3), tx.Nonce())
		assert.Equal(t, plan.Calldata, tx.Data())

		from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), tx)
		require.NoError(t, err)
		assert.Equal(t, signer.Executor(), from)
	})

	t.Run("SendFails", func(t *testing.T) {
		sender := &recordingSender{err: errors.New("nonce too low")}
		_, err := NewDirectSubmitter(sender, signer, logger).Submit(context.Background(), plan, fees)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nonce too low")
		assert.NotErrorIs(t, err, ErrSimulationFailed)
	})

	t.Run("NoGasLimit", func(t *testing.T) {
		sender := &recordingSender{}
		bad := *plan
		bad.GasLimit = 0
		_, err := NewDirectSubmitter(sender, signer, logger).Submit(context.Background(), &bad, fees)
		assert.Error(t, err)
		assert.Empty(t, sender.sent)
	})
}
