package flashbots

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/tierarb/gas"
	"github.com/michaelpento.lv/tierarb/types"
	"go.uber.org/zap"
)

// ErrSimulationFailed is returned when the relay reports the bundle reverts
var ErrSimulationFailed = errors.New("bundle simulation failed")

// NonceSource reads the next nonce of the executor account
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Submission is the outcome of one bundle send
type Submission struct {
	TxHash      common.Hash
	BundleHash  common.Hash
	TargetBlock uint64
}

// Signer turns execution plans into signed executor transactions
type Signer struct {
	nonces   NonceSource
	executor *ecdsa.PrivateKey
	chainID  *big.Int
}

// NewSigner creates a signer for the executor account on chainID
func NewSigner(nonces NonceSource, executor *ecdsa.PrivateKey, chainID *big.Int) *Signer {
	return &Signer{nonces: nonces, executor: executor, chainID: chainID}
}

// Executor returns the account that signs settlement transactions
func (s *Signer) Executor() common.Address {
	return crypto.PubkeyToAddress(s.executor.PublicKey)
}

// SignPlan builds and signs the work transaction of plan
func (s *Signer) SignPlan(ctx context.Context, plan *types.ExecutionPlan, fees gas.Fees) (*ethtypes.Transaction, error) {
	if plan.GasLimit == 0 {
		return nil, fmt.Errorf("plan has no gas limit")
	}

	nonce, err := s.nonces.PendingNonceAt(ctx, s.Executor())
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	target := plan.Target
	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: fees.Tip,
		GasFeeCap: fees.FeeCap(),
		Gas:       plan.GasLimit,
		To:        &target,
		Value:     new(big.Int),
		Data:      plan.Calldata,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(s.chainID), s.executor)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// Submitter signs execution plans as executor transactions and sends them
// to the relay as single-transaction bundles for the next block
type Submitter struct {
	*Signer
	client   *Client
	simulate bool
	logger   *zap.Logger
}

// NewSubmitter creates a new bundle submitter. When simulate is set every
// bundle is checked with eth_callBundle before it is sent.
func NewSubmitter(client *Client, nonces NonceSource, executor *ecdsa.PrivateKey, chainID *big.Int, simulate bool, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		Signer:   NewSigner(nonces, executor, chainID),
		client:   client,
		simulate: simulate,
		logger:   logger,
	}
}

// Submit sends plan for inclusion in the block after the one it was built on.
// It is one best-effort send; nothing is retried.
func (s *Submitter) Submit(ctx context.Context, plan *types.ExecutionPlan, fees gas.Fees) (*Submission, error) {
	tx, err := s.SignPlan(ctx, plan, fees)
	if err != nil {
		return nil, err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	bundle := &Bundle{
		Txs:         []hexutil.Bytes{raw},
		BlockNumber: plan.BlockNumber + 1,
	}

	if s.simulate {
		sim, err := s.client.SimulateBundle(ctx, bundle)
		if err != nil {
			return nil, err
		}
		if !sim.Success {
			return nil, fmt.Errorf("%w: %s", ErrSimulationFailed, sim.Error)
		}
		s.logger.Debug("Bundle simulated",
			zap.Uint64("gas_used", sim.GasUsed),
			zap.String("coinbase_diff", sim.CoinbaseDiff.String()))
	}

	bundleHash, err := s.client.SendBundle(ctx, bundle)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Bundle submitted",
		zap.String("tx", tx.Hash().Hex()),
		zap.String("bundle", bundleHash.Hex()),
		zap.Uint64("target_block", bundle.BlockNumber))

	return &Submission{
		TxHash:      tx.Hash(),
		BundleHash:  bundleHash,
		TargetBlock: bundle.BlockNumber,
	}, nil
}
