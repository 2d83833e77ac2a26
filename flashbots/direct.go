package flashbots

import (
	"context"
	"fmt"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/tierarb/gas"
	"github.com/michaelpento.lv/tierarb/types"
	"go.uber.org/zap"
)

// TxSender broadcasts a signed transaction to the public mempool
type TxSender interface {
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// DirectSubmitter sends the signed work transaction straight to the node
// instead of a relay. The transaction is public and may land in any later
// block, so the contract's profit check is the only protection.
type DirectSubmitter struct {
	*Signer
	sender TxSender
	logger *zap.Logger
}

// NewDirectSubmitter creates a submitter that broadcasts through sender
func NewDirectSubmitter(sender TxSender, signer *Signer, logger *zap.Logger) *DirectSubmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectSubmitter{Signer: signer, sender: sender, logger: logger}
}

// Submit signs plan and broadcasts it once. The returned target block is the
// earliest block that can include it.
func (d *DirectSubmitter) Submit(ctx context.Context, plan *types.ExecutionPlan, fees gas.Fees) (*Submission, error) {
	tx, err := d.SignPlan(ctx, plan, fees)
	if err != nil {
		return nil, err
	}
	if err := d.sender.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	d.logger.Info("Transaction sent",
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("nonce", tx.Nonce()),
		zap.Uint64("target_block", plan.BlockNumber+1))

	return &Submission{
		TxHash:      tx.Hash(),
		TargetBlock: plan.BlockNumber + 1,
	}, nil
}
