package arbitrage

import (
	"context"
	"errors"
	"math/big"

	"github.com/michaelpento.lv/tierarb/dex"
	"github.com/michaelpento.lv/tierarb/types"
	"go.uber.org/zap"
)

// Market is one token pair quoted by both curve variants in a block
type Market struct {
	Name            string
	ConstantProduct dex.Pool
	Tiered          dex.Pool
}

// Detector handles arbitrage detection across markets
type Detector struct {
	evaluator *Evaluator
	logger    *zap.Logger
}

// NewDetector creates a new arbitrage detector
func NewDetector(evaluator *Evaluator, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		evaluator: evaluator,
		logger:    logger,
	}
}

// FindArbitrage evaluates every market in both directions. A market that
// fails to quote is skipped; it never aborts the others.
func (d *Detector) FindArbitrage(ctx context.Context, markets []Market, gasPrice *big.Int, blockNumber uint64) ([]*types.Opportunity, error) {
	var opportunities []*types.Opportunity

	for _, m := range markets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if m.ConstantProduct == nil || m.Tiered == nil {
			continue
		}

		opp, err := d.evaluator.EvaluatePair(m.ConstantProduct, m.Tiered, gasPrice)
		if err != nil {
			if errors.Is(err, ErrNoOpportunity) {
				d.logger.Debug("No opportunity", zap.String("market", m.Name), zap.Error(err))
			} else {
				d.logger.Warn("Failed to evaluate market", zap.String("market", m.Name), zap.Error(err))
			}
			continue
		}

		opp.BlockNumber = blockNumber
		d.logger.Info("Found opportunity",
			zap.String("market", m.Name),
			zap.String("direction", opp.Direction()),
			zap.String("amount_in", opp.AmountIn.String()),
			zap.String("net_profit", opp.NetProfit.String()))
		opportunities = append(opportunities, opp)
	}

	return opportunities, nil
}
