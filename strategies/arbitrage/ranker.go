package arbitrage

import (
	"math/big"
	"sort"

	"github.com/michaelpento.lv/tierarb/types"
	"go.uber.org/zap"
)

// Compare orders opportunities by net profit descending, then gross profit
// descending, then gas cost ascending. It returns a negative number when a
// ranks ahead of b.
func Compare(a, b *types.Opportunity) int {
	if c := b.NetProfit.Cmp(a.NetProfit); c != 0 {
		return c
	}
	if c := b.GrossProfit.Cmp(a.GrossProfit); c != 0 {
		return c
	}
	return a.GasCost.Cmp(b.GasCost)
}

// Rank returns a sorted copy of opps
func Rank(opps []*types.Opportunity) []*types.Opportunity {
	ranked := make([]*types.Opportunity, len(opps))
	copy(ranked, opps)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Compare(ranked[i], ranked[j]) < 0
	})
	return ranked
}

// Ranker picks the single opportunity worth submitting for a block
type Ranker struct {
	minProfit *big.Int
	logger    *zap.Logger
}

// NewRanker creates a new ranker with a minimum net profit threshold
func NewRanker(minProfit *big.Int, logger *zap.Logger) *Ranker {
	if minProfit == nil {
		minProfit = new(big.Int)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{minProfit: new(big.Int).Set(minProfit), logger: logger}
}

// Best returns the top opportunity whose net profit is above the threshold.
// Everything else is dropped.
func (r *Ranker) Best(opps []*types.Opportunity) (*types.Opportunity, error) {
	ranked := Rank(opps)
	if len(ranked) == 0 || ranked[0].NetProfit.Cmp(r.minProfit) <= 0 {
		return nil, ErrNoOpportunity
	}
	if len(ranked) > 1 {
		r.logger.Debug("Discarding lower ranked opportunities", zap.Int("count", len(ranked)-1))
	}
	return ranked[0], nil
}
