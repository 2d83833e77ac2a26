package dex

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultFetchConcurrency bounds the markets read in parallel
const DefaultFetchConcurrency = 8

// MarketSources are the two snapshot readers of one token pair
type MarketSources struct {
	Name            string
	ConstantProduct Source
	Tiered          Source
}

// MarketSnapshot holds both pools of a market at one block. Err is set when
// either read failed; the pools are then unusable.
type MarketSnapshot struct {
	Name            string
	ConstantProduct Pool
	Tiered          Pool
	Err             error
}

// SourceError names the source whose read failed
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Fetcher reads every market's pools for a block
type Fetcher struct {
	limiter     *rate.Limiter
	concurrency int
	logger      *zap.Logger
}

// NewFetcher creates a new snapshot fetcher. A nil limiter is unlimited.
func NewFetcher(limiter *rate.Limiter, concurrency int, logger *zap.Logger) *Fetcher {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if concurrency <= 0 {
		concurrency = DefaultFetchConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		limiter:     limiter,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Fetch reads all markets at blockNumber. A failed read marks only its own
// market; Fetch itself fails only when ctx ends.
func (f *Fetcher) Fetch(ctx context.Context, markets []MarketSources, blockNumber *big.Int) ([]MarketSnapshot, error) {
	snapshots := make([]MarketSnapshot, len(markets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, m := range markets {
		i, m := i, m
		g.Go(func() error {
			snap := MarketSnapshot{Name: m.Name}
			var err error
			snap.ConstantProduct, err = f.read(gctx, m.ConstantProduct, blockNumber)
			if err == nil {
				snap.Tiered, err = f.read(gctx, m.Tiered, blockNumber)
			}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				f.logger.Warn("Failed to fetch market", zap.String("market", m.Name), zap.Error(err))
				snap.Err = err
			}
			snapshots[i] = snap
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (f *Fetcher) read(ctx context.Context, src Source, blockNumber *big.Int) (Pool, error) {
	if src == nil {
		return nil, &SourceError{Source: "unset", Err: fmt.Errorf("market has no source")}
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	pool, err := src.Fetch(ctx, blockNumber)
	if err != nil {
		return nil, &SourceError{Source: src.Name(), Err: err}
	}
	return pool, nil
}
