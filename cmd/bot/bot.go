package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/tierarb/dex"
	"github.com/michaelpento.lv/tierarb/flashbots"
	"github.com/michaelpento.lv/tierarb/gas"
	"github.com/michaelpento.lv/tierarb/simulator"
	"github.com/michaelpento.lv/tierarb/storage"
	"github.com/michaelpento.lv/tierarb/strategies/arbitrage"
	"github.com/michaelpento.lv/tierarb/types"
	"github.com/michaelpento.lv/tierarb/utils/metrics"
	"go.uber.org/zap"
)

// PlanSimulator dry-runs a plan before it leaves the process
type PlanSimulator interface {
	SimulatePlan(ctx context.Context, plan *types.ExecutionPlan) (*simulator.SimulationResult, error)
}

// Submitter sends a plan to block builders
type Submitter interface {
	Submit(ctx context.Context, plan *types.ExecutionPlan, fees gas.Fees) (*flashbots.Submission, error)
}

// Journal records what happened to each plan
type Journal interface {
	Record(ctx context.Context, e storage.Entry) error
}

// Options wires a Bot. Simulator, Submitter and Journal are optional; a nil
// Submitter makes the bot a dry run.
type Options struct {
	Markets   []dex.MarketSources
	Fetcher   *dex.Fetcher
	Estimator *gas.Estimator
	Detector  *arbitrage.Detector
	Ranker    *arbitrage.Ranker
	Planner   *arbitrage.Planner
	Simulator PlanSimulator
	Submitter Submitter
	Journal   Journal
	Metrics   *metrics.BotMetrics
	Logger    *zap.Logger
}

// Outcome is what one block pass produced
type Outcome struct {
	BlockNumber uint64
	Plan        *types.ExecutionPlan
	// Status is one of the metrics outcome labels
	Status     string
	Reason     string
	Submission *flashbots.Submission
}

// Bot evaluates every configured market once per head and submits the best
// plan for the next block
type Bot struct {
	opts   Options
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New creates a new bot instance
func New(opts Options) (*Bot, error) {
	switch {
	case len(opts.Markets) == 0:
		return nil, fmt.Errorf("no markets configured")
	case opts.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case opts.Estimator == nil:
		return nil, fmt.Errorf("gas estimator is required")
	case opts.Detector == nil || opts.Ranker == nil || opts.Planner == nil:
		return nil, fmt.Errorf("detector, ranker and planner are required")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewBotMetrics("tierarb", nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Bot{opts: opts, logger: opts.Logger}, nil
}

// Run processes heads until ctx is done or heads is closed. A new head
// cancels the pass still running for the previous one.
func (b *Bot) Run(ctx context.Context, heads <-chan *ethtypes.Header) error {
	b.logger.Info("Starting arbitrage bot", zap.Int("markets", len(b.opts.Markets)))

	cancel := func() {}
	defer func() {
		cancel()
		b.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case header, ok := <-heads:
			if !ok {
				b.wg.Wait()
				return nil
			}
			cancel()
			b.wg.Wait()

			passCtx, passCancel := context.WithCancel(ctx)
			cancel = passCancel
			b.wg.Add(1)
			go func(ctx context.Context, header *ethtypes.Header) {
				defer b.wg.Done()
				b.handle(ctx, header)
			}(passCtx, header)
		}
	}
}

func (b *Bot) handle(ctx context.Context, header *ethtypes.Header) {
	outcome, err := b.ProcessBlock(ctx, header)
	switch {
	case err == nil:
		if outcome != nil {
			b.logger.Info("Block processed",
				zap.Uint64("block", outcome.BlockNumber),
				zap.String("outcome", outcome.Status),
				zap.String("reason", outcome.Reason))
		}
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		b.opts.Metrics.BlocksSuperseded.Inc()
		b.logger.Debug("Block pass superseded", zap.Uint64("block", header.Number.Uint64()))
	default:
		b.logger.Error("Failed to process block",
			zap.Uint64("block", header.Number.Uint64()),
			zap.Error(err))
	}
}

// ProcessBlock runs one pass for header: snapshot every market, pick the
// best opportunity, plan it, check it and submit it. A nil outcome means
// nothing was worth planning.
func (b *Bot) ProcessBlock(ctx context.Context, header *ethtypes.Header) (*Outcome, error) {
	start := time.Now()
	defer func() {
		b.opts.Metrics.ProcessTime.Observe(time.Since(start).Seconds())
	}()
	blockNumber := header.Number.Uint64()
	log := b.logger.With(zap.Uint64("block", blockNumber))

	if err := b.opts.Estimator.UpdateFromHeader(ctx, header); err != nil {
		return nil, err
	}
	fees, err := b.opts.Estimator.Fees()
	if err != nil {
		return nil, err
	}
	gasPrice, err := b.opts.Estimator.GasPrice()
	if err != nil {
		log.Warn("Skipping block", zap.Error(err))
		b.opts.Metrics.BlocksProcessed.Inc()
		return &Outcome{BlockNumber: blockNumber, Status: metrics.OutcomeSkipped, Reason: err.Error()}, nil
	}
	b.opts.Metrics.GasPrice.Observe(metrics.WeiToFloat(gasPrice))

	fetchStart := time.Now()
	snapshots, err := b.opts.Fetcher.Fetch(ctx, b.opts.Markets, header.Number)
	if err != nil {
		return nil, err
	}
	b.opts.Metrics.FetchTime.Observe(time.Since(fetchStart).Seconds())

	markets := make([]arbitrage.Market, 0, len(snapshots))
	for _, snap := range snapshots {
		if snap.Err != nil {
			var srcErr *dex.SourceError
			source := snap.Name
			if errors.As(snap.Err, &srcErr) {
				source = srcErr.Source
			}
			b.opts.Metrics.FetchErrors.WithLabelValues(source).Inc()
			continue
		}
		markets = append(markets, arbitrage.Market{
			Name:            snap.Name,
			ConstantProduct: snap.ConstantProduct,
			Tiered:          snap.Tiered,
		})
	}

	opps, err := b.opts.Detector.FindArbitrage(ctx, markets, gasPrice, blockNumber)
	if err != nil {
		return nil, err
	}
	for _, opp := range opps {
		b.opts.Metrics.Opportunities.WithLabelValues(opp.Direction()).Inc()
	}

	best, err := b.opts.Ranker.Best(opps)
	if errors.Is(err, arbitrage.ErrNoOpportunity) {
		b.opts.Metrics.BlocksProcessed.Inc()
		log.Debug("No opportunity", zap.Int("markets", len(markets)))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	plan, err := b.opts.Planner.Build(best)
	if err != nil {
		return nil, fmt.Errorf("failed to build plan: %w", err)
	}
	outcome := &Outcome{BlockNumber: blockNumber, Plan: plan}

	if err := b.check(ctx, plan, outcome); err != nil {
		return nil, err
	}
	if outcome.Status == "" {
		if err := b.submit(ctx, plan, fees, outcome); err != nil {
			return nil, err
		}
	}

	b.opts.Metrics.BlocksProcessed.Inc()
	b.opts.Metrics.Submissions.WithLabelValues(outcome.Status).Inc()
	b.record(ctx, outcome)
	return outcome, nil
}

// check simulates plan and marks outcome rejected when it does not settle
// for the predicted profit
func (b *Bot) check(ctx context.Context, plan *types.ExecutionPlan, outcome *Outcome) error {
	if b.opts.Simulator == nil {
		return nil
	}
	result, err := b.opts.Simulator.SimulatePlan(ctx, plan)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		outcome.Status = metrics.OutcomeFailed
		outcome.Reason = err.Error()
		return nil
	}
	if !result.Success {
		outcome.Status = metrics.OutcomeRejected
		outcome.Reason = fmt.Sprintf("simulation: %v", result.Error)
	}
	return nil
}

func (b *Bot) submit(ctx context.Context, plan *types.ExecutionPlan, fees gas.Fees, outcome *Outcome) error {
	if b.opts.Submitter == nil {
		outcome.Status = metrics.OutcomeSkipped
		outcome.Reason = "dry run"
		b.logger.Info("Dry run, not submitting",
			zap.Uint64("block", plan.BlockNumber),
			zap.String("direction", plan.Opportunity.Direction()),
			zap.String("net_profit", plan.Opportunity.NetProfit.String()))
		return nil
	}

	sub, err := b.opts.Submitter.Submit(ctx, plan, fees)
	switch {
	case err == nil:
		outcome.Status = metrics.OutcomeSubmitted
		outcome.Submission = sub
		b.opts.Metrics.BestNetProfit.Set(metrics.WeiToFloat(plan.Opportunity.NetProfit))
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, flashbots.ErrSimulationFailed):
		outcome.Status = metrics.OutcomeRejected
		outcome.Reason = err.Error()
	default:
		outcome.Status = metrics.OutcomeFailed
		outcome.Reason = err.Error()
	}
	return nil
}

func (b *Bot) record(ctx context.Context, outcome *Outcome) {
	if b.opts.Journal == nil {
		return
	}
	entry := storage.NewEntry(outcome.Plan, outcome.Status)
	entry.Detail = outcome.Reason
	if outcome.Submission != nil {
		entry.TxHash = outcome.Submission.TxHash
	}
	if err := b.opts.Journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		b.logger.Error("Failed to journal plan", zap.Error(err))
	}
}

// Profit returns the net profit of the outcome's plan, or zero
func (o *Outcome) Profit() *big.Int {
	if o == nil || o.Plan == nil || o.Plan.Opportunity == nil {
		return new(big.Int)
	}
	return o.Plan.Opportunity.NetProfit
}
