package cmd

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/michaelpento.lv/tierarb/cmd/bot"
	"github.com/michaelpento.lv/tierarb/config"
	"github.com/michaelpento.lv/tierarb/dex"
	"github.com/michaelpento.lv/tierarb/dex/tiered"
	"github.com/michaelpento.lv/tierarb/dex/uniswap"
	"github.com/michaelpento.lv/tierarb/gas"
	"github.com/michaelpento.lv/tierarb/simulator"
	"github.com/michaelpento.lv/tierarb/strategies/arbitrage"
	"github.com/michaelpento.lv/tierarb/utils"
	"github.com/michaelpento.lv/tierarb/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// runtime is the state every networked command shares
type runtime struct {
	cfg    *config.Config
	client *ethclient.Client
	tokens *dex.TokenRegistry
	logger *zap.Logger
}

func loadEnv() error {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	if err := config.LoadEnv(files...); err != nil {
		return fmt.Errorf("failed to load env: %w", err)
	}
	return nil
}

func loadRuntime(ctx context.Context) (*runtime, error) {
	if err := loadEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	dir := logDir
	if dir == "" {
		dir = cfg.LogDir
	}
	logger := utils.InitLogger(utils.LogOptions{Debug: debug, Dir: dir})
	cfg.Logger = logger

	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if chainID.Uint64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("node is on chain %s, config expects %d", chainID, cfg.ChainID)
	}

	tokens, err := dex.NewTokenRegistry(client, 0)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, client: client, tokens: tokens, logger: logger}, nil
}

func (r *runtime) Close() {
	r.client.Close()
	utils.CleanupLogger()
}

func (r *runtime) marketSources() []dex.MarketSources {
	sources := make([]dex.MarketSources, 0, len(r.cfg.Markets))
	for _, m := range r.cfg.Markets {
		sources = append(sources, dex.MarketSources{
			Name:            m.Name,
			ConstantProduct: uniswap.NewPairReader(m.Pair, r.client, m.PairFeePips),
			Tiered:          tiered.NewHubReader(m.Hub, m.TokenA, m.TokenB, r.client),
		})
	}
	return sources
}

// describeMarkets resolves and logs the tokens of every market
func (r *runtime) describeMarkets(ctx context.Context) {
	for _, m := range r.cfg.Markets {
		a, errA := r.tokens.Token(ctx, m.TokenA)
		b, errB := r.tokens.Token(ctx, m.TokenB)
		if errA != nil || errB != nil {
			r.logger.Warn("Failed to resolve market tokens",
				zap.String("market", m.Name),
				zap.NamedError("token_a", errA),
				zap.NamedError("token_b", errB))
			continue
		}
		r.logger.Info("Market loaded",
			zap.String("market", m.Name),
			zap.String("pair", a.Symbol+"/"+b.Symbol),
			zap.Uint32("pair_fee_pips", m.PairFeePips))
	}
}

// formatWeth renders a profit token amount
func (r *runtime) formatWeth(ctx context.Context, amount *big.Int) string {
	weth, err := r.tokens.Token(ctx, r.cfg.WETH)
	if err != nil {
		weth = dex.Token{Address: r.cfg.WETH, Symbol: "WETH", Decimals: 18}
	}
	return weth.Format(amount)
}

// deployment describes the settlement contract to the local simulator
func (r *runtime) deployment(executor common.Address) simulator.Deployment {
	if executor == (common.Address{}) {
		executor = r.cfg.Owner
	}
	return simulator.Deployment{
		Arbitrageur: r.cfg.Arbitrageur,
		Owner:       r.cfg.Owner,
		Executor:    executor,
		WETH:        r.cfg.WETH,
	}
}

// newBot wires the per-block pipeline. A nil submitter is a dry run and a
// nil journal records nothing.
func (r *runtime) newBot(executor common.Address, submitter bot.Submitter, journal bot.Journal, reg prometheus.Registerer) (*bot.Bot, error) {
	evaluator := arbitrage.NewEvaluator(arbitrage.EvaluatorConfig{
		ProfitToken: r.cfg.WETH,
		GasLimit:    r.cfg.GasLimit,
		BribeBps:    r.cfg.BribeBps,
		Tolerance:   r.cfg.SearchTolerance,
	}, r.logger.Named("evaluator"))

	opts := bot.Options{
		Markets:   r.marketSources(),
		Fetcher:   dex.NewFetcher(r.cfg.RPCRateLimit.Limiter(), r.cfg.FetchConcurrency, r.logger.Named("fetcher")),
		Estimator: gas.NewEstimator(r.client, r.cfg.MaxGasPrice.Int, r.logger.Named("gas")),
		Detector:  arbitrage.NewDetector(evaluator, r.logger.Named("detector")),
		Ranker:    arbitrage.NewRanker(r.cfg.MinProfitThreshold.Int, r.logger.Named("ranker")),
		Planner:   arbitrage.NewPlanner(r.cfg.Arbitrageur),
		Simulator: simulator.NewSimulator(r.deployment(executor), r.logger.Named("simulator")),
		Submitter: submitter,
		Journal:   journal,
		Metrics:   metrics.NewBotMetrics("tierarb", reg),
		Logger:    r.logger.Named("bot"),
	}
	return bot.New(opts)
}
