package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/cmd/bot"
	"github.com/michaelpento.lv/tierarb/config"
	"github.com/michaelpento.lv/tierarb/flashbots"
	"github.com/michaelpento.lv/tierarb/monitor"
	"github.com/michaelpento.lv/tierarb/storage"
	"github.com/michaelpento.lv/tierarb/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	dryRun      bool
	metricsAddr string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Watch new blocks and submit arbitrage bundles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate and simulate but never submit (overrides dry_run)")
	startCmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address (overrides prometheus_endpoint)")
}

func runStart(ctx context.Context) error {
	rt, err := loadRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	log := rt.logger
	cfg := rt.cfg

	if dryRun {
		cfg.DryRun = true
	}
	if metricsAddr != "" {
		cfg.PrometheusEnabled = true
		cfg.PrometheusEndpoint = metricsAddr
	}

	var (
		executor  common.Address
		submitter bot.Submitter
	)
	if !cfg.DryRun {
		withRelay := cfg.SubmitMode == config.SubmitRelay
		secure, err := config.LoadSecureConfig(withRelay)
		if err != nil {
			return err
		}
		signer := flashbots.NewSigner(rt.client, secure.ExecutorKey, new(big.Int).SetUint64(cfg.ChainID))
		executor = signer.Executor()

		if withRelay {
			relay := flashbots.NewClient(cfg.FlashbotsRelay, secure.FlashbotsKey, cfg.FlashbotsRateLimit.Limiter())
			submitter = flashbots.NewSubmitter(relay, rt.client, secure.ExecutorKey,
				new(big.Int).SetUint64(cfg.ChainID), cfg.SimulateBundles, log.Named("flashbots"))

			if block, err := rt.client.BlockNumber(ctx); err == nil {
				stats, err := relay.GetStats(ctx, block)
				if err != nil {
					log.Warn("Failed to read relay reputation", zap.Error(err))
				} else {
					log.Info("Relay reputation", zap.Any("stats", stats))
				}
			}
		} else {
			submitter = flashbots.NewDirectSubmitter(rt.client, signer, log.Named("direct"))
		}
	}

	var journal bot.Journal
	if cfg.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0755); err != nil {
			return fmt.Errorf("failed to create journal directory: %w", err)
		}
		j, err := storage.OpenJournal(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		journal = j
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	b, err := rt.newBot(executor, submitter, journal, reg)
	if err != nil {
		return err
	}

	heads, err := monitor.NewHeadMonitor(rt.client, cfg.BlockPollInterval, cfg.RPCRateLimit.Limiter(), log.Named("heads"))
	if err != nil {
		return err
	}

	rt.describeMarkets(ctx)
	log.Info("Starting tierarb",
		zap.Uint64("chain_id", cfg.ChainID),
		zap.String("arbitrageur", cfg.Arbitrageur.Hex()),
		zap.String("executor", executor.Hex()),
		zap.Bool("dry_run", cfg.DryRun),
		zap.String("submit_mode", cfg.SubmitMode),
		zap.String("min_profit", rt.formatWeth(ctx, cfg.MinProfitThreshold.Int)))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.PrometheusEnabled {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.PrometheusEndpoint, reg, log)
		})
	}
	g.Go(func() error {
		return b.Run(gctx, heads.Start(gctx))
	})

	err = g.Wait()
	if ctx.Err() != nil {
		log.Info("Shutting down gracefully...")
		return nil
	}
	return err
}
