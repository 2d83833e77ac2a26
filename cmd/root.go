package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
	debug   bool
	logDir  string
)

var rootCmd = &cobra.Command{
	Use:   "tierarb",
	Short: "A two-venue arbitrage bot for tiered and constant-product pools",
	Long: `tierarb watches new blocks, prices every configured token pair on a
tiered concentrated-liquidity hub and a constant-product pair, and submits
the most profitable round trip through the settlement contract as a
Flashbots bundle for the next block.`,
	SilenceUsage: true,
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./tierarb.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "dotenv file with keys and endpoints (default is ./.env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "also write logs to this directory (overrides log_dir)")
}
