package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/tierarb/config"
	"github.com/michaelpento.lv/tierarb/dex"
	"github.com/michaelpento.lv/tierarb/storage"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the most recent journaled plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnv(); err != nil {
			return err
		}
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		journal, err := storage.OpenJournal(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer journal.Close()

		entries, err := journal.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		weth := dex.Token{Address: cfg.WETH, Symbol: "WETH", Decimals: 18}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BLOCK\tDIRECTION\tNET PROFIT\tOUTCOME\tTX\tDETAIL")
		for _, e := range entries {
			tx := "-"
			if e.TxHash != (common.Hash{}) {
				tx = e.TxHash.Hex()
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				e.BlockNumber, e.Direction, weth.Format(e.NetProfit), e.Outcome, tx, e.Detail)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of plans to show")
}
