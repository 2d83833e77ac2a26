package cmd

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var scanBlock int64

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Evaluate every market once and print the best plan without submitting",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd.Context(), cmd)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Int64Var(&scanBlock, "block", -1, "block to evaluate (default is the latest)")
}

func runScan(ctx context.Context, cmd *cobra.Command) error {
	rt, err := loadRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	var number *big.Int
	if scanBlock >= 0 {
		number = big.NewInt(scanBlock)
	}
	header, err := rt.client.HeaderByNumber(ctx, number)
	if err != nil {
		return fmt.Errorf("failed to get header: %w", err)
	}

	b, err := rt.newBot(common.Address{}, nil, nil, nil)
	if err != nil {
		return err
	}
	outcome, err := b.ProcessBlock(ctx, header)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outcome == nil {
		fmt.Fprintf(out, "block %d: no profitable opportunity\n", header.Number.Uint64())
		return nil
	}
	if outcome.Plan == nil {
		fmt.Fprintf(out, "block %d: %s (%s)\n", outcome.BlockNumber, outcome.Status, outcome.Reason)
		return nil
	}

	opp := outcome.Plan.Opportunity
	fmt.Fprintf(out, "block %d: %s\n", outcome.BlockNumber, opp.Direction())
	fmt.Fprintf(out, "  amount in:    %s\n", rt.formatWeth(ctx, opp.AmountIn))
	fmt.Fprintf(out, "  gross profit: %s\n", rt.formatWeth(ctx, opp.GrossProfit))
	fmt.Fprintf(out, "  gas cost:     %s\n", rt.formatWeth(ctx, opp.GasCost))
	fmt.Fprintf(out, "  bribe:        %s\n", rt.formatWeth(ctx, opp.Bribe))
	fmt.Fprintf(out, "  net profit:   %s\n", rt.formatWeth(ctx, opp.NetProfit))
	fmt.Fprintf(out, "  simulation:   %s %s\n", outcome.Status, outcome.Reason)
	fmt.Fprintf(out, "  calldata:     0x%x\n", outcome.Plan.Calldata)
	return nil
}
