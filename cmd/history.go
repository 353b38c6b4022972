package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [attempt-id]",
	Short: "Show past bridge attempts",
	Long: `Show bridge attempts recorded by this machine, newest first, or the details
of one attempt.

Examples:
  bridge-aggregator history
  bridge-aggregator history --limit 5
  bridge-aggregator history 6f1c2a7e-...`,
	Args: cobra.MaximumNArgs(1),
	Run:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of attempts to show")
}

func runHistory(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	store, err := a.history()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if len(args) == 1 {
		attempt, err := store.Get(args[0])
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		if a.jsonOutput {
			printJSON(attempt)
			return
		}
		fmt.Println()
		fmt.Printf("  ID:              %s\n", attempt.ID)
		fmt.Printf("  Provider:        %s\n", attempt.Provider)
		fmt.Printf("  Route:           %s %s -> %s\n", attempt.FromAmount, attempt.FromToken, attempt.ToToken)
		fmt.Printf("  Expected Output: %s\n", attempt.ExpectedOutput)
		fmt.Printf("  Recipient:       %s\n", attempt.Recipient)
		fmt.Printf("  Status:          %s\n", getColoredStatus(attempt.Status))
		if attempt.ApprovalHash != "" {
			fmt.Printf("  Approval Tx:     %s\n", color.HiBlackString(attempt.ApprovalHash))
		}
		if attempt.TxHash != "" {
			fmt.Printf("  Bridge Tx:       %s\n", color.HiBlackString(attempt.TxHash))
		}
		if attempt.Error != "" {
			fmt.Printf("  Error:           %s\n", color.RedString(attempt.Error))
		}
		fmt.Printf("  Updated:         %s\n\n", attempt.UpdatedAt.Format("2006-01-02 15:04:05"))
		return
	}

	attempts := store.List()
	if historyLimit > 0 && len(attempts) > historyLimit {
		attempts = attempts[:historyLimit]
	}

	if a.jsonOutput {
		printJSON(attempts)
		return
	}

	if len(attempts) == 0 {
		fmt.Println("\nNo bridge attempts recorded yet.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	color.Green("                                      BRIDGE HISTORY")
	fmt.Println(strings.Repeat("=", 100))

	for _, attempt := range attempts {
		fmt.Printf("\n  %s  %-10s  %s %s -> %s  %s\n",
			attempt.CreatedAt.Format("2006-01-02 15:04"),
			attempt.Provider,
			attempt.FromAmount,
			attempt.FromToken,
			attempt.ToToken,
			getColoredStatus(attempt.Status))
		fmt.Printf("  %s\n", color.HiBlackString(attempt.ID))
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	fmt.Printf("\nTotal: %d attempts (%s)\n\n", store.Count(), store.FilePath())
}
