package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bridge-aggregator",
	Short: "Compare and execute cross-chain bridge quotes",
	Long: `bridge-aggregator asks several bridge providers (Synapse, deBridge, Across
and NEAR Intents 1Click) for a price on the same transfer, ranks the answers by
the amount you receive, and submits the transaction for the one you pick.

Examples:
  bridge-aggregator quote 100 USDC on arbitrum to USDC on base
  bridge-aggregator quote 0.5 ETH on optimism to ETH on arbitrum --watch
  bridge-aggregator bridge 100 USDC on arbitrum to USDC on base
  bridge-aggregator balances --chain base
  bridge-aggregator status 0xabc... --chain arbitrum`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\n%s %v\n\n", color.RedString("Error:"), err)
}

func printSuccess(message string) {
	color.Green("\n%s\n", message)
}
