package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bridge-aggregator/pkg/executor"
	"bridge-aggregator/pkg/parser"
	"bridge-aggregator/pkg/types"
	"bridge-aggregator/pkg/wallet"
)

var approveCmd = &cobra.Command{
	Use:   "approve <token> <chain> <spender> <amount>",
	Short: "Approve a spender for an exact token amount",
	Long: `Grant a bridge contract an allowance of exactly <amount> of <token>.

Examples:
  bridge-aggregator approve USDC arbitrum 0xe35e9842fceaCA96570B734083f4a58e8F7C5f2A 100`,
	Args: cobra.ExactArgs(4),
	Run:  runApprove,
}

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runApprove(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	chain, ok := a.registry.ByName(args[1])
	if !ok {
		printError(types.UnsupportedChain(args[1]))
		os.Exit(1)
	}
	token, ok := a.catalog.Lookup(parser.NormalizeTokenSymbol(args[0]), chain.Name)
	if !ok {
		printError(fmt.Errorf("token '%s' not found on chain '%s'", args[0], chain.Name))
		os.Exit(1)
	}
	if !common.IsHexAddress(args[2]) {
		printError(fmt.Errorf("invalid spender address: %s", args[2]))
		os.Exit(1)
	}
	spender := common.HexToAddress(args[2])

	amount, err := types.ToSmallestUnit(args[3], token.Decimals)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	w, err := a.wallet(wallet.WithActiveChain(chain.ID))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer w.Close()

	if !noConfirm && !a.jsonOutput {
		fmt.Printf("\n  Token:   %s on %s\n", color.YellowString(token.Symbol), chain.Name)
		fmt.Printf("  Spender: %s\n", spender.Hex())
		fmt.Printf("  Amount:  %s\n", types.FormatAmount(amount, token.Decimals))
		if !confirm("\nSubmit approval?") {
			fmt.Println("\nApproval cancelled.")
			os.Exit(0)
		}
	}

	journal, err := a.history()
	if err != nil {
		a.logger.WithError(err).Warn("History disabled")
	}
	opts := []executor.Option{executor.WithLogger(a.logger)}
	if journal != nil {
		opts = append(opts, executor.WithJournal(journal))
	}
	ex := executor.New(w, a.registry, nil, opts...)

	stop := a.spin("Submitting approval...")
	hash, err := ex.Approve(cmd.Context(), token, spender, amount)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.jsonOutput {
		printJSON(map[string]string{"approval_hash": hash.Hex()})
		return
	}
	printSuccess("✓ Approval submitted!")
	fmt.Printf("  Transaction: %s\n", color.CyanString(hash.Hex()))
	color.Cyan("  bridge-aggregator status %s --chain %s\n", hash.Hex(), strings.ToLower(chain.Name))
}
