package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"bridge-aggregator/pkg/balances"
	"bridge-aggregator/pkg/types"
)

var (
	balanceChain   string
	balanceAddress string
	watchBalances  bool
)

var balancesCmd = &cobra.Command{
	Use:     "balances",
	Aliases: []string{"balance"},
	Short:   "Show token balances",
	Long: `Show non-zero balances of the catalog tokens for the wallet (or --address),
on one chain or across every supported chain.

Examples:
  bridge-aggregator balances
  bridge-aggregator balances --chain base
  bridge-aggregator balances --address 0x1234...abcd --watch`,
	Run: runBalances,
}

func init() {
	rootCmd.AddCommand(balancesCmd)

	balancesCmd.Flags().StringVar(&balanceChain, "chain", "", "Only this chain")
	balancesCmd.Flags().StringVar(&balanceAddress, "address", "", "Owner address (defaults to the wallet address)")
	balancesCmd.Flags().BoolVarP(&watchBalances, "watch", "w", false, "Refresh balances continuously")
}

func runBalances(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	chainName := ""
	if balanceChain != "" {
		c, ok := a.registry.ByName(balanceChain)
		if !ok {
			printError(types.UnsupportedChain(balanceChain))
			os.Exit(1)
		}
		chainName = c.Name
	}

	w, err := a.wallet()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer w.Close()

	owner, err := balanceOwner(balanceAddress, w.Address)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	svc, err := balances.NewService(w, a.registry, a.catalog,
		balances.WithTTL(a.cfg.BalanceTTL),
		balances.WithLogger(a.logger))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watchBalances {
		if a.jsonOutput {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}
		fmt.Printf("\nWatching balances of %s. Press Ctrl+C to stop.\n", color.CyanString(owner.Hex()))
		svc.Poll(ctx, owner, chainName, a.cfg.BalanceTTL, func(list []balances.Balance, err error) {
			if err != nil {
				color.Red("Error: %v", err)
				return
			}
			displayBalances(owner, list)
		})
		return
	}

	stopSpin := a.spin("Fetching balances...")
	list, err := svc.Balances(ctx, owner, chainName)
	stopSpin()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.jsonOutput {
		printJSON(list)
		return
	}
	displayBalances(owner, list)
}

// balanceOwner prefers an explicit address over the wallet's own
func balanceOwner(explicit string, walletAddress func() (common.Address, error)) (common.Address, error) {
	if explicit != "" {
		if !common.IsHexAddress(explicit) {
			return common.Address{}, fmt.Errorf("invalid address: %s", explicit)
		}
		return common.HexToAddress(explicit), nil
	}
	addr, err := walletAddress()
	if err != nil {
		return common.Address{}, errors.Wrap(err, "no --address given and no private key configured")
	}
	return addr, nil
}

func displayBalances(owner common.Address, list []balances.Balance) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                          BALANCES")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\n  Owner: %s (%s)\n\n", color.CyanString(owner.Hex()), time.Now().Format("15:04:05"))

	if len(list) == 0 {
		fmt.Println("  No balances found.")
	}
	for _, b := range list {
		fmt.Printf("  %-10s %-10s %s\n",
			color.YellowString(b.Token.Symbol),
			b.Token.Chain,
			b.Formatted())
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}
