package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"bridge-aggregator/pkg/client"
	"bridge-aggregator/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
	statusChain   string
	depositAddr   string
)

var statusCmd = &cobra.Command{
	Use:   "status [tx-hash]",
	Short: "Check the status of a bridge transaction",
	Long: `Check a submitted bridge transaction on its source chain, or follow a 1Click
swap by its deposit address.

Examples:
  bridge-aggregator status 0xabc...def --chain arbitrum
  bridge-aggregator status --deposit 0x1234...abcd --watch
  bridge-aggregator status --deposit 0x1234...abcd --watch --interval 10`,
	Args: cobra.MaximumNArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
	statusCmd.Flags().StringVar(&statusChain, "chain", "", "Source chain of the transaction")
	statusCmd.Flags().StringVar(&depositAddr, "deposit", "", "1Click deposit address to follow")
}

func runStatus(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var check func(ctx context.Context) (interface{}, error)
	var display func(v interface{})

	switch {
	case depositAddr != "":
		c := a.oneClickClient()
		if c == nil {
			printError(fmt.Errorf("1Click JWT not found. Please set BRIDGE_AGG_ONECLICK_JWT or oneclick_jwt in .bridge-aggregator.yaml"))
			os.Exit(1)
		}
		check = depositStatusCheck(c, depositAddr)
		display = func(v interface{}) {
			displayStatus(v.(*oneclick.GetExecutionStatusResponse), depositAddr)
		}
	case len(args) == 1:
		check, err = receiptCheck(a, args[0])
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		display = func(v interface{}) {
			displayReceipt(v.(*ethtypes.Receipt), args[0])
		}
	default:
		printError(errors.New("provide a transaction hash with --chain, or --deposit <address>"))
		os.Exit(1)
	}

	if watchStatus {
		watchTxStatus(ctx, a.jsonOutput, check, display)
		return
	}

	stopSpin := a.spin("Checking status...")
	v, err := check(ctx)
	stopSpin()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.jsonOutput {
		printJSON(v)
	} else {
		display(v)
	}
}

func depositStatusCheck(c *client.OneClickClient, address string) func(ctx context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		return c.GetSwapStatus(ctx, address)
	}
}

func receiptCheck(a *app, hashHex string) (func(ctx context.Context) (interface{}, error), error) {
	if statusChain == "" {
		return nil, errors.New("--chain is required when checking a transaction hash")
	}
	chain, ok := a.registry.ByName(statusChain)
	if !ok {
		return nil, types.UnsupportedChain(statusChain)
	}
	if !strings.HasPrefix(hashHex, "0x") || len(hashHex) != 66 {
		return nil, fmt.Errorf("invalid transaction hash: %s", hashHex)
	}
	hash := common.HexToHash(hashHex)

	w, err := a.wallet()
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (interface{}, error) {
		receipt, err := w.Receipt(ctx, chain.ID, hash)
		if errors.Is(err, ethereum.NotFound) {
			return (*ethtypes.Receipt)(nil), nil
		}
		return receipt, err
	}, nil
}

func watchTxStatus(ctx context.Context, jsonOutput bool, check func(ctx context.Context) (interface{}, error), display func(v interface{})) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	for {
		v, err := check(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			color.Red("Error: %v", err)
		} else {
			display(v)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func displayReceipt(receipt *ethtypes.Receipt, hash string) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                     TRANSACTION STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Transaction:     %s\n", color.CyanString(hash))
	if receipt == nil {
		fmt.Printf("  Status:          %s\n", getColoredStatus("PENDING"))
		fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
		return
	}

	status := "FAILED"
	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		status = "SUCCESS"
	}
	fmt.Printf("  Status:          %s\n", getColoredStatus(status))
	if receipt.BlockNumber != nil {
		fmt.Printf("  Block:           %s\n", receipt.BlockNumber.String())
	}
	fmt.Printf("  Gas Used:        %d\n", receipt.GasUsed)

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func displayStatus(status *oneclick.GetExecutionStatusResponse, depositAddress string) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SWAP STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Deposit Address: %s\n", color.CyanString(depositAddress))
	fmt.Printf("  Status:          %s\n", getColoredStatus(status.GetStatus()))
	fmt.Printf("  Last Updated:    %s\n", status.GetUpdatedAt().Format("2006-01-02 15:04:05"))

	swapDetails := status.GetSwapDetails()

	for _, tx := range swapDetails.GetOriginChainTxHashes() {
		if hash := tx.GetHash(); hash != "" {
			fmt.Printf("  Deposit Tx:      %s\n", color.HiBlackString(hash))
		}
	}

	for _, tx := range swapDetails.GetDestinationChainTxHashes() {
		if hash := tx.GetHash(); hash != "" {
			fmt.Printf("  Withdrawal Tx:   %s\n", color.HiBlackString(hash))
		}
	}

	if swapDetails.HasAmountInFormatted() {
		fmt.Printf("  Amount In:       %s\n", swapDetails.GetAmountInFormatted())
	}
	if swapDetails.HasAmountOutFormatted() {
		fmt.Printf("  Amount Out:      %s\n", swapDetails.GetAmountOutFormatted())
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "SUCCESS", "COMPLETED":
		return color.GreenString(status)
	case "PENDING_DEPOSIT", "PENDING", "PROCESSING", "SUBMITTING", "APPROVAL_SUBMITTING":
		return color.YellowString(status)
	case "FAILED", "REFUNDED":
		return color.RedString(status)
	case "INCOMPLETE_DEPOSIT", "NEEDS_APPROVAL":
		return color.MagentaString(status)
	default:
		return status
	}
}
