package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"bridge-aggregator/pkg/aggregator"
	"bridge-aggregator/pkg/executor"
	"bridge-aggregator/pkg/types"
	"bridge-aggregator/pkg/wallet"
)

const receiptTimeout = 3 * time.Minute

var (
	recipientAddr string
	providerName  string
	noConfirm     bool
	autoApprove   bool
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge <amount> <token> [on <chain>] to <token> [on <chain>]",
	Short: "Bridge tokens using the best available quote",
	Long: `Fetch quotes from every provider, pick the best one (or --provider), and submit
the bridge transaction from the configured wallet.

If the provider's contract is not yet allowed to spend the token, the exact
amount is approved first (after confirmation, or automatically with --approve).

IMPORTANT:
  - A private key must be configured (BRIDGE_AGG_PRIVATE_KEY or private_key)
  - Funds arrive at --recipient, which defaults to the wallet address

Examples:
  bridge-aggregator bridge 100 USDC on arbitrum to USDC on base
  bridge-aggregator bridge 0.1 ETH on base to ETH on optimism --provider Across --yes
  bridge-aggregator bridge 50 DAI on ethereum to DAI on arbitrum --approve`,
	Args: cobra.MinimumNArgs(1),
	Run:  runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)

	bridgeCmd.Flags().StringVar(&fromChain, "from-chain", "", "Source chain (optional if given inline)")
	bridgeCmd.Flags().StringVar(&toChain, "to-chain", "", "Destination chain (optional if given inline)")
	bridgeCmd.Flags().StringVar(&recipientAddr, "recipient", "", "Recipient on the destination chain (defaults to the wallet address)")
	bridgeCmd.Flags().StringVar(&providerName, "provider", "", "Use this provider instead of the best quote")
	bridgeCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompts")
	bridgeCmd.Flags().BoolVar(&autoApprove, "approve", false, "Approve the exact amount automatically when required")
}

func runBridge(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if !a.cfg.HasWallet() {
		printError(types.ErrWalletNotConnected)
		os.Exit(1)
	}

	req, err := parseRequest(a, args)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	w, err := a.wallet()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer w.Close()

	owner, _ := w.Address()
	recipient := owner
	if recipientAddr != "" {
		if !common.IsHexAddress(recipientAddr) {
			printError(fmt.Errorf("invalid recipient address: %s", recipientAddr))
			os.Exit(1)
		}
		recipient = common.HexToAddress(recipientAddr)
	}

	set, err := a.bridges()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	agg := aggregator.New(set, aggregator.WithLogger(a.logger), aggregator.WithTimeout(a.cfg.ProviderTimeout))
	stop := a.spin(fmt.Sprintf("Fetching quotes from %d providers...", set.Len()))
	res, err := agg.FetchQuotes(cmd.Context(), req)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	quote, err := selectQuote(res.Quotes, providerName)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if !a.jsonOutput {
		displayQuotes(req, res.Quotes, res.Failures, a.verbose)
		fmt.Printf("  Selected:  %s\n", color.CyanString(string(quote.Provider)))
		fmt.Printf("  Recipient: %s\n", recipient.Hex())
	}

	if !noConfirm && !a.jsonOutput {
		if !confirm("\nProceed with bridge?") {
			fmt.Println("\nBridge cancelled.")
			os.Exit(0)
		}
	}

	journal, err := a.history()
	if err != nil {
		a.logger.WithError(err).Warn("History disabled")
	}
	opts := []executor.Option{
		executor.WithLogger(a.logger),
		executor.WithMetrics(a.metrics("")),
	}
	if journal != nil {
		opts = append(opts, executor.WithJournal(journal))
	}
	ex := executor.New(w, a.registry, set, opts...)

	st, err := executeQuote(cmd.Context(), a, ex, w, quote, recipient)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.jsonOutput {
		printJSON(map[string]interface{}{
			"attempt_id":    st.AttemptID,
			"provider":      st.Provider,
			"status":        st.Status,
			"tx_hash":       st.TxHash.Hex(),
			"approval_hash": hashOrEmpty(st.ApprovalHash),
		})
		return
	}

	printSuccess("✓ Bridge transaction submitted!")
	fmt.Printf("  Transaction: %s\n", color.CyanString(st.TxHash.Hex()))
	fmt.Println("\nYou can follow the transaction using:")
	color.Cyan("  bridge-aggregator status %s --chain %s\n", st.TxHash.Hex(), strings.ToLower(quote.FromToken.Chain))
}

// executeQuote drives the executor through the chain switch and approval
// sub-cycles until the bridge transaction is submitted
func executeQuote(ctx context.Context, a *app, ex *executor.Executor, w *wallet.Wallet, quote *types.BridgeQuote, recipient common.Address) (executor.State, error) {
	st, err := ex.Execute(ctx, quote, recipient)
	if errors.Is(err, types.ErrChainMismatch) {
		if !a.jsonOutput {
			fmt.Printf("\nSwitched wallet to %s.\n", quote.FromToken.Chain)
		}
		st, err = ex.Execute(ctx, quote, recipient)
	}
	if err != nil {
		return st, err
	}
	if st.Status != executor.StatusNeedsApproval {
		return st, nil
	}

	if !a.jsonOutput {
		color.Yellow("\n%s must be approved to spend %s %s (current allowance %s).",
			st.Spender.Hex(),
			types.FormatAmount(st.Required, quote.FromToken.Decimals), quote.FromToken.Symbol,
			types.FormatAmount(st.Allowance, quote.FromToken.Decimals))
	}
	if !autoApprove && !noConfirm && (a.jsonOutput || !confirm("Approve the exact amount?")) {
		return st, errors.New("approval required; re-run with --approve or use the approve command")
	}

	stop := a.spin("Waiting for approval to confirm...")
	hash, err := ex.ApproveQuote(ctx, quote)
	if err == nil {
		err = waitForReceipt(ctx, w, w.ChainID(), hash)
	}
	stop()
	if err != nil {
		return ex.State(), err
	}
	if !a.jsonOutput {
		fmt.Printf("\n  Approval:    %s\n", color.CyanString(hash.Hex()))
	}

	return ex.Execute(ctx, quote, recipient)
}

func selectQuote(quotes []*types.BridgeQuote, provider string) (*types.BridgeQuote, error) {
	if len(quotes) == 0 {
		return nil, types.ErrNoQuotes
	}
	if provider == "" {
		return quotes[0], nil
	}
	for _, q := range quotes {
		if strings.EqualFold(string(q.Provider), provider) {
			return q, nil
		}
	}
	return nil, errors.Wrapf(types.ErrUnknownProvider, "no quote from %s", provider)
}

func waitForReceipt(ctx context.Context, w *wallet.Wallet, chainID uint64, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := w.Receipt(ctx, chainID, hash)
		switch {
		case err == nil && receipt.Status == ethtypes.ReceiptStatusSuccessful:
			return nil
		case err == nil:
			return fmt.Errorf("transaction %s reverted", hash.Hex())
		case !errors.Is(err, ethereum.NotFound):
			return errors.Wrap(err, "failed to get receipt")
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "transaction %s not mined", hash.Hex())
		case <-ticker.C:
		}
	}
}

func hashOrEmpty(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("%s (y/N): ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
