package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bridge-aggregator/pkg/aggregator"
	"bridge-aggregator/pkg/metrics"
	"bridge-aggregator/pkg/parser"
	"bridge-aggregator/pkg/types"
)

var (
	fromChain   string
	toChain     string
	watchQuotes bool
	metricsAddr string
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <token> [on <chain>] to <token> [on <chain>]",
	Short: "Compare bridge quotes across providers",
	Long: `Ask every configured bridge provider for a quote and rank them by the amount
received on the destination chain.

Examples:
  bridge-aggregator quote 100 USDC on arbitrum to USDC on base
  bridge-aggregator quote 0.25 ETH to ETH --from-chain optimism --to-chain arbitrum
  bridge-aggregator quote 1000 USDT on ethereum to USDT on polygon --watch`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&fromChain, "from-chain", "", "Source chain (optional if given inline)")
	quoteCmd.Flags().StringVar(&toChain, "to-chain", "", "Destination chain (optional if given inline)")
	quoteCmd.Flags().BoolVarP(&watchQuotes, "watch", "w", false, "Keep refreshing quotes until interrupted")
	quoteCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while watching (e.g. :9090)")
}

// parseRequest turns command arguments and chain flags into a quote request
func parseRequest(a *app, args []string) (*types.QuoteRequest, error) {
	command, err := parser.ParseBridgeCommand(strings.Join(args, " "))
	if err != nil {
		return nil, err
	}
	if fromChain != "" {
		command.FromChain = strings.ToLower(fromChain)
	}
	if toChain != "" {
		command.ToChain = strings.ToLower(toChain)
	}
	return parser.ToQuoteRequest(command, a.registry, a.catalog)
}

func runQuote(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	req, err := parseRequest(a, args)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	set, err := a.bridges()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if watchQuotes {
		recorder = a.metrics(metricsAddr)
	}

	agg := aggregator.New(set,
		aggregator.WithLogger(a.logger),
		aggregator.WithTimeout(a.cfg.ProviderTimeout),
		aggregator.WithRefreshInterval(a.cfg.RefreshInterval),
		aggregator.WithMetrics(recorder),
	)

	if watchQuotes {
		watchQuoteUpdates(a, agg, req)
		return
	}

	stop := a.spin(fmt.Sprintf("Fetching quotes from %d providers...", set.Len()))
	res, err := agg.FetchQuotes(cmd.Context(), req)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.jsonOutput {
		printJSON(map[string]interface{}{
			"request": req,
			"quotes":  toQuoteViews(res.Quotes),
			"failed":  len(res.Failures),
		})
		return
	}
	displayQuotes(req, res.Quotes, res.Failures, a.verbose)
}

func watchQuoteUpdates(a *app, agg *aggregator.Aggregator, req *types.QuoteRequest) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !a.jsonOutput {
		fmt.Printf("\nWatching quotes, refreshing every %s. Press Ctrl+C to stop.\n", a.cfg.RefreshInterval)
	}

	agg.SetActiveRequest(req)
	defer agg.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-agg.Updates():
			if !ok {
				return
			}
			if snap.Err != nil {
				color.Red("Error: %v", snap.Err)
				continue
			}
			if a.jsonOutput {
				printJSON(map[string]interface{}{
					"round":      snap.Round,
					"updated_at": snap.UpdatedAt.Format(time.RFC3339),
					"quotes":     toQuoteViews(snap.Quotes),
				})
				continue
			}
			fmt.Printf("\nUpdated %s\n", snap.UpdatedAt.Format("15:04:05"))
			displayQuotes(req, snap.Quotes, snap.Failures, a.verbose)
		}
	}
}
