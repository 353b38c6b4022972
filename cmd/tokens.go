package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bridge-aggregator/pkg/types"
)

var (
	filterChain   string
	filterSymbol  string
	oneClickAsset bool
)

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Aliases: []string{"list-tokens", "ls"},
	Short:   "List supported tokens",
	Long: `List the tokens that can be bridged, grouped by chain.

With --oneclick the list comes from the NEAR Intents 1Click API instead of the
built-in catalog (requires oneclick_jwt).

Examples:
  bridge-aggregator tokens
  bridge-aggregator tokens --chain arbitrum
  bridge-aggregator tokens --symbol USDC --oneclick`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by chain")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
	tokensCmd.Flags().BoolVar(&oneClickAsset, "oneclick", false, "List 1Click assets instead of the catalog")
}

func runListTokens(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if oneClickAsset {
		listOneClickTokens(cmd, a)
		return
	}

	chainName := filterChain
	if filterChain != "" {
		c, ok := a.registry.ByName(filterChain)
		if !ok {
			printError(types.UnsupportedChain(filterChain))
			os.Exit(1)
		}
		chainName = c.Name
	}
	filtered := a.catalog.Filter(chainName, filterSymbol)

	if a.jsonOutput {
		printJSON(filtered)
		return
	}

	rows := make([]tokenRow, 0, len(filtered))
	for _, t := range filtered {
		address := t.Address
		if t.IsNative() {
			address = "native"
		}
		rows = append(rows, tokenRow{chain: t.Chain, symbol: t.Symbol, decimals: float64(t.Decimals), address: address})
	}
	displayTokens(rows)
}

func listOneClickTokens(cmd *cobra.Command, a *app) {
	c := a.oneClickClient()
	if c == nil {
		printError(fmt.Errorf("1Click JWT not found. Please set BRIDGE_AGG_ONECLICK_JWT or oneclick_jwt in .bridge-aggregator.yaml"))
		os.Exit(1)
	}

	stop := a.spin("Fetching supported tokens...")
	tokens, err := c.GetSupportedTokens(cmd.Context())
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	var filtered []oneclick.TokenResponse
	for _, token := range tokens {
		if filterChain != "" && !strings.EqualFold(token.GetBlockchain(), filterChain) {
			continue
		}
		if filterSymbol != "" && !strings.Contains(strings.ToUpper(token.GetSymbol()), strings.ToUpper(filterSymbol)) {
			continue
		}
		filtered = append(filtered, token)
	}

	if a.jsonOutput {
		printJSON(filtered)
		return
	}

	rows := make([]tokenRow, 0, len(filtered))
	for _, token := range filtered {
		rows = append(rows, tokenRow{
			chain:    token.GetBlockchain(),
			symbol:   token.GetSymbol(),
			decimals: float64(token.GetDecimals()),
			address:  token.GetContractAddress(),
		})
	}
	displayTokens(rows)
}

type tokenRow struct {
	chain    string
	symbol   string
	decimals float64
	address  string
}

func displayTokens(tokens []tokenRow) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	tokensByChain := make(map[string][]tokenRow)
	for _, token := range tokens {
		tokensByChain[token.chain] = append(tokensByChain[token.chain], token)
	}

	chainNames := make([]string, 0, len(tokensByChain))
	for chain := range tokensByChain {
		chainNames = append(chainNames, chain)
	}
	sort.Strings(chainNames)

	for _, chain := range chainNames {
		color.Cyan("\n%s", strings.ToUpper(chain))
		fmt.Println(strings.Repeat("-", 90))

		for _, token := range tokensByChain[chain] {
			address := token.address
			if len(address) > 44 {
				address = address[:41] + "..."
			}

			fmt.Printf("  %-10s  %2.0f decimals  %s\n",
				color.YellowString(token.symbol),
				token.decimals,
				color.HiBlackString(address))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens across %d chains\n\n", len(tokens), len(chainNames))
}
