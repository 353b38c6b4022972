package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"bridge-aggregator/pkg/types"
)

type quoteView struct {
	Rank           int     `json:"rank"`
	Provider       string  `json:"provider"`
	FromAmount     string  `json:"from_amount"`
	ExpectedOutput string  `json:"expected_output"`
	FeeAmount      string  `json:"fee_amount"`
	EstimatedGas   string  `json:"estimated_gas_cost"`
	PriceImpact    float64 `json:"price_impact_pct"`
}

func toQuoteViews(quotes []*types.BridgeQuote) []quoteView {
	views := make([]quoteView, 0, len(quotes))
	for i, q := range quotes {
		views = append(views, quoteView{
			Rank:           i + 1,
			Provider:       string(q.Provider),
			FromAmount:     types.FormatAmount(q.FromAmount, q.FromToken.Decimals),
			ExpectedOutput: types.FormatAmount(q.ExpectedOutput, q.ToToken.Decimals),
			FeeAmount:      types.FormatAmount(q.FeeAmount, q.FromToken.Decimals),
			EstimatedGas:   q.EstimatedGasCost,
			PriceImpact:    q.PriceImpact,
		})
	}
	return views
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func displayQuotes(req *types.QuoteRequest, quotes []*types.BridgeQuote, failures []*types.ProviderQuoteError, verbose bool) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	color.Green("                               BRIDGE QUOTES")
	fmt.Println(strings.Repeat("=", 80))

	amount, _ := req.AmountInt()
	fmt.Printf("\n  Send:  %s %s on %s\n", types.FormatAmount(amount, req.FromToken.Decimals),
		color.YellowString(req.FromToken.Symbol), req.FromToken.Chain)
	fmt.Printf("  Into:  %s on %s\n\n", color.YellowString(req.ToToken.Symbol), req.ToToken.Chain)

	if len(quotes) == 0 {
		color.Yellow("  No quotes available for this route.")
	} else {
		fmt.Printf("  %-4s %-10s %-22s %-18s %-14s %s\n", "#", "PROVIDER", "RECEIVE", "FEE", "GAS", "IMPACT")
		fmt.Println("  " + strings.Repeat("-", 76))
		for _, v := range toQuoteViews(quotes) {
			receive := fmt.Sprintf("%-22s", v.ExpectedOutput+" "+req.ToToken.Symbol)
			if v.Rank == 1 {
				receive = color.GreenString(receive)
			}
			fmt.Printf("  %-4d %-10s %s %-18s %-14s %.2f%%\n",
				v.Rank, v.Provider, receive, v.FeeAmount+" "+req.FromToken.Symbol, v.EstimatedGas, v.PriceImpact)
		}
	}

	if verbose && len(failures) > 0 {
		fmt.Println()
		for _, f := range failures {
			fmt.Printf("  %s %s\n", color.HiBlackString("skipped"), color.HiBlackString(f.Error()))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 80) + "\n")
}
