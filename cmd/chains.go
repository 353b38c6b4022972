package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List supported chains",
	Run:   runChains,
}

func init() {
	rootCmd.AddCommand(chainsCmd)
}

func runChains(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	all := a.registry.All()
	if a.jsonOutput {
		printJSON(all)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SUPPORTED CHAINS")
	fmt.Println(strings.Repeat("=", 70) + "\n")
	for _, c := range all {
		fmt.Printf("  %-10s %8d  %-5s %s\n", color.YellowString(c.Name), c.ID, c.NativeSymbol, color.HiBlackString(c.RPCURL))
	}
	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}
