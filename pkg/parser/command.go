package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/tokens"
	"bridge-aggregator/pkg/types"
)

// BridgeCommand is a parsed "<amount> <token> [on <chain>] to <token> [on <chain>]"
// command. Chains are empty when not given inline.
type BridgeCommand struct {
	Amount     string
	FromSymbol string
	FromChain  string
	ToSymbol   string
	ToChain    string
}

var commandPattern = regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Z0-9.]+)(?:\s+ON\s+([A-Z0-9]+))?\s+TO\s+([A-Z0-9.]+)(?:\s+ON\s+([A-Z0-9]+))?$`)

// ParseBridgeCommand parses a natural language bridge command
// Examples:
//   - "100 USDC on ethereum to USDC on arbitrum"
//   - "quote 0.5 ETH on base to ETH on optimism"
//   - "25 DAI to DAI" (chains supplied separately)
func ParseBridgeCommand(command string) (*BridgeCommand, error) {
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")
	command = strings.TrimPrefix(command, "QUOTE ")
	command = strings.TrimPrefix(command, "BRIDGE ")

	matches := commandPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid command format. Expected: '<amount> <token> on <chain> to <token> on <chain>' (e.g., '100 USDC on ethereum to USDC on arbitrum')")
	}

	return &BridgeCommand{
		Amount:     matches[1],
		FromSymbol: NormalizeTokenSymbol(matches[2]),
		FromChain:  strings.ToLower(matches[3]),
		ToSymbol:   NormalizeTokenSymbol(matches[4]),
		ToChain:    strings.ToLower(matches[5]),
	}, nil
}

// ValidateBridgeCommand checks that every field needed to build a request is set
func ValidateBridgeCommand(cmd *BridgeCommand) error {
	if cmd.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if cmd.FromSymbol == "" || cmd.ToSymbol == "" {
		return fmt.Errorf("source and destination tokens are required")
	}
	if cmd.FromChain == "" {
		return fmt.Errorf("source chain is required (use 'on <chain>' or --from-chain)")
	}
	if cmd.ToChain == "" {
		return fmt.Errorf("destination chain is required (use 'on <chain>' or --to-chain)")
	}
	return nil
}

// NormalizeTokenSymbol normalizes token symbols to the catalog's spelling
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"MATIC":  "POL",
		"USDC.E": "USDC.e",
		"USDCE":  "USDC.e",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}

// ToQuoteRequest resolves chains and tokens and converts the amount to the
// source token's smallest unit.
func ToQuoteRequest(cmd *BridgeCommand, registry *chains.Registry, catalog *tokens.Catalog) (*types.QuoteRequest, error) {
	if err := ValidateBridgeCommand(cmd); err != nil {
		return nil, err
	}

	fromChain, ok := registry.ByName(cmd.FromChain)
	if !ok {
		return nil, types.UnsupportedChain(cmd.FromChain)
	}
	toChain, ok := registry.ByName(cmd.ToChain)
	if !ok {
		return nil, types.UnsupportedChain(cmd.ToChain)
	}

	fromToken, ok := catalog.Lookup(cmd.FromSymbol, fromChain.Name)
	if !ok {
		return nil, fmt.Errorf("token '%s' not found on chain '%s'", cmd.FromSymbol, fromChain.Name)
	}
	toToken, ok := catalog.Lookup(cmd.ToSymbol, toChain.Name)
	if !ok {
		return nil, fmt.Errorf("token '%s' not found on chain '%s'", cmd.ToSymbol, toChain.Name)
	}

	amount, err := types.ToSmallestUnit(cmd.Amount, fromToken.Decimals)
	if err != nil {
		return nil, errors.Wrap(err, "invalid amount")
	}

	return &types.QuoteRequest{
		FromToken: fromToken,
		ToToken:   toToken,
		Amount:    amount.String(),
	}, nil
}
