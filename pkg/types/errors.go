package types

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrUnsupportedChain    = errors.New("unsupported chain")
	ErrMissingTokenAddress = errors.New("token address required")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrWalletNotConnected  = errors.New("wallet not connected")
	ErrChainMismatch       = errors.New("wallet is on the wrong chain")
	ErrExecutionInProgress = errors.New("execution already in progress")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrNoQuotes            = errors.New("no quotes available")
	ErrNoTransactionData   = errors.New("transaction data not available")
)

// UnsupportedChain wraps ErrUnsupportedChain with the offending chain name
func UnsupportedChain(chain string) error {
	return errors.Wrapf(ErrUnsupportedChain, "%q", chain)
}

// MissingTokenAddress wraps ErrMissingTokenAddress with the token
func MissingTokenAddress(token Token) error {
	return errors.Wrapf(ErrMissingTokenAddress, "%s", token)
}

// ProviderQuoteError is a single adapter's failure during a round
type ProviderQuoteError struct {
	Provider ProviderName
	Err      error
}

func (e *ProviderQuoteError) Error() string {
	return fmt.Sprintf("%s quote failed: %v", e.Provider, e.Err)
}

func (e *ProviderQuoteError) Unwrap() error { return e.Err }

// AggregationError means the round failed before or outside the adapters
type AggregationError struct {
	Err error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("failed to fetch quotes: %v", e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// ChainMismatchError reports the wallet's chain and the one required
type ChainMismatchError struct {
	Current  uint64
	Required uint64
}

func (e *ChainMismatchError) Error() string {
	return fmt.Sprintf("wallet is on chain %d, transaction requires chain %d", e.Current, e.Required)
}

func (e *ChainMismatchError) Is(target error) bool { return target == ErrChainMismatch }

// TransactionSubmissionError wraps a wallet or chain client failure.
// Stage is one of "allowance", "approve", "prepare" or "send".
type TransactionSubmissionError struct {
	Stage string
	Err   error
}

func (e *TransactionSubmissionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *TransactionSubmissionError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from a provider API
type APIError struct {
	Provider   ProviderName
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}
