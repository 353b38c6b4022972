package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ProviderName tags which adapter produced a quote
type ProviderName string

const (
	ProviderSynapse  ProviderName = "Synapse"
	ProviderDeBridge ProviderName = "deBridge"
	ProviderAcross   ProviderName = "Across"
	ProviderOneClick ProviderName = "1Click"
)

// BridgeQuote is a normalized provider offer. Quotes are immutable and only
// valid until the next refresh.
type BridgeQuote struct {
	Provider         ProviderName `json:"provider"`
	FromToken        Token        `json:"fromToken"`
	ToToken          Token        `json:"toToken"`
	FromAmount       *big.Int     `json:"fromAmount"`
	ExpectedOutput   *big.Int     `json:"expectedOutput"`
	FeeAmount        *big.Int     `json:"feeAmount"`
	EstimatedGasCost string       `json:"estimatedGasCost"`
	PriceImpact      float64      `json:"priceImpact"`
	Data             ProviderData `json:"-"`
}

// BridgeTransaction is a ready-to-sign call on the source chain
type BridgeTransaction struct {
	To      common.Address `json:"to"`
	Data    []byte         `json:"data"`
	Value   *big.Int       `json:"value"`
	ChainID uint64         `json:"chainId"`
}
