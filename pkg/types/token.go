package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token is a token on a specific chain. An empty or zero Address marks the
// chain's native asset.
type Token struct {
	Symbol   string `json:"symbol" validate:"required"`
	Name     string `json:"name"`
	Logo     string `json:"logo,omitempty"`
	Chain    string `json:"chain" validate:"required"`
	Address  string `json:"address,omitempty" validate:"omitempty,eth_addr"`
	Decimals uint8  `json:"decimals" validate:"lte=77"`
}

// IsNative reports whether the token is the chain's native asset
func (t Token) IsNative() bool {
	return t.Address == "" || common.HexToAddress(t.Address) == (common.Address{})
}

// ContractAddress returns the parsed contract address, zero for native assets
func (t Token) ContractAddress() common.Address {
	if t.IsNative() {
		return common.Address{}
	}
	return common.HexToAddress(t.Address)
}

// Equal compares tokens by chain and address
func (t Token) Equal(other Token) bool {
	return strings.EqualFold(t.Chain, other.Chain) && t.ContractAddress() == other.ContractAddress()
}

func (t Token) String() string {
	return t.Symbol + "@" + t.Chain
}
