package tokens

import (
	"sort"
	"strings"

	"bridge-aggregator/pkg/types"
)

type listing struct {
	symbol    string
	name      string
	logo      string
	decimals  uint8
	addresses map[string]string
}

const trustWalletAssets = "https://raw.githubusercontent.com/trustwallet/assets/master/blockchains/ethereum"

// native assets carry an empty address
var defaultListings = []listing{
	{
		symbol: "ETH", name: "Ether", decimals: 18,
		logo: trustWalletAssets + "/info/logo.png",
		addresses: map[string]string{
			"Ethereum": "", "Optimism": "", "Arbitrum": "", "Base": "",
		},
	},
	{
		symbol: "POL", name: "Polygon Ecosystem Token", decimals: 18,
		addresses: map[string]string{"Polygon": ""},
	},
	{
		symbol: "WETH", name: "Wrapped Ether", decimals: 18,
		logo: trustWalletAssets + "/assets/0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2/logo.png",
		addresses: map[string]string{
			"Ethereum": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			"Optimism": "0x4200000000000000000000000000000000000006",
			"Arbitrum": "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
			"Polygon":  "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619",
			"Base":     "0x4200000000000000000000000000000000000006",
		},
	},
	{
		symbol: "USDC", name: "USD Coin", decimals: 6,
		logo: trustWalletAssets + "/assets/0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48/logo.png",
		addresses: map[string]string{
			"Ethereum": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			"Optimism": "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
			"Arbitrum": "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
			"Polygon":  "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
			"Base":     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		},
	},
	{
		symbol: "USDC.e", name: "Bridged USD Coin", decimals: 6,
		addresses: map[string]string{
			"Optimism": "0x7F5c764cBc14f9669B88837ca1490cCa17c31607",
			"Arbitrum": "0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8",
			"Polygon":  "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		},
	},
	{
		symbol: "USDT", name: "Tether USD", decimals: 6,
		logo: trustWalletAssets + "/assets/0xdAC17F958D2ee523a2206206994597C13D831ec7/logo.png",
		addresses: map[string]string{
			"Ethereum": "0xdAC17F958D2ee523a2206206994597C13D831ec7",
			"Optimism": "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58",
			"Arbitrum": "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9",
			"Polygon":  "0xc2132D05D31c914a87C6611C10748AEb04B58e8F",
		},
	},
	{
		symbol: "DAI", name: "Dai Stablecoin", decimals: 18,
		logo: trustWalletAssets + "/assets/0x6B175474E89094C44Da98b954EedeAC495271d0F/logo.png",
		addresses: map[string]string{
			"Ethereum": "0x6B175474E89094C44Da98b954EedeAC495271d0F",
			"Optimism": "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1",
			"Arbitrum": "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1",
			"Polygon":  "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063",
			"Base":     "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb",
		},
	},
}

// Catalog is a static list of tokens per chain
type Catalog struct {
	tokens []types.Token
}

// Default returns the built-in token list
func Default() *Catalog {
	c := &Catalog{}
	for _, l := range defaultListings {
		for chain, addr := range l.addresses {
			c.tokens = append(c.tokens, types.Token{
				Symbol:   l.symbol,
				Name:     l.name,
				Logo:     l.logo,
				Chain:    chain,
				Address:  addr,
				Decimals: l.decimals,
			})
		}
	}
	sort.SliceStable(c.tokens, func(i, j int) bool {
		if c.tokens[i].Chain != c.tokens[j].Chain {
			return c.tokens[i].Chain < c.tokens[j].Chain
		}
		return c.tokens[i].Symbol < c.tokens[j].Symbol
	})
	return c
}

// New builds a catalog from explicit tokens
func New(tokens ...types.Token) *Catalog {
	return &Catalog{tokens: tokens}
}

// Lookup finds a token by symbol on a chain, both case-insensitive
func (c *Catalog) Lookup(symbol, chain string) (types.Token, bool) {
	for _, t := range c.tokens {
		if strings.EqualFold(t.Symbol, symbol) && strings.EqualFold(t.Chain, chain) {
			return t, true
		}
	}
	return types.Token{}, false
}

// OnChain returns every token listed on chain
func (c *Catalog) OnChain(chain string) []types.Token {
	return c.Filter(chain, "")
}

// Filter returns tokens matching chain exactly and symbol as a substring.
// Empty filters match everything.
func (c *Catalog) Filter(chain, symbol string) []types.Token {
	var out []types.Token
	for _, t := range c.tokens {
		if chain != "" && !strings.EqualFold(t.Chain, chain) {
			continue
		}
		if symbol != "" && !strings.Contains(strings.ToUpper(t.Symbol), strings.ToUpper(symbol)) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (c *Catalog) All() []types.Token {
	return append([]types.Token(nil), c.tokens...)
}
