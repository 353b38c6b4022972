package chains

import (
	"sort"
	"strings"
)

// Chain describes a supported EVM network
type Chain struct {
	Name         string `json:"name"`
	ID           uint64 `json:"id"`
	RPCURL       string `json:"rpcUrl"`
	NativeSymbol string `json:"nativeSymbol"`
	// OneClickSlug is the blockchain identifier used by the 1Click token list
	OneClickSlug string `json:"oneClickSlug"`
}

var defaultChains = []Chain{
	{Name: "Ethereum", ID: 1, RPCURL: "https://ethereum-rpc.publicnode.com", NativeSymbol: "ETH", OneClickSlug: "eth"},
	{Name: "Polygon", ID: 137, RPCURL: "https://polygon-bor-rpc.publicnode.com", NativeSymbol: "POL", OneClickSlug: "pol"},
	{Name: "Optimism", ID: 10, RPCURL: "https://optimism-rpc.publicnode.com", NativeSymbol: "ETH", OneClickSlug: "op"},
	{Name: "Arbitrum", ID: 42161, RPCURL: "https://arbitrum-one-rpc.publicnode.com", NativeSymbol: "ETH", OneClickSlug: "arb"},
	{Name: "Base", ID: 8453, RPCURL: "https://base-rpc.publicnode.com", NativeSymbol: "ETH", OneClickSlug: "base"},
}

// Registry maps chain names to ids and RPC endpoints. It is read-only after
// construction.
type Registry struct {
	byName map[string]Chain
	byID   map[uint64]Chain
}

// Option customizes a Registry
type Option func(*Registry)

// WithRPCOverrides replaces RPC URLs by chain name (case-insensitive)
func WithRPCOverrides(urls map[string]string) Option {
	return func(r *Registry) {
		for name, url := range urls {
			if url == "" {
				continue
			}
			c, ok := r.byName[strings.ToLower(name)]
			if !ok {
				continue
			}
			c.RPCURL = url
			r.add(c)
		}
	}
}

// WithChains replaces the default chain set
func WithChains(chains ...Chain) Option {
	return func(r *Registry) {
		r.byName = make(map[string]Chain)
		r.byID = make(map[uint64]Chain)
		for _, c := range chains {
			r.add(c)
		}
	}
}

// NewRegistry returns a registry with the default mainnet chains
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byName: make(map[string]Chain),
		byID:   make(map[uint64]Chain),
	}
	for _, c := range defaultChains {
		r.add(c)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) add(c Chain) {
	r.byName[strings.ToLower(c.Name)] = c
	r.byID[c.ID] = c
}

// ChainNameToID returns the chain id for a name
func (r *Registry) ChainNameToID(name string) (uint64, bool) {
	c, ok := r.ByName(name)
	return c.ID, ok
}

// IDToRPCURL returns the RPC endpoint for a chain id
func (r *Registry) IDToRPCURL(id uint64) (string, bool) {
	c, ok := r.byID[id]
	if !ok || c.RPCURL == "" {
		return "", false
	}
	return c.RPCURL, true
}

func (r *Registry) ByName(name string) (Chain, bool) {
	c, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

func (r *Registry) ByID(id uint64) (Chain, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// All returns every chain ordered by id
func (r *Registry) All() []Chain {
	out := make([]Chain, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
