package bridges

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/types"
)

// Bridge is the uniform capability every provider adapter implements
type Bridge interface {
	Name() types.ProviderName
	// GetQuote prices the request. It never returns an empty quote on
	// success.
	GetQuote(ctx context.Context, req *types.QuoteRequest) (*types.BridgeQuote, error)
	// PrepareTransaction builds the source-chain transaction that executes
	// quote for recipient.
	PrepareTransaction(ctx context.Context, quote *types.BridgeQuote, recipient common.Address) (*types.BridgeTransaction, error)
}

// SubmissionObserver is implemented by bridges that need to hear about a
// submitted transaction
type SubmissionObserver interface {
	OnSubmitted(ctx context.Context, quote *types.BridgeQuote, tx *types.BridgeTransaction, hash common.Hash) error
}

// Set is an ordered collection of bridges addressable by provider name
type Set struct {
	order  []types.ProviderName
	byName map[types.ProviderName]Bridge
}

// NewSet builds a set; later bridges with a duplicate name replace earlier ones
func NewSet(bridges ...Bridge) *Set {
	s := &Set{byName: make(map[types.ProviderName]Bridge)}
	for _, b := range bridges {
		s.Add(b)
	}
	return s
}

func (s *Set) Add(b Bridge) {
	if _, exists := s.byName[b.Name()]; !exists {
		s.order = append(s.order, b.Name())
	}
	s.byName[b.Name()] = b
}

func (s *Set) Get(name types.ProviderName) (Bridge, bool) {
	b, ok := s.byName[name]
	return b, ok
}

// All returns the bridges in registration order
func (s *Set) All() []Bridge {
	out := make([]Bridge, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

func (s *Set) Len() int {
	return len(s.order)
}

// ResolveChainIDs maps the request's source and destination chains to ids
func ResolveChainIDs(registry *chains.Registry, from, to types.Token) (uint64, uint64, error) {
	fromID, ok := registry.ChainNameToID(from.Chain)
	if !ok {
		return 0, 0, types.UnsupportedChain(from.Chain)
	}
	toID, ok := registry.ChainNameToID(to.Chain)
	if !ok {
		return 0, 0, types.UnsupportedChain(to.Chain)
	}
	return fromID, toID, nil
}

// CheckQuote verifies that a quote was produced by the expected provider and
// carries a payload of type T.
func CheckQuote[T types.ProviderData](quote *types.BridgeQuote, name types.ProviderName) (T, error) {
	var zero T
	if quote == nil {
		return zero, fmt.Errorf("%s: quote is nil", name)
	}
	if quote.Provider != name {
		return zero, fmt.Errorf("%s cannot prepare a %s quote", name, quote.Provider)
	}
	data, ok := quote.Data.(T)
	if !ok {
		return zero, fmt.Errorf("missing %s quote data", name)
	}
	return data, nil
}
