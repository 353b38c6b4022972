package bridges

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/types"
)

type namedBridge struct {
	name types.ProviderName
	tag  string
}

func (b namedBridge) Name() types.ProviderName { return b.name }

func (b namedBridge) GetQuote(context.Context, *types.QuoteRequest) (*types.BridgeQuote, error) {
	return nil, errors.New("not implemented")
}

func (b namedBridge) PrepareTransaction(context.Context, *types.BridgeQuote, common.Address) (*types.BridgeTransaction, error) {
	return nil, errors.New("not implemented")
}

func TestSetKeepsRegistrationOrder(t *testing.T) {
	s := NewSet(
		namedBridge{name: types.ProviderSynapse},
		namedBridge{name: types.ProviderDeBridge},
		namedBridge{name: types.ProviderSynapse, tag: "replacement"},
	)

	require.Equal(t, 2, s.Len())
	all := s.All()
	assert.Equal(t, types.ProviderSynapse, all[0].Name())
	assert.Equal(t, types.ProviderDeBridge, all[1].Name())

	b, ok := s.Get(types.ProviderSynapse)
	require.True(t, ok)
	assert.Equal(t, "replacement", b.(namedBridge).tag)

	_, ok = s.Get(types.ProviderAcross)
	assert.False(t, ok)
}

func TestResolveChainIDs(t *testing.T) {
	reg := chains.NewRegistry()

	from, to, err := ResolveChainIDs(reg, types.Token{Chain: "Ethereum"}, types.Token{Chain: "Base"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), from)
	assert.Equal(t, uint64(8453), to)

	_, _, err = ResolveChainIDs(reg, types.Token{Chain: "Ethereum"}, types.Token{Chain: "Fantom"})
	assert.True(t, errors.Is(err, types.ErrUnsupportedChain))
}

func TestCheckQuote(t *testing.T) {
	q := &types.BridgeQuote{Provider: types.ProviderAcross, Data: types.AcrossData{SpokePool: common.HexToAddress("0x1")}}

	data, err := CheckQuote[types.AcrossData](q, types.ProviderAcross)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x1"), data.SpokePool)

	_, err = CheckQuote[types.AcrossData](q, types.ProviderDeBridge)
	assert.Error(t, err)

	_, err = CheckQuote[types.DeBridgeData](&types.BridgeQuote{Provider: types.ProviderDeBridge}, types.ProviderDeBridge)
	assert.Error(t, err)

	_, err = CheckQuote[types.AcrossData](nil, types.ProviderAcross)
	assert.Error(t, err)
}
