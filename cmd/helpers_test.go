package cmd

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridge-aggregator/pkg/types"
)

func TestSelectQuote(t *testing.T) {
	quotes := []*types.BridgeQuote{
		{Provider: types.ProviderAcross},
		{Provider: types.ProviderDeBridge},
	}

	q, err := selectQuote(quotes, "")
	require.NoError(t, err)
	assert.Equal(t, types.ProviderAcross, q.Provider)

	q, err = selectQuote(quotes, "debridge")
	require.NoError(t, err)
	assert.Equal(t, types.ProviderDeBridge, q.Provider)

	_, err = selectQuote(quotes, "Synapse")
	assert.ErrorIs(t, err, types.ErrUnknownProvider)

	_, err = selectQuote(nil, "")
	assert.ErrorIs(t, err, types.ErrNoQuotes)
}

func TestBalanceOwner(t *testing.T) {
	walletAddr := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	fromWallet := func() (common.Address, error) { return walletAddr, nil }
	noWallet := func() (common.Address, error) { return common.Address{}, errors.New("read-only") }

	owner, err := balanceOwner("", fromWallet)
	require.NoError(t, err)
	assert.Equal(t, walletAddr, owner)

	explicit := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	owner, err = balanceOwner(explicit, noWallet)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(explicit), owner)

	_, err = balanceOwner("not-an-address", fromWallet)
	assert.Error(t, err)

	_, err = balanceOwner("", noWallet)
	assert.Error(t, err)
}
