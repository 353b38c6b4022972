package across

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/client"
	"bridge-aggregator/pkg/types"
)

const feesJSON = `{
  "totalRelayFee": {"pct":"2000000000000000","total":"200000"},
  "relayerCapitalFee": {"pct":"100000000000000","total":"10000"},
  "relayerGasFee": {"pct":"1000000000000000","total":"100000"},
  "lpFee": {"pct":"0","total":"0"},
  "timestamp": "1717000000",
  "isAmountTooLow": false,
  "spokePoolAddress": "0x5c7BCd6E7De5423a257D81B442095A1a6ced35C5",
  "exclusiveRelayer": "0x0000000000000000000000000000000000000000",
  "exclusivityDeadline": 0,
  "expectedFillTimeSec": "4"
}`

func request() *types.QuoteRequest {
	return &types.QuoteRequest{
		FromToken: types.Token{Symbol: "USDC", Chain: "Ethereum", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		ToToken:   types.Token{Symbol: "USDC", Chain: "Optimism", Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Decimals: 6},
		Amount:    "100000000",
	}
}

func newTestBridge(t *testing.T, handler http.HandlerFunc) *Bridge {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	b, err := New(client.HTTPClientConfig{BaseURL: server.URL}, chains.NewRegistry())
	require.NoError(t, err)
	return b
}

func TestGetQuote(t *testing.T) {
	b := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, suggestedFeesPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("originChainId"))
		assert.Equal(t, "10", q.Get("destinationChainId"))
		assert.Equal(t, "100000000", q.Get("amount"))
		w.Write([]byte(feesJSON))
	})

	quote, err := b.GetQuote(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, types.ProviderAcross, quote.Provider)
	assert.Equal(t, "99800000", quote.ExpectedOutput.String())
	assert.Equal(t, "200000", quote.FeeAmount.String())
	assert.Equal(t, "100000", quote.EstimatedGasCost)
	assert.InDelta(t, 0.2, quote.PriceImpact, 1e-9)

	data := quote.Data.(types.AcrossData)
	assert.Equal(t, common.HexToAddress("0x5c7BCd6E7De5423a257D81B442095A1a6ced35C5"), data.SpokePool)
	assert.Equal(t, uint32(1717000000), data.QuoteTimestamp)
	assert.Equal(t, uint32(1717000000+6*3600), data.FillDeadline)
}

func TestGetQuoteRequiresTokenAddress(t *testing.T) {
	var calls int32
	b := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	req := request()
	req.FromToken = types.Token{Symbol: "ETH", Chain: "Ethereum", Decimals: 18}
	_, err := b.GetQuote(context.Background(), req)
	assert.True(t, errors.Is(err, types.ErrMissingTokenAddress))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestGetQuoteAmountTooLow(t *testing.T) {
	b := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalRelayFee":{"total":"5"},"isAmountTooLow":true}`))
	})

	_, err := b.GetQuote(context.Background(), request())
	assert.True(t, errors.Is(err, types.ErrInvalidAmount))
}

func TestGetQuoteFeeExceedsAmount(t *testing.T) {
	b := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalRelayFee":{"total":"100000000"}}`))
	})

	_, err := b.GetQuote(context.Background(), request())
	assert.Error(t, err)
}

func TestPrepareTransaction(t *testing.T) {
	var calls int32
	b := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(feesJSON))
	})

	quote, err := b.GetQuote(context.Background(), request())
	require.NoError(t, err)

	recipient := common.HexToAddress("0x000000000000000000000000000000000000bEEF")
	tx, err := b.PrepareTransaction(context.Background(), quote, recipient)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "prepare re-queries fees")

	assert.Equal(t, uint64(1), tx.ChainID, "transaction must target the source chain")
	assert.Equal(t, common.HexToAddress("0x5c7BCd6E7De5423a257D81B442095A1a6ced35C5"), tx.To)
	assert.Zero(t, tx.Value.Sign())

	method, err := b.spokeABI.MethodById(tx.Data[:4])
	require.NoError(t, err)
	assert.Equal(t, "depositV3", method.Name)

	args, err := method.Inputs.Unpack(tx.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, recipient, args[0])
	assert.Equal(t, recipient, args[1])
	assert.Equal(t, "100000000", args[4].(*big.Int).String())
	assert.Equal(t, "99800000", args[5].(*big.Int).String())
	assert.Equal(t, "10", args[6].(*big.Int).String())
	assert.Equal(t, uint32(1717000000), args[8])
}
