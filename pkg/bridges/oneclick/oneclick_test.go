package oneclick

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/client"
	"bridge-aggregator/pkg/types"
)

type fakeAPI struct {
	result    quoteResult
	quotes    []client.OneClickQuoteParams
	submitted map[string]string
}

func (f *fakeAPI) resolveAsset(_ context.Context, blockchain, contract string) (string, error) {
	if contract == "" {
		return fmt.Sprintf("nep141:%s.omft.near", blockchain), nil
	}
	return fmt.Sprintf("nep141:%s-%s.omft.near", blockchain, contract), nil
}

func (f *fakeAPI) quote(_ context.Context, params client.OneClickQuoteParams) (*quoteResult, error) {
	f.quotes = append(f.quotes, params)
	res := f.result
	return &res, nil
}

func (f *fakeAPI) submitDeposit(_ context.Context, depositAddress, txHash string) error {
	if f.submitted == nil {
		f.submitted = make(map[string]string)
	}
	f.submitted[depositAddress] = txHash
	return nil
}

var depositAddr = common.HexToAddress("0x76b4c56085ED136a8744D52bE956396624a730E8")

func usdcRequest() *types.QuoteRequest {
	return &types.QuoteRequest{
		FromToken: types.Token{Symbol: "USDC", Chain: "Arbitrum", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
		ToToken:   types.Token{Symbol: "USDC", Chain: "Base", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
		Amount:    "10000000",
	}
}

func newFake() *fakeAPI {
	return &fakeAPI{result: quoteResult{
		DepositAddress:     depositAddr.Hex(),
		AmountInFormatted:  "10",
		AmountOutFormatted: "9.95",
		TimeEstimate:       20,
	}}
}

func TestGetQuoteUsesDryQuote(t *testing.T) {
	api := newFake()
	b := newBridge(api, chains.NewRegistry())

	quote, err := b.GetQuote(context.Background(), usdcRequest())
	require.NoError(t, err)

	require.Len(t, api.quotes, 1)
	assert.True(t, api.quotes[0].Dry)
	assert.Equal(t, "10000000", api.quotes[0].Amount)
	assert.Equal(t, "nep141:arb-0xaf88d065e77c8cc2239327c5edb3a432268e5831.omft.near", api.quotes[0].OriginAsset)

	assert.Equal(t, "9950000", quote.ExpectedOutput.String())
	assert.Zero(t, quote.FeeAmount.Sign())
	assert.InDelta(t, 0.5, quote.PriceImpact, 1e-9)

	data := quote.Data.(types.OneClickData)
	assert.Equal(t, "nep141:base-0x833589fcd6edb6e08f4c7c32d4f71b54bda02913.omft.near", data.DestinationAsset)
}

func TestGetQuoteUnsupportedChain(t *testing.T) {
	b := newBridge(newFake(), chains.NewRegistry())
	req := usdcRequest()
	req.FromToken.Chain = "Avalanche"

	_, err := b.GetQuote(context.Background(), req)
	assert.True(t, errors.Is(err, types.ErrUnsupportedChain))
}

func TestPrepareTransactionERC20(t *testing.T) {
	api := newFake()
	refund := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := newBridge(api, chains.NewRegistry(), WithRefundAddress(refund))

	quote, err := b.GetQuote(context.Background(), usdcRequest())
	require.NoError(t, err)

	recipient := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tx, err := b.PrepareTransaction(context.Background(), quote, recipient)
	require.NoError(t, err)

	require.Len(t, api.quotes, 2)
	assert.False(t, api.quotes[1].Dry)
	assert.Equal(t, recipient.Hex(), api.quotes[1].Recipient)
	assert.Equal(t, refund.Hex(), api.quotes[1].RefundTo)

	assert.Equal(t, uint64(42161), tx.ChainID)
	assert.Equal(t, common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), tx.To)
	assert.Zero(t, tx.Value.Sign())

	deposit, err := b.DepositAddress(tx)
	require.NoError(t, err)
	assert.Equal(t, depositAddr, deposit)

	hash := common.HexToHash("0xabc")
	require.NoError(t, b.OnSubmitted(context.Background(), quote, tx, hash))
	assert.Equal(t, hash.Hex(), api.submitted[depositAddr.Hex()])
}

func TestPrepareTransactionNative(t *testing.T) {
	b := newBridge(newFake(), chains.NewRegistry())
	req := usdcRequest()
	req.FromToken = types.Token{Symbol: "ETH", Chain: "Optimism", Decimals: 18}
	req.Amount = "1000000000000000000"

	quote, err := b.GetQuote(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, quote.PriceImpact)

	tx, err := b.PrepareTransaction(context.Background(), quote, common.HexToAddress("0xbeef"))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), tx.ChainID)
	assert.Equal(t, depositAddr, tx.To)
	assert.Empty(t, tx.Data)
	assert.Equal(t, "1000000000000000000", tx.Value.String())
}

func TestPrepareTransactionRejectsMemoDeposits(t *testing.T) {
	api := newFake()
	b := newBridge(api, chains.NewRegistry())

	quote, err := b.GetQuote(context.Background(), usdcRequest())
	require.NoError(t, err)

	api.result.DepositMemo = "12345"
	_, err = b.PrepareTransaction(context.Background(), quote, common.HexToAddress("0xbeef"))
	assert.Error(t, err)
}
