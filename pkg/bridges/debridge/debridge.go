package debridge

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bridge-aggregator/pkg/bridges"
	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/client"
	"bridge-aggregator/pkg/types"
)

const (
	DefaultBaseURL = "https://dln.debridge.finance"
	createTxPath   = "/v1.0/dln/order/create-tx"
)

type createTxParams struct {
	SrcChainID                    uint64 `url:"srcChainId"`
	DstChainID                    uint64 `url:"dstChainId"`
	SrcChainTokenIn               string `url:"srcChainTokenIn"`
	DstChainTokenOut              string `url:"dstChainTokenOut"`
	SrcChainTokenInAmount         string `url:"srcChainTokenInAmount"`
	DstChainTokenOutAmount        string `url:"dstChainTokenOutAmount"`
	DstChainTokenOutRecipient     string `url:"dstChainTokenOutRecipient,omitempty"`
	SrcChainOrderAuthorityAddress string `url:"srcChainOrderAuthorityAddress,omitempty"`
	DstChainOrderAuthorityAddress string `url:"dstChainOrderAuthorityAddress,omitempty"`
}

type tokenEstimate struct {
	Address             string           `json:"address"`
	Amount              client.BigNumber `json:"amount"`
	RecommendedAmount   client.BigNumber `json:"recommendedAmount"`
	ApproximateUsdValue float64          `json:"approximateUsdValue"`
}

type costDetail struct {
	Type    string `json:"type"`
	Payload struct {
		FeeAmount client.BigNumber `json:"feeAmount"`
	} `json:"payload"`
}

type createTxResponse struct {
	Estimation struct {
		SrcChainTokenIn  tokenEstimate `json:"srcChainTokenIn"`
		DstChainTokenOut tokenEstimate `json:"dstChainTokenOut"`
		CostsDetails     []costDetail  `json:"costsDetails"`
	} `json:"estimation"`
	Tx *struct {
		To              string           `json:"to"`
		Data            string           `json:"data"`
		Value           client.BigNumber `json:"value"`
		AllowanceTarget string           `json:"allowanceTarget"`
	} `json:"tx"`
	FixFee  client.BigNumber `json:"fixFee"`
	OrderID string           `json:"orderId"`
}

// Bridge quotes DLN orders through the deBridge REST API
type Bridge struct {
	http     *client.HTTPClient
	registry *chains.Registry
	logger   logrus.FieldLogger
}

type Option func(*Bridge)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New creates the deBridge adapter
func New(cfg client.HTTPClientConfig, registry *chains.Registry, opts ...Option) *Bridge {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.Provider = types.ProviderDeBridge

	b := &Bridge{
		http:     client.NewHTTPClient(cfg),
		registry: registry,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithField("provider", types.ProviderDeBridge)
	return b
}

func (b *Bridge) Name() types.ProviderName {
	return types.ProviderDeBridge
}

// DLN addresses the native asset as the zero address
func dlnToken(t types.Token) string {
	return t.ContractAddress().Hex()
}

func (b *Bridge) fetch(ctx context.Context, srcID, dstID uint64, from, to types.Token, amount *big.Int, recipient *common.Address) (*createTxResponse, error) {
	params := &createTxParams{
		SrcChainID:             srcID,
		DstChainID:             dstID,
		SrcChainTokenIn:        dlnToken(from),
		DstChainTokenOut:       dlnToken(to),
		SrcChainTokenInAmount:  amount.String(),
		DstChainTokenOutAmount: "auto",
	}
	if recipient != nil {
		params.DstChainTokenOutRecipient = recipient.Hex()
		params.SrcChainOrderAuthorityAddress = recipient.Hex()
		params.DstChainOrderAuthorityAddress = recipient.Hex()
	}

	var resp createTxResponse
	if err := b.http.GetJSON(ctx, createTxPath, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (b *Bridge) GetQuote(ctx context.Context, req *types.QuoteRequest) (*types.BridgeQuote, error) {
	srcID, dstID, err := bridges.ResolveChainIDs(b.registry, req.FromToken, req.ToToken)
	if err != nil {
		return nil, err
	}
	amount, err := req.AmountInt()
	if err != nil {
		return nil, err
	}

	b.logger.WithFields(logrus.Fields{
		"from_chain": srcID,
		"to_chain":   dstID,
		"amount":     amount,
	}).Debug("Getting deBridge quote")

	resp, err := b.fetch(ctx, srcID, dstID, req.FromToken, req.ToToken, amount, nil)
	if err != nil {
		return nil, err
	}

	expected := resp.Estimation.DstChainTokenOut.RecommendedAmount.Int
	if expected == nil {
		expected = resp.Estimation.DstChainTokenOut.Amount.Int
	}
	if expected == nil {
		return nil, errors.New("deBridge estimation has no output amount")
	}

	totalFee := new(big.Int)
	for _, cost := range resp.Estimation.CostsDetails {
		if cost.Payload.FeeAmount.Int != nil {
			totalFee.Add(totalFee, cost.Payload.FeeAmount.Int)
		}
	}

	data := types.DeBridgeData{
		OrderID:     resp.OrderID,
		FixFee:      resp.FixFee.OrZero().String(),
		SrcUSDValue: resp.Estimation.SrcChainTokenIn.ApproximateUsdValue,
		DstUSDValue: resp.Estimation.DstChainTokenOut.ApproximateUsdValue,
	}
	if resp.Tx != nil && common.IsHexAddress(resp.Tx.AllowanceTarget) {
		data.AllowanceTarget = common.HexToAddress(resp.Tx.AllowanceTarget)
	}

	return &types.BridgeQuote{
		Provider:         types.ProviderDeBridge,
		FromToken:        req.FromToken,
		ToToken:          req.ToToken,
		FromAmount:       amount,
		ExpectedOutput:   new(big.Int).Set(expected),
		FeeAmount:        totalFee,
		EstimatedGasCost: data.FixFee,
		PriceImpact:      usdPriceImpact(data.SrcUSDValue, data.DstUSDValue),
		Data:             data,
	}, nil
}

// usdPriceImpact is the share of USD value lost between input and output
func usdPriceImpact(in, out float64) float64 {
	if in == 0 {
		return 0
	}
	din := decimal.NewFromFloat(in)
	return din.Sub(decimal.NewFromFloat(out)).Div(din).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// PrepareTransaction re-queries the order with the recipient set, which is
// when the API returns executable call data.
func (b *Bridge) PrepareTransaction(ctx context.Context, quote *types.BridgeQuote, recipient common.Address) (*types.BridgeTransaction, error) {
	if _, err := bridges.CheckQuote[types.DeBridgeData](quote, types.ProviderDeBridge); err != nil {
		return nil, err
	}
	srcID, dstID, err := bridges.ResolveChainIDs(b.registry, quote.FromToken, quote.ToToken)
	if err != nil {
		return nil, err
	}

	resp, err := b.fetch(ctx, srcID, dstID, quote.FromToken, quote.ToToken, quote.FromAmount, &recipient)
	if err != nil {
		return nil, err
	}
	if resp.Tx == nil || !common.IsHexAddress(resp.Tx.To) || resp.Tx.Data == "" {
		return nil, types.ErrNoTransactionData
	}

	calldata, err := hexutil.Decode(resp.Tx.Data)
	if err != nil {
		return nil, errors.Wrap(err, "invalid deBridge tx data")
	}

	b.logger.WithFields(logrus.Fields{
		"to":       resp.Tx.To,
		"order_id": resp.OrderID,
		"chain_id": srcID,
	}).Debug("Prepared deBridge transaction")

	return &types.BridgeTransaction{
		To:      common.HexToAddress(resp.Tx.To),
		Data:    calldata,
		Value:   resp.Tx.Value.OrZero(),
		ChainID: srcID,
	}, nil
}
