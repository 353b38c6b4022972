package across

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"bridge-aggregator/pkg/bridges"
	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/client"
	"bridge-aggregator/pkg/types"
)

const (
	DefaultBaseURL     = "https://app.across.to"
	suggestedFeesPath  = "/api/suggested-fees"
	defaultFillWindow  = 6 * time.Hour
	spokePoolDepositV3 = `[{"name":"depositV3","type":"function","stateMutability":"payable","inputs":[
{"name":"depositor","type":"address"},
{"name":"recipient","type":"address"},
{"name":"inputToken","type":"address"},
{"name":"outputToken","type":"address"},
{"name":"inputAmount","type":"uint256"},
{"name":"outputAmount","type":"uint256"},
{"name":"destinationChainId","type":"uint256"},
{"name":"exclusiveRelayer","type":"address"},
{"name":"quoteTimestamp","type":"uint32"},
{"name":"fillDeadline","type":"uint32"},
{"name":"exclusivityDeadline","type":"uint32"},
{"name":"message","type":"bytes"}
],"outputs":[]}]`
)

type feesParams struct {
	OriginChainID      uint64 `url:"originChainId"`
	DestinationChainID uint64 `url:"destinationChainId"`
	Token              string `url:"token"`
	Amount             string `url:"amount"`
}

type feeComponent struct {
	Pct   string           `json:"pct"`
	Total client.BigNumber `json:"total"`
}

type suggestedFees struct {
	TotalRelayFee       feeComponent     `json:"totalRelayFee"`
	RelayerCapitalFee   feeComponent     `json:"relayerCapitalFee"`
	RelayerGasFee       feeComponent     `json:"relayerGasFee"`
	LpFee               feeComponent     `json:"lpFee"`
	Timestamp           client.BigNumber `json:"timestamp"`
	IsAmountTooLow      bool             `json:"isAmountTooLow"`
	SpokePoolAddress    string           `json:"spokePoolAddress"`
	ExclusiveRelayer    string           `json:"exclusiveRelayer"`
	ExclusivityDeadline client.BigNumber `json:"exclusivityDeadline"`
	FillDeadline        client.BigNumber `json:"fillDeadline"`
	ExpectedFillTimeSec client.BigNumber `json:"expectedFillTimeSec"`
}

// Bridge quotes relayer fees from the Across API and deposits into the
// origin chain's SpokePool.
type Bridge struct {
	http     *client.HTTPClient
	registry *chains.Registry
	spokeABI abi.ABI
	logger   logrus.FieldLogger
}

type Option func(*Bridge)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New creates the Across adapter
func New(cfg client.HTTPClientConfig, registry *chains.Registry, opts ...Option) (*Bridge, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.Provider = types.ProviderAcross

	parsed, err := abi.JSON(strings.NewReader(spokePoolDepositV3))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse SpokePool ABI")
	}

	b := &Bridge{
		http:     client.NewHTTPClient(cfg),
		registry: registry,
		spokeABI: parsed,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithField("provider", types.ProviderAcross)
	return b, nil
}

func (b *Bridge) Name() types.ProviderName {
	return types.ProviderAcross
}

func (b *Bridge) fetch(ctx context.Context, req *types.QuoteRequest) (*suggestedFees, uint64, uint64, *big.Int, error) {
	originID, destID, err := bridges.ResolveChainIDs(b.registry, req.FromToken, req.ToToken)
	if err != nil {
		return nil, 0, 0, nil, err
	}
	if req.FromToken.IsNative() {
		return nil, 0, 0, nil, types.MissingTokenAddress(req.FromToken)
	}
	amount, err := req.AmountInt()
	if err != nil {
		return nil, 0, 0, nil, err
	}

	params := &feesParams{
		OriginChainID:      originID,
		DestinationChainID: destID,
		Token:              req.FromToken.ContractAddress().Hex(),
		Amount:             amount.String(),
	}

	b.logger.WithFields(logrus.Fields{
		"from_chain": originID,
		"to_chain":   destID,
		"token":      params.Token,
		"amount":     params.Amount,
	}).Debug("Fetching Across suggested fees")

	var fees suggestedFees
	if err := b.http.GetJSON(ctx, suggestedFeesPath, params, &fees); err != nil {
		return nil, 0, 0, nil, err
	}
	if fees.IsAmountTooLow {
		return nil, 0, 0, nil, errors.Wrapf(types.ErrInvalidAmount, "amount %s is too low for Across", amount)
	}
	return &fees, originID, destID, amount, nil
}

func (b *Bridge) GetQuote(ctx context.Context, req *types.QuoteRequest) (*types.BridgeQuote, error) {
	fees, _, _, amount, err := b.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	totalFee := fees.TotalRelayFee.Total.OrZero()
	if totalFee.Cmp(amount) >= 0 {
		return nil, errors.Errorf("Across relay fee %s exceeds input amount %s", totalFee, amount)
	}
	expected := new(big.Int).Sub(amount, totalFee)

	return &types.BridgeQuote{
		Provider:         types.ProviderAcross,
		FromToken:        req.FromToken,
		ToToken:          req.ToToken,
		FromAmount:       amount,
		ExpectedOutput:   expected,
		FeeAmount:        totalFee,
		EstimatedGasCost: fees.RelayerGasFee.Total.OrZero().String(),
		PriceImpact:      types.Percent(totalFee, amount),
		Data:             fees.toData(),
	}, nil
}

func (f *suggestedFees) toData() types.AcrossData {
	data := types.AcrossData{
		TotalRelayFee:       f.TotalRelayFee.Total.OrZero(),
		RelayerGasFee:       f.RelayerGasFee.Total.OrZero(),
		QuoteTimestamp:      uint32(f.Timestamp.OrZero().Uint64()),
		FillDeadline:        uint32(f.FillDeadline.OrZero().Uint64()),
		ExclusivityDeadline: uint32(f.ExclusivityDeadline.OrZero().Uint64()),
		ExpectedFillTimeSec: f.ExpectedFillTimeSec.OrZero().Int64(),
	}
	if common.IsHexAddress(f.SpokePoolAddress) {
		data.SpokePool = common.HexToAddress(f.SpokePoolAddress)
	}
	if common.IsHexAddress(f.ExclusiveRelayer) {
		data.ExclusiveRelayer = common.HexToAddress(f.ExclusiveRelayer)
	}
	if data.FillDeadline == 0 && data.QuoteTimestamp != 0 {
		data.FillDeadline = data.QuoteTimestamp + uint32(defaultFillWindow.Seconds())
	}
	return data
}

// PrepareTransaction refreshes the fee quote so the deposit carries a current
// quote timestamp, then encodes depositV3 on the SpokePool.
func (b *Bridge) PrepareTransaction(ctx context.Context, quote *types.BridgeQuote, recipient common.Address) (*types.BridgeTransaction, error) {
	if _, err := bridges.CheckQuote[types.AcrossData](quote, types.ProviderAcross); err != nil {
		return nil, err
	}

	req := &types.QuoteRequest{FromToken: quote.FromToken, ToToken: quote.ToToken, Amount: quote.FromAmount.String()}
	fees, originID, destID, amount, err := b.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	data := fees.toData()
	if data.SpokePool == (common.Address{}) {
		return nil, errors.Wrap(types.ErrNoTransactionData, "Across did not return a SpokePool address")
	}

	totalFee := data.TotalRelayFee
	if totalFee.Cmp(amount) >= 0 {
		return nil, errors.Errorf("Across relay fee %s exceeds input amount %s", totalFee, amount)
	}
	outputAmount := new(big.Int).Sub(amount, totalFee)

	calldata, err := b.spokeABI.Pack("depositV3",
		recipient,
		recipient,
		quote.FromToken.ContractAddress(),
		quote.ToToken.ContractAddress(),
		amount,
		outputAmount,
		new(big.Int).SetUint64(destID),
		data.ExclusiveRelayer,
		data.QuoteTimestamp,
		data.FillDeadline,
		data.ExclusivityDeadline,
		[]byte{},
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack depositV3")
	}

	b.logger.WithFields(logrus.Fields{
		"spoke_pool": data.SpokePool.Hex(),
		"chain_id":   originID,
		"output":     outputAmount,
	}).Debug("Prepared Across deposit")

	return &types.BridgeTransaction{
		To:      data.SpokePool,
		Data:    calldata,
		Value:   new(big.Int),
		ChainID: originID,
	}, nil
}
