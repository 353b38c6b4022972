package oneclick

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bridge-aggregator/pkg/bridges"
	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/client"
	"bridge-aggregator/pkg/types"
)

const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

// dry quotes still need a recipient; any well-formed address will do
var placeholderRecipient = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

type quoteResult struct {
	DepositAddress     string
	DepositMemo        string
	AmountInFormatted  string
	AmountOutFormatted string
	TimeEstimate       float64
}

type api interface {
	resolveAsset(ctx context.Context, blockchain, contract string) (string, error)
	quote(ctx context.Context, params client.OneClickQuoteParams) (*quoteResult, error)
	submitDeposit(ctx context.Context, depositAddress, txHash string) error
}

type sdkAPI struct {
	c *client.OneClickClient
}

func (s sdkAPI) resolveAsset(ctx context.Context, blockchain, contract string) (string, error) {
	token, err := s.c.FindTokenByAddress(ctx, blockchain, contract)
	if err != nil {
		return "", err
	}
	return token.GetAssetId(), nil
}

func (s sdkAPI) quote(ctx context.Context, params client.OneClickQuoteParams) (*quoteResult, error) {
	resp, err := s.c.GetQuote(ctx, params)
	if err != nil {
		return nil, err
	}
	q := resp.GetQuote()
	out := &quoteResult{
		DepositAddress:     q.GetDepositAddress(),
		AmountInFormatted:  q.GetAmountInFormatted(),
		AmountOutFormatted: q.GetAmountOutFormatted(),
		TimeEstimate:       float64(q.GetTimeEstimate()),
	}
	if q.HasDepositMemo() {
		out.DepositMemo = q.GetDepositMemo()
	}
	return out, nil
}

func (s sdkAPI) submitDeposit(ctx context.Context, depositAddress, txHash string) error {
	return s.c.SubmitDepositTx(ctx, depositAddress, txHash)
}

// Bridge routes transfers through NEAR Intents 1Click. Funds are moved by a
// plain transfer to a per-quote deposit address, so no allowance is needed.
type Bridge struct {
	api      api
	registry *chains.Registry
	refundTo common.Address
	erc20    abi.ABI
	logger   logrus.FieldLogger
}

type Option func(*Bridge)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithRefundAddress sets where 1Click returns funds if a swap fails. It
// defaults to the recipient.
func WithRefundAddress(addr common.Address) Option {
	return func(b *Bridge) {
		b.refundTo = addr
	}
}

// New creates the 1Click adapter
func New(c *client.OneClickClient, registry *chains.Registry, opts ...Option) *Bridge {
	return newBridge(sdkAPI{c: c}, registry, opts...)
}

func newBridge(a api, registry *chains.Registry, opts ...Option) *Bridge {
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		panic(err)
	}
	b := &Bridge{
		api:      a,
		registry: registry,
		erc20:    parsed,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithField("provider", types.ProviderOneClick)
	return b
}

func (b *Bridge) Name() types.ProviderName {
	return types.ProviderOneClick
}

func (b *Bridge) assets(ctx context.Context, from, to types.Token) (string, string, error) {
	fromChain, ok := b.registry.ByName(from.Chain)
	if !ok || fromChain.OneClickSlug == "" {
		return "", "", types.UnsupportedChain(from.Chain)
	}
	toChain, ok := b.registry.ByName(to.Chain)
	if !ok || toChain.OneClickSlug == "" {
		return "", "", types.UnsupportedChain(to.Chain)
	}

	origin, err := b.api.resolveAsset(ctx, fromChain.OneClickSlug, contractOf(from))
	if err != nil {
		return "", "", errors.Wrap(err, "source token")
	}
	dest, err := b.api.resolveAsset(ctx, toChain.OneClickSlug, contractOf(to))
	if err != nil {
		return "", "", errors.Wrap(err, "destination token")
	}
	return origin, dest, nil
}

func contractOf(t types.Token) string {
	if t.IsNative() {
		return ""
	}
	return strings.ToLower(t.ContractAddress().Hex())
}

func (b *Bridge) GetQuote(ctx context.Context, req *types.QuoteRequest) (*types.BridgeQuote, error) {
	amount, err := req.AmountInt()
	if err != nil {
		return nil, err
	}
	origin, dest, err := b.assets(ctx, req.FromToken, req.ToToken)
	if err != nil {
		return nil, err
	}

	recipient := b.refundTo
	if recipient == (common.Address{}) {
		recipient = placeholderRecipient
	}

	res, err := b.api.quote(ctx, client.OneClickQuoteParams{
		Dry:              true,
		OriginAsset:      origin,
		DestinationAsset: dest,
		Amount:           amount.String(),
		Recipient:        recipient.Hex(),
		RefundTo:         recipient.Hex(),
	})
	if err != nil {
		return nil, err
	}

	expected, err := toSmallestUnit(res.AmountOutFormatted, req.ToToken.Decimals)
	if err != nil {
		return nil, errors.Wrap(err, "invalid 1Click output amount")
	}

	return &types.BridgeQuote{
		Provider:         types.ProviderOneClick,
		FromToken:        req.FromToken,
		ToToken:          req.ToToken,
		FromAmount:       amount,
		ExpectedOutput:   expected,
		FeeAmount:        new(big.Int),
		EstimatedGasCost: "0",
		PriceImpact:      samePegImpact(req, res),
		Data: types.OneClickData{
			OriginAsset:      origin,
			DestinationAsset: dest,
			TimeEstimate:     res.TimeEstimate,
		},
	}, nil
}

// toSmallestUnit truncates any precision beyond the token's decimals
func toSmallestUnit(formatted string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(formatted))
	if err != nil {
		return nil, err
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// samePegImpact compares formatted in/out amounts. 1Click folds its fees into
// the output, so the loss is only meaningful when both sides are the same asset.
func samePegImpact(req *types.QuoteRequest, res *quoteResult) float64 {
	if !strings.EqualFold(req.FromToken.Symbol, req.ToToken.Symbol) {
		return 0
	}
	in, err := decimal.NewFromString(res.AmountInFormatted)
	if err != nil || in.IsZero() {
		return 0
	}
	out, err := decimal.NewFromString(res.AmountOutFormatted)
	if err != nil {
		return 0
	}
	return in.Sub(out).Div(in).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// PrepareTransaction requests a live quote to obtain a deposit address and
// builds the transfer that funds it.
func (b *Bridge) PrepareTransaction(ctx context.Context, quote *types.BridgeQuote, recipient common.Address) (*types.BridgeTransaction, error) {
	data, err := bridges.CheckQuote[types.OneClickData](quote, types.ProviderOneClick)
	if err != nil {
		return nil, err
	}
	chainID, ok := b.registry.ChainNameToID(quote.FromToken.Chain)
	if !ok {
		return nil, types.UnsupportedChain(quote.FromToken.Chain)
	}

	refundTo := b.refundTo
	if refundTo == (common.Address{}) {
		refundTo = recipient
	}

	res, err := b.api.quote(ctx, client.OneClickQuoteParams{
		Dry:              false,
		OriginAsset:      data.OriginAsset,
		DestinationAsset: data.DestinationAsset,
		Amount:           quote.FromAmount.String(),
		Recipient:        recipient.Hex(),
		RefundTo:         refundTo.Hex(),
	})
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(res.DepositAddress) {
		return nil, errors.Wrapf(types.ErrNoTransactionData, "unexpected deposit address %q", res.DepositAddress)
	}
	if res.DepositMemo != "" {
		return nil, errors.New("1Click deposit requires a memo, which EVM transfers cannot carry")
	}
	deposit := common.HexToAddress(res.DepositAddress)

	b.logger.WithFields(logrus.Fields{
		"deposit_address": deposit.Hex(),
		"chain_id":        chainID,
	}).Debug("Prepared 1Click deposit")

	if quote.FromToken.IsNative() {
		return &types.BridgeTransaction{
			To:      deposit,
			Value:   new(big.Int).Set(quote.FromAmount),
			ChainID: chainID,
		}, nil
	}

	calldata, err := b.erc20.Pack("transfer", deposit, quote.FromAmount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack transfer data")
	}
	return &types.BridgeTransaction{
		To:      quote.FromToken.ContractAddress(),
		Data:    calldata,
		Value:   new(big.Int),
		ChainID: chainID,
	}, nil
}

// DepositAddress recovers the deposit address a prepared transaction funds
func (b *Bridge) DepositAddress(tx *types.BridgeTransaction) (common.Address, error) {
	if len(tx.Data) == 0 {
		return tx.To, nil
	}
	if len(tx.Data) < 4 {
		return common.Address{}, errors.New("calldata too short")
	}
	args, err := b.erc20.Methods["transfer"].Inputs.Unpack(tx.Data[4:])
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to unpack transfer")
	}
	addr, ok := args[0].(common.Address)
	if !ok {
		return common.Address{}, errors.New("unexpected transfer recipient type")
	}
	return addr, nil
}

// OnSubmitted reports the funding transaction so 1Click can pick it up early
func (b *Bridge) OnSubmitted(ctx context.Context, quote *types.BridgeQuote, tx *types.BridgeTransaction, hash common.Hash) error {
	deposit, err := b.DepositAddress(tx)
	if err != nil {
		return err
	}
	return b.api.submitDeposit(ctx, deposit.Hex(), hash.Hex())
}
