package synapse

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"bridge-aggregator/pkg/bridges"
	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/client"
	"bridge-aggregator/pkg/types"
)

// quotes are only valid on chain for this long
const queryDeadline = time.Hour

// modules the router API must not route through
var excludedModules = []string{"SynapseBridge", "SynapseCCTP"}

// Bridge quotes and prepares transfers through the Synapse router
type Bridge struct {
	sdk      *client.SynapseSDK
	registry *chains.Registry
	logger   logrus.FieldLogger
}

type Option func(*Bridge)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New creates the Synapse adapter
func New(sdk *client.SynapseSDK, registry *chains.Registry, opts ...Option) *Bridge {
	b := &Bridge{
		sdk:      sdk,
		registry: registry,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithField("provider", types.ProviderSynapse)
	return b
}

func (b *Bridge) Name() types.ProviderName {
	return types.ProviderSynapse
}

func routerToken(t types.Token) common.Address {
	if t.IsNative() {
		return client.SynapseNativeToken
	}
	return t.ContractAddress()
}

func (b *Bridge) GetQuote(ctx context.Context, req *types.QuoteRequest) (*types.BridgeQuote, error) {
	fromID, toID, err := bridges.ResolveChainIDs(b.registry, req.FromToken, req.ToToken)
	if err != nil {
		return nil, err
	}
	amount, err := req.AmountInt()
	if err != nil {
		return nil, err
	}

	b.logger.WithFields(logrus.Fields{
		"from_chain": fromID,
		"to_chain":   toID,
		"from_token": req.FromToken.Address,
		"to_token":   req.ToToken.Address,
		"amount":     amount,
	}).Debug("Getting Synapse quote")

	raw, err := b.sdk.BridgeQuote(ctx, fromID, toID, routerToken(req.FromToken), routerToken(req.ToToken), amount,
		client.SynapseQuoteOptions{ExcludedModules: excludedModules})
	if err != nil {
		return nil, errors.Wrap(err, "synapse bridge quote")
	}

	deadline := big.NewInt(time.Now().Add(queryDeadline).Unix())
	origin := raw.OriginQuery
	origin.Deadline = deadline
	dest := raw.DestQuery
	dest.Deadline = new(big.Int).Set(deadline)

	return &types.BridgeQuote{
		Provider:         types.ProviderSynapse,
		FromToken:        req.FromToken,
		ToToken:          req.ToToken,
		FromAmount:       amount,
		ExpectedOutput:   raw.MaxAmountOut,
		FeeAmount:        raw.FeeAmount,
		EstimatedGasCost: "0",
		PriceImpact:      0,
		Data: types.SynapseData{
			RouterAddress: raw.RouterAddress,
			FeeAmount:     raw.FeeAmount,
			MaxAmountOut:  raw.MaxAmountOut,
			OriginQuery:   origin,
			DestQuery:     dest,
			Module:        raw.Module,
			EstimatedTime: raw.EstimatedTime,
		},
	}, nil
}

// PrepareTransaction encodes the router call from the quote's queries; no
// further API call is needed.
func (b *Bridge) PrepareTransaction(ctx context.Context, quote *types.BridgeQuote, recipient common.Address) (*types.BridgeTransaction, error) {
	data, err := bridges.CheckQuote[types.SynapseData](quote, types.ProviderSynapse)
	if err != nil {
		return nil, err
	}
	fromID, toID, err := bridges.ResolveChainIDs(b.registry, quote.FromToken, quote.ToToken)
	if err != nil {
		return nil, err
	}

	calldata, value, err := b.sdk.Bridge(recipient, toID, routerToken(quote.FromToken), quote.FromAmount, data.OriginQuery, data.DestQuery)
	if err != nil {
		return nil, err
	}

	b.logger.WithFields(logrus.Fields{
		"router":    data.RouterAddress.Hex(),
		"recipient": recipient.Hex(),
		"chain_id":  fromID,
	}).Debug("Prepared Synapse bridge transaction")

	return &types.BridgeTransaction{
		To:      data.RouterAddress,
		Data:    calldata,
		Value:   value,
		ChainID: fromID,
	}, nil
}
