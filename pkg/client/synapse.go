package client

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"bridge-aggregator/pkg/types"
)

const (
	DefaultSynapseBaseURL = "https://api.synapseprotocol.com"

	// SynapseRFQRouter is the FastBridge router deployed at the same address on every chain
	SynapseRFQRouter = "0x00cD000000003f7F682BE4813200893d4e690000"
)

// SynapseNativeToken is the placeholder the router uses for the native asset
var SynapseNativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

const synapseRouterABI = `[{"name":"bridge","type":"function","stateMutability":"payable","inputs":[
{"name":"to","type":"address"},
{"name":"chainId","type":"uint256"},
{"name":"token","type":"address"},
{"name":"amount","type":"uint256"},
{"name":"originQuery","type":"tuple","components":[{"name":"routerAdapter","type":"address"},{"name":"tokenOut","type":"address"},{"name":"minAmountOut","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"rawParams","type":"bytes"}]},
{"name":"destQuery","type":"tuple","components":[{"name":"routerAdapter","type":"address"},{"name":"tokenOut","type":"address"},{"name":"minAmountOut","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"rawParams","type":"bytes"}]}
],"outputs":[]}]`

// SynapseQuote is the best route returned by the router quote endpoint
type SynapseQuote struct {
	FeeAmount     *big.Int
	MaxAmountOut  *big.Int
	RouterAddress common.Address
	OriginQuery   types.SwapQuery
	DestQuery     types.SwapQuery
	Module        string
	EstimatedTime int64
}

// SynapseQuoteOptions narrows the route search
type SynapseQuoteOptions struct {
	ExcludedModules []string
}

type synapseQuoteParams struct {
	FromChain       uint64   `url:"fromChain"`
	ToChain         uint64   `url:"toChain"`
	FromToken       string   `url:"fromToken"`
	ToToken         string   `url:"toToken"`
	Amount          string   `url:"amount"`
	ExcludedModules []string `url:"excludedModules,omitempty"`
}

type synapseQueryJSON struct {
	RouterAdapter string    `json:"routerAdapter"`
	SwapAdapter   string    `json:"swapAdapter"`
	TokenOut      string    `json:"tokenOut"`
	MinAmountOut  BigNumber `json:"minAmountOut"`
	Deadline      BigNumber `json:"deadline"`
	RawParams     string    `json:"rawParams"`
}

type synapseQuoteJSON struct {
	FeeAmount        BigNumber        `json:"feeAmount"`
	MaxAmountOut     BigNumber        `json:"maxAmountOut"`
	RouterAddress    string           `json:"routerAddress"`
	OriginQuery      synapseQueryJSON `json:"originQuery"`
	DestQuery        synapseQueryJSON `json:"destQuery"`
	BridgeModuleName string           `json:"bridgeModuleName"`
	EstimatedTime    int64            `json:"estimatedTime"`
}

// SynapseSDK quotes routes through the Synapse router API and encodes router
// calls locally.
type SynapseSDK struct {
	http      *HTTPClient
	routerABI abi.ABI
}

// NewSynapseSDK creates a Synapse SDK client
func NewSynapseSDK(cfg HTTPClientConfig) (*SynapseSDK, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSynapseBaseURL
	}
	cfg.Provider = types.ProviderSynapse

	parsed, err := abi.JSON(strings.NewReader(synapseRouterABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse router ABI")
	}

	return &SynapseSDK{
		http:      NewHTTPClient(cfg),
		routerABI: parsed,
	}, nil
}

// BridgeQuote returns the route with the highest output for the transfer
func (s *SynapseSDK) BridgeQuote(ctx context.Context, fromChain, toChain uint64, fromToken, toToken common.Address, amount *big.Int, opts SynapseQuoteOptions) (*SynapseQuote, error) {
	params := &synapseQuoteParams{
		FromChain:       fromChain,
		ToChain:         toChain,
		FromToken:       fromToken.Hex(),
		ToToken:         toToken.Hex(),
		Amount:          amount.String(),
		ExcludedModules: opts.ExcludedModules,
	}

	var routes []synapseQuoteJSON
	if err := s.http.GetJSON(ctx, "/bridge", params, &routes); err != nil {
		return nil, err
	}

	var best *SynapseQuote
	for _, r := range routes {
		q, err := r.toQuote()
		if err != nil {
			return nil, err
		}
		if best == nil || q.MaxAmountOut.Cmp(best.MaxAmountOut) > 0 {
			best = q
		}
	}
	if best == nil {
		return nil, errors.Wrap(types.ErrNoQuotes, "synapse returned no routes")
	}
	return best, nil
}

// Bridge encodes the router bridge call. The returned value is the native
// amount to attach.
func (s *SynapseSDK) Bridge(to common.Address, destChainID uint64, token common.Address, amount *big.Int, originQuery, destQuery types.SwapQuery) ([]byte, *big.Int, error) {
	data, err := s.routerABI.Pack("bridge",
		to,
		new(big.Int).SetUint64(destChainID),
		token,
		amount,
		normalizeQuery(originQuery),
		normalizeQuery(destQuery),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to pack bridge call")
	}

	value := new(big.Int)
	if token == SynapseNativeToken {
		value.Set(amount)
	}
	return data, value, nil
}

func normalizeQuery(q types.SwapQuery) types.SwapQuery {
	if q.MinAmountOut == nil {
		q.MinAmountOut = new(big.Int)
	}
	if q.Deadline == nil {
		q.Deadline = new(big.Int)
	}
	if q.RawParams == nil {
		q.RawParams = []byte{}
	}
	return q
}

func (r synapseQuoteJSON) toQuote() (*SynapseQuote, error) {
	origin, err := r.OriginQuery.toSwapQuery()
	if err != nil {
		return nil, errors.Wrap(err, "origin query")
	}
	dest, err := r.DestQuery.toSwapQuery()
	if err != nil {
		return nil, errors.Wrap(err, "destination query")
	}

	router := common.HexToAddress(SynapseRFQRouter)
	if common.IsHexAddress(r.RouterAddress) {
		router = common.HexToAddress(r.RouterAddress)
	}

	return &SynapseQuote{
		FeeAmount:     r.FeeAmount.OrZero(),
		MaxAmountOut:  r.MaxAmountOut.OrZero(),
		RouterAddress: router,
		OriginQuery:   origin,
		DestQuery:     dest,
		Module:        r.BridgeModuleName,
		EstimatedTime: r.EstimatedTime,
	}, nil
}

func (q synapseQueryJSON) toSwapQuery() (types.SwapQuery, error) {
	adapter := q.RouterAdapter
	if adapter == "" {
		adapter = q.SwapAdapter
	}

	raw := []byte{}
	if q.RawParams != "" && q.RawParams != "0x" {
		decoded, err := hexutil.Decode(q.RawParams)
		if err != nil {
			return types.SwapQuery{}, errors.Wrap(err, "invalid rawParams")
		}
		raw = decoded
	}

	return types.SwapQuery{
		RouterAdapter: common.HexToAddress(adapter),
		TokenOut:      common.HexToAddress(q.TokenOut),
		MinAmountOut:  q.MinAmountOut.OrZero(),
		Deadline:      q.Deadline.OrZero(),
		RawParams:     raw,
	}, nil
}

// UnpackBridge decodes calldata produced by Bridge. Used for diagnostics.
func (s *SynapseSDK) UnpackBridge(data []byte) ([]interface{}, error) {
	if len(data) < 4 {
		return nil, errors.New("calldata too short")
	}
	method, err := s.routerABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	return method.Inputs.Unpack(data[4:])
}
