package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ProviderData is the provider specific payload a quote carries into
// transaction preparation. The set of implementations is closed to this
// package: SynapseData, DeBridgeData, AcrossData and OneClickData.
type ProviderData interface {
	Provider() ProviderName
	providerData()
}

// SwapQuery mirrors the Synapse router's SwapQuery struct
type SwapQuery struct {
	RouterAdapter common.Address
	TokenOut      common.Address
	MinAmountOut  *big.Int
	Deadline      *big.Int
	RawParams     []byte
}

// SynapseData holds the router address and the origin/destination queries
// needed to encode the bridge call.
type SynapseData struct {
	RouterAddress common.Address
	FeeAmount     *big.Int
	MaxAmountOut  *big.Int
	OriginQuery   SwapQuery
	DestQuery     SwapQuery
	Module        string
	EstimatedTime int64
}

func (SynapseData) Provider() ProviderName { return ProviderSynapse }
func (SynapseData) providerData()          {}

// DeBridgeData holds the DLN order estimation. AllowanceTarget is zero when
// the API did not return one (native source asset).
type DeBridgeData struct {
	AllowanceTarget common.Address
	OrderID         string
	FixFee          string
	SrcUSDValue     float64
	DstUSDValue     float64
}

func (DeBridgeData) Provider() ProviderName { return ProviderDeBridge }
func (DeBridgeData) providerData()          {}

// AcrossData holds the suggested-fees response fields used by depositV3
type AcrossData struct {
	SpokePool           common.Address
	TotalRelayFee       *big.Int
	RelayerGasFee       *big.Int
	QuoteTimestamp      uint32
	FillDeadline        uint32
	ExclusiveRelayer    common.Address
	ExclusivityDeadline uint32
	ExpectedFillTimeSec int64
}

func (AcrossData) Provider() ProviderName { return ProviderAcross }
func (AcrossData) providerData()          {}

// OneClickData identifies the 1Click assets. DepositAddress is only known
// once a non-dry quote has been requested.
type OneClickData struct {
	OriginAsset      string
	DestinationAsset string
	DepositAddress   string
	DepositMemo      string
	TimeEstimate     float64
}

func (OneClickData) Provider() ProviderName { return ProviderOneClick }
func (OneClickData) providerData()          {}
