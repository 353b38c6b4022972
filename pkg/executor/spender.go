package executor

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"bridge-aggregator/pkg/types"
)

// ResolveSpender returns the contract that must be allowed to move the
// quote's source token. needsAllowance is false for providers that are funded
// by a plain transfer.
func ResolveSpender(quote *types.BridgeQuote) (spender common.Address, needsAllowance bool, err error) {
	if quote == nil {
		return common.Address{}, false, errors.New("quote is nil")
	}

	switch data := quote.Data.(type) {
	case types.SynapseData:
		spender = data.RouterAddress
	case types.DeBridgeData:
		spender = data.AllowanceTarget
	case types.AcrossData:
		spender = data.SpokePool
	case types.OneClickData:
		return common.Address{}, false, nil
	default:
		return common.Address{}, false, errors.Wrapf(types.ErrUnknownProvider, "%s", quote.Provider)
	}

	if spender == (common.Address{}) {
		return common.Address{}, false, errors.Wrapf(types.ErrNoTransactionData, "%s quote has no spender", quote.Provider)
	}
	return spender, true, nil
}
