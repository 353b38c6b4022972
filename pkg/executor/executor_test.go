package executor

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridge-aggregator/pkg/bridges"
	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/history"
	"bridge-aggregator/pkg/types"
)

var (
	owner     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	spokePool = common.HexToAddress("0xe35e9842fceaCA96570B734083f4a58e8F7C5f2A")
	usdcArb   = types.Token{Symbol: "USDC", Chain: "Arbitrum", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6}
	usdcBase  = types.Token{Symbol: "USDC", Chain: "Base", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6}
	ethArb    = types.Token{Symbol: "ETH", Chain: "Arbitrum", Decimals: 18}
)

type fakeWallet struct {
	mu        sync.Mutex
	chainID   uint64
	noAccount bool
	allowance *big.Int
	switched  []uint64
	approvals []*big.Int
	sent      []*types.BridgeTransaction
	sendErr   error
	// sendGate, when set, blocks SendTransaction until closed
	sendGate chan struct{}
	entered  chan struct{}
}

func (w *fakeWallet) Address() (common.Address, error) {
	if w.noAccount {
		return common.Address{}, errors.New("no private key")
	}
	return owner, nil
}

func (w *fakeWallet) ChainID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID
}

func (w *fakeWallet) SwitchChain(_ context.Context, chainID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.switched = append(w.switched, chainID)
	w.chainID = chainID
	return nil
}

func (w *fakeWallet) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.allowance == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(w.allowance), nil
}

func (w *fakeWallet) Approve(_ context.Context, _, _ common.Address, amount *big.Int) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.approvals = append(w.approvals, new(big.Int).Set(amount))
	w.allowance = new(big.Int).Set(amount)
	return common.HexToHash("0xa11"), nil
}

func (w *fakeWallet) SendTransaction(_ context.Context, tx *types.BridgeTransaction) (common.Hash, error) {
	if w.sendGate != nil {
		close(w.entered)
		<-w.sendGate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sendErr != nil {
		return common.Hash{}, w.sendErr
	}
	w.sent = append(w.sent, tx)
	return common.HexToHash("0xb0b"), nil
}

type fakeBridge struct {
	name      types.ProviderName
	registry  *chains.Registry
	submitted []common.Hash
}

func (f *fakeBridge) Name() types.ProviderName { return f.name }

func (f *fakeBridge) GetQuote(context.Context, *types.QuoteRequest) (*types.BridgeQuote, error) {
	return nil, errors.New("not used")
}

func (f *fakeBridge) PrepareTransaction(_ context.Context, quote *types.BridgeQuote, recipient common.Address) (*types.BridgeTransaction, error) {
	chainID, _ := f.registry.ChainNameToID(quote.FromToken.Chain)
	return &types.BridgeTransaction{
		To:      spokePool,
		Data:    recipient.Bytes(),
		Value:   new(big.Int),
		ChainID: chainID,
	}, nil
}

func (f *fakeBridge) OnSubmitted(_ context.Context, _ *types.BridgeQuote, _ *types.BridgeTransaction, hash common.Hash) error {
	f.submitted = append(f.submitted, hash)
	return nil
}

type memoryJournal struct {
	attempts map[string]history.Attempt
}

func (j *memoryJournal) Record(a history.Attempt) error {
	if j.attempts == nil {
		j.attempts = make(map[string]history.Attempt)
	}
	j.attempts[a.ID] = a
	return nil
}

func acrossQuote(from types.Token, amount int64) *types.BridgeQuote {
	return &types.BridgeQuote{
		Provider:       types.ProviderAcross,
		FromToken:      from,
		ToToken:        usdcBase,
		FromAmount:     big.NewInt(amount),
		ExpectedOutput: big.NewInt(amount - 10),
		FeeAmount:      big.NewInt(10),
		Data:           types.AcrossData{SpokePool: spokePool},
	}
}

func newExecutor(w *fakeWallet, opts ...Option) (*Executor, *fakeBridge) {
	registry := chains.NewRegistry()
	fb := &fakeBridge{name: types.ProviderAcross, registry: registry}
	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithLogger(logger)}, opts...)
	return New(w, registry, bridges.NewSet(fb), opts...), fb
}

func TestNeedsApprovalIffAllowanceBelowRequired(t *testing.T) {
	tests := []struct {
		name          string
		allowance     int64
		required      int64
		needsApproval bool
	}{
		{"zero allowance", 0, 1000, true},
		{"one short", 999, 1000, true},
		{"exactly equal", 1000, 1000, false},
		{"more than enough", 5000, 1000, false},
		{"zero required", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWallet{chainID: 42161, allowance: big.NewInt(tt.allowance)}
			ex, _ := newExecutor(w)

			st, err := ex.Execute(context.Background(), acrossQuote(usdcArb, tt.required), owner)
			require.NoError(t, err)

			assert.Equal(t, tt.needsApproval, st.NeedsApproval)
			if tt.needsApproval {
				assert.Equal(t, StatusNeedsApproval, st.Status)
				assert.Equal(t, spokePool, st.Spender)
				assert.Empty(t, w.sent)
			} else {
				assert.Equal(t, StatusSuccess, st.Status)
				assert.Len(t, w.sent, 1)
			}
		})
	}
}

func TestNativeTokenSkipsAllowance(t *testing.T) {
	w := &fakeWallet{chainID: 42161}
	ex, _ := newExecutor(w)

	quote := acrossQuote(ethArb, 1_000_000)
	quote.Data = nil

	st, err := ex.Execute(context.Background(), quote, owner)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.False(t, st.NeedsApproval)
}

func TestTransactionTargetsSourceChain(t *testing.T) {
	w := &fakeWallet{chainID: 42161, allowance: big.NewInt(1_000_000)}
	ex, fb := newExecutor(w)

	st, err := ex.Execute(context.Background(), acrossQuote(usdcArb, 1_000_000), owner)
	require.NoError(t, err)
	require.Len(t, w.sent, 1)
	assert.Equal(t, uint64(42161), w.sent[0].ChainID)
	assert.Equal(t, common.HexToHash("0xb0b"), st.TxHash)
	assert.Equal(t, []common.Hash{st.TxHash}, fb.submitted)
}

func TestChainMismatchSwitchesAndStops(t *testing.T) {
	w := &fakeWallet{chainID: 1, allowance: big.NewInt(1_000_000)}
	ex, _ := newExecutor(w)

	st, err := ex.Execute(context.Background(), acrossQuote(usdcArb, 1_000_000), owner)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrChainMismatch))
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, []uint64{42161}, w.switched)
	assert.Empty(t, w.sent)

	// the caller re-invokes after the switch
	st, err = ex.Execute(context.Background(), acrossQuote(usdcArb, 1_000_000), owner)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, st.Status)
}

func TestUnknownProvider(t *testing.T) {
	w := &fakeWallet{chainID: 42161}
	ex, _ := newExecutor(w)

	quote := acrossQuote(usdcArb, 100)
	quote.Provider = "Hop"
	_, err := ex.Execute(context.Background(), quote, owner)
	assert.True(t, errors.Is(err, types.ErrUnknownProvider))

	quote = acrossQuote(usdcArb, 100)
	quote.Data = nil
	_, err = ex.Execute(context.Background(), quote, owner)
	assert.True(t, errors.Is(err, types.ErrUnknownProvider))
}

func TestWalletNotConnected(t *testing.T) {
	ex, _ := newExecutor(&fakeWallet{chainID: 42161, noAccount: true})
	st, err := ex.Execute(context.Background(), acrossQuote(usdcArb, 100), owner)
	assert.True(t, errors.Is(err, types.ErrWalletNotConnected))
	assert.Equal(t, StatusFailed, st.Status)
}

func TestSendFailureIsSubmissionError(t *testing.T) {
	w := &fakeWallet{chainID: 42161, allowance: big.NewInt(100), sendErr: errors.New("nonce too low")}
	ex, _ := newExecutor(w)

	st, err := ex.Execute(context.Background(), acrossQuote(usdcArb, 100), owner)
	var subErr *types.TransactionSubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, "send", subErr.Stage)
	assert.Equal(t, StatusFailed, st.Status)
}

func TestReentrantExecuteIsRejected(t *testing.T) {
	w := &fakeWallet{
		chainID:   42161,
		allowance: big.NewInt(100),
		sendGate:  make(chan struct{}),
		entered:   make(chan struct{}),
	}
	ex, _ := newExecutor(w)

	done := make(chan error, 1)
	go func() {
		_, err := ex.Execute(context.Background(), acrossQuote(usdcArb, 100), owner)
		done <- err
	}()

	select {
	case <-w.entered:
	case <-time.After(time.Second):
		t.Fatal("first execution never reached submission")
	}
	assert.Equal(t, StatusSubmitting, ex.State().Status)

	_, err := ex.Execute(context.Background(), acrossQuote(usdcArb, 100), owner)
	assert.True(t, errors.Is(err, types.ErrExecutionInProgress))

	_, err = ex.ApproveQuote(context.Background(), acrossQuote(usdcArb, 100))
	assert.True(t, errors.Is(err, types.ErrExecutionInProgress))

	close(w.sendGate)
	require.NoError(t, <-done)
	assert.Len(t, w.sent, 1)
}

func TestApprovalSubCycle(t *testing.T) {
	w := &fakeWallet{chainID: 42161}
	journal := &memoryJournal{}
	ex, _ := newExecutor(w, WithJournal(journal))
	quote := acrossQuote(usdcArb, 2_500_000)

	st, err := ex.Execute(context.Background(), quote, owner)
	require.NoError(t, err)
	require.Equal(t, StatusNeedsApproval, st.Status)
	attemptID := st.AttemptID

	hash, err := ex.ApproveQuote(context.Background(), quote)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xa11"), hash)
	require.Len(t, w.approvals, 1)
	assert.Equal(t, "2500000", w.approvals[0].String())

	st = ex.State()
	assert.Equal(t, StatusReady, st.Status)
	assert.False(t, st.NeedsApproval)

	st, err = ex.Execute(context.Background(), quote, owner)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, attemptID, st.AttemptID)

	require.Len(t, journal.attempts, 1)
	recorded := journal.attempts[attemptID]
	assert.Equal(t, string(StatusSuccess), recorded.Status)
	assert.Equal(t, hash.Hex(), recorded.ApprovalHash)
	assert.Equal(t, st.TxHash.Hex(), recorded.TxHash)
}

func TestDifferentQuoteAfterNeedsApprovalStartsNewAttempt(t *testing.T) {
	w := &fakeWallet{chainID: 42161, allowance: big.NewInt(60)}
	journal := &memoryJournal{}
	ex, _ := newExecutor(w, WithJournal(journal))

	st, err := ex.Execute(context.Background(), acrossQuote(usdcArb, 100), owner)
	require.NoError(t, err)
	require.Equal(t, StatusNeedsApproval, st.Status)
	first := st.AttemptID

	st, err = ex.Execute(context.Background(), acrossQuote(usdcArb, 50), owner)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.NotEqual(t, first, st.AttemptID)
	assert.False(t, st.NeedsApproval)
	assert.Nil(t, st.Required)
	assert.Nil(t, st.Allowance)
	assert.Equal(t, common.Address{}, st.Spender)

	require.Len(t, journal.attempts, 2)
	assert.Equal(t, "100", journal.attempts[first].FromAmount)
	assert.Equal(t, string(StatusNeedsApproval), journal.attempts[first].Status)
	assert.Equal(t, "50", journal.attempts[st.AttemptID].FromAmount)
	assert.Equal(t, string(StatusSuccess), journal.attempts[st.AttemptID].Status)
}

func TestExplicitApproveJoinsPendingAttempt(t *testing.T) {
	w := &fakeWallet{chainID: 42161}
	journal := &memoryJournal{}
	ex, _ := newExecutor(w, WithJournal(journal))
	quote := acrossQuote(usdcArb, 2_500_000)

	st, err := ex.Execute(context.Background(), quote, owner)
	require.NoError(t, err)
	require.Equal(t, StatusNeedsApproval, st.Status)
	attemptID := st.AttemptID

	hash, err := ex.Approve(context.Background(), usdcArb, spokePool, big.NewInt(2_500_000))
	require.NoError(t, err)
	assert.Equal(t, attemptID, ex.State().AttemptID)
	assert.Equal(t, types.ProviderAcross, ex.State().Provider)

	st, err = ex.Execute(context.Background(), quote, owner)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, attemptID, st.AttemptID)

	require.Len(t, journal.attempts, 1)
	recorded := journal.attempts[attemptID]
	assert.Equal(t, string(types.ProviderAcross), recorded.Provider)
	assert.Equal(t, hash.Hex(), recorded.ApprovalHash)
}

func TestApproveOfOtherSpenderStartsNewAttempt(t *testing.T) {
	w := &fakeWallet{chainID: 42161}
	journal := &memoryJournal{}
	ex, _ := newExecutor(w, WithJournal(journal))

	st, err := ex.Execute(context.Background(), acrossQuote(usdcArb, 1000), owner)
	require.NoError(t, err)
	require.Equal(t, StatusNeedsApproval, st.Status)

	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	_, err = ex.Approve(context.Background(), usdcArb, other, big.NewInt(1000))
	require.NoError(t, err)
	assert.NotEqual(t, st.AttemptID, ex.State().AttemptID)
	assert.Len(t, journal.attempts, 2)
}

func TestQuoteWithoutAmountIsRejected(t *testing.T) {
	w := &fakeWallet{chainID: 42161, allowance: big.NewInt(100)}
	ex, _ := newExecutor(w)
	quote := acrossQuote(usdcArb, 100)
	quote.FromAmount = nil

	st, err := ex.Execute(context.Background(), quote, owner)
	assert.True(t, errors.Is(err, types.ErrInvalidAmount))
	assert.Equal(t, StatusFailed, st.Status)
	assert.Empty(t, w.sent)
}

func TestApproveRejectsNativeToken(t *testing.T) {
	ex, _ := newExecutor(&fakeWallet{chainID: 42161})
	_, err := ex.Approve(context.Background(), ethArb, spokePool, big.NewInt(1))
	assert.True(t, errors.Is(err, types.ErrMissingTokenAddress))
}

func TestResolveSpender(t *testing.T) {
	router := common.HexToAddress("0x00cD000000003f7F682BE4813200893d4e690000")
	target := common.HexToAddress("0xeF4fB24aD0916217251F553c0596F8Edc630EB66")

	tests := []struct {
		name    string
		data    types.ProviderData
		spender common.Address
		needs   bool
		wantErr error
	}{
		{"synapse", types.SynapseData{RouterAddress: router}, router, true, nil},
		{"debridge", types.DeBridgeData{AllowanceTarget: target}, target, true, nil},
		{"across", types.AcrossData{SpokePool: spokePool}, spokePool, true, nil},
		{"oneclick", types.OneClickData{}, common.Address{}, false, nil},
		{"debridge without target", types.DeBridgeData{}, common.Address{}, false, types.ErrNoTransactionData},
		{"missing data", nil, common.Address{}, false, types.ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spender, needs, err := ResolveSpender(&types.BridgeQuote{Provider: "x", Data: tt.data})
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.spender, spender)
			assert.Equal(t, tt.needs, needs)
		})
	}
}
