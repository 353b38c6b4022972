package aggregator

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridge-aggregator/pkg/bridges"
	"bridge-aggregator/pkg/types"
)

type fakeBridge struct {
	name   types.ProviderName
	output int64
	err    error
	panics bool
	delay  time.Duration
	// block holds GetQuote for blockAmount until closed, regardless of ctx
	block       <-chan struct{}
	blockAmount string
	calls       atomic.Int32

	mu        sync.Mutex
	perAmount map[string]int
}

func (f *fakeBridge) callsFor(amount string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perAmount[amount]
}

func (f *fakeBridge) Name() types.ProviderName { return f.name }

func (f *fakeBridge) GetQuote(ctx context.Context, req *types.QuoteRequest) (*types.BridgeQuote, error) {
	f.calls.Add(1)
	f.mu.Lock()
	if f.perAmount == nil {
		f.perAmount = make(map[string]int)
	}
	f.perAmount[req.Amount]++
	f.mu.Unlock()
	if f.panics {
		panic("adapter bug")
	}
	if f.block != nil && req.Amount == f.blockAmount {
		<-f.block
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	amount, _ := req.AmountInt()
	return &types.BridgeQuote{
		Provider:       f.name,
		FromToken:      req.FromToken,
		ToToken:        req.ToToken,
		FromAmount:     amount,
		ExpectedOutput: big.NewInt(f.output),
		FeeAmount:      new(big.Int),
	}, nil
}

func (f *fakeBridge) PrepareTransaction(context.Context, *types.BridgeQuote, common.Address) (*types.BridgeTransaction, error) {
	return nil, errors.New("not implemented")
}

func request(amount string) *types.QuoteRequest {
	return &types.QuoteRequest{
		FromToken: types.Token{Symbol: "USDC", Chain: "Arbitrum", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
		ToToken:   types.Token{Symbol: "USDC", Chain: "Base", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
		Amount:    amount,
	}
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func outputs(quotes []*types.BridgeQuote) []int64 {
	out := make([]int64, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, q.ExpectedOutput.Int64())
	}
	return out
}

func TestFetchQuotesRanksByExpectedOutput(t *testing.T) {
	set := bridges.NewSet(
		&fakeBridge{name: "a", output: 90},
		&fakeBridge{name: "b", output: 100},
		&fakeBridge{name: "c", output: 95},
	)
	agg := New(set, WithLogger(quietLogger()))

	res, err := agg.FetchQuotes(context.Background(), request("1000000"))
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 95, 90}, outputs(res.Quotes))
	assert.Empty(t, res.Failures)
}

func TestRankComparesBeyondFloatPrecision(t *testing.T) {
	base, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	bigger := new(big.Int).Add(base, big.NewInt(1))

	quotes := []*types.BridgeQuote{
		{Provider: "low", ExpectedOutput: base},
		{Provider: "high", ExpectedOutput: bigger},
	}
	Rank(quotes)
	assert.Equal(t, types.ProviderName("high"), quotes[0].Provider)
}

func TestRankIsStableForTies(t *testing.T) {
	quotes := []*types.BridgeQuote{
		{Provider: "first", ExpectedOutput: big.NewInt(5)},
		{Provider: "second", ExpectedOutput: big.NewInt(5)},
		{Provider: "top", ExpectedOutput: big.NewInt(7)},
	}
	Rank(quotes)
	assert.Equal(t, []types.ProviderName{"top", "first", "second"},
		[]types.ProviderName{quotes[0].Provider, quotes[1].Provider, quotes[2].Provider})
}

func TestFailingProviderIsExcluded(t *testing.T) {
	set := bridges.NewSet(
		&fakeBridge{name: "ok", output: 100},
		&fakeBridge{name: "broken", err: errors.New("boom")},
		&fakeBridge{name: "panicky", panics: true},
		&fakeBridge{name: "other", output: 80},
	)
	agg := New(set, WithLogger(quietLogger()))

	res, err := agg.FetchQuotes(context.Background(), request("1000000"))
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 80}, outputs(res.Quotes))

	require.Len(t, res.Failures, 2)
	failed := []types.ProviderName{res.Failures[0].Provider, res.Failures[1].Provider}
	assert.ElementsMatch(t, []types.ProviderName{"broken", "panicky"}, failed)
}

func TestAllProvidersFailingSettlesEmpty(t *testing.T) {
	set := bridges.NewSet(
		&fakeBridge{name: "a", err: errors.New("down")},
		&fakeBridge{name: "b", err: errors.New("down")},
	)
	agg := New(set, WithLogger(quietLogger()), WithRefreshInterval(time.Hour))
	defer agg.Close()

	agg.SetActiveRequest(request("1000000"))

	require.Eventually(t, func() bool {
		return agg.Snapshot().Status == StatusSettled
	}, time.Second, 5*time.Millisecond)

	snap := agg.Snapshot()
	assert.Empty(t, snap.Quotes)
	assert.False(t, snap.IsFetching)
	assert.NoError(t, snap.Err)
	assert.Len(t, snap.Failures, 2)
}

func TestSlowProviderIsBoundedByTimeout(t *testing.T) {
	set := bridges.NewSet(
		&fakeBridge{name: "fast", output: 10},
		&fakeBridge{name: "slow", output: 20, delay: time.Minute},
	)
	agg := New(set, WithLogger(quietLogger()), WithTimeout(20*time.Millisecond))

	start := time.Now()
	res, err := agg.FetchQuotes(context.Background(), request("1000000"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []int64{10}, outputs(res.Quotes))
	require.Len(t, res.Failures, 1)
	assert.True(t, errors.Is(res.Failures[0], context.DeadlineExceeded))
}

func TestZeroAmountMakesNoCalls(t *testing.T) {
	fb := &fakeBridge{name: "a", output: 1}
	agg := New(bridges.NewSet(fb), WithLogger(quietLogger()))
	defer agg.Close()

	res, err := agg.FetchQuotes(context.Background(), request("0"))
	require.NoError(t, err)
	assert.Empty(t, res.Quotes)

	agg.SetActiveRequest(request("0"))
	agg.SetActiveRequest(nil)
	assert.Equal(t, StatusIdle, agg.Snapshot().Status)
	assert.Zero(t, fb.calls.Load())
}

func TestInvalidRequestIsAggregationError(t *testing.T) {
	agg := New(bridges.NewSet(&fakeBridge{name: "a", output: 1}), WithLogger(quietLogger()))
	req := request("1000000")
	req.FromToken.Chain = ""

	_, err := agg.FetchQuotes(context.Background(), req)
	var aggErr *types.AggregationError
	assert.True(t, errors.As(err, &aggErr))
}

func TestStaleRoundResultsAreDiscarded(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }

	slow := &fakeBridge{name: "slow", output: 500, block: release, blockAmount: "1000000"}
	fast := &fakeBridge{name: "fast", output: 100}

	agg := New(bridges.NewSet(slow, fast), WithLogger(quietLogger()), WithRefreshInterval(time.Hour))
	defer agg.Close()
	defer unblock()

	// round A stays in flight on the slow provider
	agg.SetActiveRequest(request("1000000"))
	require.Eventually(t, func() bool { return slow.calls.Load() == 1 }, time.Second, time.Millisecond)

	// round B replaces it; the slow provider answers B immediately
	reqB := request("2000000")
	agg.SetActiveRequest(reqB)

	require.Eventually(t, func() bool {
		return agg.Snapshot().Status == StatusSettled
	}, time.Second, 5*time.Millisecond)

	unblock()
	time.Sleep(50 * time.Millisecond)

	snap := agg.Snapshot()
	assert.Equal(t, reqB, snap.Request)
	for _, q := range snap.Quotes {
		assert.Equal(t, "2000000", q.FromAmount.String())
	}
}

func TestClearingRequestDuringRoundReturnsToIdle(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }

	slow := &fakeBridge{name: "slow", output: 500, block: release, blockAmount: "1000000"}
	agg := New(bridges.NewSet(slow), WithLogger(quietLogger()), WithRefreshInterval(20*time.Millisecond))
	defer agg.Close()
	defer unblock()

	agg.SetActiveRequest(request("1000000"))
	require.Eventually(t, func() bool { return slow.calls.Load() == 1 }, time.Second, time.Millisecond)

	agg.SetActiveRequest(nil)
	snap := agg.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.False(t, snap.IsFetching)
	assert.Empty(t, snap.Quotes)

	unblock()
	time.Sleep(80 * time.Millisecond)

	snap = agg.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Nil(t, snap.Request)
	assert.Empty(t, snap.Quotes)
	assert.Equal(t, int32(1), slow.calls.Load())
}

func TestRequestChangeStopsPreviousRefresh(t *testing.T) {
	fb := &fakeBridge{name: "a", output: 1}
	agg := New(bridges.NewSet(fb), WithLogger(quietLogger()), WithRefreshInterval(10*time.Millisecond))
	defer agg.Close()

	agg.SetActiveRequest(request("1000000"))
	require.Eventually(t, func() bool { return fb.callsFor("1000000") >= 2 }, time.Second, time.Millisecond)

	agg.SetActiveRequest(request("2000000"))
	require.Eventually(t, func() bool { return fb.callsFor("2000000") >= 3 }, time.Second, time.Millisecond)

	polled := fb.callsFor("1000000")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, polled, fb.callsFor("1000000"))
	assert.Greater(t, fb.callsFor("2000000"), 3)
}

func TestSameRequestIsNoop(t *testing.T) {
	fb := &fakeBridge{name: "a", output: 1}
	agg := New(bridges.NewSet(fb), WithLogger(quietLogger()), WithRefreshInterval(time.Hour))
	defer agg.Close()

	agg.SetActiveRequest(request("1000000"))
	require.Eventually(t, func() bool { return agg.Snapshot().Status == StatusSettled }, time.Second, time.Millisecond)
	round := agg.Snapshot().Round

	agg.SetActiveRequest(request("1000000"))
	assert.Equal(t, round, agg.Snapshot().Round)
	assert.Equal(t, int32(1), fb.calls.Load())
}

func TestRefreshesOnInterval(t *testing.T) {
	fb := &fakeBridge{name: "a", output: 1}
	agg := New(bridges.NewSet(fb), WithLogger(quietLogger()), WithRefreshInterval(10*time.Millisecond))

	agg.SetActiveRequest(request("1000000"))
	require.Eventually(t, func() bool { return fb.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	agg.Close()
	calls := fb.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, fb.calls.Load())
}

func TestUpdatesDeliverSettledSnapshot(t *testing.T) {
	agg := New(bridges.NewSet(&fakeBridge{name: "a", output: 42}), WithLogger(quietLogger()), WithRefreshInterval(time.Hour))
	defer agg.Close()

	agg.SetActiveRequest(request("1000000"))

	select {
	case snap := <-agg.Updates():
		assert.Equal(t, StatusSettled, snap.Status)
		best, ok := snap.Best()
		require.True(t, ok)
		assert.Equal(t, int64(42), best.ExpectedOutput.Int64())
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}
