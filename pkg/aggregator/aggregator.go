package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"bridge-aggregator/pkg/bridges"
	"bridge-aggregator/pkg/metrics"
	"bridge-aggregator/pkg/types"
)

const (
	DefaultTimeout         = 15 * time.Second
	DefaultRefreshInterval = 10 * time.Second
)

type Status string

const (
	StatusIdle     Status = "idle"
	StatusFetching Status = "fetching"
	StatusSettled  Status = "settled"
)

// Snapshot is the aggregator state visible to callers. Err is only set when a
// round failed outside the adapters; individual provider failures are listed
// in Failures and never make the round fail.
type Snapshot struct {
	Status     Status
	Request    *types.QuoteRequest
	Quotes     []*types.BridgeQuote
	Failures   []*types.ProviderQuoteError
	IsFetching bool
	Err        error
	Round      uint64
	UpdatedAt  time.Time
}

// Best returns the top ranked quote, if any
func (s Snapshot) Best() (*types.BridgeQuote, bool) {
	if len(s.Quotes) == 0 {
		return nil, false
	}
	return s.Quotes[0], true
}

// Result is the outcome of one aggregation round
type Result struct {
	Quotes   []*types.BridgeQuote
	Failures []*types.ProviderQuoteError
}

// Aggregator fans a quote request out to every registered bridge and keeps
// the ranked results fresh while the request stays active.
type Aggregator struct {
	bridges  *bridges.Set
	timeout  time.Duration
	interval time.Duration
	logger   logrus.FieldLogger
	metrics  metrics.Recorder

	mu         sync.Mutex
	state      Snapshot
	generation uint64
	activeKey  string
	cancel     context.CancelFunc
	closed     bool
	updates    chan Snapshot
	wg         sync.WaitGroup
}

type Option func(*Aggregator)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithTimeout bounds each adapter call within a round
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithRefreshInterval(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.interval = d
		}
	}
}

func WithMetrics(rec metrics.Recorder) Option {
	return func(a *Aggregator) {
		if rec != nil {
			a.metrics = rec
		}
	}
}

// New creates an idle aggregator over set
func New(set *bridges.Set, opts ...Option) *Aggregator {
	a := &Aggregator{
		bridges:  set,
		timeout:  DefaultTimeout,
		interval: DefaultRefreshInterval,
		logger:   logrus.StandardLogger(),
		metrics:  metrics.NoopRecorder{},
		state:    Snapshot{Status: StatusIdle},
		updates:  make(chan Snapshot, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchQuotes runs a single round: every bridge is queried concurrently, each
// under its own timeout, and the successful quotes are ranked by expected
// output. A nil or zero-amount request returns an empty result without any
// network call.
func (a *Aggregator) FetchQuotes(ctx context.Context, req *types.QuoteRequest) (*Result, error) {
	if req.IsZero() {
		return &Result{}, nil
	}
	if err := types.ValidateRequest(req); err != nil {
		return &Result{}, &types.AggregationError{Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &Result{}, &types.AggregationError{Err: err}
	}

	all := a.bridges.All()
	quotes := make([]*types.BridgeQuote, len(all))
	failures := make([]*types.ProviderQuoteError, len(all))

	// every goroutine returns nil so that one failure never cancels the rest
	var g errgroup.Group
	for i, b := range all {
		g.Go(func() error {
			quotes[i], failures[i] = a.quoteOne(ctx, b, req)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{}
	for i := range all {
		if quotes[i] != nil {
			res.Quotes = append(res.Quotes, quotes[i])
		}
		if failures[i] != nil {
			res.Failures = append(res.Failures, failures[i])
		}
	}
	Rank(res.Quotes)
	return res, nil
}

func (a *Aggregator) quoteOne(ctx context.Context, b bridges.Bridge, req *types.QuoteRequest) (quote *types.BridgeQuote, failure *types.ProviderQuoteError) {
	name := b.Name()
	labels := map[string]string{"provider": string(name)}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			quote = nil
			failure = &types.ProviderQuoteError{Provider: name, Err: fmt.Errorf("panic: %v", r)}
		}
		a.metrics.ObserveLatency(metrics.QuoteLatency, time.Since(start), labels)
		if failure != nil {
			a.metrics.IncCounter(metrics.QuoteFailed, labels)
			a.logger.WithError(failure.Err).WithField("provider", name).Warn("Provider quote failed")
			return
		}
		a.metrics.IncCounter(metrics.QuoteSucceeded, labels)
	}()

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	q, err := b.GetQuote(callCtx, req)
	if err != nil {
		return nil, &types.ProviderQuoteError{Provider: name, Err: err}
	}
	if q == nil || q.ExpectedOutput == nil {
		return nil, &types.ProviderQuoteError{Provider: name, Err: errors.New("empty quote")}
	}
	return q, nil
}

// Rank sorts quotes by expected output, highest first. Equal outputs keep
// their relative order.
func Rank(quotes []*types.BridgeQuote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].ExpectedOutput.Cmp(quotes[j].ExpectedOutput) > 0
	})
}

// SetActiveRequest replaces the active request. A nil or zero-amount request
// returns the aggregator to idle. Setting the same logical request again is a
// no-op; any other change discards the previous quotes, cancels its refresh
// loop and starts a new round immediately.
func (a *Aggregator) SetActiveRequest(req *types.QuoteRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	if req.IsZero() {
		a.stopLocked()
		a.generation++
		a.activeKey = ""
		a.state = Snapshot{Status: StatusIdle, Round: a.generation, UpdatedAt: time.Now()}
		a.publishLocked()
		return
	}

	key := req.Key()
	if key == a.activeKey && a.cancel != nil {
		return
	}

	a.stopLocked()
	a.generation++
	gen := a.generation
	a.activeKey = key

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.state = Snapshot{Status: StatusFetching, Request: req, IsFetching: true, Round: gen}

	a.logger.WithFields(logrus.Fields{
		"round": gen,
		"from":  req.FromToken.String(),
		"to":    req.ToToken.String(),
	}).Debug("Active quote request changed")

	a.wg.Add(1)
	go a.loop(ctx, gen, req)
}

func (a *Aggregator) stopLocked() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

func (a *Aggregator) loop(ctx context.Context, gen uint64, req *types.QuoteRequest) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		a.runRound(ctx, gen, req)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *Aggregator) runRound(ctx context.Context, gen uint64, req *types.QuoteRequest) {
	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		return
	}
	a.state.Status = StatusFetching
	a.state.IsFetching = true
	a.mu.Unlock()

	start := time.Now()
	res, err := a.FetchQuotes(ctx, req)

	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation || ctx.Err() != nil {
		a.metrics.IncCounter(metrics.RoundDiscarded, nil)
		a.logger.WithField("round", gen).Debug("Discarding results of a superseded round")
		return
	}

	a.state = Snapshot{
		Status:    StatusSettled,
		Request:   req,
		Quotes:    res.Quotes,
		Failures:  res.Failures,
		Err:       err,
		Round:     gen,
		UpdatedAt: time.Now(),
	}
	a.publishLocked()

	a.logger.WithFields(logrus.Fields{
		"round":    gen,
		"quotes":   len(res.Quotes),
		"failures": len(res.Failures),
		"duration": time.Since(start),
	}).Debug("Quote round settled")
}

// publishLocked hands the latest snapshot to Updates, replacing any snapshot
// the reader has not taken yet
func (a *Aggregator) publishLocked() {
	snap := a.snapshotLocked()
	select {
	case <-a.updates:
	default:
	}
	select {
	case a.updates <- snap:
	default:
	}
}

func (a *Aggregator) snapshotLocked() Snapshot {
	snap := a.state
	snap.Quotes = append([]*types.BridgeQuote(nil), a.state.Quotes...)
	snap.Failures = append([]*types.ProviderQuoteError(nil), a.state.Failures...)
	return snap
}

// Snapshot returns a copy of the current state
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Updates delivers a snapshot after every settled round and every return to
// idle. Only the latest undelivered snapshot is kept. The channel is closed by
// Close.
func (a *Aggregator) Updates() <-chan Snapshot {
	return a.updates
}

// Close stops the refresh loop and waits for it to exit
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.stopLocked()
	a.generation++
	a.mu.Unlock()

	a.wg.Wait()
	close(a.updates)
}
