package executor

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"bridge-aggregator/pkg/bridges"
	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/history"
	"bridge-aggregator/pkg/metrics"
	"bridge-aggregator/pkg/types"
)

type Status string

const (
	StatusReady              Status = "ready"
	StatusSubmitting         Status = "submitting"
	StatusSuccess            Status = "success"
	StatusNeedsApproval      Status = "needs_approval"
	StatusApprovalSubmitting Status = "approval_submitting"
	StatusFailed             Status = "failed"
)

// Wallet is the connected account and its chain client. Allowance, Approve and
// SendTransaction operate on the wallet's active chain.
type Wallet interface {
	Address() (common.Address, error)
	ChainID() uint64
	SwitchChain(ctx context.Context, chainID uint64) error
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
	SendTransaction(ctx context.Context, tx *types.BridgeTransaction) (common.Hash, error)
}

// Journal records execution attempts
type Journal interface {
	Record(history.Attempt) error
}

// State is the executor's view of the current attempt. TxHash stays set after
// a successful submission until the next attempt starts.
type State struct {
	Status        Status
	AttemptID     string
	Provider      types.ProviderName
	TxHash        common.Hash
	ApprovalHash  common.Hash
	Err           error
	NeedsApproval bool
	Spender       common.Address
	Required      *big.Int
	Allowance     *big.Int
}

// Executor turns a chosen quote into an on-chain submission. Only one
// execution or approval runs at a time.
type Executor struct {
	wallet   Wallet
	registry *chains.Registry
	bridges  *bridges.Set
	journal  Journal
	logger   logrus.FieldLogger
	metrics  metrics.Recorder

	mu      sync.Mutex
	busy    bool
	state   State
	attempt history.Attempt
	// pending is the quote the current attempt was opened for
	pending *types.BridgeQuote
}

type Option func(*Executor)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithJournal(j Journal) Option {
	return func(e *Executor) {
		e.journal = j
	}
}

func WithMetrics(rec metrics.Recorder) Option {
	return func(e *Executor) {
		if rec != nil {
			e.metrics = rec
		}
	}
}

func New(wallet Wallet, registry *chains.Registry, set *bridges.Set, opts ...Option) *Executor {
	e := &Executor{
		wallet:   wallet,
		registry: registry,
		bridges:  set,
		logger:   logrus.StandardLogger(),
		metrics:  metrics.NoopRecorder{},
		state:    State{Status: StatusReady},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns a copy of the current execution state
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// approvalTarget names the allowance an explicit Approve grants
type approvalTarget struct {
	token   types.Token
	spender common.Address
}

// begin claims the executor for one operation. A new attempt resets the state
// unless it continues the pending approval sub-cycle of the same quote.
func (e *Executor) begin(status Status, quote *types.BridgeQuote, target *approvalTarget, recipient common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.busy {
		return types.ErrExecutionInProgress
	}
	e.busy = true

	if !e.continuesLocked(quote, target) {
		e.state = State{}
		e.attempt = newAttempt(quote, recipient)
		e.pending = quote
	}
	if status == StatusSubmitting {
		if recipient != (common.Address{}) {
			e.attempt.Recipient = recipient.Hex()
		}
		e.state.NeedsApproval = false
		e.state.Spender = common.Address{}
		e.state.Required = nil
		e.state.Allowance = nil
	}
	e.state.Status = status
	e.state.AttemptID = e.attempt.ID
	e.state.Err = nil
	if quote != nil {
		e.state.Provider = quote.Provider
	}
	return nil
}

// continuesLocked reports whether an operation belongs to the current attempt:
// the attempt is waiting on an approval (or has just been approved) and the
// operation carries the same quote, or approves the pending token and spender.
func (e *Executor) continuesLocked(quote *types.BridgeQuote, target *approvalTarget) bool {
	if e.pending == nil {
		return false
	}
	switch {
	case e.state.Status == StatusNeedsApproval:
	case e.state.Status == StatusReady && e.state.ApprovalHash != (common.Hash{}):
	default:
		return false
	}

	if quote != nil {
		return sameQuote(e.pending, quote)
	}
	return target != nil &&
		e.state.Status == StatusNeedsApproval &&
		target.token.Equal(e.pending.FromToken) &&
		target.spender == e.state.Spender
}

func sameQuote(a, b *types.BridgeQuote) bool {
	if a.Provider != b.Provider || !a.FromToken.Equal(b.FromToken) || !a.ToToken.Equal(b.ToToken) {
		return false
	}
	if a.FromAmount == nil || b.FromAmount == nil {
		return a.FromAmount == b.FromAmount
	}
	return a.FromAmount.Cmp(b.FromAmount) == 0
}

func newAttempt(quote *types.BridgeQuote, recipient common.Address) history.Attempt {
	a := history.Attempt{ID: history.NewID()}
	if quote != nil {
		a.Provider = string(quote.Provider)
		a.FromToken = quote.FromToken.String()
		a.ToToken = quote.ToToken.String()
		if quote.FromAmount != nil {
			a.FromAmount = quote.FromAmount.String()
		}
		if quote.ExpectedOutput != nil {
			a.ExpectedOutput = quote.ExpectedOutput.String()
		}
	}
	if recipient != (common.Address{}) {
		a.Recipient = recipient.Hex()
	}
	return a
}

// finish releases the executor and records the attempt
func (e *Executor) finish(update func(*State)) State {
	e.mu.Lock()
	update(&e.state)
	e.busy = false
	st := e.state

	e.attempt.Status = string(st.Status)
	if st.TxHash != (common.Hash{}) {
		e.attempt.TxHash = st.TxHash.Hex()
	}
	if st.ApprovalHash != (common.Hash{}) {
		e.attempt.ApprovalHash = st.ApprovalHash.Hex()
	}
	e.attempt.Error = ""
	if st.Err != nil {
		e.attempt.Error = st.Err.Error()
	}
	attempt := e.attempt
	e.mu.Unlock()

	if e.journal != nil {
		if err := e.journal.Record(attempt); err != nil {
			e.logger.WithError(err).WithField("attempt", attempt.ID).Warn("Failed to record attempt")
		}
	}
	return st
}

func (e *Executor) fail(err error) (State, error) {
	st := e.finish(func(s *State) {
		s.Status = StatusFailed
		s.Err = err
		s.NeedsApproval = false
	})
	return st, err
}

// sourceChain makes sure the wallet is on the quote's source chain. On a
// mismatch it asks the wallet to switch and reports the mismatch; the caller
// re-invokes once the switch has completed.
func (e *Executor) sourceChain(ctx context.Context, token types.Token) (uint64, error) {
	required, ok := e.registry.ChainNameToID(token.Chain)
	if !ok {
		return 0, types.UnsupportedChain(token.Chain)
	}
	current := e.wallet.ChainID()
	if current == required {
		return required, nil
	}

	e.logger.WithFields(logrus.Fields{
		"chain_id": current,
		"required": required,
	}).Info("Switching wallet chain")

	if err := e.wallet.SwitchChain(ctx, required); err != nil {
		return 0, errors.Wrap(err, "failed to switch chain")
	}
	return 0, &types.ChainMismatchError{Current: current, Required: required}
}

// Execute runs chain alignment, spender resolution, the allowance check,
// transaction preparation and submission for quote. An insufficient
// allowance is not an error: the returned state is NeedsApproval and the
// caller is expected to Approve and then call Execute again.
func (e *Executor) Execute(ctx context.Context, quote *types.BridgeQuote, recipient common.Address) (State, error) {
	if err := e.begin(StatusSubmitting, quote, nil, recipient); err != nil {
		return e.State(), err
	}

	if quote == nil {
		return e.fail(errors.New("no quote selected"))
	}
	if quote.FromAmount == nil {
		return e.fail(errors.Wrap(types.ErrInvalidAmount, "quote has no source amount"))
	}

	owner, err := e.wallet.Address()
	if err != nil {
		return e.fail(errors.Wrap(types.ErrWalletNotConnected, err.Error()))
	}
	if recipient == (common.Address{}) {
		recipient = owner
	}

	chainID, err := e.sourceChain(ctx, quote.FromToken)
	if err != nil {
		return e.fail(err)
	}

	bridge, ok := e.bridges.Get(quote.Provider)
	if !ok {
		return e.fail(errors.Wrapf(types.ErrUnknownProvider, "%s", quote.Provider))
	}

	logger := e.logger.WithFields(logrus.Fields{
		"provider": quote.Provider,
		"chain_id": chainID,
		"token":    quote.FromToken.String(),
	})

	if !quote.FromToken.IsNative() {
		spender, needsAllowance, err := ResolveSpender(quote)
		if err != nil {
			return e.fail(err)
		}
		if needsAllowance {
			allowance, err := e.wallet.Allowance(ctx, quote.FromToken.ContractAddress(), owner, spender)
			if err != nil {
				return e.fail(&types.TransactionSubmissionError{Stage: "allowance", Err: err})
			}
			if allowance.Cmp(quote.FromAmount) < 0 {
				logger.WithFields(logrus.Fields{
					"spender":   spender.Hex(),
					"allowance": allowance.String(),
					"required":  quote.FromAmount.String(),
				}).Info("Approval required")

				st := e.finish(func(s *State) {
					s.Status = StatusNeedsApproval
					s.NeedsApproval = true
					s.Spender = spender
					s.Required = new(big.Int).Set(quote.FromAmount)
					s.Allowance = allowance
				})
				return st, nil
			}
		}
	}

	tx, err := bridge.PrepareTransaction(ctx, quote, recipient)
	if err != nil {
		return e.fail(&types.TransactionSubmissionError{Stage: "prepare", Err: err})
	}
	if tx.ChainID != chainID {
		return e.fail(&types.ChainMismatchError{Current: chainID, Required: tx.ChainID})
	}

	hash, err := e.wallet.SendTransaction(ctx, tx)
	if err != nil {
		e.metrics.IncCounter(metrics.TransactionError, map[string]string{"provider": string(quote.Provider)})
		return e.fail(&types.TransactionSubmissionError{Stage: "send", Err: err})
	}
	e.metrics.IncCounter(metrics.TransactionSent, map[string]string{"provider": string(quote.Provider)})
	logger.WithField("tx_hash", hash.Hex()).Info("Bridge transaction submitted")

	if observer, ok := bridge.(bridges.SubmissionObserver); ok {
		if err := observer.OnSubmitted(ctx, quote, tx, hash); err != nil {
			logger.WithError(err).Warn("Provider submission hook failed")
		}
	}

	st := e.finish(func(s *State) {
		s.Status = StatusSuccess
		s.TxHash = hash
		s.NeedsApproval = false
	})
	return st, nil
}

// Approve grants spender an allowance of exactly amount over token. On
// success the executor returns to Ready with the approval hash recorded. An
// approval of the token and spender a pending attempt is waiting on joins that
// attempt.
func (e *Executor) Approve(ctx context.Context, token types.Token, spender common.Address, amount *big.Int) (common.Hash, error) {
	return e.approve(ctx, nil, token, spender, amount)
}

// ApproveQuote approves the spender the quote's provider needs for the
// quote's source amount
func (e *Executor) ApproveQuote(ctx context.Context, quote *types.BridgeQuote) (common.Hash, error) {
	if quote == nil {
		return common.Hash{}, errors.New("no quote selected")
	}
	if quote.FromToken.IsNative() {
		return common.Hash{}, errors.Errorf("%s is native and needs no approval", quote.FromToken)
	}
	spender, needsAllowance, err := ResolveSpender(quote)
	if err != nil {
		return common.Hash{}, err
	}
	if !needsAllowance {
		return common.Hash{}, errors.Errorf("%s quotes need no approval", quote.Provider)
	}
	return e.approve(ctx, quote, quote.FromToken, spender, quote.FromAmount)
}

func (e *Executor) approve(ctx context.Context, quote *types.BridgeQuote, token types.Token, spender common.Address, amount *big.Int) (common.Hash, error) {
	if err := e.begin(StatusApprovalSubmitting, quote, &approvalTarget{token: token, spender: spender}, common.Address{}); err != nil {
		return common.Hash{}, err
	}

	if token.IsNative() {
		_, err := e.fail(errors.Wrapf(types.ErrMissingTokenAddress, "cannot approve native %s", token))
		return common.Hash{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		_, err := e.fail(errors.Wrap(types.ErrInvalidAmount, "approval amount must be positive"))
		return common.Hash{}, err
	}
	if _, err := e.wallet.Address(); err != nil {
		_, err := e.fail(errors.Wrap(types.ErrWalletNotConnected, err.Error()))
		return common.Hash{}, err
	}
	if _, err := e.sourceChain(ctx, token); err != nil {
		_, err := e.fail(err)
		return common.Hash{}, err
	}

	hash, err := e.wallet.Approve(ctx, token.ContractAddress(), spender, amount)
	if err != nil {
		_, err := e.fail(&types.TransactionSubmissionError{Stage: "approve", Err: err})
		return common.Hash{}, err
	}

	e.metrics.IncCounter(metrics.ApprovalSent, nil)
	e.logger.WithFields(logrus.Fields{
		"token":   token.String(),
		"spender": spender.Hex(),
		"amount":  amount.String(),
		"tx_hash": hash.Hex(),
	}).Info("Approval submitted")

	e.finish(func(s *State) {
		s.Status = StatusReady
		s.ApprovalHash = hash
		s.NeedsApproval = false
	})
	return hash, nil
}
