package balances

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/tokens"
	"bridge-aggregator/pkg/types"
)

const (
	DefaultTTL       = 10 * time.Second
	DefaultCacheSize = 256

	// concurrent RPC reads per refresh
	fetchConcurrency = 4
)

// PinnedSymbols are listed first, in this order
var PinnedSymbols = []string{"ETH", "USDT", "DAI", "USDC", "USDC.e"}

// Reader reads on-chain balances. *wallet.Wallet implements it.
type Reader interface {
	NativeBalance(ctx context.Context, chainID uint64, owner common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, chainID uint64, token, owner common.Address) (*big.Int, error)
}

type Balance struct {
	Token  types.Token `json:"token"`
	Amount *big.Int    `json:"amount"`
}

// Formatted renders the amount in whole token units
func (b Balance) Formatted() string {
	return types.FormatAmount(b.Amount, b.Token.Decimals)
}

type entry struct {
	balances []Balance
	fetched  time.Time
}

// Service fetches balances for the catalog's tokens and caches them per owner
// and chain for a fixed time-to-live. The cache belongs to the service; two
// services never share entries.
type Service struct {
	reader   Reader
	registry *chains.Registry
	catalog  *tokens.Catalog
	ttl      time.Duration
	size     int
	now      func() time.Time
	logger   logrus.FieldLogger

	mu    sync.Mutex
	cache *lru.Cache
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithCacheSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.size = size
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(reader Reader, registry *chains.Registry, catalog *tokens.Catalog, opts ...Option) (*Service, error) {
	s := &Service{
		reader:   reader,
		registry: registry,
		catalog:  catalog,
		ttl:      DefaultTTL,
		size:     DefaultCacheSize,
		now:      time.Now,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	cache, err := lru.New(s.size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create balance cache")
	}
	s.cache = cache
	return s, nil
}

func cacheKey(owner common.Address, chain string) string {
	return strings.ToLower(owner.Hex() + "|" + chain)
}

// Balances returns owner's non-zero balances on chain, or on every registry
// chain when chain is empty. Results younger than the TTL come from the cache.
func (s *Service) Balances(ctx context.Context, owner common.Address, chain string) ([]Balance, error) {
	key := cacheKey(owner, chain)

	s.mu.Lock()
	if v, ok := s.cache.Get(key); ok {
		e := v.(entry)
		if s.now().Sub(e.fetched) < s.ttl {
			s.mu.Unlock()
			return append([]Balance(nil), e.balances...), nil
		}
		s.cache.Remove(key)
	}
	s.mu.Unlock()

	balances, err := s.fetch(ctx, owner, chain)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache.Add(key, entry{balances: balances, fetched: s.now()})
	s.mu.Unlock()

	return append([]Balance(nil), balances...), nil
}

func (s *Service) fetch(ctx context.Context, owner common.Address, chain string) ([]Balance, error) {
	var list []types.Token
	if chain == "" {
		for _, c := range s.registry.All() {
			list = append(list, s.catalog.OnChain(c.Name)...)
		}
	} else {
		c, ok := s.registry.ByName(chain)
		if !ok {
			return nil, types.UnsupportedChain(chain)
		}
		list = s.catalog.OnChain(c.Name)
	}

	amounts := make([]*big.Int, len(list))
	var failed int
	var failMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, token := range list {
		g.Go(func() error {
			amount, err := s.read(gctx, owner, token)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.WithError(err).WithField("token", token.String()).Warn("Failed to read balance")
				failMu.Lock()
				failed++
				failMu.Unlock()
				return nil
			}
			amounts[i] = amount
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(list) > 0 && failed == len(list) {
		return nil, errors.New("failed to read any balance")
	}

	var out []Balance
	for i, token := range list {
		if amounts[i] != nil && amounts[i].Sign() > 0 {
			out = append(out, Balance{Token: token, Amount: amounts[i]})
		}
	}
	Sort(out)
	return out, nil
}

func (s *Service) read(ctx context.Context, owner common.Address, token types.Token) (*big.Int, error) {
	chainID, ok := s.registry.ChainNameToID(token.Chain)
	if !ok {
		return nil, types.UnsupportedChain(token.Chain)
	}
	if token.IsNative() {
		return s.reader.NativeBalance(ctx, chainID, owner)
	}
	return s.reader.TokenBalance(ctx, chainID, token.ContractAddress(), owner)
}

// Invalidate drops every cached entry for owner
func (s *Service) Invalidate(owner common.Address) {
	prefix := strings.ToLower(owner.Hex()) + "|"

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.cache.Keys() {
		if key, ok := k.(string); ok && strings.HasPrefix(key, prefix) {
			s.cache.Remove(k)
		}
	}
}

// Poll refreshes owner's balances every interval until ctx is done, calling
// fn with each result
func (s *Service) Poll(ctx context.Context, owner common.Address, chain string, interval time.Duration, fn func([]Balance, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.Invalidate(owner)
		balances, err := s.Balances(ctx, owner, chain)
		if ctx.Err() != nil {
			return
		}
		fn(balances, err)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sort orders pinned symbols first, then the rest by symbol and chain
func Sort(list []Balance) {
	rank := func(symbol string) int {
		for i, p := range PinnedSymbols {
			if p == symbol {
				return i
			}
		}
		return len(PinnedSymbols)
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].Token, list[j].Token
		ra, rb := rank(a.Symbol), rank(b.Symbol)
		if ra != rb {
			return ra < rb
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Chain < b.Chain
	})
}
