package allowance

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultStaleTime is how long a cached allowance is served by Read.
const DefaultStaleTime = 5 * time.Second

// ChainSource resolves chains by id. types.ChainRegistry satisfies it.
type ChainSource interface {
	Get(chainID uint64) types.Chain
}

// Key identifies one allowance.
type Key struct {
	ChainID uint64
	Owner   string
	Token   string
	Spender string
}

// NewKey builds a key. Hex addresses are compared case-insensitively,
// other encodings (base58) verbatim.
func NewKey(chainID uint64, owner, token, spender string) Key {
	return Key{
		ChainID: chainID,
		Owner:   normalize(owner),
		Token:   normalize(token),
		Spender: normalize(spender),
	}
}

func normalize(address string) string {
	address = strings.TrimSpace(address)
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		return strings.ToLower(address)
	}
	return address
}

// Option customizes an Oracle.
type Option func(*Oracle)

// WithStaleTime sets how long Read serves a cached value. Zero disables the cache for Read.
func WithStaleTime(d time.Duration) Option {
	return func(o *Oracle) {
		if d >= 0 {
			o.staleTime = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) {
		o.now = now
	}
}

// Oracle reads token allowances from the chains and keeps the last value of
// each key. Cached values are advisory; approval decisions use Refetch.
type Oracle struct {
	chains    ChainSource
	logger    *logrus.Logger
	staleTime time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	entries map[Key]types.AllowanceSnapshot
}

// NewOracle creates an allowance oracle.
//
// Parameters:
// - chains: the source of configured chains.
// - logger: the logger for logging purposes.
// - opts: optional stale time and clock overrides.
//
// Returns:
// - *Oracle: the new oracle.
func NewOracle(chains ChainSource, logger *logrus.Logger, opts ...Option) *Oracle {
	o := &Oracle{
		chains:    chains,
		logger:    logger,
		staleTime: DefaultStaleTime,
		now:       time.Now,
		entries:   make(map[Key]types.AllowanceSnapshot),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Read returns the cached allowance when it is younger than the stale time,
// otherwise it reads the chain.
//
// Parameters:
// - ctx: the context for managing the request.
// - chainID: the chain holding the token.
// - owner: the token holder.
// - token: the token address.
// - spender: the spender address.
//
// Returns:
// - *types.AllowanceSnapshot: the allowance and when it was fetched.
// - error: an error if the chain is unknown or the read fails.
func (o *Oracle) Read(ctx context.Context, chainID uint64, owner, token, spender string) (*types.AllowanceSnapshot, error) {
	key := NewKey(chainID, owner, token, spender)

	o.mu.RLock()
	entry, ok := o.entries[key]
	o.mu.RUnlock()

	if ok && o.now().Sub(entry.FetchedAt) < o.staleTime {
		return copySnapshot(entry), nil
	}

	return o.fetch(ctx, key, owner, token, spender)
}

// Refetch always reads the chain and replaces the cached value.
//
// Parameters:
// - ctx: the context for managing the request.
// - chainID: the chain holding the token.
// - owner: the token holder.
// - token: the token address.
// - spender: the spender address.
//
// Returns:
// - *types.AllowanceSnapshot: the fresh allowance.
// - error: an error if the chain is unknown or the read fails.
func (o *Oracle) Refetch(ctx context.Context, chainID uint64, owner, token, spender string) (*types.AllowanceSnapshot, error) {
	return o.fetch(ctx, NewKey(chainID, owner, token, spender), owner, token, spender)
}

func (o *Oracle) fetch(ctx context.Context, key Key, owner, token, spender string) (*types.AllowanceSnapshot, error) {
	chain := o.chains.Get(key.ChainID)
	if chain == nil {
		return nil, errors.Wrapf(commonerrors.ErrChainNotFound, "chain %d", key.ChainID)
	}

	value, err := chain.GetAllowance(ctx, owner, token, spender)
	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"chainId": key.ChainID,
			"token":   token,
			"spender": spender,
		}).WithError(err).Warn("Failed to read allowance")
		return nil, errors.Wrap(err, "failed to read allowance")
	}
	if value == nil {
		return nil, errors.New("allowance read returned no value")
	}

	snapshot := types.AllowanceSnapshot{Value: value, FetchedAt: o.now()}

	o.mu.Lock()
	o.entries[key] = snapshot
	o.mu.Unlock()

	return copySnapshot(snapshot), nil
}

// Invalidate drops the cached value for one key.
func (o *Oracle) Invalidate(chainID uint64, owner, token, spender string) {
	key := NewKey(chainID, owner, token, spender)

	o.mu.Lock()
	delete(o.entries, key)
	o.mu.Unlock()
}

// InvalidateToken drops every cached value of owner for token, whatever the spender.
func (o *Oracle) InvalidateToken(chainID uint64, owner, token string) int {
	owner, token = normalize(owner), normalize(token)

	o.mu.Lock()
	defer o.mu.Unlock()

	dropped := 0
	for key := range o.entries {
		if key.ChainID == chainID && key.Owner == owner && key.Token == token {
			delete(o.entries, key)
			dropped++
		}
	}
	return dropped
}

// Watch invalidates cached values as approval events arrive. It returns when
// ctx is done or events is closed.
//
// Parameters:
// - ctx: the context bounding the watch.
// - events: the approval event stream.
func (o *Oracle) Watch(ctx context.Context, events <-chan types.ApprovalEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			dropped := o.InvalidateToken(event.ChainID, event.Owner, event.Token)
			o.logger.WithFields(logrus.Fields{
				"chainId": event.ChainID,
				"token":   event.Token,
				"spender": event.Spender,
				"dropped": dropped,
			}).Debug("Allowance cache invalidated by approval event")
		}
	}
}

func copySnapshot(s types.AllowanceSnapshot) *types.AllowanceSnapshot {
	out := s
	if s.Value != nil {
		out.Value = new(big.Int).Set(s.Value)
	}
	return &out
}
