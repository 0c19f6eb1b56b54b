package spender

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a fetched assignment is reused.
const DefaultTTL = 5 * time.Minute

type entry struct {
	assignment types.SpenderAssignment
	fetchedAt  time.Time
}

// Resolver caches spender assignments by wallet address and reports whether
// a fetch for an address is still running.
type Resolver struct {
	fetcher Fetcher
	logger  *logrus.Logger
	ttl     time.Duration
	now     func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	entries  map[string]entry
	inflight map[string]int
}

// NewResolver creates a resolver. A non-positive ttl means DefaultTTL.
func NewResolver(fetcher Fetcher, ttl time.Duration, logger *logrus.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Resolver{
		fetcher:  fetcher,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]entry),
		inflight: make(map[string]int),
	}
}

func cacheKey(wallet string) string {
	wallet = strings.TrimSpace(wallet)
	if strings.HasPrefix(wallet, "0x") || strings.HasPrefix(wallet, "0X") {
		return strings.ToLower(wallet)
	}
	return wallet
}

// Lookup returns the assignment for wallet without waiting on a fetch that
// another caller already started.
//
// Parameters:
// - ctx: the context for managing the request.
// - wallet: the wallet address; empty means nothing to resolve.
//
// Returns:
// - *types.SpenderAssignment: the assignment, nil while loading or for an empty wallet.
// - bool: true when a fetch for wallet is in flight.
// - error: the fetch error.
func (r *Resolver) Lookup(ctx context.Context, wallet string) (*types.SpenderAssignment, bool, error) {
	key := cacheKey(wallet)
	if key == "" {
		return nil, false, nil
	}

	r.mu.Lock()
	if cached, ok := r.fresh(key); ok {
		r.mu.Unlock()
		return cached, false, nil
	}
	if r.inflight[key] > 0 {
		r.mu.Unlock()
		return nil, true, nil
	}
	r.mu.Unlock()

	assignment, err := r.Resolve(ctx, wallet)
	return assignment, false, err
}

// Resolve returns the assignment for wallet, joining a running fetch if there is one.
//
// Parameters:
// - ctx: the context for managing the request.
// - wallet: the wallet address.
//
// Returns:
// - *types.SpenderAssignment: the assignment.
// - error: an error if wallet is empty, the fetch fails or ctx is done first.
func (r *Resolver) Resolve(ctx context.Context, wallet string) (*types.SpenderAssignment, error) {
	key := cacheKey(wallet)
	if key == "" {
		return nil, ErrWalletAddressRequired
	}

	r.mu.Lock()
	if cached, ok := r.fresh(key); ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	results := r.begin(key, wallet)
	defer r.end(key)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		assignment := res.Val.(types.SpenderAssignment)
		return &assignment, nil
	}
}

// Prefetch starts a background fetch for wallet unless a fresh entry exists.
func (r *Resolver) Prefetch(wallet string) {
	key := cacheKey(wallet)
	if key == "" {
		return
	}

	r.mu.Lock()
	if _, ok := r.fresh(key); ok {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	results := r.begin(key, wallet)
	go func() {
		defer r.end(key)
		if res := <-results; res.Err != nil {
			r.logger.WithField("wallet", wallet).WithError(res.Err).Warn("Spender assignment prefetch failed")
		}
	}()
}

// Invalidate drops the cached assignment for wallet.
func (r *Resolver) Invalidate(wallet string) {
	r.mu.Lock()
	delete(r.entries, cacheKey(wallet))
	r.mu.Unlock()
}

func (r *Resolver) begin(key, wallet string) <-chan singleflight.Result {
	r.mu.Lock()
	r.inflight[key]++
	r.mu.Unlock()

	return r.group.DoChan(key, func() (interface{}, error) {
		// The fetch outlives any single caller; each waiter applies its own ctx.
		assignment, err := r.fetcher.FetchUserContract(context.Background(), wallet)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve spender for %s", wallet)
		}

		r.mu.Lock()
		r.entries[key] = entry{assignment: *assignment, fetchedAt: r.now()}
		r.mu.Unlock()

		r.logger.WithFields(logrus.Fields{
			"wallet":   wallet,
			"contract": assignment.ContractAddress,
			"pool":     assignment.PoolAddress,
		}).Debug("Spender assignment resolved")

		return *assignment, nil
	})
}

func (r *Resolver) end(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inflight[key]--
	if r.inflight[key] <= 0 {
		delete(r.inflight, key)
	}
}

// fresh must be called with r.mu held.
func (r *Resolver) fresh(key string) (*types.SpenderAssignment, bool) {
	cached, ok := r.entries[key]
	if !ok || r.now().Sub(cached.fetchedAt) >= r.ttl {
		return nil, false
	}
	assignment := cached.assignment
	return &assignment, true
}
