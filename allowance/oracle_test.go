package allowance

import (
	"context"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ClipFinance/approval-lib/chainmanager"
	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReader struct {
	mu    sync.Mutex
	value *big.Int
	err   error
	calls int
}

func (r *countingReader) GetAllowance(context.Context, string, string, string) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return new(big.Int).Set(r.value), nil
}

func (r *countingReader) set(v int64) {
	r.mu.Lock()
	r.value = big.NewInt(v)
	r.mu.Unlock()
}

func (r *countingReader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type chains map[uint64]types.Chain

func (c chains) Get(chainID uint64) types.Chain {
	chain, ok := c[chainID]
	if !ok {
		return nil
	}
	return chain
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestOracle(reader *countingReader, c *clock) *Oracle {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	chain := chainmanager.NewChainBuilder(&types.ChainConfig{ChainID: 1}).
		WithAllowanceReader(reader).
		Build()
	return NewOracle(chains{1: chain}, logger, WithClock(c.now))
}

func TestOracle_ReadServesCacheUntilStale(t *testing.T) {
	reader := &countingReader{value: big.NewInt(100)}
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	o := newTestOracle(reader, c)
	ctx := context.Background()

	snap, err := o.Read(ctx, 1, "0xOwner", "0xToken", "0xSpender")
	require.NoError(t, err)
	assert.Equal(t, int64(100), snap.Value.Int64())

	reader.set(200)
	c.t = c.t.Add(2 * time.Second)
	snap, err = o.Read(ctx, 1, "0xowner", "0xTOKEN", "0xspender")
	require.NoError(t, err)
	assert.Equal(t, int64(100), snap.Value.Int64(), "hex keys are case-insensitive")
	assert.Equal(t, 1, reader.count())

	c.t = c.t.Add(DefaultStaleTime)
	snap, err = o.Read(ctx, 1, "0xOwner", "0xToken", "0xSpender")
	require.NoError(t, err)
	assert.Equal(t, int64(200), snap.Value.Int64())
	assert.Equal(t, 2, reader.count())
}

func TestOracle_RefetchIgnoresCache(t *testing.T) {
	reader := &countingReader{value: big.NewInt(1)}
	o := newTestOracle(reader, &clock{t: time.Unix(0, 0)})
	ctx := context.Background()

	_, err := o.Read(ctx, 1, "0xOwner", "0xToken", "0xSpender")
	require.NoError(t, err)

	reader.set(7)
	snap, err := o.Refetch(ctx, 1, "0xOwner", "0xToken", "0xSpender")
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.Value.Int64())
	assert.Equal(t, 2, reader.count())

	snap, err = o.Read(ctx, 1, "0xOwner", "0xToken", "0xSpender")
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.Value.Int64())
	assert.Equal(t, 2, reader.count())
}

func TestOracle_SnapshotsAreCopies(t *testing.T) {
	reader := &countingReader{value: big.NewInt(5)}
	o := newTestOracle(reader, &clock{t: time.Unix(0, 0)})

	snap, err := o.Read(context.Background(), 1, "a", "b", "c")
	require.NoError(t, err)
	snap.Value.SetInt64(999)

	again, err := o.Read(context.Background(), 1, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(5), again.Value.Int64())
}

func TestOracle_Errors(t *testing.T) {
	reader := &countingReader{err: errors.New("rpc down")}
	o := newTestOracle(reader, &clock{t: time.Unix(0, 0)})

	_, err := o.Refetch(context.Background(), 1, "a", "b", "c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc down")

	_, err = o.Refetch(context.Background(), 42, "a", "b", "c")
	assert.True(t, errors.Is(err, commonerrors.ErrChainNotFound))
}

func TestOracle_NonHexKeysAreCaseSensitive(t *testing.T) {
	a := NewKey(1, "Owner1111", "Mint", "Delegate")
	b := NewKey(1, "owner1111", "mint", "delegate")
	assert.NotEqual(t, a, b)
	assert.Equal(t, NewKey(1, "0xAB", "0xCD", "0xEF"), NewKey(1, "0xab", "0xcd", "0xef"))
}

func TestOracle_WatchInvalidatesEveryOwnerTokenEntry(t *testing.T) {
	reader := &countingReader{value: big.NewInt(1)}
	o := newTestOracle(reader, &clock{t: time.Unix(0, 0)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := o.Read(ctx, 1, "0xOwner", "0xToken", "0xSpenderA")
	require.NoError(t, err)
	_, err = o.Read(ctx, 1, "0xOwner", "0xToken", "0xSpenderB")
	require.NoError(t, err)
	_, err = o.Read(ctx, 1, "0xOwner", "0xOther", "0xSpenderA")
	require.NoError(t, err)

	events := make(chan types.ApprovalEvent)
	done := make(chan struct{})
	go func() {
		o.Watch(ctx, events)
		close(done)
	}()

	events <- types.ApprovalEvent{ChainID: 1, Owner: "0xowner", Token: "0xtoken", Spender: "", Value: big.NewInt(0)}
	close(events)
	<-done

	o.mu.RLock()
	defer o.mu.RUnlock()
	assert.Len(t, o.entries, 1)
	_, ok := o.entries[NewKey(1, "0xOwner", "0xOther", "0xSpenderA")]
	assert.True(t, ok)
}

func TestOracle_InvalidateSingleKey(t *testing.T) {
	reader := &countingReader{value: big.NewInt(1)}
	o := newTestOracle(reader, &clock{t: time.Unix(0, 0)})

	_, err := o.Read(context.Background(), 1, "a", "b", "c")
	require.NoError(t, err)
	o.Invalidate(1, "a", "b", "c")
	_, err = o.Read(context.Background(), 1, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, 2, reader.count())
}
