package spender

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestClient_FetchUserContract(t *testing.T) {
	var gotPath, gotWallet string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotWallet = r.URL.Query().Get("walletAddress")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"contractAddress":"0xC0","poolAddress":"0xP0","message":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", nil, quietLogger())
	assignment, err := client.FetchUserContract(context.Background(), "0xWallet")
	require.NoError(t, err)

	assert.Equal(t, "/api/contracts/user-assignment", gotPath)
	assert.Equal(t, "0xWallet", gotWallet)
	assert.Equal(t, &types.SpenderAssignment{ContractAddress: "0xC0", PoolAddress: "0xP0", Message: "ok"}, assignment)
}

func TestClient_NullContractIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"contractAddress":null,"poolAddress":null,"message":"User created, but no contract available"}`))
	}))
	defer server.Close()

	assignment, err := NewClient(server.URL, nil, quietLogger()).FetchUserContract(context.Background(), "0xWallet")
	require.NoError(t, err)
	assert.Empty(t, assignment.ContractAddress)
	assert.Empty(t, assignment.PoolAddress)
	assert.Equal(t, "User created, but no contract available", assignment.Message)
}

func TestClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"backend message", http.StatusBadRequest, `{"message":"Invalid wallet"}`, "Invalid wallet"},
		{"no message", http.StatusInternalServerError, `{}`, "Error fetching contract details: 500 Internal Server Error"},
		{"not json", http.StatusBadGateway, `<html>`, "Error fetching contract details: 502 Bad Gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, nil, quietLogger()).FetchUserContract(context.Background(), "0xWallet")
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestClient_EmptyWalletMakesNoRequest(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, quietLogger()).FetchUserContract(context.Background(), "")
	assert.True(t, errors.Is(err, ErrWalletAddressRequired))
	assert.Zero(t, atomic.LoadInt32(&hits))
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	err     error
}

func (f *fakeFetcher) FetchUserContract(_ context.Context, wallet string) (*types.SpenderAssignment, error) {
	f.mu.Lock()
	f.calls++
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &types.SpenderAssignment{ContractAddress: "spender-for-" + wallet}, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestResolver_EmptyWalletIsNotLoading(t *testing.T) {
	fetcher := &fakeFetcher{}
	r := NewResolver(fetcher, time.Minute, quietLogger())

	assignment, loading, err := r.Lookup(context.Background(), "")
	assert.NoError(t, err)
	assert.False(t, loading)
	assert.Nil(t, assignment)
	assert.Zero(t, fetcher.count())
}

func TestResolver_CachesByAddress(t *testing.T) {
	fetcher := &fakeFetcher{}
	r := NewResolver(fetcher, time.Minute, quietLogger())
	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	first, loading, err := r.Lookup(context.Background(), "0xAbC")
	require.NoError(t, err)
	assert.False(t, loading)
	assert.Equal(t, "spender-for-0xAbC", first.ContractAddress)

	_, _, err = r.Lookup(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.count())

	now = now.Add(2 * time.Minute)
	_, _, err = r.Lookup(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.count())

	r.Invalidate("0xABC")
	_, _, err = r.Lookup(context.Background(), "0xAbC")
	require.NoError(t, err)
	assert.Equal(t, 3, fetcher.count())
}

func TestResolver_PrefetchReportsLoading(t *testing.T) {
	fetcher := &fakeFetcher{release: make(chan struct{})}
	r := NewResolver(fetcher, time.Minute, quietLogger())

	r.Prefetch("0xWallet")

	assignment, loading, err := r.Lookup(context.Background(), "0xWallet")
	assert.NoError(t, err)
	assert.True(t, loading)
	assert.Nil(t, assignment)

	close(fetcher.release)

	require.Eventually(t, func() bool {
		a, loading, err := r.Lookup(context.Background(), "0xWallet")
		return err == nil && !loading && a != nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, fetcher.count())
}

func TestResolver_ErrorsAreNotCached(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("boom")}
	r := NewResolver(fetcher, time.Minute, quietLogger())

	_, loading, err := r.Lookup(context.Background(), "0xWallet")
	require.Error(t, err)
	assert.False(t, loading)
	assert.Contains(t, err.Error(), "boom")

	fetcher.err = nil
	assignment, _, err := r.Lookup(context.Background(), "0xWallet")
	require.NoError(t, err)
	assert.NotNil(t, assignment)
	assert.Equal(t, 2, fetcher.count())
}

func TestResolver_ResolveHonoursContext(t *testing.T) {
	fetcher := &fakeFetcher{release: make(chan struct{})}
	defer close(fetcher.release)
	r := NewResolver(fetcher, time.Minute, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, "0xWallet")
	assert.True(t, errors.Is(err, context.Canceled))
}
