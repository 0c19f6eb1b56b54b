package risk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ClipFinance/approval-lib/dbconfig/models"
	"github.com/pkg/errors"
	"github.com/sebdah/goldie/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const permit2 = "0x000000000022d473030f116ddee9f6b43ac78ba3"

type fakeStore struct {
	rows    []models.RiskFactor
	err     error
	chainID uint64
	address string
}

func (f *fakeStore) GetSpenderRiskFactors(_ context.Context, chainID uint64, address string) ([]models.RiskFactor, error) {
	f.chainID, f.address = chainID, address
	return f.rows, f.err
}

type allow bool

func (a allow) Allow(*http.Request) bool { return bool(a) }

func newTestServer(store *fakeStore, sessions SessionChecker, limiter RateLimiter) *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewServer(NewDBSource(store), sessions, limiter, logger)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Message
}

func TestServer_SpenderRisk(t *testing.T) {
	store := &fakeStore{rows: []models.RiskFactor{
		{Type: "proxy", Source: "onchain"},
		{Type: "closed_source", Source: "whois", Data: "not json"},
		{Type: "mystery", Source: "x"},
	}}
	s := newTestServer(store, TokenSession(""), allow(true))

	rec := get(t, s, "/42161/spender/"+permit2)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "s-maxage=86400", rec.Header().Get("CDN-Cache-Control"))
	assert.Equal(t, uint64(42161), store.chainID)
	assert.Equal(t, permit2, store.address)

	g := goldie.New(t)
	g.Assert(t, "spender_response", rec.Body.Bytes())
}

func TestServer_RejectsInvalidAddress(t *testing.T) {
	s := newTestServer(&fakeStore{}, TokenSession(""), allow(true))

	for _, path := range []string{
		"/1/spender/0x1234",
		"/1/spender/000000000022d473030f116ddee9f6b43ac78ba3",
		"/abc/spender/" + permit2,
	} {
		rec := get(t, s, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "Invalid address", message(t, rec))
	}
}

func TestServer_RequiresSession(t *testing.T) {
	s := newTestServer(&fakeStore{}, TokenSession("secret"), allow(true))

	rec := get(t, s, "/1/spender/"+permit2)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "No API session is active", message(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/1/spender/"+permit2, nil)
	req.Header.Set("X-API-Session", "secret")
	rec = httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RateLimited(t *testing.T) {
	s := newTestServer(&fakeStore{}, TokenSession(""), allow(false))

	rec := get(t, s, "/1/spender/"+permit2)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded", message(t, rec))
}

func TestServer_SourceError(t *testing.T) {
	s := newTestServer(&fakeStore{err: errors.New("db down")}, TokenSession(""), allow(true))

	rec := get(t, s, "/1/spender/"+permit2)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, message(t, rec), "db down")
}

func TestServer_NoFactorsIsUnknown(t *testing.T) {
	s := newTestServer(&fakeStore{}, TokenSession(""), allow(true))

	rec := get(t, s, "/1/spender/"+permit2)
	require.Equal(t, http.StatusOK, rec.Code)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, LevelUnknown, body.RiskLevel)
	assert.Empty(t, body.RiskFactors)
	assert.NotNil(t, body.RiskFactors)
}

func TestClientRateLimiter(t *testing.T) {
	l := NewClientRateLimiter(1, 2, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	a := httptest.NewRequest(http.MethodGet, "/", nil)
	a.RemoteAddr = "10.0.0.1:1234"
	b := httptest.NewRequest(http.MethodGet, "/", nil)
	b.RemoteAddr = "10.0.0.2:1234"

	assert.True(t, l.Allow(a))
	assert.True(t, l.Allow(a))
	assert.False(t, l.Allow(a))
	assert.True(t, l.Allow(b))

	now = now.Add(time.Second)
	assert.True(t, l.Allow(a))

	now = now.Add(2 * time.Minute)
	assert.True(t, l.Allow(b))
	assert.Len(t, l.clients, 1)
}
