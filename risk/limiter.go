package risk

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether a request may proceed.
type RateLimiter interface {
	Allow(r *http.Request) bool
}

// SessionChecker reports whether a request carries an active API session.
type SessionChecker interface {
	HasActiveSession(r *http.Request) bool
}

// SessionCheckerFunc adapts a function to SessionChecker.
type SessionCheckerFunc func(r *http.Request) bool

func (f SessionCheckerFunc) HasActiveSession(r *http.Request) bool {
	return f(r)
}

// TokenSession accepts requests whose X-API-Session header equals the token.
// An empty token accepts every request.
func TokenSession(token string) SessionChecker {
	return SessionCheckerFunc(func(r *http.Request) bool {
		return token == "" || r.Header.Get("X-API-Session") == token
	})
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter applies a token bucket per client IP.
type ClientRateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewClientRateLimiter allows perSecond requests per client with the given burst.
// Clients idle for longer than idle are forgotten.
func NewClientRateLimiter(perSecond float64, burst int, idle time.Duration) *ClientRateLimiter {
	return &ClientRateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow implements RateLimiter.
func (l *ClientRateLimiter) Allow(r *http.Request) bool {
	key := clientIP(r)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictIdle(now)

	client, ok := l.clients[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = client
	}
	client.lastSeen = now

	return client.limiter.AllowN(now, 1)
}

func (l *ClientRateLimiter) evictIdle(now time.Time) {
	if l.idle <= 0 {
		return
	}
	for key, client := range l.clients {
		if now.Sub(client.lastSeen) > l.idle {
			delete(l.clients, key)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
