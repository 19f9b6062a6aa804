package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/httpmw"
)

// visitor is one client's bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// logged is reset when the visitor is evicted
	logged bool
}

// IPLimiter holds per-client limiters and evicts idle ones in the background.
type IPLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	perSecond rate.Limit
	burst     int
	ttl       time.Duration

	// maxVisitors caps tracked clients; new clients past it are refused
	maxVisitors int
	atCapacity  bool

	cost func(*http.Request) int

	OnFirstDenied func(ip string)
	OnDenied      func(ip string)
	OnCapacity    func(tracked int)
}

type Option func(*IPLimiter)

// WithRate sets the refill rate and bucket size.
func WithRate(perSecond float64, burst int) Option {
	return func(l *IPLimiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

// WithTTL controls how long an idle client stays tracked.
func WithTTL(d time.Duration) Option {
	return func(l *IPLimiter) { l.ttl = d }
}

// WithMaxVisitors caps the number of tracked clients. Zero disables the cap.
func WithMaxVisitors(n int) Option {
	return func(l *IPLimiter) { l.maxVisitors = n }
}

// WithCost sets how many tokens a request draws. Results below 1 count as 1.
func WithCost(fn func(*http.Request) int) Option {
	return func(l *IPLimiter) { l.cost = fn }
}

// WithOnFirstDenied is called once per tracked client on its first denial.
func WithOnFirstDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.OnFirstDenied = fn }
}

// WithOnDenied is called on every denial.
func WithOnDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.OnDenied = fn }
}

// WithOnCapacity is called once each time the visitor cap is reached.
func WithOnCapacity(fn func(tracked int)) Option {
	return func(l *IPLimiter) { l.OnCapacity = fn }
}

// MutationCost charges PUT and DELETE n tokens and everything else one.
func MutationCost(n int) func(*http.Request) int {
	return func(r *http.Request) int {
		switch r.Method {
		case http.MethodPut, http.MethodDelete:
			return n
		default:
			return 1
		}
	}
}

// New creates an IPLimiter. Eviction runs until ctx is done.
func New(ctx context.Context, opts ...Option) *IPLimiter {
	l := &IPLimiter{
		visitors:    make(map[string]*visitor),
		perSecond:   20,
		burst:       60,
		ttl:         5 * time.Minute,
		maxVisitors: 50_000,
	}
	for _, o := range opts {
		o(l)
	}
	go l.cleanup(ctx)
	return l
}

// allow draws n tokens from ip's bucket. n is clamped to the burst since
// AllowN can never grant more than the bucket holds.
func (l *IPLimiter) allow(ip string, n int) bool {
	if n < 1 {
		n = 1
	}
	if l.burst > 0 && n > l.burst {
		n = l.burst
	}

	l.mu.Lock()
	v, exists := l.visitors[ip]
	if !exists {
		if l.maxVisitors > 0 && len(l.visitors) >= l.maxVisitors {
			fire := !l.atCapacity
			l.atCapacity = true
			tracked := len(l.visitors)
			l.mu.Unlock()
			if fire && l.OnCapacity != nil {
				l.OnCapacity(tracked)
			}
			if l.OnDenied != nil {
				l.OnDenied(ip)
			}
			return false
		}
		v = &visitor{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	allowed := v.limiter.AllowN(v.lastSeen, n)
	first := !allowed && !v.logged
	if first {
		v.logged = true
	}
	// hooks may be slow; never run them under the lock
	l.mu.Unlock()

	if allowed {
		return true
	}
	if first && l.OnFirstDenied != nil {
		l.OnFirstDenied(ip)
	}
	if l.OnDenied != nil {
		l.OnDenied(ip)
	}
	return false
}

func (l *IPLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// cleanup evicts idle visitors every ttl/2.
func (l *IPLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for ip, v := range l.visitors {
				if now.Sub(v.lastSeen) > l.ttl {
					delete(l.visitors, ip)
				}
			}
			if l.maxVisitors == 0 || len(l.visitors) < l.maxVisitors {
				l.atCapacity = false
			}
			l.mu.Unlock()
		}
	}
}

// Middleware answers 429 with the file API's error shape when the client is
// over its budget.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpmw.ClientIPFromContext(r.Context())
		n := 1
		if l.cost != nil {
			n = l.cost(r)
		}
		if !l.allow(ip, n) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message":"too many requests"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
