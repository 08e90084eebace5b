package transport

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// clientIdleTTL is how long an unseen client keeps its limiter.
	clientIdleTTL = 10 * time.Minute
	// sweepInterval bounds how often the stale-entry sweep may run.
	sweepInterval = time.Minute
)

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Throttle limits the request rate per client address. Every client gets its
// own token bucket with the configured rate and burst. Entries for clients
// idle longer than clientIdleTTL are swept out so the map stays bounded
// under address churn.
type Throttle struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	rps       rate.Limit
	burst     int
	nextSweep time.Time
}

// NewThrottle creates a throttle allowing rps requests per second with the
// given burst per client. Non-positive values disable throttling.
func NewThrottle(rps float64, burst int) *Throttle {
	return &Throttle{
		limiters:  make(map[string]*clientLimiter),
		rps:       rate.Limit(rps),
		burst:     burst,
		nextSweep: time.Now().Add(sweepInterval),
	}
}

func (t *Throttle) limiter(client string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if now.After(t.nextSweep) {
		for addr, entry := range t.limiters {
			if now.Sub(entry.lastSeen) > clientIdleTTL {
				delete(t.limiters, addr)
			}
		}
		t.nextSweep = now.Add(sweepInterval)
	}

	entry, ok := t.limiters[client]
	if !ok {
		entry = &clientLimiter{lim: rate.NewLimiter(t.rps, t.burst)}
		t.limiters[client] = entry
	}
	entry.lastSeen = now
	return entry.lim
}

// Middleware rejects requests exceeding the per-client rate with 429.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.rps <= 0 || t.burst <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !t.limiter(host).Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
