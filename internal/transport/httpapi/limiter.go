package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type ipLimiter struct {
	mu      sync.Mutex
	byIP    map[string]*ipEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	lastSweep time.Time
	now       func() time.Time
}

type ipEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(rps float64, burst int, idleTTL time.Duration) *ipLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ipLimiter{
		byIP:    map[string]*ipEntry{},
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.idleTTL {
		for k, e := range l.byIP {
			if now.Sub(e.lastSeen) > l.idleTTL {
				delete(l.byIP, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.byIP[ip]
	if !ok {
		e = &ipEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.byIP[ip] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byIP)
}
