package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterMaxClients = 1000
	limiterIdle       = 10 * time.Minute
)

// clientLimiter rate-limits one endpoint per client IP. Keying by IP
// assumes one human per address; clients behind shared NAT or a proxy share
// a bucket. That is a documented limitation, not a bug.
type clientLimiter struct {
	every time.Duration

	mu      sync.Mutex
	clients map[string]*limiterEntry
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(every time.Duration) *clientLimiter {
	return &clientLimiter{
		every:   every,
		clients: make(map[string]*limiterEntry),
	}
}

func (l *clientLimiter) allow(remoteAddr string) bool {
	ip := clientIP(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= limiterMaxClients {
			l.prune()
		}
		entry = &limiterEntry{lim: rate.NewLimiter(rate.Every(l.every), 1)}
		l.clients[ip] = entry
	}
	entry.lastSeen = time.Now()

	return entry.lim.Allow()
}

// prune drops entries idle long enough that their bucket is full again.
// Callers must hold mu.
func (l *clientLimiter) prune() {
	cutoff := time.Now().Add(-limiterIdle)
	for ip, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// limited wraps a handler with a per-client rate limit of one request per
// the given interval.
func (s *Server) limited(every time.Duration, next http.HandlerFunc) http.HandlerFunc {
	limiter := newClientLimiter(every)
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.allow(r.RemoteAddr) {
			s.writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
			return
		}
		next(w, r)
	}
}
