package http

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkrupp/tokenauth/internal/domain"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
)

// ErrInvalidTrustedProxy is returned for a trusted proxy entry that is neither an IP nor a CIDR.
var ErrInvalidTrustedProxy = errors.New("invalid trusted proxy")

const forwardedForHeader = "X-Forwarded-For"

// RateLimiter hands out one token bucket per client key.
// Buckets idle for longer than ttl are evicted by a sweep that runs at most once per ttl.
type RateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing limit events per second with the given burst.
func NewRateLimiter(limit float64, burst int, ttl time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:     rate.Limit(limit),
		burst:     burst,
		ttl:       ttl,
		entries:   make(map[string]*limiterEntry),
		lastSweep: time.Now(),
	}
}

// Allow reports whether key may perform one more event now.
func (l *RateLimiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.ttl {
		l.sweep(now)
	}

	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}

	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

func (l *RateLimiter) sweep(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > l.ttl {
			delete(l.entries, k)
		}
	}

	l.lastSweep = now
}

// ClientIPResolver derives the client address of a request.
// X-Forwarded-For is only honoured when the peer is a trusted proxy.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver creates a resolver trusting the given proxy IPs or CIDRs.
// Without trusted proxies the peer address is always used.
func NewClientIPResolver(trustedProxies []string) (*ClientIPResolver, error) {
	resolver := &ClientIPResolver{}

	for _, entry := range trustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTrustedProxy, entry, err) //nolint:errorlint
			}

			resolver.trusted = append(resolver.trusted, prefix.Masked())

			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTrustedProxy, entry, err) //nolint:errorlint
		}

		addr = addr.Unmap()
		resolver.trusted = append(resolver.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return resolver, nil
}

// ClientIP returns the address identifying the client of r.
// Behind trusted proxies the X-Forwarded-For chain is walked from the right and
// the first untrusted hop wins.
func (c *ClientIPResolver) ClientIP(r *http.Request) string {
	peer := remoteHost(r)

	if c == nil || !c.isTrusted(peer) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values(forwardedForHeader), ","), ",")
	client := peer

	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}

		if _, err := netip.ParseAddr(hop); err != nil {
			break
		}

		client = hop
		if !c.isTrusted(hop) {
			break
		}
	}

	return client
}

func (c *ClientIPResolver) isTrusted(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}

	addr = addr.Unmap()

	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}

	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}

	return r.RemoteAddr
}

// RateLimitingMiddleware creates middleware that rejects requests beyond the client's rate with 429.
// Clients are keyed by resolver; a nil resolver keys on the peer address.
func RateLimitingMiddleware(
	next http.Handler,
	limiter *RateLimiter,
	resolver *ClientIPResolver,
	log logging.Logger,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := resolver.ClientIP(r)
		if !limiter.Allow(client) {
			log.WarnContext(r.Context(), "rate limited", "client", client)
			WriteError(r.Context(), w, domain.ErrRateLimited, log)

			return
		}

		next.ServeHTTP(w, r)
	})
}
