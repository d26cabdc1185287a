//Package ratelimit throttles login and registration attempts per client address.
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const tooManyRequestsMsg = "{\"message\": \"too many requests, try again later\"}"

//Config of a Limiter
type Config struct {
	//Attempts allowed per Window for one client
	Attempts int
	Window   time.Duration
	//IdleTTL is how long a client may stay quiet before its bucket is forgotten
	IdleTTL time.Duration
	//SweepInterval of the forget loop, zero disables it
	SweepInterval time.Duration
	//TrustedProxies are addresses or CIDR ranges whose X-Forwarded-For header is believed
	TrustedProxies []string
}

type client struct {
	bucket *rate.Limiter
	seen   time.Time
}

//Limiter keeps one token bucket per client address
type Limiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	proxies []netip.Prefix
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*client

	stop     chan struct{}
	stopOnce sync.Once
}

//NewLimiter fails when a trusted proxy entry is neither an address nor a CIDR range
func NewLimiter(cfg Config) (*Limiter, error) {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	proxies, err := parseProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	l := &Limiter{
		limit:   rate.Every(cfg.Window / time.Duration(cfg.Attempts)),
		burst:   cfg.Attempts,
		idleTTL: cfg.IdleTTL,
		proxies: proxies,
		now:     time.Now,
		clients: make(map[string]*client),
		stop:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 && cfg.IdleTTL > 0 {
		go l.sweepEvery(cfg.SweepInterval)
	}
	return l, nil
}

func parseProxies(entries []string) ([]netip.Prefix, error) {
	var proxies []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy range %q: %w", e, err)
			}
			proxies = append(proxies, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy address %q: %w", e, err)
		}
		addr = addr.Unmap()
		proxies = append(proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return proxies, nil
}

//Stop ends the sweep loop. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if now.Sub(c.seen) > l.idleTTL {
			delete(l.clients, key)
		}
	}
}

//Allow spends one token of key's bucket
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		c = &client{bucket: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.seen = now
	return c.bucket.AllowN(now, 1)
}

func (l *Limiter) trusted(addr netip.Addr) bool {
	for _, p := range l.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

//ClientIP is the peer address, unless the peer is a trusted proxy. Then the
//X-Forwarded-For chain is walked from the right and the first hop that is not
//itself a trusted proxy wins.
func (l *Limiter) ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil {
		log.WithField("remoteAddr", r.RemoteAddr).Warn("could not parse remote address")
		return host
	}
	peer = peer.Unmap()
	if !l.trusted(peer) {
		return peer.String()
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		hop = hop.Unmap()
		if !l.trusted(hop) {
			return hop.String()
		}
	}
	return peer.String()
}

//Middleware answers 429 once the client has used up its attempts
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := l.ClientIP(r)
		if l.Allow(ip) {
			next.ServeHTTP(w, r)
			return
		}
		log.WithFields(log.Fields{
			"ip":     ip,
			"path":   r.URL.Path,
			"method": r.Method,
		}).Warn("too many attempts")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprintln(w, tooManyRequestsMsg)
	})
}
