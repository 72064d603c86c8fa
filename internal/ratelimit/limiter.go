// Package ratelimit throttles ledger writes per client.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/insulate/badminton-booking-sub002/internal/clock"
)

// Config holds rate limit configuration.
type Config struct {
	MaxPerWindow int           // Writes allowed per client per window (default: 120)
	Window       time.Duration // Window length (default: 1m)
	TrustProxy   bool          // Read the client address from X-Forwarded-For / X-Real-IP

	// Clock for testing (nil uses real time)
	Clock clock.Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxPerWindow: 120,
		Window:       time.Minute,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
}

// entry tracks request counts in the current window.
type entry struct {
	count   int
	firstAt time.Time
}

// Limiter is a fixed-window counter keyed by client address.
type Limiter struct {
	config  Config
	clock   clock.Clock
	mu      sync.Mutex
	clients map[string]*entry

	// Cleanup goroutine management
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a new rate limiter with the given config.
func New(cfg *Config) *Limiter {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	c := *cfg
	if c.MaxPerWindow <= 0 {
		c.MaxPerWindow = defaults.MaxPerWindow
	}
	if c.Window <= 0 {
		c.Window = defaults.Window
	}
	clk := c.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        c,
		clock:         clk,
		clients:       make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// Allow counts one write for key and reports whether it fits the window.
// Rejected attempts are not counted.
func (l *Limiter) Allow(key string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.clients[key]
	if !ok || now.Sub(e.firstAt) >= l.config.Window {
		l.clients[key] = &entry{count: 1, firstAt: now}
		return LimitResult{Allowed: true, Remaining: l.config.MaxPerWindow - 1}
	}
	if e.count >= l.config.MaxPerWindow {
		return LimitResult{RetryAfter: e.firstAt.Add(l.config.Window).Sub(now)}
	}
	e.count++
	return LimitResult{Allowed: true, Remaining: l.config.MaxPerWindow - e.count}
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(l.config.Window)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.clients {
		if now.Sub(e.firstAt) >= l.config.Window {
			delete(l.clients, k)
		}
	}
}

// Middleware rejects writes over the limit with 429. Reads pass through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		ip := GetClientIP(r, l.config.TrustProxy)
		result := l.Allow(ip)
		if !result.Allowed {
			log.Ctx(r.Context()).Warn().
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Dur("retry_after", result.RetryAfter).
				Msg("Write rate limit exceeded")
			seconds := int(result.RetryAfter.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limited","message":"Too many requests"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetClientIP returns the caller's address. Proxy headers are honored only
// when trustProxy is set; the right-most public X-Forwarded-For hop wins.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				ip := strings.TrimSpace(parts[i])
				if ip != "" && !isPrivateIP(ip) {
					return ip
				}
			}
			return strings.TrimSpace(parts[len(parts)-1])
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

var privateNetworks []*net.IPNet

func init() {
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10", // Link-local
	}
	for _, cidr := range privateRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid private CIDR: " + cidr)
		}
		privateNetworks = append(privateNetworks, network)
	}
}

func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}

	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
