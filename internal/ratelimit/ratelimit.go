// Package ratelimit enforces a fixed-window request budget per caller.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mfenderov/multichat/internal/store"
	"github.com/mfenderov/multichat/pkg/models"
)

// UnknownIP identifies callers whose address could not be determined.
const UnknownIP = "0.0.0.0"

var rejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "multichat",
	Name:      "rate_limit_rejections_total",
	Help:      "Requests rejected by the per-caller rate limit",
})

// Config holds rate limiter configuration.
type Config struct {
	Requests  int
	Window    time.Duration
	KeyPrefix string
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int
	ResetIn time.Duration
}

// RetryAfter returns the whole seconds until the window resets, at least 1.
func (d Decision) RetryAfter() int {
	s := int(math.Ceil(d.ResetIn.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// Message is a human readable explanation for a rejected request.
func (d Decision) Message() string {
	return fmt.Sprintf("Rate limit exceeded. Please try again in %d seconds.", d.RetryAfter())
}

// Limiter counts requests per identity in a shared store.
type Limiter struct {
	counter store.Counter
	config  Config
}

// New creates a Limiter backed by counter.
func New(counter store.Counter, config Config) *Limiter {
	if config.Requests <= 0 {
		config.Requests = 10
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &Limiter{counter: counter, config: config}
}

// Check counts one request for identity. The counter is created on the first
// request of a window; once the limit is reached further requests are
// rejected without being counted.
//
// A store failure allows the request and is returned alongside the decision.
func (l *Limiter) Check(ctx context.Context, identity string) (Decision, error) {
	hit, err := l.counter.IncrementCapped(ctx, l.config.KeyPrefix+"rl:"+identity, l.config.Requests, l.config.Window)
	if err != nil {
		slog.Warn("rate limit store unavailable, allowing request", "identity", identity, "error", err)
		return Decision{Allowed: true, Limit: l.config.Requests}, err
	}

	d := Decision{
		Allowed: hit.Allowed,
		Count:   hit.Count,
		Limit:   l.config.Requests,
		ResetIn: hit.ResetIn,
	}
	if !d.Allowed {
		rejectionsTotal.Inc()
		slog.Info("rate limit exceeded", "identity", identity, "limit", d.Limit, "reset_in", d.ResetIn)
	}
	return d, nil
}

// UserIdentity is the identity of an authenticated user.
func UserIdentity(id string) string {
	return "user:" + id
}

// IPIdentity is the identity of an anonymous caller. The address is hashed
// so raw IPs never reach the store.
func IPIdentity(ip string) string {
	return "ip:" + models.GenerateID(ip)
}

// Identity derives the caller identity for r. A non-empty userHeader names a
// trusted header carrying an authenticated user id, which takes precedence.
func Identity(r *http.Request, userHeader string) string {
	if userHeader != "" {
		if id := strings.TrimSpace(r.Header.Get(userHeader)); id != "" {
			return UserIdentity(id)
		}
	}
	return IPIdentity(ClientIP(r))
}

// ClientIP returns the first valid address from CF-Connecting-IP,
// X-Forwarded-For, X-Real-IP and the socket address, in that order.
func ClientIP(r *http.Request) string {
	candidates := []string{
		r.Header.Get("CF-Connecting-IP"),
		firstForwarded(r.Header.Get("X-Forwarded-For")),
		r.Header.Get("X-Real-IP"),
		hostOnly(r.RemoteAddr),
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if addr, err := netip.ParseAddr(c); err == nil {
			return addr.Unmap().String()
		}
	}
	return UnknownIP
}

func firstForwarded(v string) string {
	if v == "" {
		return ""
	}
	first, _, _ := strings.Cut(v, ",")
	return first
}

func hostOnly(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
