package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/poflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
	"github.com/angelmondragon/poflow-backend/pkg/metrics"
	"github.com/angelmondragon/poflow-backend/pkg/redis"
)

const (
	rateLimitLimitHeader     = "X-RateLimit-Limit"
	rateLimitRemainingHeader = "X-RateLimit-Remaining"
	rateLimitResetHeader     = "X-RateLimit-Reset"
)

// WindowStore is the fixed-window counter backing RateLimit.
type WindowStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (redis.WindowResult, error)
}

// RateLimitPolicy defines the per-IP budget for a traffic surface.
type RateLimitPolicy struct {
	name    string
	window  time.Duration
	ipLimit int
	trusted []netip.Prefix
}

// NewRateLimitPolicy builds a policy with the supplied window and limit.
func NewRateLimitPolicy(name string, window time.Duration, ipLimit int) RateLimitPolicy {
	return RateLimitPolicy{
		name:    strings.ToLower(strings.TrimSpace(name)),
		window:  window,
		ipLimit: ipLimit,
	}
}

// WithTrustedProxies returns a copy of p that reads the client address from
// X-Forwarded-For when the peer, and every hop after the client, falls inside
// one of proxies.
func (p RateLimitPolicy) WithTrustedProxies(proxies []netip.Prefix) RateLimitPolicy {
	p.trusted = append([]netip.Prefix(nil), proxies...)
	return p
}

func (p RateLimitPolicy) isTrusted(addr netip.Addr) bool {
	for _, prefix := range p.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && p.ipLimit > 0
}

func (p RateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "public"
	}
	return p.name
}

func (p RateLimitPolicy) ipScope(ip string) string {
	return fmt.Sprintf("ip:%s:%s", p.normalizedName(), ip)
}

// RateLimit enforces a fixed-window per-IP counter and reports the budget in
// X-RateLimit-* headers on every response.
func RateLimit(policy RateLimitPolicy, store WindowStore, m *metrics.Metrics, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := policy.clientIP(r)
			if ip == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := store.FixedWindowAllow(ctx, policy.ipScope(ip), int64(policy.ipLimit), policy.window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}

			h := w.Header()
			h.Set(rateLimitLimitHeader, strconv.FormatInt(res.Limit, 10))
			h.Set(rateLimitRemainingHeader, strconv.FormatInt(res.Remaining, 10))
			h.Set(rateLimitResetHeader, strconv.FormatInt(int64(math.Ceil(res.ResetIn.Seconds())), 10))

			if !res.Allowed {
				m.IncRateLimited(policy.normalizedName())
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":         policy.normalizedName(),
						"ip":             ip,
						"attempts":       res.Count,
						"limit":          res.Limit,
						"window_seconds": int(policy.window.Seconds()),
					}), "rate_limit.blocked")
				}
				h.Set("Retry-After", h.Get(rateLimitResetHeader))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP keys requests by the TCP peer. Forwarding headers are only read
// when the peer is a trusted proxy; X-Forwarded-For is then walked from the
// right and the first hop outside the trusted set is the client.
func (p RateLimitPolicy) clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	host = strings.TrimSpace(host)
	peer, err := netip.ParseAddr(host)
	if err != nil {
		return host
	}
	peer = peer.Unmap()
	if !p.isTrusted(peer) {
		return peer.String()
	}

	if header := r.Header.Values("X-Forwarded-For"); len(header) > 0 {
		hops := strings.Split(strings.Join(header, ","), ",")
		client := peer
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			client = hop.Unmap()
			if !p.isTrusted(client) {
				break
			}
		}
		return client.String()
	}
	if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return realIP.Unmap().String()
	}
	return peer.String()
}
