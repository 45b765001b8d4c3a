package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter enforces per-host request rates for crawler HTTP traffic.
// Every outbound fetch acquires against its target host before dialing.
type HostLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	defaultRPS float64
	overrides map[string]float64 // host -> requests per second
}

// NewHostLimiter creates a limiter with a default per-host rate and optional
// per-host overrides (crawler.<source>.rate_per_second config).
func NewHostLimiter(defaultRPS float64, overrides map[string]float64) *HostLimiter {
	if defaultRPS <= 0 {
		defaultRPS = 1.0
	}
	h := &HostLimiter{
		limiters:   make(map[string]*rate.Limiter),
		defaultRPS: defaultRPS,
		overrides:  make(map[string]float64),
	}
	for host, rps := range overrides {
		h.overrides[host] = rps
	}
	return h
}

// Acquire blocks until the host's bucket admits one request or ctx is
// cancelled.
func (h *HostLimiter) Acquire(ctx context.Context, host string) error {
	return h.limiterFor(host).Wait(ctx)
}

// Allow reports whether a request to host would be admitted right now
// without consuming a token on refusal.
func (h *HostLimiter) Allow(host string) bool {
	return h.limiterFor(host).Allow()
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	if lim, ok := h.limiters[host]; ok {
		return lim
	}
	rps := h.defaultRPS
	if override, ok := h.overrides[host]; ok && override > 0 {
		rps = override
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	h.limiters[host] = lim
	return lim
}
