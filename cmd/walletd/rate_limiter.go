package main

import (
	"sync"

	"golang.org/x/time/rate"
)

// NetworkRateLimiter keeps one token bucket per network.
type NetworkRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewNetworkRateLimiter allows perSecond requests per network with the given
// burst.
func NewNetworkRateLimiter(perSecond float64, burst int) *NetworkRateLimiter {
	return &NetworkRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *NetworkRateLimiter) limiter(network string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[network]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[network] = lim
	}
	return lim
}

// Allow reports whether a request for network may proceed and consumes a
// token if so.
func (l *NetworkRateLimiter) Allow(network string) bool {
	return l.limiter(network).Allow()
}

// Tokens returns the tokens currently available to network.
func (l *NetworkRateLimiter) Tokens(network string) float64 {
	return l.limiter(network).Tokens()
}

// Reset refills the bucket of network.
func (l *NetworkRateLimiter) Reset(network string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, network)
}
