package ratelimiter

import (
	"Neurologix/backend/go/pkg/util"
	"fmt"
	"sync"
	"time"
)

// RateLimiter admits or rejects a single request.
type RateLimiter interface {
	// Allow returns true if the request is allowed, otherwise returns false.
	Allow() bool
}

// Factory builds a fresh limiter for one caller.
type Factory func() RateLimiter

// Keyed keeps an independent limiter per caller key (user id or client
// address). Idle keys are evicted least-recently-used first, so a flood of
// distinct keys cannot grow memory without bound.
type Keyed struct {
	factory  Factory
	limiters *util.LRUCache[string, RateLimiter]
	mutex    sync.Mutex
}

// NewKeyed creates a Keyed limiter tracking at most maxKeys callers. Keys
// idle for longer than idle are forgotten; zero keeps them until evicted.
func NewKeyed(factory Factory, maxKeys int, idle time.Duration) (*Keyed, error) {
	if factory == nil {
		return nil, fmt.Errorf("rate limiter factory is nil")
	}
	cache, err := util.NewLRU[string, RateLimiter](maxKeys, idle)
	if err != nil {
		return nil, fmt.Errorf("failed to create limiter cache: %w", err)
	}
	return &Keyed{factory: factory, limiters: cache}, nil
}

// Allow reports whether key may make another request.
func (k *Keyed) Allow(key string) bool {
	k.mutex.Lock()
	limiter, ok := k.limiters.Get(key)
	if !ok {
		limiter = k.factory()
	}
	// Put refreshes the idle deadline on every request.
	k.limiters.Put(key, limiter)
	k.mutex.Unlock()

	return limiter.Allow()
}

// Len returns the number of tracked callers.
func (k *Keyed) Len() int {
	return k.limiters.Len()
}
