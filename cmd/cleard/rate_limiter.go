// rate_limiter.go - Per-bidder rate limiting for the clearing daemon
package main

import (
	"sync"
	"time"
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	mu           sync.Mutex
	tokens       int
	maxTokens    int
	refillRate   int
	lastRefill   time.Time
	refillPeriod time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxTokens int, refillRate int, refillPeriod time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:       maxTokens,
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		lastRefill:   time.Now(),
		refillPeriod: refillPeriod,
	}
}

// Allow checks if a request is allowed and consumes a token if so
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	refillCount := int(now.Sub(rl.lastRefill) / rl.refillPeriod)
	if refillCount > 0 {
		rl.tokens += refillCount * rl.refillRate
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// GetTokens returns the current number of available tokens
func (rl *RateLimiter) GetTokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.tokens
}

// Reset resets the rate limiter to its initial state
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = rl.maxTokens
	rl.lastRefill = time.Now()
}

// BidderRateLimiter manages rate limiting per bidder identity
type BidderRateLimiter struct {
	limiters     map[string]*RateLimiter
	mu           sync.RWMutex
	maxTokens    int
	refillRate   int
	refillPeriod time.Duration
}

// NewBidderRateLimiter creates a new per-bidder rate limiter
func NewBidderRateLimiter(maxTokens int, refillRate int, refillPeriod time.Duration) *BidderRateLimiter {
	return &BidderRateLimiter{
		limiters:     make(map[string]*RateLimiter),
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		refillPeriod: refillPeriod,
	}
}

// Allow checks if a request from a bidder is allowed
func (brl *BidderRateLimiter) Allow(bidderID string) bool {
	brl.mu.Lock()
	limiter, exists := brl.limiters[bidderID]
	if !exists {
		limiter = NewRateLimiter(brl.maxTokens, brl.refillRate, brl.refillPeriod)
		brl.limiters[bidderID] = limiter
	}
	brl.mu.Unlock()

	return limiter.Allow()
}

// GetTokens returns the current number of available tokens for a bidder
func (brl *BidderRateLimiter) GetTokens(bidderID string) int {
	brl.mu.RLock()
	limiter, exists := brl.limiters[bidderID]
	brl.mu.RUnlock()

	if !exists {
		return brl.maxTokens
	}
	return limiter.GetTokens()
}

// ResetAll resets all bidder rate limiters
func (brl *BidderRateLimiter) ResetAll() {
	brl.mu.Lock()
	for _, limiter := range brl.limiters {
		limiter.Reset()
	}
	brl.mu.Unlock()
}
