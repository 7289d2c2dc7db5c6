package generator

import (
	"sync"
	"time"
)

// Breaker stops calls to the generator after repeated failures until a
// cool-down has elapsed.
type Breaker struct {
	mu          sync.RWMutex
	failures    int
	maxFailures int
	resetTime   time.Time
	timeout     time.Duration
	now         func() time.Time
}

// NewBreaker creates a breaker. maxFailures <= 0 disables it.
func NewBreaker(maxFailures int, timeout time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Open reports whether calls should be short-circuited.
func (b *Breaker) Open() bool {
	if b == nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.maxFailures <= 0 || b.failures < b.maxFailures {
		return false
	}
	return b.now().Before(b.resetTime)
}

// Success resets the failure count.
func (b *Breaker) Success() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.resetTime = time.Time{}
}

// Fail records a failure and arms the cool-down once the limit is reached.
func (b *Breaker) Fail() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.maxFailures > 0 && b.failures >= b.maxFailures {
		b.resetTime = b.now().Add(b.timeout)
	}
}
