package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps the most recent samples in a ring and answers
// nearest-rank percentiles over them.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
}

// NewLatencyTracker keeps up to size samples. size <= 0 uses 512.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 512
	}
	return &LatencyTracker{samples: make([]time.Duration, size)}
}

// Observe records d, overwriting the oldest sample once the ring is full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples[l.next] = d
	l.next++
	if l.next == len(l.samples) {
		l.next = 0
		l.full = true
	}
}

// Count returns the number of retained samples.
func (l *LatencyTracker) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count()
}

// Percentile returns the nearest-rank p-th percentile (0-100), or zero
// without samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.Lock()
	n := l.count()
	sorted := append([]time.Duration(nil), l.samples[:n]...)
	l.mu.Unlock()

	if n == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}
	rank := int(p/100*float64(n) + 0.999999)
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func (l *LatencyTracker) count() int {
	if l.full {
		return len(l.samples)
	}
	return l.next
}
