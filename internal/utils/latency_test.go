package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	if tracker.Percentile(95) != 0 {
		t.Fatalf("expected zero without samples")
	}
	for i := 1; i <= 5; i++ {
		tracker.Observe(time.Duration(i*10) * time.Millisecond)
	}

	if tracker.Count() != 5 {
		t.Fatalf("expected 5 samples, got %d", tracker.Count())
	}
	if got := tracker.Percentile(95); got != 50*time.Millisecond {
		t.Fatalf("expected p95 of 50ms, got %v", got)
	}
	if got := tracker.Percentile(50); got != 30*time.Millisecond {
		t.Fatalf("expected p50 of 30ms, got %v", got)
	}
	if got := tracker.Percentile(0); got != 10*time.Millisecond {
		t.Fatalf("expected min of 10ms, got %v", got)
	}
}

func TestLatencyTrackerKeepsMostRecent(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 1; i <= 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if tracker.Count() != 3 {
		t.Fatalf("expected 3 retained samples, got %d", tracker.Count())
	}
	if got := tracker.Percentile(0); got != 8*time.Millisecond {
		t.Fatalf("expected oldest retained sample 8ms, got %v", got)
	}
}
