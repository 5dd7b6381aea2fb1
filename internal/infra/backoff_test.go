package infra

import (
	"testing"
	"time"
)

// =====================================================
// Infra Backoff Tests
// =====================================================

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		retryCount int
		minDelay   time.Duration
		maxDelay   time.Duration
	}{
		{0, 1 * time.Second, 1 * time.Second},     // 1s
		{1, 2 * time.Second, 2 * time.Second},     // 2s
		{2, 4 * time.Second, 4 * time.Second},     // 4s
		{3, 8 * time.Second, 8 * time.Second},     // 8s
		{10, 60 * time.Second, 60 * time.Second},  // max 60s
		{100, 60 * time.Second, 60 * time.Second}, // still max 60s
	}

	for _, tt := range tests {
		delay := CalculateBackoff(tt.retryCount)
		if delay < tt.minDelay || delay > tt.maxDelay {
			t.Errorf("CalculateBackoff(%d) = %s, want between %s and %s",
				tt.retryCount, delay, tt.minDelay, tt.maxDelay)
		}
	}
}

func TestBackoffWithin(t *testing.T) {
	tests := []struct {
		name       string
		retryCount int
		base       time.Duration
		max        time.Duration
		want       time.Duration
	}{
		{"custom base", 0, 5 * time.Second, 30 * time.Second, 5 * time.Second},
		{"doubles from base", 2, 5 * time.Second, 30 * time.Second, 20 * time.Second},
		{"caps at max", 4, 5 * time.Second, 30 * time.Second, 30 * time.Second},
		{"huge retry caps at max", 100, 5 * time.Second, 30 * time.Second, 30 * time.Second},
		{"zero bounds use defaults", 1, 0, 0, 2 * time.Second},
		{"negative retry yields base", -1, 5 * time.Second, 30 * time.Second, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BackoffWithin(tt.retryCount, tt.base, tt.max); got != tt.want {
				t.Errorf("BackoffWithin(%d, %s, %s) = %s, want %s",
					tt.retryCount, tt.base, tt.max, got, tt.want)
			}
		})
	}
}
