package jobs

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	policy := Backoff{Base: 2 * time.Second, Max: 5 * time.Minute}

	tests := []struct {
		name       string
		retryCount int
		want       time.Duration
	}{
		{"zero retries", 0, 2 * time.Second},
		{"first retry", 1, 4 * time.Second},
		{"second retry", 2, 8 * time.Second},
		{"fifth retry", 5, 64 * time.Second},
		{"capped at max", 10, 5 * time.Minute},
		{"huge count stays capped", 500, 5 * time.Minute},
		{"negative clamps to base", -3, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Delay(tt.retryCount); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.retryCount, got, tt.want)
			}
		})
	}
}

func TestBackoffNoMaxGrowsUnbounded(t *testing.T) {
	policy := Backoff{Base: time.Second}
	if got := policy.Delay(12); got != 4096*time.Second {
		t.Errorf("Delay(12) = %v, want %v", got, 4096*time.Second)
	}
}

func TestBackoffZeroBase(t *testing.T) {
	policy := Backoff{Max: time.Minute}
	if got := policy.Delay(4); got != 0 {
		t.Errorf("Delay with zero base = %v, want 0", got)
	}
}

func TestJobDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(10 * time.Second)
	past := now.Add(-10 * time.Second)

	tests := []struct {
		name string
		job  Job
		want bool
	}{
		{"queued without window", Job{Status: StatusQueued}, true},
		{"queued past window", Job{Status: StatusQueued, NextRetryAt: &past}, true},
		{"queued inside window", Job{Status: StatusQueued, NextRetryAt: &soon}, false},
		{"queued exactly at window", Job{Status: StatusQueued, NextRetryAt: &now}, true},
		{"failed never due", Job{Status: StatusFailed, NextRetryAt: &past}, false},
		{"processing never due", Job{Status: StatusProcessing}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.job.Due(now); got != tt.want {
				t.Errorf("Due = %v, want %v", got, tt.want)
			}
		})
	}
}
