package jobs

import "time"

// Backoff computes the delay before a failed job's next retry from its retry
// count: Base × 2^retryCount, capped at Max. Stateless and safe for
// concurrent use.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff is the retry policy used when none is configured.
func DefaultBackoff() Backoff {
	return Backoff{Base: 2 * time.Second, Max: 5 * time.Minute}
}

// Delay returns the wait before the retry following the given retry count.
func (b Backoff) Delay(retryCount int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if retryCount < 0 {
		retryCount = 0
	}
	// Cap the shift before multiplying so large retry counts cannot overflow.
	if retryCount > 30 {
		retryCount = 30
	}
	d := b.Base * time.Duration(int64(1)<<uint(retryCount))
	if b.Max > 0 && (d > b.Max || d <= 0) {
		return b.Max
	}
	return d
}
