package checkout

import "sync"

// DefaultFailureThreshold is the number of consecutive failures tolerated before
// an error is surfaced.
const DefaultFailureThreshold = 5

// FailureCounter tracks consecutive poll failures for one poller.
type FailureCounter struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	lastErr     error
}

func NewFailureCounter(threshold int) *FailureCounter {
	if threshold < 1 {
		threshold = DefaultFailureThreshold
	}
	return &FailureCounter{threshold: threshold}
}

// Record counts a failure and reports whether the run of failures now exceeds
// the threshold.
func (c *FailureCounter) Record(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutive++
	c.lastErr = err
	return c.consecutive > c.threshold
}

// Reset clears the run after a successful tick.
func (c *FailureCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutive = 0
}

func (c *FailureCounter) Consecutive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutive
}

// LastError returns the most recent failure, kept after Reset for diagnostics.
func (c *FailureCounter) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
