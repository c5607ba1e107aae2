package checkout

import (
	"context"
	"sync"
	"time"

	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/shared"
)

// ExpirationClock counts down a payment window and fires once when it closes
// while the order is still pending.
type ExpirationClock struct {
	mu        sync.Mutex
	expiresAt time.Time
	syncFn    func(ctx context.Context)
	fired     bool
}

// NewExpirationClock creates a clock for expiresAt. syncFn persists the expiry and
// must itself check that the order is still pending.
func NewExpirationClock(expiresAt time.Time, syncFn func(ctx context.Context)) *ExpirationClock {
	return &ExpirationClock{expiresAt: expiresAt, syncFn: syncFn}
}

// Tick returns the time left and whether the window has closed. The first tick
// past the deadline with status pending calls syncFn; later ticks never do.
func (c *ExpirationClock) Tick(ctx context.Context, now time.Time, status ordervo.OrderStatus) (time.Duration, bool) {
	remaining := shared.Remaining(c.expiresAt, now)

	c.mu.Lock()
	if c.fired {
		c.mu.Unlock()
		return 0, true
	}
	if c.expiresAt.IsZero() || remaining > 0 || status != ordervo.OrderStatusPending {
		c.mu.Unlock()
		return remaining, false
	}
	c.fired = true
	c.mu.Unlock()

	if c.syncFn != nil {
		c.syncFn(ctx)
	}
	return 0, true
}

// Fired reports whether the clock has already fired.
func (c *ExpirationClock) Fired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}
