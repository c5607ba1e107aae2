package checkout

import (
	"context"
	"sync"

	"github.com/paysettle/paysettle/internal/shared/goroutine"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// PollerManager owns the per-order poller goroutines. At most one poller runs
// per order.
type PollerManager struct {
	mu      sync.Mutex
	pollers map[uint]*Poller
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  logger.Interface
}

func NewPollerManager(log logger.Interface) *PollerManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &PollerManager{
		pollers: make(map[uint]*Poller),
		ctx:     ctx,
		cancel:  cancel,
		logger:  log,
	}
}

// Start runs p unless a poller for the same order is already running. It
// reports whether p was started.
func (m *PollerManager) Start(p *Poller) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return false
	}
	if _, running := m.pollers[p.OrderID()]; running {
		return false
	}
	m.pollers[p.OrderID()] = p
	m.wg.Add(1)

	goroutine.SafeGo(m.logger, "checkout-poller", func() {
		defer m.wg.Done()
		defer m.remove(p)
		p.Run(m.ctx)
	})

	m.logger.Debugw("poller started", "order_id", p.OrderID())
	return true
}

func (m *PollerManager) remove(p *Poller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.pollers[p.OrderID()]; ok && current == p {
		delete(m.pollers, p.OrderID())
	}
}

// Stop stops the poller of an order, if any, without waiting for it to exit.
func (m *PollerManager) Stop(orderID uint) bool {
	m.mu.Lock()
	p, ok := m.pollers[orderID]
	if ok {
		delete(m.pollers, orderID)
	}
	m.mu.Unlock()

	if ok {
		p.Stop()
	}
	return ok
}

// StopPayment stops the poller of an order only while it tracks paymentID.
func (m *PollerManager) StopPayment(orderID, paymentID uint) bool {
	m.mu.Lock()
	p, ok := m.pollers[orderID]
	if ok && p.PaymentID() == paymentID {
		delete(m.pollers, orderID)
	} else {
		ok = false
	}
	m.mu.Unlock()

	if ok {
		p.Stop()
	}
	return ok
}

func (m *PollerManager) Get(orderID uint) (*Poller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pollers[orderID]
	return p, ok
}

func (m *PollerManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pollers)
}

// StopAll cancels every poller and waits for them to exit.
func (m *PollerManager) StopAll() {
	m.mu.Lock()
	count := len(m.pollers)
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Infow("all pollers stopped", "count", count)
}
