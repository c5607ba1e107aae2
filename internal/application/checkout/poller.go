package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paysettle/paysettle/internal/domain/order"
	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/payment"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/shared"
	"github.com/paysettle/paysettle/internal/shared/biztime"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

const (
	DefaultPollInterval  = 3 * time.Second
	defaultClockInterval = time.Second

	// chainLeadConfirmations is the depth at which a chain-confirmed deposit the
	// gateway has not yet acknowledged is worth an info log.
	chainLeadConfirmations = 3
)

// Poll tick results reported to Metrics.
const (
	TickResultOK    = "ok"
	TickResultError = "error"
	TickResultDone  = "done"
)

// OrderStatusPort is the part of OrderManager a poller writes through.
type OrderStatusPort interface {
	CurrentStatus(ctx context.Context, orderID uint) (ordervo.OrderStatus, error)
	IsCurrentPayment(ctx context.Context, orderID, paymentID uint) (bool, error)
	MarkProcessing(ctx context.Context, orderID uint, orderNo string) (bool, error)
	ExpireAttempt(ctx context.Context, orderID uint, orderNo string, paymentID uint) (bool, error)
}

type VerifierPort interface {
	Verify(ctx context.Context, in VerifyInput) (*Verification, error)
}

type SettlementPort interface {
	Settle(ctx context.Context, orderID uint, p *payment.Payment, txID string) (*SettleResult, error)
}

// PollerConfig identifies the order and payment a poller reconciles.
type PollerConfig struct {
	OrderID        uint
	OrderNo        string
	OrderCreatedAt time.Time
	FiatTotal      shared.Money
	Payment        *payment.Payment
	Details        *CryptoDetails
	Interval       time.Duration
	ClockInterval  time.Duration
}

// PollerDeps are the collaborators of a poller. Tracker and Feed are optional.
type PollerDeps struct {
	Orders     OrderStatusPort
	Gateway    GatewayStatusReader
	Tracker    StatusTracker
	Verifier   VerifierPort
	Settlement SettlementPort
	Feed       StatusFeed
	Counter    *FailureCounter
	Metrics    Metrics
	Logger     logger.Interface
	// OnSurfaced is called when consecutive failures first exceed the threshold.
	OnSurfaced func(err error)
}

// PollerSnapshot is a point-in-time view of a poller for status endpoints.
type PollerSnapshot struct {
	Local               ordervo.OrderStatus
	Remaining           time.Duration
	ConsecutiveFailures int
	LastError           string
	Crypto              *CryptoDetails
}

// Poller reconciles one order by merging the stored order status, the gateway
// status and the on-chain view until the order settles or expires.
type Poller struct {
	cfg   PollerConfig
	deps  PollerDeps
	clock *ExpirationClock
	chain vo.ChainType

	mu        sync.RWMutex
	local     ordervo.OrderStatus
	remaining time.Duration
	details   *CryptoDetails
	surfaced  bool
	// expiryOutcome is the stored status observed when the clock fired.
	expiryOutcome ordervo.OrderStatus

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewPoller(cfg PollerConfig, deps PollerDeps) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.ClockInterval <= 0 {
		cfg.ClockInterval = defaultClockInterval
	}
	if deps.Counter == nil {
		deps.Counter = NewFailureCounter(DefaultFailureThreshold)
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}

	p := &Poller{
		cfg:     cfg,
		deps:    deps,
		local:   ordervo.OrderStatusPending,
		details: cfg.Details.Clone(),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cm, err := vo.ResolveCryptoMethod(cfg.Payment.Method()); err == nil && cfg.Payment.IsCrypto() {
		p.chain = cm.Chain
	}
	p.clock = NewExpirationClock(cfg.Payment.ExpiresAt(), p.syncExpiry)
	p.remaining = shared.Remaining(cfg.Payment.ExpiresAt(), biztime.NowUTC())
	return p
}

func (p *Poller) OrderID() uint {
	return p.cfg.OrderID
}

// PaymentID is the payment attempt this poller reconciles.
func (p *Poller) PaymentID() uint {
	return p.cfg.Payment.ID()
}

// Run polls until the order reaches a final local status, Stop is called or ctx
// is cancelled. Ticks never overlap.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.done)

	var events <-chan order.StatusChangedEvent
	if p.deps.Feed != nil {
		ch, unsubscribe, err := p.deps.Feed.Subscribe(ctx, p.cfg.OrderID)
		if err != nil {
			p.deps.Logger.Warnw("status feed unavailable, polling only",
				"order_id", p.cfg.OrderID,
				"error", err,
			)
		} else {
			events = ch
			defer unsubscribe()
		}
	}

	if p.Tick(ctx) {
		return
	}

	pollTicker := time.NewTicker(p.cfg.Interval)
	defer pollTicker.Stop()
	clockTicker := time.NewTicker(p.cfg.ClockInterval)
	defer clockTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			p.deps.Logger.Debugw("poller stopped", "order_id", p.cfg.OrderID)
			return
		case <-pollTicker.C:
			if p.Tick(ctx) {
				return
			}
		case now := <-clockTicker.C:
			if p.clockTick(ctx, now.UTC()) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if p.applyEvent(ev) {
				return
			}
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Done is closed when Run returns.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Tick performs one reconciliation round and reports whether polling is finished.
func (p *Poller) Tick(ctx context.Context) bool {
	done, err := p.tick(ctx)
	switch {
	case err != nil:
		p.recordFailure(err)
		p.deps.Metrics.PollTick(TickResultError)
	case done:
		p.recordSuccess()
		p.deps.Metrics.PollTick(TickResultDone)
	default:
		p.recordSuccess()
		p.deps.Metrics.PollTick(TickResultOK)
	}
	return done
}

func (p *Poller) tick(ctx context.Context) (bool, error) {
	stored, err := p.deps.Orders.CurrentStatus(ctx, p.cfg.OrderID)
	if err != nil {
		return false, err
	}
	if p.applyStored(stored) {
		return true, nil
	}

	current, err := p.deps.Orders.IsCurrentPayment(ctx, p.cfg.OrderID, p.cfg.Payment.ID())
	if err != nil {
		return false, err
	}
	if !current {
		p.deps.Logger.Infow("payment attempt superseded, stopping",
			"order_id", p.cfg.OrderID,
			"payment_id", p.cfg.Payment.ID(),
		)
		return true, nil
	}

	var (
		gw       *GatewayStatus
		chain    *ChainStatus
		gwErr    error
		chainErr error
		g        errgroup.Group
	)
	g.Go(func() error {
		gw, gwErr = p.deps.Gateway.Status(ctx, p.cfg.Payment)
		return nil
	})
	if q, ok := p.trackQuery(); ok {
		g.Go(func() error {
			chain, chainErr = p.deps.Tracker.Track(ctx, q)
			return nil
		})
	}
	_ = g.Wait()

	var tickErr error
	if chainErr != nil {
		chain = nil
		if !errors.Is(chainErr, ErrUnsupportedChain) {
			tickErr = fmt.Errorf("chain lookup: %w", chainErr)
		}
	}
	if gw != nil && p.cfg.Payment.IsCrypto() {
		p.refine(gw)
	}

	seen := (chain != nil && chain.Detected) || (gw != nil && gw.State == GatewayStateConfirming)
	if seen && p.LocalStatus() == ordervo.OrderStatusPending {
		if _, err := p.deps.Orders.MarkProcessing(ctx, p.cfg.OrderID, p.cfg.OrderNo); err != nil {
			tickErr = errors.Join(tickErr, err)
		} else {
			p.setLocal(ordervo.OrderStatusProcessing)
		}
	}

	if gwErr != nil {
		return false, errors.Join(tickErr, fmt.Errorf("gateway status: %w", gwErr))
	}
	if gw == nil {
		return false, tickErr
	}

	if chain != nil && chain.State == ChainStateConfirmed && chain.Confirmations >= chainLeadConfirmations &&
		(gw.State == GatewayStatePending || gw.State == GatewayStateConfirming) {
		p.deps.Logger.Infow("chain confirmed ahead of gateway",
			"order_id", p.cfg.OrderID,
			"tx_id", chain.TxID,
			"confirmations", chain.Confirmations,
			"gateway_state", gw.State,
		)
	}

	switch gw.State {
	case GatewayStatePaid:
		done, err := p.settle(ctx, gw, chain)
		return done, errors.Join(tickErr, err)
	case GatewayStateExpired, GatewayStateFailed:
		applied, err := p.deps.Orders.ExpireAttempt(ctx, p.cfg.OrderID, p.cfg.OrderNo, p.cfg.Payment.ID())
		if err != nil {
			return false, errors.Join(tickErr, err)
		}
		if !applied {
			// The stored status or the current attempt moved first; the next tick reads it.
			return false, tickErr
		}
		p.deps.Logger.Infow("payment closed by gateway",
			"order_id", p.cfg.OrderID,
			"gateway_state", gw.State,
			"raw_status", gw.RawStatus,
		)
		p.setLocal(ordervo.OrderStatusExpired)
		return true, nil
	}
	return false, tickErr
}

func (p *Poller) settle(ctx context.Context, gw *GatewayStatus, chain *ChainStatus) (bool, error) {
	if gw.TxID == "" {
		p.deps.Logger.Debugw("gateway reports paid without transaction id", "order_id", p.cfg.OrderID)
		return false, nil
	}

	verdict, err := p.deps.Verifier.Verify(ctx, VerifyInput{
		Payment:  p.cfg.Payment,
		Reported: gw,
		Chain:    chain,
	})
	if err != nil {
		return false, fmt.Errorf("verify payment: %w", err)
	}
	if !verdict.Verified {
		p.deps.Logger.Warnw("paid report not verified, continuing to poll",
			"order_id", p.cfg.OrderID,
			"tx_id", gw.TxID,
			"reason", verdict.Reason,
		)
		return false, nil
	}

	res, err := p.deps.Settlement.Settle(ctx, p.cfg.OrderID, p.cfg.Payment, verdict.TxID)
	if err != nil {
		return false, fmt.Errorf("settle: %w", err)
	}
	if res.Rejected != "" {
		return false, nil
	}
	if !res.Applied && !res.Status.IsSettled() {
		return p.applyStored(res.Status), nil
	}
	p.setLocal(ordervo.OrderStatusCompleted)
	return true, nil
}

func (p *Poller) clockTick(ctx context.Context, now time.Time) bool {
	local := p.LocalStatus()
	if local != ordervo.OrderStatusPending {
		return false
	}
	remaining, expired := p.clock.Tick(ctx, now, local)

	p.mu.Lock()
	p.remaining = remaining
	p.mu.Unlock()

	if !expired {
		return false
	}

	p.mu.RLock()
	outcome := p.expiryOutcome
	p.mu.RUnlock()
	switch outcome {
	case "":
		// Expiry was not recorded; ticks continue until the stored status moves.
		return false
	case ordervo.OrderStatusExpired:
		p.setLocal(ordervo.OrderStatusExpired)
		return true
	default:
		// Payment was seen before the window closed; keep reconciling.
		return p.applyStored(outcome)
	}
}

// syncExpiry persists the expiry only if the order is still pending and this
// poller's payment is still the current attempt. The outcome stays empty when
// nothing was recorded.
func (p *Poller) syncExpiry(ctx context.Context) {
	stored, err := p.deps.Orders.CurrentStatus(ctx, p.cfg.OrderID)
	if err != nil {
		p.deps.Logger.Warnw("failed to read status before expiry", "order_id", p.cfg.OrderID, "error", err)
		return
	}
	if stored == ordervo.OrderStatusPending {
		applied, err := p.deps.Orders.ExpireAttempt(ctx, p.cfg.OrderID, p.cfg.OrderNo, p.cfg.Payment.ID())
		if err != nil {
			p.deps.Logger.Warnw("failed to persist expiry", "order_id", p.cfg.OrderID, "error", err)
			return
		}
		if !applied {
			return
		}
		stored = ordervo.OrderStatusExpired
	}

	p.mu.Lock()
	p.expiryOutcome = stored
	p.mu.Unlock()
}

// applyStored folds the authoritative status into the local one and reports
// whether polling is finished.
func (p *Poller) applyStored(stored ordervo.OrderStatus) bool {
	switch {
	case stored.IsSettled():
		p.setLocal(ordervo.OrderStatusCompleted)
		return true
	case stored == ordervo.OrderStatusCancelled:
		p.setLocal(ordervo.OrderStatusCancelled)
		return true
	case stored == ordervo.OrderStatusExpired:
		p.setLocal(ordervo.OrderStatusExpired)
		return true
	case stored == ordervo.OrderStatusProcessing:
		p.setLocal(ordervo.OrderStatusProcessing)
	}
	return false
}

func (p *Poller) applyEvent(ev order.StatusChangedEvent) bool {
	if ev.OrderID != p.cfg.OrderID {
		return false
	}
	p.deps.Logger.Debugw("status event received", "order_id", ev.OrderID, "status", ev.Status)
	return p.applyStored(ev.Status)
}

func (p *Poller) trackQuery() (TrackQuery, bool) {
	if p.deps.Tracker == nil || p.chain == "" {
		return TrackQuery{}, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.details == nil || p.details.Address == "" || p.details.PayCurrency == "" {
		return TrackQuery{}, false
	}
	return TrackQuery{
		Address:      p.details.Address,
		Currency:     p.details.PayCurrency,
		Chain:        p.chain,
		MinTimestamp: p.cfg.OrderCreatedAt,
	}, true
}

func (p *Poller) refine(gw *GatewayStatus) {
	computed, _ := p.cfg.Payment.Metadata()[metaComputedAmount].(string)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.details == nil {
		p.details = &CryptoDetails{TrackID: deref(p.cfg.Payment.TrackID())}
	}
	refineFromStatus(p.details, gw, p.cfg.FiatTotal, computed)
}

// setLocal moves the local status forward only.
func (p *Poller) setLocal(next ordervo.OrderStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.local.CanTransitionTo(next) {
		p.local = next
	}
}

func (p *Poller) LocalStatus() ordervo.OrderStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.local
}

func (p *Poller) recordFailure(err error) {
	surface := p.deps.Counter.Record(err)

	p.mu.Lock()
	first := surface && !p.surfaced
	if surface {
		p.surfaced = true
	}
	p.mu.Unlock()

	if !first {
		p.deps.Logger.Debugw("poll tick failed",
			"order_id", p.cfg.OrderID,
			"consecutive", p.deps.Counter.Consecutive(),
			"error", err,
		)
		return
	}

	p.deps.Logger.Errorw("order reconciliation keeps failing",
		"order_id", p.cfg.OrderID,
		"order_no", p.cfg.OrderNo,
		"consecutive", p.deps.Counter.Consecutive(),
		"error", err,
	)
	p.deps.Metrics.PollFailureSurfaced()
	if p.deps.OnSurfaced != nil {
		p.deps.OnSurfaced(err)
	}
}

func (p *Poller) recordSuccess() {
	p.deps.Counter.Reset()
	p.mu.Lock()
	p.surfaced = false
	p.mu.Unlock()
}

// LastError returns the most recent tick failure, or nil.
func (p *Poller) LastError() error {
	return p.deps.Counter.LastError()
}

func (p *Poller) Snapshot() PollerSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := PollerSnapshot{
		Local:               p.local,
		Remaining:           p.remaining,
		ConsecutiveFailures: p.deps.Counter.Consecutive(),
		Crypto:              p.details.Clone(),
	}
	if err := p.deps.Counter.LastError(); err != nil {
		snap.LastError = err.Error()
	}
	return snap
}
