package scheduler

import (
	"context"
	"time"

	"github.com/paysettle/paysettle/internal/shared/biztime"
)

const defaultBatchSize = 100

// StaleOrderExpirer is implemented by checkout.OrderManager.
type StaleOrderExpirer interface {
	ExpireStale(ctx context.Context, now time.Time, batch int) (int, error)
}

// PendingReconciler is implemented by checkout.Service.
type PendingReconciler interface {
	ReconcilePending(ctx context.Context, batch int) (int, error)
}

// ExpireStaleOrdersJob expires pending orders whose payment window has closed.
type ExpireStaleOrdersJob struct {
	expirer StaleOrderExpirer
	batch   int
}

func NewExpireStaleOrdersJob(expirer StaleOrderExpirer, batch int) *ExpireStaleOrdersJob {
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &ExpireStaleOrdersJob{expirer: expirer, batch: batch}
}

func (j *ExpireStaleOrdersJob) Execute(ctx context.Context) (int, error) {
	return j.expirer.ExpireStale(ctx, biztime.NowUTC(), j.batch)
}

// ReconcilePendingJob restarts pollers for payments still awaiting settlement.
type ReconcilePendingJob struct {
	reconciler PendingReconciler
	batch      int
}

func NewReconcilePendingJob(reconciler PendingReconciler, batch int) *ReconcilePendingJob {
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &ReconcilePendingJob{reconciler: reconciler, batch: batch}
}

func (j *ReconcilePendingJob) Execute(ctx context.Context) (int, error) {
	return j.reconciler.ReconcilePending(ctx, j.batch)
}
