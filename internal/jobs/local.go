package jobs

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// InlineTrigger runs backfill passes in-process when no job queue is configured.
// A request made while a pass is running is folded into one follow-up pass.
type InlineTrigger struct {
	backfiller Backfiller
	running    atomic.Bool
	pending    atomic.Bool
	wg         sync.WaitGroup
}

// NewInlineTrigger creates an in-process backfill trigger
func NewInlineTrigger(backfiller Backfiller) *InlineTrigger {
	return &InlineTrigger{backfiller: backfiller}
}

// TriggerBackfill starts a pass in the background and returns immediately
func (t *InlineTrigger) TriggerBackfill(ctx context.Context) error {
	t.pending.Store(true)
	if !t.running.CompareAndSwap(false, true) {
		return nil
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		for {
			for t.pending.Swap(false) {
				if _, err := t.backfiller.BackfillMissingUsers(context.WithoutCancel(ctx)); err != nil {
					log.Printf("[Backfill] Inline pass failed: %v", err)
				}
			}
			t.running.Store(false)

			// a request may have arrived between the last pass and releasing the flag
			if !t.pending.Load() || !t.running.CompareAndSwap(false, true) {
				return
			}
		}
	}()
	return nil
}

// Wait blocks until the running pass, if any, has finished
func (t *InlineTrigger) Wait() {
	t.wg.Wait()
}

// ReconcileJob runs the reconciliation sweep on a fixed interval
type ReconcileJob struct {
	reconciler Reconciler
	cache      CacheInvalidator
	interval   time.Duration
	stopChan   chan struct{}
}

// NewReconcileJob creates a new reconcile job. cache may be nil.
func NewReconcileJob(reconciler Reconciler, cache CacheInvalidator, interval time.Duration) *ReconcileJob {
	return &ReconcileJob{
		reconciler: reconciler,
		cache:      cache,
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the reconcile loop
func (rj *ReconcileJob) Start() {
	if rj.interval <= 0 {
		log.Println("[ReconcileJob] Interval not set, periodic reconciliation disabled")
		return
	}
	log.Printf("[ReconcileJob] Starting team reconciliation job (interval: %v)", rj.interval)

	ticker := time.NewTicker(rj.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rj.runOnce(context.Background())
		case <-rj.stopChan:
			log.Println("[ReconcileJob] Stopping team reconciliation job")
			return
		}
	}
}

// Stop stops the reconcile loop
func (rj *ReconcileJob) Stop() {
	close(rj.stopChan)
}

func (rj *ReconcileJob) runOnce(ctx context.Context) {
	if err := rj.reconciler.ReconcileTeams(ctx); err != nil {
		log.Printf("[ReconcileJob] Error reconciling teams: %v", err)
		return
	}
	if rj.cache != nil {
		if err := rj.cache.InvalidateAll(ctx); err != nil {
			log.Printf("[ReconcileJob] Failed to invalidate report cache: %v", err)
		}
	}
}
