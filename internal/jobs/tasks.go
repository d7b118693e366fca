package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"matrix-sync/internal/services"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeBackfillMissingUsers = "referral:backfill"
	TypeReconcileTeams       = "referral:reconcile"

	// QueueMaintenance carries the repair tasks of the referral forest
	QueueMaintenance = "maintenance"
)

// Backfiller creates users missing from the local referral forest
type Backfiller interface {
	BackfillMissingUsers(ctx context.Context) (int, error)
}

// Reconciler recomputes the team counters of every user
type Reconciler interface {
	ReconcileTeams(ctx context.Context) error
}

// CacheInvalidator drops derived views after a reconciliation sweep
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// NewBackfillTask returns the backfill task. The payload is empty so that
// asynq.Unique collapses concurrent requests into one run.
func NewBackfillTask() *asynq.Task {
	return asynq.NewTask(TypeBackfillMissingUsers, nil)
}

// NewReconcileTask returns the reconciliation sweep task
func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TypeReconcileTeams, nil)
}

// Handler processes maintenance tasks
type Handler struct {
	backfiller Backfiller
	reconciler Reconciler
	cache      CacheInvalidator
}

// NewHandler creates a task handler. cache may be nil.
func NewHandler(backfiller Backfiller, reconciler Reconciler, cache CacheInvalidator) *Handler {
	return &Handler{backfiller: backfiller, reconciler: reconciler, cache: cache}
}

// NewServeMux routes every maintenance task type to h
func NewServeMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBackfillMissingUsers, h.HandleBackfill)
	mux.HandleFunc(TypeReconcileTeams, h.HandleReconcile)
	return mux
}

// HandleBackfill runs one backfill pass. Users that do not exist on chain are not retried.
func (h *Handler) HandleBackfill(ctx context.Context, t *asynq.Task) error {
	runID := uuid.NewString()
	start := time.Now()
	log.Printf("[Backfill %s] Starting", runID)

	created, err := h.backfiller.BackfillMissingUsers(ctx)
	log.Printf("[Backfill %s] Created %d users in %v", runID, created, time.Since(start))
	if err == nil {
		return nil
	}

	if errors.Is(err, services.ErrNotFound) && !errors.Is(err, services.ErrUpstreamUnavailable) {
		return fmt.Errorf("backfill %s: %v: %w", runID, err, asynq.SkipRetry)
	}
	return fmt.Errorf("backfill %s: %w", runID, err)
}

// HandleReconcile runs one reconciliation sweep
func (h *Handler) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	runID := uuid.NewString()
	start := time.Now()
	log.Printf("[Reconcile %s] Starting", runID)

	if err := h.reconciler.ReconcileTeams(ctx); err != nil {
		return fmt.Errorf("reconcile %s: %w", runID, err)
	}

	if h.cache != nil {
		if err := h.cache.InvalidateAll(ctx); err != nil {
			log.Printf("[Reconcile %s] Failed to invalidate report cache: %v", runID, err)
		}
	}

	log.Printf("[Reconcile %s] Finished in %v", runID, time.Since(start))
	return nil
}
