package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"matrix-sync/internal/config"

	"github.com/hibiken/asynq"
)

// RedisOpt builds the asynq connection options from the shared redis settings
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// Enqueuer submits maintenance tasks to the asynq queue
type Enqueuer struct {
	client    *asynq.Client
	uniqueTTL time.Duration
}

// NewEnqueuer creates an enqueuer over client
func NewEnqueuer(client *asynq.Client, uniqueTTL time.Duration) *Enqueuer {
	return &Enqueuer{client: client, uniqueTTL: uniqueTTL}
}

// TriggerBackfill enqueues a backfill run. A run already pending is reused.
func (e *Enqueuer) TriggerBackfill(ctx context.Context) error {
	info, err := e.client.EnqueueContext(ctx, NewBackfillTask(),
		asynq.Queue(QueueMaintenance),
		asynq.Unique(e.uniqueTTL),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue backfill: %w", err)
	}

	log.Printf("[Jobs] Enqueued backfill task %s", info.ID)
	return nil
}

// EnqueueReconcile enqueues a reconciliation sweep
func (e *Enqueuer) EnqueueReconcile(ctx context.Context) error {
	info, err := e.client.EnqueueContext(ctx, NewReconcileTask(),
		asynq.Queue(QueueMaintenance),
		asynq.Unique(e.uniqueTTL),
		asynq.MaxRetry(1),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue reconcile: %w", err)
	}

	log.Printf("[Jobs] Enqueued reconcile task %s", info.ID)
	return nil
}

// NewServer builds the asynq worker server
func NewServer(cfg *config.Config) *asynq.Server {
	return asynq.NewServer(RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.Jobs.Concurrency,
		Queues: map[string]int{
			QueueMaintenance: 1,
		},
	})
}

// RegisterSchedules adds the periodic reconciliation sweep to scheduler
func RegisterSchedules(scheduler *asynq.Scheduler, cronSpec string) error {
	entryID, err := scheduler.Register(cronSpec, NewReconcileTask(),
		asynq.Queue(QueueMaintenance),
		asynq.Unique(time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule reconcile %q: %w", cronSpec, err)
	}

	log.Printf("[Jobs] Reconcile scheduled %q (entry %s)", cronSpec, entryID)
	return nil
}
