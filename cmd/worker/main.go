package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"matrix-sync/internal/blockchain"
	"matrix-sync/internal/cache"
	"matrix-sync/internal/config"
	"matrix-sync/internal/database"
	"matrix-sync/internal/jobs"
	"matrix-sync/internal/repository"
	"matrix-sync/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.Jobs.Async {
		log.Fatal("Worker needs REDIS_ADDR and JOBS_ASYNC=true")
	}

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	dialCtx, cancelDial := context.WithTimeout(context.Background(), cfg.Chain.CallTimeout)
	contractClient, ethClient, err := blockchain.Dial(
		dialCtx,
		cfg.Chain.RPCURL,
		cfg.Chain.RegistrationContractAddress,
		cfg.Chain.BookingContractAddress,
		cfg.Chain.TokenDecimals,
		cfg.Chain.CallTimeout,
	)
	cancelDial()
	if err != nil {
		log.Fatalf("Failed to connect to chain: %v", err)
	}
	defer ethClient.Close()

	repo := repository.NewRepository(database.GetDB())
	referralService := services.NewReferralService(repo, contractClient)

	var invalidator jobs.CacheInvalidator
	if c := cache.NewReportCache(rdb, cfg.App.ReportCacheTTL); c != nil {
		invalidator = c
	}

	srv := jobs.NewServer(cfg)
	mux := jobs.NewServeMux(jobs.NewHandler(referralService, referralService, invalidator))

	scheduler := asynq.NewScheduler(jobs.RedisOpt(cfg), &asynq.SchedulerOpts{Location: time.UTC})
	if err := jobs.RegisterSchedules(scheduler, cfg.Jobs.ReconcileCron); err != nil {
		log.Fatalf("Failed to register schedules: %v", err)
	}

	if err := srv.Start(mux); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	log.Printf("Worker started (concurrency %d, reconcile %q)", cfg.Jobs.Concurrency, cfg.Jobs.ReconcileCron)

	// One sweep on boot so counters are fresh before the first scheduled run
	client := asynq.NewClient(jobs.RedisOpt(cfg))
	defer client.Close()
	if err := jobs.NewEnqueuer(client, cfg.Jobs.BackfillUniqueTTL).EnqueueReconcile(context.Background()); err != nil {
		log.Printf("Warning: failed to enqueue startup reconcile: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	scheduler.Shutdown()
	srv.Shutdown()
	log.Println("Worker exited")
}
