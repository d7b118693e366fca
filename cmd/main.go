package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"matrix-sync/internal/auth"
	"matrix-sync/internal/blockchain"
	"matrix-sync/internal/cache"
	"matrix-sync/internal/config"
	"matrix-sync/internal/database"
	"matrix-sync/internal/handlers"
	"matrix-sync/internal/jobs"
	"matrix-sync/internal/repository"
	"matrix-sync/internal/services"
	"matrix-sync/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Redis is optional: cache, rate limit store and job queue
	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	// Connect to the chain
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

	if diag := contractClient.RunDiagnostics(context.Background()); !diag.Healthy() {
		log.Printf("Warning: chain diagnostics failed (rpc=%v registration=%v booking=%v): %s%s",
			diag.RPCConnected, diag.RegistrationDeployed, diag.BookingDeployed, diag.RPCError, diag.ContractError)
	}

	overrides, err := services.LoadIncomeOverrides(cfg.App.IncomeOverridesFile)
	if err != nil {
		log.Fatalf("Failed to load income overrides: %v", err)
	}

	// Initialize repository
	repo := repository.NewRepository(database.GetDB())

	// Optional collaborators stay nil interfaces when unconfigured
	var reportCache services.ReportCache
	var invalidator handlers.CacheInvalidator
	var jobCache jobs.CacheInvalidator
	if c := cache.NewReportCache(rdb, cfg.App.ReportCacheTTL); c != nil {
		reportCache, invalidator, jobCache = c, c, c
	}

	var notifier services.SignupNotifier
	bot, err := telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.SignupChatID)
	if err != nil {
		log.Printf("Warning: signup notifications disabled: %v", err)
	} else if bot != nil {
		notifier = bot
	}

	// Initialize services
	referralService := services.NewReferralService(repo, contractClient)

	var backfillTrigger services.BackfillTrigger
	var reconcileJob *jobs.ReconcileJob
	if cfg.Jobs.Async {
		client := asynq.NewClient(jobs.RedisOpt(cfg))
		defer client.Close()
		backfillTrigger = jobs.NewEnqueuer(client, cfg.Jobs.BackfillUniqueTTL)
		log.Println("Background jobs dispatched to the worker queue")
	} else {
		backfillTrigger = jobs.NewInlineTrigger(referralService)
		reconcileJob = jobs.NewReconcileJob(referralService, jobCache, cfg.Jobs.ReconcileInterval)
		go reconcileJob.Start()
		log.Printf("Background jobs running in-process (reconcile every %s)", cfg.Jobs.ReconcileInterval)
	}

	authService := services.NewAuthService(repo, contractClient, referralService, backfillTrigger, notifier)
	incomeService := services.NewIncomeService(repo, contractClient, cfg.App.IncomeDedupByHash)
	orderService := services.NewOrderService(repo, contractClient, referralService)
	userService := services.NewUserService(repo, contractClient, overrides, reportCache)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	eventsHandler := handlers.NewEventsHandler(incomeService, orderService)
	userHandler := handlers.NewUserHandler(userService)
	adminHandler := handlers.NewAdminHandler(referralService, invalidator, contractClient)

	// Set up Gin router
	router := gin.Default()

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000", // Local development
		"http://localhost:5173", // Vite dev server
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if cfg.Server.FrontendURL != "" {
		allowedOrigins = append(allowedOrigins, cfg.Server.FrontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", auth.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", auth.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(auth.RequestIDMiddleware())

	// Per-IP rate limit backed by redis
	limited := []gin.HandlerFunc{}
	if rdb != nil && cfg.Server.RateLimit > 0 {
		store := ratelimit.RedisStore(&ratelimit.RedisOptions{
			RedisClient: rdb,
			Rate:        time.Second,
			Limit:       uint(cfg.Server.RateLimit),
		})
		limited = append(limited, ratelimit.RateLimiter(store, &ratelimit.Options{
			ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
				c.String(http.StatusTooManyRequests, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
			},
			KeyFunc: func(c *gin.Context) string {
				return c.ClientIP()
			},
		}))
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Authentication routes (public)
	authRoutes := router.Group("/auth", limited...)
	{
		authRoutes.POST("/wallet", authHandler.WalletLogin)
		authRoutes.POST("/owner", auth.AdminKeyMiddleware(cfg.Server.AdminKey), authHandler.RegisterOwner)
		authRoutes.GET("/me", auth.AuthMiddleware(), authHandler.GetMe)
	}

	// Contract event ingestion (shared secret)
	events := router.Group("/api/events")
	events.Use(auth.WebhookMiddleware(cfg.Server.WebhookSecret))
	{
		events.POST("/order", eventsHandler.RecordOrder)
		events.POST("/income", eventsHandler.RecordIncome)
	}

	// API routes (protected)
	api := router.Group("/api", limited...)
	api.Use(auth.AuthMiddleware())
	{
		userRoutes := api.Group("/users")
		{
			userRoutes.GET("/:id", userHandler.GetUser)
			userRoutes.GET("/:id/generations", userHandler.GetGenerations)
			userRoutes.GET("/:id/slots", userHandler.GetSlots)
			userRoutes.GET("/:id/partners", userHandler.GetPartners)
		}
		api.GET("/wallets/:address", userHandler.GetUserByWallet)
	}

	// Admin routes (protected + admin only)
	admin := router.Group("/api/admin")
	admin.Use(auth.AuthMiddleware())
	admin.Use(auth.AdminMiddleware())
	{
		admin.POST("/reconcile", adminHandler.Reconcile)
		admin.POST("/backfill", adminHandler.Backfill)
		admin.GET("/missing", adminHandler.Missing)
		admin.GET("/diagnostics", adminHandler.Diagnostics)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		log.Printf("Health check: http://localhost:%s/health", cfg.Server.Port)
		log.Printf("Wallet auth: POST http://localhost:%s/auth/wallet", cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if reconcileJob != nil {
		reconcileJob.Stop()
	}

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
