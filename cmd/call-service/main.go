package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"medconnect-backend/internal/config"
	intDatabase "medconnect-backend/internal/database"
	callHandler "medconnect-backend/internal/handler/http/call"
	consultationHandler "medconnect-backend/internal/handler/http/consultation"
	pushHandler "medconnect-backend/internal/handler/http/push"
	wsHandler "medconnect-backend/internal/handler/ws"
	"medconnect-backend/internal/middleware"
	"medconnect-backend/internal/repository/cassandra"
	"medconnect-backend/internal/repository/cockroach"
	redisRepo "medconnect-backend/internal/repository/redis"
	callService "medconnect-backend/internal/service/call"
	consultationService "medconnect-backend/internal/service/consultation"
	notificationService "medconnect-backend/internal/service/notification"
	storageService "medconnect-backend/internal/service/storage"
	"medconnect-backend/pkg/constants"
	"medconnect-backend/pkg/jwt"
	"medconnect-backend/pkg/logger"
	"medconnect-backend/pkg/metrics"
	"medconnect-backend/pkg/push"
)

func main() {
	ctx := context.Background()

	// 1. Load and validate configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 2. Setup JWT Manager
	jwtManager := jwt.NewJWTManager(cfg.JWTSecret, constants.AccessTokenExpiry)

	// 3. Connect to CockroachDB with exponential backoff retry
	var db *intDatabase.DB
	var err error

	maxRetries := 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	db, err = intDatabase.NewDB(ctx, cfg.DBConnString(), intDatabase.DefaultDBConfig())
	if err != nil {
		for attempt := 2; attempt <= maxRetries; attempt++ {
			delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
			if delay > maxDelay {
				delay = maxDelay
			}
			log.Printf("⚠️  CockroachDB connection attempt %d failed: %v. Retrying in %v...", attempt-1, err, delay)
			time.Sleep(delay)

			db, err = intDatabase.NewDB(ctx, cfg.DBConnString(), intDatabase.DefaultDBConfig())
			if err == nil {
				break
			}
		}
	}

	if err != nil {
		log.Printf("Warning: Failed to connect to CockroachDB after %d attempts: %v", maxRetries, err)
		log.Println("Running in limited mode: signaling only, no call history or consultation records")
	} else {
		defer db.Close()
		log.Println("✅ Connected to CockroachDB")
	}

	// 4. Initialize Redis with degraded mode support
	intDatabase.InitRedisMetrics()

	redisDB, _ := intDatabase.NewRedisDB(&intDatabase.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       0,
		PoolSize: 10,
		Timeout:  5 * time.Second,
	})
	defer redisDB.Close()

	if err := redisDB.SafePing(ctx); err != nil {
		log.Printf("Warning: Redis unreachable, starting in degraded mode: %v", err)
	} else {
		log.Println("✅ Connected to Redis")
	}

	go redisDB.StartHealthCheck(ctx, 10*time.Second)

	// 5. Connect to Cassandra for the signaling event archive (optional)
	var eventRepo callService.EventRepository
	if len(cfg.CassandraHosts) > 0 {
		cassandraDB, err := intDatabase.NewCassandraDB(cfg.CassandraHosts, cfg.CassandraKeyspace)
		if err != nil {
			log.Printf("Warning: Failed to connect to Cassandra: %v. Call events will not be archived.", err)
		} else {
			defer cassandraDB.Close()
			eventRepo = cassandra.NewCallEventRepository(cassandraDB.Session)
			log.Println("✅ Connected to Cassandra")
		}
	}

	// 6. Initialize MinIO-backed attachment storage (optional)
	var attachmentStore *storageService.Service
	if cfg.MinIOEndpoint != "" {
		attachmentStore, err = storageService.NewService(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOSecure)
		if err != nil {
			log.Printf("Warning: Failed to initialize attachment storage: %v", err)
			attachmentStore = nil
		} else {
			log.Println("✅ Connected to MinIO")
		}
	}

	// 7. Initialize Push Service
	pushProvider, err := push.NewProvider()
	if err != nil {
		if cfg.IsProduction() {
			log.Fatalf("Failed to initialize push provider: %v", err)
		}
		log.Printf("Warning: Failed to initialize push provider: %v. Falling back to mock.", err)
		pushProvider = &push.MockProvider{}
	}

	appMetrics := metrics.NewMetrics(cfg.ServiceName)

	tokenRepo := redisRepo.NewDeviceTokenRepository(redisDB)
	pushSvc := push.NewService(pushProvider, tokenRepo, appMetrics)
	notificationSvc := notificationService.NewService(pushSvc)

	// 8. Initialize call and consultation services (require CockroachDB)
	var callSvc *callService.Service
	var consultationSvc *consultationService.Service
	if db != nil {
		callSvc = callService.NewService(cockroach.NewCallRepository(db.Pool), eventRepo)
		consultationSvc = consultationService.NewService(cockroach.NewConsultationRepository(db.Pool))
	}

	// 9. Initialize WebSocket signaling hub
	presenceRepo := redisRepo.NewPresenceRepository(redisDB)

	var archiver wsHandler.EventArchiver
	if callSvc != nil {
		archiver = callSvc
	}
	hub := wsHandler.NewSignalHub(redisDB, presenceRepo, notificationSvc, archiver)

	// 10. Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.SetTrustedProxies(nil)

	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)
	timeoutMiddleware := middleware.NewTimeoutMiddleware(&middleware.TimeoutConfig{DefaultTimeout: cfg.RequestTimeout})
	rateLimiter := middleware.NewAdvancedRateLimiter(redisDB)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())
	router.Use(timeoutMiddleware.Middleware())

	router.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":  "healthy",
			"service": cfg.ServiceName,
			"time":    time.Now().UTC(),
		}
		if count, err := presenceRepo.GetOnlineCount(c.Request.Context()); err == nil {
			body["online_users"] = count
		}
		c.JSON(200, body)
	})
	router.GET("/metrics", middleware.MetricsHandler())

	revocationChecker := middleware.NewRedisRevocationChecker(redisDB)
	auth := middleware.AuthMiddleware(jwtManager, revocationChecker)

	// WebSocket endpoint for call signaling
	router.GET("/ws/signal", auth, hub.ServeWS)

	v1 := router.Group("/v1")
	v1.Use(auth)
	v1.Use(rateLimiter.Middleware())

	// Call history and consultation records ride CockroachDB; shed
	// their requests when the pool is near exhaustion. Push token
	// routes are Redis-backed and stay out of the guard.
	var poolGuard gin.HandlerFunc
	if db != nil {
		poolGuard = middleware.NewDBPoolGuard(db).Middleware()
	}

	if callSvc != nil {
		callHdlr := callHandler.NewHandler(callSvc)
		calls := v1.Group("/calls")
		calls.Use(poolGuard)
		{
			calls.GET("", callHdlr.History)
			calls.GET("/:id", callHdlr.GetCall)
		}
	}

	if consultationSvc != nil {
		consultationHdlr := consultationHandler.NewHandler(consultationSvc, attachmentStore)
		clinicianOnly := middleware.RequireRole("clinician")
		consultations := v1.Group("/consultations")
		consultations.Use(poolGuard)
		{
			consultations.POST("", clinicianOnly, consultationHdlr.CreateRecord)
			consultations.GET("", consultationHdlr.ListRecords)
			consultations.GET("/:id", consultationHdlr.GetRecord)
			consultations.POST("/attachments", clinicianOnly, consultationHdlr.CreateAttachmentUploadURL)
			consultations.GET("/:id/attachments", consultationHdlr.GetAttachmentDownloadURL)
		}
	}

	pushHdlr := pushHandler.NewHandler(pushSvc)
	tokens := v1.Group("/push/tokens")
	{
		tokens.POST("", pushHdlr.RegisterToken)
		tokens.GET("", pushHdlr.GetTokens)
		tokens.DELETE("", pushHdlr.UnregisterToken)
		tokens.DELETE("/all", pushHdlr.UnregisterAllTokens)
	}

	// 11. Start server with graceful shutdown
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Call Service starting on port %d\n", cfg.Port)
		log.Println("📡 Call signaling: /ws/signal")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
