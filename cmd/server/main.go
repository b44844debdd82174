package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/marden/bookpool/internal/api"
	"github.com/marden/bookpool/internal/auth"
	"github.com/marden/bookpool/internal/database"
	"github.com/marden/bookpool/internal/mailer"
	"github.com/marden/bookpool/internal/provision"
	"github.com/marden/bookpool/internal/tasks"
	"github.com/marden/bookpool/pkg/config"
	"github.com/marden/bookpool/pkg/crypto"
	"github.com/marden/bookpool/pkg/queue"
	"github.com/marden/bookpool/pkg/util"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting bookpool server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if cfg.Server.IsDevelopment() {
		if err := database.AutoMigrate(db); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	// Connect to Redis. The server degrades without it: billing webhook
	// dedupe is skipped and background tasks are not enqueued.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient = nil
	}

	// Initialize Asynq client for background job enqueuing. Without Redis
	// tasks are dropped rather than crashing the request path.
	var asynqClient *asynq.Client
	var enqueuer tasks.Enqueuer = tasks.Discard{}
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
		enqueuer = asynqClient
	}

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)

	// Initialize encryptor for calendar credential storage
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - credentials will be lost on restart")
	}

	// Transactional mail: real SMTP in production, log-only in development
	var m mailer.Mailer
	if cfg.Server.IsDevelopment() {
		m = mailer.NewLog(logger)
	} else {
		m = mailer.NewSMTP(&cfg.Email, logger)
	}

	// DNS provisioner for organization subdomains
	provisioner, err := provision.New(&cfg.DNS, logger)
	if err != nil {
		logger.Error("failed to create dns provisioner", "error", err)
		os.Exit(1)
	}

	var allowedOrigins []string
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		allowedOrigins = strings.Split(origins, ",")
	}

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		Config:         cfg,
		JWTService:     jwtService,
		AuthService:    authService,
		Encryptor:      encryptor,
		Queue:          enqueuer,
		Mailer:         m,
		Provisioner:    provisioner,
		AllowedOrigins: allowedOrigins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Close Asynq client
	if asynqClient != nil {
		asynqClient.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
