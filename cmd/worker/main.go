package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/marden/bookpool/internal/database"
	"github.com/marden/bookpool/internal/mailer"
	"github.com/marden/bookpool/internal/onboarding"
	"github.com/marden/bookpool/internal/provision"
	"github.com/marden/bookpool/internal/tasks"
	"github.com/marden/bookpool/internal/teams"
	"github.com/marden/bookpool/internal/webhooks"
	"github.com/marden/bookpool/pkg/config"
	"github.com/marden/bookpool/pkg/queue"
	"github.com/marden/bookpool/pkg/util"
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

	logger.Info("starting bookpool worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
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

	// Create task handler and its dependencies
	teamService := teams.NewService(db, logger, m)
	finalizer := onboarding.NewFinalizer(db, logger, m, provisioner, teamService)
	dispatcher := webhooks.NewDispatcher(db, logger)
	handler := tasks.NewHandler(db, logger, m, dispatcher, finalizer)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, 10)

	// Schedule the periodic onboarding sweep
	if err := util.ValidateCronExpr(cfg.Onboarding.SweepCron); err != nil {
		logger.Error("invalid onboarding sweep cron", "expr", cfg.Onboarding.SweepCron, "error", err)
		os.Exit(1)
	}
	scheduler := queue.NewScheduler(&cfg.Redis)
	if _, err := scheduler.Register(cfg.Onboarding.SweepCron, tasks.NewOnboardingSweepTask()); err != nil {
		logger.Error("failed to register onboarding sweep", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	nextSweep, _ := util.NextCronTime(cfg.Onboarding.SweepCron, time.Now())
	logger.Info("worker started, waiting for tasks...",
		"sweep_cron", cfg.Onboarding.SweepCron,
		"next_sweep", nextSweep,
	)

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
