package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/digital-banking/internal/auth"
	"github.com/Dan9191/digital-banking/internal/config"
	"github.com/Dan9191/digital-banking/internal/handler"
	"github.com/Dan9191/digital-banking/internal/integrations/cbr"
	"github.com/Dan9191/digital-banking/internal/models"
	"github.com/Dan9191/digital-banking/internal/repository"
	"github.com/Dan9191/digital-banking/internal/scheduler"
	"github.com/Dan9191/digital-banking/internal/service"
	"github.com/Dan9191/digital-banking/internal/utils/email"
	"github.com/Dan9191/digital-banking/internal/utils/telegram"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Initialize storage
	var (
		store repository.Store
		users repository.UserStore
	)
	switch cfg.Store {
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("Failed to ping database: %v", err)
		}
		if err := repository.Migrate(context.Background(), db); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		store = repository.NewPostgresStore(db)
		users = repository.NewPostgresUserStore(db)
	default:
		store = repository.NewMemoryStore()
		users = repository.NewMemoryUserStore()
	}
	logger.Infof("Using %s store", cfg.Store)

	// Initialize layers
	gate := auth.NewGate(users, []byte(cfg.JWTSecret), logger, auth.WithTTL(cfg.TokenTTL))
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	if err := gate.SeedUser(seedCtx, "user1", cfg.UserPassword, models.RoleUser); err != nil {
		logger.Fatalf("Failed to seed user1: %v", err)
	}
	if err := gate.SeedUser(seedCtx, "admin", cfg.AdminPassword, models.RoleUser, models.RoleAdmin); err != nil {
		logger.Fatalf("Failed to seed admin: %v", err)
	}
	cancelSeed()

	opts := []service.Option{
		service.WithStoreTimeout(cfg.StoreTimeout),
		service.WithRateSource(cbr.NewClient(cfg.CBRURL, logger)),
	}
	if cfg.NotificationsEnabled() {
		opts = append(opts, service.WithNotifier(email.NewSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     strconv.Itoa(cfg.SMTPPort),
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SenderEmail,
		}, logger)))
	} else {
		logger.Info("SMTP not configured, operation notifications disabled")
	}
	if cfg.TelegramToken != "" {
		feed, err := telegram.NewFeed(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Warnf("Telegram feed disabled: %v", err)
		} else {
			opts = append(opts, service.WithNotifier(feed))
		}
	}
	svc := service.NewService(store, gate, logger, opts...)
	h := handler.NewHandler(svc, logger)

	// Scheduled maintenance
	jobs := scheduler.New(store, logger, cfg.RequestRetention)
	if err := jobs.Register(cfg.PruneSchedule, cfg.StatsSchedule); err != nil {
		logger.Fatalf("Failed to schedule jobs: %v", err)
	}
	jobs.Start()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      h.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown: %v", err)
	}
	jobs.Stop(shutdownCtx)
	svc.Wait()
}
