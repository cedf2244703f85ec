package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"gate-access-backend/config"
	"gate-access-backend/internal/api"
	"gate-access-backend/internal/db"
	"gate-access-backend/internal/evidence"
	"gate-access-backend/internal/gate"
	"gate-access-backend/internal/logger"
	"gate-access-backend/internal/notification"
	"gate-access-backend/internal/recognition"
	"gate-access-backend/internal/store"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to read .env: %v", err)
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	logg := logger.New(cfg.Log)
	slog.SetDefault(logg)
	logg.Info("configuration loaded", "path", configPath)

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logg.Warn("VAPID keys are not configured; alerts are stored but not pushed")
	}

	if cfg.Server.AdminToken == "" {
		logg.Warn("admin token is not configured; the admin API is disabled")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logg.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	appStore := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alerts := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, webpushOptions, logg)
	alerts.Start(ctx)

	captures, err := evidence.New(cfg.Evidence)
	if err != nil {
		logg.Error("failed to initialize evidence store", "error", err)
		os.Exit(1)
	}

	deps := gate.Deps{Evidence: captures, Notifier: alerts}
	if cfg.Recognition.URL != "" {
		client := recognition.NewClient(cfg.Recognition, cfg.Gate.RecognitionTimeout)
		deps.Plates = client
		deps.Faces = client
	} else {
		logg.Warn("recognition service is not configured; plates must be entered manually")
	}

	engine, err := gate.NewEngine(cfg.Gate, appStore, deps, logg)
	if err != nil {
		logg.Error("failed to initialize gate engine", "error", err)
		os.Exit(1)
	}

	// Reflect a lock that survived the restart in the gauge and the log.
	if lock, err := engine.LockStatus(ctx); err == nil && lock.Locked {
		logg.Warn("station lock is engaged", "reason", lock.Reason)
	}

	router := api.NewRouter(cfg.Server, api.NewHandler(engine, appStore, webpushOptions, logg))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logg.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("HTTP server ListenAndServe", "error", err)
			os.Exit(1)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logg.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error("HTTP server Shutdown", "error", err)
	}
	cancel()

	logg.Info("server gracefully stopped")
}
