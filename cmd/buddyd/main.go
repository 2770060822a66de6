package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mentorbuddy-backend/config"
	"mentorbuddy-backend/internal/api"
	"mentorbuddy-backend/internal/booking"
	"mentorbuddy-backend/internal/calls"
	"mentorbuddy-backend/internal/countdown"
	"mentorbuddy-backend/internal/db"
	"mentorbuddy-backend/internal/logging"
	"mentorbuddy-backend/internal/mentorapi"
	"mentorbuddy-backend/internal/notification"
	"mentorbuddy-backend/internal/slotcache"
	"mentorbuddy-backend/internal/store"
	"mentorbuddy-backend/internal/timers"
)

func main() {
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

	logger, err := logging.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	logger.Info("configuration loaded", zap.String("path", configPath))

	if cfg.Upstream.BaseURL == "" {
		logger.Fatal("upstream.base_url must be configured")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	appStore := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Web push is optional; without keys warnings stay in-page.
	var notifier timers.Notifier
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, logger)
		pool.Start(ctx)
		notifier = pool
		logger.Info("notification worker pool started", zap.Int("size", cfg.WorkerPool.Size))
	} else {
		logger.Warn("VAPID keys are not configured; push warnings are disabled")
	}

	upstream := mentorapi.New(cfg.Upstream, logger)
	userID := ""
	if cfg.Upstream.Token != "" {
		userID, err = mentorapi.UserIDFromToken(cfg.Upstream.Token)
		if err != nil {
			logger.Warn("could not read the user id from the upstream token", zap.Error(err))
		}
	} else {
		logger.Warn("upstream.token is not set; user-specific endpoints are unavailable")
	}

	slots, closeCache := newSlotCache(ctx, cfg.Cache, logger)
	defer closeCache()

	engine := countdown.NewEngine(countdown.NewWallClock)
	registry := timers.NewRegistry(engine, notifier, cfg.Timer.DefaultThresholds, logger)
	registry.SetRetention(cfg.Timer.Retention)
	bookingSvc := booking.NewService(upstream, slots, appStore, logger)
	bookingSvc.SetFlowTTL(cfg.Booking.FinishedFlowTTL, cfg.Booking.IdleFlowTTL)

	monitor := calls.NewMonitor(cfg.Monitor, upstream, registry, userID, logger)
	go monitor.Run(ctx)

	loc, err := time.LoadLocation(cfg.Monitor.Timezone)
	if err != nil {
		loc = time.UTC
	}

	router := api.NewRouter(api.Deps{
		Store:          appStore,
		WebPush:        webpushOptions,
		Booking:        bookingSvc,
		Timers:         registry,
		Upstream:       upstream,
		Location:       loc,
		Logger:         logger,
		UserID:         userID,
		RateLimit:      cfg.Server.RateLimitPerSec,
		RateBurst:      cfg.Server.RateLimitBurst,
		CacheTTL:       cfg.Server.CacheTTL,
		IPHeader:       cfg.Server.RequestIPHeader,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
	}
	cancel()
	registry.CancelAll()

	logger.Info("server gracefully stopped")
}

// newSlotCache picks Redis when an address is configured and falls back to
// the in-process cache when Redis is unreachable.
func newSlotCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (slotcache.Cache, func()) {
	if cfg.RedisAddr == "" {
		return slotcache.NewMemory(cfg.SlotTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis is unreachable; using the in-memory slot cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return slotcache.NewMemory(cfg.SlotTTL), func() {}
	}
	logger.Info("slot cache backed by redis", zap.String("addr", cfg.RedisAddr))
	return slotcache.NewRedis(client, cfg.SlotTTL), func() { _ = client.Close() }
}
