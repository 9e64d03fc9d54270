package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/callrecon/backend/src/config"
	"github.com/username/callrecon/backend/src/database"
	"github.com/username/callrecon/backend/src/feeds"
	"github.com/username/callrecon/backend/src/handlers"
	"github.com/username/callrecon/backend/src/logger"
	"github.com/username/callrecon/backend/src/matching"
	"github.com/username/callrecon/backend/src/models"
	"github.com/username/callrecon/backend/src/scheduler"
	"github.com/username/callrecon/backend/src/security"
	"github.com/username/callrecon/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("callrecon backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing summary cache...")
	summaryCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	alertNotifier := services.NewAlertNotifier()

	feedAClient := feeds.NewFeedAClient(config.Cfg.FeedABaseURL, config.Cfg.FeedAAPIKey, config.Cfg.FeedPageSize)
	feedBClient := feeds.NewFeedBClient(config.Cfg.FeedBBaseURL, config.Cfg.FeedBAPIKey, config.Cfg.FeedPageSize)
	callStore := database.NewCallStore()

	callMatcher := matching.NewCallMatcher(matching.MatcherConfig{
		WindowMinutes:      config.Cfg.MatchWindowMinutes,
		PayoutTolerance:    config.Cfg.PayoutTolerance,
		CountryCallingCode: config.Cfg.CountryCallingCode,
	})
	adjMatcher := matching.NewAdjustmentMatcher(
		config.Cfg.AdjustmentWindowMinutes,
		config.Cfg.PayoutTolerance,
		config.Cfg.CountryCallingCode,
	)

	reconciliationService := services.NewReconciliationService(
		feedAClient, feedBClient, callStore, alertNotifier,
		callMatcher, adjMatcher,
		config.Cfg.CountryCallingCode,
		config.Cfg.AlertErrorThreshold,
		summaryCache,
	)

	reconciliationHandler := handlers.NewReconciliationHandler(reconciliationService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/reconcile",
		handlers.AuthMiddleware(authService, reconciliationHandler.HandleTriggerReconciliation))
	apiRouter.HandleFunc("GET /api/runs", reconciliationHandler.HandleGetRuns)
	apiRouter.HandleFunc("GET /api/unmatched", reconciliationHandler.HandleGetUnmatched)

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "callrecon backend is running"})
			return
		}
		logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
		http.NotFound(w, r)
	})

	logger.L.Info("Starting reconciliation scheduler...")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(
		reconciliationService,
		config.Cfg.SyncInterval,
		config.Cfg.SyncLookbackDays,
		[]models.Category{models.CategoryInbound, models.CategoryTransfer},
	)
	go sched.Run(ctx)

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      rateLimitMiddleware(rootMux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.L.Error("Server shutdown failed", "error", err)
		}
	}()

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else {
		logger.L.Info("Server stopped gracefully.")
	}
}
