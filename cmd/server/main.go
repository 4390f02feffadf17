package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go-autoparts-pos/internal/adjustments"
	"go-autoparts-pos/internal/ai"
	"go-autoparts-pos/internal/auth"
	"go-autoparts-pos/internal/cache"
	"go-autoparts-pos/internal/config"
	"go-autoparts-pos/internal/database"
	"go-autoparts-pos/internal/events"
	"go-autoparts-pos/internal/handlers"
	"go-autoparts-pos/internal/logger"
	"go-autoparts-pos/internal/returns"
	"go-autoparts-pos/internal/sales"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	defer func() { _ = zlog.Sync() }()

	db, err := database.Connect(cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	store := database.NewStore(db)
	defer func() { _ = store.Close() }()

	counts := newCountCache(cfg.Redis, zlog)
	if closer, ok := counts.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	publisher := newPublisher(cfg.Kafka, zlog)
	defer func() { _ = publisher.Close() }()

	returnsSvc := returns.NewService(returns.Deps{
		Tx:       store,
		Sales:    store.Sales,
		Products: store.Products,
		Ledger:   store.Products,
		Returns:  store.Returns,
		Audit:    store.Audit,
		Cache:    counts,
		Events:   publisher,
		Logger:   zlog.Named("returns"),
	}, returns.Options{
		Policy:            returns.NewPolicy(cfg.Returns.ApprovalThreshold),
		EnforceReturnable: cfg.Returns.EnforceReturnable,
		LockSaleRows:      cfg.Returns.LockSaleRows,
		PendingCountTTL:   cfg.Returns.PendingCountTTL,
		Producer:          cfg.App.Name,
	})
	adjustmentsSvc := adjustments.NewService(adjustments.Deps{
		Tx:          store,
		Products:    store.Products,
		Ledger:      store.Products,
		Adjustments: store.Adjustments,
		Audit:       store.Audit,
		Cache:       counts,
		Events:      publisher,
		Logger:      zlog.Named("adjustments"),
	}, adjustments.Options{
		ApprovalThreshold: cfg.Adjustments.ApprovalThreshold,
		PendingCountTTL:   cfg.Adjustments.PendingCountTTL,
		Producer:          cfg.App.Name,
	})
	salesSvc := sales.NewService(sales.Deps{
		Tx:       store,
		Sales:    store.Sales,
		Products: store.Products,
		Ledger:   store.Products,
		Returns:  store.Returns,
		Audit:    store.Audit,
		Logger:   zlog.Named("sales"),
	}, cfg.Sales.TaxRate)

	var assistant handlers.Assistant
	if cfg.AI.GeminiAPIKey != "" {
		assistant = ai.NewAgent(cfg.AI, ai.Deps{
			Inventory: store.Products,
			Reports:   store.Reports,
			Returns:   returnsSvc,
			Logger:    zlog.Named("ai"),
		})
	} else {
		zlog.Warn("POS_AI_GEMINI_API_KEY is not set, /api/ask is disabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logger.RequestID(), logger.GinMiddleware(zlog), logger.Recovery(zlog))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", logger.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", logger.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.New(handlers.Deps{
		Store:       store,
		Returns:     returnsSvc,
		Adjustments: adjustmentsSvc,
		Sales:       salesSvc,
		Tokens:      auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Expiration),
		Assistant:   assistant,
		App:         cfg.App,
		Logger:      zlog,
	}).RegisterRoutes(r)

	if err := os.MkdirAll(cfg.App.UploadDir, 0o755); err != nil {
		zlog.Fatal("Failed to create upload dir", zap.Error(err))
	}
	r.Static("/uploads", cfg.App.UploadDir)

	// React build: static assets plus the SPA catch-all, so a refresh on
	// "/returns" still serves index.html.
	r.Static("/assets", filepath.Join(cfg.App.WebDir, "assets"))
	r.StaticFile("/vite.svg", filepath.Join(cfg.App.WebDir, "vite.svg"))
	r.NoRoute(func(c *gin.Context) {
		c.File(filepath.Join(cfg.App.WebDir, "index.html"))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		zlog.Info("Server starting", zap.String("addr", srv.Addr), zap.String("base_url", cfg.App.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}
	zlog.Info("Server exited")
}

// newCountCache connects to Redis when enabled and falls back to an
// in-process cache when it is off or unreachable.
func newCountCache(cfg config.RedisConfig, zlog *zap.Logger) cache.CountCache {
	if !cfg.Enabled {
		return cache.NewMemoryCountCache()
	}
	rc := cache.NewRedisCountCache(cfg.Addr, cfg.Password, cfg.DB)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		zlog.Warn("Redis unavailable, using in-memory counts", zap.String("addr", cfg.Addr), zap.Error(err))
		_ = rc.Close()
		return cache.NewMemoryCountCache()
	}
	zlog.Info("Connected to Redis", zap.String("addr", cfg.Addr))
	return rc
}

func newPublisher(cfg config.KafkaConfig, zlog *zap.Logger) events.Publisher {
	if !cfg.Enabled {
		return events.NopPublisher{}
	}
	zlog.Info("Publishing events to Kafka", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic, cfg.WriteTimeout)
}
