// Package main is the entry point for the SCIM service.
// The SCIM service exposes the user directory to identity providers over
// the SCIM 2.0 provisioning protocol.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/scimgate/scimgate/internal/audit"
	"github.com/scimgate/scimgate/internal/common/config"
	"github.com/scimgate/scimgate/internal/common/database"
	"github.com/scimgate/scimgate/internal/common/logger"
	"github.com/scimgate/scimgate/internal/common/middleware"
	"github.com/scimgate/scimgate/internal/common/tlsutil"
	"github.com/scimgate/scimgate/internal/common/tracing"
	"github.com/scimgate/scimgate/internal/directory"
	"github.com/scimgate/scimgate/internal/scim"
	"github.com/scimgate/scimgate/pkg/journal"
)

var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
)

func main() {
	log := logger.New()
	defer log.Sync()

	log.Info("Starting SCIM Service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", CommitHash),
	)

	cfg, err := config.Load("scim-service")
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	cfg.LogSecurityWarnings(log)

	// Initialize tracing
	tracingCfg := tracing.ConfigFromEnv("scim-service", cfg.Environment)
	shutdownTracer, err := tracing.Init(context.Background(), tracingCfg, log)
	if err != nil {
		log.Warn("Failed to initialize tracing", zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	var es *database.ElasticsearchClient
	if cfg.ElasticsearchURL != "" {
		es, err = database.NewElasticsearch(cfg.ElasticsearchURL)
		if err != nil {
			log.Warn("Failed to connect to Elasticsearch, audit indexing disabled", zap.Error(err))
			es = nil
		}
	}

	var recorder *audit.Recorder
	if cfg.Audit.Enabled {
		jrnl, err := journal.Open(cfg.Audit.JournalPath)
		if err != nil {
			log.Fatal("Failed to open audit journal", zap.Error(err))
		}
		recorder = audit.NewRecorder(db, jrnl, es, cfg.Audit.IndexName, log)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("scim-service"))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(logger.GinMiddleware(log))
	if cfg.EnableRateLimit {
		router.Use(middleware.DistributedRateLimit(redis.Client, middleware.RateLimitConfig{
			Requests: cfg.RateLimitRequests,
			Window:   time.Duration(cfg.RateLimitWindow) * time.Second,
		}, log))
	}
	router.Use(middleware.PrometheusMetrics("scim-service"))

	router.GET("/metrics", middleware.MetricsHandler())

	store := directory.NewPostgresStore(db.Pool)
	service := scim.NewService(store, auditRecorder(recorder), log)
	authenticator := scim.NewAuthenticator(cfg.SCIM, log)
	handler := scim.NewHandler(service, authenticator, cfg, log)
	handler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "scim-service", "version": Version})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := service.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		if err := redis.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server listening", zap.Int("port", cfg.Port))
		if err := tlsutil.ListenAndServe(httpServer, cfg.TLS, log); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}

	db.Close()
	redis.Close()
	if shutdownTracer != nil {
		if err := shutdownTracer(ctx); err != nil {
			log.Warn("Failed to shut down tracer", zap.Error(err))
		}
	}

	log.Info("Server exited")
}

// auditRecorder adapts a possibly-nil recorder to the service interface.
// A typed nil pointer inside a non-nil interface would dodge the service's
// nil check.
func auditRecorder(r *audit.Recorder) scim.AuditRecorder {
	if r == nil {
		return nil
	}
	return r
}
