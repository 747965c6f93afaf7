// Package api assembles the HTTP surface: middleware chain, route groups,
// and the background services that run alongside the server.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marketplace-registry/marketplace-registry/internal/analysis"
	"github.com/marketplace-registry/marketplace-registry/internal/api/approvals"
	"github.com/marketplace-registry/marketplace-registry/internal/api/modules"
	"github.com/marketplace-registry/marketplace-registry/internal/api/plugins"
	"github.com/marketplace-registry/marketplace-registry/internal/approval"
	"github.com/marketplace-registry/marketplace-registry/internal/audit"
	"github.com/marketplace-registry/marketplace-registry/internal/auth"
	"github.com/marketplace-registry/marketplace-registry/internal/config"
	"github.com/marketplace-registry/marketplace-registry/internal/db/repositories"
	"github.com/marketplace-registry/marketplace-registry/internal/ingest"
	"github.com/marketplace-registry/marketplace-registry/internal/jobs"
	"github.com/marketplace-registry/marketplace-registry/internal/middleware"
	"github.com/marketplace-registry/marketplace-registry/internal/notify"
	"github.com/marketplace-registry/marketplace-registry/internal/queue"
	"github.com/marketplace-registry/marketplace-registry/internal/safego"
	"github.com/marketplace-registry/marketplace-registry/internal/scoring"
	"github.com/marketplace-registry/marketplace-registry/internal/storage"
)

// Version is the server version reported by GET /version. Overridable at
// build time via -ldflags.
var Version = "0.1.0"

// BackgroundServices holds everything the router starts beyond request
// handling, so the caller can stop it all during graceful shutdown.
type BackgroundServices struct {
	worker       *jobs.QAWorker
	reclaimer    *jobs.StuckRunReclaimer
	queue        queue.Queue
	auditTrail   *audit.MultiShipper
	rateLimiters []*middleware.RateLimiter
	cancel       context.CancelFunc
}

// Shutdown stops the QA worker, the reclaimer, the queue connection, and the
// rate limiter cleanup goroutines. Safe to call once.
func (b *BackgroundServices) Shutdown() {
	b.cancel()
	b.worker.Stop()
	b.reclaimer.Stop()
	for _, rl := range b.rateLimiters {
		rl.Stop()
	}
	if err := b.queue.Close(); err != nil {
		slog.Error("failed to close queue", "error", err)
	}
	if err := b.auditTrail.Close(); err != nil {
		slog.Error("failed to close audit trail", "error", err)
	}
}

// NewRouter wires repositories, services, background jobs, and routes into a
// ready-to-serve engine.
func NewRouter(cfg *config.Config, database *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	logger := slog.Default()

	store, err := storage.NewStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise storage backend: %w", err)
	}
	q, err := queue.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise queue: %w", err)
	}

	moduleRepo := repositories.NewModuleRepository(database)
	qaRepo := repositories.NewQARepository(database)
	userRepo := repositories.NewUserRepository(database)
	workflowRepo := repositories.NewApprovalRepository(database)

	ingestSvc := ingest.NewService(cfg, logger, moduleRepo, store, q)
	notifier := notify.New(cfg, logger)
	approvalSvc := approval.NewService(logger, workflowRepo, userRepo, moduleRepo, notifier)
	analyzer := analysis.New(cfg, logger)
	engine := scoring.New(cfg.Scoring)

	worker := jobs.NewQAWorker(cfg, logger, q, moduleRepo, qaRepo, userRepo, store, analyzer, engine, notifier)
	reclaimer := jobs.NewStuckRunReclaimer(&cfg.Worker, logger, moduleRepo, q)

	bgCtx, cancel := context.WithCancel(context.Background())
	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	// Each consume loop claims modules via the status CAS, so running
	// several against the same queue is safe.
	for i := 0; i < concurrency; i++ {
		safego.Named(fmt.Sprintf("qa-worker-%d", i), func() { worker.Start(bgCtx) })
	}
	safego.Named("stuck-run-reclaimer", func() { reclaimer.Start(bgCtx) })

	var issuer *auth.TokenIssuer
	if cfg.Auth.JWT.Secret != "" {
		issuer, err = auth.NewTokenIssuer(cfg.Auth.JWT)
		if err != nil {
			cancel()
			return nil, nil, fmt.Errorf("invalid JWT configuration: %w", err)
		}
	}
	authenticator := middleware.NewAuthenticator(issuer, userRepo)

	auditTrail, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("invalid audit configuration: %w", err)
	}

	generalLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	uploadLimiter := middleware.NewRateLimiter(middleware.UploadRateLimitConfig())

	pluginHandler := plugins.NewHandler(ingestSvc)
	moduleHandler := modules.NewHandler(moduleRepo, qaRepo, workflowRepo, store, q)
	approvalHandler := approvals.NewHandler(approvalSvc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Security.CORS))
	router.Use(middleware.SecurityHeaders(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthHandler(database))
	router.GET("/ready", readyHandler(database, store))
	router.GET("/version", versionHandler)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimit(generalLimiter))
	v1.Use(AuditMiddleware(auditTrail))

	catalog := v1.Group("/modules")
	catalog.Use(authenticator.Optional())
	{
		catalog.GET("", moduleHandler.Search)
		catalog.GET("/:id", moduleHandler.Get)
		catalog.GET("/:id/download", moduleHandler.Download)
	}

	admin := v1.Group("/modules")
	admin.Use(authenticator.Require(), middleware.RequireAdmin())
	{
		admin.POST("/:id/requeue", moduleHandler.Requeue)
		admin.POST("/:id/publish", moduleHandler.Publish)
	}

	registration := v1.Group("/plugins/register")
	registration.Use(authenticator.Require())
	{
		registration.POST("/validate", pluginHandler.Validate)

		upload := registration.Group("")
		upload.Use(middleware.RateLimit(uploadLimiter))
		{
			upload.POST("/upload", pluginHandler.Upload)
			upload.POST("/vcs", pluginHandler.VCS)
			upload.POST("/url", pluginHandler.URL)
			upload.POST("/folder", pluginHandler.Folder)
		}
	}

	workflow := v1.Group("/approvals")
	workflow.Use(authenticator.Require())
	{
		workflow.POST("", approvalHandler.Create)
		workflow.GET("", approvalHandler.List)
		workflow.GET("/:id", approvalHandler.Get)
		workflow.POST("/:id/approve", approvalHandler.Approve)
		workflow.POST("/:id/reject", approvalHandler.Reject)
		workflow.POST("/:id/cancel", approvalHandler.Cancel)
	}

	bg := &BackgroundServices{
		worker:       worker,
		reclaimer:    reclaimer,
		queue:        q,
		auditTrail:   auditTrail,
		rateLimiters: []*middleware.RateLimiter{generalLimiter, uploadLimiter},
		cancel:       cancel,
	}
	return router, bg, nil
}

// healthHandler reports process liveness plus database reachability.
func healthHandler(database *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := database.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unreachable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"database": "ok",
		})
	}
}

// readyHandler additionally probes the storage backend, so a pod is only
// routable once it can serve package downloads.
func readyHandler(database *sql.DB, store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := database.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": "database unreachable",
			})
			return
		}
		// Exists on a well-known key exercises backend auth and connectivity
		// without requiring the object to be present.
		if _, err := store.Exists(ctx, ".readiness-probe"); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": "storage backend unreachable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func versionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "marketplace-registry",
		"version": Version,
	})
}
