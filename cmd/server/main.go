// Package main is the entry point for the marketplace registry server binary.
// It dispatches subcommands — serve, migrate, create-admin, and version — via
// a simple switch on os.Args so the binary's full CLI surface is readable in
// one place without requiring a cobra dependency. The serve command runs
// auto-migration on startup so freshly deployed containers never need a
// separate migration step.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // served only on the dedicated profiling port, never on the API listener
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketplace-registry/marketplace-registry/internal/api"
	"github.com/marketplace-registry/marketplace-registry/internal/auth"
	"github.com/marketplace-registry/marketplace-registry/internal/config"
	"github.com/marketplace-registry/marketplace-registry/internal/db"
	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
	"github.com/marketplace-registry/marketplace-registry/internal/db/repositories"
	"github.com/marketplace-registry/marketplace-registry/internal/telemetry"

	// Storage backends register themselves on import.
	_ "github.com/marketplace-registry/marketplace-registry/internal/storage/azure"
	_ "github.com/marketplace-registry/marketplace-registry/internal/storage/gcs"
	_ "github.com/marketplace-registry/marketplace-registry/internal/storage/local"
	_ "github.com/marketplace-registry/marketplace-registry/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "create-admin":
		if len(os.Args) < 4 {
			return fmt.Errorf("usage: %s create-admin <email> <name>", os.Args[0])
		}
		return createAdmin(cfg, os.Args[2], strings.Join(os.Args[3:], " "))
	case "version":
		fmt.Printf("Marketplace Registry v%s\n", api.Version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, create-admin, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Initialise the structured logger before anything else logs.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	telemetry.StartDBStatsCollector(database)

	// Run migrations automatically so a fresh container is immediately usable.
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to read migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", version, "dirty", dirty)
	}

	// Prometheus metrics live on a dedicated port so the scrape path stays off
	// the public ingress and outside the rate-limiting middleware.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	// pprof on its own internal port; net/http/pprof registers on
	// DefaultServeMux at init time, which the API listener never uses.
	if cfg.Telemetry.Profiling.Enabled {
		pprofAddr := fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port)
		go func() {
			slog.Info("starting pprof server", "addr", pprofAddr)
			srv := &http.Server{
				Addr:         pprofAddr,
				Handler:      http.DefaultServeMux,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("pprof server error", "error", err)
			}
		}()
	}

	router, bgServices, err := api.NewRouter(cfg, database)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"base_url", cfg.Server.BaseURL,
			"storage_backend", cfg.Storage.DefaultBackend,
			"queue_backend", cfg.Queue.Backend)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop the QA worker, reclaimer, queue, and rate limiter goroutines.
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

// createAdmin bootstraps an administrator account and prints its API key.
// The raw key is shown exactly once; only the bcrypt hash is stored.
func createAdmin(cfg *config.Config, email, name string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	key, hash, displayPrefix, err := auth.GenerateAPIKey(cfg.Auth.APIKeys.Prefix)
	if err != nil {
		return fmt.Errorf("failed to generate API key: %w", err)
	}

	user := &models.User{
		Email:        email,
		Name:         name,
		Role:         models.RoleAdmin,
		Status:       models.UserStatusActive,
		APIKeyHash:   &hash,
		APIKeyPrefix: &displayPrefix,
	}
	users := repositories.NewUserRepository(database)
	if err := users.CreateUser(context.Background(), user); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	separator := strings.Repeat("═", 66)
	fmt.Println(separator)
	fmt.Printf("  Admin account created: %s <%s>\n", name, email)
	fmt.Println("")
	fmt.Printf("  API Key: %s\n", key)
	fmt.Println("")
	fmt.Println("  This key is shown only once. Store it securely; the server")
	fmt.Println("  keeps only a bcrypt hash.")
	fmt.Println(separator)
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}
