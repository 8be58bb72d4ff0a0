// Command sessiond runs the session lifecycle manager as an MCP server over
// stdio, with health and metrics exposed over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sessiond-dev/sessiond/internal/toolserver"
	"github.com/sessiond-dev/sessiond/pkg/config"
	"github.com/sessiond-dev/sessiond/pkg/observability"
	"github.com/sessiond-dev/sessiond/pkg/session"
)

var (
	// Version information (set via ldflags)
	Version = "dev"

	// Command line flags
	configFile = flag.String("config", getEnv("CONFIG_FILE", "config/sessiond.yaml"), "Server configuration file")
	httpPort   = flag.Int("http-port", 0, "HTTP port for health and metrics (overrides config)")
)

func main() {
	flag.Parse()

	log.Printf("Starting sessiond v%s", Version)

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *httpPort != 0 {
		cfg.HTTPPort = *httpPort
	}
	if cfg.ServerVersion == "dev" {
		cfg.ServerVersion = Version
	}
	log.Printf("Config: %s, HTTP Port: %d, Store: %s", *configFile, cfg.HTTPPort, cfg.Sessions.Store)

	// Initialize observability
	observability.InitMetrics()
	if err := observability.InitTracingFromEnv(); err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	healthChecker := observability.NewHealthChecker()

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize snapshot store: %v", err)
	}
	if store != nil {
		healthChecker.Register(observability.SnapshotStoreCheck(func(ctx context.Context) error {
			_, err := store.Load(ctx, "healthcheck")
			if err == nil || errors.Is(err, session.ErrSnapshotNotFound) {
				return nil
			}
			return err
		}))
	}

	manager := session.NewManager(session.Options{
		MaxConcurrentSessions: cfg.Sessions.MaxConcurrent,
		CleanupInterval:       time.Duration(cfg.Sessions.CleanupIntervalMinutes) * time.Minute,
		MonitorInterval:       time.Duration(cfg.Sessions.MonitorIntervalSeconds) * time.Second,
		Store:                 store,
	})
	if err := manager.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start session manager: %v", err)
	}

	healthChecker.Register(observability.SessionManagerCheck(func(ctx context.Context) error {
		if h := manager.Health(); h.Status != "healthy" {
			return fmt.Errorf("session manager status: %s", h.Status)
		}
		return nil
	}))
	healthChecker.RegisterDetail("session_manager", func(ctx context.Context) any {
		return manager.Health()
	})

	mcpServer := toolserver.NewServer(toolserver.Config{
		Name:      cfg.ServerName,
		Version:   cfg.ServerVersion,
		RateLimit: cfg.Tools.RateLimit,
		RateBurst: cfg.Tools.RateBurst,
	}, manager)

	obsServer := observability.NewServer(cfg.HTTPPort, healthChecker)

	var g errgroup.Group
	g.Go(func() error {
		log.Printf("Starting HTTP server on :%d", cfg.HTTPPort)
		if err := obsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("Serving MCP over stdio")
		return mcpServer.ServeStdio()
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- g.Wait()
	}()

	// Wait for shutdown signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			log.Printf("Error: %v", err)
		}
	case <-quit:
		log.Println("Shutting down sessiond...")
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := manager.Shutdown(ctx); err != nil {
		log.Printf("Session manager shutdown error: %v", err)
	}
	if err := obsServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := observability.ShutdownTracing(ctx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}

	log.Println("sessiond stopped")
}

// buildStore constructs the snapshot store selected by the configuration.
func buildStore(cfg *config.Config) (session.SnapshotStore, error) {
	switch cfg.Sessions.Store {
	case "none":
		return nil, nil
	case "redis":
		return session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.Sessions.Redis.Addr,
			Password: cfg.Sessions.Redis.Password,
			DB:       cfg.Sessions.Redis.DB,
			Prefix:   cfg.Sessions.Redis.Prefix,
		})
	case "file":
		return session.NewFileStore(cfg.Sessions.SnapshotDir)
	default:
		return nil, fmt.Errorf("unknown snapshot store %q", cfg.Sessions.Store)
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
