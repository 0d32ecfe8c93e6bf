package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-engine/internal/app"
	"storefront-engine/internal/handler"
	"storefront-engine/internal/repository"
	"storefront-engine/internal/repository/memory"
	"storefront-engine/internal/ws"
	"storefront-engine/pkg/config"
	"storefront-engine/pkg/database"
	"storefront-engine/pkg/jwt"
	"storefront-engine/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Env
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}
	cfg := config.Load()

	zlog, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// 2. Setup Storage
	repos, err := openRepositories(cfg, zlog)
	if err != nil {
		zlog.Fatal("storage unavailable", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Setup WebSocket Hub
	hub := ws.NewHub(zlog)
	go hub.Run(ctx)

	// 4. Dependency Injection (Wiring Layers)
	services := app.NewServices(cfg, repos, zlog, app.Options{Events: hub})
	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, 0)

	// 5. Background jobs
	go every(ctx, cfg.Saga.ReconcileInterval, func(ctx context.Context) {
		report, err := services.Reconciler.Reconcile(ctx)
		if err != nil {
			zlog.Error("saga reconciliation failed", zap.Error(err))
			return
		}
		if report.Completed+report.Compensated+report.Restocked > 0 {
			zlog.Info("saga reconciliation", zap.Int("completed", report.Completed),
				zap.Int("compensated", report.Compensated), zap.Int("restocked", report.Restocked))
		}
	})
	go every(ctx, cfg.Loyalty.ExpireInterval, func(ctx context.Context) {
		n, err := services.Loyalty.ExpirePoints(ctx, time.Now())
		if err != nil {
			zlog.Error("loyalty expiry failed", zap.Error(err))
			return
		}
		if n > 0 {
			zlog.Info("loyalty points expired", zap.Int("entries", n))
		}
	})

	// 6. Setup Fiber
	server := fiber.New(fiber.Config{
		AppName:      "Storefront Engine v1.0",
		ErrorHandler: handler.ErrorHandler(zlog),
	})

	// Middleware
	server.Use(fiberlogger.New()) // Logging request
	server.Use(recover.New())     // Panic recovery
	server.Use(cors.New(cors.Config{AllowOrigins: cfg.Server.CorsOrigins}))

	// 7. Routes
	handler.Register(server, services, tokens, hub, zlog)

	// 8. Graceful Shutdown
	go func() {
		if err := server.Listen(":" + cfg.Server.Port); err != nil {
			zlog.Panic("listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("Shutting down server...")
	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		zlog.Fatal("Server forced to shutdown", zap.Error(err))
	}

	zlog.Info("Server exited")
}

func openRepositories(cfg *config.Config, zlog *zap.Logger) (repository.Repositories, error) {
	if cfg.Storage.Driver == "memory" {
		zlog.Warn("using in-memory storage, data is lost on restart")
		return memory.NewStore().Repositories(), nil
	}
	db, err := database.ConnectDB(cfg.Database, zlog)
	if err != nil {
		return repository.Repositories{}, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return repository.Repositories{}, err
		}
	}
	return repository.NewGormRepositories(db), nil
}

// every runs job on each tick until ctx is cancelled.
func every(ctx context.Context, interval time.Duration, job func(context.Context)) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			job(ctx)
		}
	}
}
