package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httptransport "github.com/stagecall/audition-service/internal/api/http"
	"github.com/stagecall/audition-service/internal/api/http/handlers"
	"github.com/stagecall/audition-service/internal/auth"
	"github.com/stagecall/audition-service/internal/config"
	"github.com/stagecall/audition-service/internal/events"
	"github.com/stagecall/audition-service/internal/idp"
	"github.com/stagecall/audition-service/internal/kv"
	"github.com/stagecall/audition-service/internal/observability"
	"github.com/stagecall/audition-service/internal/persistence"
	"github.com/stagecall/audition-service/internal/repository"
	"github.com/stagecall/audition-service/internal/service"
	"github.com/stagecall/audition-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	store := kv.NewRedisStore(redis.Client)

	userRepo := repository.NewUserRepository(pg.PoolHandle())
	verifier := idp.NewLineVerifier(cfg.Line)
	dispatcher := events.NewInMemoryDispatcher()

	sessionService := service.NewSessionService(*cfg, service.SessionDependencies{
		UserRepo:   userRepo,
		Verifier:   verifier,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	magicLinkService := service.NewMagicLinkService(*cfg, store, userRepo, sessionService, dispatcher, metrics, logger)

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	cookies := auth.NewCookieWriter(!cfg.App.IsDevelopment())
	userContext := auth.NewUserContextMiddleware(
		sessionService.TokenManager(),
		userRepo,
		store,
		cfg.Auth.SessionCacheTTL(),
		cfg.Auth.JWTSecret,
		logger,
	)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	cors := httptransport.NewCORSMiddleware(cfg.CORS)
	httptransport.RegisterMiddlewares(app, logger, metrics, cors, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	sessionHandler := handlers.NewSessionHandler(sessionService, magicLinkService, cookies)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:      healthHandler,
		Sessions:    sessionHandler,
		UserContext: userContext,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
