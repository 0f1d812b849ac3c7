package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mediation-escrow/backend/internal/config"
	"github.com/mediation-escrow/backend/internal/db"
	"github.com/mediation-escrow/backend/internal/events"
	"github.com/mediation-escrow/backend/internal/fees"
	apphttp "github.com/mediation-escrow/backend/internal/http"
	"github.com/mediation-escrow/backend/internal/http/handlers"
	"github.com/mediation-escrow/backend/internal/repositories"
	"github.com/mediation-escrow/backend/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store      repositories.Store
		publisher  events.Publisher
		subscriber events.Subscriber
		rdb        *redis.Client
	)

	if cfg.IsDevelopment() {
		log.Warn("development mode: in-memory store and event bus, state is lost on restart")
		bus := events.NewMemoryBus()
		store, publisher, subscriber = repositories.NewMemoryStore(), bus, bus
	} else {
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}

		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		store = repositories.NewPgStore(pool)
		publisher = events.NewRedisPublisher(rdb, log)
		subscriber = events.NewRedisSubscriber(rdb, log)
	}

	conv, err := fees.NewConverter(cfg.USDToTNDRate)
	if err != nil {
		log.Fatal("invalid exchange rate", zap.Error(err))
	}

	// Services
	emitter := events.NewEmitter(publisher, log)
	mediation := services.NewMediationService(store, fees.NewCalculator(conv), emitter, cfg, log)
	users := services.NewUserService(store, log)

	wsHub := handlers.NewWSHub(subscriber, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe ws hub", zap.Error(err))
	}

	app := apphttp.NewApp(log)
	apphttp.SetupRouter(app, apphttp.Deps{
		Config:    cfg,
		Log:       log,
		Redis:     rdb,
		Mediation: mediation,
		Users:     users,
		Hub:       wsHub,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
