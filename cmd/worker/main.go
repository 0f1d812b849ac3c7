package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mediation-escrow/backend/internal/config"
	"github.com/mediation-escrow/backend/internal/db"
	"github.com/mediation-escrow/backend/internal/events"
	"github.com/mediation-escrow/backend/internal/fees"
	apphttp "github.com/mediation-escrow/backend/internal/http"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/repositories"
	"github.com/mediation-escrow/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	conv, err := fees.NewConverter(cfg.USDToTNDRate)
	if err != nil {
		log.Fatal("invalid exchange rate", zap.Error(err))
	}

	emitter := events.NewEmitter(events.NewRedisPublisher(rdb, log), log)
	svc := services.NewMediationService(repositories.NewPgStore(pool), fees.NewCalculator(conv), emitter, cfg, log)

	// Metrics
	metricsApp := apphttp.NewMetricsApp(log)
	metricsAddr := fmt.Sprintf(":%s", cfg.WorkerPort)
	go func() {
		if err := metricsApp.Listen(metricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	log.Info("worker started", zap.String("metrics_addr", metricsAddr))

	// Run jobs on tickers
	assignmentTicker := time.NewTicker(time.Minute)
	selectionTicker := time.NewTicker(5 * time.Minute)
	availabilityTicker := time.NewTicker(10 * time.Minute)
	chatTicker := time.NewTicker(time.Minute)
	defer chatTicker.Stop()
	defer assignmentTicker.Stop()
	defer selectionTicker.Stop()
	defer availabilityTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-assignmentTicker.C:
			report(log, "expire_assignments")(svc.SweepStale(ctx, "expire_assignments",
				models.StatusMediatorAssigned, cfg.AssignmentTimeout, svc.ExpireAssignment))
		case <-selectionTicker.C:
			report(log, "expire_selections")(svc.SweepStale(ctx, "expire_selections",
				models.StatusPendingMediatorSelection, cfg.SelectionTimeout, svc.ExpireSelection))
		case <-chatTicker.C:
			// Records whose automatic chat start failed after the joint confirmation.
			report(log, "start_chat")(svc.SweepStale(ctx, "start_chat",
				models.StatusPartiesConfirmed, cfg.ChatStartGrace, svc.StartChat))
		case <-availabilityTicker.C:
			report(log, "mediator_availability")(svc.SweepAvailability(ctx))
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			_ = metricsApp.ShutdownWithTimeout(5 * time.Second)
			return
		case <-ctx.Done():
			return
		}
	}
}

func report(log *zap.Logger, job string) func(services.SweepResult, error) {
	return func(res services.SweepResult, err error) {
		if err != nil {
			log.Error("sweep failed", zap.String("job", job), zap.Error(err))
			return
		}
		if res.Processed > 0 || res.Failed > 0 {
			log.Info("sweep finished", zap.String("job", job),
				zap.Int("processed", res.Processed), zap.Int("failed", res.Failed))
		}
	}
}
