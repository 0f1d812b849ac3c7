package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mediation-escrow/backend/internal/config"
	"github.com/mediation-escrow/backend/internal/db"
	"github.com/mediation-escrow/backend/internal/events"
	"github.com/mediation-escrow/backend/internal/services"
	"go.uber.org/zap"
)

// Notify Bridge subscribes to mediation events and forwards them to the
// notification service.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	client := services.NewNotifyClient(cfg.NotifyInternalURL, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	err = subscriber.Subscribe(ctx, events.Channel, func(event events.Event) {
		if len(event.RecipientUserIDs) == 0 {
			return
		}
		log.Info("forwarding event",
			zap.String("type", event.Type),
			zap.String("mediation_id", event.RelatedEntityID.String()),
			zap.Int("recipients", len(event.RecipientUserIDs)),
		)
		if err := client.Forward(ctx, event); err != nil {
			log.Warn("failed to forward notification", zap.String("type", event.Type), zap.Error(err))
		}
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("notify-bridge started", zap.String("target", cfg.NotifyInternalURL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}
