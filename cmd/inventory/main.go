package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-storefront/internal/config"
	"github.com/ariefcatur/go-storefront/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/logging"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/postgres"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogJSON)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{})
	if err != nil {
		log.WithError(err).Fatal("db")
	}
	defer pool.Close()

	rdb, err := redisx.New(ctx, cfg.RedisAddr)
	if err != nil {
		log.WithError(err).Fatal("redis")
	}
	defer rdb.Close()

	svc := &inventory.Service{
		Products:  postgres.NewStore(pool),
		LowStock:  redisx.NewLowStockSet(rdb),
		Dedup:     redisx.NewDedup(rdb, cfg.ServiceName+"-inventory"),
		Threshold: cfg.LowStockThreshold,
		Log:       log.WithField("component", "inventory"),
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range []string{orders.TopicOrderPlaced, orders.TopicOrderCancelled} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, topic, cfg.InventoryWorkers, log.WithField("topic", topic))
		g.Go(func() error { return cons.Run(ctx, svc.HandleOrderEvent) })
		log.WithFields(logrus.Fields{
			"group":   cfg.InventoryGroup,
			"topic":   topic,
			"workers": cfg.InventoryWorkers,
		}).Info("inventory consumer started")
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("consumer exit")
	}
	log.Info("inventory stopped")
}
