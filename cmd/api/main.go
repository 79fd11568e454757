package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/checkout"
	"github.com/ariefcatur/go-storefront/internal/config"
	"github.com/ariefcatur/go-storefront/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/logging"
	"github.com/ariefcatur/go-storefront/internal/memstore"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/postgres"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

func main() {
	app := &cli.App{
		Name:  "storefront-api",
		Usage: "cart, checkout and order API",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "memory", Usage: "in-memory store with demo data, no redis or kafka"},
				},
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "down", Usage: "roll back N migrations instead"},
				},
				Action: migrate,
			},
			{
				Name:   "seed",
				Usage:  "load the demo catalog and users",
				Action: seed,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("storefront-api")
	}
}

func setup() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogJSON), nil
}

func serve(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store    orders.Store
		status   httpx.StatusCache
		opts     = []checkout.Option{
			checkout.WithProducerName(cfg.ServiceName),
			checkout.WithLogger(log.WithField("component", "checkout")),
		}
		producer *kafkax.Producer
	)
	if c.Bool("memory") {
		mem := memstore.New()
		if err := catalog.Seed(ctx, mem); err != nil {
			return err
		}
		store = mem
		log.Warn("serving from the in-memory store; data is lost on exit")
	} else {
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{})
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.NewStore(pool)

		rdb, err := redisx.New(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		status = redisx.NewStatusCache(rdb, cfg.StatusCacheTTL)

		producer = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.WithField("component", "producer"))
		producer.Start(ctx)
		opts = append(opts,
			checkout.WithLocker(redisx.NewCheckoutLock(rdb, cfg.CheckoutLockTTL)),
			checkout.WithPublisher(kafkax.NewEventPublisher(producer, log.WithField("component", "events"))),
		)
	}

	api := httpx.NewAPI(httpx.Deps{
		Users:    store,
		Catalog:  catalog.NewService(store),
		Carts:    cart.NewService(store),
		Orders:   checkout.NewService(store, opts...),
		Status:   status,
		LowStock: cfg.LowStockThreshold,
		Log:      log,
	})
	router := httpx.NewRouter(log)
	api.Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	if producer != nil {
		producer.Close()
		producer.WaitClosed()
	}
	return err
}

func migrate(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	pool, err := postgres.Connect(c.Context, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	if n := c.Int("down"); n > 0 {
		if err := postgres.Rollback(pool, n); err != nil {
			return err
		}
		log.WithField("steps", n).Info("migrations rolled back")
		return nil
	}
	if err := postgres.Migrate(pool); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func seed(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	pool, err := postgres.Connect(c.Context, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := catalog.Seed(c.Context, postgres.NewStore(pool)); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"admin":    catalog.SeedAdminID,
		"customer": catalog.SeedCustomerID,
	}).Info("demo data loaded")
	return nil
}
