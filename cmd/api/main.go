// Command api serves the campus marketplace transaction API.
//
// @title                      Campus Marketplace Transaction API
// @version                    1.0
// @description                Bids, orders, checkout and payment webhooks for the campus marketplace.
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Type "Bearer" followed by a space and the session token.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	gostripe "github.com/stripe/stripe-go/v76"

	"github.com/campusmarket/marketplace-core/internal/api"
	"github.com/campusmarket/marketplace-core/internal/api/handler"
	"github.com/campusmarket/marketplace-core/internal/api/metrics"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
	"github.com/campusmarket/marketplace-core/internal/core/service"
	"github.com/campusmarket/marketplace-core/internal/infrastructure/config"
	"github.com/campusmarket/marketplace-core/internal/infrastructure/db/memory"
	mongodb "github.com/campusmarket/marketplace-core/internal/infrastructure/db/mongo"
	redisdb "github.com/campusmarket/marketplace-core/internal/infrastructure/db/redis"
	apphttp "github.com/campusmarket/marketplace-core/internal/infrastructure/http"
	"github.com/campusmarket/marketplace-core/internal/infrastructure/payment/stripe"
	"github.com/campusmarket/marketplace-core/internal/infrastructure/queue"
	"github.com/campusmarket/marketplace-core/pkg/logger"
)

const serviceName = "marketplace-core"

// storage is the set of repositories one backend provides.
type storage struct {
	users         ports.UserRepository
	listings      ports.ListingRepository
	carts         ports.CartRepository
	bids          ports.BidRepository
	orders        ports.OrderRepository
	payments      ports.PaymentRepository
	events        ports.PaymentEventLog
	notifications ports.NotificationStore
	dedup         ports.EventDeduplicator

	checks map[string]handler.Check
	close  func(ctx context.Context)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: serviceName,
		Caller:  !cfg.IsProduction(),
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("service stopped with error")
	}
	log.Info().Msg("goodbye")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store.close(closeCtx)
	}()

	workers, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	dispatcher := queue.NewDispatcher(cfg.Notifications.Workers, store.notifications, logger.Component("notifications"),
		queue.WithDropHook(metrics.NotificationsDroppedTotal.Inc),
	)
	metrics.RegisterQueueDepth(dispatcher.Pending)
	dispatcher.Start(workers)

	if cfg.Stripe.SecretKey == "" {
		log.Warn().Msg("STRIPE_SECRET_KEY is empty; checkout requests will fail")
	}
	gateway := stripe.NewGateway(stripe.GatewayConfig{
		SecretKey:  cfg.Stripe.SecretKey,
		AppBaseURL: cfg.Stripe.AppBaseURL,
		Backend:    stripeBackend(cfg.Stripe.APIURL),
	})
	if cfg.Stripe.WebhookSecret == "" {
		log.Warn().Msg("STRIPE_WEBHOOK_SECRET is empty; webhook signatures are not authenticated")
	}
	parser := stripe.NewEventParser(cfg.Stripe.WebhookSecret)

	tokens := service.NewTokenService(cfg.JWTSecret, service.WithTTLs(cfg.Tokens.SessionTTL, cfg.Tokens.ResetTTL))
	authSvc := service.NewAuthService(store.users, tokens, dispatcher, logger.Component("auth"))
	bidSvc := service.NewBidService(store.bids, store.listings, store.payments, dispatcher, service.BidExpiryPolicy{
		PendingTTL:    cfg.Bids.PendingTTL,
		PaymentWindow: cfg.Bids.PaymentWindow,
	}, logger.Component("bids"))
	checkoutSvc := service.NewCheckoutService(store.bids, store.orders, store.payments, store.listings, gateway, cfg.Stripe.Currency, logger.Component("checkout"))
	orderSvc := service.NewOrderService(store.orders, store.payments, store.listings, store.carts, logger.Component("orders"))
	webhookSvc := service.NewWebhookService(parser, store.payments, store.orders, store.bids, store.events, store.dedup, dispatcher, logger.Component("webhook"))

	sweeper := queue.NewSweeper(bidSvc, cfg.Bids.SweepInterval, logger.Component("sweeper"),
		queue.WithExpiredHook(func(n int) { metrics.BidsExpiredTotal.Add(float64(n)) }),
	)
	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		sweeper.Run(workers)
	}()

	router := api.NewRouter(api.Dependencies{
		Log:               log,
		Tokens:            tokens,
		Users:             store.users,
		Auth:              authSvc,
		Bids:              bidSvc,
		Checkout:          checkoutSvc,
		Orders:            orderSvc,
		Webhooks:          webhookSvc,
		HealthChecks:      store.checks,
		AuthRatePerMinute: cfg.AuthRateLimit,
		AuthBurst:         cfg.AuthRateBurst,
	})

	srv := apphttp.NewServer(router, ":"+cfg.Port, cfg.ShutdownTimeout, log)
	err = srv.Run(ctx)

	// Requests are drained; stop background work before storage closes.
	cancelWorkers()
	bg.Wait()
	dispatcher.Wait()
	return err
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn().Msg("using in-memory storage; data is lost on restart")
		s := memory.NewStore()
		if cfg.MemorySeedFile != "" {
			fx, err := s.SeedFile(cfg.MemorySeedFile)
			if err != nil {
				return nil, err
			}
			log.Info().
				Str("file", cfg.MemorySeedFile).
				Int("listings", len(fx.Listings)).
				Int("carts", len(fx.Carts)).
				Msg("seeded in-memory catalogue")
		}
		return &storage{
			users:         s.Users(),
			listings:      s.Listings(),
			carts:         s.Carts(),
			bids:          s.Bids(),
			orders:        s.Orders(),
			payments:      s.Payments(),
			events:        s.PaymentEvents(),
			notifications: s.NotificationStore(),
			dedup:         s.Deduplicator(),
			close:         func(context.Context) {},
		}, nil
	}

	client, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		Timeout:  cfg.Mongo.Timeout,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		OpTimeout:    cfg.Redis.OpTimeout,
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")

	users := mongodb.NewUserRepository(db)
	bids := mongodb.NewBidRepository(db)
	orders := mongodb.NewOrderRepository(db)
	payments := mongodb.NewPaymentRepository(db)
	events := mongodb.NewEventRepository(db)
	notifications := mongodb.NewNotificationRepository(db)

	if err := mongodb.EnsureIndexes(ctx, users, bids, orders, payments, events, notifications); err != nil {
		_ = rdb.Close()
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &storage{
		users:         users,
		listings:      mongodb.NewListingRepository(db),
		carts:         mongodb.NewCartRepository(db),
		bids:          bids,
		orders:        orders,
		payments:      payments,
		events:        events,
		notifications: notifications,
		dedup:         redisdb.NewDedupChecker(rdb, cfg.Redis.DedupTTL),
		checks: map[string]handler.Check{
			"mongodb": handler.MongoCheck(db),
			"redis":   handler.RedisCheck(rdb),
		},
		close: func(ctx context.Context) {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("redis close failed")
			}
			if err := client.Disconnect(ctx); err != nil {
				log.Warn().Err(err).Msg("mongodb disconnect failed")
			}
		},
	}, nil
}

// stripeBackend points the Stripe client at url, e.g. a local stripe-mock.
// An empty url keeps the default API endpoint.
func stripeBackend(url string) gostripe.Backend {
	if url == "" {
		return nil
	}
	return gostripe.GetBackendWithConfig(gostripe.APIBackend, &gostripe.BackendConfig{
		URL: gostripe.String(url),
	})
}
