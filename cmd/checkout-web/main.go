package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/fjod/go_checkout/internal/cartpayload"
	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/config"
	"github.com/fjod/go_checkout/internal/form"
	h "github.com/fjod/go_checkout/internal/http"
	"github.com/fjod/go_checkout/internal/order"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/publisher"
	"github.com/fjod/go_checkout/internal/region"
	"github.com/fjod/go_checkout/internal/repository"
	"github.com/fjod/go_checkout/pkg/logger"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		zap.NewExample().Fatal("failed to init logger", zap.Error(err))
	}
	defer logger.Sync()
	log := logger.L().With(zap.String("service", cfg.App.Name))

	for _, w := range warnings {
		log.Warn("configuration warning", zap.String("warning", w))
	}
	disabled := cfg.SubmitDisabledReason()
	if disabled != "" {
		log.Error("checkout submission disabled", zap.String("reason", disabled))
	}

	// otelhttp forwards traceparent to the payment backend and region API.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Journal
	repo, err := repository.Open(cfg.Database.Driver, cfg.Database.SQLitePath, repository.Credentials{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatal("failed to open journal", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	log.Info("journal ready", zap.String("driver", repo.Driver()))

	// Redis
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		cancel()
	}

	// Regions
	var regionCache region.Cache
	if redisClient != nil {
		regionCache = region.NewRedisCache(redisClient)
	}
	catalog := region.NewCatalog(cfg.Regions.APIURL, &http.Client{
		Timeout:   cfg.Regions.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, regionCache, log.Named("regions"))

	// Payment
	client, err := payment.New(payment.Config{
		BaseURL:    cfg.Payment.BackendURL,
		Strategy:   cfg.Payment.Strategy,
		CSRFHeader: cfg.Payment.CSRFHeader,
		Timeout:    cfg.Payment.Timeout,
		WidgetURL:  cfg.Payment.WidgetURL,
	}, nil, log.Named("payment"))
	if err != nil {
		log.Fatal("failed to build payment client", zap.Error(err))
	}
	confirmations := payment.NewConfirmations(cfg.Payment.ConfirmationTTL)

	// Orchestrator
	placeholders, ok := order.ParsePolicy(cfg.Checkout.Placeholders)
	if !ok {
		log.Fatal("unknown placeholder policy", zap.String("policy", cfg.Checkout.Placeholders))
	}
	assembler := order.NewAssembler(region.NewResolver(), placeholders)

	var guard checkout.Guard = checkout.NewMemoryGuard()
	if cfg.Checkout.Guard == "redis" {
		guard = checkout.NewRedisGuard(redisClient, cfg.Checkout.GuardTTL)
	}

	deliveryCfg := cfg.DeliveryConfig()
	opts := []checkout.Option{
		checkout.WithClearDelay(cfg.Checkout.ClearDelay),
		checkout.WithDeliveryConfig(deliveryCfg),
		checkout.WithLogger(log.Named("checkout")),
	}
	if disabled != "" {
		opts = append(opts, checkout.WithDisabled(disabled))
	}
	orchestrator := checkout.NewOrchestrator(guard, form.NewBinder(form.Fields), assembler, client, repo, confirmations, opts...)

	// HTTP
	templates, err := h.LoadTemplates()
	if err != nil {
		log.Fatal("failed to load templates", zap.Error(err))
	}
	reader := cartpayload.NewReader(
		cartpayload.WithParam(cfg.Checkout.PayloadParam),
		cartpayload.WithCurrency(cfg.Checkout.Currency),
		cartpayload.OnDecodeError(func(err error) {
			log.Debug("cart payload rejected", zap.Error(err))
		}),
	)
	handler, err := h.NewCheckoutHandler(orchestrator, reader, catalog,
		h.NewSessionStore(cfg.Security.SessionKey, cfg.Security.CookieSecure, cfg.Security.CookieDomain),
		templates,
		h.HandlerConfig{
			Delivery:      deliveryCfg,
			ResultWait:    cfg.Checkout.ResultWait,
			StorefrontURL: cfg.Checkout.StorefrontURL,
			WidgetScript:  cfg.Payment.WidgetScript,
			PublicKey:     cfg.Payment.PublicKey,
			Disabled:      disabled,
		}, log.Named("http"))
	if err != nil {
		log.Fatal("failed to build checkout handler", zap.Error(err))
	}

	var limiter *h.RateLimiter
	if cfg.Server.RateLimit.Enabled {
		limiter = h.NewRateLimiter(cfg.Server.RateLimit.Rate, cfg.Server.RateLimit.Burst)
	}
	router := h.NewRouter(handler, h.RouterConfig{
		CSRFKey:        cfg.Security.CSRFKey,
		CookieSecure:   cfg.Security.CookieSecure,
		TrustedOrigins: []string{"localhost:" + cfg.Server.Port, "127.0.0.1:" + cfg.Server.Port},
		RateLimiter:    limiter,
		RequestTimeout: cfg.Server.WriteTimeout,
		Health: func(ctx context.Context) error {
			if err := repo.Ping(ctx); err != nil {
				return err
			}
			if redisClient != nil {
				return redisClient.Ping(ctx).Err()
			}
			return nil
		},
	}, log)

	// Background workers
	var writer publisher.MessageWriter = publisher.NewLogWriter(log.Named("events"))
	if cfg.Kafka.Enabled() {
		writer = publisher.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		log.Info("publishing checkout events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	poller := publisher.NewOutboxPoller(repo, writer, log.Named("outbox"))
	defer poller.Close()
	go poller.Run(ctx)

	go confirmations.Run(ctx, time.Minute)

	if limiter != nil {
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					limiter.Cleanup()
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("checkout-web starting", zap.String("port", cfg.Server.Port), zap.String("strategy", client.Strategy()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server exited")
}
