package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/go-ecommerce-checkout/internal/cache"
	"github.com/flicky/go-ecommerce-checkout/internal/config"
	"github.com/flicky/go-ecommerce-checkout/internal/events"
	"github.com/flicky/go-ecommerce-checkout/internal/handler"
	"github.com/flicky/go-ecommerce-checkout/internal/middleware"
	"github.com/flicky/go-ecommerce-checkout/internal/ordernum"
	"github.com/flicky/go-ecommerce-checkout/internal/payment"
	"github.com/flicky/go-ecommerce-checkout/internal/repository"
	"github.com/flicky/go-ecommerce-checkout/internal/service"
	"github.com/flicky/go-ecommerce-checkout/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	if cfg.DB.MigrateOnStart {
		if err := repository.Migrate(cfg.DB.DSN()); err != nil {
			log.Error("run migrations", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// Order events
	publisher, err := newPublisher(cfg)
	if err != nil {
		log.Error("set up order events", "backend", cfg.Events.Backend, "error", err)
		os.Exit(1)
	}
	defer publisher.Close()
	log.Info("order events ready", "backend", cfg.Events.Backend)

	// Services
	store := repository.NewStore(dbPool)
	gateway := payment.NewStripeGateway(cfg.Stripe, log)
	ledger := service.NewLedger(ordernum.NewGenerator())

	authSvc := service.NewAuthService(store.Users(), cfg.JWT.Secret, cfg.JWT.Expiration)
	cartSvc := service.NewCartService(store)
	checkoutSvc := service.NewCheckoutService(
		store, ledger, gateway, publisher,
		cache.NewWebhookCache(redisClient, cfg.Checkout.CacheTTL),
		cfg.Checkout.Currency, cfg.Checkout.PaymentMethod, log,
	)
	orderSvc := service.NewOrderService(store, ledger, gateway, publisher, log)

	// Worker
	if rmq, ok := publisher.(*events.RabbitMQPublisher); ok && cfg.Worker.Enabled {
		ch, err := rmq.ConsumerChannel()
		if err != nil {
			log.Error("open worker channel", "error", err)
			os.Exit(1)
		}
		orderWorker := worker.NewOrderEventsWorker(ch, store.Orders(), store.Products(), redisClient, cfg.Worker, log)
		if err := orderWorker.Start(ctx); err != nil {
			log.Error("start order events worker", "error", err)
			os.Exit(1)
		}
		defer orderWorker.Stop()
	}

	// Handlers
	authH := handler.NewAuthHandler(authSvc)
	cartH := handler.NewCartHandler(cartSvc)
	orderH := handler.NewOrderHandler(checkoutSvc, orderSvc)
	paymentH := handler.NewPaymentHandler(checkoutSvc, cfg.Stripe.PublishableKey)
	healthH := handler.NewHealthHandler(
		handler.Check{Name: "postgres", Probe: dbPool.Ping},
		handler.Check{Name: "redis", Probe: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		handler.Check{Name: "events", Probe: publisher.Ping},
	)

	// Router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log), middleware.Metrics())
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := middleware.AuthMiddleware(authSvc)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)

		cart := v1.Group("/cart", requireAuth)
		cart.GET("", cartH.GetCart)
		cart.DELETE("", cartH.Clear)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:id", cartH.UpdateItem)
		cart.DELETE("/items/:id", cartH.DeleteItem)
		cart.POST("/coupon", cartH.ApplyCoupon)
		cart.DELETE("/coupon", cartH.RemoveCoupon)

		orders := v1.Group("/orders", requireAuth)
		orders.POST("/create_order", orderH.CreateOrder)
		orders.GET("", orderH.ListOrders)
		orders.GET("/:id", orderH.GetOrder)
		orders.POST("/:id/confirm_payment", orderH.ConfirmPayment)
		orders.POST("/:id/cancel", orderH.CancelOrder)
		orders.PATCH("/:id/status", middleware.AdminOnly(), orderH.UpdateStatus)

		payments := v1.Group("/payments")
		payments.GET("/config", paymentH.Config)
		payments.POST("/webhook/stripe", paymentH.StripeWebhook)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}
	cancel()
	log.Info("server stopped")
}

func newPublisher(cfg *config.Config) (events.Backend, error) {
	switch cfg.Events.Backend {
	case config.EventsRabbitMQ:
		pub, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return nil, err
		}
		return pub, nil
	case config.EventsKafka:
		brokers := cfg.Kafka.BrokerList()
		if len(brokers) == 0 {
			return nil, errors.New("no kafka brokers configured")
		}
		return events.NewKafkaPublisher(brokers, cfg.Kafka.Topic), nil
	}
	return events.NewNopPublisher(), nil
}
