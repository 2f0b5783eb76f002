package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bookit-app/bookit/libs/db"
	"github.com/bookit-app/bookit/libs/httpx"
	"github.com/bookit-app/bookit/libs/kafkax"
	otelx "github.com/bookit-app/bookit/libs/otel"
	"github.com/bookit-app/bookit/libs/runtime"
	"github.com/bookit-app/bookit/services/booking-service/internal/availability"
	"github.com/bookit-app/bookit/services/booking-service/internal/booking"
	"github.com/bookit-app/bookit/services/booking-service/internal/config"
	"github.com/bookit-app/bookit/services/booking-service/internal/consumer"
	"github.com/bookit-app/bookit/services/booking-service/internal/handlers"
	"github.com/bookit-app/bookit/services/booking-service/internal/inbox"
	"github.com/bookit-app/bookit/services/booking-service/internal/outbox"
	"github.com/bookit-app/bookit/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.ServiceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: cfg.DBMaxConns})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository()
	engine := availability.NewEngine(repo, availability.Config{
		Granularity:  cfg.SlotGranularityMin,
		MaxRangeDays: cfg.MaxRangeDays,
		MinNotice:    cfg.MinNotice(),
	})
	bookings := booking.NewService(pool, func(q db.Querier) booking.Store { return repo.WithQuerier(q) }, outboxRepo, engine, logger)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: cfg.OutboxPoll,
		BatchSize: cfg.OutboxBatch,
	})
	go publisher.Run(ctx)

	if cfg.KafkaBrokers != "" {
		deposits := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.DepositTopic,
		}, consumer.DepositPaid(bookings, logger))
		go deposits.Run(ctx)
		logger.Info("deposit consumer started", "topic", cfg.DepositTopic, "group_id", cfg.KafkaGroupID)
	}

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	}

	var rateLimit httpx.Middleware
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		rl := httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMin, time.Minute, "rl:booking")
		rateLimit = rl.Middleware(logger, cfg.RateLimitFailOpen)
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimitPerMin, "redis_addr", cfg.RedisAddr)
	} else {
		rateLimit = httpx.NewRateLimiter(cfg.RateLimitPerMin, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimitPerMin)
	}

	availabilityHandler := handlers.NewAvailabilityHandler(engine, repo, logger)
	bookingHandler := handlers.NewBookingHandler(bookings, repo, logger)
	ownerHandler := handlers.NewOwnerHandler(storage.NewOwner(repo, pool), logger)

	public := http.NewServeMux()
	public.HandleFunc("/api/v1/public/slots", availabilityHandler.Slots)
	public.HandleFunc("/api/v1/public/slots/check", availabilityHandler.Check)
	public.HandleFunc("/api/v1/public/book", bookingHandler.Book)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/v1/public/", httpx.Chain(public, rateLimit))
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/appointments/status", bookingHandler.Status)
	mux.HandleFunc("/api/v1/business/availability/rules", ownerHandler.Rules)
	mux.HandleFunc("/api/v1/business/availability/exceptions", ownerHandler.Exceptions)
	mux.HandleFunc("/api/v1/business/services", ownerHandler.Services)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins(),
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", handlers.BusinessHeader, httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := startGrpcServer(ctx, logger, cfg.GRPCPort, engine); err != nil {
		logger.Error("grpc server start failed", "err", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
