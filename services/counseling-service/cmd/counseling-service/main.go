package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/libs/auth"
	"github.com/md-rashed-zaman/pastoralcare/libs/config"
	"github.com/md-rashed-zaman/pastoralcare/libs/db"
	"github.com/md-rashed-zaman/pastoralcare/libs/grpcx"
	"github.com/md-rashed-zaman/pastoralcare/libs/httpx"
	"github.com/md-rashed-zaman/pastoralcare/libs/kafkax"
	"github.com/md-rashed-zaman/pastoralcare/libs/metrics"
	otelx "github.com/md-rashed-zaman/pastoralcare/libs/otel"
	"github.com/md-rashed-zaman/pastoralcare/libs/runtime"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/availability"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/changefeed"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/consumer"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/handlers"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/inbox"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/notify"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/outbox"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/scheduling"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/staleness"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/storage"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "counseling-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := time.LoadLocation(config.String("APP_TIMEZONE", "America/Sao_Paulo"))
	if err != nil {
		logger.Error("invalid APP_TIMEZONE; using local time", "err", err)
		loc = time.Local
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool, migrations.FS)
	if err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "files", applied)
	}

	m := metrics.NewCollector(service)
	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))

	outboxRepo := outbox.NewRepository()
	appts := storage.NewAppointmentRepository(pool, outboxRepo, logger, loc)
	counselors := storage.NewCounselorRepository(pool, logger)

	dispatcher := notify.NewDispatcher(
		emailSender(logger),
		chatSender(logger),
		storage.NewMessageLogRepository(pool),
		m,
		logger,
	)

	svc := scheduling.NewService(appts, counselors, dispatcher,
		scheduling.WithMachine(lifecycle.New(lifecycle.WithLocation(loc))),
		scheduling.WithCalendar(availability.NewCalendar(loc)),
		scheduling.WithMetrics(m),
		scheduling.WithLogger(logger),
	)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, m, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	if topic := strings.TrimSpace(config.String("KAFKA_INTAKE_TOPIC", "counseling.intake.v1")); topic != "" && len(brokers) > 0 {
		intake := consumer.New(logger, inbox.NewRepository(pool), m, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   topic,
		}, consumer.IntakeHandler(svc, loc, logger))
		go intake.Run(ctx)
	}

	hub := changefeed.NewHub(config.List("CORS_ALLOWED_ORIGINS"), logger, m)
	go storage.NewListener(pool, logger).Run(ctx, hub.Publish)

	staleAfter, err := config.Duration("PENDING_STALE_AFTER", 7*24*time.Hour)
	if err != nil {
		panic(err)
	}
	go staleness.NewMonitor(appts, m, logger, staleness.Config{StaleAfter: staleAfter}).Run(ctx)

	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", "")}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		ttl, err := config.Int("JWKS_CACHE_SECONDS", 300)
		if err != nil {
			panic(err)
		}
		verifier.JWKS = auth.NewJWKSClient(jwksURL, time.Duration(ttl)*time.Second)
	}

	router := handlers.NewRouter(handlers.Config{
		Scheduler: svc,
		Verifier:  verifier,
		Feed:      hub,
		Metrics:   m,
		Logger:    logger,
		Location:  loc,
	})

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/api/", router)

	perMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		panic(err)
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS")}),
		rateLimit(ctx, logger, perMinute),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "counseling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger)
	grpcx.SetServing(health, service, true)
	go func() {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			return
		}
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	grpcx.SetServing(health, service, false)
	hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
}

func emailSender(logger *slog.Logger) notify.Sender {
	if config.String("EMAIL_PROVIDER", "noop") != "smtp" {
		logger.Warn("email delivery disabled (EMAIL_PROVIDER != smtp)")
		return notify.NoopSender{}
	}
	smtpPort, err := config.Int("SMTP_PORT", 587)
	if err != nil {
		panic(err)
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:     config.String("SMTP_HOST", "localhost"),
		Port:     smtpPort,
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
		From:     config.String("SMTP_FROM", "aconselhamento@localhost"),
		FromName: config.String("SMTP_FROM_NAME", "Aconselhamento Pastoral"),
	})
}

func chatSender(logger *slog.Logger) notify.ChatSender {
	url := config.String("CHAT_WEBHOOK_URL", "")
	if config.String("CHAT_PROVIDER", "noop") != "webhook" || url == "" {
		logger.Warn("chat delivery disabled (CHAT_PROVIDER != webhook)")
		return notify.NoopChatSender{}
	}
	webhook := notify.NewWebhookSender(url, config.String("CHAT_WEBHOOK_TOKEN", ""))
	return notify.NewBreakerChatSender(webhook, notify.BreakerConfig{}, logger)
}

// rateLimit prefers the Redis limiter shared by all replicas and falls back
// to the in-process one.
func rateLimit(ctx context.Context, logger *slog.Logger, perMinute int) httpx.Middleware {
	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		rl := httpx.NewRateLimiter(perMinute)
		go rl.RunCleanup(ctx)
		return rl.Middleware()
	}
	redisDB, err := config.Int("REDIS_DB", 0)
	if err != nil {
		panic(err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       redisDB,
	})
	go func() {
		<-ctx.Done()
		_ = rdb.Close()
	}()
	failOpen, err := config.Bool("RATE_LIMIT_FAIL_OPEN", true)
	if err != nil {
		panic(err)
	}
	return httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "counseling").Middleware(logger, failOpen)
}
