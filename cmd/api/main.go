package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/eventloom/ticketpay/internal/adapters/mongo"
	"github.com/eventloom/ticketpay/internal/adapters/pg"
	redisadapter "github.com/eventloom/ticketpay/internal/adapters/redis"
	"github.com/eventloom/ticketpay/internal/checkout"
	"github.com/eventloom/ticketpay/internal/config"
	"github.com/eventloom/ticketpay/internal/gateway"
	httphandler "github.com/eventloom/ticketpay/internal/http"
	"github.com/eventloom/ticketpay/internal/idempotency"
	"github.com/eventloom/ticketpay/internal/observability"
	"github.com/eventloom/ticketpay/internal/payout"
	"github.com/eventloom/ticketpay/internal/rateLimit"
	"github.com/eventloom/ticketpay/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	if err := pg.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}
	repo := pg.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("ticketpay"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	replay := redisadapter.NewReplayCache(redisClient, time.Hour)
	idemp := idempotency.NewIdempotency(replay)
	rl := rateLimit.NewRateLimiter(redisCache)

	gw := gateway.NewClient(gateway.Config{
		BaseURL:    cfg.KhaltiBaseURL,
		SecretKey:  cfg.KhaltiSecretKey,
		ReturnURL:  cfg.KhaltiReturnURL,
		WebsiteURL: cfg.WebsiteURL,
		Timeout:    cfg.GatewayTimeout,
	}, logger)

	platformID := uuid.Nil
	if cfg.PlatformAccountID != "" {
		platformID, err = uuid.Parse(cfg.PlatformAccountID)
		if err != nil {
			log.Fatalf("invalid PLATFORM_ACCOUNT_ID: %v", err)
		}
	}

	engine := settlement.NewEngine(
		pg.SettlementStore{Repository: repo},
		settlement.Config{
			DefaultCommissionPercent: cfg.DefaultCommissionPercent,
			PlatformAccountID:        platformID,
		},
		audit,
		logger,
	)
	orchestrator := checkout.NewOrchestrator(repo, gw, redisCache, logger)
	payouts := payout.NewService(pg.PayoutStore{Repository: repo}, logger)

	handlers := httphandler.NewHandlers(repo, orchestrator, payouts, engine, gw, idemp, logger)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
