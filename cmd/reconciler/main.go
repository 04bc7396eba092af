package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/eventloom/ticketpay/internal/adapters/mongo"
	"github.com/eventloom/ticketpay/internal/adapters/pg"
	"github.com/eventloom/ticketpay/internal/config"
	"github.com/eventloom/ticketpay/internal/gateway"
	"github.com/eventloom/ticketpay/internal/observability"
	"github.com/eventloom/ticketpay/internal/reconcile"
	"github.com/eventloom/ticketpay/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := pg.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("ticketpay"), logger)

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

	sweeper := reconcile.NewSweeper(repo, gw, engine, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Run(ctx, cfg.SweepInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown reconciler")
}
